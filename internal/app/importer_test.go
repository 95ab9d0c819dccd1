package app_test

import (
	"context"
	"errors"
	"testing"

	"repuradar/internal/app"
)

type fakeFeed struct {
	apple    []app.AppleMapsReview
	facebook []app.FacebookReview
	err      error
}

func (f *fakeFeed) AppleMapsReviews(ctx context.Context, placeID string, limit int) ([]app.AppleMapsReview, error) {
	return f.apple, f.err
}

func (f *fakeFeed) FacebookRatings(ctx context.Context, pageID, accessToken string) ([]app.FacebookReview, error) {
	return f.facebook, f.err
}

func appleReview(id string, rating *int) app.AppleMapsReview {
	return app.AppleMapsReview{ID: id, Rating: rating, Text: "t", DateCreated: "2024-03-01T10:00:00Z"}
}

func TestImportAppleMaps_MalformedRecordsSkippedNotFatal(t *testing.T) {
	store := newFakeStore()
	feed := &fakeFeed{apple: []app.AppleMapsReview{
		appleReview("a", intp(5)),
		appleReview("b", nil), // missing rating
		appleReview("c", intp(1)),
	}}
	imp := app.NewImportService(feed, app.NewIngestionService(store, nil))

	res, err := imp.ImportAppleMaps(context.Background(), 5, nil, "place-1", 100)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Total != 3 || res.Imported != 2 || res.Skipped != 0 || len(res.Errored) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Errored[0].ExternalID != "apple-maps-b" {
		t.Fatalf("unexpected errored record: %+v", res.Errored[0])
	}
	// one negative (rating 1) imported -> one batch alert
	if len(store.alerts) != 1 || store.alerts[0].Content != "Imported 1 new negative reviews from Apple Maps" {
		t.Fatalf("unexpected alerts: %+v", store.alerts)
	}
}

func TestImportFacebook_FetchFailureIsFatal(t *testing.T) {
	store := newFakeStore()
	feed := &fakeFeed{err: errors.New("graph api down")}
	imp := app.NewImportService(feed, app.NewIngestionService(store, nil))

	_, err := imp.ImportFacebook(context.Background(), 5, nil, "page-1", "tok")
	if err == nil {
		t.Fatalf("expected upstream fetch failure to propagate")
	}
	if len(store.reviews) != 0 {
		t.Fatalf("no partial batch on fetch failure")
	}
}

func TestImportFacebook_RecommendationsFlow(t *testing.T) {
	store := newFakeStore()
	neg := app.FacebookReview{ID: "f1", RecommendationType: "negative", CreatedTime: "2024-03-01T10:00:00+0000"}
	pos := app.FacebookReview{ID: "f2", RecommendationType: "positive"}
	feed := &fakeFeed{facebook: []app.FacebookReview{neg, pos}}
	imp := app.NewImportService(feed, app.NewIngestionService(store, nil))

	res, err := imp.ImportFacebook(context.Background(), 5, nil, "page-1", "tok")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Imported != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.reviews[0].Rating != 1 || store.reviews[1].Rating != 5 {
		t.Fatalf("derived ratings wrong: %+v", store.reviews)
	}
	if len(store.alerts) != 1 {
		t.Fatalf("expected one alert for the derived rating-1 review")
	}
}
