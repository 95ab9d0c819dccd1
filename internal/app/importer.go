package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"repuradar/internal/domain"
)

// ReviewFeed pulls raw review payloads from the platforms that expose a
// fetchable feed (the webhook-only platforms push instead).
type ReviewFeed interface {
	AppleMapsReviews(ctx context.Context, placeID string, limit int) ([]AppleMapsReview, error)
	FacebookRatings(ctx context.Context, pageID, accessToken string) ([]FacebookReview, error)
}

type ImportService struct {
	feed   ReviewFeed
	ingest *IngestionService
}

func NewImportService(feed ReviewFeed, ingest *IngestionService) *ImportService {
	return &ImportService{feed: feed, ingest: ingest}
}

// ImportAppleMaps pulls the Apple Maps review feed for one place and runs it
// through the pipeline. A failed fetch fails the whole import; malformed
// records are skipped individually and reported in the errored bucket.
func (s *ImportService) ImportAppleMaps(ctx context.Context, userID int64, locationID *int64, placeID string, limit int) (BatchResult, error) {
	raws, err := s.feed.AppleMapsReviews(ctx, placeID, limit)
	if err != nil {
		return BatchResult{Platform: domain.PlatformAppleMaps}, fmt.Errorf("fetch apple maps reviews for %s: %w", placeID, err)
	}

	candidates := make([]domain.Review, 0, len(raws))
	var malformed []RecordError
	for _, raw := range raws {
		r, err := NormalizeAppleMaps(raw, userID, locationID)
		if err != nil {
			log.Warn().Err(err).Str("place", placeID).Msg("skipping malformed apple maps review")
			malformed = append(malformed, RecordError{ExternalID: "apple-maps-" + raw.ID, Reason: err.Error()})
			continue
		}
		candidates = append(candidates, r)
	}

	res, err := s.ingest.IngestBatch(ctx, userID, domain.PlatformAppleMaps, candidates)
	res.Total += len(malformed)
	res.Errored = append(malformed, res.Errored...)
	return res, err
}

// ImportFacebook pulls the page's ratings edge and runs it through the pipeline.
func (s *ImportService) ImportFacebook(ctx context.Context, userID int64, locationID *int64, pageID, accessToken string) (BatchResult, error) {
	raws, err := s.feed.FacebookRatings(ctx, pageID, accessToken)
	if err != nil {
		return BatchResult{Platform: domain.PlatformFacebook}, fmt.Errorf("fetch facebook ratings for page %s: %w", pageID, err)
	}

	candidates := make([]domain.Review, 0, len(raws))
	var malformed []RecordError
	for _, raw := range raws {
		r, err := NormalizeFacebook(raw, userID, locationID)
		if err != nil {
			log.Warn().Err(err).Str("page", pageID).Msg("skipping malformed facebook review")
			malformed = append(malformed, RecordError{ExternalID: "facebook-" + raw.ID, Reason: err.Error()})
			continue
		}
		candidates = append(candidates, r)
	}

	res, err := s.ingest.IngestBatch(ctx, userID, domain.PlatformFacebook, candidates)
	res.Total += len(malformed)
	res.Errored = append(malformed, res.Errored...)
	return res, err
}
