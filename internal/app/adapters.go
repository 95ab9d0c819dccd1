package app

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"repuradar/internal/domain"
)

/********** raw payload shapes (one explicit struct per platform) **********/

// GoogleReview is the payload shape delivered by the Google webhook/feed.
// Note it carries no stable per-review id; the dedupe key is author+time,
// so two reviews by the same author in the same second collide. Known
// limitation of the payload shape, kept on purpose.
type GoogleReview struct {
	AuthorName string `json:"author_name"`
	Rating     *int   `json:"rating"`
	Text       string `json:"text"`
	Time       *int64 `json:"time"` // unix seconds
}

type YelpReview struct {
	ID          string `json:"id"`
	Rating      *int   `json:"rating"`
	Text        string `json:"text"`
	TimeCreated string `json:"time_created"`
	User        struct {
		Name string `json:"name"`
	} `json:"user"`
}

type FacebookReview struct {
	ID                 string `json:"id"`
	Rating             *int   `json:"rating"`
	RecommendationType string `json:"recommendation_type"` // "positive" | "negative"
	ReviewText         string `json:"review_text"`
	CreatedTime        string `json:"created_time"`
	Reviewer           struct {
		Name string `json:"name"`
	} `json:"reviewer"`
}

type AppleMapsReview struct {
	ID          string `json:"id"`
	Rating      *int   `json:"rating"`
	Text        string `json:"text"`
	DateCreated string `json:"dateCreated"`
	Reviewer    struct {
		Name string `json:"name"`
	} `json:"reviewer"`
}

/********** tiny helpers **********/

// parseWhen accepts the date formats the platforms actually send.
// A zero time means "unknown"; the store substitutes its own timestamp.
func parseWhen(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05-0700", // Facebook created_time
		"2006-01-02 15:04:05",      // Yelp time_created
		"2006-01-02T15:04:05",
		"2006-01-02",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func canonical(userID int64, locationID *int64, platform domain.Platform, rating int, reviewer, text, externalID string, date time.Time) domain.Review {
	if reviewer == "" {
		reviewer = platform.DefaultReviewer()
	}
	return domain.Review{
		UserID:       userID,
		LocationID:   locationID,
		ReviewerName: reviewer,
		Platform:     platform,
		Rating:       rating,
		Text:         text,
		Date:         date,
		ExternalID:   externalID,
		Sentiment:    domain.SentimentFromRating(rating),
		IsResolved:   false,
		Response:     nil,
	}
}

/********** per-platform adapters (pure) **********/

func NormalizeGoogle(p GoogleReview, userID int64, locationID *int64) (domain.Review, error) {
	if p.Rating == nil {
		return domain.Review{}, fmt.Errorf("%w: google review missing rating", domain.ErrMalformedPayload)
	}
	if p.AuthorName == "" || p.Time == nil {
		return domain.Review{}, fmt.Errorf("%w: google review missing author_name/time for external id", domain.ErrMalformedPayload)
	}
	extID := "google-" + p.AuthorName + "-" + strconv.FormatInt(*p.Time, 10)
	return canonical(userID, locationID, domain.PlatformGoogle,
		*p.Rating, p.AuthorName, p.Text, extID, time.Unix(*p.Time, 0).UTC()), nil
}

func NormalizeYelp(p YelpReview, userID int64, locationID *int64) (domain.Review, error) {
	if p.Rating == nil {
		return domain.Review{}, fmt.Errorf("%w: yelp review missing rating", domain.ErrMalformedPayload)
	}
	if p.ID == "" {
		return domain.Review{}, fmt.Errorf("%w: yelp review missing id", domain.ErrMalformedPayload)
	}
	return canonical(userID, locationID, domain.PlatformYelp,
		*p.Rating, p.User.Name, p.Text, "yelp-"+p.ID, parseWhen(p.TimeCreated)), nil
}

func NormalizeFacebook(p FacebookReview, userID int64, locationID *int64) (domain.Review, error) {
	if p.ID == "" {
		return domain.Review{}, fmt.Errorf("%w: facebook review missing id", domain.ErrMalformedPayload)
	}
	if p.Rating == nil && p.RecommendationType == "" {
		return domain.Review{}, fmt.Errorf("%w: facebook review has neither rating nor recommendation_type", domain.ErrMalformedPayload)
	}

	// Facebook pages report a binary recommendation instead of stars.
	rating := 1
	if p.Rating != nil {
		rating = *p.Rating
	} else if p.RecommendationType == "positive" {
		rating = 5
	}
	text := p.ReviewText
	if text == "" {
		if p.RecommendationType == "positive" {
			text = "Recommended"
		} else {
			text = "Not recommended"
		}
	}
	return canonical(userID, locationID, domain.PlatformFacebook,
		rating, p.Reviewer.Name, text, "facebook-"+p.ID, parseWhen(p.CreatedTime)), nil
}

func NormalizeAppleMaps(p AppleMapsReview, userID int64, locationID *int64) (domain.Review, error) {
	if p.Rating == nil {
		return domain.Review{}, fmt.Errorf("%w: apple maps review missing rating", domain.ErrMalformedPayload)
	}
	if p.ID == "" {
		return domain.Review{}, fmt.Errorf("%w: apple maps review missing id", domain.ErrMalformedPayload)
	}
	return canonical(userID, locationID, domain.PlatformAppleMaps,
		*p.Rating, p.Reviewer.Name, p.Text, "apple-maps-"+p.ID, parseWhen(p.DateCreated)), nil
}

// Normalize dispatches a raw JSON payload to the platform's adapter.
// Used by the webhook path, which receives the payload undecoded.
func Normalize(platform domain.Platform, raw json.RawMessage, userID int64, locationID *int64) (domain.Review, error) {
	switch platform {
	case domain.PlatformGoogle:
		var p GoogleReview
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.Review{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return NormalizeGoogle(p, userID, locationID)
	case domain.PlatformYelp:
		var p YelpReview
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.Review{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return NormalizeYelp(p, userID, locationID)
	case domain.PlatformFacebook:
		var p FacebookReview
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.Review{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return NormalizeFacebook(p, userID, locationID)
	case domain.PlatformAppleMaps:
		var p AppleMapsReview
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.Review{}, fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
		}
		return NormalizeAppleMaps(p, userID, locationID)
	}
	return domain.Review{}, fmt.Errorf("%w: unknown platform %q", domain.ErrMalformedPayload, platform)
}
