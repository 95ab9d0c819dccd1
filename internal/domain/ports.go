package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate review")
	// ErrValidation marks a canonical record the store refused to persist.
	ErrValidation = errors.New("validation failed")
	// ErrMalformedPayload marks a source payload missing a field with no default.
	ErrMalformedPayload = errors.New("malformed payload")
)

// ReviewStore is the persistence collaborator behind the ingestion pipeline.
//
// The store MUST enforce uniqueness on (user_id, platform, external_id) and
// surface a violation as ErrDuplicate: the pipeline's read-then-write dedupe
// check is racy across overlapping ingestion calls, and the store constraint
// is what turns that race into a skip instead of a duplicate row.
type ReviewStore interface {
	// Write paths
	CreateReview(ctx context.Context, r Review) (Review, error)
	CreateAlert(ctx context.Context, a Alert) (Alert, error)

	// Read paths
	GetUser(ctx context.Context, id int64) (User, error)
	GetLocation(ctx context.Context, userID, locationID int64) (Location, error)
	CountLocations(ctx context.Context, userID int64) (int, error)
	ListReviewsByPlatform(ctx context.Context, userID int64, platform Platform) ([]Review, error)
	ListReviews(ctx context.Context, userID int64, pg PageQuery) (ReviewsPage, error)
	ListAlerts(ctx context.Context, userID int64, limit int) ([]Alert, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models & queries

type PageQuery struct {
	Platform *Platform
	Limit    int
	Sort     string
}

type ReviewsPage struct {
	Items []Review
}
