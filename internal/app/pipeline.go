package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"repuradar/internal/adapters/observability"
	"repuradar/internal/domain"
)

// NegativeRatingMax is the highest star rating still treated as negative.
const NegativeRatingMax = 2

// RecordError is a per-record ingestion failure kept in the batch result
// instead of being silently dropped.
type RecordError struct {
	ExternalID string `json:"externalId"`
	Reason     string `json:"reason"`
}

// BatchResult summarizes one ingestion call. Total == Imported + Skipped + len(Errored).
type BatchResult struct {
	Platform   domain.Platform `json:"platform"`
	Total      int             `json:"total"`
	Imported   int             `json:"imported"`
	Skipped    int             `json:"skipped"`
	Errored    []RecordError   `json:"errored,omitempty"`
	NewReviews []domain.Review `json:"newReviews"`
}

type WebhookStatus string

const (
	WebhookCreated WebhookStatus = "created"
	WebhookSkipped WebhookStatus = "skipped"
)

type WebhookResult struct {
	Status  WebhookStatus
	Message string
	Review  domain.Review
}

type IngestionService struct {
	store domain.ReviewStore
	cache domain.Cache
}

func NewIngestionService(store domain.ReviewStore, cache domain.Cache) *IngestionService {
	return &IngestionService{store: store, cache: cache}
}

// IngestBatch dedupes one batch of canonical reviews against the store and
// persists the unknown ones, in input order. Candidates sharing an external
// id with an already-stored review (or an earlier candidate in the same
// batch) are skipped; store failures land in the errored bucket and the
// batch continues. One negative-review alert is raised per batch when at
// least one newly-imported review is rated <= 2.
func (s *IngestionService) IngestBatch(ctx context.Context, userID int64, platform domain.Platform, candidates []domain.Review) (BatchResult, error) {
	res := BatchResult{Platform: platform, Total: len(candidates)}

	existing, err := s.store.ListReviewsByPlatform(ctx, userID, platform)
	if err != nil {
		return res, fmt.Errorf("list existing %s reviews for user %d: %w", platform, userID, err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		// records predating the external-id scheme are not collision risks
		if r.ExternalID != "" {
			seen[r.ExternalID] = struct{}{}
		}
	}

	for _, c := range candidates {
		if _, dup := seen[c.ExternalID]; dup {
			res.Skipped++
			observability.ObserveIngest(platform.Slug(), "skipped")
			continue
		}
		created, err := s.store.CreateReview(ctx, c)
		if err != nil {
			// a lost race still lands here; the store's unique key turns it into a skip
			if errors.Is(err, domain.ErrDuplicate) {
				res.Skipped++
				observability.ObserveIngest(platform.Slug(), "skipped")
				seen[c.ExternalID] = struct{}{}
				continue
			}
			log.Warn().Err(err).
				Int64("user", userID).
				Str("platform", string(platform)).
				Str("external_id", c.ExternalID).
				Msg("review insert failed, continuing batch")
			res.Errored = append(res.Errored, RecordError{ExternalID: c.ExternalID, Reason: err.Error()})
			observability.ObserveIngest(platform.Slug(), "errored")
			continue
		}
		seen[c.ExternalID] = struct{}{}
		res.Imported++
		res.NewReviews = append(res.NewReviews, created)
		observability.ObserveIngest(platform.Slug(), "imported")
	}

	// alert only on genuinely new data, once per batch
	negative := 0
	for _, r := range res.NewReviews {
		if r.Rating <= NegativeRatingMax {
			negative++
		}
	}
	if negative > 0 {
		s.raiseAlert(ctx, userID, platform,
			fmt.Sprintf("Imported %d new negative reviews from %s", negative, platform))
	}

	if res.Imported > 0 && s.cache != nil {
		s.invalidate(ctx, userID, platform)
	}
	return res, nil
}

// IngestWebhook handles the single-review webhook path: gate on the target
// user, dedupe, persist, and alert with the per-review message template.
func (s *IngestionService) IngestWebhook(ctx context.Context, r domain.Review) (WebhookResult, error) {
	if _, err := s.store.GetUser(ctx, r.UserID); err != nil {
		return WebhookResult{}, fmt.Errorf("user %d: %w", r.UserID, err)
	}
	if r.LocationID != nil {
		if _, err := s.store.GetLocation(ctx, r.UserID, *r.LocationID); err != nil {
			return WebhookResult{}, fmt.Errorf("location %d: %w", *r.LocationID, err)
		}
	}

	// users with no locations on file get no reviews and no alerts
	n, err := s.store.CountLocations(ctx, r.UserID)
	if err != nil {
		return WebhookResult{}, err
	}
	if n == 0 {
		return WebhookResult{Status: WebhookSkipped, Message: "user has no locations on file"}, nil
	}

	existing, err := s.store.ListReviewsByPlatform(ctx, r.UserID, r.Platform)
	if err != nil {
		return WebhookResult{}, err
	}
	for _, e := range existing {
		if e.ExternalID != "" && e.ExternalID == r.ExternalID {
			observability.ObserveIngest(r.Platform.Slug(), "skipped")
			return WebhookResult{Status: WebhookSkipped, Message: "review already exists"}, nil
		}
	}

	created, err := s.store.CreateReview(ctx, r)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			observability.ObserveIngest(r.Platform.Slug(), "skipped")
			return WebhookResult{Status: WebhookSkipped, Message: "review already exists"}, nil
		}
		observability.ObserveIngest(r.Platform.Slug(), "errored")
		return WebhookResult{}, fmt.Errorf("create review: %w", err)
	}
	observability.ObserveIngest(r.Platform.Slug(), "imported")

	if created.Rating <= NegativeRatingMax {
		s.raiseAlert(ctx, created.UserID, created.Platform,
			fmt.Sprintf("New negative review received with %d rating from %s on %s",
				created.Rating, created.ReviewerName, created.Platform))
	}

	if s.cache != nil {
		s.invalidate(ctx, created.UserID, created.Platform)
	}
	return WebhookResult{Status: WebhookCreated, Review: created}, nil
}

// raiseAlert is best-effort: an alert that fails to persist must not fail
// the ingestion that triggered it.
func (s *IngestionService) raiseAlert(ctx context.Context, userID int64, platform domain.Platform, content string) {
	_, err := s.store.CreateAlert(ctx, domain.Alert{
		UserID:    userID,
		AlertType: domain.AlertTypeNegativeReview,
		Content:   content,
	})
	if err != nil {
		log.Error().Err(err).Int64("user", userID).Msg("create alert failed")
		return
	}
	observability.ObserveAlert(platform.Slug())
	if s.cache != nil {
		_ = s.cache.Del(ctx, alertsKey(userID))
	}
}

// invalidate drops the common cached review-list variants for the user.
func (s *IngestionService) invalidate(ctx context.Context, userID int64, platform domain.Platform) {
	for _, lim := range []int{20, 50, 100} {
		_ = s.cache.Del(ctx, reviewsKey(userID, platform.Slug(), lim))
		_ = s.cache.Del(ctx, reviewsKey(userID, "all", lim))
	}
}
