package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"repuradar/internal/domain"
)

func reviewsKey(userID int64, platformSlug string, limit int) string {
	return fmt.Sprintf("reviews:%d:%s:%d", userID, platformSlug, limit)
}

func alertsKey(userID int64) string {
	return fmt.Sprintf("alerts:%d", userID)
}

type QueryService struct {
	repo     domain.ReviewStore
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewStore, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func (s *QueryService) ListReviews(ctx context.Context, userID int64, pg domain.PageQuery) (domain.ReviewsPage, error) {
	slug := "all"
	if pg.Platform != nil {
		slug = pg.Platform.Slug()
	}
	key := reviewsKey(userID, slug, pg.Limit)
	var out domain.ReviewsPage
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}

	rs, err := s.repo.ListReviews(ctx, userID, pg)
	if err != nil {
		return domain.ReviewsPage{}, err
	}

	// copy the slice so later repo mutations cannot leak into the cached value
	copyRS := deepCopyReviewsPage(rs)

	// size guard
	if b, _ := json.Marshal(copyRS); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, copyRS, int(s.cacheTTL.Seconds()))
	}
	return copyRS, nil
}

func (s *QueryService) ListAlerts(ctx context.Context, userID int64, limit int) ([]domain.Alert, error) {
	key := alertsKey(userID)
	var out []domain.Alert
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	as, err := s.repo.ListAlerts(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	cp := make([]domain.Alert, len(as))
	copy(cp, as)
	_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	return cp, nil
}

func deepCopyReviewsPage(in domain.ReviewsPage) domain.ReviewsPage {
	out := domain.ReviewsPage{}
	if n := len(in.Items); n > 0 {
		out.Items = make([]domain.Review, n)
		copy(out.Items, in.Items)
	}
	return out
}
