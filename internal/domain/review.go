package domain

import "time"

// Platform identifies the review source site.
type Platform string

const (
	PlatformGoogle    Platform = "Google"
	PlatformYelp      Platform = "Yelp"
	PlatformFacebook  Platform = "Facebook"
	PlatformAppleMaps Platform = "Apple Maps"
)

var platformsBySlug = map[string]Platform{
	"google":     PlatformGoogle,
	"yelp":       PlatformYelp,
	"facebook":   PlatformFacebook,
	"apple-maps": PlatformAppleMaps,
}

// ParsePlatform resolves a URL slug ("google", "apple-maps", ...) to a Platform.
func ParsePlatform(slug string) (Platform, bool) {
	p, ok := platformsBySlug[slug]
	return p, ok
}

// Slug is the URL/key form of the platform name ("apple-maps" for "Apple Maps").
func (p Platform) Slug() string {
	switch p {
	case PlatformGoogle:
		return "google"
	case PlatformYelp:
		return "yelp"
	case PlatformFacebook:
		return "facebook"
	case PlatformAppleMaps:
		return "apple-maps"
	}
	return ""
}

// DefaultReviewer is the placeholder name used when the source payload
// carries no reviewer name.
func (p Platform) DefaultReviewer() string {
	switch p {
	case PlatformGoogle:
		return "Google User"
	case PlatformYelp:
		return "Yelp User"
	case PlatformFacebook:
		return "Facebook User"
	case PlatformAppleMaps:
		return "Apple Maps User"
	}
	return "User"
}

// Review is the canonical, platform-agnostic record the pipeline operates on.
type Review struct {
	ID           int64
	UserID       int64
	LocationID   *int64
	ReviewerName string
	Platform     Platform
	Rating       int
	Text         string
	Date         time.Time
	ExternalID   string // dedupe key, unique per (UserID, Platform)
	Sentiment    float64
	IsResolved   bool
	Response     *string
}

// SentimentFromRating rescales a 1-5 star rating linearly into [0,1].
func SentimentFromRating(rating int) float64 {
	return float64(rating-1) / 4
}
