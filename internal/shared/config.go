package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"repuradar/internal/domain"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	// Per-provider webhook signing secrets, keyed by platform slug.
	WebhookSecrets      map[string]string
	FacebookVerifyToken string

	// Batch-import path.
	AppleMapsBase  string
	AppleMapsToken string
	FacebookBase   string
	FacebookToken  string
	Workers        int
	ImportLimit    int
	ImportTargets  []ImportTarget

	CacheTTL time.Duration
}

// ImportTarget is one (user, location, platform account) to pull on an
// importer run. Parsed from IMPORT_TARGETS:
// "apple-maps:5:2:place-abc,facebook:5:-:page-123" (use "-" for no location).
type ImportTarget struct {
	Platform   domain.Platform
	UserID     int64
	LocationID *int64
	AccountID  string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/repuradar?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),
		WebhookSecrets: map[string]string{
			"google":     env("GOOGLE_WEBHOOK_SECRET", ""),
			"yelp":       env("YELP_WEBHOOK_SECRET", ""),
			"facebook":   env("FACEBOOK_WEBHOOK_SECRET", ""),
			"apple-maps": env("APPLE_MAPS_WEBHOOK_SECRET", ""),
		},
		FacebookVerifyToken: env("FACEBOOK_VERIFY_TOKEN", ""),
		AppleMapsBase:       env("APPLE_MAPS_BASE_URL", "https://maps-api.apple.com/v1"),
		AppleMapsToken:      env("APPLE_MAPS_TOKEN", ""),
		FacebookBase:        env("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v19.0"),
		FacebookToken:       env("FACEBOOK_ACCESS_TOKEN", ""),
		Workers:             atoi("IMPORT_WORKERS", 8),
		ImportLimit:         atoi("IMPORT_REVIEW_COUNT", 100),
		ImportTargets:       ParseImportTargets(env("IMPORT_TARGETS", "")),
		CacheTTL:            time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
	}
	for slug, secret := range c.WebhookSecrets {
		if secret == "" {
			log.Warn().Str("provider", slug).Msg("webhook secret is empty; deliveries for this provider will be rejected")
		}
	}
	return c
}

// ParseImportTargets parses the IMPORT_TARGETS format. Malformed entries are
// logged and dropped rather than failing the whole run.
func ParseImportTargets(s string) []ImportTarget {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []ImportTarget
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			log.Warn().Str("entry", entry).Msg("skipping malformed import target")
			continue
		}
		platform, ok := domain.ParsePlatform(parts[0])
		if !ok {
			log.Warn().Str("entry", entry).Msg("skipping import target with unknown platform")
			continue
		}
		userID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || userID <= 0 {
			log.Warn().Str("entry", entry).Msg("skipping import target with bad user id")
			continue
		}
		t := ImportTarget{Platform: platform, UserID: userID, AccountID: parts[3]}
		if parts[2] != "-" && parts[2] != "" {
			locID, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				log.Warn().Str("entry", entry).Msg("skipping import target with bad location id")
				continue
			}
			t.LocationID = &locID
		}
		if t.AccountID == "" {
			log.Warn().Str("entry", entry).Msg("skipping import target with empty account id")
			continue
		}
		out = append(out, t)
	}
	return out
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
