package main

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"repuradar/internal/adapters/observability"
	"repuradar/internal/adapters/platform"
	redisad "repuradar/internal/adapters/redis"
	"repuradar/internal/app"
	"repuradar/internal/domain"
	"repuradar/internal/shared"
	mysqlrepo "repuradar/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	log.Info().
		Int("workers", cfg.Workers).
		Int("targets", len(cfg.ImportTargets)).
		Int("limit", cfg.ImportLimit).
		Msg("importer starting")

	if len(cfg.ImportTargets) == 0 {
		log.Warn().Msg("IMPORT_TARGETS is empty, nothing to do")
		return
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, cache invalidation will be skipped")
	}

	feed, err := platform.New(cfg.AppleMapsBase, cfg.FacebookBase, cfg.AppleMapsToken, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize platform client")
	}

	ingest := app.NewIngestionService(repo, cache)
	imp := app.NewImportService(feed, ingest)

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, target := range cfg.ImportTargets {
		target := target

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(t shared.ImportTarget) {
			defer wg.Done()
			defer sem.Release(int64(1))

			var (
				res app.BatchResult
				err error
			)
			switch t.Platform {
			case domain.PlatformAppleMaps:
				res, err = imp.ImportAppleMaps(ctx, t.UserID, t.LocationID, t.AccountID, cfg.ImportLimit)
			case domain.PlatformFacebook:
				res, err = imp.ImportFacebook(ctx, t.UserID, t.LocationID, t.AccountID, cfg.FacebookToken)
			default:
				log.Warn().Str("platform", string(t.Platform)).Msg("platform has no import feed, skipping")
				return
			}
			if err != nil {
				log.Warn().Err(err).
					Int64("user", t.UserID).
					Str("platform", string(t.Platform)).
					Str("account", t.AccountID).
					Msg("import failed")
				return
			}
			log.Info().
				Int64("user", t.UserID).
				Str("platform", string(t.Platform)).
				Int("total", res.Total).
				Int("imported", res.Imported).
				Int("skipped", res.Skipped).
				Int("errored", len(res.Errored)).
				Msg("import ok")
		}(target)
	}

	wg.Wait()
	log.Info().Msg("import run completed")
}
