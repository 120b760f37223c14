// Command server runs the group chat HTTP API.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-group-chat/internal/auth"
	"github.com/tbourn/go-group-chat/internal/cache"
	"github.com/tbourn/go-group-chat/internal/config"
	httpapi "github.com/tbourn/go-group-chat/internal/http"
	"github.com/tbourn/go-group-chat/internal/observability"
	"github.com/tbourn/go-group-chat/internal/repo"
	"github.com/tbourn/go-group-chat/internal/storage"
	"github.com/tbourn/go-group-chat/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const idempotencyPurgeEvery = time.Hour

func main() {
	// A missing .env is normal outside local development.
	envErr := godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogging(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warn().Err(envErr).Msg(".env not loaded")
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentGORM(db); err != nil {
			return err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	store, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	var objects storage.ObjectStore
	if cfg.S3.Enabled() {
		ms, err := storage.NewMinioStore(cfg.S3)
		if err != nil {
			return err
		}
		objects = ms
		log.Info().Str("bucket", ms.Bucket()).Msg("object storage enabled")
	} else {
		log.Info().Msg("object storage not configured; uploads disabled")
	}

	var sessions *auth.Sessions
	if cfg.Session.Secret != "" {
		sessions = auth.NewSessions(cfg.Session.Secret, cfg.Session.Issuer)
	}
	if cfg.Session.DevHeaders {
		log.Warn().Msg("AUTH_DEV_HEADERS is on: X-User-ID is trusted")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Config:   cfg,
		Cache:    store,
		Objects:  objects,
		Sessions: sessions,
	})

	go purgeIdempotency(ctx, db, idempotencyPurgeEvery)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", appVersion).Str("base_path", cfg.APIBasePath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

type closableStore interface {
	cache.Store
	io.Closer
}

// openCache builds the configured cache backend. A Redis backend that does
// not answer at startup is logged, not fatal: lookups degrade to misses.
func openCache(ctx context.Context, cfg config.CacheConfig) (closableStore, error) {
	switch cfg.Backend {
	case "redis":
		rs := cache.NewRedisStore(cache.RedisOptions{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Prefix:      "chat:",
			DialTimeout: 2 * time.Second,
		})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rs.Ping(pctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable")
		}
		return rs, nil
	case "memory", "":
		return cache.NewMemoryStore(cache.MemoryOptions{SweepInterval: cfg.SweepInterval}), nil
	default:
		return nil, errors.New("unknown cache backend: " + cfg.Backend)
	}
}

// purgeIdempotency deletes expired idempotency records until ctx ends.
func purgeIdempotency(ctx context.Context, db *gorm.DB, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("idempotency purged")
			}
		}
	}
}
