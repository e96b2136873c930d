// Command server runs the parts marketplace backend: request intake with
// spam screening and AI moderation, offer lifecycle, notifications, and
// post-transaction ratings over a JSON HTTP API.
//
// Configuration is environment-driven (see internal/config); a local .env
// file is loaded when present. Redis (accept lock) and Kafka (notification
// delivery) are optional and enabled by their respective addresses.
//
// @title        Parts Marketplace API
// @version      1.0
// @description  Car part request and offer pipeline.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/partline/go-parts-backend/docs" // swagger spec registration
	"github.com/partline/go-parts-backend/internal/config"
	httpapi "github.com/partline/go-parts-backend/internal/http"
	"github.com/partline/go-parts-backend/internal/lock"
	"github.com/partline/go-parts-backend/internal/moderation"
	"github.com/partline/go-parts-backend/internal/notify"
	"github.com/partline/go-parts-backend/internal/observability"
	"github.com/partline/go-parts-backend/internal/repo"
	"github.com/partline/go-parts-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; ignored when absent.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	// Database
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	deps := httpapi.Deps{DB: db}

	// Moderation classifier (optional)
	if cfg.Moderation.Endpoint != "" {
		deps.Classifier = &moderation.HTTPClassifier{
			Endpoint: cfg.Moderation.Endpoint,
			APIKey:   cfg.Moderation.APIKey,
			Model:    cfg.Moderation.Model,
		}
	} else {
		log.Warn().Msg("no moderation endpoint configured; suspicious requests will be held for review")
	}

	// Redis accept lock (optional)
	if cfg.Redis.Addr != "" {
		client := rd.NewClient(&rd.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
		}
		defer client.Close()
		deps.AcceptLock = &lock.AcceptLock{Client: client, TTL: cfg.Redis.AcceptLockTTL}
	}

	// Kafka notification producer (optional)
	if len(cfg.Kafka.Brokers) > 0 {
		producer := notify.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := producer.Close(); err != nil {
				log.Warn().Err(err).Msg("kafka producer close")
			}
		}()
		deps.Producer = producer
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
