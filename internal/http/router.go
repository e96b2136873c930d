// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/partline/go-parts-backend/internal/config"
	"github.com/partline/go-parts-backend/internal/http/handlers"
	"github.com/partline/go-parts-backend/internal/http/middleware"
	"github.com/partline/go-parts-backend/internal/lock"
	"github.com/partline/go-parts-backend/internal/moderation"
	"github.com/partline/go-parts-backend/internal/notify"
	"github.com/partline/go-parts-backend/internal/repo"
	"github.com/partline/go-parts-backend/internal/services"
	"github.com/partline/go-parts-backend/internal/spam"
)

// Deps carries the externally constructed dependencies the router wires into
// services. Classifier, Producer, and AcceptLock are optional; nil values
// degrade gracefully (heuristic-only holds, persistence-only notifications,
// DB-only acceptance guard).
type Deps struct {
	DB         *gorm.DB
	Classifier moderation.Classifier
	Producer   *notify.Producer
	AcceptLock *lock.AcceptLock
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Gzip compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	db := deps.DB

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction. Buyer phone numbers are the main
	// PII in this API; the built-in phone scrubber covers them.
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  "request_submit",
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (off by default)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/pipeline components
	guard := spam.NewGuard()
	guard.DuplicateWindow = cfg.Spam.DuplicateWindow
	guard.HourlyWindow = cfg.Spam.HourlyWindow
	guard.HourlyMax = int64(cfg.Spam.HourlyMax)
	guard.DailyWindow = cfg.Spam.DailyWindow
	guard.DailyMax = int64(cfg.Spam.DailyMax)

	adj := &moderation.Adjudicator{
		Classifier: deps.Classifier,
		Timeout:    cfg.Moderation.Timeout,
		Threshold:  cfg.Moderation.Threshold,
	}
	dispatcher := &notify.Dispatcher{DB: db, Logger: log.Logger}
	// A nil *Producer must not end up as a non-nil DeliveryPublisher.
	if deps.Producer != nil {
		dispatcher.Producer = deps.Producer
	}

	reqSvc := &services.RequestService{
		DB:          db,
		Guard:       guard,
		Adjudicator: adj,
		Dispatcher:  dispatcher,
	}
	offerSvc := &services.OfferService{
		DB:                 db,
		Dispatcher:         dispatcher,
		Lock:               deps.AcceptLock,
		AutoRejectSiblings: cfg.Offers.AutoRejectSiblings,
		OfferTTL:           cfg.Offers.TTL,
	}
	ratingSvc := &services.RatingService{DB: db}
	h := handlers.New(reqSvc, offerSvc, ratingSvc).WithNotifications(dispatcher)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Requests
		api.POST("/requests", h.SubmitRequest)
		api.GET("/requests", h.ListRequests)
		api.POST("/requests/:id/cancel", h.CancelRequest)

		// Offers
		api.POST("/requests/:id/offers", h.MakeOffer)
		api.GET("/requests/:id/offers", h.ListOffers)
		api.POST("/offers/:id/accept", h.AcceptOffer)
		api.POST("/offers/:id/reject", h.RejectOffer)
		api.POST("/offers/:id/unlock", h.UnlockOffer)
		api.POST("/offers/:id/complete", h.CompleteOffer)

		// Ratings
		api.GET("/ratings/pending", h.PendingRatings)
		api.POST("/offers/:id/rating", h.SubmitRating)

		// Notifications
		api.GET("/notifications", h.ListNotifications)

		// Admin
		api.POST("/admin/offers/expire", h.ExpireOffers)
		api.GET("/admin/requests/held", h.HeldRequests)
		api.POST("/admin/notifications/flush", h.FlushNotifications)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
