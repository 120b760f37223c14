// Package httpapi mounts the chat API on a Gin engine: global middleware,
// the health, metrics and docs endpoints, and the authenticated routes under
// the configured base path.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/auth"
	"github.com/tbourn/go-group-chat/internal/cache"
	"github.com/tbourn/go-group-chat/internal/config"
	"github.com/tbourn/go-group-chat/internal/docs"
	"github.com/tbourn/go-group-chat/internal/http/handlers"
	"github.com/tbourn/go-group-chat/internal/http/middleware"
	"github.com/tbourn/go-group-chat/internal/repo"
	"github.com/tbourn/go-group-chat/internal/services"
	"github.com/tbourn/go-group-chat/internal/storage"
)

// Deps are the collaborators RegisterRoutes builds services from.
type Deps struct {
	DB     *gorm.DB
	Config config.Config

	// Cache backs user profiles and upload chunks. Nil uses an in-process
	// store without a janitor.
	Cache cache.Store
	// Objects stores completed uploads. Nil disables the upload endpoints.
	Objects storage.ObjectStore
	// Sessions validates session tokens. Nil accepts dev headers only.
	Sessions *auth.Sessions
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), CORS, compression
// and security headers, health, metrics and docs endpoints, and then mounts
// the authenticated API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing (plus the verbose
//     Logger in debug mode)
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS, gzip and security headers
//
// and on the API group:
//  8. Auth (401 before anything reads the body)
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	db := d.DB
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskParams: []string{cfg.Session.CookieName, "token"},
	}))
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit: 1 MiB, or one upload chunk plus slack
	r.Use(limitBody(int64(max(1<<20, cfg.Upload.MaxChunkBytes+1<<10))))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture, compression, security headers
	r.Use(corsMiddleware(cfg)...)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		CacheControl: middleware.CacheRevalidate,
		EnablePolicy: true,
		Expose:       []string{"ETag", middleware.HeaderReplayed},
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

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/cache/storage
	store := d.Cache
	if store == nil {
		store = cache.NewMemoryStore(cache.MemoryOptions{})
	}
	profiles := cache.NewUserNames(store, cfg.Cache.TTL)
	userSvc := &services.UserService{DB: db, Profiles: profiles}
	groupSvc := services.NewGroupService(db)
	msgSvc := &services.MessageService{
		DB:                   db,
		Users:                profiles,
		MaxMessageRunes:      cfg.Chat.MaxMessageRunes,
		MonotonicReadMarkers: cfg.Chat.ReadMarkerMonotonic,
	}
	uploadSvc := &services.UploadService{
		Chunks:        store,
		Storage:       d.Objects,
		ChunkTTL:      cfg.Upload.ChunkTTL,
		MaxChunkBytes: cfg.Upload.MaxChunkBytes,
		MaxChunks:     cfg.Upload.MaxChunks,
		KeyPrefix:     "uploads",
	}
	h := handlers.New(groupSvc, msgSvc, uploadSvc)

	authOpts := middleware.AuthOptions{
		CookieName: cfg.Session.CookieName,
		DevHeaders: cfg.Session.DevHeaders,
		OnUser:     userSvc.Touch,
	}
	if d.Sessions != nil {
		authOpts.Sessions = d.Sessions
	}

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(authOpts))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return rec != nil, nil
		},
	))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	api.Use(rl.Handler())
	{
		// Messages
		api.GET("/messages", h.GetMessages)
		api.POST("/chat/send", h.SendMessage)
		api.POST("/chat/read", h.MarkRead)

		// Groups
		api.POST("/chat/group/create", h.CreateGroup)
		api.PUT("/chat/group/edit", h.EditGroup)
		api.DELETE("/chat/group/:id", h.DeleteGroup)
		api.GET("/chat/groups", h.ListGroups)
		api.GET("/chat/groups/:id", h.GetGroup)
		api.GET("/chat/groups/:id/search", h.SearchMessages)

		// Uploads
		api.PUT("/uploads/:id/chunks/:index", h.PutChunk)
		api.POST("/uploads/:id/complete", h.CompleteUpload)
	}
}

// corsMiddleware allows all origins when none are configured, otherwise
// echoes allowlisted origins with credentials so cookie sessions work.
func corsMiddleware(cfg config.Config) []gin.HandlerFunc {
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	if cfg.Session.DevHeaders {
		allowHeaders = append(allowHeaders, middleware.HeaderDevUserID, middleware.HeaderDevUserName)
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderReplayed}
	methods := []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header.
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
	for _, o := range cfg.CORS.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
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
