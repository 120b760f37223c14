// Package config holds the service settings. Load fills them from the
// environment, optionally layered over a YAML file; see load.go for the
// keys and their defaults.
package config

import "time"

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SessionConfig controls how session tokens issued by the identity provider
// are validated.
type SessionConfig struct {
	Secret     string // SESSION_SECRET (HMAC key shared with the identity provider)
	Issuer     string // SESSION_ISSUER, checked when non-empty
	CookieName string // SESSION_COOKIE
	DevHeaders bool   // AUTH_DEV_HEADERS: trust X-User-ID / X-User-Name (local dev only)
}

// ChatConfig holds message and read-marker behavior.
type ChatConfig struct {
	MaxMessageRunes     int  // MESSAGE_MAX_RUNES
	ReadMarkerMonotonic bool // READ_MARKER_MONOTONIC: never move a read marker backwards
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	Backend       string        // memory|redis
	TTL           time.Duration // default entry lifetime for profile entries
	SweepInterval time.Duration // memory backend janitor period
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// UploadConfig bounds chunked uploads.
type UploadConfig struct {
	ChunkTTL      time.Duration // how long an unassembled chunk survives
	MaxChunkBytes int
	MaxChunks     int
}

// S3Config points at an S3-compatible object store. Storage is optional:
// when Endpoint is empty the upload endpoints answer 503.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether enough settings are present to build a client.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // graceful drain on SIGTERM
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	Session SessionConfig
	Chat    ChatConfig
	Cache   CacheConfig
	Upload  UploadConfig
	S3      S3Config

	// Observability
	OTEL OTELConfig
}
