package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvConfigFile names an optional YAML file. Its keys are the lower-case
// environment variable names (port, rate_rps, ...); set variables win.
const EnvConfigFile = "CONFIG_FILE"

var defaults = map[string]any{
	"port":                        "8080",
	"read_timeout":                15 * time.Second,
	"read_header_timeout":         10 * time.Second,
	"write_timeout":               20 * time.Second,
	"idle_timeout":                60 * time.Second,
	"shutdown_timeout":            10 * time.Second,
	"max_header_bytes":            1 << 20,
	"gin_mode":                    "release",
	"log_level":                   "info",
	"log_pretty":                  false,
	"swagger_enabled":             false,
	"api_base_path":               "/api/v1",
	"db_path":                     "chat.db",
	"rate_rps":                    10.0,
	"rate_burst":                  20,
	"cors_allowed_origins":        "",
	"enable_hsts":                 false,
	"hsts_max_age":                180 * 24 * time.Hour,
	"idempotency_ttl":             24 * time.Hour,
	"session_secret":              "",
	"session_issuer":              "",
	"session_cookie":              "session_token",
	"auth_dev_headers":            false,
	"message_max_runes":           4000,
	"read_marker_monotonic":       false,
	"cache_backend":               "memory",
	"cache_ttl":                   10 * time.Minute,
	"cache_sweep_interval":        time.Minute,
	"redis_addr":                  "localhost:6379",
	"redis_password":              "",
	"redis_db":                    0,
	"upload_chunk_ttl":            15 * time.Minute,
	"upload_max_chunk_bytes":      1 << 20,
	"upload_max_chunks":           64,
	"s3_endpoint":                 "",
	"s3_region":                   "",
	"s3_bucket":                   "",
	"s3_access_key":               "",
	"s3_secret_key":               "",
	"s3_use_ssl":                  false,
	"otel_enabled":                false,
	"otel_exporter_otlp_endpoint": "localhost:4317",
	"otel_exporter_otlp_insecure": true,
	"otel_service_name":           "go-group-chat",
	"otel_traces_sampler_arg":     1.0,
}

// MustLoad is Load for process startup; it panics on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load resolves defaults < CONFIG_FILE < environment, then normalizes and
// validates the result. Values that do not parse are reported together.
func Load() (Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	r := &reader{v: v}
	cfg := Config{
		Port:              r.str("port"),
		ReadTimeout:       r.dur("read_timeout"),
		ReadHeaderTimeout: r.dur("read_header_timeout"),
		WriteTimeout:      r.dur("write_timeout"),
		IdleTimeout:       r.dur("idle_timeout"),
		ShutdownTimeout:   r.dur("shutdown_timeout"),
		MaxHeaderBytes:    r.int("max_header_bytes"),
		GinMode:           strings.ToLower(r.str("gin_mode")),

		LogLevel:       strings.ToLower(r.str("log_level")),
		LogPretty:      r.bool("log_pretty"),
		SwaggerEnabled: r.bool("swagger_enabled"),
		APIBasePath:    normalizeBasePath(r.str("api_base_path")),

		DBPath: r.str("db_path"),

		RateRPS:   r.float("rate_rps"),
		RateBurst: r.int("rate_burst"),

		CORS: CORSConfig{AllowedOrigins: r.list("cors_allowed_origins")},
		Security: SecurityConfig{
			EnableHSTS: r.bool("enable_hsts"),
			HSTSMaxAge: r.dur("hsts_max_age"),
		},

		IdempotencyTTL: r.dur("idempotency_ttl"),

		Session: SessionConfig{
			Secret:     r.str("session_secret"),
			Issuer:     r.str("session_issuer"),
			CookieName: r.str("session_cookie"),
			DevHeaders: r.bool("auth_dev_headers"),
		},
		Chat: ChatConfig{
			MaxMessageRunes:     r.int("message_max_runes"),
			ReadMarkerMonotonic: r.bool("read_marker_monotonic"),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(r.str("cache_backend")),
			TTL:           r.dur("cache_ttl"),
			SweepInterval: r.dur("cache_sweep_interval"),
			RedisAddr:     r.str("redis_addr"),
			RedisPassword: r.str("redis_password"),
			RedisDB:       r.int("redis_db"),
		},
		Upload: UploadConfig{
			ChunkTTL:      r.dur("upload_chunk_ttl"),
			MaxChunkBytes: r.int("upload_max_chunk_bytes"),
			MaxChunks:     r.int("upload_max_chunks"),
		},
		S3: S3Config{
			Endpoint:  r.str("s3_endpoint"),
			Region:    r.str("s3_region"),
			Bucket:    r.str("s3_bucket"),
			AccessKey: r.str("s3_access_key"),
			SecretKey: r.str("s3_secret_key"),
			UseSSL:    r.bool("s3_use_ssl"),
		},
		OTEL: OTELConfig{
			Enabled:     r.bool("otel_enabled"),
			Endpoint:    r.str("otel_exporter_otlp_endpoint"),
			Insecure:    r.bool("otel_exporter_otlp_insecure"),
			ServiceName: r.str("otel_service_name"),
			SampleRatio: r.float("otel_traces_sampler_arg"),
		},
	}
	if len(r.errs) > 0 {
		return cfg, errors.Join(r.errs...)
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	switch {
	case !oneOf(cfg.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"):
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	case cfg.Port == "":
		return errors.New("PORT must not be empty")
	case cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 ||
		cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0:
		return errors.New("server timeouts must be positive durations")
	case cfg.MaxHeaderBytes <= 0:
		return errors.New("MAX_HEADER_BYTES must be > 0")
	case cfg.DBPath == "":
		return errors.New("DB_PATH must not be empty")
	case cfg.RateRPS < 0:
		return errors.New("RATE_RPS must be >= 0")
	case cfg.RateBurst < 1:
		return errors.New("RATE_BURST must be >= 1")
	case cfg.Security.HSTSMaxAge < 0:
		return errors.New("HSTS_MAX_AGE must be >= 0")
	case cfg.IdempotencyTTL <= 0:
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	case cfg.Session.Secret == "" && !cfg.Session.DevHeaders:
		return errors.New("SESSION_SECRET is required unless AUTH_DEV_HEADERS is enabled")
	case cfg.Session.CookieName == "":
		return errors.New("SESSION_COOKIE must not be empty")
	case cfg.Chat.MaxMessageRunes < 1:
		return errors.New("MESSAGE_MAX_RUNES must be >= 1")
	case !oneOf(cfg.Cache.Backend, "memory", "redis"):
		return errors.New("CACHE_BACKEND must be one of: memory, redis")
	case cfg.Cache.TTL <= 0 || cfg.Cache.SweepInterval <= 0:
		return errors.New("CACHE_TTL and CACHE_SWEEP_INTERVAL must be > 0")
	case cfg.Upload.ChunkTTL <= 0:
		return errors.New("UPLOAD_CHUNK_TTL must be > 0")
	case cfg.Upload.MaxChunkBytes < 1 || cfg.Upload.MaxChunks < 1:
		return errors.New("UPLOAD_MAX_CHUNK_BYTES and UPLOAD_MAX_CHUNKS must be >= 1")
	case cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1:
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// reader converts viper values and collects conversion errors under the
// environment variable name.
type reader struct {
	v    *viper.Viper
	errs []error
}

func (r *reader) fail(key string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s: %w", strings.ToUpper(key), err))
}

func (r *reader) str(key string) string {
	return strings.TrimSpace(r.v.GetString(key))
}

func (r *reader) int(key string) int {
	n, err := cast.ToIntE(r.v.Get(key))
	if err != nil {
		r.fail(key, err)
	}
	return n
}

func (r *reader) float(key string) float64 {
	f, err := cast.ToFloat64E(r.v.Get(key))
	if err != nil {
		r.fail(key, err)
	}
	return f
}

func (r *reader) dur(key string) time.Duration {
	raw := r.v.Get(key)
	if s, ok := raw.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			r.fail(key, err)
		}
		return d
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		r.fail(key, err)
	}
	return d
}

// bool also accepts yes/no, y/n and on/off.
func (r *reader) bool(key string) bool {
	raw := r.v.Get(key)
	if s, ok := raw.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
		r.fail(key, fmt.Errorf("invalid boolean %q", s))
		return false
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		r.fail(key, err)
	}
	return b
}

// list reads a comma-separated string or a YAML sequence.
func (r *reader) list(key string) []string {
	raw := r.v.Get(key)
	if s, ok := raw.(string); ok {
		return splitCSV(s)
	}
	items, err := cast.ToStringSliceE(raw)
	if err != nil {
		r.fail(key, err)
		return nil
	}
	return splitCSV(strings.Join(items, ","))
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// empty becomes "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
