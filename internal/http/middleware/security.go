// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, which hardens JSON responses served
// behind a reverse proxy. Chat history is private to group members, so the
// default cache policy lets a client revalidate with If-None-Match while
// keeping shared caches out.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Cache-Control presets for SecurityOptions.CacheControl.
const (
	CacheRevalidate = "private, no-cache"
	CacheNoStore    = "no-store"
)

// HeaderReplayed marks responses served from a stored idempotent result.
const HeaderReplayed = "Idempotency-Replayed"

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests only.
	EnableHSTS  bool
	HSTSMaxAge  time.Duration // defaults to 180 days
	HSTSPreload bool

	// CacheControl is the default Cache-Control; handlers may override it.
	// Empty leaves the header unset.
	CacheControl string

	// EnablePolicy sends Permissions-Policy and
	// X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool

	// Expose lists response headers browsers may read, besides X-Request-ID.
	Expose []string
}

// SecurityHeaders sets nosniff, frame denial and no-referrer on every
// response, plus the optional headers selected by opt.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains"
	if opt.HSTSPreload {
		hsts += "; preload"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		switch opt.CacheControl {
		case "":
		case CacheNoStore:
			h.Set("Cache-Control", CacheNoStore)
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		default:
			h.Set("Cache-Control", opt.CacheControl)
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		for _, name := range opt.Expose {
			exposeHeader(h, name)
		}

		c.Next()
	}
}

// isHTTPS reports whether r arrived over TLS, directly or through a proxy
// that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	if cur == "" {
		h.Set(hdr, name)
		return
	}
	for _, have := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(have), name) {
			return
		}
	}
	h.Set(hdr, cur+", "+name)
}
