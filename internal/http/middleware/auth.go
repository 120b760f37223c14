// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file authenticates requests from session tokens minted by the
// identity provider. The token is read from the "Authorization: Bearer"
// header or from the session cookie. A valid token stores the caller's id,
// display name, and role in the Gin context; handlers read them with UserID
// and UserName.
//
// For local development AuthOptions.DevHeaders trusts X-User-ID /
// X-User-Name instead. Never enable it behind a public edge.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-chat/internal/auth"
)

// Context keys for the authenticated identity.
const (
	ctxKeyUserID   = "userID"
	ctxKeyUserName = "userName"
	ctxKeyUserRole = "userRole"
)

// Dev identity headers, honored only with AuthOptions.DevHeaders.
const (
	HeaderDevUserID   = "X-User-ID"
	HeaderDevUserName = "X-User-Name"
)

// SessionParser validates a raw session token.
type SessionParser interface {
	Parse(raw string) (*auth.Claims, error)
}

// AuthOptions configures Auth.
type AuthOptions struct {
	Sessions   SessionParser
	CookieName string
	DevHeaders bool
	// OnUser runs after a successful authentication, e.g. to mirror the
	// profile into the users table. Errors are logged, not returned.
	OnUser func(ctx context.Context, id, name, role string) error
}

// Auth rejects requests without a valid identity with 401.
func Auth(opts AuthOptions) gin.HandlerFunc {
	cookie := opts.CookieName
	if cookie == "" {
		cookie = "session_token"
	}
	return func(c *gin.Context) {
		id, name, role, ok := identify(c, opts, cookie)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}

		c.Set(ctxKeyUserID, id)
		c.Set(ctxKeyUserName, name)
		c.Set(ctxKeyUserRole, role)

		if opts.OnUser != nil {
			if err := opts.OnUser(c.Request.Context(), id, name, role); err != nil {
				LoggerFrom(c).Warn().Err(err).Str("user_id", id).Msg("user sync failed")
			}
		}
		c.Next()
	}
}

func identify(c *gin.Context, opts AuthOptions, cookie string) (id, name, role string, ok bool) {
	raw := bearerToken(c.GetHeader("Authorization"))
	if raw == "" {
		raw, _ = c.Cookie(cookie)
	}
	if raw != "" && opts.Sessions != nil {
		claims, err := opts.Sessions.Parse(raw)
		if err != nil {
			return "", "", "", false
		}
		return claims.UserID(), claims.Name, claims.Role, true
	}
	if opts.DevHeaders {
		id = strings.TrimSpace(c.GetHeader(HeaderDevUserID))
		if id != "" {
			return id, strings.TrimSpace(c.GetHeader(HeaderDevUserName)), "", true
		}
	}
	return "", "", "", false
}

func bearerToken(h string) string {
	const prefix = "bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):])
	}
	return ""
}

// UserID returns the authenticated user id, or "" when unauthenticated.
func UserID(c *gin.Context) string {
	s, _ := c.Get(ctxKeyUserID)
	return asString(s)
}

// UserName returns the authenticated display name, possibly "".
func UserName(c *gin.Context) string {
	s, _ := c.Get(ctxKeyUserName)
	return asString(s)
}
