// Package handlers provides HTTP handler implementations for the public API.
//
// Every response carries a boolean `success`. Failures add `error`, `code`
// and `request_id`:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "success": false,
//	  "error": "group not found",
//	  "code": "not_found",
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Successes embed Envelope next to their payload:
//
//	HTTP/1.1 200 OK
//	{ "success": true, "message": { "id": "…", "content": "hi" } }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-chat/internal/http/middleware"
)

// Envelope is embedded in every success response.
type Envelope struct {
	Success bool `json:"success" example:"true"`
}

// OKResponse is a success without payload.
type OKResponse struct {
	Envelope
}

func success() Envelope { return Envelope{Success: true} }

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	Success bool `json:"success" example:"false"`
	// Human-readable message (safe to show to users)
	Error string `json:"error" example:"group not found"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// fail aborts the request with the error envelope. 5xx are logged with the
// request-scoped logger and answered with a generic message for 500.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
		if status == http.StatusInternalServerError {
			msg = "internal server error"
		}
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: middleware.RequestIDFrom(c),
	})
}

// Fail is the exported variant of fail() for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
