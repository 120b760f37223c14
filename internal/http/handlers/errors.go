// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase snake_case strings returned in the `code` field
// of the error envelope (see fail() in response.go). Clients branch on them;
// the `error` text is for humans.
//
//	{
//	  "success": false,
//	  "error": "only the group manager may do this",
//	  "code": "forbidden",
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6"
//	}
package handlers

const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodeConflict           = "conflict"
	ErrCodePayloadTooLarge    = "payload_too_large"
	ErrCodeRateLimited        = "rate_limited"
	ErrCodeInternal           = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeMethodNotAllowed   = "method_not_allowed"

	// Domain-specific:
	ErrCodeNotMember        = "not_member"
	ErrCodeLastReadMissing  = "last_read_missing"
	ErrCodeResolveFailed    = "resolve_failed"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeReadFailed       = "read_failed"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeUpdateFailed     = "update_failed"
	ErrCodeDeleteFailed     = "delete_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeSearchFailed     = "search_failed"
	ErrCodeUploadIncomplete = "upload_incomplete"
	ErrCodeUploadFailed     = "upload_failed"
)
