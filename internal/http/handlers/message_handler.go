// Message HTTP handlers.
//
// This file exposes REST endpoints for group messages:
//   - GET  /messages                  (history window, anchored or read-marker based)
//   - POST /chat/send                 (append a message)
//   - POST /chat/read                 (move the caller's read marker)
//   - GET  /chat/groups/{id}/search   (rank recent messages against a query)
//
// Handlers are transport-thin:
//   - validate & normalize inputs
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// send exists for (user, key), the handler returns that recorded message and
// sets `Idempotency-Replayed: true`. The key is reserved before the insert, so
// a concurrent request with the same key gets 409 instead of a second message.
// Reusing a key for another group is also a 409.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/http/middleware"
	"github.com/tbourn/go-group-chat/internal/repo"
	"github.com/tbourn/go-group-chat/internal/services"
	"github.com/tbourn/go-group-chat/internal/utils"
)

const (
	idempotencyTTL = 24 * time.Hour

	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
type SendMessageRequest struct {
	GroupID string `json:"groupId" binding:"required" example:"4b1f7f1e-3f0a-4c53-9a69-2a7c3d3f4f10"`
	Message string `json:"message" binding:"required" example:"Batch 7 is ready for review"`
}

// MessageResponse wraps a single message.
type MessageResponse struct {
	Envelope
	Message *domain.Message `json:"message"`
}

// MarkReadRequest is the JSON payload for moving a read marker.
type MarkReadRequest struct {
	GroupID   string `json:"groupId" binding:"required" example:"4b1f7f1e-3f0a-4c53-9a69-2a7c3d3f4f10"`
	MessageID string `json:"messageId" binding:"required" example:"9d2c5b8a-6f1e-4e0b-8a37-1c2d3e4f5a6b"`
}

// WindowResponse carries a message window, oldest first.
type WindowResponse struct {
	Envelope
	Messages []domain.Message `json:"messages"`
}

// SearchResponse carries ranked search hits, best first.
type SearchResponse struct {
	Envelope
	Results []services.SearchHit `json:"results"`
}

//
// Handlers
//

// GetMessages godoc
// @ID          getMessages
// @Summary     Fetch a message window
// @Description With messageId: up to limitBefore messages strictly older than it.
// @Description Without: anchored on the caller's read marker; never-read callers get the newest limitAfter messages.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       groupId      query  string  true   "Group ID"
// @Param       messageId    query  string  false  "Explicit anchor message ID"
// @Param       limitBefore  query  int     false  "Messages before the anchor"  minimum(0) maximum(100) default(0)
// @Param       limitAfter   query  int     false  "Messages after the anchor"   minimum(0) maximum(100) default(20)
// @Success     200  {object}  handlers.WindowResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation or resolver failure"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Group or anchor not found"
// @Router      /messages [get]
func (h *Handlers) GetMessages(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	ctx := c.Request.Context()

	groupID := strings.TrimSpace(c.Query("groupId"))
	if groupID == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "groupId required")
		return
	}
	before, err := utils.OptionalInt(c.Query("limitBefore"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limitBefore must be an integer")
		return
	}
	after, err := utils.OptionalInt(c.Query("limitAfter"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limitAfter must be an integer")
		return
	}
	q := services.WindowQuery{
		AnchorMessageID: strings.TrimSpace(c.Query("messageId")),
		CountBefore:     before,
		CountAfter:      after,
	}

	msgs, err := h.msgSvc.ResolveWindow(ctx, groupID, uid, q)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGroupNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case errors.Is(err, services.ErrLastReadMissing):
			fail(c, http.StatusBadRequest, ErrCodeLastReadMissing, err.Error())
		case errors.Is(err, services.ErrInvalidWindow):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			middleware.LoggerFrom(c).Warn().Err(err).Str("group_id", groupID).Msg("resolve window failed")
			fail(c, http.StatusBadRequest, ErrCodeResolveFailed, "could not resolve message window")
		}
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	// Only resolved windows are tagged; failures never revalidate to 304.
	if etag, tagged := h.windowETag(c, groupID, uid, msgs); tagged {
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}
	ok(c, http.StatusOK, WindowResponse{Envelope: success(), Messages: msgs})
}

// windowETag tags a resolved window by the group's last seq, the caller's
// read marker, the latest profile change among its senders and the query.
func (h *Handlers) windowETag(c *gin.Context, groupID, uid string, msgs []domain.Message) (string, bool) {
	db := h.db()
	if db == nil {
		return "", false
	}
	ctx := c.Request.Context()
	lastSeq, lastRead, err := repo.WindowStats(ctx, db, groupID, uid)
	if err != nil {
		return "", false
	}
	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.SenderID)
	}
	changed, err := repo.SendersUpdatedAt(ctx, db, senders)
	if err != nil {
		return "", false
	}
	var stamp int64
	if !changed.IsZero() {
		stamp = changed.UnixNano()
	}
	return fmt.Sprintf(`W/"window:%s:%d:%s:%d:%s:%s:%s"`, groupID, lastSeq, lastRead, stamp,
		c.Query("messageId"), c.Query("limitBefore"), c.Query("limitAfter")), true
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Appends a message to a group the caller belongs to.
// @Description Supports idempotency via the Idempotency-Key header (same key → same message).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Idempotency key in use or reused for another group"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/send [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	ctx := c.Request.Context()

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "groupId and message required")
		return
	}
	groupID := strings.TrimSpace(req.GroupID)
	db := h.db()

	// Idempotency: replay a finished send, or reserve the key so a
	// concurrent retry cannot insert a second message.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	reserved := false
	if idemKey != "" && db != nil {
		if h.replaySend(c, uid, groupID, idemKey) {
			return
		}
		_, err := repo.CreateIdempotency(ctx, db, uid, groupID, idemKey, "", http.StatusAccepted, idempotencyTTL)
		switch {
		case err == nil:
			reserved = true
		case errors.Is(err, repo.ErrDuplicate):
			if !h.replaySend(c, uid, groupID, idemKey) {
				fail(c, http.StatusConflict, ErrCodeConflict, "Idempotency-Key is in use")
			}
			return
		default:
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency key not reserved")
		}
	}

	m, err := h.msgSvc.Send(ctx, uid, groupID, req.Message)
	if err != nil {
		if reserved {
			if rerr := repo.ReleaseIdempotency(ctx, db, uid, idemKey); rerr != nil {
				middleware.LoggerFrom(c).Warn().Err(rerr).Msg("idempotency reservation not released")
			}
		}
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		case errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrGroupNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		case errors.Is(err, services.ErrNotMember):
			fail(c, http.StatusForbidden, ErrCodeNotMember, err.Error())
		default:
			middleware.LoggerFrom(c).Error().Err(err).Str("group_id", groupID).Msg("send rolled back")
			fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		}
		return
	}

	if reserved {
		if err := repo.CompleteIdempotency(ctx, db, uid, idemKey, m.ID, http.StatusOK); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusOK, MessageResponse{Envelope: success(), Message: m})
}

// replaySend answers from the live record for (uid, key) and reports
// whether a response was written. A pending reservation or a key bound to
// another group is a 409.
func (h *Handlers) replaySend(c *gin.Context, uid, groupID, key string) bool {
	ctx := c.Request.Context()
	rec, err := repo.GetIdempotency(ctx, h.db(), uid, key, time.Now().UTC())
	if err != nil || rec == nil {
		return false
	}
	switch {
	case rec.GroupID != groupID:
		fail(c, http.StatusConflict, ErrCodeConflict, "Idempotency-Key already used for another group")
	case rec.MessageID == "":
		fail(c, http.StatusConflict, ErrCodeConflict, "Idempotency-Key is in use")
	default:
		prev, err := repo.GetMessage(ctx, h.db(), rec.MessageID)
		if err != nil {
			fail(c, http.StatusConflict, ErrCodeConflict, "replayed message no longer exists")
			return true
		}
		c.Header(middleware.HeaderReplayed, "true")
		ok(c, http.StatusOK, MessageResponse{Envelope: success(), Message: prev})
	}
	return true
}

// MarkRead godoc
// @ID          markRead
// @Summary     Move the caller's read marker
// @Description Points the caller's read marker at a message of the group. Last write wins unless the server runs with monotonic markers.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.MarkReadRequest  true  "Read payload"
// @Success     200   {object}  handlers.OKResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     403   {object}  handlers.ErrorResponse  "Not a member"
// @Failure     404   {object}  handlers.ErrorResponse  "Group or message not found"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser {
		return
	}
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "groupId and messageId required")
		return
	}

	err := h.msgSvc.MarkRead(c.Request.Context(), strings.TrimSpace(req.GroupID), uid, strings.TrimSpace(req.MessageID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGroupNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		case errors.Is(err, services.ErrMessageNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case errors.Is(err, services.ErrNotMember):
			fail(c, http.StatusForbidden, ErrCodeNotMember, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeReadFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, OKResponse{Envelope: success()})
}

// SearchMessages godoc
// @ID          searchMessages
// @Summary     Search recent messages
// @Description Ranks the group's most recent messages by token overlap with q.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id     path   string  true   "Group ID"
// @Param       q      query  string  true   "Query text"
// @Param       limit  query  int     false  "Max results"  minimum(1) maximum(50) default(10)
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     404  {object}  handlers.ErrorResponse  "Group not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/groups/{id}/search [get]
func (h *Handlers) SearchMessages(c *gin.Context) {
	if _, okUser := currentUser(c); !okUser {
		return
	}
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), defaultSearchLimit), 1, maxSearchLimit)

	hits, err := h.msgSvc.Search(c.Request.Context(), c.Param("id"), c.Query("q"), limit)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyQuery):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		case errors.Is(err, services.ErrGroupNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "group not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSearchFailed, err.Error())
		}
		return
	}
	if hits == nil {
		hits = []services.SearchHit{}
	}
	ok(c, http.StatusOK, SearchResponse{Envelope: success(), Results: hits})
}
