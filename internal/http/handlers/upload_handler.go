// Upload HTTP handlers.
//
//   - PUT  /uploads/{id}/chunks/{index}   (store one raw chunk)
//   - POST /uploads/{id}/complete         (assemble chunks into an object)
//
// Chunks are scoped to the caller, so two users may use the same upload id.
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-chat/internal/services"
)

// CompleteUploadRequest finishes an upload of TotalChunks chunks.
type CompleteUploadRequest struct {
	TotalChunks int    `json:"totalChunks" binding:"required,min=1" example:"3"`
	Filename    string `json:"filename" binding:"required" example:"guidelines.pdf"`
	ContentType string `json:"contentType" example:"application/pdf"`
}

// CompleteUploadResponse describes the stored object.
type CompleteUploadResponse struct {
	Envelope
	Key         string `json:"key" example:"uploads/u_anna/up_1/guidelines.pdf"`
	Size        int64  `json:"size" example:"1048576"`
	ETag        string `json:"etag,omitempty"`
	ContentType string `json:"contentType" example:"application/pdf"`
}

func (h *Handlers) uploadsEnabled(c *gin.Context) bool {
	if h.uploadSvc == nil || !h.uploadSvc.Enabled() {
		fail(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, services.ErrStorageUnavailable.Error())
		return false
	}
	return true
}

// PutChunk godoc
// @ID          putUploadChunk
// @Summary     Upload one chunk
// @Description Stores a raw chunk for a later complete call. Chunks expire after the configured TTL; re-sending an index replaces it.
// @Tags        Uploads
// @Accept      application/octet-stream
// @Produce     json
// @Security    BearerAuth
// @Param       id     path  string  true  "Upload ID ([A-Za-z0-9_-], up to 64)"
// @Param       index  path  int     true  "Zero-based chunk index"
// @Success     200  {object}  handlers.OKResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     413  {object}  handlers.ErrorResponse  "Chunk too large"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage not configured"
// @Router      /uploads/{id}/chunks/{index} [put]
func (h *Handlers) PutChunk(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser || !h.uploadsEnabled(c) {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chunk index must be an integer")
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "chunk too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read chunk")
		return
	}

	if err := h.uploadSvc.PutChunk(c.Request.Context(), uid, c.Param("id"), index, data); err != nil {
		switch {
		case errors.Is(err, services.ErrChunkTooLarge):
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, err.Error())
		case errors.Is(err, services.ErrInvalidUpload):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrStorageUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, OKResponse{Envelope: success()})
}

// CompleteUpload godoc
// @ID          completeUpload
// @Summary     Complete an upload
// @Description Assembles chunks 0..totalChunks-1 in order, writes the object, and discards the chunks.
// @Tags        Uploads
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                           true  "Upload ID"
// @Param       body  body  handlers.CompleteUploadRequest   true  "Completion payload"
// @Success     200  {object}  handlers.CompleteUploadResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthenticated"
// @Failure     409  {object}  handlers.ErrorResponse  "Chunks missing"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage not configured"
// @Router      /uploads/{id}/complete [post]
func (h *Handlers) CompleteUpload(c *gin.Context) {
	uid, okUser := currentUser(c)
	if !okUser || !h.uploadsEnabled(c) {
		return
	}
	var req CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "totalChunks and filename required")
		return
	}

	res, err := h.uploadSvc.Complete(c.Request.Context(), uid, c.Param("id"), req.TotalChunks, req.Filename, req.ContentType)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUploadIncomplete):
			fail(c, http.StatusConflict, ErrCodeUploadIncomplete, err.Error())
		case errors.Is(err, services.ErrInvalidUpload):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrStorageUnavailable):
			fail(c, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, CompleteUploadResponse{
		Envelope:    success(),
		Key:         res.Key,
		Size:        res.Size,
		ETag:        res.ETag,
		ContentType: res.ContentType,
	})
}
