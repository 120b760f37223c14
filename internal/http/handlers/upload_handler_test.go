package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-chat/internal/http/middleware"
	"github.com/tbourn/go-group-chat/internal/services"
)

func TestUploads_Disabled(t *testing.T) {
	r := newRouter(New(stubGroupSvc{}, stubMsgSvc{}, nil))
	expectError(t, do(r, http.MethodPut, "/uploads/up1/chunks/0", "u1", "abc"), http.StatusServiceUnavailable, ErrCodeServiceUnavailable)

	r = newRouter(New(stubGroupSvc{}, stubMsgSvc{}, stubUploadSvc{enabled: false}))
	expectError(t, do(r, http.MethodPost, "/uploads/up1/complete", "u1", map[string]any{"totalChunks": 1, "filename": "a.txt"}), http.StatusServiceUnavailable, ErrCodeServiceUnavailable)

	expectError(t, do(r, http.MethodPut, "/uploads/up1/chunks/0", "", "abc"), http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestPutChunk(t *testing.T) {
	type call struct {
		user, id string
		index    int
		data     string
	}
	var calls []call
	svc := stubUploadSvc{
		enabled: true,
		put: func(_ context.Context, userID, uploadID string, index int, data []byte) error {
			calls = append(calls, call{userID, uploadID, index, string(data)})
			switch uploadID {
			case "big":
				return services.ErrChunkTooLarge
			case "bad":
				return services.ErrInvalidUpload
			case "nostore":
				return services.ErrStorageUnavailable
			case "boom":
				return errors.New("cache down")
			}
			return nil
		},
	}
	r := newRouter(New(stubGroupSvc{}, stubMsgSvc{}, svc))

	w := do(r, http.MethodPut, "/uploads/up1/chunks/2", "u1", []byte("chunk-bytes"))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(calls) != 1 || calls[0] != (call{"u1", "up1", 2, "chunk-bytes"}) {
		t.Fatalf("unexpected calls: %+v", calls)
	}

	expectError(t, do(r, http.MethodPut, "/uploads/up1/chunks/two", "u1", "x"), http.StatusBadRequest, ErrCodeBadRequest)
	for id, want := range map[string]struct {
		status int
		code   string
	}{
		"big":     {http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge},
		"bad":     {http.StatusBadRequest, ErrCodeBadRequest},
		"nostore": {http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		"boom":    {http.StatusInternalServerError, ErrCodeUploadFailed},
	} {
		expectError(t, do(r, http.MethodPut, "/uploads/"+id+"/chunks/0", "u1", "x"), want.status, want.code)
	}
}

func TestPutChunk_BodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	called := false
	h := New(stubGroupSvc{}, stubMsgSvc{}, stubUploadSvc{
		enabled: true,
		put: func(context.Context, string, string, int, []byte) error {
			called = true
			return nil
		},
	})
	r := gin.New()
	r.Use(middleware.RequestID(), func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 8)
		c.Next()
	}, middleware.Auth(middleware.AuthOptions{DevHeaders: true}))
	r.PUT("/uploads/:id/chunks/:index", h.PutChunk)

	req := httptest.NewRequest(http.MethodPut, "/uploads/up1/chunks/0", bytes.NewReader(bytes.Repeat([]byte("a"), 64)))
	req.Header.Set(middleware.HeaderDevUserID, "u1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	expectError(t, w, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge)
	if called {
		t.Fatalf("service must not see an oversized chunk")
	}
}

func TestCompleteUpload(t *testing.T) {
	svc := stubUploadSvc{
		enabled: true,
		complete: func(_ context.Context, userID, uploadID string, total int, filename, contentType string) (*services.UploadResult, error) {
			switch uploadID {
			case "partial":
				return nil, services.ErrUploadIncomplete
			case "bad":
				return nil, services.ErrInvalidUpload
			case "nostore":
				return nil, services.ErrStorageUnavailable
			case "boom":
				return nil, errors.New("put object: timeout")
			}
			return &services.UploadResult{
				Key:         "uploads/" + userID + "/" + uploadID + "/" + filename,
				Size:        int64(total * 10),
				ETag:        "abc123",
				ContentType: contentType,
			}, nil
		},
	}
	r := newRouter(New(stubGroupSvc{}, stubMsgSvc{}, svc))
	body := map[string]any{"totalChunks": 3, "filename": "notes.txt", "contentType": "text/plain"}

	w := do(r, http.MethodPost, "/uploads/up1/complete", "u1", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	resp := decode[CompleteUploadResponse](t, w)
	if !resp.Success || resp.Key != "uploads/u1/up1/notes.txt" || resp.Size != 30 || resp.ETag != "abc123" || resp.ContentType != "text/plain" {
		t.Fatalf("unexpected: %+v", resp)
	}

	expectError(t, do(r, http.MethodPost, "/uploads/up1/complete", "u1", map[string]any{"filename": "a"}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(r, http.MethodPost, "/uploads/up1/complete", "u1", map[string]any{"totalChunks": 0, "filename": "a"}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(r, http.MethodPost, "/uploads/up1/complete", "u1", map[string]any{"totalChunks": 1}), http.StatusBadRequest, ErrCodeBadRequest)

	for id, want := range map[string]struct {
		status int
		code   string
	}{
		"partial": {http.StatusConflict, ErrCodeUploadIncomplete},
		"bad":     {http.StatusBadRequest, ErrCodeBadRequest},
		"nostore": {http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		"boom":    {http.StatusInternalServerError, ErrCodeUploadFailed},
	} {
		expectError(t, do(r, http.MethodPost, "/uploads/"+id+"/complete", "u1", body), want.status, want.code)
	}
}
