package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/http/middleware"
	"github.com/tbourn/go-group-chat/internal/repo"
	"github.com/tbourn/go-group-chat/internal/services"
)

// ---------- test DB ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ---------- stubs ----------

type stubGroupSvc struct {
	create func(ctx context.Context, managerID, name string, memberIDs []string) (*domain.Group, []domain.UserGroup, error)
	edit   func(ctx context.Context, actorID, groupID string, name *string, memberIDs []string) (*domain.Group, error)
	del    func(ctx context.Context, actorID, groupID string) error
	get    func(ctx context.Context, userID, groupID string) (*domain.Group, error)
	list   func(ctx context.Context, userID string) ([]services.GroupSummary, error)
}

func (s stubGroupSvc) Create(ctx context.Context, managerID, name string, memberIDs []string) (*domain.Group, []domain.UserGroup, error) {
	return s.create(ctx, managerID, name, memberIDs)
}

func (s stubGroupSvc) EditMembership(ctx context.Context, actorID, groupID string, name *string, memberIDs []string) (*domain.Group, error) {
	return s.edit(ctx, actorID, groupID, name, memberIDs)
}

func (s stubGroupSvc) Delete(ctx context.Context, actorID, groupID string) error {
	return s.del(ctx, actorID, groupID)
}

func (s stubGroupSvc) Get(ctx context.Context, userID, groupID string) (*domain.Group, error) {
	return s.get(ctx, userID, groupID)
}

func (s stubGroupSvc) ListForUser(ctx context.Context, userID string) ([]services.GroupSummary, error) {
	return s.list(ctx, userID)
}

type stubMsgSvc struct {
	send   func(ctx context.Context, senderID, groupID, content string) (*domain.Message, error)
	window func(ctx context.Context, groupID, callerID string, q services.WindowQuery) ([]domain.Message, error)
	read   func(ctx context.Context, groupID, userID, messageID string) error
	search func(ctx context.Context, groupID, query string, limit int) ([]services.SearchHit, error)
}

func (s stubMsgSvc) Send(ctx context.Context, senderID, groupID, content string) (*domain.Message, error) {
	return s.send(ctx, senderID, groupID, content)
}

func (s stubMsgSvc) ResolveWindow(ctx context.Context, groupID, callerID string, q services.WindowQuery) ([]domain.Message, error) {
	return s.window(ctx, groupID, callerID, q)
}

func (s stubMsgSvc) MarkRead(ctx context.Context, groupID, userID, messageID string) error {
	return s.read(ctx, groupID, userID, messageID)
}

func (s stubMsgSvc) Search(ctx context.Context, groupID, query string, limit int) ([]services.SearchHit, error) {
	return s.search(ctx, groupID, query, limit)
}

type stubUploadSvc struct {
	enabled  bool
	put      func(ctx context.Context, userID, uploadID string, index int, data []byte) error
	complete func(ctx context.Context, userID, uploadID string, total int, filename, contentType string) (*services.UploadResult, error)
}

func (s stubUploadSvc) Enabled() bool { return s.enabled }

func (s stubUploadSvc) PutChunk(ctx context.Context, userID, uploadID string, index int, data []byte) error {
	return s.put(ctx, userID, uploadID, index, data)
}

func (s stubUploadSvc) Complete(ctx context.Context, userID, uploadID string, total int, filename, contentType string) (*services.UploadResult, error) {
	return s.complete(ctx, userID, uploadID, total, filename, contentType)
}

// ---------- router + request helpers ----------

// newRouter mounts h the way the real router does, with dev-header auth.
func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	api := r.Group("", middleware.Auth(middleware.AuthOptions{DevHeaders: true}))
	api.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	api.GET("/messages", h.GetMessages)
	api.POST("/chat/send", h.SendMessage)
	api.POST("/chat/read", h.MarkRead)
	api.POST("/chat/group/create", h.CreateGroup)
	api.PUT("/chat/group/edit", h.EditGroup)
	api.DELETE("/chat/group/:id", h.DeleteGroup)
	api.GET("/chat/groups", h.ListGroups)
	api.GET("/chat/groups/:id", h.GetGroup)
	api.GET("/chat/groups/:id/search", h.SearchMessages)
	api.PUT("/uploads/:id/chunks/:index", h.PutChunk)
	api.POST("/uploads/:id/complete", h.CompleteUpload)
	return r
}

// do sends a request as user (empty = anonymous) with an optional JSON body.
func do(r http.Handler, method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.HeaderDevUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (%s)", v, err, w.Body.String())
	}
	return v
}

// expectError asserts status and code of an error envelope.
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	e := decode[ErrorResponse](t, w)
	if e.Success || e.Code != code || e.RequestID == "" {
		t.Fatalf("unexpected error body: %+v", e)
	}
}
