package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/repo"
	"github.com/tbourn/go-group-chat/internal/services"
)

// ---------- stub-backed mapping tests ----------

func TestGetMessages_QueryParsing(t *testing.T) {
	var got services.WindowQuery
	var gotGroup, gotCaller string
	svc := stubMsgSvc{
		window: func(_ context.Context, groupID, callerID string, q services.WindowQuery) ([]domain.Message, error) {
			gotGroup, gotCaller, got = groupID, callerID, q
			return nil, nil
		},
	}
	r := newRouter(New(stubGroupSvc{}, svc, nil))

	w := do(r, http.MethodGet, "/messages?groupId=g1", "u1", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"success":true,"messages":[]}` {
		t.Fatalf("unexpected: %d %s", w.Code, w.Body.String())
	}
	if gotGroup != "g1" || gotCaller != "u1" || got.CountBefore != nil || got.CountAfter != nil || got.AnchorMessageID != "" {
		t.Fatalf("absent params must stay unset: %q %q %+v", gotGroup, gotCaller, got)
	}

	do(r, http.MethodGet, "/messages?groupId=g1&limitBefore=5&limitAfter=0&messageId=m7", "u1", nil)
	if got.CountBefore == nil || *got.CountBefore != 5 || got.CountAfter == nil || *got.CountAfter != 0 || got.AnchorMessageID != "m7" {
		t.Fatalf("params not forwarded: %+v", got)
	}

	expectError(t, do(r, http.MethodGet, "/messages", "u1", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(r, http.MethodGet, "/messages?groupId=g1&limitBefore=x", "u1", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(r, http.MethodGet, "/messages?groupId=g1&limitAfter=1.5", "u1", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(r, http.MethodGet, "/messages?groupId=g1", "", nil), http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestGetMessages_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrGroupNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrMessageNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrLastReadMissing, http.StatusBadRequest, ErrCodeLastReadMissing},
		{services.ErrInvalidWindow, http.StatusBadRequest, ErrCodeBadRequest},
		{errors.New("db gone"), http.StatusBadRequest, ErrCodeResolveFailed},
	}
	for _, tc := range cases {
		svc := stubMsgSvc{window: func(context.Context, string, string, services.WindowQuery) ([]domain.Message, error) {
			return nil, tc.err
		}}
		r := newRouter(New(stubGroupSvc{}, svc, nil))
		expectError(t, do(r, http.MethodGet, "/messages?groupId=g1", "u1", nil), tc.status, tc.code)
	}
}

func TestSendMessage_Mapping(t *testing.T) {
	svc := stubMsgSvc{
		send: func(_ context.Context, senderID, groupID, content string) (*domain.Message, error) {
			switch groupID {
			case "empty":
				return nil, services.ErrEmptyMessage
			case "long":
				return nil, services.ErrTooLong
			case "missing":
				return nil, services.ErrGroupNotFound
			case "private":
				return nil, services.ErrNotMember
			case "boom":
				return nil, errors.New("db gone")
			}
			return &domain.Message{ID: "m1", GroupID: groupID, SenderID: senderID, Content: content}, nil
		},
	}
	r := newRouter(New(stubGroupSvc{}, svc, nil))

	w := do(r, http.MethodPost, "/chat/send", "u1", map[string]string{"groupId": " g1 ", "message": "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if resp := decode[MessageResponse](t, w); !resp.Success || resp.Message.GroupID != "g1" || resp.Message.SenderID != "u1" {
		t.Fatalf("unexpected: %+v", resp)
	}

	expectError(t, do(r, http.MethodPost, "/chat/send", "u1", map[string]string{"groupId": "g1"}), http.StatusBadRequest, ErrCodeBadRequest)
	cases := []struct {
		group  string
		status int
		code   string
	}{
		{"empty", http.StatusBadRequest, ErrCodeBadRequest},
		{"long", http.StatusBadRequest, ErrCodeBadRequest},
		{"missing", http.StatusNotFound, ErrCodeNotFound},
		{"private", http.StatusForbidden, ErrCodeNotMember},
		{"boom", http.StatusInternalServerError, ErrCodeSendFailed},
	}
	for _, tc := range cases {
		expectError(t, do(r, http.MethodPost, "/chat/send", "u1", map[string]string{"groupId": tc.group, "message": "x"}), tc.status, tc.code)
	}
}

func TestMarkRead_Mapping(t *testing.T) {
	var gotUser string
	svc := stubMsgSvc{
		read: func(_ context.Context, groupID, userID, messageID string) error {
			gotUser = userID
			switch messageID {
			case "gone":
				return services.ErrMessageNotFound
			case "nogroup":
				return services.ErrGroupNotFound
			case "private":
				return services.ErrNotMember
			case "boom":
				return errors.New("db gone")
			}
			return nil
		},
	}
	r := newRouter(New(stubGroupSvc{}, svc, nil))

	w := do(r, http.MethodPost, "/chat/read", "u1", map[string]string{"groupId": "g1", "messageId": "m1"})
	if w.Code != http.StatusOK || gotUser != "u1" {
		t.Fatalf("status=%d user=%q", w.Code, gotUser)
	}
	expectError(t, do(r, http.MethodPost, "/chat/read", "u1", map[string]string{"groupId": "g1"}), http.StatusBadRequest, ErrCodeBadRequest)
	for msg, want := range map[string]struct {
		status int
		code   string
	}{
		"gone":    {http.StatusNotFound, ErrCodeNotFound},
		"nogroup": {http.StatusNotFound, ErrCodeNotFound},
		"private": {http.StatusForbidden, ErrCodeNotMember},
		"boom":    {http.StatusInternalServerError, ErrCodeReadFailed},
	} {
		expectError(t, do(r, http.MethodPost, "/chat/read", "u1", map[string]string{"groupId": "g1", "messageId": msg}), want.status, want.code)
	}
}

func TestSearchMessages(t *testing.T) {
	var gotLimit int
	var gotQuery string
	svc := stubMsgSvc{
		search: func(_ context.Context, groupID, query string, limit int) ([]services.SearchHit, error) {
			gotQuery, gotLimit = query, limit
			switch {
			case strings.TrimSpace(query) == "":
				return nil, services.ErrEmptyQuery
			case groupID == "missing":
				return nil, services.ErrGroupNotFound
			case groupID == "boom":
				return nil, errors.New("db gone")
			}
			return []services.SearchHit{{Message: domain.Message{ID: "m1"}, Score: 0.5}}, nil
		},
	}
	r := newRouter(New(stubGroupSvc{}, svc, nil))

	w := do(r, http.MethodGet, "/chat/groups/g1/search?q=batch+review", "u1", nil)
	resp := decode[SearchResponse](t, w)
	if w.Code != http.StatusOK || len(resp.Results) != 1 || resp.Results[0].Score != 0.5 {
		t.Fatalf("unexpected: %d %s", w.Code, w.Body.String())
	}
	if gotQuery != "batch review" || gotLimit != defaultSearchLimit {
		t.Fatalf("args: %q %d", gotQuery, gotLimit)
	}

	do(r, http.MethodGet, "/chat/groups/g1/search?q=x&limit=999", "u1", nil)
	if gotLimit != maxSearchLimit {
		t.Fatalf("limit should clamp to %d, got %d", maxSearchLimit, gotLimit)
	}
	do(r, http.MethodGet, "/chat/groups/g1/search?q=x&limit=-4", "u1", nil)
	if gotLimit != 1 {
		t.Fatalf("limit should clamp to 1, got %d", gotLimit)
	}

	expectError(t, do(r, http.MethodGet, "/chat/groups/g1/search", "u1", nil), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, do(r, http.MethodGet, "/chat/groups/missing/search?q=x", "u1", nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, do(r, http.MethodGet, "/chat/groups/boom/search?q=x", "u1", nil), http.StatusInternalServerError, ErrCodeSearchFailed)
}

// ---------- sqlite-backed flows ----------

type dbFixture struct {
	groups *services.GroupService
	msgs   *services.MessageService
	group  *domain.Group
}

func newDBFixture(t *testing.T) *dbFixture {
	t.Helper()
	db := newTestDB(t)
	groups := services.NewGroupService(db)
	base := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	n := 0
	msgs := &services.MessageService{DB: db, Now: func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}}
	g, _, err := groups.Create(context.Background(), "pm", "Batch 7", []string{"u1"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return &dbFixture{groups: groups, msgs: msgs, group: g}
}

func TestSendMessage_IdempotentReplay(t *testing.T) {
	f := newDBFixture(t)
	r := newRouter(New(f.groups, f.msgs, nil))
	body := map[string]string{"groupId": f.group.ID, "message": "hello"}

	w1 := do(r, http.MethodPost, "/chat/send", "u1", body, "Idempotency-Key", "send-1")
	if w1.Code != http.StatusOK {
		t.Fatalf("first send: %d %s", w1.Code, w1.Body.String())
	}
	first := decode[MessageResponse](t, w1)
	if w1.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("first send must not be a replay")
	}

	w2 := do(r, http.MethodPost, "/chat/send", "u1", body, "Idempotency-Key", "send-1")
	if w2.Code != http.StatusOK || w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("second send should replay: %d %v", w2.Code, w2.Header())
	}
	if second := decode[MessageResponse](t, w2); second.Message.ID != first.Message.ID {
		t.Fatalf("replay returned %s, want %s", second.Message.ID, first.Message.ID)
	}

	var count int64
	f.msgs.DB.Model(&domain.Message{}).Where("group_id = ?", f.group.ID).Count(&count)
	if count != 1 {
		t.Fatalf("replay must not insert, have %d rows", count)
	}

	other := map[string]string{"groupId": "another-group", "message": "hello"}
	expectError(t, do(r, http.MethodPost, "/chat/send", "u1", other, "Idempotency-Key", "send-1"), http.StatusConflict, ErrCodeConflict)

	// Keys are per user.
	w3 := do(r, http.MethodPost, "/chat/send", "pm", body, "Idempotency-Key", "send-1")
	if w3.Code != http.StatusOK || w3.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("another user's key must not replay: %d", w3.Code)
	}
}

func TestGetMessages_WindowAndETag(t *testing.T) {
	f := newDBFixture(t)
	r := newRouter(New(f.groups, f.msgs, nil))
	ctx := context.Background()

	var ids []string
	for _, c := range []string{"m1", "m2", "m3"} {
		m, err := f.msgs.Send(ctx, "pm", f.group.ID, c)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		ids = append(ids, m.ID)
	}

	path := "/messages?groupId=" + f.group.ID
	w := do(r, http.MethodGet, path, "u1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	resp := decode[WindowResponse](t, w)
	if len(resp.Messages) != 3 || resp.Messages[0].Content != "m1" || resp.Messages[2].Content != "m3" {
		t.Fatalf("never-read caller should get newest oldest-first: %+v", resp.Messages)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag")
	}

	if w := do(r, http.MethodGet, path, "u1", nil, "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	// Moving the read marker changes the window and its tag.
	if w := do(r, http.MethodPost, "/chat/read", "u1", map[string]string{"groupId": f.group.ID, "messageId": ids[0]}); w.Code != http.StatusOK {
		t.Fatalf("mark read: %d %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodGet, path, "u1", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("expected fresh 200 after read marker moved, got %d", w.Code)
	}
	if resp := decode[WindowResponse](t, w); len(resp.Messages) != 2 || resp.Messages[0].Content != "m2" {
		t.Fatalf("expected messages after the marker: %+v", resp.Messages)
	}

	// Explicit anchor: strictly older.
	w = do(r, http.MethodGet, path+"&messageId="+ids[2]+"&limitBefore=5", "u1", nil)
	if resp := decode[WindowResponse](t, w); len(resp.Messages) != 2 || resp.Messages[1].Content != "m2" {
		t.Fatalf("anchored window: %+v", resp.Messages)
	}

	expectError(t, do(r, http.MethodGet, "/messages?groupId=nope", "u1", nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, do(r, http.MethodGet, path+"&messageId=nope", "u1", nil), http.StatusNotFound, ErrCodeNotFound)
	expectError(t, do(r, http.MethodGet, path+"&limitBefore=-1", "u1", nil), http.StatusBadRequest, ErrCodeBadRequest)
}

func TestGetMessages_FailuresAreNotTagged(t *testing.T) {
	f := newDBFixture(t)
	r := newRouter(New(f.groups, f.msgs, nil))
	ctx := context.Background()

	m, err := f.msgs.Send(ctx, "pm", f.group.ID, "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := f.msgs.MarkRead(ctx, f.group.ID, "pm", m.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := f.msgs.DB.Delete(&domain.Message{}, "id = ?", m.ID).Error; err != nil {
		t.Fatalf("delete message: %v", err)
	}

	base := "/messages?groupId=" + f.group.ID
	cases := []struct {
		name   string
		path   string
		user   string
		status int
		code   string
	}{
		{"unknown anchor", base + "&messageId=nope", "u1", http.StatusNotFound, ErrCodeNotFound},
		{"negative count", base + "&limitBefore=-1", "u1", http.StatusBadRequest, ErrCodeBadRequest},
		{"last read deleted", base, "pm", http.StatusBadRequest, ErrCodeLastReadMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodGet, tc.path, tc.user, nil)
			expectError(t, w, tc.status, tc.code)
			if etag := w.Header().Get("ETag"); etag != "" {
				t.Fatalf("error response carried ETag %q", etag)
			}
			// A tag guessed from a successful shape must not turn the error into 304.
			guess := fmt.Sprintf(`W/"window:%s:1::0:nope::"`, f.group.ID)
			expectError(t, do(r, http.MethodGet, tc.path, tc.user, nil, "If-None-Match", guess), tc.status, tc.code)
		})
	}
}

func TestGetMessages_ETagTracksSenderRename(t *testing.T) {
	f := newDBFixture(t)
	r := newRouter(New(f.groups, f.msgs, nil))
	ctx := context.Background()

	if err := repo.UpsertUser(ctx, f.msgs.DB, &domain.User{ID: "pm", Name: "Pat"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := f.msgs.Send(ctx, "pm", f.group.ID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	path := "/messages?groupId=" + f.group.ID
	w := do(r, http.MethodGet, path, "u1", nil)
	etag := w.Header().Get("ETag")
	if w.Code != http.StatusOK || etag == "" {
		t.Fatalf("status=%d etag=%q", w.Code, etag)
	}
	if w := do(r, http.MethodGet, path, "u1", nil, "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("unchanged window should be 304, got %d", w.Code)
	}

	if err := repo.UpsertUser(ctx, f.msgs.DB, &domain.User{ID: "pm", Name: "Pat Lead"}); err != nil {
		t.Fatalf("rename: %v", err)
	}
	w = do(r, http.MethodGet, path, "u1", nil, "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("rename should invalidate the tag, got %d", w.Code)
	}
	if resp := decode[WindowResponse](t, w); len(resp.Messages) != 1 || resp.Messages[0].SenderName != "Pat Lead" {
		t.Fatalf("expected fresh sender name: %+v", resp.Messages)
	}
}

func TestSendMessage_KeyReservation(t *testing.T) {
	f := newDBFixture(t)
	r := newRouter(New(f.groups, f.msgs, nil))
	ctx := context.Background()
	body := map[string]string{"groupId": f.group.ID, "message": "hello"}

	count := func() int64 {
		var n int64
		f.msgs.DB.Model(&domain.Message{}).Where("group_id = ?", f.group.ID).Count(&n)
		return n
	}

	// Another request holds the key: no second message is inserted.
	if _, err := repo.CreateIdempotency(ctx, f.msgs.DB, "u1", f.group.ID, "busy", "", http.StatusAccepted, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	expectError(t, do(r, http.MethodPost, "/chat/send", "u1", body, "Idempotency-Key", "busy"), http.StatusConflict, ErrCodeConflict)
	if n := count(); n != 0 {
		t.Fatalf("held key inserted %d messages", n)
	}

	// A failed send frees its key for the retry.
	miss := map[string]string{"groupId": "nope", "message": "hello"}
	expectError(t, do(r, http.MethodPost, "/chat/send", "u1", miss, "Idempotency-Key", "retry"), http.StatusNotFound, ErrCodeNotFound)
	w := do(r, http.MethodPost, "/chat/send", "u1", body, "Idempotency-Key", "retry")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("retry after failure: %d %s", w.Code, w.Body.String())
	}
	first := decode[MessageResponse](t, w)

	w = do(r, http.MethodPost, "/chat/send", "u1", body, "Idempotency-Key", "retry")
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("second send should replay: %d", w.Code)
	}
	if again := decode[MessageResponse](t, w); again.Message.ID != first.Message.ID {
		t.Fatalf("replay returned %s, want %s", again.Message.ID, first.Message.ID)
	}
	if n := count(); n != 1 {
		t.Fatalf("expected one message, got %d", n)
	}
}
