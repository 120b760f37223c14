// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns chat messages: sending, resolving history windows anchored on an
// explicit message or on the caller's read marker, updating read markers, and
// searching recent history.
//
// Ordering inside a group uses the per-group seq assigned at send time. The
// send transaction clamps sent_at so seq order and sent_at order agree.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include group/user identifiers and window parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/cache"
	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/repo"
	"github.com/tbourn/go-group-chat/internal/search"
)

const (
	DefaultCountBefore = 0
	DefaultCountAfter  = 20
	DefaultMaxWindow   = 100

	defaultSearchDepth = 500
	defaultSearchLimit = 10
)

// WindowQuery selects a slice of a group's history. Nil counts take the
// defaults (DefaultCountBefore, DefaultCountAfter).
type WindowQuery struct {
	AnchorMessageID string
	CountBefore     *int
	CountAfter      *int
}

// SearchHit is one ranked search match.
type SearchHit struct {
	Message domain.Message `json:"message"`
	Score   float64        `json:"score"`
}

// MessageService coordinates message persistence and history windows.
type MessageService struct {
	DB *gorm.DB

	// Users caches sender profiles; nil disables caching.
	Users *cache.UserNames

	// MaxMessageRunes caps message length; 0 disables the check.
	MaxMessageRunes int
	// MonotonicReadMarkers makes MarkRead advance-only.
	MonotonicReadMarkers bool
	// MaxWindow caps CountBefore and CountAfter.
	MaxWindow int
	// SearchDepth is how many recent messages Search indexes.
	SearchDepth int

	// Now is the clock used for sent_at; defaults to time.Now.
	Now func() time.Time
}

// Send validates content, checks the group and the sender's membership, and
// appends the message in one transaction.
func (s *MessageService) Send(ctx context.Context, senderID, groupID, content string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", senderID),
		),
	)
	defer span.End()

	content = strings.TrimSpace(norm.NFC.String(content))
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(content) > s.MaxMessageRunes {
		return nil, ErrTooLong
	}

	var m *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := repo.GroupExists(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrGroupNotFound
		}
		member, err := repo.IsMember(ctx, tx, groupID, senderID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotMember
		}
		m, err = repo.CreateMessage(ctx, tx, groupID, senderID, content, s.now())
		if errors.Is(err, repo.ErrNotFound) {
			return ErrGroupNotFound
		}
		return err
	})
	if err != nil {
		if !isExpected(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "send")
		}
		return nil, err
	}

	m.SenderName = s.senderName(ctx, senderID)
	span.SetAttributes(
		attribute.String("message.id", m.ID),
		attribute.Int64("message.seq", m.Seq),
	)
	return m, nil
}

// ResolveWindow returns a bounded, oldest-first slice of groupID's history.
//
// With an anchor it returns up to CountBefore messages strictly older than
// the anchor and ignores CountAfter. Without one it anchors on callerID's
// read marker: no marker yields the newest CountAfter messages; a marker
// with CountBefore == 0 yields up to CountAfter messages newer than it; a
// marker with CountBefore > 0 yields the older slice followed by the marker
// message and up to CountAfter-1 newer ones.
func (s *MessageService) ResolveWindow(ctx context.Context, groupID, callerID string, q WindowQuery) ([]domain.Message, error) {
	before, after, err := s.windowCounts(q)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "ResolveWindow",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", callerID),
			attribute.Bool("window.anchored", q.AnchorMessageID != ""),
			attribute.Int("window.before", before),
			attribute.Int("window.after", after),
		),
	)
	defer span.End()

	out, err := s.resolve(ctx, groupID, callerID, q.AnchorMessageID, before, after)
	if err != nil {
		if !isExpected(err) && !errors.Is(err, ErrLastReadMissing) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve window")
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int("window.size", len(out)))
	return out, nil
}

func (s *MessageService) resolve(ctx context.Context, groupID, callerID, anchorID string, before, after int) ([]domain.Message, error) {
	exists, err := repo.GroupExists(ctx, s.DB, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrGroupNotFound
	}

	if anchorID != "" {
		anchor, err := repo.GetGroupMessage(ctx, s.DB, groupID, anchorID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
		return repo.ListBefore(ctx, s.DB, groupID, anchor.Seq, before)
	}

	ug, err := repo.GetUserGroup(ctx, s.DB, callerID, groupID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if ug == nil || ug.LastReadMessageID == nil {
		return repo.ListLatest(ctx, s.DB, groupID, after)
	}

	lastRead, err := repo.GetGroupMessage(ctx, s.DB, groupID, *ug.LastReadMessageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrLastReadMissing
		}
		return nil, err
	}

	if before == 0 {
		return repo.ListAfter(ctx, s.DB, groupID, lastRead.Seq, after, false)
	}
	older, err := repo.ListBefore(ctx, s.DB, groupID, lastRead.Seq, before)
	if err != nil {
		return nil, err
	}
	newer, err := repo.ListAfter(ctx, s.DB, groupID, lastRead.Seq, after, true)
	if err != nil {
		return nil, err
	}
	return append(older, newer...), nil
}

func (s *MessageService) windowCounts(q WindowQuery) (before, after int, err error) {
	before, after = DefaultCountBefore, DefaultCountAfter
	if q.CountBefore != nil {
		before = *q.CountBefore
	}
	if q.CountAfter != nil {
		after = *q.CountAfter
	}
	if before < 0 || after < 0 {
		return 0, 0, ErrInvalidWindow
	}
	max := s.maxWindow()
	return min(before, max), min(after, max), nil
}

// MarkRead points userID's read marker in groupID at messageID. The message
// must belong to the group and the user must be a member. By default the
// last write wins; with MonotonicReadMarkers set the marker only advances.
func (s *MessageService) MarkRead(ctx context.Context, groupID, userID, messageID string) error {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", userID),
			attribute.String("message.id", messageID),
			attribute.Bool("read_marker.monotonic", s.MonotonicReadMarkers),
		),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := repo.GroupExists(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrGroupNotFound
		}
		if _, err := repo.GetGroupMessage(ctx, tx, groupID, messageID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		member, err := repo.IsMember(ctx, tx, groupID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotMember
		}
		if s.MonotonicReadMarkers {
			return repo.SetLastReadMonotonic(ctx, tx, userID, groupID, messageID)
		}
		return repo.SetLastRead(ctx, tx, userID, groupID, messageID)
	})
	if err != nil && !isExpected(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read")
	}
	return err
}

// Search ranks the group's most recent messages against query and returns
// up to limit hits, best first.
func (s *MessageService) Search(ctx context.Context, groupID, query string, limit int) ([]SearchHit, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	query = strings.TrimSpace(norm.NFC.String(query))
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if max := s.maxWindow(); limit > max {
		limit = max
	}

	exists, err := repo.GroupExists(ctx, s.DB, groupID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrGroupNotFound
	}

	depth := s.SearchDepth
	if depth <= 0 {
		depth = defaultSearchDepth
	}
	recent, err := repo.ListLatest(ctx, s.DB, groupID, depth)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Message, len(recent))
	docs := make([]search.Document, 0, len(recent))
	for _, m := range recent {
		byID[m.ID] = m
		docs = append(docs, search.Document{ID: m.ID, Text: m.Content})
	}

	results := search.NewIndex(docs).TopK(query, limit)
	out := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if m, ok := byID[r.ID]; ok {
			out = append(out, SearchHit{Message: m, Score: r.Score})
		}
	}
	span.SetAttributes(
		attribute.Int("search.indexed", len(docs)),
		attribute.Int("search.hits", len(out)),
	)
	return out, nil
}

// senderName resolves a display name through the profile cache, falling
// back to the users table. Unknown users yield "".
func (s *MessageService) senderName(ctx context.Context, userID string) string {
	if p, ok := s.Users.Get(ctx, userID); ok {
		return p.Name
	}
	u, err := repo.GetUser(ctx, s.DB, userID)
	if err != nil {
		return ""
	}
	_ = s.Users.Put(ctx, userID, cache.Profile{Name: u.Name, Role: u.Role})
	return u.Name
}

func (s *MessageService) maxWindow() int {
	if s.MaxWindow > 0 {
		return s.MaxWindow
	}
	return DefaultMaxWindow
}

func (s *MessageService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
