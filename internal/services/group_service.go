// Package services – GroupService
//
// This file implements GroupService, which owns the lifecycle of chat groups:
// creation, membership edits, and deletion. Every multi-table write runs in a
// single gorm transaction so a failing step leaves no partial state behind.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include group and user identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/repo"
)

const defaultGroupNameMaxLen = 100

// GroupSummary is one entry of a user's group list.
type GroupSummary struct {
	Group       domain.Group    `json:"group"`
	LastMessage *domain.Message `json:"lastMessage,omitempty"`
	Unread      int64           `json:"unread"`
}

// GroupService coordinates group creation, membership edits, and deletion.
type GroupService struct {
	DB *gorm.DB

	// NameMaxLen caps stored group names by rune length.
	NameMaxLen int
}

// NewGroupService constructs a GroupService with default limits.
func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{DB: db, NameMaxLen: defaultGroupNameMaxLen}
}

// Create inserts a group managed by managerID, one UserGroup per distinct
// member (the manager included), and the group's member list, atomically.
func (s *GroupService) Create(ctx context.Context, managerID, name string, memberIDs []string) (*domain.Group, []domain.UserGroup, error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", managerID),
			attribute.Int("members.requested", len(memberIDs)),
		),
	)
	defer span.End()

	name = s.normalizeName(name)
	if name == "" {
		return nil, nil, ErrEmptyGroupName
	}
	members := normalizeMembers(managerID, memberIDs)

	g := &domain.Group{Name: name, ManagerID: managerID}
	var userGroups []domain.UserGroup
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateGroup(ctx, tx, g); err != nil {
			return err
		}
		ugs, err := repo.CreateUserGroups(ctx, tx, g.ID, members)
		if err != nil {
			return err
		}
		userGroups = ugs
		return repo.AddGroupMembers(ctx, tx, g.ID, members)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create group")
		return nil, nil, err
	}

	g.Members = make([]domain.GroupMember, 0, len(members))
	for _, uid := range members {
		g.Members = append(g.Members, domain.GroupMember{GroupID: g.ID, UserID: uid, AddedAt: g.CreatedAt})
	}
	span.SetAttributes(attribute.String("group.id", g.ID))
	return g, userGroups, nil
}

// EditMembership replaces the member set of groupID with memberIDs (the
// acting manager is always kept) and optionally renames the group. Only the
// symmetric difference is written, in one transaction.
func (s *GroupService) EditMembership(ctx context.Context, actorID, groupID string, name *string, memberIDs []string) (*domain.Group, error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "EditMembership",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	var newName string
	if name != nil {
		newName = s.normalizeName(*name)
		if newName == "" {
			return nil, ErrEmptyGroupName
		}
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := repo.GetGroup(ctx, tx, groupID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrGroupNotFound
			}
			return err
		}
		if g.ManagerID != actorID {
			return ErrForbidden
		}

		added, removed := diffMembers(g.MemberIDs(), normalizeMembers(actorID, memberIDs))
		span.SetAttributes(
			attribute.Int("members.added", len(added)),
			attribute.Int("members.removed", len(removed)),
		)

		if err := repo.DeleteUserGroups(ctx, tx, groupID, removed); err != nil {
			return err
		}
		if err := repo.RemoveGroupMembers(ctx, tx, groupID, removed); err != nil {
			return err
		}
		if _, err := repo.CreateUserGroups(ctx, tx, groupID, added); err != nil {
			return err
		}
		if err := repo.AddGroupMembers(ctx, tx, groupID, added); err != nil {
			return err
		}
		if name != nil && newName != g.Name {
			return repo.UpdateGroupName(ctx, tx, groupID, newName)
		}
		return nil
	})
	if err != nil {
		if !isExpected(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "edit membership")
		}
		return nil, err
	}

	g, err := repo.GetGroup(ctx, s.DB, groupID)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Delete removes the group's messages, membership records, member list,
// and the group row in one transaction. Only the manager may delete.
func (s *GroupService) Delete(ctx context.Context, actorID, groupID string) error {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", actorID),
		),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g domain.Group
		if err := tx.Select("id", "manager_id").Where("id = ?", groupID).First(&g).Error; err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrGroupNotFound
			}
			return err
		}
		if g.ManagerID != actorID {
			return ErrForbidden
		}

		msgs, err := repo.DeleteGroupMessages(ctx, tx, groupID)
		if err != nil {
			return err
		}
		ugs, err := repo.DeleteGroupUserGroups(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if err := repo.DeleteAllGroupMembers(ctx, tx, groupID); err != nil {
			return err
		}
		span.SetAttributes(
			attribute.Int64("messages.deleted", msgs),
			attribute.Int64("user_groups.deleted", ugs),
		)
		if err := repo.DeleteGroup(ctx, tx, groupID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrGroupNotFound
			}
			return err
		}
		return nil
	})
	if err != nil && !isExpected(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete group")
	}
	return err
}

// Get returns a group with its member list. Only members may read it.
func (s *GroupService) Get(ctx context.Context, userID, groupID string) (*domain.Group, error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("group.id", groupID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	g, err := repo.GetGroup(ctx, s.DB, groupID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	for _, m := range g.Members {
		if m.UserID == userID {
			return g, nil
		}
	}
	return nil, ErrNotMember
}

// ListForUser returns the groups userID belongs to, most recently active
// first, each with its latest message and the caller's unread count.
func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]GroupSummary, error) {
	ctx, span := otel.Tracer("services/GroupService").Start(ctx, "ListForUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	groups, err := repo.ListGroupsForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(groups))
	lastIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
		if g.LastMessageID != nil {
			lastIDs = append(lastIDs, *g.LastMessageID)
		}
	}
	lastMsgs, err := repo.ListMessagesByIDs(ctx, s.DB, lastIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Message, len(lastMsgs))
	for i := range lastMsgs {
		byID[lastMsgs[i].ID] = &lastMsgs[i]
	}
	unread, err := repo.UnreadCounts(ctx, s.DB, userID, ids)
	if err != nil {
		return nil, err
	}

	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		sum := GroupSummary{Group: g, Unread: unread[g.ID]}
		if g.LastMessageID != nil {
			sum.LastMessage = byID[*g.LastMessageID]
		}
		out = append(out, sum)
	}
	span.SetAttributes(attribute.Int("groups.count", len(out)))
	return out, nil
}

func (s *GroupService) normalizeName(name string) string {
	name = strings.Join(strings.Fields(norm.NFC.String(name)), " ")
	max := s.NameMaxLen
	if max <= 0 {
		max = defaultGroupNameMaxLen
	}
	if utf8.RuneCountInString(name) > max {
		name = strings.TrimSpace(string([]rune(name)[:max]))
	}
	return name
}

// normalizeMembers trims and dedupes ids, keeping first-seen order, with
// actorID always first.
func normalizeMembers(actorID string, ids []string) []string {
	seen := map[string]struct{}{actorID: {}}
	out := []string{actorID}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// diffMembers returns ids in want but not in have, and ids in have but not
// in want. Both keep the order of their source slice.
func diffMembers(have, want []string) (added, removed []string) {
	haveSet := make(map[string]struct{}, len(have))
	for _, id := range have {
		haveSet[id] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, id := range want {
		wantSet[id] = struct{}{}
		if _, ok := haveSet[id]; !ok {
			added = append(added, id)
		}
	}
	for _, id := range have {
		if _, ok := wantSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// isExpected reports whether err is a domain outcome rather than a failure
// worth flagging on the span.
func isExpected(err error) bool {
	switch {
	case errors.Is(err, ErrGroupNotFound),
		errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotMember):
		return true
	}
	return false
}
