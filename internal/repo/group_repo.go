// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Group model
// and its member list.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a group is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Usage:
//
//	err := db.Transaction(func(tx *gorm.DB) error {
//	    if err := repo.CreateGroup(ctx, tx, g); err != nil {
//	        return err
//	    }
//	    return repo.AddGroupMembers(ctx, tx, g.ID, memberIDs)
//	})
//
// Cross-table rules (membership, manager checks) live in services.GroupService.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateGroup inserts g. A missing ID is filled with a UUID and timestamps
// are set to UTC. The Members association is not written; use
// AddGroupMembers for that.
func CreateGroup(ctx context.Context, db *gorm.DB, g *domain.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	return db.WithContext(ctx).Omit("Members").Create(g).Error
}

// GetGroup fetches a group with its member list, or ErrNotFound.
func GetGroup(ctx context.Context, db *gorm.DB, id string) (*domain.Group, error) {
	var g domain.Group
	err := db.WithContext(ctx).
		Preload("Members", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("added_at ASC, user_id ASC")
		}).
		Where("id = ?", id).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GroupExists reports whether a group row with id exists.
func GroupExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Group{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// UpdateGroupName renames a group. It returns ErrNotFound when no row matched.
func UpdateGroupName(ctx context.Context, db *gorm.DB, id, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.Group{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddGroupMembers appends userIDs to the group's member list in one insert.
// An empty slice is a no-op.
func AddGroupMembers(ctx context.Context, db *gorm.DB, groupID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]domain.GroupMember, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, domain.GroupMember{GroupID: groupID, UserID: uid, AddedAt: now})
	}
	return db.WithContext(ctx).Create(&rows).Error
}

// RemoveGroupMembers pulls userIDs from the group's member list.
func RemoveGroupMembers(ctx context.Context, db *gorm.DB, groupID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("group_id = ? AND user_id IN ?", groupID, userIDs).
		Delete(&domain.GroupMember{}).Error
}

// DeleteAllGroupMembers empties the member list of a group.
func DeleteAllGroupMembers(ctx context.Context, db *gorm.DB, groupID string) error {
	return db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Delete(&domain.GroupMember{}).Error
}

// ListMemberIDs returns the user ids on a group's member list, oldest first.
func ListMemberIDs(ctx context.Context, db *gorm.DB, groupID string) ([]string, error) {
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("added_at ASC, user_id ASC").
		Pluck("user_id", &out).Error
	return out, err
}

// IsMember reports whether userID is on the group's member list.
func IsMember(ctx context.Context, db *gorm.DB, groupID, userID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&n).Error
	return n > 0, err
}

// DeleteGroup removes the group row. It returns ErrNotFound when no row matched.
func DeleteGroup(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Group{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListGroupsForUser returns the groups userID holds a membership record in,
// most recently active first.
func ListGroupsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Group, error) {
	var out []domain.Group
	err := db.WithContext(ctx).
		Select("chat_groups.*").
		Joins("JOIN user_groups ON user_groups.group_id = chat_groups.id").
		Where("user_groups.user_id = ?", userID).
		Order("chat_groups.updated_at DESC, chat_groups.id ASC").
		Find(&out).Error
	return out, err
}
