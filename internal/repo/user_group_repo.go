// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for UserGroup
// membership records and their read markers.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-group-chat/internal/domain"
)

// CreateUserGroups bulk-inserts one membership record per user id and
// returns the inserted rows in input order. An empty slice is a no-op.
func CreateUserGroups(ctx context.Context, db *gorm.DB, groupID string, userIDs []string) ([]domain.UserGroup, error) {
	if len(userIDs) == 0 {
		return []domain.UserGroup{}, nil
	}
	now := time.Now().UTC()
	rows := make([]domain.UserGroup, 0, len(userIDs))
	for _, uid := range userIDs {
		rows = append(rows, domain.UserGroup{
			ID:       uuid.NewString(),
			UserID:   uid,
			GroupID:  groupID,
			JoinedAt: now,
		})
	}
	if err := db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetUserGroup fetches the membership record of userID in groupID, or ErrNotFound.
func GetUserGroup(ctx context.Context, db *gorm.DB, userID, groupID string) (*domain.UserGroup, error) {
	var ug domain.UserGroup
	err := db.WithContext(ctx).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		First(&ug).Error
	if err != nil {
		return nil, err
	}
	return &ug, nil
}

// DeleteUserGroups removes the membership records of userIDs in groupID.
func DeleteUserGroups(ctx context.Context, db *gorm.DB, groupID string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Where("group_id = ? AND user_id IN ?", groupID, userIDs).
		Delete(&domain.UserGroup{}).Error
}

// DeleteGroupUserGroups removes every membership record of a group and
// returns how many rows went away.
func DeleteGroupUserGroups(ctx context.Context, db *gorm.DB, groupID string) (int64, error) {
	res := db.WithContext(ctx).Where("group_id = ?", groupID).Delete(&domain.UserGroup{})
	return res.RowsAffected, res.Error
}

// SetLastRead upserts the read marker of userID in groupID to messageID.
// The last write wins, so a marker can move backwards. Callers check
// membership first, so the insert branch only runs for a member whose
// user_groups row is missing.
func SetLastRead(ctx context.Context, db *gorm.DB, userID, groupID, messageID string) error {
	ug := domain.UserGroup{
		ID:                uuid.NewString(),
		UserID:            userID,
		GroupID:           groupID,
		LastReadMessageID: &messageID,
		JoinedAt:          time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_read_message_id"}),
		}).
		Create(&ug).Error
}

// SetLastReadMonotonic upserts the read marker like SetLastRead but only
// advances it: an existing marker is replaced only when messageID has a
// higher seq than the message currently stored.
func SetLastReadMonotonic(ctx context.Context, db *gorm.DB, userID, groupID, messageID string) error {
	return db.WithContext(ctx).Exec(`
		INSERT INTO user_groups (id, user_id, group_id, last_read_message_id, joined_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, group_id) DO UPDATE
		SET last_read_message_id = excluded.last_read_message_id
		WHERE user_groups.last_read_message_id IS NULL
		   OR COALESCE((SELECT seq FROM messages WHERE id = excluded.last_read_message_id), 0) >
		      COALESCE((SELECT seq FROM messages WHERE id = user_groups.last_read_message_id), 0)
	`, uuid.NewString(), userID, groupID, messageID, time.Now().UTC()).Error
}
