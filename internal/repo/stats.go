// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/domain"
)

// WindowStats returns what a message window for (groupID, userID) depends
// on: the group's last seq and the caller's read marker ("" when unset).
// ErrNotFound is returned when the group does not exist; a missing
// membership record is not an error.
func WindowStats(ctx context.Context, db *gorm.DB, groupID, userID string) (lastSeq int64, lastReadID string, err error) {
	var g domain.Group
	if err = db.WithContext(ctx).Select("id", "last_seq").Where("id = ?", groupID).First(&g).Error; err != nil {
		return 0, "", err
	}

	var ugs []domain.UserGroup
	err = db.WithContext(ctx).
		Select("id", "last_read_message_id").
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Limit(1).
		Find(&ugs).Error
	if err != nil {
		return 0, "", err
	}
	if len(ugs) == 1 && ugs[0].LastReadMessageID != nil {
		lastReadID = *ugs[0].LastReadMessageID
	}
	return g.LastSeq, lastReadID, nil
}

// UnreadCounts returns, per group in groupIDs, how many messages userID has
// not read: those with a seq above the read marker. A missing or dangling
// marker counts every message. One query serves all groups.
func UnreadCounts(ctx context.Context, db *gorm.DB, userID string, groupIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(groupIDs))
	if len(groupIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		GroupID string
		Unread  int64
	}
	err := db.WithContext(ctx).Raw(`
		SELECT g.id AS group_id, COUNT(m.id) AS unread
		FROM chat_groups g
		LEFT JOIN user_groups ug ON ug.group_id = g.id AND ug.user_id = ?
		LEFT JOIN messages rm ON rm.id = ug.last_read_message_id AND rm.group_id = g.id
		LEFT JOIN messages m ON m.group_id = g.id AND m.seq > COALESCE(rm.seq, 0)
		WHERE g.id IN ?
		GROUP BY g.id
	`, userID, groupIDs).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.GroupID] = r.Unread
	}
	return out, nil
}
