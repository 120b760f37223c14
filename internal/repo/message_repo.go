// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-group-chat/internal/domain"
)

// withSender scopes a messages query so each row carries the sender's
// display name (empty when the user row is missing).
func withSender(ctx context.Context, db *gorm.DB) *gorm.DB {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("messages.*, COALESCE(users.name, '') AS sender_name").
		Joins("LEFT JOIN users ON users.id = messages.sender_id")
}

// CreateMessage appends a message to groupID. It must run inside a
// transaction: it bumps chat_groups.last_seq, inserts the message with the
// new seq and points chat_groups.last_message_id at it.
//
// sentAt is clamped to the previous message's sent_at so timestamps never
// decrease along seq. It returns ErrNotFound when the group does not exist.
func CreateMessage(ctx context.Context, db *gorm.DB, groupID, senderID, content string, sentAt time.Time) (*domain.Message, error) {
	db = db.WithContext(ctx)

	res := db.Model(&domain.Group{}).
		Where("id = ?", groupID).
		UpdateColumn("last_seq", gorm.Expr("last_seq + 1"))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var g domain.Group
	if err := db.Select("id", "last_seq", "last_message_id").Where("id = ?", groupID).First(&g).Error; err != nil {
		return nil, err
	}

	sentAt = sentAt.UTC()
	if g.LastMessageID != nil {
		var prev domain.Message
		err := db.Select("id", "sent_at").Where("id = ?", *g.LastMessageID).First(&prev).Error
		if err == nil && sentAt.Before(prev.SentAt) {
			sentAt = prev.SentAt.UTC()
		}
	}

	m := &domain.Message{
		ID:       uuid.NewString(),
		GroupID:  groupID,
		SenderID: senderID,
		Content:  content,
		Seq:      g.LastSeq,
		SentAt:   sentAt,
	}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}

	err := db.Model(&domain.Group{}).
		Where("id = ?", groupID).
		UpdateColumns(map[string]any{"last_message_id": m.ID, "updated_at": sentAt}).Error
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by id with its sender name, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := withSender(ctx, db).Where("messages.id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetGroupMessage fetches a message only if it belongs to groupID, or ErrNotFound.
func GetGroupMessage(ctx context.Context, db *gorm.DB, groupID, id string) (*domain.Message, error) {
	var m domain.Message
	err := withSender(ctx, db).
		Where("messages.id = ? AND messages.group_id = ?", id, groupID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListLatest returns up to limit of the newest messages in groupID,
// oldest first.
func ListLatest(ctx context.Context, db *gorm.DB, groupID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	out := []domain.Message{}
	err := withSender(ctx, db).
		Where("messages.group_id = ?", groupID).
		Order("messages.seq DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// ListBefore returns up to limit messages with seq strictly below the given
// seq, oldest first. They are the nearest ones to seq.
func ListBefore(ctx context.Context, db *gorm.DB, groupID string, seq int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	out := []domain.Message{}
	err := withSender(ctx, db).
		Where("messages.group_id = ? AND messages.seq < ?", groupID, seq).
		Order("messages.seq DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// ListAfter returns up to limit messages following seq, oldest first.
// With inclusive set the message at seq itself leads the result.
func ListAfter(ctx context.Context, db *gorm.DB, groupID string, seq int64, limit int, inclusive bool) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	cond := "messages.group_id = ? AND messages.seq > ?"
	if inclusive {
		cond = "messages.group_id = ? AND messages.seq >= ?"
	}
	out := []domain.Message{}
	err := withSender(ctx, db).
		Where(cond, groupID, seq).
		Order("messages.seq ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessagesByIDs loads the given messages with sender names, in no
// particular order. Unknown ids are skipped.
func ListMessagesByIDs(ctx context.Context, db *gorm.DB, ids []string) ([]domain.Message, error) {
	out := []domain.Message{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := withSender(ctx, db).Where("messages.id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteGroupMessages removes every message of a group and returns how many
// rows went away.
func DeleteGroupMessages(ctx context.Context, db *gorm.DB, groupID string) (int64, error) {
	res := db.WithContext(ctx).Where("group_id = ?", groupID).Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}

func reverse(ms []domain.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}
