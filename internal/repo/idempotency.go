package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-group-chat/internal/domain"
)

// ErrDuplicate reports a live idempotency record for the same (user, key).
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the live record for (userID, key) at now, or
// ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND expires_at > ?", userID, key, now).
		Take(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency stores the message produced for (userID, key) in
// groupID, valid for ttl. A single upsert takes over an expired record for
// the same pair; a live one is left alone and ErrDuplicate is returned.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, groupID, key, messageID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Key:       key,
		GroupID:   groupID,
		MessageID: messageID,
		Status:    status,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"id", "group_id", "message_id", "status", "created_at", "expires_at"}),
		Where:     clause.Where{Exprs: []clause.Expression{gorm.Expr("idempotency.expires_at <= ?", now)}},
	}).Create(rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return rec, nil
}

// CompleteIdempotency attaches messageID to the pending reservation for
// (userID, key). ErrNotFound means no pending reservation exists.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, userID, key, messageID string, status int) error {
	res := db.WithContext(ctx).Model(&domain.Idempotency{}).
		Where("user_id = ? AND key = ? AND message_id = ''", userID, key).
		Updates(map[string]any{"message_id": messageID, "status": status})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseIdempotency drops a pending reservation for (userID, key) so the
// key can be retried. Completed records are kept.
func ReleaseIdempotency(ctx context.Context, db *gorm.DB, userID, key string) error {
	return db.WithContext(ctx).
		Where("user_id = ? AND key = ? AND message_id = ''", userID, key).
		Delete(&domain.Idempotency{}).Error
}

// PurgeExpiredIdempotency deletes records that expired at or before now and
// reports how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
