// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-group-chat/internal/domain"
)

// UpsertUser inserts u or refreshes name and role of an existing row.
// updated_at only moves when the name or role actually changes.
func UpsertUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "role", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("users.name <> excluded.name OR users.role <> excluded.role"),
			}},
		}).
		Create(u).Error
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SendersUpdatedAt returns the latest updated_at among userIDs. Unknown ids
// are skipped; the zero time means none matched.
func SendersUpdatedAt(ctx context.Context, db *gorm.DB, userIDs []string) (time.Time, error) {
	var latest time.Time
	if len(userIDs) == 0 {
		return latest, nil
	}
	var users []domain.User
	if err := db.WithContext(ctx).Select("id", "updated_at").Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return latest, err
	}
	for _, u := range users {
		if u.UpdatedAt.After(latest) {
			latest = u.UpdatedAt
		}
	}
	return latest, nil
}
