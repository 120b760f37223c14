package services

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-group-chat/internal/cache"
	"github.com/tbourn/go-group-chat/internal/domain"
	"github.com/tbourn/go-group-chat/internal/repo"
)

func TestUserService_Touch_UpsertsAndCaches(t *testing.T) {
	db := newSvcDB(t)
	store := cache.NewMemoryStore(cache.MemoryOptions{})
	defer store.Close()
	svc := &UserService{DB: db, Profiles: cache.NewUserNames(store, time.Minute)}
	ctx := context.Background()

	if err := svc.Touch(ctx, " u1 ", " Ann ", "annotator"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	u, err := repo.GetUser(ctx, db, "u1")
	if err != nil || u.Name != "Ann" || u.Role != "annotator" {
		t.Fatalf("user not stored: %+v %v", u, err)
	}
	if p, ok := svc.Profiles.Get(ctx, "u1"); !ok || p.Name != "Ann" {
		t.Fatalf("profile not cached: %+v %v", p, ok)
	}

	// Same profile: served from cache, the row is not rewritten.
	if err := db.Model(&domain.User{}).Where("id = ?", "u1").Update("name", "Edited").Error; err != nil {
		t.Fatalf("edit row: %v", err)
	}
	if err := svc.Touch(ctx, "u1", "Ann", "annotator"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if u, _ := repo.GetUser(ctx, db, "u1"); u.Name != "Edited" {
		t.Fatalf("cached touch should skip the write, name=%q", u.Name)
	}

	// Changed profile writes through.
	if err := svc.Touch(ctx, "u1", "Anna", "reviewer"); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if u, _ := repo.GetUser(ctx, db, "u1"); u.Name != "Anna" || u.Role != "reviewer" {
		t.Fatalf("changed profile not stored: %+v", u)
	}
}

func TestUserService_Touch_WithoutCache(t *testing.T) {
	db := newSvcDB(t)
	svc := &UserService{DB: db}
	ctx := context.Background()
	if err := svc.Touch(ctx, "u1", "Ann", ""); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := svc.Touch(ctx, "u1", "Ann B", ""); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if u, err := repo.GetUser(ctx, db, "u1"); err != nil || u.Name != "Ann B" {
		t.Fatalf("user: %+v %v", u, err)
	}
	if err := svc.Touch(ctx, "  ", "x", ""); err == nil {
		t.Fatalf("empty id must be rejected")
	}
}
