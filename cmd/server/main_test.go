package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-group-chat/internal/cache"
	"github.com/tbourn/go-group-chat/internal/config"
	"github.com/tbourn/go-group-chat/internal/repo"
)

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	s, err := openCache(ctx, config.CacheConfig{Backend: "memory", SweepInterval: time.Minute})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*cache.MemoryStore); !ok {
		t.Fatalf("expected *cache.MemoryStore, got %T", s)
	}
	_ = s.Close()

	// Unreachable Redis still yields a store.
	s, err = openCache(ctx, config.CacheConfig{Backend: "redis", RedisAddr: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	if _, ok := s.(*cache.RedisStore); !ok {
		t.Fatalf("expected *cache.RedisStore, got %T", s)
	}
	_ = s.Close()

	if _, err := openCache(ctx, config.CacheConfig{Backend: "memcached"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestPurgeIdempotency_DeletesExpiredAndStops(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:main_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	if _, err := repo.CreateIdempotency(ctx, db, "u1", "g1", "old", "m1", 200, time.Nanosecond); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.CreateIdempotency(ctx, db, "u1", "g1", "fresh", "m2", 200, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		purgeIdempotency(pctx, db, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if rec, _ := repo.GetIdempotency(ctx, db, "u1", "old", time.Now().Add(-time.Hour)); rec == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired record was not purged")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if rec, _ := repo.GetIdempotency(ctx, db, "u1", "fresh", time.Now()); rec == nil {
		t.Fatalf("fresh record must survive")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("purge loop did not stop")
	}
}
