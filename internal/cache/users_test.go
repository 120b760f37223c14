package cache

import (
	"context"
	"testing"
	"time"
)

func TestUserNames_PutGetForget(t *testing.T) {
	clk := newClock()
	store := NewMemoryStore(MemoryOptions{Now: clk.Now})
	defer store.Close()
	names := NewUserNames(store, time.Minute)
	ctx := context.Background()

	if _, ok := names.Get(ctx, "u1"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := names.Put(ctx, "u1", Profile{Name: "Ann", Role: "annotator"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	p, ok := names.Get(ctx, "u1")
	if !ok || p.Name != "Ann" || p.Role != "annotator" {
		t.Fatalf("Get = %+v ok:%v", p, ok)
	}

	clk.Advance(2 * time.Minute)
	if _, ok := names.Get(ctx, "u1"); ok {
		t.Fatalf("profile should expire with the ttl")
	}

	_ = names.Put(ctx, "u2", Profile{Name: "Bo"})
	if err := names.Forget(ctx, "u2"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok := names.Get(ctx, "u2"); ok {
		t.Fatalf("forgotten profile still cached")
	}
}

func TestUserNames_CorruptEntryIsMiss(t *testing.T) {
	store := NewMemoryStore(MemoryOptions{})
	defer store.Close()
	ctx := context.Background()
	_ = store.Set(ctx, userKey("u1"), []byte{0xc1}, time.Minute) // 0xc1 is never valid msgpack

	if _, ok := NewUserNames(store, time.Minute).Get(ctx, "u1"); ok {
		t.Fatalf("undecodable entry must read as a miss")
	}
}

func TestUserNames_NilIsEmpty(t *testing.T) {
	var names *UserNames
	ctx := context.Background()
	if _, ok := names.Get(ctx, "u1"); ok {
		t.Fatalf("nil cache must miss")
	}
	if err := names.Put(ctx, "u1", Profile{}); err != nil {
		t.Fatalf("nil Put: %v", err)
	}
	if err := names.Forget(ctx, "u1"); err != nil {
		t.Fatalf("nil Forget: %v", err)
	}
}
