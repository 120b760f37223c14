package cache

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Profile is the cached projection of a user.
type Profile struct {
	Name string `msgpack:"n"`
	Role string `msgpack:"r"`
}

// UserNames caches user profiles keyed by user id.
// A nil *UserNames behaves as an always-empty cache.
type UserNames struct {
	store Store
	ttl   time.Duration
}

// NewUserNames wraps store; entries live for ttl.
func NewUserNames(store Store, ttl time.Duration) *UserNames {
	return &UserNames{store: store, ttl: ttl}
}

func userKey(id string) string { return "user:" + id }

// Get returns the cached profile for id. Backend and decode errors read as a miss.
func (u *UserNames) Get(ctx context.Context, id string) (Profile, bool) {
	if u == nil || u.store == nil {
		return Profile{}, false
	}
	data, ok, err := u.store.Get(ctx, userKey(id))
	if err != nil || !ok {
		return Profile{}, false
	}
	var p Profile
	if err := msgpack.Unmarshal(data, &p); err != nil {
		return Profile{}, false
	}
	return p, true
}

// Put stores p for id.
func (u *UserNames) Put(ctx context.Context, id string, p Profile) error {
	if u == nil || u.store == nil {
		return nil
	}
	data, err := msgpack.Marshal(p)
	if err != nil {
		return err
	}
	return u.store.Set(ctx, userKey(id), data, u.ttl)
}

// Forget drops the cached profile for id.
func (u *UserNames) Forget(ctx context.Context, id string) error {
	if u == nil || u.store == nil {
		return nil
	}
	return u.store.Delete(ctx, userKey(id))
}
