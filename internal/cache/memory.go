package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type memEntry struct {
	val     []byte
	expires time.Time // zero means no expiry
}

func (e memEntry) expiredAt(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	// SweepInterval is the janitor period. Zero disables the janitor;
	// expired entries are then dropped lazily on Get.
	SweepInterval time.Duration
	// Now overrides the clock (tests). Defaults to time.Now.
	Now func() time.Time
}

// MemoryStore is an in-process Store backed by ttlcache. Entries carry
// their deadline from the store's clock as well, so an injected clock
// decides expiry. Call Close to stop the janitor.
type MemoryStore struct {
	items *ttlcache.Cache[string, memEntry]
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryStore returns an empty store and starts its janitor if configured.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &MemoryStore{
		items: ttlcache.New[string, memEntry](
			ttlcache.WithDisableTouchOnHit[string, memEntry](),
		),
		now:  now,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go s.janitor(opts.SweepInterval)
	} else {
		close(s.done)
	}
	return s
}

func (s *MemoryStore) janitor(every time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Sweep()
		case <-s.stop:
			return
		}
	}
}

// Sweep drops every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	before := s.items.Len()
	s.items.DeleteExpired()
	now := s.now()
	for k, it := range s.items.Items() {
		if it.Value().expiredAt(now) {
			s.items.Delete(k)
		}
	}
	return max(before-s.items.Len(), 0)
}

// Len returns the number of stored entries, expired ones included until swept.
func (s *MemoryStore) Len() int { return s.items.Len() }

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		observe("memory", false, err)
		return nil, false, err
	}
	it := s.items.Get(key)
	ok := it != nil
	if ok && it.Value().expiredAt(s.now()) {
		s.items.Delete(key)
		ok = false
	}
	observe("memory", ok, nil)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), it.Value().val...), true, nil
}

// Set implements Store. The value is copied.
func (s *MemoryStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := memEntry{val: append([]byte(nil), val...)}
	itemTTL := ttlcache.NoTTL
	if ttl > 0 {
		e.expires = s.now().Add(ttl)
		itemTTL = ttl
	}
	s.items.Set(key, e, itemTTL)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		s.items.Delete(k)
	}
	return nil
}

// Close stops the janitor and waits for it to exit. It is safe to call twice.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
