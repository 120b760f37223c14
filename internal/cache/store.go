// Package cache provides short-lived key/value storage with per-entry TTL.
//
// Two backends implement Store: MemoryStore for single-process deployments
// and tests, and RedisStore for shared deployments. Values are opaque bytes;
// typed wrappers (see UserNames) encode with msgpack.
package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Store is a TTL key/value cache. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the value for key. ok is false when the key is missing or expired.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	// Set stores val under key for ttl. A non-positive ttl stores without expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Delete removes keys; missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
}

// cacheReqs counts lookups by backend and outcome (hit|miss|error).
var cacheReqs = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Total number of cache lookups.",
	},
	[]string{"store", "result"},
)

func init() {
	prometheus.MustRegister(cacheReqs)
}

func observe(store string, ok bool, err error) {
	switch {
	case err != nil:
		cacheReqs.WithLabelValues(store, "error").Inc()
	case ok:
		cacheReqs.WithLabelValues(store, "hit").Inc()
	default:
		cacheReqs.WithLabelValues(store, "miss").Inc()
	}
}
