// Package storage writes assembled uploads to an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidKey is returned by SafeJoin for empty or traversing keys.
var ErrInvalidKey = errors.New("invalid object key")

// ObjectStat describes a stored object.
type ObjectStat struct {
	Key          string
	ETag         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// ObjectStore is the subset of object storage used by uploads.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectStat, error)
	DeleteObject(ctx context.Context, key string) error
}

// SafeJoin builds an object key from prefix and parts, rejecting path
// traversal, backslashes and empty segments.
func SafeJoin(prefix string, parts ...string) (string, error) {
	segs := make([]string, 0, len(parts)+1)
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		segs = append(segs, p)
	}
	for _, part := range parts {
		part = strings.Trim(strings.TrimSpace(part), "/")
		if part == "" || strings.Contains(part, "..") || strings.ContainsAny(part, "\\") {
			return "", ErrInvalidKey
		}
		segs = append(segs, part)
	}
	if len(segs) == 0 {
		return "", ErrInvalidKey
	}
	key := strings.Join(segs, "/")
	for strings.Contains(key, "//") {
		key = strings.ReplaceAll(key, "//", "/")
	}
	if _, err := url.Parse("https://example.com/" + key); err != nil {
		return "", ErrInvalidKey
	}
	return key, nil
}
