package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-group-chat/internal/config"
)

func TestSafeJoin(t *testing.T) {
	good := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{"uploads", []string{"u1", "file.bin"}, "uploads/u1/file.bin"},
		{"/uploads/", []string{"/u1/", "a/b.txt"}, "uploads/u1/a/b.txt"},
		{"", []string{"u1", "x"}, "u1/x"},
		{"uploads", []string{"a//b"}, "uploads/a/b"},
	}
	for _, tc := range good {
		got, err := SafeJoin(tc.prefix, tc.parts...)
		if err != nil || got != tc.want {
			t.Fatalf("SafeJoin(%q, %v) = %q, %v; want %q", tc.prefix, tc.parts, got, err, tc.want)
		}
	}

	bad := [][]string{
		{"..", "etc"},
		{"u1", "../secret"},
		{"u1", `a\b`},
		{"u1", "   "},
	}
	for _, parts := range bad {
		if _, err := SafeJoin("uploads", parts...); err != ErrInvalidKey {
			t.Fatalf("SafeJoin(%v) err = %v; want ErrInvalidKey", parts, err)
		}
	}
	if _, err := SafeJoin(""); err != ErrInvalidKey {
		t.Fatalf("empty key must be rejected")
	}
}

func TestNewMinioStore_ValidatesEndpoint(t *testing.T) {
	cfg := config.S3Config{Endpoint: "localhost:9000", Bucket: "chat", AccessKey: "ak", SecretKey: "sk"}
	s, err := NewMinioStore(cfg)
	if err != nil {
		t.Fatalf("NewMinioStore: %v", err)
	}
	if s.Bucket() != "chat" {
		t.Fatalf("Bucket = %q", s.Bucket())
	}

	cfg.Endpoint = ""
	if _, err := NewMinioStore(cfg); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
}

func TestMinioStore_PutFailsWhenUnreachable(t *testing.T) {
	s, err := NewMinioStore(config.S3Config{Endpoint: "127.0.0.1:1", Bucket: "chat", AccessKey: "ak", SecretKey: "sk"})
	if err != nil {
		t.Fatalf("NewMinioStore: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	body := []byte("payload")
	if _, err := s.PutObject(ctx, "k", bytes.NewReader(body), int64(len(body)), "text/plain"); err == nil {
		t.Fatalf("PutObject should fail against a closed port")
	}
}

var _ ObjectStore = (*MinioStore)(nil)
