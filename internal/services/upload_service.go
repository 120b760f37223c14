// Package services – UploadService
//
// UploadService accepts file uploads in numbered chunks, buffers them in a
// cache.Store with a TTL, and writes the assembled object to object storage
// once the client completes the upload. Chunks that are never completed
// expire with the cache entry.
package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-group-chat/internal/cache"
	"github.com/tbourn/go-group-chat/internal/storage"
)

const (
	defaultChunkTTL     = 15 * time.Minute
	defaultMaxChunk     = 1 << 20
	defaultMaxChunks    = 64
	defaultUploadPrefix = "uploads"
	defaultContentType  = "application/octet-stream"
)

var uploadIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// UploadResult describes an assembled, stored upload.
type UploadResult struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ETag        string `json:"etag,omitempty"`
	ContentType string `json:"contentType"`
}

// UploadService buffers chunks and assembles uploads.
type UploadService struct {
	Chunks  cache.Store
	Storage storage.ObjectStore

	ChunkTTL      time.Duration
	MaxChunkBytes int
	MaxChunks     int
	// KeyPrefix is prepended to object keys.
	KeyPrefix string
}

// Enabled reports whether uploads can be stored.
func (s *UploadService) Enabled() bool {
	return s != nil && s.Chunks != nil && s.Storage != nil
}

// PutChunk stores chunk index of uploadID for userID. Re-sending a chunk
// replaces it.
func (s *UploadService) PutChunk(ctx context.Context, userID, uploadID string, index int, data []byte) error {
	ctx, span := otel.Tracer("services/UploadService").Start(ctx, "PutChunk",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("upload.id", uploadID),
			attribute.Int("chunk.index", index),
			attribute.Int("chunk.bytes", len(data)),
		),
	)
	defer span.End()

	if !s.Enabled() {
		return ErrStorageUnavailable
	}
	if !uploadIDRE.MatchString(uploadID) || index < 0 || index >= s.maxChunks() || len(data) == 0 {
		return ErrInvalidUpload
	}
	if len(data) > s.maxChunkBytes() {
		return ErrChunkTooLarge
	}

	ttl := s.ChunkTTL
	if ttl <= 0 {
		ttl = defaultChunkTTL
	}
	if err := s.Chunks.Set(ctx, chunkKey(userID, uploadID, index), data, ttl); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store chunk")
		return err
	}
	return nil
}

// Complete concatenates chunks 0..total-1, writes the object, and evicts the
// chunks. A missing chunk yields ErrUploadIncomplete and keeps the rest.
func (s *UploadService) Complete(ctx context.Context, userID, uploadID string, total int, filename, contentType string) (*UploadResult, error) {
	ctx, span := otel.Tracer("services/UploadService").Start(ctx, "Complete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("upload.id", uploadID),
			attribute.Int("chunks.total", total),
		),
	)
	defer span.End()

	if !s.Enabled() {
		return nil, ErrStorageUnavailable
	}
	if !uploadIDRE.MatchString(uploadID) || total < 1 || total > s.maxChunks() {
		return nil, ErrInvalidUpload
	}
	name := path.Base(strings.TrimSpace(filename))
	if name == "." || name == "/" {
		return nil, ErrInvalidUpload
	}
	key, err := storage.SafeJoin(s.prefix(), userID, uploadID, name)
	if err != nil {
		return nil, ErrInvalidUpload
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	keys := make([]string, total)
	var buf bytes.Buffer
	for i := 0; i < total; i++ {
		keys[i] = chunkKey(userID, uploadID, i)
		part, ok, err := s.Chunks.Get(ctx, keys[i])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load chunk")
			return nil, err
		}
		if !ok {
			span.SetAttributes(attribute.Int("chunk.missing", i))
			return nil, fmt.Errorf("%w: chunk %d", ErrUploadIncomplete, i)
		}
		buf.Write(part)
	}

	size := int64(buf.Len())
	stat, err := s.Storage.PutObject(ctx, key, &buf, size, contentType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put object")
		return nil, err
	}
	// Stored objects are authoritative; stale chunks just expire.
	_ = s.Chunks.Delete(ctx, keys...)

	span.SetAttributes(
		attribute.String("object.key", key),
		attribute.Int64("object.size", size),
	)
	return &UploadResult{Key: key, Size: size, ETag: stat.ETag, ContentType: contentType}, nil
}

func chunkKey(userID, uploadID string, index int) string {
	return fmt.Sprintf("upload:%s:%s:%d", userID, uploadID, index)
}

func (s *UploadService) maxChunks() int {
	if s.MaxChunks > 0 {
		return s.MaxChunks
	}
	return defaultMaxChunks
}

func (s *UploadService) maxChunkBytes() int {
	if s.MaxChunkBytes > 0 {
		return s.MaxChunkBytes
	}
	return defaultMaxChunk
}

func (s *UploadService) prefix() string {
	if s.KeyPrefix != "" {
		return s.KeyPrefix
	}
	return defaultUploadPrefix
}
