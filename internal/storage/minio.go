package storage

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tbourn/go-group-chat/internal/config"
)

// MinioStore is an ObjectStore backed by minio-go. It works against MinIO
// and AWS S3 alike.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore builds a client from cfg. No network call is made.
func NewMinioStore(cfg config.S3Config) (*MinioStore, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: cl, bucket: cfg.Bucket}, nil
}

// Bucket returns the target bucket name.
func (s *MinioStore) Bucket() string { return s.bucket }

// PutObject implements ObjectStore.
func (s *MinioStore) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ObjectStat, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return ObjectStat{}, err
	}
	return ObjectStat{
		Key:          key,
		ETag:         info.ETag,
		Size:         info.Size,
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}, nil
}

// DeleteObject implements ObjectStore.
func (s *MinioStore) DeleteObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
