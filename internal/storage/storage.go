package storage

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
)

// ObjectStorage is the surface the rest of the backend codes against. Both
// implementations sit on the MinIO SDK, which speaks to MinIO itself and to
// plain S3.
type ObjectStorage interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectName string) (*minio.Object, error)
	Delete(ctx context.Context, objectName string) error
	PresignedGetURLWithResponse(ctx context.Context, objectName string, expiry time.Duration, contentType string, contentDisposition string) (string, error)
	EnsureBucket(ctx context.Context) error
}

var (
	_ ObjectStorage = (*MinIOClient)(nil)
	_ ObjectStorage = (*S3Client)(nil)
)
