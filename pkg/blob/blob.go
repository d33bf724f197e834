package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrNotFound = errors.New("blob not found")

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Store is an object store that can hand out time-limited signed URLs.
type Store interface {
	SignedUploadURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	// SignedDownloadURL returns a URL that downloads key as fileName.
	SignedDownloadURL(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// DeleteBatch removes keys and returns how many were removed. Per-key failures
	// are joined into the returned error.
	DeleteBatch(ctx context.Context, keys []string) (int, error)
}
