package objectstore

import (
	"context"
	"io"
)

// Store is keyed blob storage with prefix-based folders. An object is
// relocated with Copy followed by Delete; the two calls are not atomic and
// a crash in between leaves the object under both keys.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader) (int64, error)
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
	Copy(ctx context.Context, bucket, srcKey, dstKey string) error
	Delete(ctx context.Context, bucket, key string) error
}
