package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bahsim/catalog-import-service/internal/domain"
	"github.com/bahsim/catalog-import-service/pkg/logger"
)

// FSStore keeps objects on the local filesystem, one directory per bucket.
// Each successful Put is announced to subscribers as an S3-style
// object-created event, delivered asynchronously like a bucket
// notification.
type FSStore struct {
	root      string
	logger    *logger.Logger
	mu        sync.RWMutex
	listeners []func(ctx context.Context, event events.S3Event) error
}

func NewFSStore(root string, log *logger.Logger) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &FSStore{
		root:   root,
		logger: log,
	}, nil
}

// Subscribe registers a listener for object-created events. A listener
// error is logged, the way a failed trigger invocation surfaces in the
// trigger's own logs, and never affects the write that caused it.
func (s *FSStore) Subscribe(fn func(ctx context.Context, event events.S3Event) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *FSStore) Put(ctx context.Context, bucket, key string, body io.Reader) (int64, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create object prefix: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create object: %w", err)
	}

	size, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write object: %w", err)
	}

	s.logger.Debug(ctx, "Object stored",
		"bucket", bucket,
		"key", key,
		"size_bytes", size,
	)

	s.notify(bucket, key, size)

	return size, nil
}

func (s *FSStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, domain.ErrObjectNotFound
		}
		return nil, 0, fmt.Errorf("open object: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat object: %w", err)
	}

	return f, info.Size(), nil
}

func (s *FSStore) Copy(ctx context.Context, bucket, srcKey, dstKey string) error {
	src, _, err := s.Get(ctx, bucket, srcKey)
	if err != nil {
		return err
	}
	defer src.Close()

	dstPath, err := s.objectPath(bucket, dstKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("create object prefix: %w", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create object copy: %w", err)
	}

	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("copy object: %w", err)
	}

	s.logger.Debug(ctx, "Object copied",
		"bucket", bucket,
		"src_key", srcKey,
		"dst_key", dstKey,
	)

	return nil
}

func (s *FSStore) Delete(ctx context.Context, bucket, key string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return domain.ErrObjectNotFound
		}
		return fmt.Errorf("delete object: %w", err)
	}

	return nil
}

func (s *FSStore) objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" {
		return "", domain.ErrInvalidRecord
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(key)), nil
}

func (s *FSStore) notify(bucket, key string, size int64) {
	s.mu.RLock()
	listeners := make([]func(ctx context.Context, event events.S3Event) error, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	event := events.S3Event{
		Records: []events.S3EventRecord{
			{
				EventSource: "local:objectstore",
				EventName:   "ObjectCreated:Put",
				EventTime:   time.Now(),
				S3: events.S3Entity{
					Bucket: events.S3Bucket{Name: bucket},
					Object: events.S3Object{Key: key, Size: size},
				},
			},
		},
	}

	for _, fn := range listeners {
		go func(fn func(ctx context.Context, event events.S3Event) error) {
			ctx := context.Background()
			if err := fn(ctx, event); err != nil {
				s.logger.Error(ctx, "Object event listener failed",
					"bucket", bucket,
					"key", key,
					"error", err,
				)
			}
		}(fn)
	}
}
