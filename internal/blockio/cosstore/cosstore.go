// Package cosstore is a Tencent COS object-storage blockio.BlockStore
// backend, for containers that live in object storage and are read/written
// in block-range requests instead of via local files, grounded on the
// teacher's internal/storage/cos.go COS client wiring. Writes use COS's
// append-upload semantics: every write to a dataset's backing object must
// start exactly at the object's current length.
package cosstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// Config holds the COS bucket connection details.
type Config struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // e.g. "myqcloud.com"
	Scheme    string // "https" or "http"
	Prefix    string // key prefix for every dataset object
}

// Store is a blockio.BlockStore backed by one object per dataset in a COS
// bucket.
type Store struct {
	client *cos.Client
	prefix string
}

// New opens a COS-backed store.
func New(cfg *Config) (*Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("cosstore: bucket and region are required")
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("cosstore: credentials are required")
	}

	domain := cfg.Domain
	if domain == "" {
		domain = "myqcloud.com"
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}

	bucketURL, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("cosstore: parse bucket URL: %w", err)
	}
	serviceURL, err := url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, cfg.Region, domain))
	if err != nil {
		return nil, fmt.Errorf("cosstore: parse service URL: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL, ServiceURL: serviceURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
		},
	})

	return &Store{client: client, prefix: cfg.Prefix}, nil
}

func (s *Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// Exists reports whether a dataset's backing object has been created.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, s.key(path))
	if err != nil {
		return false, fmt.Errorf("cosstore: exists %s: %w", path, err)
	}
	return ok, nil
}

// Size returns the dataset's element count given its element width.
func (s *Store) Size(ctx context.Context, path string, elemSize int) (uint64, error) {
	resp, err := s.client.Object.Head(ctx, s.key(path), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return 0, nil
		}
		return 0, fmt.Errorf("cosstore: head %s: %w", path, err)
	}
	defer resp.Body.Close()
	return uint64(resp.ContentLength) / uint64(elemSize), nil
}

// ReadAt reads count elements starting at offset via an HTTP range get.
func (s *Store) ReadAt(ctx context.Context, path string, elemSize int, offset, count uint64) ([]byte, error) {
	start := offset * uint64(elemSize)
	end := start + count*uint64(elemSize) - 1

	resp, err := s.client.Object.Get(ctx, s.key(path), &cos.ObjectGetOptions{
		Range: fmt.Sprintf("bytes=%d-%d", start, end),
	})
	if err != nil {
		return nil, fmt.Errorf("cosstore: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cosstore: read body %s: %w", path, err)
	}
	if uint64(len(buf)) != count*uint64(elemSize) {
		return nil, fmt.Errorf("cosstore: short read on %s: got %d of %d bytes", path, len(buf), count*uint64(elemSize))
	}
	return buf, nil
}

// WriteAt appends data at the given element offset. Object storage has no
// in-place partial write, so offset must equal the dataset's current
// length in elements; a write at any other offset, including one that
// overwrites existing entries, is rejected with an error.
func (s *Store) WriteAt(ctx context.Context, path string, elemSize int, offset uint64, data []byte) error {
	current, err := s.Size(ctx, path, elemSize)
	if err != nil {
		return err
	}

	position := current * uint64(elemSize)
	if position != offset*uint64(elemSize) {
		return fmt.Errorf("cosstore: write to %s at byte %d does not match current object length %d (object storage requires append-only writes)",
			path, offset*uint64(elemSize), position)
	}

	_, err = s.client.Object.Append(ctx, s.key(path), int(position), bytes.NewReader(data), nil)
	if err != nil {
		return fmt.Errorf("cosstore: append %s: %w", path, err)
	}
	return nil
}

// Delete removes a dataset's backing object.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.Object.Delete(ctx, s.key(path))
	if err != nil {
		return fmt.Errorf("cosstore: delete %s: %w", path, err)
	}
	return nil
}

// Close is a no-op; the COS client holds no resources to release.
func (s *Store) Close() error {
	return nil
}
