package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when an input object or file does not exist.
var ErrNotFound = errors.New("object not found")

// Store reads and writes whole objects by key.
type Store interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// LocalStore keeps objects as files below a root directory. An empty root
// resolves keys against the working directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a file-backed store.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) path(key string) string {
	if s.root == "" || filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.root, key)
}

// Open opens the file for key.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	return f, nil
}

// Put writes data to key, creating parent directories. The file is written
// beside its destination and renamed so readers never see a partial file.
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	dst := s.path(key)
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", key, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("setting mode on %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("renaming into %s: %w", key, err)
	}
	return nil
}

// Location is a parsed storage URI.
type Location struct {
	Bucket string // empty for local paths
	Key    string
}

// Remote reports whether the location names an S3 object.
func (l Location) Remote() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.Remote() {
		return "s3://" + l.Bucket + "/" + l.Key
	}
	return l.Key
}

// ParseLocation splits "s3://bucket/key" URIs. Anything else is a local path.
func ParseLocation(uri string) (Location, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		if uri == "" {
			return Location{}, errors.New("empty location")
		}
		return Location{Key: uri}, nil
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, fmt.Errorf("invalid S3 location %q: want s3://bucket/key", uri)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

// BucketFactory builds a Store for one S3 bucket.
type BucketFactory func(ctx context.Context, bucket string) (Store, error)

// Resolver routes locations to the local store or to per-bucket S3 stores,
// creating each bucket store once on first use.
type Resolver struct {
	local   Store
	buckets BucketFactory

	mu    sync.Mutex
	cache map[string]Store
}

// NewResolver returns a Resolver. A nil factory rejects S3 locations.
func NewResolver(local Store, buckets BucketFactory) *Resolver {
	return &Resolver{local: local, buckets: buckets, cache: make(map[string]Store)}
}

// Resolve parses uri and returns the store and key to use for it.
func (r *Resolver) Resolve(ctx context.Context, uri string) (Store, string, error) {
	loc, err := ParseLocation(uri)
	if err != nil {
		return nil, "", err
	}
	if !loc.Remote() {
		return r.local, loc.Key, nil
	}
	if r.buckets == nil {
		return nil, "", fmt.Errorf("S3 location %s given but S3 is not configured", uri)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.cache[loc.Bucket]; ok {
		return s, loc.Key, nil
	}
	s, err := r.buckets(ctx, loc.Bucket)
	if err != nil {
		return nil, "", fmt.Errorf("opening bucket %s: %w", loc.Bucket, err)
	}
	r.cache[loc.Bucket] = s
	return s, loc.Key, nil
}

// ReadAll resolves uri and reads the whole object.
func (r *Resolver) ReadAll(ctx context.Context, uri string) ([]byte, error) {
	store, key, err := r.Resolve(ctx, uri)
	if err != nil {
		return nil, err
	}
	rc, err := store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}
	return data, nil
}

// Write resolves uri and stores data there.
func (r *Resolver) Write(ctx context.Context, uri string, data []byte, contentType string) error {
	store, key, err := r.Resolve(ctx, uri)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, data, contentType)
}
