// Package blobstore provides file storage for patient media, avatars and
// thumbnails. The core only needs "store bytes under a path, retrieve,
// delete, existence-check"; no format awareness lives here.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrBlobNotFound is returned when the requested path holds no blob.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrDeleteDeferred signals that the blob could not be removed right now
	// and has been handed to the background reaper. The database row is
	// already gone; callers should treat this as success with a warning.
	ErrDeleteDeferred = errors.New("blob deletion deferred to background cleanup")
)

// BlobStore is the contract for blob storage backends.
type BlobStore interface {
	// Save stores the content under the given relative path and returns the
	// stored path and size in bytes.
	Save(ctx context.Context, path string, content io.Reader) (string, int64, error)
	// Open returns a reader over the blob content.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the blob. Implementations may return ErrDeleteDeferred
	// when removal is retried in the background.
	Delete(ctx context.Context, path string) error
	// Exists reports whether a blob is stored under the path.
	Exists(ctx context.Context, path string) (bool, error)
}

// MemoryStore is a thread-safe, in-memory BlobStore for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Save(_ context.Context, path string, content io.Reader) (string, int64, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", 0, err
	}
	s.mu.Lock()
	s.blobs[path] = data
	s.mu.Unlock()
	return path, int64(len(data)), nil
}

func (s *MemoryStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[path]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[path]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, path)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[path]
	return ok, nil
}

// Paths lists all stored blob paths.
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blobs))
	for p := range s.blobs {
		out = append(out, p)
	}
	return out
}
