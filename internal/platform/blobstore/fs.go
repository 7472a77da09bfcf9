package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	deleteAttempts  = 3
	deleteBaseDelay = 100 * time.Millisecond
	reaperInterval  = 30 * time.Second
)

// FSStore stores blobs on the local filesystem. Writes go to the primary root
// when it is writable and fall back to the secondary root otherwise, so the
// server keeps accepting uploads when the shared volume is unavailable.
//
// Deletes retry with backoff; video and 3D model files can be held open by a
// concurrent reader, and the user-facing delete must never hang on a
// filesystem lock. Paths that refuse to go away are handed to a background
// reaper and reported via ErrDeleteDeferred.
type FSStore struct {
	primary  string
	fallback string
	logger   zerolog.Logger

	pending chan string
	done    chan struct{}
}

func NewFSStore(primary, fallback string, logger zerolog.Logger) *FSStore {
	s := &FSStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		pending:  make(chan string, 256),
		done:     make(chan struct{}),
	}
	go s.reap()
	return s
}

// Close stops the background reaper.
func (s *FSStore) Close() {
	close(s.done)
}

func (s *FSStore) roots() []string {
	if s.fallback == "" {
		return []string{s.primary}
	}
	return []string{s.primary, s.fallback}
}

// Save writes the content under path, trying the primary root first and
// falling back to the secondary root on failure.
func (s *FSStore) Save(_ context.Context, path string, content io.Reader) (string, int64, error) {
	if strings.Contains(path, "..") {
		return "", 0, fmt.Errorf("invalid blob path %q", path)
	}

	var lastErr error
	for _, root := range s.roots() {
		full := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			lastErr = err
			continue
		}
		n, err := writeFile(full, content)
		if err != nil {
			lastErr = err
			continue
		}
		return path, n, nil
	}
	return "", 0, fmt.Errorf("save blob %s: %w", path, lastErr)
}

func writeFile(full string, content io.Reader) (int64, error) {
	f, err := os.Create(full)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return 0, err
	}
	return n, nil
}

// Open locates the blob in whichever root holds it. A broken root is
// skipped so a dead primary volume cannot mask a healthy fallback.
func (s *FSStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	var lastErr error
	for _, root := range s.roots() {
		f, err := os.Open(filepath.Join(root, path))
		if err == nil {
			return f, nil
		}
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("root", root).Str("path", path).Msg("blobstore: open failed on root")
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("open blob %s: %w", path, lastErr)
	}
	return nil, ErrBlobNotFound
}

// Exists checks both roots for the blob, skipping roots that error.
func (s *FSStore) Exists(_ context.Context, path string) (bool, error) {
	var lastErr error
	for _, root := range s.roots() {
		_, err := os.Stat(filepath.Join(root, path))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("root", root).Str("path", path).Msg("blobstore: stat failed on root")
			lastErr = err
		}
	}
	if lastErr != nil {
		return false, fmt.Errorf("stat blob %s: %w", path, lastErr)
	}
	return false, nil
}

// Delete removes the blob with bounded retries. On exhaustion the path is
// queued for background cleanup and ErrDeleteDeferred is returned.
func (s *FSStore) Delete(_ context.Context, path string) error {
	found := false
	delay := deleteBaseDelay
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		gone := true
		for _, root := range s.roots() {
			full := filepath.Join(root, path)
			err := os.Remove(full)
			switch {
			case err == nil:
				found = true
			case os.IsNotExist(err):
				// nothing to do on this root
			default:
				found = true
				gone = false
			}
		}
		if gone {
			if !found {
				return ErrBlobNotFound
			}
			return nil
		}
	}

	select {
	case s.pending <- path:
	default:
		s.logger.Warn().Str("path", path).Msg("blob reaper queue full, dropping cleanup request")
	}
	return ErrDeleteDeferred
}

// reap periodically retries deletions that failed in the foreground.
func (s *FSStore) reap() {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	var backlog []string
	for {
		select {
		case <-s.done:
			return
		case path := <-s.pending:
			backlog = append(backlog, path)
		case <-ticker.C:
			remaining := backlog[:0]
			for _, path := range backlog {
				if err := s.removeAll(path); err != nil {
					remaining = append(remaining, path)
					continue
				}
				s.logger.Info().Str("path", path).Msg("background blob cleanup succeeded")
			}
			backlog = remaining
		}
	}
}

func (s *FSStore) removeAll(path string) error {
	var lastErr error
	for _, root := range s.roots() {
		if err := os.Remove(filepath.Join(root, path)); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}
