// Package blockstore persists opaque binary objects in a directory, one file per key.
//
// Every call runs under a deadline so a stuck filesystem cannot hang the caller, and writes are
// retried with exponential backoff before the failure is reported as ErrUnavailable.
package blockstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned when no object exists for a key
	ErrNotFound = errors.New("block not found")
	// ErrUnavailable is returned when the storage could not be reached in time
	ErrUnavailable = errors.New("block storage unavailable")
)

const (
	DefaultTimeout  = 5 * time.Second
	defaultAttempts = 3
)

// Store is a directory-backed object store
type Store struct {
	fs      afero.Fs
	dir     string
	timeout time.Duration
	retrier retry.Retry[struct{}]
	logger  *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithTimeout sets the deadline applied to each storage call
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetry overrides the write retry policy
func WithRetry(attempts int, initialDelay time.Duration) Option {
	return func(s *Store) {
		s.retrier = newRetrier(attempts, initialDelay)
	}
}

// New opens the store rooted at dir, creating the directory when needed
func New(fs afero.Fs, dir string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:      fs,
		dir:     dir,
		timeout: DefaultTimeout,
		retrier: newRetrier(defaultAttempts, 50*time.Millisecond),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "blockstore")

	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create block directory: %w: %w", ErrUnavailable, err)
	}
	return s, nil
}

func newRetrier(attempts int, initialDelay time.Duration) retry.Retry[struct{}] {
	if attempts < 1 {
		attempts = 1
	}
	return retry.New[struct{}](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  initialDelay,
		MaxDelay:      2 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// Get returns the object stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	var data []byte
	err = s.withDeadline(ctx, "get", func(context.Context) error {
		b, err := afero.ReadFile(s.fs, path)
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w: %w", key, ErrUnavailable, err)
	}
	return data, nil
}

// Put stores data under key, replacing any previous object atomically
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	_, err = s.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.withDeadline(ctx, "put", func(ctx context.Context) error {
			return s.write(ctx, path, data)
		})
	})
	if err != nil {
		return fmt.Errorf("put %q: %w: %w", key, ErrUnavailable, err)
	}
	s.logger.Debug("stored block", "key", key, "bytes", len(data))
	return nil
}

// Delete removes the object stored under key. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = s.withDeadline(ctx, "delete", func(context.Context) error {
		err := s.fs.Remove(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w: %w", key, ErrUnavailable, err)
	}
	return nil
}

// write stores data in a temp file of its own and renames it over path.
// An attempt whose deadline has passed removes its temp file instead, so it can never
// replace an object written by a later attempt.
func (s *Store) write(ctx context.Context, path string, data []byte) error {
	f, err := afero.TempFile(s.fs, filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = s.fs.Rename(tmp, path)
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
	}
	return err
}

// withDeadline runs op in its own goroutine and gives up once the timeout expires.
// An abandoned op finishes in the background with its context cancelled; its result is discarded.
func (s *Store) withDeadline(ctx context.Context, name string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.logger.Warn("block storage call timed out", "op", name, "timeout", s.timeout)
		return ctx.Err()
	}
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid block key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
