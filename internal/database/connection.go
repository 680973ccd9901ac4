// Package database is the relational store: an in-memory SQLite engine whose full image is
// persisted as a snapshot to block storage, with a base64 copy in the key-value store as fallback.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"
)

// memoryDSN opens a private in-memory database. go-sqlite3 reads the params and drops them from the name.
const memoryDSN = ":memory:?_foreign_keys=1"

const (
	DefaultSnapshotKey    = "db-snapshot"
	DefaultSnapshotObject = "wordgo.sqlite"
	defaultPersistTimeout = 30 * time.Second
)

// BlockStorage is where snapshots are written first
type BlockStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// FallbackStore holds the base64 snapshot when block storage is unavailable
type FallbackStore interface {
	GetString(key string) (string, bool)
	Set(key string, value any) bool
	Remove(key string) bool
	Has(key string) bool
}

// Store is the relational store. The zero value is not usable; call New then Init.
type Store struct {
	blocks   BlockStorage
	fallback FallbackStore

	snapshotKey    string
	snapshotObject string
	persistTimeout time.Duration
	location       *time.Location
	clock          func() time.Time
	logger         *slog.Logger

	db          *sqlx.DB
	initialized atomic.Bool
	closed      atomic.Bool
	group       singleflight.Group

	// saveMu serializes snapshot writes; queued is the flush waiting for it, if any
	saveMu  sync.Mutex
	queueMu sync.Mutex
	queued  *Flush
	pending sync.WaitGroup
	dirty   atomic.Bool
}

// Option configures a Store
type Option func(*Store)

func WithSnapshotKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.snapshotKey = key
		}
	}
}

func WithSnapshotObject(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.snapshotObject = name
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocation sets the zone used to turn timestamps into calendar days
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates an uninitialized Store. blocks may be nil when no block storage exists,
// in which case snapshots live only in the fallback store.
func New(blocks BlockStorage, fallback FallbackStore, opts ...Option) *Store {
	s := &Store{
		blocks:         blocks,
		fallback:       fallback,
		snapshotKey:    DefaultSnapshotKey,
		snapshotObject: DefaultSnapshotObject,
		persistTimeout: defaultPersistTimeout,
		location:       time.Local,
		clock:          time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "database")
	return s
}

// Init opens the engine, restores the persisted snapshot, applies migrations and persists once.
// It is idempotent and concurrent callers share a single initialization.
func (s *Store) Init(ctx context.Context) error {
	if s.initialized.Load() {
		return nil
	}
	if s.closed.Load() {
		return errors.New("database store is closed")
	}
	_, err, _ := s.group.Do("init", func() (any, error) {
		if s.initialized.Load() {
			return nil, nil
		}
		return nil, s.init(ctx)
	})
	return err
}

func (s *Store) init(ctx context.Context) error {
	db, err := openEngine()
	if err != nil {
		return err
	}

	if data, source := s.loadFromStorage(ctx); data != nil {
		if err := restoreSnapshot(ctx, db, data); err != nil {
			s.logger.Warn("discarding unreadable snapshot", "source", source, "error", err)
			db.Close()
			if db, err = openEngine(); err != nil {
				return err
			}
		} else {
			s.logger.Info("restored snapshot", "source", source, "bytes", len(data))
		}
	}

	if err := migrate(ctx, db, s.logger); err != nil {
		db.Close()
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	s.db = db
	s.initialized.Store(true)

	if err := s.SaveToStorage(ctx); err != nil {
		s.logger.Warn("initial snapshot was not persisted", "error", err)
	}
	return nil
}

func openEngine() (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", memoryDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The database lives inside its one connection, so it must never be recycled
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// IsInitialized reports whether Init has completed successfully
func (s *Store) IsInitialized() bool {
	return s.initialized.Load()
}

// Location is the zone used for calendar days
func (s *Store) Location() *time.Location { return s.location }

func (s *Store) conn() (*sqlx.DB, error) {
	if !s.initialized.Load() {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// withTx runs fn inside a transaction, rolling back on error
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Close waits for pending snapshot writes, persists once more if needed and closes the engine
func (s *Store) Close(ctx context.Context) error {
	if !s.initialized.Load() {
		s.closed.Store(true)
		return nil
	}
	s.pending.Wait()

	var saveErr error
	if s.dirty.Load() {
		saveErr = s.SaveToStorage(ctx)
	}

	s.initialized.Store(false)
	s.closed.Store(true)
	if err := s.db.Close(); err != nil {
		return errors.Join(saveErr, fmt.Errorf("failed to close database: %w", err))
	}
	return saveErr
}
