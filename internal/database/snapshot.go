package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/example/wordgo/internal/blockstore"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// Export serializes the whole database into a SQLite file image
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return serialize(ctx, db)
}

func serialize(ctx context.Context, db *sqlx.DB) ([]byte, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var image []byte
	err = conn.Raw(func(dc any) error {
		c, ok := dc.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", dc)
		}
		b, err := c.Serialize("main")
		if err != nil {
			return err
		}
		image = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize database: %w", err)
	}
	return image, nil
}

// restoreSnapshot copies image into db. The image is opened in a scratch connection and
// copied with the backup API, so db keeps a normal, growable in-memory file.
func restoreSnapshot(ctx context.Context, db *sqlx.DB, image []byte) error {
	if len(image) < len(sqliteHeader) || !bytes.Equal(image[:len(sqliteHeader)], sqliteHeader) {
		return ErrCorruptSnapshot
	}

	scratch, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return fmt.Errorf("failed to open scratch database: %w", err)
	}
	defer scratch.Close()

	src, err := scratch.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire scratch connection: %w", err)
	}
	defer src.Close()

	dst, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer dst.Close()

	err = src.Raw(func(sc any) error {
		srcConn, ok := sc.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", sc)
		}
		if err := srcConn.Deserialize(image, "main"); err != nil {
			return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
		}
		return dst.Raw(func(dc any) error {
			dstConn, ok := dc.(*sqlite3.SQLiteConn)
			if !ok {
				return fmt.Errorf("unexpected driver connection %T", dc)
			}
			backup, err := dstConn.Backup("main", srcConn, "main")
			if err != nil {
				return fmt.Errorf("failed to start restore: %w", err)
			}
			if _, err := backup.Step(-1); err != nil {
				_ = backup.Finish()
				return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
			}
			return backup.Finish()
		})
	})
	if err != nil {
		return err
	}

	// dst holds the pool's only connection, so the check has to run on it
	var result string
	if err := dst.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: quick_check reported %q", ErrCorruptSnapshot, result)
	}
	return nil
}

// loadFromStorage returns the persisted image and where it came from, or nil when there is none.
func (s *Store) loadFromStorage(ctx context.Context) ([]byte, string) {
	if s.blocks != nil {
		data, err := s.blocks.Get(ctx, s.snapshotObject)
		switch {
		case err == nil && len(data) > 0:
			return data, "block storage"
		case err != nil && !isNotFound(err):
			s.logger.Warn("block storage unavailable, trying fallback", "error", err)
		}
	}

	if s.fallback == nil {
		return nil, ""
	}
	encoded, ok := s.fallback.GetString(s.snapshotKey)
	if !ok || encoded == "" {
		return nil, ""
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.logger.Warn("fallback snapshot is not valid base64", "error", err)
		return nil, ""
	}
	return data, "fallback store"
}

func isNotFound(err error) bool {
	return errors.Is(err, blockstore.ErrNotFound)
}

// SaveToStorage writes the current image to block storage, or base64-encoded to the fallback
// store when block storage fails. Writes are serialized and each exports the latest state.
func (s *Store) SaveToStorage(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Store) saveLocked(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	s.dirty.Store(false)
	image, err := serialize(ctx, db)
	if err != nil {
		s.dirty.Store(true)
		return err
	}

	var blockErr error
	if s.blocks != nil {
		if blockErr = s.blocks.Put(ctx, s.snapshotObject, image); blockErr == nil {
			if s.fallback != nil && s.fallback.Has(s.snapshotKey) {
				s.fallback.Remove(s.snapshotKey)
			}
			return nil
		}
		s.logger.Warn("block storage write failed, using fallback", "error", blockErr)
	}

	if s.fallback != nil && s.fallback.Set(s.snapshotKey, base64.StdEncoding.EncodeToString(image)) {
		return nil
	}
	s.dirty.Store(true)
	return errors.Join(errors.New("snapshot could not be persisted"), blockErr)
}

// persist schedules a snapshot write after a mutation. A write that has not started yet
// is shared by every mutation that happens before it starts.
func (s *Store) persist() *Flush {
	s.dirty.Store(true)

	s.queueMu.Lock()
	if s.queued != nil {
		f := s.queued
		s.queueMu.Unlock()
		return f
	}
	f := newFlush()
	s.queued = f
	s.pending.Add(1)
	s.queueMu.Unlock()

	go func() {
		defer s.pending.Done()

		s.saveMu.Lock()
		s.queueMu.Lock()
		s.queued = nil
		s.queueMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		err := s.saveLocked(ctx)
		cancel()
		s.saveMu.Unlock()

		if err != nil {
			s.logger.Error("failed to persist snapshot", "error", err)
		}
		f.finish(err)
	}()
	return f
}

// Dirty reports whether there are changes not yet persisted
func (s *Store) Dirty() bool { return s.dirty.Load() }
