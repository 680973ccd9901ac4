package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/wordgo/pkg/models"
)

// GetUserByProfileKey returns the legacy user row for a profile key
func (s *Store) GetUserByProfileKey(ctx context.Context, profileKey string) (*models.User, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var user models.User
	err = db.GetContext(ctx, &user, "SELECT id, profile_key, created_at, last_active, settings FROM users WHERE profile_key = ?", profileKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetOrCreateUser returns the user row for profileKey, inserting it first when missing
func (s *Store) GetOrCreateUser(ctx context.Context, profileKey string) (*models.User, *Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	res, err := db.ExecContext(ctx, userUpsert.query(), userUpsert.args(profileKey, now, now, models.Settings{})...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	flush := completedFlush()
	if n, _ := res.RowsAffected(); n > 0 {
		flush = s.persist()
		s.logger.Debug("created user", "profile_key", profileKey)
	}

	user, err := s.GetUserByProfileKey(ctx, profileKey)
	if err != nil {
		return nil, flush, err
	}
	return user, flush, nil
}

// TouchUser refreshes last_active
func (s *Store) TouchUser(ctx context.Context, userID int64) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "UPDATE users SET last_active = ? WHERE id = ?", s.now(), userID); err != nil {
		return nil, fmt.Errorf("failed to update user activity: %w", err)
	}
	return s.persist(), nil
}
