package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/wordgo/pkg/models"
	"github.com/jmoiron/sqlx"
)

const profileColumns = `id, profile_key, profile_type, display_name, avatar_emoji, native_language,
	interface_languages, settings, created_at, last_active, is_archived`

// InsertProfile stores a new profile row and returns its id.
// CreatedAt and LastActive default to now when zero.
func (s *Store) InsertProfile(ctx context.Context, p *models.Profile) (int64, *Flush, error) {
	db, err := s.conn()
	if err != nil {
		return 0, nil, err
	}
	id, err := s.insertProfile(ctx, db, p)
	if err != nil {
		return 0, nil, err
	}
	return id, s.persist(), nil
}

// CreateProfile stores a profile, its language enrollments and the companion user row in one
// transaction. Nothing is stored when any of them fails.
func (s *Store) CreateProfile(ctx context.Context, p *models.Profile, languages []models.ProfileLanguage) (int64, *Flush, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		if id, err = s.insertProfile(ctx, tx, p); err != nil {
			return err
		}
		for _, l := range languages {
			l.ProfileID = id
			if _, err := s.insertProfileLanguage(ctx, tx, l); err != nil {
				return fmt.Errorf("language %s: %w", l.LanguageCode, err)
			}
		}
		now := s.now()
		if _, err := tx.ExecContext(ctx, userUpsert.query(), userUpsert.args(p.ProfileKey, now, now, models.Settings{})...); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		p.ID = 0
		return 0, nil, err
	}
	return id, s.persist(), nil
}

func (s *Store) insertProfile(ctx context.Context, ex sqlx.ExecerContext, p *models.Profile) (int64, error) {
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastActive.IsZero() {
		p.LastActive = now
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO user_profiles (
			profile_key, profile_type, display_name, avatar_emoji, native_language,
			interface_languages, settings, created_at, last_active, is_archived
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProfileKey, p.ProfileType, p.DisplayName, p.AvatarEmoji, p.NativeLanguage,
		p.InterfaceLanguages, p.Settings, p.CreatedAt, p.LastActive, p.IsArchived)
	if err != nil {
		return 0, fmt.Errorf("failed to insert profile: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get profile id: %w", err)
	}
	p.ID = id
	return id, nil
}

// GetProfileByID returns a profile row, archived or not
func (s *Store) GetProfileByID(ctx context.Context, id int64) (*models.Profile, error) {
	return s.getProfile(ctx, "id = ?", id)
}

// GetProfileByKey returns a profile row, archived or not
func (s *Store) GetProfileByKey(ctx context.Context, key string) (*models.Profile, error) {
	return s.getProfile(ctx, "profile_key = ?", key)
}

func (s *Store) getProfile(ctx context.Context, where string, arg any) (*models.Profile, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var p models.Profile
	err = db.GetContext(ctx, &p, "SELECT "+profileColumns+" FROM user_profiles WHERE "+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// ListProfiles returns profiles, most recently active first
func (s *Store) ListProfiles(ctx context.Context, filter ProfileFilter) ([]models.Profile, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var conds []string
	var args []any
	if !filter.IncludeArchived {
		conds = append(conds, "is_archived = 0")
	}
	if filter.Type != "" {
		conds = append(conds, "profile_type = ?")
		args = append(args, filter.Type)
	}
	query := "SELECT " + profileColumns + " FROM user_profiles"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY last_active DESC, id DESC"

	profiles := []models.Profile{}
	if err := db.SelectContext(ctx, &profiles, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// UpdateProfile applies the non-nil fields of patch. Only the columns named by
// ProfilePatch can ever be written.
func (s *Store) UpdateProfile(ctx context.Context, id int64, patch ProfilePatch) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return completedFlush(), nil
	}

	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.AvatarEmoji != nil {
		add("avatar_emoji", *patch.AvatarEmoji)
	}
	if patch.NativeLanguage != nil {
		add("native_language", *patch.NativeLanguage)
	}
	if patch.InterfaceLanguages != nil {
		add("interface_languages", *patch.InterfaceLanguages)
	}
	if patch.Settings != nil {
		add("settings", *patch.Settings)
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx, "UPDATE user_profiles SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.persist(), nil
}

// SetProfileArchived archives or restores a profile
func (s *Store) SetProfileArchived(ctx context.Context, id int64, archived bool) (*Flush, error) {
	return s.execProfile(ctx, "UPDATE user_profiles SET is_archived = ? WHERE id = ?", archived, id)
}

// TouchProfile refreshes last_active
func (s *Store) TouchProfile(ctx context.Context, id int64) (*Flush, error) {
	return s.execProfile(ctx, "UPDATE user_profiles SET last_active = ? WHERE id = ?", s.now(), id)
}

func (s *Store) execProfile(ctx context.Context, query string, args ...any) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.persist(), nil
}

// DeleteProfile removes a profile together with its languages and test results
func (s *Store) DeleteProfile(ctx context.Context, id int64) (*Flush, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := deleteProfiles(ctx, tx, "id = ?", id)
		deleted = n
		return err
	})
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		return nil, ErrNotFound
	}
	return s.persist(), nil
}

// DeleteProfilesByType removes every profile of a type with its dependents and returns how many went
func (s *Store) DeleteProfilesByType(ctx context.Context, profileType models.ProfileType) (int64, *Flush, error) {
	var deleted int64
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		n, err := deleteProfiles(ctx, tx, "profile_type = ?", profileType)
		deleted = n
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	if deleted == 0 {
		return 0, completedFlush(), nil
	}
	return deleted, s.persist(), nil
}

func deleteProfiles(ctx context.Context, tx *sqlx.Tx, where string, arg any) (int64, error) {
	sub := "SELECT id FROM user_profiles WHERE " + where
	if _, err := tx.ExecContext(ctx, "DELETE FROM proficiency_tests WHERE profile_id IN ("+sub+")", arg); err != nil {
		return 0, fmt.Errorf("failed to delete proficiency tests: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM profile_languages WHERE profile_id IN ("+sub+")", arg); err != nil {
		return 0, fmt.Errorf("failed to delete profile languages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM user_profiles WHERE "+where, arg)
	if err != nil {
		return 0, fmt.Errorf("failed to delete profiles: %w", err)
	}
	return res.RowsAffected()
}

var countableTables = map[string]bool{
	"users": true, "progress": true, "saved_words": true, "daily_stats": true,
	"user_profiles": true, "profile_languages": true, "proficiency_tests": true,
}

// CountRows returns the row count of one of the application tables
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	if !countableTables[table] {
		return 0, fmt.Errorf("unknown table %q", table)
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
