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

const languageColumns = `id, profile_id, language_code, language_name, level_code, specialty,
	daily_words, is_active, added_at`

// AddProfileLanguage enrolls a profile in a language. An existing enrollment for the same
// code is kept as it is and returned instead.
func (s *Store) AddProfileLanguage(ctx context.Context, l models.ProfileLanguage) (*models.ProfileLanguage, *Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, nil, err
	}
	n, err := s.insertProfileLanguage(ctx, db, l)
	if err != nil {
		return nil, nil, err
	}

	flush := completedFlush()
	if n > 0 {
		flush = s.persist()
	}

	stored, err := s.getProfileLanguage(ctx, "profile_id = ? AND language_code = ?", l.ProfileID, l.LanguageCode)
	if err != nil {
		return nil, flush, err
	}
	return stored, flush, nil
}

// insertProfileLanguage applies the ignore policy and returns how many rows were added
func (s *Store) insertProfileLanguage(ctx context.Context, ex sqlx.ExecerContext, l models.ProfileLanguage) (int64, error) {
	if l.DailyWords <= 0 {
		l.DailyWords = models.DefaultDailyWords
	}
	if l.AddedAt.IsZero() {
		l.AddedAt = s.now()
	}
	args := profileLanguageUpsert.args(l.ProfileID, l.LanguageCode, l.LanguageName, l.LevelCode, l.Specialty, l.DailyWords, l.IsActive, l.AddedAt)
	res, err := ex.ExecContext(ctx, profileLanguageUpsert.query(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to add profile language: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetProfileLanguage returns one enrollment by id
func (s *Store) GetProfileLanguage(ctx context.Context, id int64) (*models.ProfileLanguage, error) {
	return s.getProfileLanguage(ctx, "id = ?", id)
}

func (s *Store) getProfileLanguage(ctx context.Context, where string, args ...any) (*models.ProfileLanguage, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var l models.ProfileLanguage
	err = db.GetContext(ctx, &l, "SELECT "+languageColumns+" FROM profile_languages WHERE "+where+" ORDER BY id LIMIT 1", args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile language: %w", err)
	}
	return &l, nil
}

// GetProfileLanguages returns a profile's enrollments in the order they were added
func (s *Store) GetProfileLanguages(ctx context.Context, profileID int64, activeOnly bool) ([]models.ProfileLanguage, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	query := "SELECT " + languageColumns + " FROM profile_languages WHERE profile_id = ?"
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY added_at, id"

	languages := []models.ProfileLanguage{}
	if err := db.SelectContext(ctx, &languages, query, profileID); err != nil {
		return nil, fmt.Errorf("failed to get profile languages: %w", err)
	}
	return languages, nil
}

// UpdateProfileLanguage applies the non-nil fields of patch to an enrollment
func (s *Store) UpdateProfileLanguage(ctx context.Context, id int64, patch LanguagePatch) (*Flush, error) {
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
	if patch.LanguageName != nil {
		add("language_name", *patch.LanguageName)
	}
	if patch.LevelCode != nil {
		add("level_code", strings.ToLower(*patch.LevelCode))
	}
	if patch.Specialty != nil {
		add("specialty", *patch.Specialty)
	}
	if patch.DailyWords != nil {
		add("daily_words", *patch.DailyWords)
	}
	if patch.IsActive != nil {
		add("is_active", *patch.IsActive)
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx, "UPDATE profile_languages SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile language: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.persist(), nil
}

// RemoveProfileLanguage deletes a profile's enrollment in a language
func (s *Store) RemoveProfileLanguage(ctx context.Context, profileID int64, languageCode string) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM profile_languages WHERE profile_id = ? AND language_code = ?", profileID, languageCode)
	if err != nil {
		return nil, fmt.Errorf("failed to remove profile language: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.persist(), nil
}
