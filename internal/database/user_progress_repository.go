package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/wordgo/pkg/models"
	"github.com/jmoiron/sqlx"
)

// RecordWordLearned inserts a progress row; recording the same word again bumps review_count
func (s *Store) RecordWordLearned(ctx context.Context, userID int64, language, word string) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	args := progressUpsert.args(userID, language, word, s.now(), 0, 0)
	if _, err := db.ExecContext(ctx, progressUpsert.query(), args...); err != nil {
		return nil, fmt.Errorf("failed to record learned word: %w", err)
	}
	return s.persist(), nil
}

// UpdateMasteryLevel sets the mastery level of a word, creating its progress row when missing.
// Unlike RecordWordLearned it does not count as a review.
func (s *Store) UpdateMasteryLevel(ctx context.Context, userID int64, language, word string, level int) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	now := s.now()
	query := `
		INSERT INTO progress (user_id, language, word, learned_at, review_count, mastery_level, last_reviewed)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id, language, word) DO UPDATE SET
			mastery_level = excluded.mastery_level,
			last_reviewed = excluded.last_reviewed
	`
	if _, err := db.ExecContext(ctx, query, userID, language, word, now, level, now); err != nil {
		return nil, fmt.Errorf("failed to update mastery level: %w", err)
	}
	return s.persist(), nil
}

// GetWordProgress returns the progress row for one word
func (s *Store) GetWordProgress(ctx context.Context, userID int64, language, word string) (*models.ProgressRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var p models.ProgressRecord
	err = db.GetContext(ctx, &p, `
		SELECT id, user_id, language, word, learned_at, review_count, last_reviewed, mastery_level
		FROM progress WHERE user_id = ? AND language = ? AND word = ?`, userID, language, word)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get word progress: %w", err)
	}
	return &p, nil
}

// GetLearnedWords returns every progress row of a language, oldest first
func (s *Store) GetLearnedWords(ctx context.Context, userID int64, language string) ([]models.ProgressRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	words := []models.ProgressRecord{}
	err = db.SelectContext(ctx, &words, `
		SELECT id, user_id, language, word, learned_at, review_count, last_reviewed, mastery_level
		FROM progress WHERE user_id = ? AND language = ?
		ORDER BY learned_at, id`, userID, language)
	if err != nil {
		return nil, fmt.Errorf("failed to get learned words: %w", err)
	}
	return words, nil
}

// GetLearnedCount returns how many distinct words of a language have been learned
func (s *Store) GetLearnedCount(ctx context.Context, userID int64, language string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM progress WHERE user_id = ? AND language = ?", userID, language); err != nil {
		return 0, fmt.Errorf("failed to count learned words: %w", err)
	}
	return count, nil
}

// GetTotalWordsLearned returns how many distinct words have been learned across languages
func (s *Store) GetTotalWordsLearned(ctx context.Context, userID int64) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM progress WHERE user_id = ?", userID); err != nil {
		return 0, fmt.Errorf("failed to count learned words: %w", err)
	}
	return count, nil
}

// GetLanguageProgress aggregates the progress rows of one language
func (s *Store) GetLanguageProgress(ctx context.Context, userID int64, language string) (models.LanguageProgress, error) {
	lp := models.LanguageProgress{Language: language}
	db, err := s.conn()
	if err != nil {
		return lp, err
	}

	err = db.GetContext(ctx, &lp, `
		SELECT ? AS language,
			COUNT(*) AS words_learned,
			COALESCE(SUM(review_count), 0) AS total_reviews,
			COALESCE(AVG(mastery_level), 0) AS avg_mastery
		FROM progress WHERE user_id = ? AND language = ?`, language, userID, language)
	if err != nil {
		return lp, fmt.Errorf("failed to get language progress: %w", err)
	}

	if lp.WordsLearned > 0 {
		last, err := lastStudied(ctx, db, userID, language)
		if err != nil {
			return lp, err
		}
		lp.LastStudied = last
	}
	return lp, nil
}

// GetAllLanguageProgress aggregates progress per language, alphabetically
func (s *Store) GetAllLanguageProgress(ctx context.Context, userID int64) ([]models.LanguageProgress, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var languages []string
	if err := db.SelectContext(ctx, &languages, "SELECT DISTINCT language FROM progress WHERE user_id = ? ORDER BY language", userID); err != nil {
		return nil, fmt.Errorf("failed to list languages: %w", err)
	}

	out := make([]models.LanguageProgress, 0, len(languages))
	for _, lang := range languages {
		lp, err := s.GetLanguageProgress(ctx, userID, lang)
		if err != nil {
			return nil, err
		}
		out = append(out, lp)
	}
	return out, nil
}

func lastStudied(ctx context.Context, db *sqlx.DB, userID int64, language string) (*time.Time, error) {
	var row struct {
		LearnedAt    time.Time  `db:"learned_at"`
		LastReviewed *time.Time `db:"last_reviewed"`
	}
	err := db.GetContext(ctx, &row, `
		SELECT learned_at, last_reviewed FROM progress
		WHERE user_id = ? AND language = ?
		ORDER BY COALESCE(last_reviewed, learned_at) DESC LIMIT 1`, userID, language)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last study time: %w", err)
	}
	last := row.LearnedAt
	if row.LastReviewed != nil && row.LastReviewed.After(last) {
		last = *row.LastReviewed
	}
	return &last, nil
}
