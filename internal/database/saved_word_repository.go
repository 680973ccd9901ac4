package database

import (
	"context"
	"fmt"

	"github.com/example/wordgo/pkg/models"
)

// SaveWord bookmarks a word; saving the same index again replaces the bookmark
func (s *Store) SaveWord(ctx context.Context, userID int64, language, word string, wordIndex int, notes *string) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	args := savedWordUpsert.args(userID, language, word, wordIndex, s.now(), notes)
	if _, err := db.ExecContext(ctx, savedWordUpsert.query(), args...); err != nil {
		return nil, fmt.Errorf("failed to save word: %w", err)
	}
	return s.persist(), nil
}

// UnsaveWord removes a bookmark. Removing a missing bookmark writes nothing.
func (s *Store) UnsaveWord(ctx context.Context, userID int64, language string, wordIndex int) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, "DELETE FROM saved_words WHERE user_id = ? AND language = ? AND word_index = ?", userID, language, wordIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to unsave word: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return completedFlush(), nil
	}
	return s.persist(), nil
}

// GetSavedWords returns the bookmarks of a language, newest first.
// An empty language returns bookmarks of every language.
func (s *Store) GetSavedWords(ctx context.Context, userID int64, language string) ([]models.SavedWord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	words := []models.SavedWord{}
	query := "SELECT id, user_id, language, word, word_index, saved_at, notes FROM saved_words WHERE user_id = ?"
	args := []any{userID}
	if language != "" {
		query += " AND language = ?"
		args = append(args, language)
	}
	query += " ORDER BY saved_at DESC, id DESC"

	if err := db.SelectContext(ctx, &words, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get saved words: %w", err)
	}
	return words, nil
}
