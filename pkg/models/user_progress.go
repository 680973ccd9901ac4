package models

import "time"

// ProgressRecord tracks a single learned word for a user and language
type ProgressRecord struct {
	ID           int64      `json:"id" db:"id"`
	UserID       int64      `json:"user_id" db:"user_id"`
	Language     string     `json:"language" db:"language"`
	Word         string     `json:"word" db:"word"`
	LearnedAt    time.Time  `json:"learned_at" db:"learned_at"`
	ReviewCount  int        `json:"review_count" db:"review_count"`
	LastReviewed *time.Time `json:"last_reviewed,omitempty" db:"last_reviewed"`
	MasteryLevel int        `json:"mastery_level" db:"mastery_level"`
}

// LanguageProgress is the per-language aggregate over progress rows
type LanguageProgress struct {
	Language     string     `json:"language" db:"language"`
	WordsLearned int        `json:"words_learned" db:"words_learned"`
	TotalReviews int        `json:"total_reviews" db:"total_reviews"`
	AvgMastery   float64    `json:"avg_mastery" db:"avg_mastery"`
	LastStudied  *time.Time `json:"last_studied,omitempty" db:"-"`
}

// SavedWord is a bookmarked word. Re-saving the same index replaces the row.
type SavedWord struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Language  string    `json:"language" db:"language"`
	Word      string    `json:"word" db:"word"`
	WordIndex int       `json:"word_index" db:"word_index"`
	SavedAt   time.Time `json:"saved_at" db:"saved_at"`
	Notes     *string   `json:"notes,omitempty" db:"notes"`
}
