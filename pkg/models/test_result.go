package models

import "time"

// ProficiencyTest is an append-only record of a placement or progress test
type ProficiencyTest struct {
	ID               int64     `json:"id" db:"id"`
	ProfileID        int64     `json:"profile_id" db:"profile_id"`
	LanguageCode     string    `json:"language_code" db:"language_code"`
	TestType         string    `json:"test_type" db:"test_type"`
	DeterminedLevel  string    `json:"determined_level" db:"determined_level"`
	Score            float64   `json:"score" db:"score"`
	QuestionsTotal   int       `json:"questions_total" db:"questions_total"`
	QuestionsCorrect int       `json:"questions_correct" db:"questions_correct"`
	TakenAt          time.Time `json:"taken_at" db:"taken_at"`
}
