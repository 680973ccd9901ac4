package database

import (
	"context"
	"fmt"

	"github.com/example/wordgo/pkg/models"
)

// RecordProficiencyTest appends a test result and returns its id
func (s *Store) RecordProficiencyTest(ctx context.Context, t models.ProficiencyTest) (int64, *Flush, error) {
	db, err := s.conn()
	if err != nil {
		return 0, nil, err
	}
	if t.TakenAt.IsZero() {
		t.TakenAt = s.now()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO proficiency_tests (
			profile_id, language_code, test_type, determined_level,
			score, questions_total, questions_correct, taken_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ProfileID, t.LanguageCode, t.TestType, t.DeterminedLevel,
		t.Score, t.QuestionsTotal, t.QuestionsCorrect, t.TakenAt)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to record proficiency test: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get test id: %w", err)
	}
	return id, s.persist(), nil
}

// GetProficiencyTests returns a profile's results, newest first.
// An empty language returns results for every language.
func (s *Store) GetProficiencyTests(ctx context.Context, profileID int64, language string) ([]models.ProficiencyTest, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	query := `SELECT id, profile_id, language_code, test_type, determined_level,
		score, questions_total, questions_correct, taken_at
		FROM proficiency_tests WHERE profile_id = ?`
	args := []any{profileID}
	if language != "" {
		query += " AND language_code = ?"
		args = append(args, language)
	}
	query += " ORDER BY taken_at DESC, id DESC"

	tests := []models.ProficiencyTest{}
	if err := db.SelectContext(ctx, &tests, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get proficiency tests: %w", err)
	}
	return tests, nil
}
