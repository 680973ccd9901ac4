// Package assessment turns quiz scores into CEFR levels and records them against a profile.
package assessment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/pkg/models"
)

// TestType represents different types of tests
type TestType string

const (
	// Placement is the first test after enrolling in a language
	Placement TestType = "placement"
	// SelfAssessment is a level picked by the learner
	SelfAssessment TestType = "self_assessment"
	// Quiz is a periodic progress check
	Quiz TestType = "quiz"
)

// thresholds are the exclusive upper score bounds of each level, in percent
var thresholds = []struct {
	below float64
	level string
}{
	{20, "a1"},
	{40, "a2"},
	{60, "b1"},
	{75, "b2"},
	{90, "c1"},
}

// Result is a scored test
type Result struct {
	Level   string
	Score   float64
	Correct int
	Total   int
}

// Evaluate scores correct answers out of total and maps the percentage to a level.
// An empty test scores zero.
func Evaluate(correct, total int) Result {
	if total <= 0 {
		return Result{Level: "a1"}
	}
	correct = min(max(correct, 0), total)
	score := math.Round(float64(correct)*1000/float64(total)) / 10

	level := "c2"
	for _, t := range thresholds {
		if score < t.below {
			level = t.level
			break
		}
	}
	return Result{Level: level, Score: score, Correct: correct, Total: total}
}

// Registry is where results are stored
type Registry interface {
	RecordProficiencyTest(ctx context.Context, t models.ProficiencyTest) (int64, error)
	GetProfileLanguages(ctx context.Context, profileID int64, activeOnly bool) ([]models.ProfileLanguage, error)
	UpdateProfileLanguage(ctx context.Context, languageID int64, patch database.LanguagePatch) (*models.ProfileLanguage, error)
}

// Service records completed tests
type Service struct {
	registry Registry
}

func NewService(registry Registry) *Service {
	return &Service{registry: registry}
}

// Submission is a finished test
type Submission struct {
	ProfileID int64
	Language  string
	Type      TestType
	Correct   int
	Total     int
	// ApplyLevel moves the enrollment to the determined level
	ApplyLevel bool
}

// Complete scores a submission, stores it and optionally applies the level to the enrollment
func (s *Service) Complete(ctx context.Context, sub Submission) (Result, error) {
	res := Evaluate(sub.Correct, sub.Total)
	if sub.Type == "" {
		sub.Type = Quiz
	}
	language := strings.ToLower(sub.Language)

	_, err := s.registry.RecordProficiencyTest(ctx, models.ProficiencyTest{
		ProfileID:        sub.ProfileID,
		LanguageCode:     language,
		TestType:         string(sub.Type),
		DeterminedLevel:  res.Level,
		Score:            res.Score,
		QuestionsTotal:   res.Total,
		QuestionsCorrect: res.Correct,
	})
	if err != nil {
		return res, fmt.Errorf("failed to record test: %w", err)
	}
	if !sub.ApplyLevel {
		return res, nil
	}

	langs, err := s.registry.GetProfileLanguages(ctx, sub.ProfileID, false)
	if err != nil {
		return res, err
	}
	for _, l := range langs {
		if l.LanguageCode != language {
			continue
		}
		level := res.Level
		if _, err := s.registry.UpdateProfileLanguage(ctx, l.ID, database.LanguagePatch{LevelCode: &level}); err != nil {
			return res, fmt.Errorf("failed to apply level: %w", err)
		}
		return res, nil
	}
	return res, fmt.Errorf("profile %d is not enrolled in %q: %w", sub.ProfileID, language, database.ErrNotFound)
}
