package database

import (
	"context"
	"fmt"

	"github.com/example/wordgo/internal/calendar"
	"github.com/example/wordgo/pkg/models"
)

// RecordDailyStats adds a day's numbers to the stored totals. streak_days is overwritten.
func (s *Store) RecordDailyStats(ctx context.Context, stat models.DailyStat) (*Flush, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if stat.Date == "" {
		stat.Date = calendar.Day(s.clock(), s.location)
	}
	args := dailyStatsUpsert.args(stat.UserID, stat.Date, stat.WordsLearned, stat.WordsReviewed, stat.StudyTimeSeconds, stat.StreakDays)
	if _, err := db.ExecContext(ctx, dailyStatsUpsert.query(), args...); err != nil {
		return nil, fmt.Errorf("failed to record daily stats: %w", err)
	}
	return s.persist(), nil
}

// GetDailyStats returns the stats between from and to inclusive, oldest first.
// Empty bounds are open.
func (s *Store) GetDailyStats(ctx context.Context, userID int64, from, to string) ([]models.DailyStat, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	query := `SELECT user_id, date, words_learned, words_reviewed, study_time_seconds, streak_days
		FROM daily_stats WHERE user_id = ?`
	args := []any{userID}
	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY date"

	stats := []models.DailyStat{}
	if err := db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	return stats, nil
}

func (s *Store) studyDays(ctx context.Context, userID int64) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var days []string
	if err := db.SelectContext(ctx, &days, "SELECT date FROM daily_stats WHERE user_id = ? ORDER BY date", userID); err != nil {
		return nil, fmt.Errorf("failed to get study days: %w", err)
	}
	return days, nil
}

// GetCurrentStreak counts consecutive study days ending today or yesterday
func (s *Store) GetCurrentStreak(ctx context.Context, userID int64) (int, error) {
	days, err := s.studyDays(ctx, userID)
	if err != nil {
		return 0, err
	}
	return calendar.CurrentStreak(days, calendar.Day(s.clock(), s.location)), nil
}

// GetLongestStreak returns the longest run of consecutive study days
func (s *Store) GetLongestStreak(ctx context.Context, userID int64) (int, error) {
	days, err := s.studyDays(ctx, userID)
	if err != nil {
		return 0, err
	}
	return calendar.LongestStreak(days), nil
}

// GetStats computes every summary field from daily_stats
func (s *Store) GetStats(ctx context.Context, userID int64) (models.Stats, error) {
	var stats models.Stats
	db, err := s.conn()
	if err != nil {
		return stats, err
	}
	days, err := s.studyDays(ctx, userID)
	if err != nil {
		return stats, err
	}
	stats.CurrentStreak = calendar.CurrentStreak(days, calendar.Day(s.clock(), s.location))
	stats.LongestStreak = calendar.LongestStreak(days)
	stats.TotalDaysStudied = len(days)

	if err := db.GetContext(ctx, &stats.TotalWordsStudied,
		"SELECT COALESCE(SUM(words_learned), 0) FROM daily_stats WHERE user_id = ?", userID); err != nil {
		return stats, fmt.Errorf("failed to sum studied words: %w", err)
	}
	return stats, nil
}
