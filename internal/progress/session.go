package progress

import (
	"context"

	"github.com/example/wordgo/internal/calendar"
	"github.com/example/wordgo/pkg/models"
)

// SessionResult is the state after recording a study session
type SessionResult struct {
	Date          string
	NewDay        bool
	CurrentStreak int
	LongestStreak int
	// TodayWords is today's tally for the session's language
	TodayWords int
}

// RecordStudySession adds wordsStudied to today's tally for language and advances the streak.
//
// The first session of a day extends the streak when the previous study day was yesterday and
// resets it to 1 after a gap. Later sessions on the same day only add to the tally.
func (t *Tracker) RecordStudySession(ctx context.Context, language string, wordsStudied int) SessionResult {
	if wordsStudied < 0 {
		wordsStudied = 0
	}
	today := t.today()

	t.mu.Lock()
	defer t.mu.Unlock()

	m, _ := t.loadMirror()
	res := SessionResult{Date: today}

	if m.LastStudyDate == today {
		todayEntry(m, today).Languages[language] += wordsStudied
	} else {
		res.NewDay = true
		advanceStreak(m, today)
		m.TotalDaysStudied++
		m.StudyHistory = append(m.StudyHistory, HistoryEntry{
			Date:      today,
			Languages: map[string]int{language: wordsStudied},
		})
	}
	if m.CurrentStreak > m.LongestStreak {
		m.LongestStreak = m.CurrentStreak
	}
	m.LastStudyDate = today
	m.TotalWordsStudied += wordsStudied

	lp := m.language(language)
	lp.WordsStudied += wordsStudied
	lp.LastStudied = today

	res.CurrentStreak = m.CurrentStreak
	res.LongestStreak = m.LongestStreak
	res.TodayWords = todayEntry(m, today).Languages[language]
	t.saveMirror(m)

	streak := m.CurrentStreak
	t.writeThrough(ctx, "record_daily_stats", func(ctx context.Context, userID int64) error {
		_, err := t.db.RecordDailyStats(ctx, models.DailyStat{
			UserID:       userID,
			Date:         today,
			WordsLearned: wordsStudied,
			StreakDays:   streak,
		})
		return err
	})
	return res
}

// advanceStreak applies the first session of a new day to the streak
func advanceStreak(m *Mirror, today string) {
	if m.LastStudyDate == "" {
		m.CurrentStreak = 1
		return
	}
	gap, err := calendar.DaysBetween(m.LastStudyDate, today)
	if err == nil && gap == 1 {
		m.CurrentStreak++
		return
	}
	m.CurrentStreak = 1
}

// todayEntry returns the history entry for today, adding it when missing
func todayEntry(m *Mirror, today string) *HistoryEntry {
	if n := len(m.StudyHistory); n == 0 || m.StudyHistory[n-1].Date != today {
		m.StudyHistory = append(m.StudyHistory, HistoryEntry{Date: today})
	}
	e := &m.StudyHistory[len(m.StudyHistory)-1]
	if e.Languages == nil {
		e.Languages = map[string]int{}
	}
	return e
}
