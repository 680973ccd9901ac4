package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/wordgo/internal/calendar"
	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/pkg/models"
)

// importLegacy replays mirror data recorded before the database was available. It runs once per
// profile, guarded by a marker, and skips anything the database already holds so an interrupted
// import can be retried. Reports whether mirror data was replayed. Must hold t.mu.
func (t *Tracker) importLegacy(ctx context.Context, userID int64) bool {
	var done bool
	if t.kv.GetForProfileInto(t.profileKey, migratedKey, &done) && done {
		return false
	}

	m, hasMirror := t.loadMirror()
	var saved []savedWord
	hasSaved := t.kv.GetForProfileInto(t.profileKey, savedWordsKey, &saved)
	if !hasMirror && !hasSaved {
		t.kv.SetForProfile(t.profileKey, migratedKey, true)
		return false
	}

	t.logger.Info("importing legacy progress into database")
	err := errors.Join(
		t.importWords(ctx, userID, m),
		t.importHistory(ctx, userID, m),
		t.importSavedWords(ctx, userID, saved),
	)
	if err != nil {
		t.logger.Error("legacy progress import incomplete, will retry", "error", err)
		return true
	}
	t.kv.SetForProfile(t.profileKey, migratedKey, true)
	t.logger.Info("legacy progress imported", "days", len(m.StudyHistory), "saved_words", len(saved))
	return true
}

func (t *Tracker) importWords(ctx context.Context, userID int64, m *Mirror) error {
	languages := make([]string, 0, len(m.LanguageProgress))
	for code := range m.LanguageProgress {
		languages = append(languages, code)
	}
	sort.Strings(languages)

	var errs []error
	for _, code := range languages {
		lp := m.LanguageProgress[code]
		if lp == nil {
			continue
		}
		for _, word := range lp.CompletedWords {
			_, err := t.db.GetWordProgress(ctx, userID, code, word)
			switch {
			case errors.Is(err, database.ErrNotFound):
				if _, err := t.db.RecordWordLearned(ctx, userID, code, word); err != nil {
					errs = append(errs, err)
					continue
				}
			case err != nil:
				errs = append(errs, err)
				continue
			}
			if level := lp.Mastery[word]; level > 0 {
				if _, err := t.db.UpdateMasteryLevel(ctx, userID, code, word, level); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) importHistory(ctx context.Context, userID int64, m *Mirror) error {
	if len(m.StudyHistory) == 0 {
		return nil
	}
	existing, err := t.db.GetDailyStats(ctx, userID, "", "")
	if err != nil {
		return fmt.Errorf("failed to read daily stats: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.Date] = true
	}

	history := append([]HistoryEntry(nil), m.StudyHistory...)
	sort.SliceStable(history, func(i, j int) bool { return history[i].Date < history[j].Date })

	var errs []error
	days := make([]string, 0, len(history))
	for _, entry := range history {
		if entry.Date == "" {
			continue
		}
		days = append(days, entry.Date)
		if have[entry.Date] {
			continue
		}
		words := 0
		for _, n := range entry.Languages {
			words += n
		}
		stat := models.DailyStat{
			UserID:       userID,
			Date:         entry.Date,
			WordsLearned: words,
			StreakDays:   calendar.CurrentStreak(days, entry.Date),
		}
		if _, err := t.db.RecordDailyStats(ctx, stat); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) importSavedWords(ctx context.Context, userID int64, saved []savedWord) error {
	if len(saved) == 0 {
		return nil
	}
	existing, err := t.db.GetSavedWords(ctx, userID, "")
	if err != nil {
		return fmt.Errorf("failed to read saved words: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, w := range existing {
		have[wordKey(w.Language, w.WordIndex)] = true
	}

	var errs []error
	for _, w := range saved {
		if have[wordKey(w.Language, w.WordIndex)] {
			continue
		}
		if _, err := t.db.SaveWord(ctx, userID, w.Language, w.Word, w.WordIndex, w.Notes); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
