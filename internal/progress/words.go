package progress

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/internal/spaced_repetition"
	"github.com/example/wordgo/pkg/models"
)

// wordKey identifies a vocabulary item by its position in a language's word list
func wordKey(language string, index int) string {
	return language + "-" + strconv.Itoa(index)
}

// MarkWordCompleted records a word as learned and reports whether it was new to the mirror.
// Marking the same word again bumps its review count but never its completion.
func (t *Tracker) MarkWordCompleted(ctx context.Context, language string, wordIndex int) bool {
	word := wordKey(language, wordIndex)

	t.mu.Lock()
	defer t.mu.Unlock()

	m, _ := t.loadMirror()
	added := m.language(language).complete(word)
	t.saveMirror(m)

	t.writeThrough(ctx, "record_word_learned", func(ctx context.Context, userID int64) error {
		_, err := t.db.RecordWordLearned(ctx, userID, language, word)
		return err
	})
	return added
}

// ReviewResult is a word's mastery after a review
type ReviewResult struct {
	Level      int
	NextReview time.Time
	Mastered   bool
}

// ReviewWord grades a review of a word and moves its mastery level. The current level comes
// from the database when available, otherwise from the mirror.
func (t *Tracker) ReviewWord(ctx context.Context, language string, wordIndex int, quality spaced_repetition.QualityResponse) ReviewResult {
	word := wordKey(language, wordIndex)
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	m, _ := t.loadMirror()
	lp := m.language(language)
	level := lp.Mastery[word]
	if userID, ok := t.user(); ok {
		p, err := t.db.GetWordProgress(ctx, userID, language, word)
		switch {
		case err == nil:
			level = p.MasteryLevel
		case !errors.Is(err, database.ErrNotFound):
			t.logger.Warn("failed to read word progress, using mirror", "word", word, "error", err)
		}
	}

	level = t.sm.Process(level, quality)
	lp.complete(word)
	lp.setMastery(word, level)
	t.saveMirror(m)

	t.writeThrough(ctx, "review_word", func(ctx context.Context, userID int64) error {
		if _, err := t.db.RecordWordLearned(ctx, userID, language, word); err != nil {
			return err
		}
		_, err := t.db.UpdateMasteryLevel(ctx, userID, language, word, level)
		return err
	})

	return ReviewResult{
		Level:      level,
		NextReview: t.sm.NextReview(level, now),
		Mastered:   t.sm.IsMastered(level),
	}
}

// SaveWord bookmarks a word. Saving the same index again replaces the bookmark.
func (t *Tracker) SaveWord(ctx context.Context, language, word string, wordIndex int, notes *string) {
	savedAt := t.clock().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	saved := t.loadSaved()
	saved = removeSaved(saved, language, wordIndex)
	saved = append(saved, savedWord{
		Language:  language,
		Word:      word,
		WordIndex: wordIndex,
		SavedAt:   savedAt.Format(time.RFC3339),
		Notes:     notes,
	})
	t.storeSaved(saved)

	t.writeThrough(ctx, "save_word", func(ctx context.Context, userID int64) error {
		_, err := t.db.SaveWord(ctx, userID, language, word, wordIndex, notes)
		return err
	})
}

// UnsaveWord removes a bookmark
func (t *Tracker) UnsaveWord(ctx context.Context, language string, wordIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.storeSaved(removeSaved(t.loadSaved(), language, wordIndex))

	t.writeThrough(ctx, "unsave_word", func(ctx context.Context, userID int64) error {
		_, err := t.db.UnsaveWord(ctx, userID, language, wordIndex)
		return err
	})
}

// GetSavedWords lists bookmarks newest first; an empty language lists all of them
func (t *Tracker) GetSavedWords(ctx context.Context, language string) []models.SavedWord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if userID, ok := t.user(); ok {
		words, err := t.db.GetSavedWords(ctx, userID, language)
		if err == nil {
			return words
		}
		t.logger.Warn("failed to read saved words, using mirror", "error", err)
	}

	out := []models.SavedWord{}
	for _, w := range t.loadSaved() {
		if language != "" && w.Language != language {
			continue
		}
		savedAt, _ := time.Parse(time.RFC3339, w.SavedAt)
		out = append(out, models.SavedWord{
			Language:  w.Language,
			Word:      w.Word,
			WordIndex: w.WordIndex,
			SavedAt:   savedAt,
			Notes:     w.Notes,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SavedAt.After(out[j].SavedAt) })
	return out
}

func (t *Tracker) loadSaved() []savedWord {
	var saved []savedWord
	t.kv.GetForProfileInto(t.profileKey, savedWordsKey, &saved)
	return saved
}

func (t *Tracker) storeSaved(saved []savedWord) {
	if saved == nil {
		saved = []savedWord{}
	}
	if !t.kv.SetForProfile(t.profileKey, savedWordsKey, saved) {
		t.logger.Error("failed to write saved words mirror")
	}
}

func removeSaved(saved []savedWord, language string, wordIndex int) []savedWord {
	out := saved[:0]
	for _, w := range saved {
		if w.Language == language && w.WordIndex == wordIndex {
			continue
		}
		out = append(out, w)
	}
	return out
}
