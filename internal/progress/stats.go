package progress

import (
	"context"
	"math"

	"github.com/example/wordgo/pkg/models"
)

// GetCompletionPercentage returns the share of totalWords learned in language, rounded to a
// whole percent. The learned count comes from the database when available.
func (t *Tracker) GetCompletionPercentage(ctx context.Context, language string, totalWords int) int {
	if totalWords <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	count := -1
	if userID, ok := t.user(); ok {
		n, err := t.db.GetLearnedCount(ctx, userID, language)
		if err != nil {
			t.logger.Warn("failed to count learned words, using mirror", "language", language, "error", err)
		} else {
			count = n
		}
	}
	if count < 0 {
		m, _ := t.loadMirror()
		count = len(m.language(language).CompletedWords)
	}
	return int(math.Round(float64(count) * 100 / float64(totalWords)))
}

// GetStats returns the study summary. All fields come from the same source: the database when
// it answers, the mirror otherwise.
func (t *Tracker) GetStats(ctx context.Context) models.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if userID, ok := t.user(); ok {
		stats, err := t.db.GetStats(ctx, userID)
		if err == nil {
			return stats
		}
		t.logger.Warn("failed to read stats, using mirror", "error", err)
	}
	m, _ := t.loadMirror()
	return m.stats(t.today())
}

// Mirror returns a copy of the stored mirror
func (t *Tracker) Mirror() Mirror {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, _ := t.loadMirror()
	return *m
}

// GetPosition returns the saved word-list position for language, 0 when unset
func (t *Tracker) GetPosition(language string) int {
	var pos int
	t.kv.GetForProfileInto(t.profileKey, language+"-"+positionKeySuffix, &pos)
	return pos
}

func (t *Tracker) SetPosition(language string, position int) bool {
	return t.kv.SetForProfile(t.profileKey, language+"-"+positionKeySuffix, position)
}

// GetLastActiveLanguage returns the language studied most recently, if any
func (t *Tracker) GetLastActiveLanguage() (string, bool) {
	var lang string
	ok := t.kv.GetForProfileInto(t.profileKey, lastLanguageKey, &lang)
	return lang, ok && lang != ""
}

func (t *Tracker) SetLastActiveLanguage(language string) bool {
	return t.kv.SetForProfile(t.profileKey, lastLanguageKey, language)
}

// StudiedToday reports whether a session was recorded today
func (t *Tracker) StudiedToday() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, _ := t.loadMirror()
	return m.LastStudyDate == t.today()
}
