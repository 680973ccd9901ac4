package progress

import (
	"slices"

	"github.com/example/wordgo/internal/calendar"
	"github.com/example/wordgo/pkg/models"
)

// Key-value suffixes under the profile key
const (
	mirrorKey         = "progress"
	savedWordsKey     = "saved-words"
	migratedKey       = "db-migrated"
	lastLanguageKey   = "last-active-language"
	positionKeySuffix = "position"
)

// Mirror is the denormalized progress copy kept in the key-value store.
// Its JSON shape is shared with data written before the database existed.
type Mirror struct {
	CurrentStreak     int                        `json:"currentStreak"`
	LongestStreak     int                        `json:"longestStreak"`
	LastStudyDate     string                     `json:"lastStudyDate"`
	TotalWordsStudied int                        `json:"totalWordsStudied"`
	TotalDaysStudied  int                        `json:"totalDaysStudied"`
	LanguageProgress  map[string]*LanguageMirror `json:"languageProgress"`
	DailyGoal         int                        `json:"dailyGoal"`
	StudyHistory      []HistoryEntry             `json:"studyHistory"`
}

// LanguageMirror is the per-language part of the mirror
type LanguageMirror struct {
	WordsStudied   int            `json:"wordsStudied"`
	LastStudied    string         `json:"lastStudied,omitempty"`
	CompletedWords []string       `json:"completedWords"`
	Mastery        map[string]int `json:"mastery,omitempty"`
}

// HistoryEntry is one study day with words studied per language
type HistoryEntry struct {
	Date      string         `json:"date"`
	Languages map[string]int `json:"languages"`
}

func newMirror(dailyGoal int) *Mirror {
	return &Mirror{
		LanguageProgress: map[string]*LanguageMirror{},
		DailyGoal:        dailyGoal,
		StudyHistory:     []HistoryEntry{},
	}
}

func (m *Mirror) language(code string) *LanguageMirror {
	if m.LanguageProgress == nil {
		m.LanguageProgress = map[string]*LanguageMirror{}
	}
	lp, ok := m.LanguageProgress[code]
	if !ok || lp == nil {
		lp = &LanguageMirror{CompletedWords: []string{}}
		m.LanguageProgress[code] = lp
	}
	return lp
}

// complete adds word to the completed set and reports whether it was new
func (lp *LanguageMirror) complete(word string) bool {
	if slices.Contains(lp.CompletedWords, word) {
		return false
	}
	lp.CompletedWords = append(lp.CompletedWords, word)
	return true
}

func (lp *LanguageMirror) setMastery(word string, level int) {
	if lp.Mastery == nil {
		lp.Mastery = map[string]int{}
	}
	lp.Mastery[word] = level
}

// stats derives the summary from the mirror. A streak whose last day is
// before yesterday no longer counts.
func (m *Mirror) stats(today string) models.Stats {
	current := m.CurrentStreak
	if m.LastStudyDate == "" {
		current = 0
	} else if gap, err := calendar.DaysBetween(m.LastStudyDate, today); err != nil || gap > 1 {
		current = 0
	}
	return models.Stats{
		CurrentStreak:     current,
		LongestStreak:     m.LongestStreak,
		TotalWordsStudied: m.TotalWordsStudied,
		TotalDaysStudied:  m.TotalDaysStudied,
	}
}

// savedWord is the mirror shape of a bookmark
type savedWord struct {
	Language  string  `json:"language"`
	Word      string  `json:"word"`
	WordIndex int     `json:"wordIndex"`
	SavedAt   string  `json:"savedAt"`
	Notes     *string `json:"notes,omitempty"`
}
