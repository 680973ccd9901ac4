package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/wordgo/internal/blockstore"
	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/internal/kvstore"
	"github.com/example/wordgo/internal/spaced_repetition"
	"github.com/example/wordgo/pkg/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AddDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type env struct {
	clock *fakeClock
	kv    *kvstore.Store
	db    *database.Store
}

func newEnv(t *testing.T, initialize bool) *env {
	t.Helper()
	fs := afero.NewMemMapFs()
	blocks, err := blockstore.New(fs, "/blocks")
	require.NoError(t, err)
	backend, err := kvstore.NewFileBackend(fs, "/kv.json", 0)
	require.NoError(t, err)
	kv := kvstore.New(backend, "test:", nil)
	clock := newFakeClock()

	db := database.New(blocks, kv, database.WithClock(clock.Now), database.WithLocation(time.UTC))
	if initialize {
		require.NoError(t, db.Init(context.Background()))
	}
	t.Cleanup(func() { _ = db.Close(context.Background()) })
	return &env{clock: clock, kv: kv, db: db}
}

func (e *env) tracker(db Database) *Tracker {
	return NewTracker("sofia", db, e.kv, WithClock(e.clock.Now), WithLocation(time.UTC))
}

// started returns a tracker whose user resolution has finished
func (e *env) started(t *testing.T, db Database) *Tracker {
	t.Helper()
	tr := e.tracker(db)
	tr.Start(context.Background())
	select {
	case <-tr.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("tracker never became ready")
	}
	return tr
}

func (e *env) userID(t *testing.T) int64 {
	t.Helper()
	u, err := e.db.GetUserByProfileKey(context.Background(), "sofia")
	require.NoError(t, err)
	return u.ID
}

func TestStreakRule(t *testing.T) {
	e := newEnv(t, false)
	tr := e.tracker(nil)
	ctx := context.Background()

	res := tr.RecordStudySession(ctx, "de", 5)
	assert.True(t, res.NewDay)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 1, res.LongestStreak)
	assert.Equal(t, 5, res.TodayWords)

	res = tr.RecordStudySession(ctx, "de", 3)
	assert.False(t, res.NewDay)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 8, res.TodayWords)

	e.clock.AddDays(1)
	res = tr.RecordStudySession(ctx, "de", 4)
	assert.Equal(t, 2, res.CurrentStreak)
	assert.Equal(t, 2, res.LongestStreak)

	e.clock.AddDays(2)
	res = tr.RecordStudySession(ctx, "en", 2)
	assert.Equal(t, 1, res.CurrentStreak)
	assert.Equal(t, 2, res.LongestStreak)

	m := tr.Mirror()
	assert.Equal(t, 14, m.TotalWordsStudied)
	assert.Equal(t, 3, m.TotalDaysStudied)
	assert.Equal(t, "2024-05-13", m.LastStudyDate)
	require.Len(t, m.StudyHistory, 3)
	assert.Equal(t, map[string]int{"de": 8}, m.StudyHistory[0].Languages)
	assert.Equal(t, 12, m.LanguageProgress["de"].WordsStudied)
	assert.Equal(t, "2024-05-11", m.LanguageProgress["de"].LastStudied)
}

func TestStreakUsesCalendarDaysNotElapsedTime(t *testing.T) {
	e := newEnv(t, false)
	e.clock.now = time.Date(2024, 5, 10, 23, 50, 0, 0, time.UTC)
	tr := e.tracker(nil)
	ctx := context.Background()

	tr.RecordStudySession(ctx, "de", 1)
	e.clock.now = e.clock.now.Add(20 * time.Minute)
	res := tr.RecordStudySession(ctx, "de", 1)
	assert.True(t, res.NewDay)
	assert.Equal(t, 2, res.CurrentStreak)
}

func TestMirrorStatsDropBrokenStreak(t *testing.T) {
	e := newEnv(t, false)
	tr := e.tracker(nil)
	ctx := context.Background()

	tr.RecordStudySession(ctx, "de", 5)
	e.clock.AddDays(1)
	tr.RecordStudySession(ctx, "de", 5)

	stats := tr.GetStats(ctx)
	assert.Equal(t, models.Stats{CurrentStreak: 2, LongestStreak: 2, TotalWordsStudied: 10, TotalDaysStudied: 2}, stats)

	e.clock.AddDays(3)
	stats = tr.GetStats(ctx)
	assert.Zero(t, stats.CurrentStreak)
	assert.Equal(t, 2, stats.LongestStreak)
}

func TestCompletionPercentage(t *testing.T) {
	e := newEnv(t, true)
	tr := e.started(t, e.db)
	ctx := context.Background()

	for i := 0; i < 18; i++ {
		tr.MarkWordCompleted(ctx, "de", i)
	}
	assert.Equal(t, 10, tr.GetCompletionPercentage(ctx, "de", 180))

	assert.False(t, tr.MarkWordCompleted(ctx, "de", 3))
	assert.Equal(t, 10, tr.GetCompletionPercentage(ctx, "de", 180))

	assert.Zero(t, tr.GetCompletionPercentage(ctx, "de", 0))
	assert.Zero(t, tr.GetCompletionPercentage(ctx, "de", -5))
	assert.Equal(t, 33, tr.GetCompletionPercentage(ctx, "de", 54))
	assert.Zero(t, tr.GetCompletionPercentage(ctx, "fr", 100))

	p, err := e.db.GetWordProgress(ctx, e.userID(t), "de", "de-3")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ReviewCount)
}

func TestStatsFromDatabase(t *testing.T) {
	e := newEnv(t, true)
	tr := e.started(t, e.db)
	ctx := context.Background()

	tr.RecordStudySession(ctx, "de", 5)
	tr.RecordStudySession(ctx, "de", 3)
	e.clock.AddDays(1)
	tr.RecordStudySession(ctx, "en", 4)

	assert.Equal(t, models.Stats{CurrentStreak: 2, LongestStreak: 2, TotalWordsStudied: 12, TotalDaysStudied: 2}, tr.GetStats(ctx))

	daily, err := e.db.GetDailyStats(ctx, e.userID(t), "", "")
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, 8, daily[0].WordsLearned)
	assert.Equal(t, 1, daily[0].StreakDays)
	assert.Equal(t, 2, daily[1].StreakDays)
}

func TestWritesBeforeStartAreImportedOnce(t *testing.T) {
	e := newEnv(t, true)
	tr := e.tracker(e.db)
	ctx := context.Background()

	tr.RecordStudySession(ctx, "de", 5)
	tr.MarkWordCompleted(ctx, "de", 7)
	tr.SaveWord(ctx, "de", "Haus", 7, nil)

	tr.Start(ctx)
	<-tr.Ready()

	userID := e.userID(t)
	p, err := e.db.GetWordProgress(ctx, userID, "de", "de-7")
	require.NoError(t, err)
	assert.Zero(t, p.ReviewCount)

	daily, err := e.db.GetDailyStats(ctx, userID, "", "")
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 5, daily[0].WordsLearned)

	saved, err := e.db.GetSavedWords(ctx, userID, "de")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "Haus", saved[0].Word)

	var migrated bool
	assert.True(t, e.kv.GetForProfileInto("sofia", "db-migrated", &migrated))
	assert.True(t, migrated)
}

func TestWritesBeforeStartReplayAfterImport(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	e.kv.SetForProfile("sofia", "db-migrated", true)

	tr := e.tracker(e.db)
	tr.MarkWordCompleted(ctx, "de", 7)
	tr.RecordStudySession(ctx, "de", 2)
	tr.Start(ctx)
	<-tr.Ready()

	userID := e.userID(t)
	p, err := e.db.GetWordProgress(ctx, userID, "de", "de-7")
	require.NoError(t, err)
	assert.Zero(t, p.ReviewCount)

	stats, err := e.db.GetStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalWordsStudied)
}

func TestLegacyImport(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	notes := "irregular"
	e.kv.SetForProfile("sofia", "progress", Mirror{
		CurrentStreak:     2,
		LongestStreak:     2,
		LastStudyDate:     "2024-05-09",
		TotalWordsStudied: 9,
		TotalDaysStudied:  2,
		LanguageProgress: map[string]*LanguageMirror{
			"de": {WordsStudied: 9, CompletedWords: []string{"de-1", "de-2"}, Mastery: map[string]int{"de-2": 3}},
		},
		StudyHistory: []HistoryEntry{
			{Date: "2024-05-09", Languages: map[string]int{"de": 4}},
			{Date: "2024-05-08", Languages: map[string]int{"de": 3, "en": 2}},
		},
	})
	e.kv.SetForProfile("sofia", "saved-words", []savedWord{
		{Language: "de", Word: "gehen", WordIndex: 2, SavedAt: "2024-05-08T10:00:00Z", Notes: &notes},
	})

	tr := e.started(t, e.db)
	userID := e.userID(t)

	count, err := e.db.GetLearnedCount(ctx, userID, "de")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	p, err := e.db.GetWordProgress(ctx, userID, "de", "de-2")
	require.NoError(t, err)
	assert.Equal(t, 3, p.MasteryLevel)

	daily, err := e.db.GetDailyStats(ctx, userID, "", "")
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2024-05-08", daily[0].Date)
	assert.Equal(t, 5, daily[0].WordsLearned)
	assert.Equal(t, 1, daily[0].StreakDays)
	assert.Equal(t, 2, daily[1].StreakDays)

	assert.Equal(t, models.Stats{CurrentStreak: 2, LongestStreak: 2, TotalWordsStudied: 9, TotalDaysStudied: 2}, tr.GetStats(ctx))

	saved := tr.GetSavedWords(ctx, "")
	require.Len(t, saved, 1)
	require.NotNil(t, saved[0].Notes)
	assert.Equal(t, "irregular", *saved[0].Notes)

	// A second tracker for the same profile must not import again
	e.started(t, e.db)
	daily, err = e.db.GetDailyStats(ctx, userID, "", "")
	require.NoError(t, err)
	assert.Equal(t, 5, daily[0].WordsLearned)
	p, err = e.db.GetWordProgress(ctx, userID, "de", "de-1")
	require.NoError(t, err)
	assert.Zero(t, p.ReviewCount)
}

func TestUninitializedDatabaseUsesMirror(t *testing.T) {
	e := newEnv(t, false)
	tr := e.started(t, e.db)
	ctx := context.Background()

	tr.RecordStudySession(ctx, "de", 6)
	tr.MarkWordCompleted(ctx, "de", 1)

	assert.Equal(t, 6, tr.GetStats(ctx).TotalWordsStudied)
	assert.Equal(t, 1, tr.GetCompletionPercentage(ctx, "de", 100))
}

var errBroken = errors.New("database is broken")

// brokenDB resolves users but fails every other call
type brokenDB struct{}

func (brokenDB) GetOrCreateUser(context.Context, string) (*models.User, *database.Flush, error) {
	return &models.User{ID: 1, ProfileKey: "sofia"}, nil, nil
}
func (brokenDB) RecordWordLearned(context.Context, int64, string, string) (*database.Flush, error) {
	return nil, errBroken
}
func (brokenDB) UpdateMasteryLevel(context.Context, int64, string, string, int) (*database.Flush, error) {
	return nil, errBroken
}
func (brokenDB) GetWordProgress(context.Context, int64, string, string) (*models.ProgressRecord, error) {
	return nil, errBroken
}
func (brokenDB) GetLearnedCount(context.Context, int64, string) (int, error) { return 0, errBroken }
func (brokenDB) RecordDailyStats(context.Context, models.DailyStat) (*database.Flush, error) {
	return nil, errBroken
}
func (brokenDB) GetDailyStats(context.Context, int64, string, string) ([]models.DailyStat, error) {
	return nil, errBroken
}
func (brokenDB) GetStats(context.Context, int64) (models.Stats, error) {
	return models.Stats{}, errBroken
}
func (brokenDB) SaveWord(context.Context, int64, string, string, int, *string) (*database.Flush, error) {
	return nil, errBroken
}
func (brokenDB) UnsaveWord(context.Context, int64, string, int) (*database.Flush, error) {
	return nil, errBroken
}
func (brokenDB) GetSavedWords(context.Context, int64, string) ([]models.SavedWord, error) {
	return nil, errBroken
}

func TestFailingDatabaseDegradesToMirror(t *testing.T) {
	e := newEnv(t, false)
	e.kv.SetForProfile("sofia", "db-migrated", true)
	tr := e.started(t, brokenDB{})
	ctx := context.Background()

	res := tr.RecordStudySession(ctx, "de", 5)
	assert.Equal(t, 1, res.CurrentStreak)
	for i := 0; i < 18; i++ {
		tr.MarkWordCompleted(ctx, "de", i)
	}
	tr.SaveWord(ctx, "de", "Haus", 3, nil)

	assert.Equal(t, 10, tr.GetCompletionPercentage(ctx, "de", 180))
	assert.Equal(t, models.Stats{CurrentStreak: 1, LongestStreak: 1, TotalWordsStudied: 5, TotalDaysStudied: 1}, tr.GetStats(ctx))
	assert.Len(t, tr.GetSavedWords(ctx, "de"), 1)

	review := tr.ReviewWord(ctx, "de", 0, spaced_repetition.QualityPerfect)
	assert.Equal(t, 2, review.Level)
}

func TestReviewWord(t *testing.T) {
	e := newEnv(t, true)
	tr := e.started(t, e.db)
	ctx := context.Background()

	res := tr.ReviewWord(ctx, "de", 4, spaced_repetition.QualityPerfect)
	assert.Equal(t, 2, res.Level)
	assert.Equal(t, e.clock.Now().AddDate(0, 0, 3), res.NextReview)
	assert.False(t, res.Mastered)

	res = tr.ReviewWord(ctx, "de", 4, spaced_repetition.QualityIncorrect)
	assert.Equal(t, 1, res.Level)

	p, err := e.db.GetWordProgress(ctx, e.userID(t), "de", "de-4")
	require.NoError(t, err)
	assert.Equal(t, 1, p.MasteryLevel)
	assert.Equal(t, 1, p.ReviewCount)
	assert.Equal(t, 1, tr.Mirror().LanguageProgress["de"].Mastery["de-4"])
}

func TestSavedWords(t *testing.T) {
	for _, withDB := range []bool{false, true} {
		name := "mirror"
		if withDB {
			name = "database"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, withDB)
			tr := e.started(t, e.db)
			ctx := context.Background()

			tr.SaveWord(ctx, "de", "Haus", 3, nil)
			e.clock.now = e.clock.now.Add(time.Minute)
			tr.SaveWord(ctx, "en", "house", 3, nil)
			e.clock.now = e.clock.now.Add(time.Minute)
			note := "plural: Häuser"
			tr.SaveWord(ctx, "de", "Haus", 3, &note)

			all := tr.GetSavedWords(ctx, "")
			require.Len(t, all, 2)
			assert.Equal(t, "de", all[0].Language)
			require.NotNil(t, all[0].Notes)
			assert.Equal(t, note, *all[0].Notes)

			tr.UnsaveWord(ctx, "de", 3)
			assert.Empty(t, tr.GetSavedWords(ctx, "de"))
			assert.Len(t, tr.GetSavedWords(ctx, ""), 1)
		})
	}
}

func TestPositionAndLastActiveLanguage(t *testing.T) {
	e := newEnv(t, false)
	tr := e.tracker(nil)

	assert.Zero(t, tr.GetPosition("de"))
	require.True(t, tr.SetPosition("de", 42))
	assert.Equal(t, 42, tr.GetPosition("de"))
	assert.Zero(t, tr.GetPosition("en"))

	_, ok := tr.GetLastActiveLanguage()
	assert.False(t, ok)
	require.True(t, tr.SetLastActiveLanguage("de"))
	lang, ok := tr.GetLastActiveLanguage()
	assert.True(t, ok)
	assert.Equal(t, "de", lang)
	assert.Contains(t, e.kv.GetProfileKeys("sofia"), "de-position")
}

func TestHubReusesTrackers(t *testing.T) {
	e := newEnv(t, true)
	hub := NewHub(e.db, e.kv, WithClock(e.clock.Now), WithLocation(time.UTC))
	ctx := context.Background()

	a := hub.Get(ctx, "sofia")
	assert.Same(t, a, hub.Get(ctx, "sofia"))
	assert.NotSame(t, a, hub.Get(ctx, "mark"))

	<-a.Ready()
	assert.False(t, a.StudiedToday())
	a.RecordStudySession(ctx, "de", 1)
	assert.True(t, a.StudiedToday())
	assert.Equal(t, 1, a.GetStats(ctx).TotalWordsStudied)
}
