package database

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/wordgo/internal/blockstore"
	"github.com/example/wordgo/internal/kvstore"
	"github.com/example/wordgo/pkg/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	fs     afero.Fs
	blocks *blockstore.Store
	kv     *kvstore.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	blocks, err := blockstore.New(fs, "/blocks", blockstore.WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	backend, err := kvstore.NewFileBackend(fs, "/kv.json", 0)
	require.NoError(t, err)
	return &testEnv{fs: fs, blocks: blocks, kv: kvstore.New(backend, "test:", nil)}
}

func (e *testEnv) open(t *testing.T, blocks BlockStorage, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithLocation(time.UTC)}, opts...)
	s := New(blocks, e.kv, opts...)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// openTestStore returns an initialized store over in-memory block and key-value storage
func openTestStore(t *testing.T) *Store {
	t.Helper()
	e := newTestEnv(t)
	return e.open(t, e.blocks)
}

func mustUser(t *testing.T, s *Store, key string) *models.User {
	t.Helper()
	u, _, err := s.GetOrCreateUser(context.Background(), key)
	require.NoError(t, err)
	return u
}

type failingBlocks struct{}

func (failingBlocks) Get(context.Context, string) ([]byte, error) {
	return nil, blockstore.ErrUnavailable
}

func (failingBlocks) Put(context.Context, string, []byte) error {
	return blockstore.ErrUnavailable
}

func TestAccessorsBeforeInit(t *testing.T) {
	e := newTestEnv(t)
	s := New(e.blocks, e.kv)
	ctx := context.Background()

	assert.False(t, s.IsInitialized())

	_, _, err := s.GetOrCreateUser(ctx, "sofia")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.RecordWordLearned(ctx, 1, "de", "de-1")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.GetLearnedCount(ctx, 1, "de")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.Export(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.ListProfiles(ctx, ProfileFilter{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.GetStats(ctx, 1)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestAccessorsAfterClose(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "sofia")
	require.NoError(t, s.Close(ctx))

	_, err := s.GetStats(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.GetLanguageProgress(ctx, u.ID, "de")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestConcurrentInitSharesOneInitialization(t *testing.T) {
	e := newTestEnv(t)
	s := New(e.blocks, e.kv)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Init(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.True(t, s.IsInitialized())

	version, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestInitPersistsOnce(t *testing.T) {
	e := newTestEnv(t)
	e.open(t, e.blocks)

	data, err := e.blocks.Get(context.Background(), DefaultSnapshotObject)
	require.NoError(t, err)
	assert.Equal(t, sqliteHeader, data[:len(sqliteHeader)])
}

func TestRecordWordLearnedIncrementsReviewCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "sofia")

	_, err := s.RecordWordLearned(ctx, u.ID, "de", "de-5")
	require.NoError(t, err)
	p, err := s.GetWordProgress(ctx, u.ID, "de", "de-5")
	require.NoError(t, err)
	assert.Equal(t, 0, p.ReviewCount)
	assert.Nil(t, p.LastReviewed)

	for i := 0; i < 2; i++ {
		_, err = s.RecordWordLearned(ctx, u.ID, "de", "de-5")
		require.NoError(t, err)
	}
	p, err = s.GetWordProgress(ctx, u.ID, "de", "de-5")
	require.NoError(t, err)
	assert.Equal(t, 2, p.ReviewCount)
	assert.NotNil(t, p.LastReviewed)

	count, err := s.GetLearnedCount(ctx, u.ID, "de")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateMasteryLevel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "sofia")

	_, err := s.RecordWordLearned(ctx, u.ID, "de", "de-1")
	require.NoError(t, err)
	_, err = s.UpdateMasteryLevel(ctx, u.ID, "de", "de-1", 3)
	require.NoError(t, err)
	_, err = s.UpdateMasteryLevel(ctx, u.ID, "de", "de-2", 1)
	require.NoError(t, err)

	p, err := s.GetWordProgress(ctx, u.ID, "de", "de-1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.MasteryLevel)
	assert.Equal(t, 0, p.ReviewCount)

	lp, err := s.GetLanguageProgress(ctx, u.ID, "de")
	require.NoError(t, err)
	assert.Equal(t, 2, lp.WordsLearned)
	assert.InDelta(t, 2.0, lp.AvgMastery, 0.001)
	require.NotNil(t, lp.LastStudied)

	empty, err := s.GetLanguageProgress(ctx, u.ID, "fr")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.WordsLearned)
	assert.Nil(t, empty.LastStudied)

	all, err := s.GetAllLanguageProgress(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "de", all[0].Language)
}

// snapshotView collects the result of every read method for one user and profile
type snapshotView struct {
	User      *models.User
	Profiles  []models.Profile
	Profile   *models.Profile
	Languages []models.ProfileLanguage
	Tests     []models.ProficiencyTest
	Saved     []models.SavedWord
	Word      *models.ProgressRecord
	Learned   []models.ProgressRecord
	Count     int
	Total     int
	Language  models.LanguageProgress
	All       []models.LanguageProgress
	Daily     []models.DailyStat
	Current   int
	Longest   int
	Stats     models.Stats
	Schema    int
}

func readSnapshotView(t *testing.T, s *Store, profileKey string) snapshotView {
	t.Helper()
	ctx := context.Background()
	var v snapshotView
	var err error

	v.User, err = s.GetUserByProfileKey(ctx, profileKey)
	require.NoError(t, err)
	uid := v.User.ID
	v.Profiles, err = s.ListProfiles(ctx, ProfileFilter{IncludeArchived: true})
	require.NoError(t, err)
	v.Profile, err = s.GetProfileByKey(ctx, profileKey)
	require.NoError(t, err)
	v.Languages, err = s.GetProfileLanguages(ctx, v.Profile.ID, false)
	require.NoError(t, err)
	v.Tests, err = s.GetProficiencyTests(ctx, v.Profile.ID, "")
	require.NoError(t, err)
	v.Saved, err = s.GetSavedWords(ctx, uid, "")
	require.NoError(t, err)
	v.Word, err = s.GetWordProgress(ctx, uid, "de", "de-1")
	require.NoError(t, err)
	v.Learned, err = s.GetLearnedWords(ctx, uid, "de")
	require.NoError(t, err)
	v.Count, err = s.GetLearnedCount(ctx, uid, "de")
	require.NoError(t, err)
	v.Total, err = s.GetTotalWordsLearned(ctx, uid)
	require.NoError(t, err)
	v.Language, err = s.GetLanguageProgress(ctx, uid, "de")
	require.NoError(t, err)
	v.All, err = s.GetAllLanguageProgress(ctx, uid)
	require.NoError(t, err)
	v.Daily, err = s.GetDailyStats(ctx, uid, "", "")
	require.NoError(t, err)
	v.Current, err = s.GetCurrentStreak(ctx, uid)
	require.NoError(t, err)
	v.Longest, err = s.GetLongestStreak(ctx, uid)
	require.NoError(t, err)
	v.Stats, err = s.GetStats(ctx, uid)
	require.NoError(t, err)
	v.Schema, err = s.SchemaVersion(ctx)
	require.NoError(t, err)
	return v
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first := e.open(t, e.blocks)
	u := mustUser(t, first, "sofia")
	p := insertTestProfile(t, first, "sofia", models.ProfileTypeClassic)
	_, _, err := first.AddProfileLanguage(ctx, models.ProfileLanguage{ProfileID: p.ID, LanguageCode: "de", LanguageName: "German", IsActive: true})
	require.NoError(t, err)
	_, _, err = first.RecordProficiencyTest(ctx, models.ProficiencyTest{ProfileID: p.ID, LanguageCode: "de", TestType: "quiz", DeterminedLevel: "b1", Score: 55, QuestionsTotal: 20, QuestionsCorrect: 11})
	require.NoError(t, err)
	for _, word := range []string{"de-1", "de-1", "de-2"} {
		_, err = first.RecordWordLearned(ctx, u.ID, "de", word)
		require.NoError(t, err)
	}
	_, err = first.UpdateMasteryLevel(ctx, u.ID, "de", "de-1", 3)
	require.NoError(t, err)
	notes := "tricky"
	_, err = first.SaveWord(ctx, u.ID, "de", "Haus", 4, &notes)
	require.NoError(t, err)
	_, err = first.RecordDailyStats(ctx, models.DailyStat{UserID: u.ID, Date: "2024-05-09", WordsLearned: 3, StreakDays: 1})
	require.NoError(t, err)
	f, err := first.RecordDailyStats(ctx, models.DailyStat{UserID: u.ID, Date: "2024-05-10", WordsLearned: 5, StreakDays: 2})
	require.NoError(t, err)
	require.NoError(t, f.Wait(ctx))

	before := readSnapshotView(t, first, "sofia")
	require.NoError(t, first.Close(ctx))

	second := e.open(t, e.blocks)
	after := readSnapshotView(t, second, "sofia")
	assert.Equal(t, before, after)

	assert.Equal(t, 1, after.Word.ReviewCount)
	assert.Equal(t, 3, after.Word.MasteryLevel)
	require.Len(t, after.Languages, 1)
	require.Len(t, after.Tests, 1)
	require.Len(t, after.Saved, 1)
	assert.Equal(t, 2, after.Current)
	assert.Equal(t, 8, after.Stats.TotalWordsStudied)

	// the restored database must still accept writes
	_, err = second.RecordWordLearned(ctx, u.ID, "de", "de-3")
	require.NoError(t, err)
}

func TestSnapshotFallsBackToKeyValueStore(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	first := e.open(t, failingBlocks{})
	u := mustUser(t, first, "ivan")
	f, err := first.RecordWordLearned(ctx, u.ID, "es", "es-3")
	require.NoError(t, err)
	require.NoError(t, f.Wait(ctx))

	encoded, ok := e.kv.GetString(DefaultSnapshotKey)
	require.True(t, ok)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, sqliteHeader, raw[:len(sqliteHeader)])
	require.NoError(t, first.Close(ctx))

	second := e.open(t, failingBlocks{})
	count, err := second.GetLearnedCount(ctx, u.ID, "es")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBlockWriteClearsStaleFallback(t *testing.T) {
	e := newTestEnv(t)
	require.True(t, e.kv.Set(DefaultSnapshotKey, "c3RhbGU="))

	s := e.open(t, e.blocks)
	require.NoError(t, s.SaveToStorage(context.Background()))
	assert.False(t, e.kv.Has(DefaultSnapshotKey))
}

func TestCorruptSnapshotStartsFresh(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.blocks.Put(context.Background(), DefaultSnapshotObject, []byte("definitely not sqlite")))

	s := e.open(t, e.blocks)
	n, err := s.CountRows(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRestoreRejectsForeignBytes(t *testing.T) {
	db, err := openEngine()
	require.NoError(t, err)
	defer db.Close()

	err = restoreSnapshot(context.Background(), db, []byte("SQLite format 3"))
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestFlushCoalescesAndCompletes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "sofia")

	var flushes []*Flush
	for i := 0; i < 20; i++ {
		f, err := s.RecordWordLearned(ctx, u.ID, "de", "de-1")
		require.NoError(t, err)
		flushes = append(flushes, f)
	}
	for _, f := range flushes {
		require.NoError(t, f.Wait(ctx))
	}
	assert.False(t, s.Dirty())
}

func TestFlushWaitHonoursContext(t *testing.T) {
	f := newFlush()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.Canceled)

	f.finish(errors.New("boom"))
	assert.EqualError(t, f.Wait(context.Background()), "boom")
	assert.NoError(t, completedFlush().Wait(context.Background()))
}
