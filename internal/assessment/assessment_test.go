package assessment

import (
	"context"
	"testing"
	"time"

	"github.com/example/wordgo/internal/blockstore"
	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/internal/kvstore"
	"github.com/example/wordgo/internal/profile"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		correct, total int
		level          string
		score          float64
	}{
		{0, 10, "a1", 0},
		{1, 10, "a1", 10},
		{2, 10, "a2", 20},
		{5, 10, "b1", 50},
		{7, 10, "b2", 70},
		{15, 20, "c1", 75},
		{9, 10, "c2", 90},
		{2, 3, "b2", 66.7},
		{12, 10, "c2", 100},
		{3, 0, "a1", 0},
	}
	for _, tt := range tests {
		res := Evaluate(tt.correct, tt.total)
		assert.Equal(t, tt.level, res.Level, "%d/%d", tt.correct, tt.total)
		assert.InDelta(t, tt.score, res.Score, 0.001, "%d/%d", tt.correct, tt.total)
	}
}

func newRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	fs := afero.NewMemMapFs()
	blocks, err := blockstore.New(fs, "/blocks")
	require.NoError(t, err)
	backend, err := kvstore.NewFileBackend(fs, "/kv.json", 0)
	require.NoError(t, err)
	db := database.New(blocks, kvstore.New(backend, "test:", nil), database.WithLocation(time.UTC))
	require.NoError(t, db.Init(context.Background()))
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	catalog, err := profile.DefaultCatalog()
	require.NoError(t, err)
	return profile.NewRegistry(db, catalog, nil)
}

func TestComplete(t *testing.T) {
	registry := newRegistry(t)
	svc := NewService(registry)
	ctx := context.Background()

	p, err := registry.CreateProfile(ctx, profile.CreateRequest{
		DisplayName:       "Anna",
		NativeLanguage:    "en",
		LearningLanguages: []profile.LanguageRequest{{LanguageCode: "de", LevelCode: "a1"}},
	})
	require.NoError(t, err)
	id := p.Record().ID

	res, err := svc.Complete(ctx, Submission{ProfileID: id, Language: "DE", Type: Placement, Correct: 13, Total: 20, ApplyLevel: true})
	require.NoError(t, err)
	assert.Equal(t, "b2", res.Level)

	langs, err := registry.GetProfileLanguages(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, langs, 1)
	require.NotNil(t, langs[0].LevelCode)
	assert.Equal(t, "b2", *langs[0].LevelCode)

	_, err = svc.Complete(ctx, Submission{ProfileID: id, Language: "de", Correct: 1, Total: 20})
	require.NoError(t, err)

	tests, err := registry.GetProficiencyTests(ctx, id, "de")
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "quiz", tests[0].TestType)
	assert.Equal(t, "a1", tests[0].DeterminedLevel)
	assert.Equal(t, "placement", tests[1].TestType)

	langs, err = registry.GetProfileLanguages(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, "b2", *langs[0].LevelCode)

	_, err = svc.Complete(ctx, Submission{ProfileID: id, Language: "fr", Correct: 5, Total: 10, ApplyLevel: true})
	assert.ErrorIs(t, err, database.ErrNotFound)
}
