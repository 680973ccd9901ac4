package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpsertQueries(t *testing.T) {
	tests := []struct {
		name string
		u    upsert
		want string
	}{
		{
			name: "increment with bump and assign",
			u:    progressUpsert,
			want: "INSERT INTO progress (user_id, language, word, learned_at, review_count, mastery_level) VALUES (?, ?, ?, ?, ?, ?) " +
				"ON CONFLICT(user_id, language, word) DO UPDATE SET review_count = progress.review_count + 1, last_reviewed = excluded.learned_at",
		},
		{
			name: "increment with counters",
			u:    dailyStatsUpsert,
			want: "INSERT INTO daily_stats (user_id, date, words_learned, words_reviewed, study_time_seconds, streak_days) VALUES (?, ?, ?, ?, ?, ?) " +
				"ON CONFLICT(user_id, date) DO UPDATE SET words_learned = daily_stats.words_learned + excluded.words_learned, " +
				"words_reviewed = daily_stats.words_reviewed + excluded.words_reviewed, " +
				"study_time_seconds = daily_stats.study_time_seconds + excluded.study_time_seconds, streak_days = excluded.streak_days",
		},
		{
			name: "replace",
			u:    savedWordUpsert,
			want: "INSERT OR REPLACE INTO saved_words (user_id, language, word, word_index, saved_at, notes) VALUES (?, ?, ?, ?, ?, ?)",
		},
		{
			name: "ignore",
			u:    userUpsert,
			want: "INSERT INTO users (profile_key, created_at, last_active, settings) SELECT ?, ?, ?, ? " +
				"WHERE NOT EXISTS (SELECT 1 FROM users WHERE profile_key = ?)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.u.query())
		})
	}
}

func TestIgnoreArgsRepeatKeyValues(t *testing.T) {
	args := profileLanguageUpsert.args(int64(7), "de", "German", nil, nil, 10, true, "t")
	assert.Equal(t, []any{int64(7), "de", "German", nil, nil, 10, true, "t", int64(7), "de"}, args)

	plain := savedWordUpsert.args(int64(1), "de", "Haus", 3, "t", nil)
	assert.Len(t, plain, 6)
}

func TestArgsPanicsOnArityMismatch(t *testing.T) {
	assert.Panics(t, func() { progressUpsert.args(1, 2) })
}
