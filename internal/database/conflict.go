package database

import (
	"fmt"
	"strings"
)

// ConflictPolicy names what an insert does when its key already exists
type ConflictPolicy string

const (
	// PolicyIncrement keeps the row and adds to its counters
	PolicyIncrement ConflictPolicy = "increment"
	// PolicyReplace swaps the existing row for the incoming one
	PolicyReplace ConflictPolicy = "replace"
	// PolicyIgnore keeps the existing row untouched
	PolicyIgnore ConflictPolicy = "ignore"
)

// upsert describes one entity's insert and its conflict behaviour.
type upsert struct {
	table   string
	columns []string
	key     []string
	policy  ConflictPolicy

	// increment only: counters are summed with the incoming values, bump grows by one,
	// assign copies incoming columns (target, source) over the stored ones
	counters []string
	bump     string
	assign   [][2]string
}

// query renders the statement with one positional parameter per column.
// Ignore-policy statements take the key values again at the end, see args.
func (u upsert) query() string {
	cols := strings.Join(u.columns, ", ")
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(u.columns)), ", ")

	switch u.policy {
	case PolicyReplace:
		return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)", u.table, cols, marks)

	case PolicyIgnore:
		conds := make([]string, len(u.key))
		for i, k := range u.key {
			conds[i] = k + " = ?"
		}
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM %s WHERE %s)",
			u.table, cols, marks, u.table, strings.Join(conds, " AND "))

	case PolicyIncrement:
		var sets []string
		for _, c := range u.counters {
			sets = append(sets, fmt.Sprintf("%s = %s.%s + excluded.%s", c, u.table, c, c))
		}
		if u.bump != "" {
			sets = append(sets, fmt.Sprintf("%s = %s.%s + 1", u.bump, u.table, u.bump))
		}
		for _, a := range u.assign {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", a[0], a[1]))
		}
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
			u.table, cols, marks, strings.Join(u.key, ", "), strings.Join(sets, ", "))
	}
	panic(fmt.Sprintf("unknown conflict policy %q", u.policy))
}

// args orders values (one per column) for query
func (u upsert) args(values ...any) []any {
	if len(values) != len(u.columns) {
		panic(fmt.Sprintf("%s upsert: got %d values for %d columns", u.table, len(values), len(u.columns)))
	}
	if u.policy != PolicyIgnore {
		return values
	}
	out := append([]any{}, values...)
	for _, k := range u.key {
		for i, c := range u.columns {
			if c == k {
				out = append(out, values[i])
				break
			}
		}
	}
	return out
}

var (
	progressUpsert = upsert{
		table:   "progress",
		columns: []string{"user_id", "language", "word", "learned_at", "review_count", "mastery_level"},
		key:     []string{"user_id", "language", "word"},
		policy:  PolicyIncrement,
		bump:    "review_count",
		assign:  [][2]string{{"last_reviewed", "learned_at"}},
	}

	dailyStatsUpsert = upsert{
		table:    "daily_stats",
		columns:  []string{"user_id", "date", "words_learned", "words_reviewed", "study_time_seconds", "streak_days"},
		key:      []string{"user_id", "date"},
		policy:   PolicyIncrement,
		counters: []string{"words_learned", "words_reviewed", "study_time_seconds"},
		assign:   [][2]string{{"streak_days", "streak_days"}},
	}

	savedWordUpsert = upsert{
		table:   "saved_words",
		columns: []string{"user_id", "language", "word", "word_index", "saved_at", "notes"},
		key:     []string{"user_id", "language", "word_index"},
		policy:  PolicyReplace,
	}

	profileLanguageUpsert = upsert{
		table:   "profile_languages",
		columns: []string{"profile_id", "language_code", "language_name", "level_code", "specialty", "daily_words", "is_active", "added_at"},
		key:     []string{"profile_id", "language_code"},
		policy:  PolicyIgnore,
	}

	userUpsert = upsert{
		table:   "users",
		columns: []string{"profile_key", "created_at", "last_active", "settings"},
		key:     []string{"profile_key"},
		policy:  PolicyIgnore,
	}
)
