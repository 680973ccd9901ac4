package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysBetween(t *testing.T) {
	d, err := DaysBetween("2024-03-30", "2024-04-02")
	require.NoError(t, err)
	assert.Equal(t, 3, d)

	d, err = DaysBetween("2024-01-02", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, -1, d)

	_, err = DaysBetween("yesterday", "2024-01-01")
	assert.Error(t, err)
}

func TestDayUsesLocation(t *testing.T) {
	ts := time.Date(2024, 5, 1, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*3600)
	assert.Equal(t, "2024-05-01", Day(ts, time.UTC))
	assert.Equal(t, "2024-05-02", Day(ts, tokyo))
}

func TestCurrentStreak(t *testing.T) {
	tests := []struct {
		name  string
		days  []string
		today string
		want  int
	}{
		{"empty", nil, "2024-05-10", 0},
		{"today only", []string{"2024-05-10"}, "2024-05-10", 1},
		{"ends yesterday", []string{"2024-05-08", "2024-05-09"}, "2024-05-10", 2},
		{"broken", []string{"2024-05-07", "2024-05-08"}, "2024-05-10", 0},
		{"gap inside", []string{"2024-05-05", "2024-05-09", "2024-05-10"}, "2024-05-10", 2},
		{"unsorted with duplicates", []string{"2024-05-10", "2024-05-09", "2024-05-10"}, "2024-05-10", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentStreak(tt.days, tt.today))
		})
	}
}

func TestLongestStreak(t *testing.T) {
	assert.Equal(t, 0, LongestStreak(nil))
	assert.Equal(t, 3, LongestStreak([]string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-07", "2024-01-08"}))
	assert.Equal(t, 1, LongestStreak([]string{"2024-01-01", "2024-01-05"}))
}
