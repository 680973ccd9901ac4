// Package calendar does the local-day arithmetic behind streaks.
package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Layout is the storage format of a calendar day
const Layout = "2006-01-02"

// Day formats t as a calendar day in loc
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(Layout)
}

// DaysBetween returns the number of calendar days from one day to another.
// Days are compared as dates, so DST transitions never skew the result.
func DaysBetween(from, to string) (int, error) {
	a, err := time.Parse(Layout, from)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: %w", from, err)
	}
	b, err := time.Parse(Layout, to)
	if err != nil {
		return 0, fmt.Errorf("invalid day %q: %w", to, err)
	}
	return int(b.Sub(a).Hours() / 24), nil
}

// CurrentStreak counts the run of consecutive days ending today or yesterday.
// A run that ended earlier than yesterday is broken and counts as zero.
func CurrentStreak(days []string, today string) int {
	sorted := uniqueSorted(days)
	if len(sorted) == 0 {
		return 0
	}
	last := sorted[len(sorted)-1]
	gap, err := DaysBetween(last, today)
	if err != nil || gap > 1 || gap < 0 {
		return 0
	}
	streak := 1
	for i := len(sorted) - 1; i > 0; i-- {
		d, err := DaysBetween(sorted[i-1], sorted[i])
		if err != nil || d != 1 {
			break
		}
		streak++
	}
	return streak
}

// LongestStreak returns the longest run of consecutive days
func LongestStreak(days []string) int {
	sorted := uniqueSorted(days)
	if len(sorted) == 0 {
		return 0
	}
	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		d, err := DaysBetween(sorted[i-1], sorted[i])
		if err == nil && d == 1 {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func uniqueSorted(days []string) []string {
	out := make([]string, 0, len(days))
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
