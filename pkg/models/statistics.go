package models

// DailyStat aggregates one calendar day of study for a user.
// Date is the local calendar day formatted as YYYY-MM-DD.
type DailyStat struct {
	UserID           int64  `json:"user_id" db:"user_id"`
	Date             string `json:"date" db:"date"`
	WordsLearned     int    `json:"words_learned" db:"words_learned"`
	WordsReviewed    int    `json:"words_reviewed" db:"words_reviewed"`
	StudyTimeSeconds int    `json:"study_time_seconds" db:"study_time_seconds"`
	StreakDays       int    `json:"streak_days" db:"streak_days"`
}

// Stats is the summary shown to a learner
type Stats struct {
	CurrentStreak     int `json:"currentStreak"`
	LongestStreak     int `json:"longestStreak"`
	TotalWordsStudied int `json:"totalWordsStudied"`
	TotalDaysStudied  int `json:"totalDaysStudied"`
}
