package models

import "time"

// User is the legacy-compatible record every progress row hangs off.
// Profiles map onto it through ProfileKey.
type User struct {
	ID         int64     `json:"id" db:"id"`
	ProfileKey string    `json:"profile_key" db:"profile_key"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastActive time.Time `json:"last_active" db:"last_active"`
	Settings   Settings  `json:"settings" db:"settings"`
}
