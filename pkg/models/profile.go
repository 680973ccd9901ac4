package models

import "time"

// ProfileType distinguishes catalog-defined profiles from user-created ones
type ProfileType string

const (
	ProfileTypeClassic   ProfileType = "classic"
	ProfileTypeUniversal ProfileType = "universal"
)

// Profile is a row of user_profiles
type Profile struct {
	ID                 int64       `json:"id" db:"id"`
	ProfileKey         string      `json:"profile_key" db:"profile_key"`
	ProfileType        ProfileType `json:"profile_type" db:"profile_type"`
	DisplayName        string      `json:"display_name" db:"display_name"`
	AvatarEmoji        string      `json:"avatar_emoji" db:"avatar_emoji"`
	NativeLanguage     string      `json:"native_language" db:"native_language"`
	InterfaceLanguages StringList  `json:"interface_languages" db:"interface_languages"`
	Settings           Settings    `json:"settings" db:"settings"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	LastActive         time.Time   `json:"last_active" db:"last_active"`
	IsArchived         bool        `json:"is_archived" db:"is_archived"`

	LearningLanguages []ProfileLanguage `json:"learning_languages" db:"-"`
}

// ProfileLanguage is a language a profile is enrolled in
type ProfileLanguage struct {
	ID           int64     `json:"id" db:"id"`
	ProfileID    int64     `json:"profile_id" db:"profile_id"`
	LanguageCode string    `json:"language_code" db:"language_code"`
	LanguageName string    `json:"language_name" db:"language_name"`
	LevelCode    *string   `json:"level_code,omitempty" db:"level_code"`
	Specialty    *string   `json:"specialty,omitempty" db:"specialty"`
	DailyWords   int       `json:"daily_words" db:"daily_words"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	AddedAt      time.Time `json:"added_at" db:"added_at"`
}

// DefaultDailyWords is used when an enrollment does not set its own goal
const DefaultDailyWords = 10
