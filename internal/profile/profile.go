// Package profile owns the two kinds of learner profile: classic ones defined in the bundled
// catalog and universal ones created by users at runtime.
package profile

import (
	"github.com/example/wordgo/pkg/models"
)

// Profile is either a *ClassicProfile or a *UniversalProfile
type Profile interface {
	// Record is the stored shape, including enrolled languages
	Record() *models.Profile
	Type() models.ProfileType
	// Persisted is false only for classic profiles synthesized from the catalog
	Persisted() bool

	isProfile()
}

// UniversalProfile is a user-created profile. It always lives in the database.
type UniversalProfile struct {
	models.Profile
}

func (p *UniversalProfile) Record() *models.Profile  { return &p.Profile }
func (p *UniversalProfile) Type() models.ProfileType { return models.ProfileTypeUniversal }
func (p *UniversalProfile) Persisted() bool          { return true }
func (p *UniversalProfile) isProfile()               {}

// ClassicProfile is a catalog profile, either migrated into the database or
// synthesized from the catalog when no row exists
type ClassicProfile struct {
	models.Profile
	Synthesized bool
}

func (p *ClassicProfile) Record() *models.Profile  { return &p.Profile }
func (p *ClassicProfile) Type() models.ProfileType { return models.ProfileTypeClassic }
func (p *ClassicProfile) Persisted() bool          { return !p.Synthesized }
func (p *ClassicProfile) isProfile()               {}

func wrap(p *models.Profile) Profile {
	if p.ProfileType == models.ProfileTypeClassic {
		return &ClassicProfile{Profile: *p}
	}
	return &UniversalProfile{Profile: *p}
}

// Synthesize builds the in-memory classic profile for a catalog entry. It has no id.
func Synthesize(cfg ClassicConfig) *ClassicProfile {
	p := models.Profile{
		ProfileKey:         cfg.Key,
		ProfileType:        models.ProfileTypeClassic,
		DisplayName:        cfg.DisplayName,
		AvatarEmoji:        cfg.AvatarEmoji,
		NativeLanguage:     cfg.NativeLanguage,
		InterfaceLanguages: models.StringList(append([]string(nil), cfg.InterfaceLanguages...)),
		Settings:           models.Settings{},
	}
	for k, v := range cfg.Settings {
		p.Settings[k] = v
	}
	for _, l := range cfg.Languages {
		p.LearningLanguages = append(p.LearningLanguages, ClassicLanguageRecord(l, 0))
	}
	return &ClassicProfile{Profile: p, Synthesized: true}
}

// ClassicLanguageRecord converts a catalog enrollment into its row shape
func ClassicLanguageRecord(l ClassicLanguage, profileID int64) models.ProfileLanguage {
	rec := models.ProfileLanguage{
		ProfileID:    profileID,
		LanguageCode: l.Code,
		LanguageName: l.Name,
		DailyWords:   l.DailyWords,
		IsActive:     true,
	}
	if rec.LanguageName == "" {
		rec.LanguageName = l.Code
	}
	if rec.DailyWords <= 0 {
		rec.DailyWords = models.DefaultDailyWords
	}
	if l.Level != "" {
		level := l.Level
		rec.LevelCode = &level
	}
	if l.Specialty != "" {
		specialty := l.Specialty
		rec.Specialty = &specialty
	}
	return rec
}
