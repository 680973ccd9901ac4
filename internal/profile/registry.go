package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/pkg/models"
)

// Store is the part of the relational store the registry needs
type Store interface {
	IsInitialized() bool
	CreateProfile(ctx context.Context, p *models.Profile, languages []models.ProfileLanguage) (int64, *database.Flush, error)
	GetProfileByID(ctx context.Context, id int64) (*models.Profile, error)
	GetProfileByKey(ctx context.Context, key string) (*models.Profile, error)
	ListProfiles(ctx context.Context, filter database.ProfileFilter) ([]models.Profile, error)
	UpdateProfile(ctx context.Context, id int64, patch database.ProfilePatch) (*database.Flush, error)
	SetProfileArchived(ctx context.Context, id int64, archived bool) (*database.Flush, error)
	TouchProfile(ctx context.Context, id int64) (*database.Flush, error)
	DeleteProfile(ctx context.Context, id int64) (*database.Flush, error)
	AddProfileLanguage(ctx context.Context, l models.ProfileLanguage) (*models.ProfileLanguage, *database.Flush, error)
	GetProfileLanguage(ctx context.Context, id int64) (*models.ProfileLanguage, error)
	GetProfileLanguages(ctx context.Context, profileID int64, activeOnly bool) ([]models.ProfileLanguage, error)
	UpdateProfileLanguage(ctx context.Context, id int64, patch database.LanguagePatch) (*database.Flush, error)
	RemoveProfileLanguage(ctx context.Context, profileID int64, languageCode string) (*database.Flush, error)
	RecordProficiencyTest(ctx context.Context, t models.ProficiencyTest) (int64, *database.Flush, error)
	GetProficiencyTests(ctx context.Context, profileID int64, language string) ([]models.ProficiencyTest, error)
}

// Registry resolves, creates and edits profiles
type Registry struct {
	store   Store
	catalog *Catalog
	logger  *slog.Logger
}

// NewRegistry creates a registry over store and the classic catalog
func NewRegistry(store Store, catalog *Catalog, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, catalog: catalog, logger: logger.With("component", "profile")}
}

// Catalog returns the classic catalog
func (r *Registry) Catalog() *Catalog { return r.catalog }

// LanguageRequest is the input for enrolling a profile in a language
type LanguageRequest struct {
	LanguageCode string `json:"language_code" validate:"required"`
	LanguageName string `json:"language_name"`
	LevelCode    string `json:"level_code" validate:"omitempty,cefr"`
	Specialty    string `json:"specialty"`
	DailyWords   int    `json:"daily_words" validate:"gte=0,lte=500"`
}

func (l *LanguageRequest) normalize() {
	l.LanguageCode = strings.ToLower(strings.TrimSpace(l.LanguageCode))
	l.LanguageName = strings.TrimSpace(l.LanguageName)
	l.LevelCode = strings.ToLower(strings.TrimSpace(l.LevelCode))
	l.Specialty = strings.TrimSpace(l.Specialty)
}

func (l LanguageRequest) record(profileID int64) models.ProfileLanguage {
	return ClassicLanguageRecord(ClassicLanguage{
		Code:       l.LanguageCode,
		Name:       l.LanguageName,
		Level:      l.LevelCode,
		Specialty:  l.Specialty,
		DailyWords: l.DailyWords,
	}, profileID)
}

// CreateRequest is the input for a new universal profile
type CreateRequest struct {
	DisplayName        string            `json:"display_name" validate:"required,max=64"`
	AvatarEmoji        string            `json:"avatar_emoji"`
	NativeLanguage     string            `json:"native_language" validate:"required"`
	InterfaceLanguages []string          `json:"interface_languages"`
	Settings           map[string]any    `json:"settings"`
	LearningLanguages  []LanguageRequest `json:"learning_languages" validate:"dive"`
}

// CreateProfile validates req, stores a universal profile with its languages and companion
// user record, waits for the snapshot and returns the stored profile
func (r *Registry) CreateProfile(ctx context.Context, req CreateRequest) (Profile, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.NativeLanguage = strings.ToLower(strings.TrimSpace(req.NativeLanguage))
	for i := range req.LearningLanguages {
		req.LearningLanguages[i].normalize()
	}
	if err := validate.Struct(req); err != nil {
		return nil, newValidationError(err)
	}
	if !r.store.IsInitialized() {
		return nil, database.ErrNotInitialized
	}

	p := &models.Profile{
		ProfileKey:         newProfileKey(req.DisplayName),
		ProfileType:        models.ProfileTypeUniversal,
		DisplayName:        req.DisplayName,
		AvatarEmoji:        req.AvatarEmoji,
		NativeLanguage:     req.NativeLanguage,
		InterfaceLanguages: models.StringList(req.InterfaceLanguages),
		Settings:           models.Settings(req.Settings),
	}
	if len(p.InterfaceLanguages) == 0 {
		p.InterfaceLanguages = models.StringList{req.NativeLanguage}
	}
	if p.Settings == nil {
		p.Settings = models.Settings{}
	}

	languages := make([]models.ProfileLanguage, 0, len(req.LearningLanguages))
	for _, l := range req.LearningLanguages {
		languages = append(languages, l.record(0))
	}
	id, flush, err := r.store.CreateProfile(ctx, p, languages)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	if err := flush.Wait(ctx); err != nil {
		r.logger.Warn("profile created but snapshot not persisted", "profile_key", p.ProfileKey, "error", err)
	}

	r.logger.Info("created profile", "id", id, "profile_key", p.ProfileKey)
	return r.load(ctx, id)
}

// identify splits an identifier into a numeric id or a string key.
// Strings that round-trip through integer formatting are ids.
func identify(identifier any) (id int64, key string, ok bool) {
	switch v := identifier.(type) {
	case int:
		return int64(v), "", true
	case int32:
		return int64(v), "", true
	case int64:
		return v, "", true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, "", false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
			return n, "", true
		}
		return 0, s, true
	}
	return 0, "", false
}

// GetProfile resolves identifier (an integer id or a string key) against the database,
// then the classic catalog. Archived profiles are not returned. Storage failures are logged
// and treated as a miss.
func (r *Registry) GetProfile(ctx context.Context, identifier any) (Profile, bool) {
	id, key, ok := identify(identifier)
	if !ok {
		return nil, false
	}

	if r.store.IsInitialized() {
		var row *models.Profile
		var err error
		if key == "" {
			row, err = r.store.GetProfileByID(ctx, id)
		} else {
			row, err = r.store.GetProfileByKey(ctx, key)
		}
		switch {
		case err == nil && !row.IsArchived:
			p, lerr := r.withLanguages(ctx, row)
			if lerr == nil {
				return p, true
			}
			r.logger.Warn("failed to load profile languages", "identifier", identifier, "error", lerr)
		case err != nil && !errors.Is(err, database.ErrNotFound):
			r.logger.Warn("profile lookup failed, falling back to catalog", "identifier", identifier, "error", err)
		}
	}

	if key == "" {
		return nil, false
	}
	if cfg, ok := r.catalog.Lookup(key); ok {
		return Synthesize(cfg), true
	}
	return nil, false
}

func (r *Registry) load(ctx context.Context, id int64) (Profile, error) {
	row, err := r.store.GetProfileByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.withLanguages(ctx, row)
}

func (r *Registry) withLanguages(ctx context.Context, row *models.Profile) (Profile, error) {
	langs, err := r.store.GetProfileLanguages(ctx, row.ID, false)
	if err != nil {
		return nil, err
	}
	row.LearningLanguages = langs
	return wrap(row), nil
}

// ListOptions narrows GetAllProfiles
type ListOptions struct {
	IncludeArchived bool
	Type            models.ProfileType
}

// GetAllProfiles lists database profiles, most recently active first.
// Catalog profiles that were never migrated are not included.
func (r *Registry) GetAllProfiles(ctx context.Context, opts ListOptions) ([]Profile, error) {
	rows, err := r.store.ListProfiles(ctx, database.ProfileFilter{IncludeArchived: opts.IncludeArchived, Type: opts.Type})
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(rows))
	for i := range rows {
		p, err := r.withLanguages(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Fields UpdateProfile accepts. Everything else is dropped.
var updatableFields = map[string]bool{
	"display_name":        true,
	"avatar_emoji":        true,
	"native_language":     true,
	"interface_languages": true,
	"settings":            true,
}

// UpdateProfile applies the allow-listed keys of updates and returns the stored profile
func (r *Registry) UpdateProfile(ctx context.Context, id int64, updates map[string]any) (Profile, error) {
	var patch database.ProfilePatch
	var bad []string

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !updatableFields[k] {
			r.logger.Warn("ignoring non-updatable profile field", "field", k, "id", id)
			continue
		}
		v := updates[k]
		switch k {
		case "display_name", "avatar_emoji", "native_language":
			s, ok := v.(string)
			s = strings.TrimSpace(s)
			if !ok || (s == "" && k != "avatar_emoji") {
				bad = append(bad, k)
				continue
			}
			switch k {
			case "display_name":
				patch.DisplayName = &s
			case "avatar_emoji":
				patch.AvatarEmoji = &s
			case "native_language":
				s = strings.ToLower(s)
				patch.NativeLanguage = &s
			}
		case "interface_languages":
			list, ok := toStringList(v)
			if !ok {
				bad = append(bad, k)
				continue
			}
			patch.InterfaceLanguages = &list
		case "settings":
			settings, ok := toSettings(v)
			if !ok {
				bad = append(bad, k)
				continue
			}
			patch.Settings = &settings
		}
	}
	if len(bad) > 0 {
		return nil, newValidationError(nil, bad...)
	}

	if _, err := r.store.UpdateProfile(ctx, id, patch); err != nil {
		return nil, err
	}
	return r.load(ctx, id)
}

func toStringList(v any) (models.StringList, bool) {
	switch l := v.(type) {
	case []string:
		return models.StringList(append([]string{}, l...)), true
	case models.StringList:
		return append(models.StringList{}, l...), true
	case []any:
		out := make(models.StringList, 0, len(l))
		for _, item := range l {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func toSettings(v any) (models.Settings, bool) {
	switch m := v.(type) {
	case map[string]any:
		return models.Settings(m), true
	case models.Settings:
		return m, true
	case nil:
		return models.Settings{}, true
	}
	return nil, false
}

// ArchiveProfile hides a profile from default listings without deleting anything
func (r *Registry) ArchiveProfile(ctx context.Context, id int64) error {
	_, err := r.store.SetProfileArchived(ctx, id, true)
	return err
}

// RestoreProfile undoes ArchiveProfile
func (r *Registry) RestoreProfile(ctx context.Context, id int64) error {
	_, err := r.store.SetProfileArchived(ctx, id, false)
	return err
}

// DeleteProfile permanently removes a profile with its languages and test results
func (r *Registry) DeleteProfile(ctx context.Context, id int64) error {
	if _, err := r.store.DeleteProfile(ctx, id); err != nil {
		return err
	}
	r.logger.Info("deleted profile", "id", id)
	return nil
}

// TouchProfile marks a profile as just used
func (r *Registry) TouchProfile(ctx context.Context, id int64) error {
	_, err := r.store.TouchProfile(ctx, id)
	return err
}

// AddLanguageToProfile enrolls a profile in a language. Re-adding an enrollment returns the
// existing one, reactivated when it had been switched off.
func (r *Registry) AddLanguageToProfile(ctx context.Context, profileID int64, req LanguageRequest) (*models.ProfileLanguage, error) {
	req.normalize()
	if err := validate.Struct(req); err != nil {
		return nil, newValidationError(err)
	}
	l, _, err := r.store.AddProfileLanguage(ctx, req.record(profileID))
	if err != nil {
		return nil, err
	}
	if !l.IsActive {
		active := true
		if _, err := r.store.UpdateProfileLanguage(ctx, l.ID, database.LanguagePatch{IsActive: &active}); err != nil {
			return nil, err
		}
		l.IsActive = true
	}
	return l, nil
}

// GetProfileLanguages lists a profile's enrollments
func (r *Registry) GetProfileLanguages(ctx context.Context, profileID int64, activeOnly bool) ([]models.ProfileLanguage, error) {
	return r.store.GetProfileLanguages(ctx, profileID, activeOnly)
}

// UpdateProfileLanguage edits an enrollment
func (r *Registry) UpdateProfileLanguage(ctx context.Context, languageID int64, patch database.LanguagePatch) (*models.ProfileLanguage, error) {
	if patch.LevelCode != nil && *patch.LevelCode != "" && !IsCEFRLevel(*patch.LevelCode) {
		return nil, newValidationError(nil, "level_code")
	}
	if patch.DailyWords != nil && (*patch.DailyWords < 1 || *patch.DailyWords > 500) {
		return nil, newValidationError(nil, "daily_words")
	}
	if _, err := r.store.UpdateProfileLanguage(ctx, languageID, patch); err != nil {
		return nil, err
	}
	return r.store.GetProfileLanguage(ctx, languageID)
}

// RemoveLanguageFromProfile drops an enrollment
func (r *Registry) RemoveLanguageFromProfile(ctx context.Context, profileID int64, languageCode string) error {
	_, err := r.store.RemoveProfileLanguage(ctx, profileID, strings.ToLower(languageCode))
	return err
}

// RecordProficiencyTest appends a test result
func (r *Registry) RecordProficiencyTest(ctx context.Context, t models.ProficiencyTest) (int64, error) {
	t.LanguageCode = strings.ToLower(t.LanguageCode)
	t.DeterminedLevel = strings.ToLower(t.DeterminedLevel)
	var bad []string
	if t.LanguageCode == "" {
		bad = append(bad, "language_code")
	}
	if !IsCEFRLevel(t.DeterminedLevel) {
		bad = append(bad, "determined_level")
	}
	if t.QuestionsCorrect < 0 || t.QuestionsCorrect > t.QuestionsTotal {
		bad = append(bad, "questions_correct")
	}
	if len(bad) > 0 {
		return 0, newValidationError(nil, bad...)
	}
	id, _, err := r.store.RecordProficiencyTest(ctx, t)
	return id, err
}

// GetProficiencyTests returns a profile's test results, newest first
func (r *Registry) GetProficiencyTests(ctx context.Context, profileID int64, language string) ([]models.ProficiencyTest, error) {
	return r.store.GetProficiencyTests(ctx, profileID, strings.ToLower(language))
}
