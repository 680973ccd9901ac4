// Package migration moves the classic catalog profiles into the database exactly once.
//
// Completion is recorded as a version marker in the key-value store. A run that fails for some
// profiles leaves the marker unset so the next start retries; profiles that already made it are
// detected and left alone.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/internal/profile"
	"github.com/example/wordgo/pkg/models"
)

// MarkerKey is the key-value key holding the completed migration version
const MarkerKey = "migration-version"

// ErrRollbackNotConfirmed is returned by RollbackMigration without confirmation
var ErrRollbackNotConfirmed = errors.New("rollback requires confirmation")

// State is the coordinator lifecycle
type State int

const (
	NotStarted State = iota
	Running
	Complete
	CompleteWithErrors
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case CompleteWithErrors:
		return "complete_with_errors"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is what happened to one classic profile
type Outcome int

const (
	Migrated Outcome = iota + 1
	AlreadyPresent
	SkippedConflict
)

// Store is the part of the relational store the coordinator needs
type Store interface {
	IsInitialized() bool
	GetProfileByKey(ctx context.Context, key string) (*models.Profile, error)
	InsertProfile(ctx context.Context, p *models.Profile) (int64, *database.Flush, error)
	AddProfileLanguage(ctx context.Context, l models.ProfileLanguage) (*models.ProfileLanguage, *database.Flush, error)
	GetProfileLanguages(ctx context.Context, profileID int64, activeOnly bool) ([]models.ProfileLanguage, error)
	GetOrCreateUser(ctx context.Context, profileKey string) (*models.User, *database.Flush, error)
	DeleteProfilesByType(ctx context.Context, profileType models.ProfileType) (int64, *database.Flush, error)
}

// MarkerStore holds the version marker
type MarkerStore interface {
	GetString(key string) (string, bool)
	Set(key string, value any) bool
	Remove(key string) bool
}

// Coordinator runs the classic profile migration
type Coordinator struct {
	store   Store
	catalog *profile.Catalog
	markers MarkerStore
	version string
	logger  *slog.Logger

	mu    sync.Mutex
	state State
}

// New creates a coordinator expecting the marker to equal version once done
func New(store Store, catalog *profile.Catalog, markers MarkerStore, version string, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		catalog: catalog,
		markers: markers,
		version: version,
		logger:  logger.With("component", "migration"),
	}
}

// State returns the current lifecycle state
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsMigrationComplete reports whether the marker holds the expected version
func (c *Coordinator) IsMigrationComplete() bool {
	v, ok := c.markers.GetString(MarkerKey)
	return ok && v == c.version
}

// Report summarizes a run
type Report struct {
	AlreadyComplete bool
	Migrated        []string
	Existing        []string
	Skipped         []string
	Failed          map[string]error
}

// PartialFailureError lists the profiles a run could not migrate
type PartialFailureError struct {
	Failed map[string]error
}

func (e *PartialFailureError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for k := range e.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("classic migration failed for %d profile(s): %s", len(keys), strings.Join(keys, ", "))
}

func (e *PartialFailureError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// RunMigration migrates every catalog profile unless the marker says it already happened.
// Each profile is migrated independently; any failure withholds the marker and is returned
// as a *PartialFailureError alongside the report.
func (c *Coordinator) RunMigration(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.IsMigrationComplete() {
		c.state = Complete
		return &Report{AlreadyComplete: true}, nil
	}
	if !c.store.IsInitialized() {
		return nil, database.ErrNotInitialized
	}

	c.state = Running
	c.logger.Info("starting classic profile migration", "profiles", len(c.catalog.Profiles), "version", c.version)

	report := &Report{Failed: map[string]error{}}
	for _, cfg := range c.catalog.Profiles {
		outcome, err := c.MigrateClassicProfile(ctx, cfg)
		if err != nil {
			c.logger.Error("failed to migrate classic profile", "profile_key", cfg.Key, "error", err)
			report.Failed[cfg.Key] = err
			continue
		}
		switch outcome {
		case Migrated:
			report.Migrated = append(report.Migrated, cfg.Key)
		case AlreadyPresent:
			report.Existing = append(report.Existing, cfg.Key)
		case SkippedConflict:
			report.Skipped = append(report.Skipped, cfg.Key)
		}
	}

	if len(report.Failed) > 0 {
		c.state = CompleteWithErrors
		return report, &PartialFailureError{Failed: report.Failed}
	}
	if !c.markers.Set(MarkerKey, c.version) {
		c.state = CompleteWithErrors
		return report, errors.New("failed to write migration marker")
	}

	c.state = Complete
	c.logger.Info("classic profile migration complete",
		"migrated", len(report.Migrated), "existing", len(report.Existing), "skipped", len(report.Skipped))
	return report, nil
}

// MigrateClassicProfile copies one catalog profile, its languages and its user record into the
// database. A key already owned by a universal profile is skipped; an existing classic row is
// left untouched.
func (c *Coordinator) MigrateClassicProfile(ctx context.Context, cfg profile.ClassicConfig) (Outcome, error) {
	existing, err := c.store.GetProfileByKey(ctx, cfg.Key)
	switch {
	case err == nil && existing.ProfileType != models.ProfileTypeClassic:
		c.logger.Warn("profile key taken by a non-classic profile, skipping", "profile_key", cfg.Key, "type", existing.ProfileType)
		return SkippedConflict, nil
	case err == nil:
		return AlreadyPresent, nil
	case !errors.Is(err, database.ErrNotFound):
		return 0, fmt.Errorf("failed to look up %s: %w", cfg.Key, err)
	}

	row := profile.Synthesize(cfg).Profile
	row.LearningLanguages = nil
	id, _, err := c.store.InsertProfile(ctx, &row)
	if err != nil {
		return 0, err
	}

	for _, l := range cfg.Languages {
		if _, _, err := c.store.AddProfileLanguage(ctx, profile.ClassicLanguageRecord(l, id)); err != nil {
			c.logger.Error("failed to migrate profile language", "profile_key", cfg.Key, "language", l.Code, "error", err)
		}
	}

	_, flush, err := c.store.GetOrCreateUser(ctx, cfg.Key)
	if err != nil {
		return 0, fmt.Errorf("failed to create user record for %s: %w", cfg.Key, err)
	}
	if err := flush.Wait(ctx); err != nil {
		c.logger.Warn("migrated profile not yet persisted", "profile_key", cfg.Key, "error", err)
	}

	c.logger.Info("migrated classic profile", "profile_key", cfg.Key, "id", id, "languages", len(cfg.Languages))
	return Migrated, nil
}

// Mismatch is a difference between the catalog and the stored classic profile
type Mismatch struct {
	ProfileKey string
	Field      string
	Expected   string
	Actual     string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s.%s: expected %q, got %q", m.ProfileKey, m.Field, m.Expected, m.Actual)
}

// VerifyMigration compares every catalog profile with its stored row and returns all mismatches
func (c *Coordinator) VerifyMigration(ctx context.Context) ([]Mismatch, error) {
	if !c.store.IsInitialized() {
		return nil, database.ErrNotInitialized
	}

	var mismatches []Mismatch
	for _, cfg := range c.catalog.Profiles {
		row, err := c.store.GetProfileByKey(ctx, cfg.Key)
		if errors.Is(err, database.ErrNotFound) {
			mismatches = append(mismatches, Mismatch{ProfileKey: cfg.Key, Field: "profile", Expected: "present", Actual: "missing"})
			continue
		}
		if err != nil {
			return nil, err
		}
		if row.DisplayName != cfg.DisplayName {
			mismatches = append(mismatches, Mismatch{ProfileKey: cfg.Key, Field: "display_name", Expected: cfg.DisplayName, Actual: row.DisplayName})
		}
		langs, err := c.store.GetProfileLanguages(ctx, row.ID, false)
		if err != nil {
			return nil, err
		}
		if len(langs) != len(cfg.Languages) {
			mismatches = append(mismatches, Mismatch{
				ProfileKey: cfg.Key,
				Field:      "languages",
				Expected:   fmt.Sprint(len(cfg.Languages)),
				Actual:     fmt.Sprint(len(langs)),
			})
		}
	}
	return mismatches, nil
}

// RollbackMigration deletes every classic profile and clears the marker. It refuses to do
// anything unless confirmed.
func (c *Coordinator) RollbackMigration(ctx context.Context, confirmed bool) (int64, error) {
	if !confirmed {
		c.logger.Warn("rollback requested without confirmation")
		return 0, ErrRollbackNotConfirmed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n, flush, err := c.store.DeleteProfilesByType(ctx, models.ProfileTypeClassic)
	if err != nil {
		return 0, fmt.Errorf("failed to delete classic profiles: %w", err)
	}
	c.markers.Remove(MarkerKey)
	c.state = NotStarted

	if err := flush.Wait(ctx); err != nil {
		c.logger.Warn("rollback not yet persisted", "error", err)
	}
	c.logger.Info("rolled back classic profile migration", "deleted", n)
	return n, nil
}
