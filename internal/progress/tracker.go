// Package progress tracks study streaks, daily totals and completed words for one profile.
//
// Every write lands in a key-value mirror first and is then written through to the database
// once the profile's user row is known. Database failures are logged and never reach the caller;
// reads fall back to the mirror.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/wordgo/internal/calendar"
	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/internal/spaced_repetition"
	"github.com/example/wordgo/pkg/models"
)

// Database is the relational store as seen by the tracker
type Database interface {
	GetOrCreateUser(ctx context.Context, profileKey string) (*models.User, *database.Flush, error)
	RecordWordLearned(ctx context.Context, userID int64, language, word string) (*database.Flush, error)
	UpdateMasteryLevel(ctx context.Context, userID int64, language, word string, level int) (*database.Flush, error)
	GetWordProgress(ctx context.Context, userID int64, language, word string) (*models.ProgressRecord, error)
	GetLearnedCount(ctx context.Context, userID int64, language string) (int, error)
	RecordDailyStats(ctx context.Context, stat models.DailyStat) (*database.Flush, error)
	GetDailyStats(ctx context.Context, userID int64, from, to string) ([]models.DailyStat, error)
	GetStats(ctx context.Context, userID int64) (models.Stats, error)
	SaveWord(ctx context.Context, userID int64, language, word string, wordIndex int, notes *string) (*database.Flush, error)
	UnsaveWord(ctx context.Context, userID int64, language string, wordIndex int) (*database.Flush, error)
	GetSavedWords(ctx context.Context, userID int64, language string) ([]models.SavedWord, error)
}

// KeyValue is the profile-scoped key-value store holding the mirror
type KeyValue interface {
	GetForProfileInto(profileKey, key string, dst any) bool
	SetForProfile(profileKey, key string, value any) bool
	RemoveForProfile(profileKey, key string) bool
}

type resolution int

const (
	pending resolution = iota
	resolved
	unavailable
)

// Tracker records progress for a single profile
type Tracker struct {
	profileKey string
	db         Database
	kv         KeyValue
	sm         *spaced_repetition.SM2
	clock      func() time.Time
	location   *time.Location
	dailyGoal  int
	logger     *slog.Logger

	mu      sync.Mutex
	state   resolution
	userID  int64
	backlog []func(userID int64)

	startOnce sync.Once
	ready     chan struct{}
}

// Option configures a Tracker
type Option func(*Tracker)

func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithLocation sets the zone that decides where a study day starts
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		if loc != nil {
			t.location = loc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

func WithDailyGoal(goal int) Option {
	return func(t *Tracker) {
		if goal > 0 {
			t.dailyGoal = goal
		}
	}
}

// NewTracker creates a tracker for profileKey. db may be nil, in which case only the mirror is used.
func NewTracker(profileKey string, db Database, kv KeyValue, opts ...Option) *Tracker {
	t := &Tracker{
		profileKey: profileKey,
		db:         db,
		kv:         kv,
		sm:         spaced_repetition.NewSM2(),
		clock:      time.Now,
		location:   time.Local,
		dailyGoal:  models.DefaultDailyWords,
		logger:     slog.Default(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "progress", "profile_key", profileKey)
	return t
}

// Start resolves the profile's user row in the background. Writes made before it finishes
// are kept in the mirror and written through afterwards.
func (t *Tracker) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		go func() {
			defer close(t.ready)
			t.resolve(ctx)
		}()
	})
}

// Ready is closed once user resolution has finished, whether or not it succeeded
func (t *Tracker) Ready() <-chan struct{} {
	return t.ready
}

// ProfileKey returns the profile this tracker records for
func (t *Tracker) ProfileKey() string { return t.profileKey }

func (t *Tracker) resolve(ctx context.Context) {
	if t.db == nil {
		t.markUnavailable()
		return
	}
	user, _, err := t.db.GetOrCreateUser(ctx, t.profileKey)
	if err != nil {
		t.logger.Warn("database unavailable, tracking progress in mirror only", "error", err)
		t.markUnavailable()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	imported := t.importLegacy(ctx, user.ID)
	t.userID = user.ID
	t.state = resolved

	backlog := t.backlog
	t.backlog = nil
	if imported {
		// The import replayed the mirror, which already holds every queued write
		return
	}
	for _, fn := range backlog {
		fn(user.ID)
	}
}

func (t *Tracker) markUnavailable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = unavailable
	t.backlog = nil
}

// writeThrough runs fn against the database once the user row is known. Must hold t.mu.
func (t *Tracker) writeThrough(ctx context.Context, op string, fn func(ctx context.Context, userID int64) error) {
	switch t.state {
	case resolved:
		t.apply(ctx, op, fn, t.userID)
	case pending:
		detached := context.WithoutCancel(ctx)
		t.backlog = append(t.backlog, func(userID int64) { t.apply(detached, op, fn, userID) })
	}
}

func (t *Tracker) apply(ctx context.Context, op string, fn func(ctx context.Context, userID int64) error, userID int64) {
	if err := fn(ctx, userID); err != nil {
		t.logger.Warn("database write failed, kept in mirror", "op", op, "error", err)
	}
}

// user returns the resolved user id. Must hold t.mu.
func (t *Tracker) user() (int64, bool) {
	return t.userID, t.state == resolved
}

func (t *Tracker) today() string {
	return calendar.Day(t.clock(), t.location)
}

// loadMirror reads the mirror or returns an empty one. Must hold t.mu.
func (t *Tracker) loadMirror() (*Mirror, bool) {
	m := newMirror(t.dailyGoal)
	if !t.kv.GetForProfileInto(t.profileKey, mirrorKey, m) {
		return newMirror(t.dailyGoal), false
	}
	if m.LanguageProgress == nil {
		m.LanguageProgress = map[string]*LanguageMirror{}
	}
	return m, true
}

func (t *Tracker) saveMirror(m *Mirror) {
	if !t.kv.SetForProfile(t.profileKey, mirrorKey, m) {
		t.logger.Error("failed to write progress mirror")
	}
}
