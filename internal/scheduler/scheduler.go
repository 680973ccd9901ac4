package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// DefaultAutosaveInterval is used when the configured interval is not positive
const DefaultAutosaveInterval = 30 * time.Second

// Snapshotter is the store whose snapshot gets flushed
type Snapshotter interface {
	Dirty() bool
	SaveToStorage(ctx context.Context) error
}

// Notifier interface for sending notifications
type Notifier interface {
	SendDailyReminders(ctx context.Context) error
}

// Config holds the job timings
type Config struct {
	AutosaveInterval time.Duration
	// ReminderTime is the local "HH:MM" of the daily reminder; empty disables it
	ReminderTime string
	Location     *time.Location
	// SaveTimeout bounds a single autosave
	SaveTimeout time.Duration
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	store     Snapshotter
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
}

// New creates a new scheduler instance. notifier may be nil.
func New(store Snapshotter, notifier Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = DefaultAutosaveInterval
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(cfg.Location)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		store:     store,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start registers the jobs and runs them in the background
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.cfg.AutosaveInterval).WaitForSchedule().Tag("autosave").Do(s.autosave); err != nil {
		return fmt.Errorf("failed to schedule autosave: %w", err)
	}
	if s.notifier != nil && s.cfg.ReminderTime != "" {
		if _, err := s.scheduler.Every(1).Day().At(s.cfg.ReminderTime).Tag("reminder").Do(s.remind); err != nil {
			return fmt.Errorf("failed to schedule reminder at %q: %w", s.cfg.ReminderTime, err)
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started", "autosave_interval", s.cfg.AutosaveInterval, "reminder_time", s.cfg.ReminderTime)
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// JobCount returns how many jobs are registered
func (s *Scheduler) JobCount() int {
	return len(s.scheduler.Jobs())
}

// RunAutosave flushes the snapshot if anything changed since the last write
func (s *Scheduler) RunAutosave(ctx context.Context) (bool, error) {
	if !s.store.Dirty() {
		return false, nil
	}
	if err := s.store.SaveToStorage(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scheduler) autosave() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SaveTimeout)
	defer cancel()

	saved, err := s.RunAutosave(ctx)
	switch {
	case err != nil:
		s.logger.Error("autosave failed", "error", err)
	case saved:
		s.logger.Debug("autosave wrote snapshot")
	}
}

func (s *Scheduler) remind() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.notifier.SendDailyReminders(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("failed to send reminders", "error", err)
	}
}
