package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/example/wordgo/internal/assessment"
	"github.com/example/wordgo/internal/blockstore"
	"github.com/example/wordgo/internal/bot"
	"github.com/example/wordgo/internal/config"
	"github.com/example/wordgo/internal/database"
	"github.com/example/wordgo/internal/excel"
	"github.com/example/wordgo/internal/kvstore"
	"github.com/example/wordgo/internal/migration"
	"github.com/example/wordgo/internal/profile"
	"github.com/example/wordgo/internal/progress"
	"github.com/example/wordgo/internal/scheduler"
	"github.com/spf13/afero"
)

func main() {
	if err := run(); err != nil {
		slog.Error("wordgo stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Создаем контекст, отменяемый по сигналу
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fs := afero.NewOsFs()
	blocks, err := blockstore.New(fs, cfg.DataDir, blockstore.WithTimeout(cfg.BlockTimeout), blockstore.WithLogger(logger))
	if err != nil {
		return err
	}
	backend, err := kvstore.NewFileBackend(fs, filepath.Join(cfg.DataDir, "kv.json"), cfg.KVQuotaBytes)
	if err != nil {
		return err
	}
	kv := kvstore.New(backend, cfg.Namespace, logger)

	db := database.New(blocks, kv,
		database.WithSnapshotKey(cfg.SnapshotKey),
		database.WithSnapshotObject(cfg.SnapshotObject),
		database.WithLocation(loc),
		database.WithLogger(logger),
	)
	if err := db.Init(ctx); err != nil {
		logger.Error("database unavailable, progress is kept in the key-value store only", "error", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	registry := profile.NewRegistry(db, catalog, logger)

	if db.IsInitialized() {
		coordinator := migration.New(db, catalog, kv, cfg.MigrationVersion, logger)
		if _, err := coordinator.RunMigration(ctx); err != nil {
			logger.Error("classic profile migration incomplete", "error", err)
		} else if mismatches, err := coordinator.VerifyMigration(ctx); err == nil {
			for _, m := range mismatches {
				logger.Warn("classic profile differs from catalog", "mismatch", m.String())
			}
		}
	}

	if len(os.Args) > 1 && os.Args[1] == "export" {
		return exportProgress(ctx, db, os.Args[2:])
	}

	trackers := progress.NewHub(db, kv, progress.WithLocation(loc), progress.WithLogger(logger))

	var (
		b        *bot.Bot
		notifier scheduler.Notifier
	)
	if cfg.TelegramToken != "" {
		b, err = bot.New(cfg.TelegramToken, registry, trackers, kv, logger)
		if err != nil {
			return err
		}
		b.SetAssessment(assessment.NewService(registry))
		notifier = b
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, running without chat front end")
	}

	sched := scheduler.New(db, notifier, scheduler.Config{
		AutosaveInterval: cfg.AutosaveInterval,
		ReminderTime:     cfg.ReminderTime,
		Location:         loc,
	}, logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	logger.Info("wordgo started", "data_dir", cfg.DataDir)
	if b != nil {
		go func() {
			<-ctx.Done()
			b.Stop()
		}()
		if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	} else {
		<-ctx.Done()
	}
	logger.Info("shutting down")
	return nil
}

func loadCatalog(cfg *config.Config) (*profile.Catalog, error) {
	if cfg.CatalogPath != "" {
		return profile.LoadCatalogFile(cfg.CatalogPath)
	}
	return profile.DefaultCatalog()
}

// exportProgress handles "wordgo export <profile key> <file.xlsx>"
func exportProgress(ctx context.Context, db *database.Store, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: wordgo export <profile key> <file.xlsx>")
	}
	user, err := db.GetUserByProfileKey(ctx, args[0])
	if err != nil {
		return fmt.Errorf("no progress for %q: %w", args[0], err)
	}
	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := excel.ExportProgress(ctx, db, user.ID, f)
	if err != nil {
		return err
	}
	slog.Info("progress exported", "file", args[1], "words", res.Words, "days", res.Days, "saved", res.Saved)
	return f.Close()
}
