// Package bot is a Telegram front end over profiles and progress tracking.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/example/wordgo/internal/assessment"
	"github.com/example/wordgo/internal/profile"
	"github.com/example/wordgo/internal/progress"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// chatNamespace scopes the chat to profile bindings in the key-value store
const chatNamespace = "telegram"

// Sender is the part of the Telegram API the bot writes to
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Profiles is the profile registry as seen by the bot
type Profiles interface {
	GetProfile(ctx context.Context, identifier any) (profile.Profile, bool)
	GetAllProfiles(ctx context.Context, opts profile.ListOptions) ([]profile.Profile, error)
	CreateProfile(ctx context.Context, req profile.CreateRequest) (profile.Profile, error)
	TouchProfile(ctx context.Context, id int64) error
	Catalog() *profile.Catalog
}

// Bindings remembers which profile each chat uses
type Bindings interface {
	GetForProfileInto(profileKey, key string, dst any) bool
	SetForProfile(profileKey, key string, value any) bool
	GetProfileKeys(profileKey string) []string
}

// Bot represents the Telegram bot application
type Bot struct {
	api      Sender
	client   *tgbotapi.BotAPI
	profiles Profiles
	trackers *progress.Hub
	bindings Bindings
	tests    *assessment.Service
	config   *BotConfig
	logger   *slog.Logger
}

// New connects to Telegram with token
func New(token string, profiles Profiles, trackers *progress.Hub, bindings Bindings, logger *slog.Logger) (*Bot, error) {
	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	b := NewWithSender(client, profiles, trackers, bindings, logger)
	b.client = client
	b.logger.Info("authorized on telegram", "account", client.Self.UserName)
	return b, nil
}

// NewWithSender builds a bot over an existing sender. It can handle messages but not poll.
func NewWithSender(api Sender, profiles Profiles, trackers *progress.Hub, bindings Bindings, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:      api,
		profiles: profiles,
		trackers: trackers,
		bindings: bindings,
		config:   DefaultConfig(),
		logger:   logger.With("component", "bot"),
	}
}

// SetAssessment enables the /test command
func (b *Bot) SetAssessment(s *assessment.Service) {
	b.tests = s
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	if b.client == nil {
		return errors.New("bot has no telegram client")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.config.UpdateTimeout
	updates := b.client.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if err := b.HandleCommand(ctx, update.Message); err != nil {
				b.logger.Error("failed to handle command", "command", update.Message.Command(), "error", err)
			}
		}
	}
}

// Stop gracefully stops the bot
func (b *Bot) Stop() {
	if b.client != nil {
		b.client.StopReceivingUpdates()
	}
	b.logger.Info("bot stopped")
}

// SendDailyReminders implements scheduler.Notifier. Chats whose profile has not studied today
// get a nudge with their current streak.
func (b *Bot) SendDailyReminders(ctx context.Context) error {
	var errs []error
	for _, suffix := range b.bindings.GetProfileKeys(chatNamespace) {
		chatID, ok := parseBindingKey(suffix)
		if !ok {
			continue
		}
		key, ok := b.activeProfile(chatID)
		if !ok {
			continue
		}
		t := b.trackers.Get(ctx, key)
		if t.StudiedToday() {
			continue
		}
		streak := t.GetStats(ctx).CurrentStreak
		text := "Time for today's words!"
		if streak > 0 {
			text = fmt.Sprintf("Time for today's words! Keep your %d-day streak going.", streak)
		}
		if err := b.sendText(chatID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to %d: %w", chatID, err)
	}
	return nil
}

func bindingKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10) + "-profile"
}

func parseBindingKey(suffix string) (int64, bool) {
	raw, ok := strings.CutSuffix(suffix, "-profile")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

func (b *Bot) activeProfile(chatID int64) (string, bool) {
	var key string
	ok := b.bindings.GetForProfileInto(chatNamespace, bindingKey(chatID), &key)
	return key, ok && key != ""
}

func (b *Bot) bind(chatID int64, profileKey string) bool {
	return b.bindings.SetForProfile(chatNamespace, bindingKey(chatID), profileKey)
}
