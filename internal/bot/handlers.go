package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/wordgo/internal/assessment"
	"github.com/example/wordgo/internal/profile"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "Commands:\n" +
	"/profiles - list profiles\n" +
	"/use <id|key> - pick the profile for this chat\n" +
	"/new <name> <native language> - create a profile\n" +
	"/study <language> [count] - record a study session\n" +
	"/done <language> <word index> - mark a word as learned\n" +
	"/progress <language> [total words] - completion of a word list\n" +
	"/stats - streaks and totals\n" +
	"/test <language> <correct> <total> - record a test and set your level"

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	chatID := message.Chat.ID
	args := strings.Fields(message.CommandArguments())

	var reply string
	switch message.Command() {
	case "start", "help":
		reply = "👋 Welcome to wordgo!\n\n" + helpText
	case "profiles":
		reply = b.handleProfiles(ctx)
	case "use":
		reply = b.handleUse(ctx, chatID, args)
	case "new":
		reply = b.handleNew(ctx, chatID, args)
	case "test":
		reply = b.handleTest(ctx, chatID, args)
	case "study", "done", "progress", "stats":
		key, ok := b.activeProfile(chatID)
		if !ok {
			reply = "Pick a profile first with /use or create one with /new."
			break
		}
		reply = b.handleProgress(ctx, message.Command(), key, args)
	default:
		reply = "Unknown command.\n\n" + helpText
	}
	return b.sendText(chatID, reply)
}

func (b *Bot) handleProfiles(ctx context.Context) string {
	profiles, err := b.profiles.GetAllProfiles(ctx, profile.ListOptions{})
	if err != nil {
		b.logger.Warn("listing built-in profiles only", "error", err)
		var sb strings.Builder
		sb.WriteString("Profiles:\n")
		for _, cfg := range b.profiles.Catalog().Profiles {
			fmt.Fprintf(&sb, "%s %s (%s)\n", cfg.AvatarEmoji, cfg.DisplayName, cfg.Key)
		}
		return strings.TrimRight(sb.String(), "\n")
	}
	if len(profiles) == 0 {
		return "No profiles yet. Create one with /new."
	}

	var sb strings.Builder
	sb.WriteString("Profiles:\n")
	for _, p := range profiles {
		r := p.Record()
		fmt.Fprintf(&sb, "%d. %s %s (%s)\n", r.ID, r.AvatarEmoji, r.DisplayName, r.ProfileKey)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *Bot) handleUse(ctx context.Context, chatID int64, args []string) string {
	if len(args) != 1 {
		return "Usage: /use <id|key>"
	}
	p, ok := b.profiles.GetProfile(ctx, args[0])
	if !ok {
		return fmt.Sprintf("Profile %q not found.", args[0])
	}
	r := p.Record()
	if !b.bind(chatID, r.ProfileKey) {
		return "Could not save your choice, please try again."
	}
	if p.Persisted() {
		if err := b.profiles.TouchProfile(ctx, r.ID); err != nil {
			b.logger.Warn("failed to touch profile", "profile_key", r.ProfileKey, "error", err)
		}
	}
	b.trackers.Get(ctx, r.ProfileKey)
	return fmt.Sprintf("Now studying as %s %s.", r.AvatarEmoji, r.DisplayName)
}

func (b *Bot) handleNew(ctx context.Context, chatID int64, args []string) string {
	if len(args) < 2 {
		return "Usage: /new <name> <native language>"
	}
	req := profile.CreateRequest{
		DisplayName:    strings.Join(args[:len(args)-1], " "),
		NativeLanguage: args[len(args)-1],
	}
	p, err := b.profiles.CreateProfile(ctx, req)
	if err != nil {
		b.logger.Warn("failed to create profile", "error", err)
		return "Could not create the profile: " + err.Error()
	}
	r := p.Record()
	b.bind(chatID, r.ProfileKey)
	return fmt.Sprintf("Created %s (%s). It is now active in this chat.", r.DisplayName, r.ProfileKey)
}

func (b *Bot) handleProgress(ctx context.Context, command, profileKey string, args []string) string {
	t := b.trackers.Get(ctx, profileKey)

	switch command {
	case "stats":
		s := t.GetStats(ctx)
		return fmt.Sprintf("🔥 Current streak: %d\n🏆 Longest streak: %d\n📚 Words studied: %d\n📅 Days studied: %d",
			s.CurrentStreak, s.LongestStreak, s.TotalWordsStudied, s.TotalDaysStudied)

	case "study":
		if len(args) < 1 {
			return "Usage: /study <language> [count]"
		}
		count, ok := intArg(args, 1, b.config.DefaultStudyWords)
		if !ok || count < 0 {
			return "The word count must be a non-negative number."
		}
		language := strings.ToLower(args[0])
		res := t.RecordStudySession(ctx, language, count)
		t.SetLastActiveLanguage(language)
		return fmt.Sprintf("Recorded %d words in %s today. Streak: %d (best %d).",
			res.TodayWords, language, res.CurrentStreak, res.LongestStreak)

	case "done":
		if len(args) != 2 {
			return "Usage: /done <language> <word index>"
		}
		index, ok := intArg(args, 1, 0)
		if !ok || index < 0 {
			return "The word index must be a non-negative number."
		}
		language := strings.ToLower(args[0])
		added := t.MarkWordCompleted(ctx, language, index)
		if index+1 > t.GetPosition(language) {
			t.SetPosition(language, index+1)
		}
		if !added {
			return fmt.Sprintf("Word %d in %s was already learned.", index, language)
		}
		return fmt.Sprintf("Word %d in %s marked as learned.", index, language)

	case "progress":
		if len(args) < 1 {
			return "Usage: /progress <language> [total words]"
		}
		total, ok := intArg(args, 1, b.config.DefaultTotalWords)
		if !ok {
			return "The total must be a number."
		}
		language := strings.ToLower(args[0])
		return fmt.Sprintf("%s: %d%% complete.", language, t.GetCompletionPercentage(ctx, language, total))
	}
	return helpText
}

func (b *Bot) handleTest(ctx context.Context, chatID int64, args []string) string {
	if b.tests == nil {
		return "Tests are not available."
	}
	key, ok := b.activeProfile(chatID)
	if !ok {
		return "Pick a profile first with /use or create one with /new."
	}
	if len(args) != 3 {
		return "Usage: /test <language> <correct> <total>"
	}
	correct, okCorrect := intArg(args, 1, 0)
	total, okTotal := intArg(args, 2, 0)
	if !okCorrect || !okTotal || total <= 0 || correct < 0 || correct > total {
		return "Give the number of correct answers and the total, e.g. /test de 14 20"
	}
	p, found := b.profiles.GetProfile(ctx, key)
	if !found || !p.Persisted() {
		return "This profile is not stored yet, so test results cannot be saved."
	}

	res, err := b.tests.Complete(ctx, assessment.Submission{
		ProfileID:  p.Record().ID,
		Language:   args[0],
		Type:       assessment.Quiz,
		Correct:    correct,
		Total:      total,
		ApplyLevel: true,
	})
	if err != nil {
		b.logger.Warn("failed to complete test", "profile_key", key, "error", err)
		return fmt.Sprintf("Scored %.1f%% (level %s), but the level could not be saved.", res.Score, strings.ToUpper(res.Level))
	}
	return fmt.Sprintf("Scored %.1f%%. Your %s level is now %s.", res.Score, strings.ToLower(args[0]), strings.ToUpper(res.Level))
}

// intArg parses args[i], or returns def when it is absent
func intArg(args []string, i, def int) (int, bool) {
	if len(args) <= i {
		return def, true
	}
	n, err := strconv.Atoi(args[i])
	return n, err == nil
}
