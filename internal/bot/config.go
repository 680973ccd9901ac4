package bot

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Long-polling timeout in seconds
	UpdateTimeout int
	// Words counted by /study when no count is given
	DefaultStudyWords int
	// Word-list size used by /progress when no total is given
	DefaultTotalWords int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		UpdateTimeout:     60,
		DefaultStudyWords: 10,
		DefaultTotalWords: 100,
	}
}
