package matchcoordinator

import "helpdesk-bot/internal/common/config"

type Config struct {
	ModerationChatID int64
	// AllowedResponders holds lowercase handles without "@".
	AllowedResponders map[string]bool
}

func LoadConfig(cfg config.BotConfig) *Config {
	return &Config{
		ModerationChatID:  cfg.ModerationChatID,
		AllowedResponders: cfg.ResponderAllowList(),
	}
}
