package formflow

import (
	"helpdesk-bot/internal/common/config"
	"helpdesk-bot/internal/common/gateway"
)

type Config struct {
	// AllowedChatKinds may start a form; anything else gets MsgPrivateOnly.
	AllowedChatKinds map[gateway.ChatKind]bool
}

func LoadConfig(cfg config.BotConfig) *Config {
	kinds := make(map[gateway.ChatKind]bool, len(cfg.AllowedChatTypes))
	for _, k := range cfg.AllowedChatTypes {
		kinds[gateway.ChatKind(k)] = true
	}
	if len(kinds) == 0 {
		kinds[gateway.ChatPrivate] = true
	}
	return &Config{AllowedChatKinds: kinds}
}
