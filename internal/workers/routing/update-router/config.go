package updaterouter

import (
	"time"

	"helpdesk-bot/internal/common/config"
	"helpdesk-bot/internal/common/gateway"
)

const defaultUpdateTimeout = 10 * time.Second

type Config struct {
	// UpdateTimeout bounds the handling of one update, outbound calls included.
	UpdateTimeout time.Duration
	// ConversationChats are the chat kinds whose free text is matched
	// against the sender's session.
	ConversationChats map[gateway.ChatKind]bool
}

func LoadConfig(cfg config.BotConfig) *Config {
	timeout := config.GetDuration(cfg.UpdateTimeout)
	if timeout <= 0 {
		timeout = defaultUpdateTimeout
	}

	kinds := make(map[gateway.ChatKind]bool, len(cfg.AllowedChatTypes))
	for _, k := range cfg.AllowedChatTypes {
		kinds[gateway.ChatKind(k)] = true
	}
	if len(kinds) == 0 {
		kinds[gateway.ChatPrivate] = true
	}

	return &Config{
		UpdateTimeout:     timeout,
		ConversationChats: kinds,
	}
}
