package ratingaggregator

import "helpdesk-bot/internal/common/config"

type Config struct {
	Policy string
}

func LoadConfig(cfg config.RatingsConfig) *Config {
	policy := cfg.Policy
	if policy == "" {
		policy = config.PolicyPlaceholder
	}
	return &Config{Policy: policy}
}
