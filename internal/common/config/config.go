package config

import (
	"fmt"
	"strings"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Bot       BotConfig       `mapstructure:"bot"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Ratings   RatingsConfig   `mapstructure:"ratings"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// Bot modes.
const (
	ModePoll    = "poll"
	ModeWebhook = "webhook"
)

// BotConfig holds the chat transport and the responder allow-list.
type BotConfig struct {
	Token             string   `mapstructure:"token"`
	Mode              string   `mapstructure:"mode"`
	ModerationChatID  int64    `mapstructure:"moderation_chat_id"`
	AllowedResponders []string `mapstructure:"allowed_responders"`
	AllowedChatTypes  []string `mapstructure:"allowed_chat_types"`
	PollTimeout       int      `mapstructure:"poll_timeout"`   // seconds
	UpdateTimeout     int      `mapstructure:"update_timeout"` // milliseconds
	Debug             bool     `mapstructure:"debug"`
}

// ResponderAllowList returns the allow-list normalized for case-insensitive
// lookups: lowercased, without a leading "@".
func (b BotConfig) ResponderAllowList() map[string]bool {
	out := make(map[string]bool, len(b.AllowedResponders))
	for _, h := range b.AllowedResponders {
		h = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
		if h != "" {
			out[h] = true
		}
	}
	return out
}

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	WebhookPath string `mapstructure:"webhook_path"`
	PublicURL   string `mapstructure:"public_url"`
}

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	SessionTTL int    `mapstructure:"session_ttl"` // seconds, 0 = no expiry
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Rating policies.
const (
	PolicyPlaceholder = "placeholder"
	PolicyLatest      = "latest"
	PolicyAverage     = "average"
)

type RatingsConfig struct {
	Policy string `mapstructure:"policy"`
}

// RateLimitConfig throttles inbound updates per sender.
type RateLimitConfig struct {
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
	IdleTTL int     `mapstructure:"idle_ttl"` // seconds
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig exports per-update spans over OTLP/HTTP when enabled.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"` // full URL, e.g. http://collector:4318/v1/traces
}
