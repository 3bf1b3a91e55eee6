package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Env      string
	LogLevel string

	DiscordToken          string
	CommandPrefix         string
	DiscordGuildID        string
	RegisterSlashCommands bool

	Port int

	PlayerIdleTimeout  time.Duration
	EncodeBitrate      int
	YouTubeHTTPTimeout time.Duration

	Chat ChatConfig
}

// ChatConfig configures the assistant. An empty APIKey disables it.
type ChatConfig struct {
	APIKey        string
	Model         string
	OwnerID       string
	BotName       string
	Language      string
	SessionTTL    time.Duration
	MaxSessions   int
	RatePerMinute float64
	Burst         int
}

func (c ChatConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if strings.TrimSpace(c.CommandPrefix) == "" {
		return fmt.Errorf("COMMAND_PREFIX must not be blank")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.PlayerIdleTimeout < 0 {
		return fmt.Errorf("PLAYER_IDLE_TIMEOUT must not be negative, got %s", c.PlayerIdleTimeout)
	}
	if c.EncodeBitrate < 8 || c.EncodeBitrate > 512 {
		return fmt.Errorf("ENCODE_BITRATE must be between 8 and 512 kbps, got %d", c.EncodeBitrate)
	}
	if c.YouTubeHTTPTimeout <= 0 {
		return fmt.Errorf("YOUTUBE_HTTP_TIMEOUT must be positive, got %s", c.YouTubeHTTPTimeout)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if !c.Chat.Enabled() {
		return nil
	}
	if c.Chat.Model == "" {
		return fmt.Errorf("GEMINI_MODEL is required when GEMINI_API_KEY is set")
	}
	if c.Chat.SessionTTL <= 0 {
		return fmt.Errorf("CHAT_SESSION_TTL must be positive, got %s", c.Chat.SessionTTL)
	}
	if c.Chat.MaxSessions <= 0 {
		return fmt.Errorf("CHAT_MAX_SESSIONS must be positive, got %d", c.Chat.MaxSessions)
	}
	if c.Chat.RatePerMinute <= 0 || c.Chat.Burst <= 0 {
		return fmt.Errorf("CHAT_RATE_PER_MINUTE and CHAT_BURST must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
