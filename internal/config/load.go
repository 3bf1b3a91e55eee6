package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type envConfig struct {
	Env                   string        `env:"ENV" envDefault:"production"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
	DiscordToken          string        `env:"DISCORD_TOKEN,required"`
	CommandPrefix         string        `env:"COMMAND_PREFIX" envDefault:"!"`
	DiscordGuildID        string        `env:"DISCORD_GUILD_ID"`
	RegisterSlashCommands bool          `env:"REGISTER_SLASH_COMMANDS" envDefault:"true"`
	Port                  int           `env:"PORT" envDefault:"3000"`
	PlayerIdleTimeout     time.Duration `env:"PLAYER_IDLE_TIMEOUT" envDefault:"5m"`
	EncodeBitrate         int           `env:"ENCODE_BITRATE" envDefault:"96"`
	YouTubeHTTPTimeout    time.Duration `env:"YOUTUBE_HTTP_TIMEOUT" envDefault:"15s"`
	GeminiAPIKey          string        `env:"GEMINI_API_KEY"`
	GeminiModel           string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	ChatOwnerID           string        `env:"CHAT_OWNER_ID"`
	ChatBotName           string        `env:"CHAT_BOT_NAME" envDefault:"Dorte"`
	ChatLanguage          string        `env:"CHAT_LANGUAGE" envDefault:"Traditional Chinese"`
	ChatSessionTTL        time.Duration `env:"CHAT_SESSION_TTL" envDefault:"30m"`
	ChatMaxSessions       int           `env:"CHAT_MAX_SESSIONS" envDefault:"500"`
	ChatRatePerMinute     float64       `env:"CHAT_RATE_PER_MINUTE" envDefault:"6"`
	ChatBurst             int           `env:"CHAT_BURST" envDefault:"3"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, deployments set real variables
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	var raw envConfig
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &Config{
		Env:                   raw.Env,
		LogLevel:              raw.LogLevel,
		DiscordToken:          raw.DiscordToken,
		CommandPrefix:         raw.CommandPrefix,
		DiscordGuildID:        raw.DiscordGuildID,
		RegisterSlashCommands: raw.RegisterSlashCommands,
		Port:                  raw.Port,
		PlayerIdleTimeout:     raw.PlayerIdleTimeout,
		EncodeBitrate:         raw.EncodeBitrate,
		YouTubeHTTPTimeout:    raw.YouTubeHTTPTimeout,
		Chat: ChatConfig{
			APIKey:        raw.GeminiAPIKey,
			Model:         raw.GeminiModel,
			OwnerID:       raw.ChatOwnerID,
			BotName:       raw.ChatBotName,
			Language:      raw.ChatLanguage,
			SessionTTL:    raw.ChatSessionTTL,
			MaxSessions:   raw.ChatMaxSessions,
			RatePerMinute: raw.ChatRatePerMinute,
			Burst:         raw.ChatBurst,
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
