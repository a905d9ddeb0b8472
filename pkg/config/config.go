package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Provider identifiers accepted in ProviderConfig.Name.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
)

type Config struct {
	Channels   ChannelsConfig   `json:"channels"`
	Provider   ProviderConfig   `json:"provider"`
	Moderation ModerationConfig `json:"moderation"`
	Archive    ArchiveConfig    `json:"archive"`
	Gateway    GatewayConfig    `json:"gateway"`
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
}

type DiscordConfig struct {
	Enabled bool   `env:"MODGATE_CHANNELS_DISCORD_ENABLED" json:"enabled"`
	Token   string `env:"MODGATE_CHANNELS_DISCORD_TOKEN"   json:"token"`

	// TargetConversation restricts the bot to a single channel/thread id.
	// Required at startup; the gateway refuses to run without it.
	TargetConversation string `env:"MODGATE_CHANNELS_DISCORD_TARGET_CONVERSATION" json:"target_conversation"`
}

type TelegramConfig struct {
	Enabled bool   `env:"MODGATE_CHANNELS_TELEGRAM_ENABLED" json:"enabled"`
	Token   string `env:"MODGATE_CHANNELS_TELEGRAM_TOKEN"   json:"token"`
}

type ProviderConfig struct {
	Name    string `env:"MODGATE_PROVIDER_NAME"     json:"name"`
	APIKey  string `env:"MODGATE_PROVIDER_API_KEY"  json:"api_key"`
	APIBase string `env:"MODGATE_PROVIDER_API_BASE" json:"api_base,omitempty"`
	Model   string `env:"MODGATE_PROVIDER_MODEL"    json:"model"`

	// OpenRouter attribution headers (optional).
	Referrer string `env:"MODGATE_PROVIDER_REFERRER" json:"referrer,omitempty"`
	Title    string `env:"MODGATE_PROVIDER_TITLE"    json:"title,omitempty"`

	Temperature      float64 `env:"MODGATE_PROVIDER_TEMPERATURE"       json:"temperature"`
	MaxTokens        int     `env:"MODGATE_PROVIDER_MAX_TOKENS"        json:"max_tokens"`
	FrequencyPenalty float64 `env:"MODGATE_PROVIDER_FREQUENCY_PENALTY" json:"frequency_penalty"`
	PresencePenalty  float64 `env:"MODGATE_PROVIDER_PRESENCE_PENALTY"  json:"presence_penalty"`
}

type ModerationConfig struct {
	MaxTurns          int      `env:"MODGATE_MODERATION_MAX_TURNS"           json:"max_turns"`
	MaxResponseLength int      `env:"MODGATE_MODERATION_MAX_RESPONSE_LENGTH" json:"max_response_length"`
	PoolSize          int      `env:"MODGATE_MODERATION_POOL_SIZE"           json:"pool_size"`
	RequestTimeoutSec int      `env:"MODGATE_MODERATION_REQUEST_TIMEOUT_SEC" json:"request_timeout_sec"`
	MaxRetries        int      `env:"MODGATE_MODERATION_MAX_RETRIES"         json:"max_retries"`
	ExtraKeywords     []string `env:"MODGATE_MODERATION_EXTRA_KEYWORDS"      json:"extra_keywords,omitempty"`
}

type ArchiveConfig struct {
	URL    string `env:"MODGATE_ARCHIVE_URL"    json:"url,omitempty"`
	APIKey string `env:"MODGATE_ARCHIVE_API_KEY" json:"api_key,omitempty"`
	Table  string `env:"MODGATE_ARCHIVE_TABLE"  json:"table,omitempty"`
}

// Enabled reports whether archive writes are configured. An absent archive
// silently disables persistence, it is not an error.
func (a ArchiveConfig) Enabled() bool {
	return a.URL != "" && a.APIKey != ""
}

type GatewayConfig struct {
	Host string `env:"MODGATE_GATEWAY_HOST" json:"host"`
	Port int    `env:"MODGATE_GATEWAY_PORT" json:"port"`
}

// DefaultConfig returns the built-in configuration template. Sampling
// defaults match the upstream relay deployment.
func DefaultConfig() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Discord: DiscordConfig{Enabled: true},
		},
		Provider: ProviderConfig{
			Name:             ProviderOpenRouter,
			Model:            "mistralai/mistral-small-3.1-24b-instruct:free",
			Temperature:      0.3,
			MaxTokens:        600,
			FrequencyPenalty: 1.2,
			PresencePenalty:  0.9,
		},
		Moderation: ModerationConfig{
			MaxTurns:          10000,
			MaxResponseLength: 1950,
			PoolSize:          5,
			RequestTimeoutSec: 30,
			MaxRetries:        2,
		},
		Archive: ArchiveConfig{Table: "messages"},
		Gateway: GatewayConfig{Host: "0.0.0.0", Port: 10000},
	}
}

// LoadConfig reads the JSON config at path (missing file falls back to
// defaults) and applies environment overrides on top.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate enforces the required startup surface. Any missing value here is
// fatal: the gateway must not come up partially configured.
func (c *Config) Validate() error {
	var errs []error

	if !c.Channels.Discord.Enabled && !c.Channels.Telegram.Enabled {
		errs = append(errs, errors.New("no channel enabled"))
	}
	if c.Channels.Discord.Enabled {
		if c.Channels.Discord.Token == "" {
			errs = append(errs, errors.New("discord token is required"))
		}
		if c.Channels.Discord.TargetConversation == "" {
			errs = append(errs, errors.New("discord target conversation id is required"))
		}
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram token is required"))
	}

	switch c.Provider.Name {
	case ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider.Name))
	}
	if c.Provider.APIKey == "" {
		errs = append(errs, errors.New("provider api key is required"))
	}
	if c.Provider.Model == "" {
		errs = append(errs, errors.New("provider model is required"))
	}

	if c.Moderation.MaxTurns <= 0 {
		errs = append(errs, errors.New("max_turns must be positive"))
	}
	if c.Moderation.MaxResponseLength <= 0 {
		errs = append(errs, errors.New("max_response_length must be positive"))
	}
	if c.Moderation.PoolSize <= 0 {
		errs = append(errs, errors.New("pool_size must be positive"))
	}

	return errors.Join(errs...)
}

// RequestTimeout returns the per-attempt backend call ceiling.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Moderation.RequestTimeoutSec) * time.Second
}
