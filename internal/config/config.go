// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ladle/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive data (platform token, API keys) is never logged; MarshalJSON
// masks it explicitly. Validation uses sentinel errors so callers can
// check with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingToken indicates the chat-platform bot token is missing.
	ErrMissingToken = errors.New("missing bot token")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrMissingImageServer indicates the image server URL is not set.
	ErrMissingImageServer = errors.New("missing image server URL")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidRateLimit indicates the per-minute interaction limit is out
	// of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidMessageLimit indicates the recent-message limit is out of
	// range.
	ErrInvalidMessageLimit = errors.New("invalid message limit")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidProbability indicates a probability is outside [0, 1].
	ErrInvalidProbability = errors.New("invalid probability")
)

const (
	// DefaultModelName is the default completion model.
	DefaultModelName = "gemini-2.5-flash"

	// DefaultMaxTokens caps chat completions.
	DefaultMaxTokens = 800

	// DefaultRecentMessageLimit is the number of channel messages pulled
	// into the conversation context.
	DefaultRecentMessageLimit = 25

	// DefaultMaxInteractionsPerMinute is the sliding-window admission
	// limit for interactive commands.
	DefaultMaxInteractionsPerMinute = 4
)

// TracingConfig configures the OTLP trace exporter. Disabled by default.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (tokens, API keys), update MarshalJSON.
type Config struct {
	// Chat platform
	BotToken        string   `mapstructure:"bot_token" json:"bot_token"` // SENSITIVE: masked in MarshalJSON
	OwnerIDs        []string `mapstructure:"owner_ids" json:"owner_ids"`
	AllowedChannels []string `mapstructure:"allowed_channels" json:"allowed_channels"`
	TriggerWord     string   `mapstructure:"trigger_word" json:"trigger_word"`

	// Language model
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	LLMPerSecond  float64 `mapstructure:"llm_per_second" json:"llm_per_second"` // outbound LLM pacing (requests/s)
	LLMBurst      int     `mapstructure:"llm_burst" json:"llm_burst"`
	LLMTimeoutMS  int     `mapstructure:"llm_timeout_ms" json:"llm_timeout_ms"`
	Behaviour     string  `mapstructure:"behaviour" json:"behaviour"`
	NineBallStyle string  `mapstructure:"nineball_style" json:"nineball_style"`

	// Per-guild behaviour overrides, keyed by guild ID.
	BehaviourOverrides map[string]string `mapstructure:"behaviour_overrides" json:"behaviour_overrides"`

	// Conversation context
	RecentMessageLimit   int     `mapstructure:"recent_message_limit" json:"recent_message_limit"`
	InterjectProbability float64 `mapstructure:"interject_probability" json:"interject_probability"`

	// URL summarisation
	MaxURLsPerMessage int `mapstructure:"max_urls_per_message" json:"max_urls_per_message"`
	URLFetchTimeoutMS int `mapstructure:"url_fetch_timeout_ms" json:"url_fetch_timeout_ms"`
	CacheTTLSeconds   int `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// Image generation
	ImageServerURL   string `mapstructure:"image_server_url" json:"image_server_url"`
	ImageTimeoutMS   int    `mapstructure:"image_timeout_ms" json:"image_timeout_ms"`
	AnalyzeImageURL  string `mapstructure:"analyze_image_url" json:"analyze_image_url"`
	RandomPrompt     string `mapstructure:"random_prompt" json:"random_prompt"`
	FancyInstruction string `mapstructure:"fancy_instruction" json:"fancy_instruction"`
	ThemesFile       string `mapstructure:"themes_file" json:"themes_file"`
	CharactersFile   string `mapstructure:"characters_file" json:"characters_file"`
	StylesFile       string `mapstructure:"styles_file" json:"styles_file"`

	// Rate limiting
	MaxInteractionsPerMinute int      `mapstructure:"max_interactions_per_minute" json:"max_interactions_per_minute"`
	ExemptRoles              []string `mapstructure:"exempt_roles" json:"exempt_roles"`

	// Statistics
	StatsFile string `mapstructure:"stats_file" json:"stats_file"`

	// Observability
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ladle")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults + env carry the day.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("trigger_word", "ladle")

	// LLM defaults
	viper.SetDefault("model_name", DefaultModelName)
	viper.SetDefault("temperature", 0.8)
	viper.SetDefault("max_tokens", DefaultMaxTokens)
	viper.SetDefault("llm_per_second", 1.0)
	viper.SetDefault("llm_burst", 2)
	viper.SetDefault("llm_timeout_ms", 60000)
	viper.SetDefault("behaviour", "You are a helpful, slightly sarcastic assistant.")
	viper.SetDefault("nineball_style",
		"You are a mystical 9-ball that provides enigmatic answers.")

	// Context defaults
	viper.SetDefault("recent_message_limit", DefaultRecentMessageLimit)
	viper.SetDefault("interject_probability", 0.015)

	// URL summarisation defaults
	viper.SetDefault("max_urls_per_message", 3)
	viper.SetDefault("url_fetch_timeout_ms", 10000)
	viper.SetDefault("cache_ttl_seconds", 3600)

	// Image generation defaults
	viper.SetDefault("image_timeout_ms", 120000)

	// Rate limiting defaults
	viper.SetDefault("max_interactions_per_minute", DefaultMaxInteractionsPerMinute)

	// Statistics defaults
	viper.SetDefault("stats_file", "user_stats.json")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "ladle")
	viper.SetDefault("tracing.environment", "dev")

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables explicitly.
// GEMINI_API_KEY is read directly by the genai client, not via viper;
// its presence is checked in Validate().
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("bot_token", "DISCORD_TOKEN")
	mustBind("image_server_url", "LADLE_IMAGE_SERVER_URL")
	mustBind("analyze_image_url", "LADLE_ANALYZE_IMAGE_URL")
	mustBind("model_name", "LADLE_MODEL_NAME")
	mustBind("stats_file", "LADLE_STATS_FILE")
	mustBind("log_level", "LADLE_LOG_LEVEL")
}

// Duration accessors: the file format keeps integers, callers want
// time.Duration.

// URLFetchTimeout returns the per-URL fetch timeout.
func (c *Config) URLFetchTimeout() time.Duration {
	return time.Duration(c.URLFetchTimeoutMS) * time.Millisecond
}

// ImageTimeout returns the image-generation request timeout.
func (c *Config) ImageTimeout() time.Duration {
	return time.Duration(c.ImageTimeoutMS) * time.Millisecond
}

// LLMTimeout returns the completion request timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutMS) * time.Millisecond
}

// CacheTTL returns the lifetime of URL summaries and image descriptions.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// BehaviourFor returns the system behaviour prompt for a guild, falling
// back to the default behaviour when no override exists.
func (c *Config) BehaviourFor(guildID string) string {
	if b, ok := c.BehaviourOverrides[guildID]; ok && b != "" {
		return b
	}
	return c.Behaviour
}

// APIKey returns the Gemini API key from the environment. The genai
// client takes it directly; it never passes through the config file.
func (c *Config) APIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// SlogLevel maps the configured log level string to a slog.Level,
// defaulting to info for anything unrecognized.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep two characters on each end for debuggability.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(c)
	masked.BotToken = maskSecret(c.BotToken)
	return json.Marshal(masked)
}
