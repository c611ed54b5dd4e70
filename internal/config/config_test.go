package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// setRequiredEnv sets the minimum environment for Load to succeed and
// registers cleanup to restore the previous values.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("GEMINI_API_KEY", "test-api-key")
	t.Setenv("LADLE_IMAGE_SERVER_URL", "http://localhost:8000")
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.ModelName != DefaultModelName {
		t.Errorf("expected default ModelName %q, got %q", DefaultModelName, cfg.ModelName)
	}
	if cfg.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default MaxTokens %d, got %d", DefaultMaxTokens, cfg.MaxTokens)
	}
	if cfg.RecentMessageLimit != DefaultRecentMessageLimit {
		t.Errorf("expected default RecentMessageLimit %d, got %d",
			DefaultRecentMessageLimit, cfg.RecentMessageLimit)
	}
	if cfg.MaxInteractionsPerMinute != DefaultMaxInteractionsPerMinute {
		t.Errorf("expected default MaxInteractionsPerMinute %d, got %d",
			DefaultMaxInteractionsPerMinute, cfg.MaxInteractionsPerMinute)
	}
	if cfg.MaxURLsPerMessage != 3 {
		t.Errorf("expected default MaxURLsPerMessage 3, got %d", cfg.MaxURLsPerMessage)
	}
	if cfg.CacheTTLSeconds != 3600 {
		t.Errorf("expected default CacheTTLSeconds 3600, got %d", cfg.CacheTTLSeconds)
	}
	if cfg.Tracing.Enabled {
		t.Error("expected tracing disabled by default")
	}
}

func TestLoadMissingToken(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)
	if err := os.Unsetenv("DISCORD_TOKEN"); err != nil {
		t.Fatalf("unsetting DISCORD_TOKEN: %v", err)
	}

	_, err := Load()
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestLoadMissingAPIKey(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)
	if err := os.Unsetenv("GEMINI_API_KEY"); err != nil {
		t.Fatalf("unsetting GEMINI_API_KEY: %v", err)
	}

	_, err := Load()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLoadMissingImageServer(t *testing.T) {
	viper.Reset()
	setRequiredEnv(t)
	if err := os.Unsetenv("LADLE_IMAGE_SERVER_URL"); err != nil {
		t.Fatalf("unsetting LADLE_IMAGE_SERVER_URL: %v", err)
	}

	_, err := Load()
	if !errors.Is(err, ErrMissingImageServer) {
		t.Errorf("expected ErrMissingImageServer, got %v", err)
	}
}

func TestValidateRanges(t *testing.T) {
	setRequiredEnv(t)

	base := func() *Config {
		return &Config{
			BotToken:                 "tok",
			ImageServerURL:           "http://localhost:8000",
			ModelName:                DefaultModelName,
			Temperature:              0.8,
			MaxTokens:                DefaultMaxTokens,
			MaxInteractionsPerMinute: 4,
			RecentMessageLimit:       25,
			InterjectProbability:     0.015,
			MaxURLsPerMessage:        3,
			URLFetchTimeoutMS:        10000,
			ImageTimeoutMS:           120000,
			LLMTimeoutMS:             60000,
			CacheTTLSeconds:          3600,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"temperature too high", func(c *Config) { c.Temperature = 2.5 }, ErrInvalidTemperature},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, ErrInvalidMaxTokens},
		{"zero rate limit", func(c *Config) { c.MaxInteractionsPerMinute = 0 }, ErrInvalidRateLimit},
		{"huge message limit", func(c *Config) { c.RecentMessageLimit = 1000 }, ErrInvalidMessageLimit},
		{"negative probability", func(c *Config) { c.InterjectProbability = -0.1 }, ErrInvalidProbability},
		{"tiny url timeout", func(c *Config) { c.URLFetchTimeoutMS = 10 }, ErrInvalidTimeout},
		{"zero cache ttl", func(c *Config) { c.CacheTTLSeconds = 0 }, ErrInvalidTimeout},
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	if !errors.Is(cfg.Validate(), ErrConfigNil) {
		t.Error("expected ErrConfigNil for nil config")
	}
}

func TestBehaviourFor(t *testing.T) {
	cfg := &Config{
		Behaviour:          "default persona",
		BehaviourOverrides: map[string]string{"guild-1": "alt persona"},
	}

	if got := cfg.BehaviourFor("guild-1"); got != "alt persona" {
		t.Errorf("BehaviourFor(guild-1) = %q", got)
	}
	if got := cfg.BehaviourFor("guild-2"); got != "default persona" {
		t.Errorf("BehaviourFor(guild-2) = %q", got)
	}
	if got := cfg.BehaviourFor(""); got != "default persona" {
		t.Errorf("BehaviourFor(\"\") = %q", got)
	}
}

func TestMarshalJSONMasksToken(t *testing.T) {
	cfg := Config{BotToken: "super-secret-discord-token"}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret-discord-token") {
		t.Error("bot token leaked into JSON output")
	}
	if !strings.Contains(string(data), maskedValue) {
		t.Error("expected masked token in JSON output")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := maskSecret(""); got != "" {
		t.Errorf("maskSecret(\"\") = %q", got)
	}
	if got := maskSecret("short"); got != maskedValue {
		t.Errorf("maskSecret(short) = %q", got)
	}
	long := maskSecret("abcdefghijklmnop")
	if !strings.HasPrefix(long, "ab") || !strings.HasSuffix(long, "op") {
		t.Errorf("maskSecret long = %q", long)
	}
	if strings.Contains(long, "cdefghijklmn") {
		t.Errorf("maskSecret failed to hide middle: %q", long)
	}
}
