package config

import (
	"fmt"
	"os"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.BotToken == "" {
		return fmt.Errorf("%w: set DISCORD_TOKEN or bot_token in config.yaml", ErrMissingToken)
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ImageServerURL == "" {
		return fmt.Errorf("%w: set LADLE_IMAGE_SERVER_URL or image_server_url in config.yaml",
			ErrMissingImageServer)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range per the Gemini API: 0.0 to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65,536, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.MaxInteractionsPerMinute < 1 || c.MaxInteractionsPerMinute > 1000 {
		return fmt.Errorf("%w: must be between 1 and 1000, got %d",
			ErrInvalidRateLimit, c.MaxInteractionsPerMinute)
	}

	if c.RecentMessageLimit < 1 || c.RecentMessageLimit > 500 {
		return fmt.Errorf("%w: must be between 1 and 500, got %d",
			ErrInvalidMessageLimit, c.RecentMessageLimit)
	}

	if c.InterjectProbability < 0 || c.InterjectProbability > 1 {
		return fmt.Errorf("%w: interject_probability must be within [0, 1], got %f",
			ErrInvalidProbability, c.InterjectProbability)
	}

	for name, ms := range map[string]int{
		"url_fetch_timeout_ms": c.URLFetchTimeoutMS,
		"image_timeout_ms":     c.ImageTimeoutMS,
		"llm_timeout_ms":       c.LLMTimeoutMS,
	} {
		if ms < 100 || ms > 600000 {
			return fmt.Errorf("%w: %s must be between 100 and 600,000, got %d",
				ErrInvalidTimeout, name, ms)
		}
	}

	if c.CacheTTLSeconds < 1 {
		return fmt.Errorf("%w: cache_ttl_seconds must be positive, got %d",
			ErrInvalidTimeout, c.CacheTTLSeconds)
	}

	if c.MaxURLsPerMessage < 0 || c.MaxURLsPerMessage > 20 {
		return fmt.Errorf("%w: max_urls_per_message must be between 0 and 20, got %d",
			ErrInvalidMessageLimit, c.MaxURLsPerMessage)
	}

	return nil
}
