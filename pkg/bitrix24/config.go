package bitrix24

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the connection identity and retry policy of a client.
//
// Exactly one of AuthToken/WebhookKey determines the authentication mode
// used for a request; a non-empty WebhookKey takes precedence for URL
// building. AuthToken is still appended to request bodies whenever it is
// non-empty, regardless of mode.
type Config struct {
	Domain       string
	AuthToken    string
	RefreshToken string
	ClientID     string
	ClientSecret string
	WebhookKey   string
	WebhookUser  int

	// Timeout is the read timeout for a single API request.
	// Zero selects the default of 60 seconds.
	Timeout time.Duration
	// MaxRetries is the transport's connection retry budget.
	// Zero selects the default of 10 attempts.
	MaxRetries int
	// RateLimitDelay is how long a call sleeps before retrying after
	// QUERY_LIMIT_EXCEEDED. Zero selects the default of 2 seconds.
	RateLimitDelay time.Duration
	// MaxAuthRetries caps how many token refreshes a single call may
	// trigger. Zero means unlimited, matching the upstream behaviour of
	// retrying for as long as the OAuth server keeps issuing tokens.
	MaxAuthRetries int
	// MaxRateLimitRetries caps rate-limit retries per call. Zero means
	// unlimited.
	MaxRateLimitRetries int
}

// Load reads the client configuration from the environment. A .env file is
// honored when present.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	webhookUser := 0
	if raw := os.Getenv("B24_WEBHOOK_USER"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("B24_WEBHOOK_USER must be an integer: %w", err)
		}
		webhookUser = parsed
	}

	cfg := &Config{
		Domain:       os.Getenv("B24_DOMAIN"),
		AuthToken:    os.Getenv("B24_AUTH_TOKEN"),
		RefreshToken: os.Getenv("B24_REFRESH_TOKEN"),
		ClientID:     os.Getenv("B24_CLIENT_ID"),
		ClientSecret: os.Getenv("B24_CLIENT_SECRET"),
		WebhookKey:   os.Getenv("B24_WEBHOOK_KEY"),
		WebhookUser:  webhookUser,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("B24_DOMAIN is required")
	}
	// All other fields are optional; which ones matter depends on the
	// authentication mode.
	return nil
}

func (c *Config) applyDefaults() {
	if c.WebhookUser == 0 {
		c.WebhookUser = 1
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 10
	}
	if c.RateLimitDelay == 0 {
		c.RateLimitDelay = 2 * time.Second
	}
}
