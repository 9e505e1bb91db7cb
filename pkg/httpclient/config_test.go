package httpclient

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", cfg.Timeout)
	}

	if cfg.RetryAttempts != 3 {
		t.Errorf("expected retry attempts 3, got %d", cfg.RetryAttempts)
	}

	if cfg.RateLimit != 0 {
		t.Errorf("expected no rate limit by default, got %v", cfg.RateLimit)
	}

	if cfg.AllowNonIdempotentRetry {
		t.Error("expected AllowNonIdempotentRetry to be false by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  100 * time.Millisecond,
			MaxBackoff:    5 * time.Second,
			UserAgent:     "test-agent/1.0",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		errText string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, errText: "timeout must be > 0"},
		{name: "negative retries", mutate: func(c *Config) { c.RetryAttempts = -1 }, errText: "retry_attempts must be >= 0"},
		{name: "zero backoff with retries", mutate: func(c *Config) { c.RetryBackoff = 0 }, errText: "retry_backoff must be > 0"},
		{name: "zero backoff without retries", mutate: func(c *Config) { c.RetryAttempts = 0; c.RetryBackoff = 0 }},
		{name: "max below base", mutate: func(c *Config) { c.MaxBackoff = time.Millisecond }, errText: "max_backoff"},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit = -1 }, errText: "rate_limit must be >= 0"},
		{name: "negative burst", mutate: func(c *Config) { c.RateBurst = -1 }, errText: "rate_burst must be >= 0"},
		{name: "empty user agent", mutate: func(c *Config) { c.UserAgent = "" }, errText: "user_agent is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.errText == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errText)
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("expected error containing %q, got %q", tt.errText, err.Error())
			}
		})
	}
}
