package httpapi

import (
	"strings"
	"time"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
)

// Config holds the identity service connection settings.
type Config struct {
	// BaseURL is the service root (e.g., "https://id.example.com/api").
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timeout bounds every request when the context has no earlier deadline.
	// Default: 10 seconds.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent" json:"user_agent"`

	// Logger receives request failures (optional).
	Logger lifecycle.Logger `yaml:"-" json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		Timeout:   10 * time.Second,
		UserAgent: "go-auth-lifecycle",
	}
}

func (c Config) url(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}
