package gotrue

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/eadcore/go-auth"
)

// DefaultTimeout bounds every call to the hosted backend. Transport errors
// past this point surface as connection failures upstream.
const DefaultTimeout = 10 * time.Second

// Config holds the hosted backend connection settings.
type Config struct {
	// BaseURL is the auth service root (e.g. "https://project.example.co/auth/v1").
	BaseURL string

	// APIKey is the public (anon) API key sent with every request.
	APIKey string

	// ServiceRoleKey is the privileged key used by the admin client only.
	ServiceRoleKey string

	// FunctionsURL is the serverless functions root. Defaults to the
	// "/functions/v1" sibling of BaseURL.
	FunctionsURL string

	// HTTPClient overrides the default client (optional).
	HTTPClient *http.Client

	// Timeout applies when HTTPClient is not provided.
	// Default: DefaultTimeout.
	Timeout time.Duration

	// Logger receives request-level diagnostics (optional).
	Logger auth.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: DefaultTimeout,
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("gotrue: base URL is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("gotrue: API key is required")
	}
	return nil
}

func (c Config) authURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
}

func (c Config) functionsURL() string {
	if fn := strings.TrimSpace(c.FunctionsURL); fn != "" {
		return strings.TrimSuffix(fn, "/")
	}

	base := c.authURL()
	if idx := strings.Index(base, "/auth/"); idx > 0 {
		return base[:idx] + "/functions/v1"
	}
	return base + "/functions/v1"
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
