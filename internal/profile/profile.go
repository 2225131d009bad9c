package profile

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultAPIURL          = "http://localhost:8090/api"
	defaultTimeout         = 30 * time.Second
	defaultCacheTTL        = 5 * time.Minute
	defaultCacheMaxItems   = 1000
	defaultCleanupInterval = time.Minute
	defaultSearchDebounce  = 300 * time.Millisecond
	defaultMockAddr        = "127.0.0.1"
	defaultMockPort        = 8090
)

// Profile is the configuration shared by the dashboard client and the mock backend.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Version is the current version of the client
	Version string

	// APIURL is the base URL of the back-office REST API, e.g. https://example.org/api
	APIURL string
	// APIToken is the bearer credential attached to every request
	APIToken string
	// Timeout is the HTTP timeout for a single API exchange
	Timeout time.Duration

	// Cache settings
	CacheTTL             time.Duration // BACKOFFICE_CACHE_TTL (default: 5m)
	CacheMaxItems        int           // BACKOFFICE_CACHE_MAX_ITEMS (default: 1000)
	CacheCleanupInterval time.Duration // BACKOFFICE_CACHE_CLEANUP_INTERVAL (default: 1m)

	// SearchDebounce is the quiet period before a typed search becomes a new list query
	SearchDebounce time.Duration

	// Mock backend settings
	MockAddr       string // BACKOFFICE_MOCK_ADDR (default: 127.0.0.1)
	MockPort       int    // BACKOFFICE_MOCK_PORT (default: 8090)
	MockSecret     string // BACKOFFICE_MOCK_SECRET, HS256 key for dev tokens
	MockDeleteCode string // BACKOFFICE_MOCK_DELETE_CODE, required to delete users
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("ignoring malformed duration", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		slog.Warn("ignoring malformed integer", slog.String("key", key), slog.String("value", value))
	}
	return defaultValue
}

// FromEnv loads configuration from BACKOFFICE_* environment variables.
// Fields already set keep their value when the variable is empty.
func (p *Profile) FromEnv() {
	p.Mode = getEnvOrDefault("BACKOFFICE_MODE", orDefault(p.Mode, "dev"))
	p.APIURL = getEnvOrDefault("BACKOFFICE_API_URL", orDefault(p.APIURL, defaultAPIURL))
	p.APIToken = getEnvOrDefault("BACKOFFICE_API_TOKEN", p.APIToken)
	p.Timeout = getDurationEnv("BACKOFFICE_TIMEOUT", durationOrDefault(p.Timeout, defaultTimeout))

	p.CacheTTL = getDurationEnv("BACKOFFICE_CACHE_TTL", durationOrDefault(p.CacheTTL, defaultCacheTTL))
	p.CacheMaxItems = getIntEnv("BACKOFFICE_CACHE_MAX_ITEMS", intOrDefault(p.CacheMaxItems, defaultCacheMaxItems))
	p.CacheCleanupInterval = getDurationEnv("BACKOFFICE_CACHE_CLEANUP_INTERVAL", durationOrDefault(p.CacheCleanupInterval, defaultCleanupInterval))
	p.SearchDebounce = getDurationEnv("BACKOFFICE_SEARCH_DEBOUNCE", durationOrDefault(p.SearchDebounce, defaultSearchDebounce))

	p.MockAddr = getEnvOrDefault("BACKOFFICE_MOCK_ADDR", orDefault(p.MockAddr, defaultMockAddr))
	p.MockPort = getIntEnv("BACKOFFICE_MOCK_PORT", intOrDefault(p.MockPort, defaultMockPort))
	p.MockSecret = getEnvOrDefault("BACKOFFICE_MOCK_SECRET", p.MockSecret)
	p.MockDeleteCode = getEnvOrDefault("BACKOFFICE_MOCK_DELETE_CODE", p.MockDeleteCode)
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.APIURL == "" {
		p.APIURL = defaultAPIURL
	}
	u, err := url.Parse(p.APIURL)
	if err != nil {
		return errors.Wrapf(err, "invalid api url %s", p.APIURL)
	}
	if !u.IsAbs() || u.Host == "" {
		return errors.Errorf("api url must be absolute, got %q", p.APIURL)
	}

	p.Timeout = durationOrDefault(p.Timeout, defaultTimeout)
	p.CacheTTL = durationOrDefault(p.CacheTTL, defaultCacheTTL)
	p.CacheMaxItems = intOrDefault(p.CacheMaxItems, defaultCacheMaxItems)
	p.CacheCleanupInterval = durationOrDefault(p.CacheCleanupInterval, defaultCleanupInterval)
	p.SearchDebounce = durationOrDefault(p.SearchDebounce, defaultSearchDebounce)
	p.MockPort = intOrDefault(p.MockPort, defaultMockPort)

	if p.Mode == "prod" && p.MockSecret == "" && p.APIToken == "" {
		slog.Warn("running in prod mode without an api token")
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func intOrDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
