// Package config loads biliurl settings from the process environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ytget/biliurl/bilibili/api"
	"github.com/ytget/biliurl/bilibili/quality"
	"github.com/ytget/biliurl/bilibili/wbi"
)

// Environment keys.
const (
	KeySession     = "SESSION"
	KeyAddr        = "BILIURL_ADDR"
	KeyQuality     = "BILIURL_QN"
	KeyHTTPTimeout = "BILIURL_HTTP_TIMEOUT"
	KeyProxy       = "BILIURL_PROXY"
	KeyUserAgent   = "BILIURL_USER_AGENT"
	KeyRateLimit   = "BILIURL_RATE_LIMIT"
	KeyMixinScript = "BILIURL_MIXIN_SCRIPT"
	KeyMixinEngine = "BILIURL_MIXIN_ENGINE"
	KeyAPIBase     = "BILIURL_API_BASE"
)

// Defaults.
const (
	DefaultAddr        = ":8000"
	DefaultHTTPTimeout = 15 * time.Second
)

// DefaultEnvFiles are tried in order by Load; the first one present wins.
var DefaultEnvFiles = []string{".env", "../.env"}

// Config is the resolved runtime configuration.
type Config struct {
	Session     string
	Addr        string
	Quality     string
	HTTPTimeout time.Duration
	Proxy       string
	UserAgent   string
	RateLimit   float64
	MixinScript string
	MixinEngine string
	APIBase     string

	// EnvFile is the .env file that was read, if any.
	EnvFile string
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:        DefaultAddr,
		Quality:     quality.Default,
		HTTPTimeout: DefaultHTTPTimeout,
		APIBase:     api.DefaultBaseURL,
	}
}

// Load reads the first existing file among files (DefaultEnvFiles when none
// are given) and overlays the process environment on it. Process variables
// win over file entries, matching godotenv.Load.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	var (
		fromFile map[string]string
		used     string
	)
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		fromFile, used = m, path
		break
	}

	cfg, err := Parse(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFile[key]
		return v, ok
	})
	if err != nil {
		return nil, err
	}
	cfg.EnvFile = used
	return cfg, nil
}

// Parse builds a Config from lookup and validates it.
func Parse(lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(KeySession); ok {
		cfg.Session = v
	}
	if v, ok := get(KeyAddr); ok {
		cfg.Addr = v
	}
	if v, ok := get(KeyQuality); ok {
		cfg.Quality = v
	}
	if v, ok := get(KeyHTTPTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyHTTPTimeout, err)
		}
		cfg.HTTPTimeout = d
	}
	if v, ok := get(KeyProxy); ok {
		cfg.Proxy = v
	}
	if v, ok := get(KeyUserAgent); ok {
		cfg.UserAgent = v
	}
	if v, ok := get(KeyRateLimit); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KeyRateLimit, err)
		}
		cfg.RateLimit = f
	}
	if v, ok := get(KeyMixinScript); ok {
		cfg.MixinScript = v
	}
	if v, ok := get(KeyMixinEngine); ok {
		cfg.MixinEngine = strings.ToLower(v)
	}
	if v, ok := get(KeyAPIBase); ok {
		cfg.APIBase = v
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting. An unknown quality is not an
// error; it is normalized to the default when used.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("listen address is empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative, got %v", c.RateLimit)
	}
	if c.Proxy != "" {
		if u, err := url.Parse(c.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("proxy %q must include scheme and host", c.Proxy)
		}
	}
	if c.APIBase != "" {
		if u, err := url.Parse(c.APIBase); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("api base %q must include scheme and host", c.APIBase)
		}
	}
	if c.MixinScript != "" {
		if _, err := os.Stat(c.MixinScript); err != nil {
			return fmt.Errorf("mixin script: %w", err)
		}
	}
	switch c.MixinEngine {
	case "", wbi.EngineOtto, wbi.EngineGoja:
	default:
		return fmt.Errorf("unknown mixin engine %q", c.MixinEngine)
	}
	return nil
}

// HasSession reports whether a session cookie is configured.
func (c *Config) HasSession() bool { return c.Session != "" }
