// Package config provides file and environment based configuration for
// wikihop and its fixture server.
//
// Search settings are read from an optional TOML file and then overridden by
// WIKIHOP_* environment variables. Command-line flags override both and are
// applied by the commands themselves.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultOrigin     = "https://ru.wikipedia.org"
	DefaultPathPrefix = "/wiki/"
	DefaultSource     = DefaultOrigin + "/wiki/%D0%92%D0%BE%D1%80%D0%BE%D0%BD"
	DefaultGoal       = DefaultOrigin + "/wiki/%D0%9F%D0%B8%D1%81%D1%8C%D0%BC%D0%B5%D0%BD%D0%BD%D1%8B%D0%B9_%D1%81%D1%82%D0%BE%D0%BB"
	DefaultWidth      = 32
	DefaultServePort  = 8080

	// A search fans out Width requests at once, so the fixture server's
	// default bucket lets a full round through.
	DefaultServeRateLimit = 0
	DefaultServeRateBurst = 64
)

// DefaultExclude lists the boundary pages of the default wiki: its main page
// under both of its URLs.
var DefaultExclude = []string{
	DefaultOrigin + "/wiki/%D0%97%D0%B0%D0%B3%D0%BB%D0%B0%D0%B2%D0%BD%D0%B0%D1%8F_%D1%81%D1%82%D1%80%D0%B0%D0%BD%D0%B8%D1%86%D0%B0",
	DefaultOrigin + "/wiki/",
}

// Duration is a time.Duration that decodes from TOML strings such as "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds the search configuration.
type Config struct {
	Source       string   `toml:"source"`
	Goal         string   `toml:"goal"`
	Width        int      `toml:"width"`
	MaxRounds    int      `toml:"max_rounds"`
	FetchTimeout Duration `toml:"fetch_timeout"`
	Retries      int      `toml:"retries"`
	UserAgent    string   `toml:"user_agent"`

	Origin     string   `toml:"origin"` // empty: the origin of each linking page
	PathPrefix string   `toml:"path_prefix"`
	Exclude    []string `toml:"exclude"`
	Format     string   `toml:"format"`

	CacheDir   string `toml:"cache_dir"`
	NoCache    bool   `toml:"no_cache"`
	TokensFile string `toml:"tokens_file"`
	HTTP3      bool   `toml:"http3"`
	Insecure   bool   `toml:"insecure"`

	LogFormat    string `toml:"log_format"`
	LogLevel     string `toml:"log_level"`
	ProgressFile string `toml:"progress_file"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Source:       DefaultSource,
		Goal:         DefaultGoal,
		Width:        DefaultWidth,
		FetchTimeout: Duration{30 * time.Second},
		Retries:      3,
		PathPrefix:   DefaultPathPrefix,
		Exclude:      append([]string(nil), DefaultExclude...),
		Format:       "html",
		LogFormat:    "text",
		LogLevel:     "info",
		ProgressFile: "output.txt",
	}
}

// Load reads configuration from path, if non-empty, on top of the defaults
// and then applies environment overrides. A missing file is an error only
// when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Source = getEnv("WIKIHOP_SOURCE", c.Source)
	c.Goal = getEnv("WIKIHOP_GOAL", c.Goal)
	c.Width = getEnvAsInt("WIKIHOP_WIDTH", c.Width)
	c.MaxRounds = getEnvAsInt("WIKIHOP_MAX_ROUNDS", c.MaxRounds)
	c.FetchTimeout.Duration = getEnvAsDuration("WIKIHOP_FETCH_TIMEOUT", c.FetchTimeout.Duration)
	c.Retries = getEnvAsInt("WIKIHOP_RETRIES", c.Retries)
	c.UserAgent = getEnv("WIKIHOP_USER_AGENT", c.UserAgent)
	c.Origin = getEnv("WIKIHOP_ORIGIN", c.Origin)
	c.PathPrefix = getEnv("WIKIHOP_PATH_PREFIX", c.PathPrefix)
	c.Exclude = getEnvAsList("WIKIHOP_EXCLUDE", c.Exclude)
	c.Format = getEnv("WIKIHOP_FORMAT", c.Format)
	c.CacheDir = getEnv("WIKIHOP_CACHE_DIR", c.CacheDir)
	c.NoCache = getEnvAsBool("WIKIHOP_NO_CACHE", c.NoCache)
	c.TokensFile = getEnv("WIKIHOP_TOKENS_FILE", c.TokensFile)
	c.HTTP3 = getEnvAsBool("WIKIHOP_HTTP3", c.HTTP3)
	c.Insecure = getEnvAsBool("WIKIHOP_INSECURE", c.Insecure)
	c.LogFormat = getEnv("WIKIHOP_LOG_FORMAT", c.LogFormat)
	c.LogLevel = getEnv("WIKIHOP_LOG_LEVEL", c.LogLevel)
	c.ProgressFile = getEnv("WIKIHOP_PROGRESS_FILE", c.ProgressFile)
}

// SiteOrigin returns the configured origin, or the scheme and host of the
// source page when none is set.
func (c *Config) SiteOrigin() string {
	if c.Origin != "" {
		return strings.TrimSuffix(c.Origin, "/")
	}
	u, err := url.Parse(c.Source)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Validate reports settings no search can run with.
func (c *Config) Validate() error {
	if c.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", c.Width)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must not be negative, got %d", c.MaxRounds)
	}
	if c.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	switch strings.ToLower(c.Format) {
	case "", "html", "markdown", "md":
	default:
		return fmt.Errorf("unknown format %q (want html or markdown)", c.Format)
	}
	return nil
}

// ServeConfig holds the fixture server configuration.
type ServeConfig struct {
	Port       int
	ContentDir string
	HTTP3      bool
	TLSCert    string
	TLSKey     string
	RateLimit  float64 // requests per second per client IP; 0 disables limiting
	RateBurst  int
}

// NewServeConfig loads the fixture server configuration from environment
// variables prefixed with WIKIHOP_SERVE_.
func NewServeConfig() (*ServeConfig, error) {
	config := &ServeConfig{}

	config.Port = getEnvAsInt("WIKIHOP_SERVE_PORT", DefaultServePort)
	config.ContentDir = getEnv("WIKIHOP_SERVE_ROOT", "")
	config.HTTP3 = getEnvAsBool("WIKIHOP_SERVE_HTTP3", false)
	config.TLSCert = getEnv("WIKIHOP_SERVE_TLS_CERT", "")
	config.TLSKey = getEnv("WIKIHOP_SERVE_TLS_KEY", "")
	config.RateLimit = getEnvAsFloat("WIKIHOP_SERVE_RATE_LIMIT", DefaultServeRateLimit)
	config.RateBurst = getEnvAsInt("WIKIHOP_SERVE_RATE_BURST", DefaultServeRateBurst)

	if config.ContentDir == "" {
		return config, errors.New("WIKIHOP_SERVE_ROOT environment variable is required")
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated variable. An empty but set variable
// clears the list.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
