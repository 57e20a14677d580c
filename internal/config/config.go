// Package config loads the SDK configuration file, attentive.json or
// attentive.yaml, and applies environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/dispatch"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/geo"
	"github.com/attentive-mobile/attentive-android-sdk-sub000/internal/storage"
)

// Config file names, in lookup order.
const (
	JSONFile = "attentive.json"
	YAMLFile = "attentive.yaml"
)

// Environment overrides.
const (
	EnvConfig    = "ATTN_CONFIG"
	EnvDomain    = "ATTN_DOMAIN"
	EnvEventsURL = "ATTN_EVENTS_URL"
	EnvCDNURL    = "ATTN_CDN_URL"
)

// Modes.
const (
	ModeProduction = "production"
	ModeDebug      = "debug"
)

// DefaultHTTPTimeout applies when http_timeout is unset.
const DefaultHTTPTimeout = 30 * time.Second

// StorageConfig selects where the visitor id is persisted.
type StorageConfig struct {
	Backend   string `yaml:"backend" json:"backend"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	RedisAddr string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty"`
	RedisDB   int    `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
}

// Config represents the contents of attentive.json / attentive.yaml.
type Config struct {
	Domain        string        `yaml:"domain" json:"domain"`
	Mode          string        `yaml:"mode" json:"mode"`
	LogLevel      string        `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	CDNBaseURL    string        `yaml:"cdn_base_url,omitempty" json:"cdn_base_url,omitempty"`
	EventsBaseURL string        `yaml:"events_base_url,omitempty" json:"events_base_url,omitempty"`
	HTTPTimeout   string        `yaml:"http_timeout,omitempty" json:"http_timeout,omitempty"`
	Storage       StorageConfig `yaml:"storage" json:"storage"`
}

// Default returns a config with every optional field filled in.
func Default() *Config {
	return &Config{
		Mode:          ModeProduction,
		LogLevel:      "info",
		CDNBaseURL:    geo.DefaultCDNBaseURL,
		EventsBaseURL: dispatch.DefaultEventsBaseURL,
		HTTPTimeout:   DefaultHTTPTimeout.String(),
		Storage:       StorageConfig{Backend: storage.BackendMemory},
	}
}

// Load finds the config file and applies environment overrides. The path is
// taken from ATTN_CONFIG, else attentive.json or attentive.yaml in dir (JSON
// wins when both exist). A missing file yields the defaults.
func Load(dir string) (*Config, error) {
	path := os.Getenv(EnvConfig)
	if path == "" {
		path = filepath.Join(dir, YAMLFile)
		if jsonPath := filepath.Join(dir, JSONFile); fileExists(jsonPath) {
			path = jsonPath
		}
	}
	cfg, err := LoadFrom(path, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFrom reads a single file, JSON or YAML, over the defaults.
func LoadFrom(path string, isJSON bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if isJSON {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, as JSON if the extension is .json and YAML otherwise.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDomain); v != "" {
		c.Domain = v
	}
	if v := os.Getenv(EnvEventsURL); v != "" {
		c.EventsBaseURL = v
	}
	if v := os.Getenv(EnvCDNURL); v != "" {
		c.CDNBaseURL = v
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Domain) == "" {
		errs = append(errs, errors.New("domain is required"))
	}
	if c.Mode != ModeProduction && c.Mode != ModeDebug {
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeProduction, ModeDebug, c.Mode))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	for name, raw := range map[string]string{"cdn_base_url": c.CDNBaseURL, "events_base_url": c.EventsBaseURL} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", name, raw))
		}
	}
	if _, err := c.Timeout(); err != nil {
		errs = append(errs, err)
	}
	switch c.Storage.Backend {
	case "", storage.BackendMemory:
	case storage.BackendFile:
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path is required for the file backend"))
		}
	case storage.BackendRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("storage.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// Timeout parses http_timeout. Empty means DefaultHTTPTimeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.HTTPTimeout == "" {
		return DefaultHTTPTimeout, nil
	}
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil {
		return 0, fmt.Errorf("http_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("http_timeout must be positive, got %s", c.HTTPTimeout)
	}
	return d, nil
}

// Level maps log_level to a slog level. Debug mode always logs at debug.
func (c *Config) Level() slog.Level {
	if c.Mode == ModeDebug {
		return slog.LevelDebug
	}
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:   c.Storage.Backend,
		Path:      c.Storage.Path,
		RedisAddr: c.Storage.RedisAddr,
		RedisDB:   c.Storage.RedisDB,
	}
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
