package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL      = "http://localhost:8000"
	DefaultCheckDelayMs = 200
	DefaultCheckModel   = "gemini-2.0-flash"
	DefaultStorageType  = "local"
	DefaultPageSize     = 10
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Checks   ChecksConfig   `yaml:"checks"`
	Media    MediaConfig    `yaml:"media"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig points at the proxy whose /admin API is being managed.
type ServerConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	HTTP2          bool   `yaml:"http2"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ChecksConfig struct {
	DelayMs      int    `yaml:"delay_ms"`
	Concurrency  int    `yaml:"concurrency"`
	DefaultModel string `yaml:"default_model"`
}

type MediaConfig struct {
	StorageType string `yaml:"storage_type"`
	PageSize    int    `yaml:"page_size"`
}

type WatchConfig struct {
	Listen             string        `yaml:"listen"`
	IntervalSeconds    int           `yaml:"interval_seconds"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	Metrics            MetricsConfig `yaml:"metrics"`
}

type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func (c *LoggingConfig) IsDebug() bool {
	return c.Level == "debug"
}

func (c *ChecksConfig) Delay() time.Duration {
	return time.Duration(c.DelayMs) * time.Millisecond
}

func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *WatchConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// DefaultPath returns the per-user config location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "geminictl", "config.yaml")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return createDefaultConfig(path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg, filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config, dir string) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = DefaultBaseURL
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Server.TimeoutSeconds == 0 {
		cfg.Server.TimeoutSeconds = 60
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(dir, "console.db")
	}
	if cfg.Checks.DelayMs == 0 {
		cfg.Checks.DelayMs = DefaultCheckDelayMs
	}
	if cfg.Checks.Concurrency == 0 {
		cfg.Checks.Concurrency = 1
	}
	if cfg.Checks.DefaultModel == "" {
		cfg.Checks.DefaultModel = DefaultCheckModel
	}
	if cfg.Media.StorageType == "" {
		cfg.Media.StorageType = DefaultStorageType
	}
	if cfg.Media.PageSize == 0 {
		cfg.Media.PageSize = DefaultPageSize
	}
	if cfg.Watch.Listen == "" {
		cfg.Watch.Listen = "127.0.0.1:9464"
	}
	if cfg.Watch.IntervalSeconds == 0 {
		cfg.Watch.IntervalSeconds = 600
	}
	if cfg.Watch.RateLimitPerMinute == 0 {
		cfg.Watch.RateLimitPerMinute = 120
	}
	if cfg.Watch.Metrics.Enabled && cfg.Watch.Metrics.Username == "" {
		cfg.Watch.Metrics.Username = "prometheus"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("server.base_url must be an http(s) URL, got %q", c.Server.BaseURL)
	}
	if c.Checks.DelayMs < 0 {
		return fmt.Errorf("checks.delay_ms must not be negative")
	}
	if c.Checks.Concurrency < 0 {
		return fmt.Errorf("checks.concurrency must not be negative")
	}
	switch c.Media.PageSize {
	case 10, 20, 50, 100:
	default:
		return fmt.Errorf("media.page_size must be one of 10, 20, 50, 100")
	}
	return nil
}

func createDefaultConfig(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			BaseURL:        DefaultBaseURL,
			TimeoutSeconds: 60,
		},
		Checks: ChecksConfig{
			DelayMs:      DefaultCheckDelayMs,
			Concurrency:  1,
			DefaultModel: DefaultCheckModel,
		},
		Media: MediaConfig{
			StorageType: DefaultStorageType,
			PageSize:    DefaultPageSize,
		},
		Watch: WatchConfig{
			Listen:          "127.0.0.1:9464",
			IntervalSeconds: 600,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
	applyDefaults(cfg, filepath.Dir(path))

	if err := saveConfig(cfg, path); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnableMetrics turns on authenticated /metrics in watch mode and returns the
// generated plaintext password; only the bcrypt hash is written to disk.
func EnableMetrics(cfg *Config, username string) (string, error) {
	password := generateRandomString(20)
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	if username == "" {
		username = "prometheus"
	}
	cfg.Watch.Metrics = MetricsConfig{
		Enabled:      true,
		Username:     username,
		PasswordHash: hash,
	}
	return password, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func saveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// SaveConfig exports saveConfig for external use
func SaveConfig(cfg *Config, path string) error {
	return saveConfig(cfg, path)
}

func generateRandomString(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return hex.EncodeToString(b)[:length]
}
