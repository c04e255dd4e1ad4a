package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/relsync/internal/engine"
	"github.com/mcoot/relsync/internal/factory"
	"github.com/mcoot/relsync/internal/services/auth"
	redisstorage "github.com/mcoot/relsync/internal/storage/redis"
)

// Config holds CLI configuration
type Config struct {
	// RemoteURL is the base URL of the remote service
	RemoteURL      string        `yaml:"remote_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	TokenFile      string        `yaml:"token_file"`

	Storage StorageConfig `yaml:"storage"`
	Listen  ListenConfig  `yaml:"listen"`

	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	FetchConcurrency  int           `yaml:"fetch_concurrency"`

	// ServerURL is the address of a running daemon, used by the client
	// commands
	ServerURL string `yaml:"server_url"`
	APIKey    string `yaml:"api_key"`

	Output  string `yaml:"output"`
	Verbose bool   `yaml:"verbose"`
}

// StorageConfig selects the profile cache backend
type StorageConfig struct {
	Type       string `yaml:"type"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
}

// ListenConfig is the observer API listen address of the daemon
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		RemoteURL:      "http://localhost:8200",
		RequestTimeout: 10 * time.Second,
		TokenFile:      filepath.Join(stateDir(), "token"),
		Storage: StorageConfig{
			Type:       factory.StorageTypeSQLite,
			SQLitePath: filepath.Join(stateDir(), "cache.db"),
			RedisURL:   redisstorage.DefaultConfig().URL,
		},
		Listen: ListenConfig{
			Host: "127.0.0.1",
			Port: 7070,
		},
		ReconcileInterval: engine.DefaultRunConfig().ReconcileInterval,
		FetchConcurrency:  engine.DefaultConfig().Reconcile.FetchConcurrency,
		ServerURL:         "http://127.0.0.1:7070",
		Output:            "text",
	}
}

// LoadFile merges a YAML config file over c. A missing file is not an
// error unless required is set.
func (c *Config) LoadFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides c with RELSYNC_* environment variables
func (c *Config) ApplyEnv() error {
	c.RemoteURL = getEnvOrDefault("RELSYNC_REMOTE_URL", c.RemoteURL)
	c.TokenFile = getEnvOrDefault("RELSYNC_TOKEN_FILE", c.TokenFile)
	c.Storage.Type = getEnvOrDefault("RELSYNC_STORAGE", c.Storage.Type)
	c.Storage.SQLitePath = getEnvOrDefault("RELSYNC_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.RedisURL = getEnvOrDefault("RELSYNC_REDIS_URL", c.Storage.RedisURL)
	c.Listen.Host = getEnvOrDefault("RELSYNC_HOST", c.Listen.Host)
	c.ServerURL = getEnvOrDefault("RELSYNC_SERVER", c.ServerURL)
	c.APIKey = getEnvOrDefault("RELSYNC_API_KEY", c.APIKey)

	var err error
	if c.Listen.Port, err = getEnvInt("RELSYNC_PORT", c.Listen.Port); err != nil {
		return err
	}
	if c.RequestTimeout, err = getEnvDuration("RELSYNC_REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.ReconcileInterval, err = getEnvDuration("RELSYNC_RECONCILE_INTERVAL", c.ReconcileInterval); err != nil {
		return err
	}
	return nil
}

// Tokens returns the session token store
func (c *Config) Tokens() *auth.FileTokens {
	return &auth.FileTokens{Path: c.TokenFile}
}

// FactoryConfig converts c into the application factory's configuration
func (c *Config) FactoryConfig() factory.Config {
	engineCfg := engine.DefaultConfig()
	if c.FetchConcurrency > 0 {
		engineCfg.Reconcile.FetchConcurrency = c.FetchConcurrency
	}

	fc := factory.Config{
		RemoteURL:      c.RemoteURL,
		RequestTimeout: c.RequestTimeout,
		Tokens:         c.Tokens(),
		StorageType:    c.Storage.Type,
		SQLitePath:     c.Storage.SQLitePath,
		Engine:         engineCfg,
	}
	if c.Storage.Type == factory.StorageTypeRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.Storage.RedisURL
		fc.RedisConfig = &redisCfg
	}
	return fc
}

func stateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relsync"
	}
	return filepath.Join(home, ".relsync")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
