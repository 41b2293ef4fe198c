package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	TaskAPI TaskAPIConfig
	Webhook WebhookConfig
	Seed    SeedConfig
	Catalog CatalogConfig
	Auth    AuthConfig
	Admin   AdminConfig
	Feed    FeedConfig
	Worker  WorkerConfig
}

type ServerConfig struct {
	Port      int
	PublicURL string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type TaskAPIConfig struct {
	BaseURL   string
	APIKey    string
	Processor string
	Timeout   string
}

type WebhookConfig struct {
	Secret string
}

type SeedConfig struct {
	Secret      string
	Concurrency int
}

type CatalogConfig struct {
	Path string
}

type AuthConfig struct {
	UserInfoURL string
	LoginURL    string
	CacheTTL    string
}

type AdminConfig struct {
	Token string
}

type FeedConfig struct {
	Limit int
}

type WorkerConfig struct {
	PollInterval string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:      8080,
			PublicURL: "https://basedpeople.com",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		TaskAPI: TaskAPIConfig{
			BaseURL:   "https://api.parallel.ai",
			Processor: "base",
			Timeout:   "30s",
		},
		Seed: SeedConfig{
			Concurrency: 4,
		},
		Auth: AuthConfig{
			LoginURL: "/login",
			CacheTTL: "5m",
		},
		Feed: FeedConfig{
			Limit: 50,
		},
		Worker: WorkerConfig{
			PollInterval: "1s",
		},
	}
}

// Load reads configuration from the TOML file backend and then applies
// BP_* environment variable overrides. Secrets are only read from the
// environment.
//
// The file lives at $XDG_CONFIG_HOME/basedpeople/config.toml.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// Validate reports the settings the server cannot run without.
func (c Config) Validate() error {
	var missing []string
	if c.Webhook.Secret == "" {
		missing = append(missing, "BP_WEBHOOK_SECRET")
	}
	if c.TaskAPI.APIKey == "" {
		missing = append(missing, "BP_TASK_API_KEY")
	}
	if c.Seed.Secret == "" {
		missing = append(missing, "BP_SEED_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: set environment variable(s) %s", strings.Join(missing, ", "))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Seed.Concurrency <= 0 {
		return errors.New("seed.concurrency must be positive")
	}
	return nil
}

// Duration parses a duration setting, falling back to def when the value is
// empty or invalid.
func Duration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid duration %q, using %s\n", raw, def)
		return def
	}
	return d
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "basedpeople-data"
		}
	}
	return filepath.Join(dir, "basedpeople")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "basedpeople", "config.toml")
}
