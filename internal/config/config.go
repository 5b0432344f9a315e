// Package config loads service settings. Sources are applied in order:
// built-in defaults, the YAML file, a .env file, then the environment.
// Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the service settings.
type Config struct {
	DBPath    string
	Addr      string
	LogPath   string
	LogFormat string
	AdminUser string

	TxTimeout time.Duration
	TxRetries int

	RedisURL string
	StatsTTL time.Duration
}

type configFile struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Database struct {
		Path        string `yaml:"path"`
		TxTimeoutMS int    `yaml:"tx_timeout_ms"`
		TxRetries   *int   `yaml:"tx_retries"`
	} `yaml:"database"`
	Log struct {
		Path   string `yaml:"path"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Admin struct {
		User string `yaml:"user"`
	} `yaml:"admin"`
	Redis struct {
		URL             string `yaml:"url"`
		StatsTTLSeconds int    `yaml:"stats_ttl_seconds"`
	} `yaml:"redis"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DBPath:    "armarios.sqlite3",
		Addr:      ":8080",
		LogFormat: LogFormatText,
		AdminUser: "Admin",
		TxTimeout: 5 * time.Second,
		TxRetries: 2,
		StatsTTL:  10 * time.Second,
	}
}

// Load reads settings from the YAML file at path and the dotenv file at
// envFile, then the process environment. Missing files are skipped.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := applyFile(&cfg, raw); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	if envFile != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading env file: %w", err)
		}
	}

	cfg.DBPath = envOrDefault("ARMARIOS_DB", cfg.DBPath)
	cfg.Addr = envOrDefault("ARMARIOS_ADDR", cfg.Addr)
	cfg.LogPath = envOrDefault("ARMARIOS_LOG", cfg.LogPath)
	cfg.LogFormat = envOrDefault("ARMARIOS_LOG_FORMAT", cfg.LogFormat)
	cfg.AdminUser = envOrDefault("ARMARIOS_ADMIN_USER", cfg.AdminUser)
	cfg.RedisURL = envOrDefault("ARMARIOS_REDIS_URL", cfg.RedisURL)

	timeoutMS, err := envInt("ARMARIOS_TX_TIMEOUT_MS", int(cfg.TxTimeout.Milliseconds()))
	if err != nil {
		return Config{}, err
	}
	cfg.TxTimeout = time.Duration(timeoutMS) * time.Millisecond

	if cfg.TxRetries, err = envInt("ARMARIOS_TX_RETRIES", cfg.TxRetries); err != nil {
		return Config{}, err
	}

	ttlSeconds, err := envInt("ARMARIOS_STATS_TTL_SECONDS", int(cfg.StatsTTL.Seconds()))
	if err != nil {
		return Config{}, err
	}
	cfg.StatsTTL = time.Duration(ttlSeconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return err
	}
	if f.Server.Addr != "" {
		cfg.Addr = f.Server.Addr
	}
	if f.Database.Path != "" {
		cfg.DBPath = f.Database.Path
	}
	if f.Database.TxTimeoutMS > 0 {
		cfg.TxTimeout = time.Duration(f.Database.TxTimeoutMS) * time.Millisecond
	}
	if f.Database.TxRetries != nil {
		cfg.TxRetries = *f.Database.TxRetries
	}
	if f.Log.Path != "" {
		cfg.LogPath = f.Log.Path
	}
	if f.Log.Format != "" {
		cfg.LogFormat = f.Log.Format
	}
	if f.Admin.User != "" {
		cfg.AdminUser = f.Admin.User
	}
	if f.Redis.URL != "" {
		cfg.RedisURL = f.Redis.URL
	}
	if f.Redis.StatsTTLSeconds > 0 {
		cfg.StatsTTL = time.Duration(f.Redis.StatsTTLSeconds) * time.Second
	}
	return nil
}

// Validate checks that the settings are usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("database path is required")
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("invalid log format %q, expected %q or %q", c.LogFormat, LogFormatText, LogFormatJSON)
	}
	if c.TxTimeout <= 0 {
		return fmt.Errorf("transaction timeout must be positive")
	}
	if c.TxRetries < 0 {
		return fmt.Errorf("transaction retries must not be negative")
	}
	if c.StatsTTL <= 0 {
		return fmt.Errorf("stats cache TTL must be positive")
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: expected an integer", name, raw)
	}
	return v, nil
}
