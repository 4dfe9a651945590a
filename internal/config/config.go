// Package config loads the dashboard configuration from defaults, the
// environment and command-line flags, in that order.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/luki/sensordash/internal/store"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SENSORDASH"

// Store backends.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// RedisConfig configures the redis settings backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// LoadFromEnv overrides fields from <prefix>_ADDR, _PASSWORD, _DB, _PREFIX.
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		fmt.Sscanf(db, "%d", &c.DB)
	}
	if p := os.Getenv(prefix + "_PREFIX"); p != "" {
		c.Prefix = p
	}
}

// Options converts the config to dial options.
func (c RedisConfig) Options() store.RedisOptions {
	return store.RedisOptions{Addr: c.Addr, Password: c.Password, DB: c.DB}
}

// Config is the complete dashboard configuration.
type Config struct {
	API struct {
		BaseURL string
		Timeout time.Duration
	}

	Poll struct {
		Interval        time.Duration
		HistoryCapacity int
	}

	Store struct {
		Backend string // "file", "redis" or "memory"
		Path    string // settings file for the file backend
		Redis   RedisConfig
	}

	DataDir  string
	Record   bool // append live readings to daily CSV files
	Headless bool // poll and log without the TUI

	HTTP struct {
		Addr string // chart server listen address, empty disables it
	}

	Log struct {
		Level  string
		Format string
		Output string // file path, empty means stdout
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = "http://localhost:8443"
	cfg.API.Timeout = 5 * time.Second
	cfg.Poll.Interval = 2 * time.Second
	cfg.Poll.HistoryCapacity = 0
	cfg.Store.Backend = BackendFile
	cfg.Store.Redis.Addr = "localhost:6379"
	cfg.Store.Redis.Prefix = "sensordash:"
	cfg.DataDir = store.DataDir()
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load builds the configuration from defaults, SENSORDASH_* environment
// variables and args.
func Load(args []string) (*Config, error) {
	cfg := Default()
	cfg.loadEnv(EnvPrefix)

	fs := flag.NewFlagSet("sensordash", flag.ContinueOnError)
	fs.StringVar(&cfg.API.BaseURL, "api", cfg.API.BaseURL, "backend base URL")
	fs.DurationVar(&cfg.API.Timeout, "timeout", cfg.API.Timeout, "per-request timeout")
	fs.DurationVar(&cfg.Poll.Interval, "interval", cfg.Poll.Interval, "poll interval")
	fs.IntVar(&cfg.Poll.HistoryCapacity, "history", cfg.Poll.HistoryCapacity, "max readings kept per sensor, 0 keeps the hub's full window")
	fs.StringVar(&cfg.Store.Backend, "store", cfg.Store.Backend, "settings backend: file, redis or memory")
	fs.StringVar(&cfg.Store.Path, "settings", cfg.Store.Path, "settings file (file backend)")
	fs.StringVar(&cfg.Store.Redis.Addr, "redis-addr", cfg.Store.Redis.Addr, "redis address")
	fs.IntVar(&cfg.Store.Redis.DB, "redis-db", cfg.Store.Redis.DB, "redis database")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "data directory")
	fs.BoolVar(&cfg.Record, "record", cfg.Record, "record live readings to CSV")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run without the terminal UI")
	fs.StringVar(&cfg.HTTP.Addr, "listen", cfg.HTTP.Addr, "chart server address, e.g. :8080")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "json or console")
	fs.StringVar(&cfg.Log.Output, "log-file", cfg.Log.Output, "log file, empty for stdout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "settings.json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadEnv(prefix string) {
	c.API.BaseURL = getEnv(prefix+"_API_URL", c.API.BaseURL)
	c.API.Timeout = getDuration(prefix+"_API_TIMEOUT", c.API.Timeout)
	c.Poll.Interval = getDuration(prefix+"_POLL_INTERVAL", c.Poll.Interval)
	if v, err := strconv.Atoi(os.Getenv(prefix + "_HISTORY_CAPACITY")); err == nil && v >= 0 {
		c.Poll.HistoryCapacity = v
	}
	c.Store.Backend = getEnv(prefix+"_STORE", c.Store.Backend)
	c.Store.Path = getEnv(prefix+"_SETTINGS_PATH", c.Store.Path)
	c.Store.Redis.LoadFromEnv(prefix + "_REDIS")
	c.DataDir = getEnv(prefix+"_DATA_DIR", c.DataDir)
	c.Record = getEnv(prefix+"_RECORD", strconv.FormatBool(c.Record)) == "true"
	c.Headless = getEnv(prefix+"_HEADLESS", strconv.FormatBool(c.Headless)) == "true"
	c.HTTP.Addr = getEnv(prefix+"_HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getEnv(prefix+"_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv(prefix+"_LOG_FORMAT", c.Log.Format)
	c.Log.Output = getEnv(prefix+"_LOG_FILE", c.Log.Output)
}

// Validate rejects configurations the dashboard cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api base URL is empty"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval))
	}
	if c.Poll.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("history capacity must not be negative, got %d", c.Poll.HistoryCapacity))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
