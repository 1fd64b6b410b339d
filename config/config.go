/*
Package config loads runtime configuration.

SOURCES (later wins):
  1. Built-in defaults
  2. YAML file passed with --config (optional, unknown keys rejected)
  3. .env file in the working directory (optional)
  4. Process environment

ENVIRONMENT:
  APP_ENV, LOG_LEVEL, LOG_FORMAT, HTTP_ADDR
  DB_DRIVER (sqlite|postgres|memory), SQLITE_PATH, DATABASE_URL
  REDIS_URL, MENU_CACHE_TTL, RABBITMQ_URL
  TIMEZONE, CUTOFF_HOUR, CUTOFF_MINUTE
  SCHEDULER_ENABLED, SCHEDULER_HOUR, SCHEDULER_MINUTE,
  SCHEDULER_RETRY_ATTEMPTS, SCHEDULER_RETRY_DELAY,
  BREAKER_THRESHOLD, BREAKER_TIMEOUT

Empty REDIS_URL disables the menu cache. Empty RABBITMQ_URL disables event
publishing.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/cafeteria-engine/reservation"
	"github.com/warp/cafeteria-engine/scheduler"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	AppEnv   string `yaml:"app_env"`
	Timezone string `yaml:"timezone"`

	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Cutoff    CutoffConfig    `yaml:"cutoff"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	URL        string `yaml:"url"`
}

type RedisConfig struct {
	URL     string        `yaml:"url"`
	MenuTTL time.Duration `yaml:"menu_ttl"`
}

type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

type CutoffConfig struct {
	Hour   int `yaml:"hour"`
	Minute int `yaml:"minute"`
}

type SchedulerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Hour             int           `yaml:"hour"`
	Minute           int           `yaml:"minute"`
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	sched := scheduler.DefaultConfig()
	return &Config{
		AppEnv:   "development",
		Timezone: "Local",
		Log:      LogConfig{Level: "info", Format: "text"},
		HTTP:     HTTPConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: DriverSQLite, SQLitePath: "./data/cafeteria.db"},
		Redis:    RedisConfig{MenuTTL: 5 * time.Minute},
		Cutoff: CutoffConfig{
			Hour:   reservation.DefaultCutoffHour,
			Minute: reservation.DefaultCutoffMinute,
		},
		Scheduler: SchedulerConfig{
			Enabled:          sched.Enabled,
			Hour:             sched.DailyExecutionHour,
			Minute:           sched.DailyExecutionMinute,
			RetryAttempts:    sched.RetryAttempts,
			RetryDelay:       sched.RetryDelay,
			BreakerThreshold: int(sched.BreakerThreshold),
			BreakerTimeout:   sched.BreakerTimeout,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, .env and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays the environment. Malformed numbers, durations and
// booleans are reported, not replaced by defaults.
func (c *Config) applyEnv() error {
	var errs []error

	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.SQLitePath = getEnv("SQLITE_PATH", c.Database.SQLitePath)
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)

	c.Redis.URL = getEnv("REDIS_URL", c.Redis.URL)
	c.Redis.MenuTTL = getDurationEnv("MENU_CACHE_TTL", c.Redis.MenuTTL, &errs)
	c.RabbitMQ.URL = getEnv("RABBITMQ_URL", c.RabbitMQ.URL)

	c.Cutoff.Hour = getIntEnv("CUTOFF_HOUR", c.Cutoff.Hour, &errs)
	c.Cutoff.Minute = getIntEnv("CUTOFF_MINUTE", c.Cutoff.Minute, &errs)

	c.Scheduler.Enabled = getBoolEnv("SCHEDULER_ENABLED", c.Scheduler.Enabled, &errs)
	c.Scheduler.Hour = getIntEnv("SCHEDULER_HOUR", c.Scheduler.Hour, &errs)
	c.Scheduler.Minute = getIntEnv("SCHEDULER_MINUTE", c.Scheduler.Minute, &errs)
	c.Scheduler.RetryAttempts = getIntEnv("SCHEDULER_RETRY_ATTEMPTS", c.Scheduler.RetryAttempts, &errs)
	c.Scheduler.RetryDelay = getDurationEnv("SCHEDULER_RETRY_DELAY", c.Scheduler.RetryDelay, &errs)
	c.Scheduler.BreakerThreshold = getIntEnv("BREAKER_THRESHOLD", c.Scheduler.BreakerThreshold, &errs)
	c.Scheduler.BreakerTimeout = getDurationEnv("BREAKER_TIMEOUT", c.Scheduler.BreakerTimeout, &errs)

	return errors.Join(errs...)
}

// Validate checks every value that has a fixed range or depends on another.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.Log.Format)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q (want sqlite, postgres or memory)", c.Database.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Cutoff.Hour < 0 || c.Cutoff.Hour > 23 {
		return fmt.Errorf("CUTOFF_HOUR must be between 0 and 23, got %d", c.Cutoff.Hour)
	}
	if c.Cutoff.Minute < 0 || c.Cutoff.Minute > 59 {
		return fmt.Errorf("CUTOFF_MINUTE must be between 0 and 59, got %d", c.Cutoff.Minute)
	}
	if c.Scheduler.BreakerThreshold < 0 {
		return fmt.Errorf("BREAKER_THRESHOLD must not be negative, got %d", c.Scheduler.BreakerThreshold)
	}
	if err := c.SchedulerConfig().Validate(); err != nil {
		return fmt.Errorf("invalid scheduler configuration: %w", err)
	}
	return nil
}

// Location resolves Timezone. "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CutoffTime returns the configured same-day cutoff.
func (c *Config) CutoffTime() reservation.Cutoff {
	return reservation.Cutoff{Hour: c.Cutoff.Hour, Minute: c.Cutoff.Minute}
}

// SchedulerConfig maps the scheduler section.
func (c *Config) SchedulerConfig() scheduler.Config {
	threshold := c.Scheduler.BreakerThreshold
	if threshold < 0 {
		threshold = 0
	}
	return scheduler.Config{
		Enabled:              c.Scheduler.Enabled,
		DailyExecutionHour:   c.Scheduler.Hour,
		DailyExecutionMinute: c.Scheduler.Minute,
		RetryAttempts:        c.Scheduler.RetryAttempts,
		RetryDelay:           c.Scheduler.RetryDelay,
		BreakerThreshold:     uint32(threshold),
		BreakerTimeout:       c.Scheduler.BreakerTimeout,
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want an integer", key, value))
		return defaultValue
	}
	return i
}

func getDurationEnv(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want a duration such as 500ms or 1m", key, value))
		return defaultValue
	}
	return d
}

func getBoolEnv(key string, defaultValue bool, errs *[]error) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s %q: want true or false", key, value))
		return defaultValue
	}
	return b
}
