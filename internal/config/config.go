package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-live-attendance/internal/pkg/validator"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

type Config struct {
	App      AppConfig
	Store    StoreConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Live     LiveConfig
	Cron     CronConfig
	CORS     CORSConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Port             int
	Env              string
	LogLevel         string
	TimeZone         string
	ShiftCatalogFile string
}

// StoreConfig selects the session store.
type StoreConfig struct {
	Driver       string
	SQLitePath   string
	QueryTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// LiveConfig tunes the live view controllers.
type LiveConfig struct {
	RefreshInterval time.Duration
	VisibleDebounce time.Duration
	OnlineDebounce  time.Duration
	StaleAfter      time.Duration
}

type CronConfig struct {
	StoreProbeInterval time.Duration
	ReconcileInterval  time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads the environment, optionally seeded from a .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}
	var err error

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:             appPort,
		Env:              getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TimeZone:         getEnv("APP_TIMEZONE", "UTC"),
		ShiftCatalogFile: getEnv("SHIFT_CATALOG_FILE", ""),
	}

	// Store configuration
	config.Store = StoreConfig{
		Driver:     strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		SQLitePath: getEnv("SQLITE_PATH", "data/attendance.db"),
	}
	if config.Store.QueryTimeout, err = getEnvDuration("STORE_QUERY_TIMEOUT", "5s"); err != nil {
		return nil, err
	}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "hris-attendance"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// JWT configuration
	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "1h"),
	}

	// Live view configuration
	if config.Live.RefreshInterval, err = getEnvDuration("LIVE_REFRESH_INTERVAL", "30s"); err != nil {
		return nil, err
	}
	if config.Live.VisibleDebounce, err = getEnvDuration("LIVE_VISIBLE_DEBOUNCE", "1s"); err != nil {
		return nil, err
	}
	if config.Live.OnlineDebounce, err = getEnvDuration("LIVE_ONLINE_DEBOUNCE", "2s"); err != nil {
		return nil, err
	}
	if config.Live.StaleAfter, err = getEnvDuration("LIVE_STALE_AFTER", "90s"); err != nil {
		return nil, err
	}

	// Cron configuration
	if config.Cron.StoreProbeInterval, err = getEnvDuration("STORE_PROBE_INTERVAL", "15s"); err != nil {
		return nil, err
	}
	if config.Cron.ReconcileInterval, err = getEnvDuration("RECONCILE_INTERVAL", "1h"); err != nil {
		return nil, err
	}

	config.CORS = CORSConfig{
		AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsInSlice(c.Store.Driver, []string{StoreDriverPostgres, StoreDriverSQLite}) {
		errs = append(errs, validator.ValidationError{
			Field:   "STORE_DRIVER",
			Message: "STORE_DRIVER must be postgres or sqlite",
		})
	}
	if c.Store.Driver == StoreDriverPostgres && c.Database.Password == "" {
		errs = append(errs, validator.ValidationError{
			Field:   "DB_PASSWORD",
			Message: "DB_PASSWORD is required",
		})
	}
	if c.Store.Driver == StoreDriverSQLite && validator.IsEmpty(c.Store.SQLitePath) {
		errs = append(errs, validator.ValidationError{
			Field:   "SQLITE_PATH",
			Message: "SQLITE_PATH is required",
		})
	}
	if c.JWT.Secret == "" {
		errs = append(errs, validator.ValidationError{
			Field:   "JWT_SECRET_KEY",
			Message: "JWT_SECRET_KEY is required",
		})
	}
	if !validator.IsValidTimeZone(c.App.TimeZone) {
		errs = append(errs, validator.ValidationError{
			Field:   "APP_TIMEZONE",
			Message: "APP_TIMEZONE must be an IANA time zone",
		})
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"STORE_QUERY_TIMEOUT", c.Store.QueryTimeout},
		{"LIVE_REFRESH_INTERVAL", c.Live.RefreshInterval},
		{"LIVE_VISIBLE_DEBOUNCE", c.Live.VisibleDebounce},
		{"LIVE_ONLINE_DEBOUNCE", c.Live.OnlineDebounce},
		{"LIVE_STALE_AFTER", c.Live.StaleAfter},
		{"STORE_PROBE_INTERVAL", c.Cron.StoreProbeInterval},
		{"RECONCILE_INTERVAL", c.Cron.ReconcileInterval},
	} {
		if d.value <= 0 {
			errs = append(errs, validator.ValidationError{
				Field:   d.name,
				Message: d.name + " must be positive",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Location returns the time zone used to decide calendar days.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.TimeZone)
}

// LogLevel maps LOG_LEVEL to a slog level. Unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.App.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvSlice(key, fallback string) []string {
	value := getEnv(key, fallback)
	if value == "" {
		return []string{}
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}
