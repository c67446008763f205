package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime settings of the recipe finder front end.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	GinMode         string

	// Recipe service
	RecipeServiceURL     string
	RecipeServiceTimeout time.Duration
	MaxUploadBytes       int64

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookie  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Defaults used when the environment leaves a setting empty.
const (
	DefaultHTTPAddr             = ":8080"
	DefaultRecipeServiceURL     = "http://localhost:8000/generate-recipes/"
	DefaultRecipeServiceTimeout = 60 * time.Second
	DefaultMaxUploadBytes       = 10 << 20
	DefaultSessionTTL           = 30 * time.Minute
	DefaultShutdownTimeout      = 15 * time.Second
	devSessionSecret            = "dev-session-secret"
)

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv.
func LoadFrom(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return fallback
	}

	cfg := &Config{
		HTTPAddr:         env("HTTP_ADDR", DefaultHTTPAddr),
		LogLevel:         env("LOG_LEVEL", "info"),
		GinMode:          env("GIN_MODE", "release"),
		RecipeServiceURL: env("RECIPE_SERVICE_URL", DefaultRecipeServiceURL),
		SessionSecret:    env("SESSION_SECRET", devSessionSecret),
		RedisAddr:        env("REDIS_ADDR", ""),
		RedisPassword:    getenv("REDIS_PASSWORD"),
	}

	var errs []error
	var err error
	if cfg.ShutdownTimeout, err = parseDuration(env("SHUTDOWN_TIMEOUT", ""), DefaultShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err))
	}
	if cfg.RecipeServiceTimeout, err = parseDuration(env("RECIPE_SERVICE_TIMEOUT", ""), DefaultRecipeServiceTimeout); err != nil {
		errs = append(errs, fmt.Errorf("RECIPE_SERVICE_TIMEOUT: %w", err))
	}
	if cfg.SessionTTL, err = parseDuration(env("SESSION_TTL", ""), DefaultSessionTTL); err != nil {
		errs = append(errs, fmt.Errorf("SESSION_TTL: %w", err))
	}
	if cfg.MaxUploadBytes, err = parseInt(env("MAX_UPLOAD_BYTES", ""), DefaultMaxUploadBytes); err != nil {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err))
	}
	redisDB, err := parseInt(env("REDIS_DB", ""), 0)
	if err != nil {
		errs = append(errs, fmt.Errorf("REDIS_DB: %w", err))
	}
	cfg.RedisDB = int(redisDB)
	if cfg.SecureCookie, err = parseBool(env("SECURE_COOKIE", ""), false); err != nil {
		errs = append(errs, fmt.Errorf("SECURE_COOKIE: %w", err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.RecipeServiceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("RECIPE_SERVICE_URL %q must be an absolute http(s) url", c.RecipeServiceURL))
	}
	if c.RecipeServiceTimeout <= 0 {
		errs = append(errs, errors.New("RECIPE_SERVICE_TIMEOUT must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT must be positive"))
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("GIN_MODE %q must be debug, release or test", c.GinMode))
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required"))
	}
	return errors.Join(errs...)
}

// UsesDevSecret reports whether sessions are signed with the built-in secret.
func (c *Config) UsesDevSecret() bool {
	return c.SessionSecret == devSessionSecret
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

func parseInt(value string, fallback int64) (int64, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseInt(value, 10, 64)
}

func parseBool(value string, fallback bool) (bool, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}
