// Package config loads server settings from a .env file, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the server configuration.
type Config struct {
	Addr              string        `yaml:"addr"`
	SQLiteDSN         string        `yaml:"sqlite_dsn"`
	DatabaseURL       string        `yaml:"database_url"`
	SentryDSN         string        `yaml:"sentry_dsn"`
	SentryEnvironment string        `yaml:"sentry_environment"`
	Release           string        `yaml:"release"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps"`
	RateLimitBurst    int           `yaml:"rate_limit_burst"`
	LoginPerMinute    int           `yaml:"login_attempts_per_minute"`
	TrustedProxies    string        `yaml:"trusted_proxies"`
	CoefficientsFile  string        `yaml:"coefficients_file"`
	AdminEmail        string        `yaml:"admin_email"`
	AdminPassword     string        `yaml:"admin_password"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	ReplyDelayMin     time.Duration `yaml:"reply_delay_min"`
	ReplyDelayMax     time.Duration `yaml:"reply_delay_max"`
	SeedDemo          bool          `yaml:"seed_demo"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:              ":8080",
		SQLiteDSN:         "file:fluxmare.db?cache=shared&_fk=1",
		SentryEnvironment: "production",
		Release:           "dev",
		RateLimitRPS:      100,
		RateLimitBurst:    200,
		LoginPerMinute:    5,
		SessionTTL:        24 * time.Hour,
		ReplyDelayMin:     time.Second,
		ReplyDelayMax:     2 * time.Second,
		SeedDemo:          true,
	}
}

// Load reads .env (a missing file is ignored), then the YAML file at path
// when path is non-empty, then environment variables.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = os.Getenv("FLUXMARE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ADDR"); v != "" {
		c.Addr = v
	}
	if p := os.Getenv("PORT"); p != "" { // Heroku-style
		c.Addr = ":" + p
	}
	setString(&c.SQLiteDSN, "SQLITE_DSN")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.SentryDSN, "SENTRY_DSN")
	setString(&c.SentryEnvironment, "SENTRY_ENVIRONMENT")
	setString(&c.Release, "APP_VERSION")
	setString(&c.TrustedProxies, "FLUXMARE_TRUSTED_PROXIES")
	setString(&c.CoefficientsFile, "FLUXMARE_COEFFICIENTS")
	setString(&c.AdminEmail, "FLUXMARE_ADMIN_EMAIL")
	setString(&c.AdminPassword, "FLUXMARE_ADMIN_PASSWORD")

	var errs []error
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		} else {
			c.RateLimitRPS = f
		}
	}
	errs = append(errs,
		setInt(&c.RateLimitBurst, "RATE_LIMIT_BURST"),
		setInt(&c.LoginPerMinute, "FLUXMARE_LOGIN_PER_MINUTE"),
		setMillis(&c.ReplyDelayMin, "FLUXMARE_REPLY_DELAY_MIN_MS"),
		setMillis(&c.ReplyDelayMax, "FLUXMARE_REPLY_DELAY_MAX_MS"),
	)
	if v := os.Getenv("FLUXMARE_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FLUXMARE_SESSION_TTL: %w", err))
		} else {
			c.SessionTTL = d
		}
	}
	if v := os.Getenv("FLUXMARE_SEED_DEMO"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FLUXMARE_SEED_DEMO: %w", err))
		} else {
			c.SeedDemo = b
		}
	}
	return errors.Join(errs...)
}

// Validate checks the values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required (set ADDR, PORT or yaml)")
	}
	if c.ReplyDelayMin < 0 || c.ReplyDelayMax < 0 {
		return errors.New("reply delays must not be negative")
	}
	if c.ReplyDelayMax < c.ReplyDelayMin {
		return fmt.Errorf("reply_delay_max %v is below reply_delay_min %v", c.ReplyDelayMax, c.ReplyDelayMin)
	}
	if c.LoginPerMinute < 0 {
		return errors.New("login_attempts_per_minute must not be negative")
	}
	return nil
}

// RateLimitEnabled reports whether both limiter settings are positive.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0 && c.RateLimitBurst > 0
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setMillis(dst *time.Duration, key string) error {
	var ms int
	if err := setInt(&ms, key); err != nil {
		return err
	}
	if os.Getenv(key) != "" {
		*dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}
