// Package config loads the server and CLI configuration from an optional
// YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultDBPath            = "data/equb.db"
	DefaultListenAddr        = ":8080"
	DefaultTxTimeout         = 30 * time.Second
	DefaultTokenTTL          = 24 * time.Hour
	DefaultIntegritySchedule = "@every 5m"
)

// Config holds the process configuration.
type Config struct {
	DBPath     string `yaml:"db_path"`     // SQLite ledger file
	ListenAddr string `yaml:"listen_addr"` // HTTP listen address
	LogLevel   string `yaml:"log_level"`   // debug, info, warn, error
	LogFormat  string `yaml:"log_format"`  // text or json

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// TxTimeout bounds every ledger transaction.
	TxTimeout time.Duration `yaml:"tx_timeout"`

	// IntegritySchedule is the cron spec of the integrity sweep; empty disables it.
	IntegritySchedule string `yaml:"integrity_schedule"`

	// DeferRoundAdvance leaves round advancement to ProgressRound.
	DeferRoundAdvance bool `yaml:"defer_round_advance"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:            DefaultDBPath,
		ListenAddr:        DefaultListenAddr,
		LogLevel:          "info",
		LogFormat:         "text",
		TokenTTL:          DefaultTokenTTL,
		TxTimeout:         DefaultTxTimeout,
		IntegritySchedule: DefaultIntegritySchedule,
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. It does not validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString("EQUB_DB_PATH", &c.DBPath)
	setString("EQUB_LISTEN_ADDR", &c.ListenAddr)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_FORMAT", &c.LogFormat)
	setString("EQUB_JWT_SECRET", &c.JWTSecret)
	setString("EQUB_INTEGRITY_SCHEDULE", &c.IntegritySchedule)

	for key, dst := range map[string]*time.Duration{
		"EQUB_TOKEN_TTL":  &c.TokenTTL,
		"EQUB_TX_TIMEOUT": &c.TxTimeout,
	} {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("EQUB_DEFER_ROUND_ADVANCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EQUB_DEFER_ROUND_ADVANCE: %w", err)
		}
		c.DeferRoundAdvance = b
	}
	return nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path (EQUB_DB_PATH) is required"))
	}
	if c.TxTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tx_timeout must be positive, got %s", c.TxTimeout))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret (EQUB_JWT_SECRET) is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("token_ttl must be positive, got %s", c.TokenTTL))
	}
	return errors.Join(errs...)
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
