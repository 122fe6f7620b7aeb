// Package config loads MentorFlow's settings with viper.
//
// Sources, lowest to highest precedence: built-in defaults, an optional
// config.yaml in the given directory, environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultBackendURL is the data source used when BACKEND_URL is unset.
const DefaultBackendURL = "data/mentorflow.db"

// minSecretLen matches what auth.NewTokenService accepts.
const minSecretLen = 16

type Config struct {
	Port int `mapstructure:"port"`

	// BackendURL is the sqlite data source of the embedded backend.
	BackendURL string `mapstructure:"backend_url"`
	// BackendAnonKey, when set, must be presented by clients in the apikey header.
	BackendAnonKey string `mapstructure:"backend_anon_key"`

	JWTSecret     string        `mapstructure:"jwt_secret"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`

	GitHubClientID     string `mapstructure:"github_client_id"`
	GitHubClientSecret string `mapstructure:"github_client_secret"`
	GitHubCallbackURL  string `mapstructure:"github_callback_url"`

	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`

	ProofEmail         string        `mapstructure:"proof_email"`
	LeaderboardRefresh time.Duration `mapstructure:"leaderboard_refresh"`
	LoginRatePerMinute int           `mapstructure:"login_rate_per_minute"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins"`
	BoardCacheSize     int           `mapstructure:"board_cache_size"`
}

var defaults = map[string]any{
	"port":                  8080,
	"backend_url":           "",
	"backend_anon_key":      "",
	"jwt_secret":            "",
	"session_ttl":           24 * time.Hour,
	"secure_cookies":        false,
	"github_client_id":      "",
	"github_client_secret":  "",
	"github_callback_url":   "",
	"log_level":             "info",
	"log_file":              "",
	"proof_email":           "tasksquare@duck.com",
	"leaderboard_refresh":   10 * time.Second,
	"login_rate_per_minute": 10,
	"allowed_origins":       []string{},
	"board_cache_size":      256,
}

// Load reads the configuration. dir is searched for config.yaml; an empty
// dir means the working directory. A missing file is not an error.
// Missing backend settings are logged as warnings and never fail startup.
func Load(dir string, logger *slog.Logger) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", k, err)
		}
	}

	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if cfg.BackendURL == "" {
		logger.Warn("BACKEND_URL is not set, using the local database",
			slog.String("path", DefaultBackendURL))
		cfg.BackendURL = DefaultBackendURL
	}
	if cfg.BackendAnonKey == "" {
		logger.Warn("BACKEND_ANON_KEY is not set, apikey header check is disabled")
	}
	if cfg.JWTSecret == "" {
		secret, err := ephemeralSecret()
		if err != nil {
			return nil, err
		}
		logger.Warn("JWT_SECRET is not set, using a random secret; sessions will not survive a restart")
		cfg.JWTSecret = secret
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("config: jwt_secret must be at least %d characters", minSecretLen)
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("config: login_rate_per_minute must be positive, got %d", c.LoginRatePerMinute)
	}
	if c.LeaderboardRefresh <= 0 {
		return fmt.Errorf("config: leaderboard_refresh must be positive, got %s", c.LeaderboardRefresh)
	}
	return nil
}

// ephemeralSecret returns 32 random bytes, hex encoded.
func ephemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("config: generating jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
