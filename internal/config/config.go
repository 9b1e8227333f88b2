// Package config resolves the relay's process-wide settings once at startup.
//
// Values come from the process environment, optionally seeded from env files,
// and provider credentials may additionally be read from AWS SSM Parameter
// Store when PARAM_PREFIX is set.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort            = 5000
	DefaultProviderTimeout = 60 * time.Second

	DevelopmentOrigin = "http://localhost:3000"
	ProductionOrigin  = "https://chat-relay.app"

	envProduction = "production"

	googleKeyParam   = "gg-api-key"
	deepSeekKeyParam = "ds-api-key"
)

// DefaultEnvFiles are read in order; a key defined in an earlier file (or
// already present in the environment) is never overridden by a later one.
var DefaultEnvFiles = []string{".env.local", ".env"}

// ErrNoCredentials is returned by Validate when no provider key resolved.
var ErrNoCredentials = errors.New("config: at least one of GG_API_KEY or DS_API_KEY must be set")

// SecretGetter reads a credential by parameter name.
type SecretGetter interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// Config is immutable after Load.
type Config struct {
	Env          string
	Debug        bool
	Port         int
	ClientOrigin string

	GoogleAPIKey   string
	DeepSeekAPIKey string

	GoogleModel     string
	DeepSeekModel   string
	DeepSeekBaseURL string

	ProviderTimeout time.Duration
	ParamPrefix     string
	LogFile         string
}

// Production reports whether NODE_ENV selects production mode.
func (c Config) Production() bool {
	return c.Env == envProduction
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// LoadEnvFiles loads the existing files among paths into the process
// environment and returns the ones that were read. Missing files are skipped.
func LoadEnvFiles(paths ...string) ([]string, error) {
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return nil, fmt.Errorf("config: load env files: %w", err)
	}
	return existing, nil
}

// LogSettings reads DEBUG and LOG_FILE so the logger can be installed before
// Load runs and its diagnostics are not lost.
func LogSettings(lookup func(string) (string, bool)) (debug bool, file string) {
	d, _ := lookup("DEBUG")
	f, _ := lookup("LOG_FILE")
	return parseBool(strings.TrimSpace(d)), strings.TrimSpace(f)
}

// Load builds a Config from lookup (normally os.LookupEnv). When PARAM_PREFIX
// is set and secrets is non-nil, missing provider keys are read from
// <prefix>/gg-api-key and <prefix>/ds-api-key. Load does not validate.
func Load(ctx context.Context, lookup func(string) (string, bool), secrets SecretGetter) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		Env:             get("NODE_ENV"),
		Debug:           parseBool(get("DEBUG")),
		Port:            DefaultPort,
		ClientOrigin:    get("CLIENT_ORIGIN"),
		GoogleAPIKey:    get("GG_API_KEY"),
		DeepSeekAPIKey:  get("DS_API_KEY"),
		GoogleModel:     get("GG_MODEL"),
		DeepSeekModel:   get("DS_MODEL"),
		DeepSeekBaseURL: get("DS_BASE_URL"),
		ProviderTimeout: DefaultProviderTimeout,
		ParamPrefix:     strings.TrimRight(get("PARAM_PREFIX"), "/"),
		LogFile:         get("LOG_FILE"),
	}

	if v := get("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := get("PROVIDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid PROVIDER_TIMEOUT %q: %w", v, err)
		}
		cfg.ProviderTimeout = d
	}
	if cfg.ClientOrigin == "" {
		cfg.ClientOrigin = DevelopmentOrigin
		if cfg.Production() {
			cfg.ClientOrigin = ProductionOrigin
		}
	}

	if cfg.ParamPrefix != "" && secrets != nil {
		cfg.GoogleAPIKey = resolveSecret(ctx, secrets, cfg.GoogleAPIKey, cfg.ParamPrefix+"/"+googleKeyParam)
		cfg.DeepSeekAPIKey = resolveSecret(ctx, secrets, cfg.DeepSeekAPIKey, cfg.ParamPrefix+"/"+deepSeekKeyParam)
	}

	slog.Debug("configuration loaded",
		"env", cfg.Env,
		"port", cfg.Port,
		"client_origin", cfg.ClientOrigin,
		"google_key_set", cfg.GoogleAPIKey != "",
		"deepseek_key_set", cfg.DeepSeekAPIKey != "",
		"param_prefix", cfg.ParamPrefix,
		"provider_timeout", cfg.ProviderTimeout,
	)
	return cfg, nil
}

// Validate fails when the relay cannot serve any request.
func (c Config) Validate() error {
	if c.GoogleAPIKey == "" && c.DeepSeekAPIKey == "" {
		return ErrNoCredentials
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.ProviderTimeout < 0 {
		return fmt.Errorf("config: PROVIDER_TIMEOUT must not be negative")
	}
	return nil
}

// resolveSecret keeps an explicit value and otherwise tries the parameter
// store. A failed lookup leaves the provider unconfigured.
func resolveSecret(ctx context.Context, secrets SecretGetter, current, name string) string {
	if current != "" {
		return current
	}
	v, err := secrets.GetSecret(ctx, name)
	if err != nil {
		slog.Debug("credential not resolved from parameter store", "name", name, "err", err)
		return ""
	}
	slog.Debug("credential resolved from parameter store", "name", name)
	return v
}

func parseBool(s string) bool {
	if s == "" {
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		// DEBUG=* and similar namespace patterns count as enabled.
		return true
	}
	return b
}
