// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for polychat.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"

	"github.com/jeranaias/polychat/internal/logger"
	"github.com/jeranaias/polychat/internal/model"
	"github.com/jeranaias/polychat/internal/provider"
	"github.com/jeranaias/polychat/internal/storage"
	"github.com/jeranaias/polychat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete polychat configuration.
type Config struct {
	// DefaultModel binds new chats. Must be a catalog model ID.
	DefaultModel string `toml:"default_model" env:"POLYCHAT_DEFAULT_MODEL"`

	Providers ProvidersConfig `toml:"providers"`
	Storage   StorageConfig   `toml:"storage"`
	Log       LogConfig       `toml:"log"`
	UI        UIConfig        `toml:"ui"`
}

// ProvidersConfig holds one section per model provider.
type ProvidersConfig struct {
	OpenAI ProviderConfig `toml:"openai" envPrefix:"OPENAI_"`
	Claude ProviderConfig `toml:"claude" envPrefix:"ANTHROPIC_"`
	Llama  ProviderConfig `toml:"llama" envPrefix:"LLAMA_"`
	Gemini ProviderConfig `toml:"gemini" envPrefix:"GOOGLE_"`

	// TimeoutSecs bounds one provider round trip.
	TimeoutSecs int `toml:"timeout_secs" env:"POLYCHAT_PROVIDER_TIMEOUT_SECS"`
}

// ProviderConfig contains one provider's credential and endpoint.
type ProviderConfig struct {
	APIKey  string `toml:"api_key" env:"API_KEY"`
	BaseURL string `toml:"base_url" env:"BASE_URL"`

	// RequestsPerMinute enables client-side rate limiting (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// StorageConfig selects where chats are persisted.
type StorageConfig struct {
	// Backend is one of: file, sqlite, postgres, mongo, memory
	Backend string `toml:"backend" env:"POLYCHAT_STORAGE"`

	Dir             string `toml:"dir" env:"POLYCHAT_STORAGE_DIR"`
	SQLitePath      string `toml:"sqlite_path" env:"POLYCHAT_SQLITE_PATH"`
	PostgresDSN     string `toml:"postgres_dsn" env:"POLYCHAT_POSTGRES_DSN"`
	MongoURI        string `toml:"mongo_uri" env:"POLYCHAT_MONGO_URI"`
	MongoDatabase   string `toml:"mongo_database" env:"POLYCHAT_MONGO_DATABASE"`
	MongoCollection string `toml:"mongo_collection" env:"POLYCHAT_MONGO_COLLECTION"`

	// Writers is the number of concurrent background writers.
	Writers int `toml:"writers" env:"POLYCHAT_STORAGE_WRITERS"`
	// WriteTimeoutSecs bounds one background save or delete.
	WriteTimeoutSecs int `toml:"write_timeout_secs" env:"POLYCHAT_STORAGE_WRITE_TIMEOUT_SECS"`
}

// LogConfig controls the process log.
type LogConfig struct {
	// Level is one of: debug, info, warn, error
	Level   string `toml:"level" env:"POLYCHAT_LOG_LEVEL"`
	NoColor bool   `toml:"no_color" env:"POLYCHAT_NO_COLOR"`
	// File redirects the log away from stderr when set.
	File string `toml:"file" env:"POLYCHAT_LOG_FILE"`
}

// UIConfig contains shell settings.
type UIConfig struct {
	// Markdown renders assistant replies with glamour.
	Markdown bool `toml:"markdown" env:"POLYCHAT_MARKDOWN"`
	// Style is a glamour style name: auto, dark, light, notty
	Style string `toml:"style" env:"POLYCHAT_STYLE"`
	// HistoryFile stores shell input history (empty = ~/.polychat/history).
	HistoryFile string `toml:"history_file" env:"POLYCHAT_HISTORY_FILE"`
	// Width wraps rendered replies (0 = 100 columns).
	Width int `toml:"width" env:"POLYCHAT_WIDTH"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DefaultModel: model.DefaultModelID,
		Providers: ProvidersConfig{
			TimeoutSecs: int(provider.DefaultTimeout / time.Second),
		},
		Storage: StorageConfig{
			Backend:          string(storage.BackendFile),
			MongoDatabase:    storage.DefaultMongoDatabase,
			MongoCollection:  storage.DefaultMongoCollection,
			Writers:          4,
			WriteTimeoutSecs: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			Markdown: true,
			Style:    "auto",
			Width:    100,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the polychat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".polychat"), nil
}

// ConfigPath returns the path to the default TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600, since it may hold
// API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// Path is the TOML file. Empty means ~/.polychat/config.toml; a missing
	// file at the default path is not an error.
	Path string

	// Environ replaces the process environment when non-nil.
	Environ map[string]string
}

// Load builds a Config from defaults, the TOML file and the environment,
// then validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := Default()

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	} else if explicit || !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	if err := cfg.ApplyEnvOverrides(opts.Environ); err != nil {
		return nil, err
	}
	if err := cfg.SetDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to path as TOML with 0600 permissions.
func Save(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides overlays environment variables onto c. A nil environ
// reads the process environment.
//
// Supported environment variables:
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, LLAMA_API_KEY, GOOGLE_API_KEY
//   - OPENAI_BASE_URL, ANTHROPIC_BASE_URL, LLAMA_BASE_URL, GOOGLE_BASE_URL
//   - <PROVIDER>_REQUESTS_PER_MINUTE
//   - POLYCHAT_DEFAULT_MODEL, POLYCHAT_STORAGE, POLYCHAT_STORAGE_DIR,
//     POLYCHAT_SQLITE_PATH, POLYCHAT_POSTGRES_DSN, POLYCHAT_MONGO_URI
//   - POLYCHAT_LOG_LEVEL, POLYCHAT_NO_COLOR, POLYCHAT_LOG_FILE
func (c *Config) ApplyEnvOverrides(environ map[string]string) error {
	if err := env.ParseWithOptions(c, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parsing env config: %w", err)
	}
	return nil
}

// SetDefaults fills the location settings that depend on the home directory.
func (c *Config) SetDefaults() error {
	if c.DefaultModel == "" {
		c.DefaultModel = model.DefaultModelID
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = string(storage.BackendFile)
	}

	needsHome := (c.Storage.Backend == string(storage.BackendFile) && c.Storage.Dir == "") ||
		(c.Storage.Backend == string(storage.BackendSQLite) && c.Storage.SQLitePath == "") ||
		c.UI.HistoryFile == ""
	if !needsHome {
		return nil
	}

	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if c.Storage.Dir == "" && c.Storage.Backend == string(storage.BackendFile) {
		c.Storage.Dir = filepath.Join(dir, "chats")
	}
	if c.Storage.SQLitePath == "" && c.Storage.Backend == string(storage.BackendSQLite) {
		c.Storage.SQLitePath = filepath.Join(dir, "chats.db")
	}
	if c.UI.HistoryFile == "" {
		c.UI.HistoryFile = filepath.Join(dir, "history")
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	add := func(field, format string, args ...any) {
		result = multierror.Append(result, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := model.GetModel(c.DefaultModel); !ok {
		add("default_model", "unknown model '%s'", c.DefaultModel)
	}

	if c.Providers.TimeoutSecs <= 0 {
		add("providers.timeout_secs", "must be positive, got %d", c.Providers.TimeoutSecs)
	}
	for name, p := range c.providerSections() {
		if p.RequestsPerMinute < 0 {
			add("providers."+name+".requests_per_minute", "must not be negative, got %d", p.RequestsPerMinute)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				add("providers."+name+".base_url", "invalid URL '%s', must be http(s)://host", p.BaseURL)
			}
		}
	}

	switch storage.Backend(c.Storage.Backend) {
	case storage.BackendFile:
		if c.Storage.Dir == "" {
			add("storage.dir", "required for the file backend")
		}
	case storage.BackendSQLite:
		if c.Storage.SQLitePath == "" {
			add("storage.sqlite_path", "required for the sqlite backend")
		}
	case storage.BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			add("storage.postgres_dsn", "required for the postgres backend")
		}
	case storage.BackendMongo:
		if c.Storage.MongoURI == "" {
			add("storage.mongo_uri", "required for the mongo backend")
		}
	case storage.BackendMemory:
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite, postgres, mongo, memory", c.Storage.Backend)
	}
	if c.Storage.Writers <= 0 {
		add("storage.writers", "must be positive, got %d", c.Storage.Writers)
	}
	if c.Storage.WriteTimeoutSecs <= 0 {
		add("storage.write_timeout_secs", "must be positive, got %d", c.Storage.WriteTimeoutSecs)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	if c.UI.Width < 0 {
		add("ui.width", "must not be negative, got %d", c.UI.Width)
	}

	return result.ErrorOrNil()
}

func (c *Config) providerSections() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai": c.Providers.OpenAI,
		"claude": c.Providers.Claude,
		"llama":  c.Providers.Llama,
		"gemini": c.Providers.Gemini,
	}
}

// =============================================================================
// MAPPING
// =============================================================================

// Provider returns the section for p.
func (c *Config) Provider(p model.Provider) ProviderConfig {
	switch p {
	case model.ProviderOpenAI:
		return c.Providers.OpenAI
	case model.ProviderClaude:
		return c.Providers.Claude
	case model.ProviderLlama:
		return c.Providers.Llama
	case model.ProviderGemini:
		return c.Providers.Gemini
	default:
		return ProviderConfig{}
	}
}

// Keys returns every configured API key by provider.
func (c *Config) Keys() map[model.Provider]string {
	keys := make(map[model.Provider]string, 4)
	for _, p := range []model.Provider{model.ProviderOpenAI, model.ProviderClaude, model.ProviderLlama, model.ProviderGemini} {
		if k := c.Provider(p).APIKey; k != "" {
			keys[p] = k
		}
	}
	return keys
}

// ProviderOptions returns adapter options for p.
func (c *Config) ProviderOptions(p model.Provider) provider.Options {
	pc := c.Provider(p)
	return provider.Options{
		BaseURL:           pc.BaseURL,
		RequestsPerMinute: pc.RequestsPerMinute,
		Timeout:           time.Duration(c.Providers.TimeoutSecs) * time.Second,
	}
}

// StorageOptions returns the storage backend selection.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Backend:         storage.Backend(c.Storage.Backend),
		Dir:             c.Storage.Dir,
		SQLitePath:      c.Storage.SQLitePath,
		PostgresDSN:     c.Storage.PostgresDSN,
		MongoURI:        c.Storage.MongoURI,
		MongoDatabase:   c.Storage.MongoDatabase,
		MongoCollection: c.Storage.MongoCollection,
	}
}

// GatewayOptions returns the persistence gateway tuning.
func (c *Config) GatewayOptions() storage.GatewayOptions {
	return storage.GatewayOptions{
		Lanes:        c.Storage.Writers,
		WriteTimeout: time.Duration(c.Storage.WriteTimeoutSecs) * time.Second,
	}
}

// LoggerOptions returns the log handler options.
func (c *Config) LoggerOptions() logger.Options {
	opts := logger.DefaultOptions
	opts.Level = logger.ParseLevel(c.Log.Level)
	opts.NoColor = c.Log.NoColor
	return opts
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String renders the config as TOML with API keys masked.
func (c *Config) String() string {
	masked := c.Clone()
	for _, p := range []*ProviderConfig{&masked.Providers.OpenAI, &masked.Providers.Claude, &masked.Providers.Llama, &masked.Providers.Gemini} {
		p.APIKey = maskKey(p.APIKey)
	}
	masked.Storage.PostgresDSN = maskURL(masked.Storage.PostgresDSN)
	masked.Storage.MongoURI = maskURL(masked.Storage.MongoURI)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(masked); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskURL hides the password in a connection string.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}
