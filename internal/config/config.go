// Copyright (c) 2025 Nostria
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.nostria/config.toml
//   - ~/.nostria/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/nostria-app/nostria-go/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete application configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Relay transport configuration
	Relays RelayConfig `toml:"relays" json:"relays"`

	// Media server configuration
	Media MediaConfig `toml:"media" json:"media"`

	// Account and key storage configuration
	Account AccountConfig `toml:"account" json:"account"`

	// Feed configuration
	Feed FeedConfig `toml:"feed" json:"feed"`

	// Settings sync configuration
	Sync SyncConfig `toml:"sync" json:"sync"`

	// Calendar configuration
	Calendar CalendarConfig `toml:"calendar" json:"calendar"`

	// Debug enables verbose logging
	Debug bool `toml:"debug" json:"debug"`
}

// RelayConfig contains relay transport configuration.
type RelayConfig struct {
	// Read is the list of relays to subscribe on
	Read []string `toml:"read" json:"read"`
	// Write is the list of relays to publish to
	Write []string `toml:"write" json:"write"`
	// PublishTimeoutSecs bounds how long Publish waits for an OK
	PublishTimeoutSecs int `toml:"publish_timeout_secs" json:"publish_timeout_secs"`
}

// MediaConfig contains media server configuration.
type MediaConfig struct {
	// Servers is the list of Blossom-style media servers
	Servers []string `toml:"servers" json:"servers"`
	// MaxUploadMB is the largest blob Upload will send
	MaxUploadMB int `toml:"max_upload_mb" json:"max_upload_mb"`
}

// AccountConfig contains identity configuration.
type AccountConfig struct {
	// KeysPath is the key file location (empty = ~/.nostria/keys.json)
	KeysPath string `toml:"keys_path" json:"keys_path"`
}

// FeedConfig contains feed configuration.
type FeedConfig struct {
	// PageSize is the subscription limit per column
	PageSize int `toml:"page_size" json:"page_size"`
	// MaxBuffered caps the in-memory timeline length
	MaxBuffered int `toml:"max_buffered" json:"max_buffered"`
}

// SyncConfig contains settings sync configuration.
type SyncConfig struct {
	// DebounceMs is the quiet interval before settings are written
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms"`
	// MaxLatencyMs bounds how long a write can be deferred
	MaxLatencyMs int `toml:"max_latency_ms" json:"max_latency_ms"`
}

// CalendarConfig contains calendar configuration.
type CalendarConfig struct {
	// System is the display calendar: "gregorian", "ethiopian", "chronia"
	System string `toml:"system" json:"system"`
	// View is the default layout: "month", "week", "agenda"
	View string `toml:"view" json:"view"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Relays: RelayConfig{
			Read:               []string{"wss://relay.damus.io", "wss://nos.lol"},
			Write:              []string{"wss://relay.damus.io", "wss://nos.lol"},
			PublishTimeoutSecs: 15,
		},

		Media: MediaConfig{
			Servers:     nil,
			MaxUploadMB: 100,
		},

		Account: AccountConfig{
			KeysPath: "",
		},

		Feed: FeedConfig{
			PageSize:    50,
			MaxBuffered: 1000,
		},

		Sync: SyncConfig{
			DebounceMs:   500,
			MaxLatencyMs: 5000,
		},

		Calendar: CalendarConfig{
			System: "gregorian",
			View:   "month",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the application configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nostria"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files should be 0600 since the key file path lives next to them.
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

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err = finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// finishLoad applies env overrides, defaults, and validation.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finishLoad(cfg)
}

// SetDefaults fills in any missing values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if len(c.Relays.Read) == 0 {
		c.Relays.Read = defaults.Relays.Read
	}
	if len(c.Relays.Write) == 0 {
		c.Relays.Write = defaults.Relays.Write
	}
	if c.Relays.PublishTimeoutSecs <= 0 {
		c.Relays.PublishTimeoutSecs = defaults.Relays.PublishTimeoutSecs
	}
	if c.Media.MaxUploadMB <= 0 {
		c.Media.MaxUploadMB = defaults.Media.MaxUploadMB
	}
	if c.Feed.PageSize <= 0 {
		c.Feed.PageSize = defaults.Feed.PageSize
	}
	if c.Feed.MaxBuffered <= 0 {
		c.Feed.MaxBuffered = defaults.Feed.MaxBuffered
	}
	if c.Sync.DebounceMs <= 0 {
		c.Sync.DebounceMs = defaults.Sync.DebounceMs
	}
	if c.Sync.MaxLatencyMs <= 0 {
		c.Sync.MaxLatencyMs = defaults.Sync.MaxLatencyMs
	}
	if c.Calendar.System == "" {
		c.Calendar.System = defaults.Calendar.System
	}
	if c.Calendar.View == "" {
		c.Calendar.View = defaults.Calendar.View
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# nostria configuration file")
	fmt.Fprintln(file, "# Generated by nostria - edit with care")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file. The write is atomic
// so a crash cannot leave a truncated config behind.
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
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

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// validCalendarSystems are the calendar systems the UI can display.
var validCalendarSystems = map[string]bool{
	"gregorian": true,
	"ethiopian": true,
	"chronia":   true,
}

// validCalendarViews are the supported calendar layouts.
var validCalendarViews = map[string]bool{
	"month":  true,
	"week":   true,
	"agenda": true,
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	for _, list := range []struct {
		field string
		urls  []string
	}{
		{"relays.read", c.Relays.Read},
		{"relays.write", c.Relays.Write},
	} {
		for _, raw := range list.urls {
			if err := validateRelayURL(raw); err != nil {
				errs = append(errs, ValidationError{
					Field:   list.field,
					Message: err.Error(),
				})
			}
		}
	}

	for _, raw := range c.Media.Servers {
		if err := validateMediaURL(raw); err != nil {
			errs = append(errs, ValidationError{
				Field:   "media.servers",
				Message: err.Error(),
			})
		}
	}

	if c.Relays.PublishTimeoutSecs < 1 || c.Relays.PublishTimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "relays.publish_timeout_secs",
			Message: fmt.Sprintf("must be 1-300 seconds, got %d", c.Relays.PublishTimeoutSecs),
		})
	}

	if !validCalendarSystems[strings.ToLower(c.Calendar.System)] {
		errs = append(errs, ValidationError{
			Field:   "calendar.system",
			Message: fmt.Sprintf("invalid system '%s', must be one of: gregorian, ethiopian, chronia", c.Calendar.System),
		})
	}
	if !validCalendarViews[strings.ToLower(c.Calendar.View)] {
		errs = append(errs, ValidationError{
			Field:   "calendar.view",
			Message: fmt.Sprintf("invalid view '%s', must be one of: month, week, agenda", c.Calendar.View),
		})
	}

	if c.Sync.MaxLatencyMs < c.Sync.DebounceMs {
		errs = append(errs, ValidationError{
			Field:   "sync.max_latency_ms",
			Message: fmt.Sprintf("must be at least debounce_ms (%d), got %d", c.Sync.DebounceMs, c.Sync.MaxLatencyMs),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// validateRelayURL requires a ws or wss URL with a host.
func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("relay URL %q must use ws or wss", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("relay URL %q has no host", raw)
	}
	return nil
}

// validateMediaURL requires an http or https URL with a host.
func validateMediaURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("media URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("media URL %q has no host", raw)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - NOSTRIA_RELAYS: comma-separated relay URLs (overrides read and write)
//   - NOSTRIA_MEDIA_SERVERS: comma-separated media server URLs
//   - NOSTRIA_KEYS_PATH: overrides account.keys_path
//   - NOSTRIA_CALENDAR: overrides calendar.system
//   - NOSTRIA_DEBUG: set to "1" or "true" to enable debug logging
func (c *Config) ApplyEnvOverrides() {
	if relays := os.Getenv("NOSTRIA_RELAYS"); relays != "" {
		urls := splitList(relays)
		c.Relays.Read = urls
		c.Relays.Write = urls
	}

	if servers := os.Getenv("NOSTRIA_MEDIA_SERVERS"); servers != "" {
		c.Media.Servers = splitList(servers)
	}

	if path := os.Getenv("NOSTRIA_KEYS_PATH"); path != "" {
		c.Account.KeysPath = path
	}

	if system := os.Getenv("NOSTRIA_CALENDAR"); system != "" {
		c.Calendar.System = system
	}

	if debug := os.Getenv("NOSTRIA_DEBUG"); debug != "" {
		c.Debug = debug == "1" || strings.ToLower(debug) == "true"
	}
}

// splitList splits a comma-separated env value, trimming blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g., "calendar.system").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field.Interface(), nil
		}
		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}
	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation
// (e.g., "calendar.system").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}
		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}
	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with
// type conversion for string inputs.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(strVal == "1" || lower == "true" || lower == "yes")
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				field.Set(reflect.ValueOf(splitList(strVal)))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// CLONE AND STRING
// =============================================================================

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Relays.Read = append([]string(nil), c.Relays.Read...)
	clone.Relays.Write = append([]string(nil), c.Relays.Write...)
	clone.Media.Servers = append([]string(nil), c.Media.Servers...)
	return &clone
}

// String returns a string representation of the config for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
