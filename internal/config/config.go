// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	flowerrors "github.com/woakes070048/n8n-flow-manager/pkg/errors"
	"github.com/woakes070048/n8n-flow-manager/pkg/httpclient"
	"github.com/woakes070048/n8n-flow-manager/pkg/orchestrator"
)

// Default values for settings left unset by every source.
const (
	DefaultTimeout        = 30
	DefaultMaxRetries     = 3
	DefaultPollInterval   = 2
	DefaultMaxPollTimeout = 300
	DefaultEnvironment    = "default"
)

// Settings is one set of connection and execution settings. The top level
// of the config file and every named environment share this shape.
type Settings struct {
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// APIKey may be stored in the file, but the keychain is preferred.
	APIKey string `yaml:"api_key,omitempty" json:"-"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	MaxRetries *int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// PollInterval is the execution poll interval in seconds.
	PollInterval int `yaml:"poll_interval,omitempty" json:"poll_interval,omitempty"`

	// MaxPollTimeout bounds run-and-wait in seconds.
	MaxPollTimeout int `yaml:"max_poll_timeout,omitempty" json:"max_poll_timeout,omitempty"`

	// RateLimit caps requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
}

// LogConfig configures CLI logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
}

// File is the on-disk layout of config.yaml.
type File struct {
	Settings `yaml:",inline"`

	// DefaultEnvironment is used when no environment is selected.
	DefaultEnvironment string `yaml:"default_environment,omitempty"`

	Environments map[string]Settings `yaml:"environments,omitempty"`

	Log LogConfig `yaml:"log,omitempty"`

	// HistoryPath overrides the location of the run history database.
	HistoryPath string `yaml:"history_path,omitempty"`
}

// Config is the resolved configuration for one environment.
type Config struct {
	Environment    string        `json:"environment"`
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"-"`
	Timeout        time.Duration `json:"timeout"`
	MaxRetries     int           `json:"max_retries"`
	PollInterval   time.Duration `json:"poll_interval"`
	MaxPollTimeout time.Duration `json:"max_poll_timeout"`
	RateLimit      float64       `json:"rate_limit"`
	Log            LogConfig     `json:"log"`
	HistoryPath    string        `json:"history_path,omitempty"`

	// Source records where each value came from (flag, env, dotenv, file,
	// keychain, default), keyed by setting name.
	Source map[string]string `json:"source"`
}

// Overrides carries values from command-line flags. Empty fields are unset.
type Overrides struct {
	BaseURL string
	APIKey  string
}

// Options controls where Load looks for settings.
type Options struct {
	// Path is the config file. Empty means the default path; a missing
	// default file is not an error.
	Path string

	// Environment selects a named environment. Empty falls back to
	// N8N_ENVIRONMENT, then the file's default_environment.
	Environment string

	// DotEnvPath is the .env file to read. Empty means ".env".
	DotEnvPath string

	Overrides Overrides

	// LookupEnv reads process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// SkipKeychain disables the keychain fallback for the API key.
	SkipKeychain bool
}

// Load resolves the configuration from flags, environment, .env, the
// config file, and the keychain, in that order of precedence.
func Load(opts Options) (*Config, error) {
	cfg, err := resolve(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated resolves the configuration without requiring a base URL
// or API key. Used by commands that only inspect the configuration.
func LoadUnvalidated(opts Options) (*Config, error) {
	return resolve(opts)
}

func resolve(opts Options) (*Config, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	dotenvPath := opts.DotEnvPath
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	dotenv, err := readDotEnv(dotenvPath)
	if err != nil {
		return nil, err
	}

	env := func(key string) (string, string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, "env", true
		}
		if v, ok := dotenv[key]; ok && v != "" {
			return v, "dotenv", true
		}
		return "", "", false
	}

	file, err := ReadFile(opts.Path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:    DefaultEnvironment,
		Timeout:        DefaultTimeout * time.Second,
		MaxRetries:     DefaultMaxRetries,
		PollInterval:   DefaultPollInterval * time.Second,
		MaxPollTimeout: DefaultMaxPollTimeout * time.Second,
		Log:            file.Log,
		HistoryPath:    file.HistoryPath,
		Source:         map[string]string{},
	}

	switch {
	case opts.Environment != "":
		cfg.Environment = opts.Environment
	default:
		if v, _, ok := env("N8N_ENVIRONMENT"); ok {
			cfg.Environment = v
		} else if file.DefaultEnvironment != "" {
			cfg.Environment = file.DefaultEnvironment
		}
	}

	cfg.apply(file.Settings, "file")
	if envSettings, ok := file.Environments[cfg.Environment]; ok {
		cfg.apply(envSettings, "file")
	} else if cfg.Environment != DefaultEnvironment {
		return nil, &flowerrors.ConfigError{
			Key:    "environment",
			Reason: fmt.Sprintf("unknown environment %q (known: %s)", cfg.Environment, strings.Join(file.EnvironmentNames(), ", ")),
		}
	}

	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	if opts.Overrides.BaseURL != "" {
		cfg.BaseURL = opts.Overrides.BaseURL
		cfg.Source["base_url"] = "flag"
	}
	if opts.Overrides.APIKey != "" {
		cfg.APIKey = opts.Overrides.APIKey
		cfg.Source["api_key"] = "flag"
	}

	if cfg.APIKey == "" && !opts.SkipKeychain {
		if key, err := GetAPIKey(cfg.Environment); err == nil && key != "" {
			cfg.APIKey = key
			cfg.Source["api_key"] = "keychain"
		}
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg, nil
}

func (c *Config) apply(s Settings, source string) {
	if s.BaseURL != "" {
		c.BaseURL = s.BaseURL
		c.Source["base_url"] = source
	}
	if s.APIKey != "" {
		c.APIKey = s.APIKey
		c.Source["api_key"] = source
	}
	if s.Timeout != 0 {
		c.Timeout = time.Duration(s.Timeout) * time.Second
		c.Source["timeout"] = source
	}
	if s.MaxRetries != nil {
		c.MaxRetries = *s.MaxRetries
		c.Source["max_retries"] = source
	}
	if s.PollInterval != 0 {
		c.PollInterval = time.Duration(s.PollInterval) * time.Second
		c.Source["poll_interval"] = source
	}
	if s.MaxPollTimeout != 0 {
		c.MaxPollTimeout = time.Duration(s.MaxPollTimeout) * time.Second
		c.Source["max_poll_timeout"] = source
	}
	if s.RateLimit != 0 {
		c.RateLimit = s.RateLimit
		c.Source["rate_limit"] = source
	}
}

// applyEnv overlays N8N_* and LOG_* variables.
func (c *Config) applyEnv(env func(string) (string, string, bool)) error {
	if v, src, ok := env("N8N_BASE_URL"); ok {
		c.BaseURL = v
		c.Source["base_url"] = src
	}
	if v, src, ok := env("N8N_API_KEY"); ok {
		c.APIKey = v
		c.Source["api_key"] = src
	}

	seconds := []struct {
		envKey string
		key    string
		dst    *time.Duration
	}{
		{"N8N_TIMEOUT", "timeout", &c.Timeout},
		{"N8N_POLL_INTERVAL", "poll_interval", &c.PollInterval},
		{"N8N_MAX_POLL_TIMEOUT", "max_poll_timeout", &c.MaxPollTimeout},
	}
	for _, s := range seconds {
		v, src, ok := env(s.envKey)
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &flowerrors.ConfigError{Key: s.key, Reason: fmt.Sprintf("%s must be a number of seconds, got %q", s.envKey, v), Cause: err}
		}
		*s.dst = time.Duration(n * float64(time.Second))
		c.Source[s.key] = src
	}

	if v, src, ok := env("N8N_MAX_RETRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &flowerrors.ConfigError{Key: "max_retries", Reason: fmt.Sprintf("N8N_MAX_RETRIES must be an integer, got %q", v), Cause: err}
		}
		c.MaxRetries = n
		c.Source["max_retries"] = src
	}
	if v, src, ok := env("N8N_RATE_LIMIT"); ok {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &flowerrors.ConfigError{Key: "rate_limit", Reason: fmt.Sprintf("N8N_RATE_LIMIT must be a number, got %q", v), Cause: err}
		}
		c.RateLimit = n
		c.Source["rate_limit"] = src
	}

	if v, _, ok := env("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, _, ok := env("LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, _, ok := env("N8N_HISTORY_PATH"); ok {
		c.HistoryPath = v
	}
	return nil
}

// Validate checks that the configuration can build a client.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return &flowerrors.ConfigError{Key: "base_url", Reason: "base URL is required"}
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return &flowerrors.ConfigError{Key: "base_url", Reason: fmt.Sprintf("base URL must start with http:// or https://, got %q", c.BaseURL)}
	}
	if c.APIKey == "" {
		return &flowerrors.ConfigError{Key: "api_key", Reason: "API key is required"}
	}
	if c.Timeout <= 0 {
		return &flowerrors.ConfigError{Key: "timeout", Reason: fmt.Sprintf("timeout must be positive, got %v", c.Timeout)}
	}
	if c.MaxRetries < 0 {
		return &flowerrors.ConfigError{Key: "max_retries", Reason: fmt.Sprintf("max_retries must be >= 0, got %d", c.MaxRetries)}
	}
	if c.PollInterval <= 0 {
		return &flowerrors.ConfigError{Key: "poll_interval", Reason: fmt.Sprintf("poll_interval must be positive, got %v", c.PollInterval)}
	}
	if c.MaxPollTimeout <= 0 {
		return &flowerrors.ConfigError{Key: "max_poll_timeout", Reason: fmt.Sprintf("max_poll_timeout must be positive, got %v", c.MaxPollTimeout)}
	}
	if c.RateLimit < 0 {
		return &flowerrors.ConfigError{Key: "rate_limit", Reason: fmt.Sprintf("rate_limit must be >= 0, got %v", c.RateLimit)}
	}
	return nil
}

// HTTPConfig converts the settings into transport configuration.
func (c *Config) HTTPConfig() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = c.Timeout
	hc.RetryAttempts = c.MaxRetries
	hc.RateLimit = c.RateLimit
	return hc
}

// RunOptions returns the orchestrator defaults for this configuration.
func (c *Config) RunOptions() orchestrator.Options {
	return orchestrator.Options{
		Timeout:      c.MaxPollTimeout,
		PollInterval: c.PollInterval,
	}
}

func readDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &flowerrors.ConfigError{Key: "dotenv", Reason: fmt.Sprintf("failed to read %s", path), Cause: err}
	}
	return values, nil
}

// ReadFile loads the config file, or the default one when path is empty.
// A missing default file yields an empty File.
func ReadFile(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return &File{}, nil
		}
		path = p
	}
	path = expandHome(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &File{}, nil
		}
		return nil, &flowerrors.ConfigError{
			Key:    "config_file",
			Reason: fmt.Sprintf("failed to load from %s", path),
			Cause:  err,
		}
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &flowerrors.ConfigError{
			Key:    "config_file",
			Reason: fmt.Sprintf("failed to parse YAML in %s", path),
			Cause:  err,
		}
	}
	return &f, nil
}

// WriteFile saves f to path with owner-only permissions.
func WriteFile(path string, f *File) error {
	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// EnvironmentNames returns the named environments, sorted.
func (f *File) EnvironmentNames() []string {
	names := make([]string, 0, len(f.Environments))
	for name := range f.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
