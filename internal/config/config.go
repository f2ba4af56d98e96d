// Package config provides configuration management for parley.
// Settings come from ~/.parley/config.yaml with environment overrides;
// Get returns a cached snapshot that Reload and the watcher refresh.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the HTTP port the worker binds to.
	DefaultWorkerPort = 38950

	// DefaultModel is the generation backend model.
	DefaultModel = "gemini-2.0-flash"

	// DefaultGenerateTimeoutSecs bounds one generation call, buffered or
	// streamed. A stream that never terminates within this window is an
	// upstream error, not a hang.
	DefaultGenerateTimeoutSecs = 120

	DefaultMaxConns        = 4
	DefaultMaxOutputTokens = 4096
)

// Config holds all runtime settings.
type Config struct {
	WorkerPort          int    `yaml:"workerPort"`
	Model               string `yaml:"model"`
	BackendBaseURL      string `yaml:"backendBaseUrl"`
	APIKey              string `yaml:"apiKey"`
	MaxOutputTokens     int    `yaml:"maxOutputTokens"`
	GenerateTimeoutSecs int    `yaml:"generateTimeoutSecs"`
	MaxConns            int    `yaml:"maxConns"`
	// PublicBaseURL is the externally reachable base used in capsule
	// share URLs.
	PublicBaseURL string `yaml:"publicBaseUrl"`
	LogLevel      string `yaml:"logLevel"`
}

// GenerateTimeout returns the generation deadline as a duration.
func (c *Config) GenerateTimeout() time.Duration {
	secs := c.GenerateTimeoutSecs
	if secs <= 0 {
		secs = DefaultGenerateTimeoutSecs
	}
	return time.Duration(secs) * time.Second
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		WorkerPort:          DefaultWorkerPort,
		Model:               DefaultModel,
		// The client's URL template expects the API version on the base.
		BackendBaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		MaxOutputTokens:     DefaultMaxOutputTokens,
		GenerateTimeoutSecs: DefaultGenerateTimeoutSecs,
		MaxConns:            DefaultMaxConns,
		PublicBaseURL:       "http://localhost:" + strconv.Itoa(DefaultWorkerPort),
		LogLevel:            "info",
	}
}

// DataDir returns the parley data directory (~/.parley).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".parley")
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "parley.db")
}

// ConfigPath returns the YAML settings file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Load reads the settings file and applies environment overrides. A
// missing or unreadable file is not an error; defaults apply.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ConfigPath())
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Warn().Err(err).Str("path", ConfigPath()).Msg("Invalid config file, using defaults")
			cfg = Default()
		}
	}

	applyEnv(cfg)
	normalize(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PARLEY_WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.WorkerPort = port
		}
	}
	if v := os.Getenv("PARLEY_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("PARLEY_API_KEY"); v != "" {
		cfg.APIKey = v
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.APIKey == "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("PARLEY_PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("PARLEY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func normalize(cfg *Config) {
	if cfg.WorkerPort <= 0 {
		cfg.WorkerPort = DefaultWorkerPort
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:" + strconv.Itoa(cfg.WorkerPort)
	}
}

var (
	cached   *Config
	cachedMu sync.RWMutex
)

// Get returns the cached configuration, loading it on first use.
func Get() *Config {
	cachedMu.RLock()
	if cached != nil {
		defer cachedMu.RUnlock()
		return cached
	}
	cachedMu.RUnlock()

	cfg, _ := Load()
	cachedMu.Lock()
	defer cachedMu.Unlock()
	if cached == nil {
		cached = cfg
	}
	return cached
}

// Reload re-reads the settings file and replaces the cached snapshot.
func Reload() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	cachedMu.Lock()
	cached = cfg
	cachedMu.Unlock()
	return cfg, nil
}

// reset clears the cache. Test hook.
func reset() {
	cachedMu.Lock()
	cached = nil
	cachedMu.Unlock()
}
