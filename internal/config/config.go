package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingHome is returned when the home directory variable is unset.
var ErrMissingHome = errors.New("could not find $HOME environment variable")

const (
	// DefaultBaseURL is the Open Exchange Rates endpoint serving USD-based rates.
	DefaultBaseURL = "https://openexchangerates.org/api/latest.json"

	// DefaultCacheFile is the cache location relative to the home directory.
	DefaultCacheFile = ".cache/currency.db"

	// DefaultConfigFile is the YAML config location relative to the home directory.
	DefaultConfigFile = ".config/currency/config.yaml"
)

// ExchangeRateProvider holds the remote endpoint settings
type ExchangeRateProvider struct {
	Name       string
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int // additional attempts after the first
	RetryDelay time.Duration
}

// Config holds all configuration for the application
type Config struct {
	HomeDir   string
	CachePath string
	LogLevel  string

	ExchangeRateProvider ExchangeRateProvider

	// Server mode
	Port            string
	RefreshSchedule string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitBurst    int
}

// fileConfig mirrors the YAML config file layout. Pointer fields distinguish
// "unset" from zero values so the file only overrides what it names.
type fileConfig struct {
	CacheFile string `yaml:"cache_file"`
	LogLevel  string `yaml:"log_level"`

	Provider struct {
		BaseURL        string `yaml:"base_url"`
		APIKey         string `yaml:"api_key"`
		TimeoutSeconds *int   `yaml:"timeout_seconds"`
		RetryCount     *int   `yaml:"retry_count"`
		RetryDelaySecs *int   `yaml:"retry_delay_seconds"`
	} `yaml:"provider"`

	Server struct {
		Port            string `yaml:"port"`
		RefreshSchedule string `yaml:"refresh_schedule"`
	} `yaml:"server"`

	RateLimit struct {
		Enabled       *bool `yaml:"enabled"`
		Requests      *int  `yaml:"requests"`
		WindowSeconds *int  `yaml:"window_seconds"`
		Burst         *int  `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// Load builds the configuration from the process environment.
func Load() (*Config, error) {
	return LoadWithLookup(os.LookupEnv)
}

// LoadWithLookup builds the configuration using lookupEnv for variable access.
// Values from a .env file in the working directory fill in variables the
// environment does not set. A YAML config file sits beneath both.
func LoadWithLookup(lookupEnv func(string) (string, bool)) (*Config, error) {
	dotenv, _ := godotenv.Read()
	env := envSource{lookup: lookupEnv, dotenv: dotenv}

	// An empty HOME is accepted; paths then resolve against the working directory.
	homeDir, ok := lookupEnv("HOME")
	if !ok {
		homeDir, ok = dotenv["HOME"]
	}
	if !ok {
		return nil, ErrMissingHome
	}

	cfg := defaults(homeDir)

	configPath := env.get("CURRENCY_CONFIG_FILE", filepath.Join(homeDir, DefaultConfigFile))
	if err := cfg.applyFile(configPath); err != nil {
		return nil, err
	}

	cfg.applyEnv(env)
	return cfg, nil
}

func defaults(homeDir string) *Config {
	return &Config{
		HomeDir:   homeDir,
		CachePath: filepath.Join(homeDir, DefaultCacheFile),
		LogLevel:  "warn",

		ExchangeRateProvider: ExchangeRateProvider{
			Name:       "openexchangerates",
			BaseURL:    DefaultBaseURL,
			Timeout:    10 * time.Second,
			RetryCount: 1,
			RetryDelay: 1 * time.Second,
		},

		Port:            "8081",
		RefreshSchedule: "@every 1h",

		RateLimitEnabled:  true,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,
	}
}

// applyFile overlays the YAML config file. A missing file is not an error.
func (cfg *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if file.CacheFile != "" {
		cfg.CachePath = cfg.resolvePath(file.CacheFile)
	}
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}

	provider := &cfg.ExchangeRateProvider
	if file.Provider.BaseURL != "" {
		provider.BaseURL = file.Provider.BaseURL
	}
	if file.Provider.APIKey != "" {
		provider.APIKey = file.Provider.APIKey
	}
	if file.Provider.TimeoutSeconds != nil {
		provider.Timeout = time.Duration(*file.Provider.TimeoutSeconds) * time.Second
	}
	if file.Provider.RetryCount != nil {
		provider.RetryCount = *file.Provider.RetryCount
	}
	if file.Provider.RetryDelaySecs != nil {
		provider.RetryDelay = time.Duration(*file.Provider.RetryDelaySecs) * time.Second
	}

	if file.Server.Port != "" {
		cfg.Port = file.Server.Port
	}
	if file.Server.RefreshSchedule != "" {
		cfg.RefreshSchedule = file.Server.RefreshSchedule
	}

	if file.RateLimit.Enabled != nil {
		cfg.RateLimitEnabled = *file.RateLimit.Enabled
	}
	if file.RateLimit.Requests != nil {
		cfg.RateLimitRequests = *file.RateLimit.Requests
	}
	if file.RateLimit.WindowSeconds != nil {
		cfg.RateLimitWindow = time.Duration(*file.RateLimit.WindowSeconds) * time.Second
	}
	if file.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *file.RateLimit.Burst
	}

	return nil
}

func (cfg *Config) applyEnv(env envSource) {
	if path := env.get("CURRENCY_CACHE_FILE", ""); path != "" {
		cfg.CachePath = cfg.resolvePath(path)
	}
	cfg.LogLevel = env.get("LOG_LEVEL", cfg.LogLevel)

	provider := &cfg.ExchangeRateProvider
	provider.BaseURL = env.get("OPEN_EXCHANGE_RATES_BASE_URL", provider.BaseURL)
	provider.APIKey = env.get("OPEN_EXCHANGE_RATES_API_KEY", provider.APIKey)
	provider.Timeout = env.getSeconds("OPEN_EXCHANGE_RATES_TIMEOUT", provider.Timeout)
	provider.RetryCount = env.getInt("OPEN_EXCHANGE_RATES_RETRY_COUNT", provider.RetryCount)
	provider.RetryDelay = env.getSeconds("OPEN_EXCHANGE_RATES_RETRY_DELAY", provider.RetryDelay)

	cfg.Port = env.get("PORT", cfg.Port)
	cfg.RefreshSchedule = env.get("RATES_REFRESH_SCHEDULE", cfg.RefreshSchedule)

	if enabled := env.get("RATE_LIMIT_ENABLED", ""); enabled != "" {
		cfg.RateLimitEnabled = enabled == "true"
	}
	cfg.RateLimitRequests = env.getInt("RATE_LIMIT_REQUESTS", cfg.RateLimitRequests)
	cfg.RateLimitWindow = env.getSeconds("RATE_LIMIT_WINDOW_SECONDS", cfg.RateLimitWindow)
	cfg.RateLimitBurst = env.getInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)
}

// resolvePath anchors relative paths at the home directory.
func (cfg *Config) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.HomeDir, path)
}

// envSource reads variables from the environment first, then the .env file.
type envSource struct {
	lookup func(string) (string, bool)
	dotenv map[string]string
}

// get gets a variable with a fallback value
func (env envSource) get(key, fallback string) string {
	if value, ok := env.lookup(key); ok && value != "" {
		return value
	}
	if value := env.dotenv[key]; value != "" {
		return value
	}
	return fallback
}

// getInt keeps the fallback when the value is not an integer
func (env envSource) getInt(key string, fallback int) int {
	value, err := strconv.Atoi(env.get(key, ""))
	if err != nil {
		return fallback
	}
	return value
}

func (env envSource) getSeconds(key string, fallback time.Duration) time.Duration {
	value, err := strconv.Atoi(env.get(key, ""))
	if err != nil {
		return fallback
	}
	return time.Duration(value) * time.Second
}
