package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lookupFrom returns an env lookup backed by a fixed map.
func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := vars[key]
		return value, ok
	}
}

func TestLoad(t *testing.T) {
	home := t.TempDir()

	tests := []struct {
		name     string
		envVars  map[string]string
		expected func(t *testing.T, cfg *Config)
	}{
		{
			name:    "default configuration",
			envVars: map[string]string{"HOME": home},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, home, cfg.HomeDir)
				assert.Equal(t, filepath.Join(home, ".cache", "currency.db"), cfg.CachePath)
				assert.Equal(t, "warn", cfg.LogLevel)
				assert.Equal(t, "8081", cfg.Port)
				assert.Equal(t, "@every 1h", cfg.RefreshSchedule)
				assert.Equal(t, DefaultBaseURL, cfg.ExchangeRateProvider.BaseURL)
				assert.Empty(t, cfg.ExchangeRateProvider.APIKey)
				assert.Equal(t, 10*time.Second, cfg.ExchangeRateProvider.Timeout)
				assert.Equal(t, 1, cfg.ExchangeRateProvider.RetryCount)
				assert.Equal(t, time.Second, cfg.ExchangeRateProvider.RetryDelay)
				assert.True(t, cfg.RateLimitEnabled)
				assert.Equal(t, 100, cfg.RateLimitRequests)
				assert.Equal(t, 60*time.Second, cfg.RateLimitWindow)
				assert.Equal(t, 10, cfg.RateLimitBurst)
			},
		},
		{
			name: "custom configuration",
			envVars: map[string]string{
				"HOME":                            home,
				"LOG_LEVEL":                       "debug",
				"PORT":                            "9090",
				"CURRENCY_CACHE_FILE":             "rates.json",
				"OPEN_EXCHANGE_RATES_API_KEY":     "secret",
				"OPEN_EXCHANGE_RATES_BASE_URL":    "http://localhost/latest.json",
				"OPEN_EXCHANGE_RATES_TIMEOUT":     "3",
				"OPEN_EXCHANGE_RATES_RETRY_COUNT": "0",
				"OPEN_EXCHANGE_RATES_RETRY_DELAY": "2",
				"RATE_LIMIT_ENABLED":              "false",
				"RATE_LIMIT_REQUESTS":             "200",
				"RATE_LIMIT_WINDOW_SECONDS":       "120",
				"RATE_LIMIT_BURST":                "20",
				"RATES_REFRESH_SCHEDULE":          "@every 30m",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "9090", cfg.Port)
				assert.Equal(t, filepath.Join(home, "rates.json"), cfg.CachePath)
				assert.Equal(t, "secret", cfg.ExchangeRateProvider.APIKey)
				assert.Equal(t, "http://localhost/latest.json", cfg.ExchangeRateProvider.BaseURL)
				assert.Equal(t, 3*time.Second, cfg.ExchangeRateProvider.Timeout)
				assert.Equal(t, 0, cfg.ExchangeRateProvider.RetryCount)
				assert.Equal(t, 2*time.Second, cfg.ExchangeRateProvider.RetryDelay)
				assert.False(t, cfg.RateLimitEnabled)
				assert.Equal(t, 200, cfg.RateLimitRequests)
				assert.Equal(t, 120*time.Second, cfg.RateLimitWindow)
				assert.Equal(t, 20, cfg.RateLimitBurst)
				assert.Equal(t, "@every 30m", cfg.RefreshSchedule)
			},
		},
		{
			name: "invalid integers keep defaults",
			envVars: map[string]string{
				"HOME":                            home,
				"OPEN_EXCHANGE_RATES_TIMEOUT":     "soon",
				"OPEN_EXCHANGE_RATES_RETRY_COUNT": "many",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10*time.Second, cfg.ExchangeRateProvider.Timeout)
				assert.Equal(t, 1, cfg.ExchangeRateProvider.RetryCount)
			},
		},
		{
			name: "absolute cache path is kept",
			envVars: map[string]string{
				"HOME":                home,
				"CURRENCY_CACHE_FILE": "/var/tmp/currency.db",
			},
			expected: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/var/tmp/currency.db", cfg.CachePath)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithLookup(lookupFrom(tt.envVars))
			require.NoError(t, err)
			tt.expected(t, cfg)
		})
	}
}

func TestLoad_MissingHome(t *testing.T) {
	_, err := LoadWithLookup(lookupFrom(map[string]string{}))
	assert.ErrorIs(t, err, ErrMissingHome)
}

func TestLoad_EmptyHome(t *testing.T) {
	cfg, err := LoadWithLookup(lookupFrom(map[string]string{"HOME": ""}))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.HomeDir)
	assert.Equal(t, filepath.Join(".cache", "currency.db"), cfg.CachePath)
}

func TestLoad_HomeFromDotenv(t *testing.T) {
	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HOME="+home+"\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadWithLookup(lookupFrom(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".cache", "currency.db"), cfg.CachePath)
}

func TestLoad_ConfigFile(t *testing.T) {
	home := t.TempDir()
	configPath := filepath.Join(home, DefaultConfigFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0o755))

	content := `
cache_file: data/rates.db
log_level: info
provider:
  api_key: from-file
  timeout_seconds: 5
  retry_count: 0
server:
  port: "7070"
rate_limit:
  enabled: false
  burst: 3
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := LoadWithLookup(lookupFrom(map[string]string{"HOME": home}))
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(home, "data", "rates.db"), cfg.CachePath)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "from-file", cfg.ExchangeRateProvider.APIKey)
		assert.Equal(t, 5*time.Second, cfg.ExchangeRateProvider.Timeout)
		assert.Equal(t, 0, cfg.ExchangeRateProvider.RetryCount)
		assert.Equal(t, "7070", cfg.Port)
		assert.False(t, cfg.RateLimitEnabled)
		assert.Equal(t, 3, cfg.RateLimitBurst)
		assert.Equal(t, 100, cfg.RateLimitRequests)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		cfg, err := LoadWithLookup(lookupFrom(map[string]string{
			"HOME":                        home,
			"OPEN_EXCHANGE_RATES_API_KEY": "from-env",
			"RATE_LIMIT_ENABLED":          "true",
		}))
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.ExchangeRateProvider.APIKey)
		assert.True(t, cfg.RateLimitEnabled)
	})

	t.Run("explicit config path", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "other.yaml")
		require.NoError(t, os.WriteFile(other, []byte("log_level: error\n"), 0o600))

		cfg, err := LoadWithLookup(lookupFrom(map[string]string{
			"HOME":                 home,
			"CURRENCY_CONFIG_FILE": other,
		}))
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.LogLevel)
		assert.Empty(t, cfg.ExchangeRateProvider.APIKey, "default file is not read when another is named")
	})
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unterminated"), 0o600))

	_, err := LoadWithLookup(lookupFrom(map[string]string{
		"HOME":                 home,
		"CURRENCY_CONFIG_FILE": path,
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestEnvSource(t *testing.T) {
	env := envSource{
		lookup: lookupFrom(map[string]string{"SET": "env", "EMPTY": ""}),
		dotenv: map[string]string{"SET": "dotenv", "ONLY_DOTENV": "dotenv", "EMPTY": "dotenv"},
	}

	assert.Equal(t, "env", env.get("SET", "fallback"))
	assert.Equal(t, "dotenv", env.get("ONLY_DOTENV", "fallback"))
	assert.Equal(t, "dotenv", env.get("EMPTY", "fallback"))
	assert.Equal(t, "fallback", env.get("MISSING", "fallback"))
	assert.Equal(t, 7, env.getInt("MISSING", 7))
	assert.Equal(t, 4*time.Second, env.getSeconds("MISSING", 4*time.Second))
}
