package testutils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/topiga/currency/internal/config"
	"github.com/topiga/currency/internal/logger"
)

// SampleRates is the document used by most tests: USD base, EUR at 0.9.
const SampleRates = `{"base":"USD","timestamp":1700000000,"rates":{"USD":1.0,"EUR":0.9,"GBP":0.75,"JPY":150.0}}`

// MockLogger creates a logger that discards output
func MockLogger() *logrus.Logger {
	return logger.Discard()
}

// MockConfig creates a configuration rooted at a temporary home directory
// and pointed at baseURL.
func MockConfig(t testing.TB, baseURL string) *config.Config {
	t.Helper()
	home := t.TempDir()
	return &config.Config{
		HomeDir:   home,
		CachePath: filepath.Join(home, config.DefaultCacheFile),
		LogLevel:  "debug",

		ExchangeRateProvider: config.ExchangeRateProvider{
			Name:       "test-provider",
			BaseURL:    baseURL,
			APIKey:     "test-api-key",
			Timeout:    2 * time.Second,
			RetryCount: 1,
			RetryDelay: time.Millisecond,
		},

		Port:            "0",
		RefreshSchedule: "@every 1h",

		RateLimitEnabled:  false,
		RateLimitRequests: 100,
		RateLimitWindow:   60 * time.Second,
		RateLimitBurst:    10,
	}
}

// WriteCacheFile writes content to path and sets its modification time to
// age before now.
func WriteCacheFile(t testing.TB, path, content string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create cache dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write cache file: %v", err)
	}
	modTime := time.Now().Add(-age)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("set cache mtime: %v", err)
	}
}

// MockExchangeRateServer is an httptest server standing in for the rates API.
type MockExchangeRateServer struct {
	server *httptest.Server

	mu         sync.Mutex
	body       string
	statusCode int
	delay      time.Duration
	lastQuery  string

	requests atomic.Int64
}

// NewMockExchangeRateServer starts a server answering with SampleRates.
func NewMockExchangeRateServer() *MockExchangeRateServer {
	mock := &MockExchangeRateServer{
		body:       SampleRates,
		statusCode: http.StatusOK,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handler))
	return mock
}

func (m *MockExchangeRateServer) handler(w http.ResponseWriter, r *http.Request) {
	m.requests.Add(1)

	m.mu.Lock()
	body, statusCode, delay := m.body, m.statusCode, m.delay
	m.lastQuery = r.URL.RawQuery
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write([]byte(body))
}

// SetResponse changes the status and body returned to later requests.
func (m *MockExchangeRateServer) SetResponse(statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = statusCode
	m.body = body
}

// SetDelay makes each request wait before answering.
func (m *MockExchangeRateServer) SetDelay(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Requests returns how many requests the server has received.
func (m *MockExchangeRateServer) Requests() int {
	return int(m.requests.Load())
}

// LastQuery returns the raw query string of the latest request.
func (m *MockExchangeRateServer) LastQuery() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

// URL returns the endpoint to configure as BaseURL.
func (m *MockExchangeRateServer) URL() string {
	return m.server.URL + "/api/latest.json"
}

// Close shuts the server down
func (m *MockExchangeRateServer) Close() {
	m.server.Close()
}
