package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FreshnessWindow is how long a fetched document is reused before refreshing.
const FreshnessWindow = time.Hour

// FileCache is the rate document stored at Path.
type FileCache struct {
	path string
	now  func() time.Time
}

// NewFileCache creates a cache backed by the file at path.
func NewFileCache(path string) *FileCache {
	return &FileCache{path: path, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (c *FileCache) WithClock(now func() time.Time) *FileCache {
	c.now = now
	return c
}

// Path returns the cache file location.
func (c *FileCache) Path() string {
	return c.path
}

// Age returns how long ago the file was last modified.
func (c *FileCache) Age() (time.Duration, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return 0, err
	}
	return c.now().Sub(info.ModTime()), nil
}

// IsFresh reports whether the file exists and was modified within the
// freshness window. Any stat failure counts as stale.
func (c *FileCache) IsFresh() bool {
	age, err := c.Age()
	if err != nil {
		return false
	}
	return age >= 0 && age < FreshnessWindow
}

// Read returns the full contents of the cache file.
func (c *FileCache) Read() ([]byte, error) {
	return os.ReadFile(c.path)
}

// Write replaces the cache file contents with body, creating parent
// directories as needed.
func (c *FileCache) Write(body []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(c.path, body, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}

// FormatAge renders an age the way status output shows it (e.g. "5m", "2h30m").
func FormatAge(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh%dm", hours, minutes)
}
