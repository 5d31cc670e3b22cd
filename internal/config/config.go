// Package config defines process configuration and its loading.
//
// Values are layered: defaults from New, then an optional YAML file named by
// GOPOSTER_CONFIG, then GOPOSTER_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Defaults.
const (
	DefaultAddr           = ":8080"
	DefaultOutputDir      = "."
	DefaultJPEGQuality    = 92
	DefaultMaxAvatarBytes = 2 << 20
	DefaultSessionTTL     = 30 * time.Minute
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr is the HTTP listen address of the editor server.
	Addr string `koanf:"addr"`

	// OutputDir receives exported posters from the CLI and TUI.
	OutputDir string `koanf:"output_dir"`

	// Template is a .gspresets bundle or preset JSON; empty uses the embedded one.
	Template string `koanf:"template"`

	// FontPath overrides the template font. A CJK-capable TTF is needed for
	// Chinese titles; the embedded Go font has no CJK glyphs.
	FontPath string `koanf:"font_path"`

	// JPEGQuality is the export quality, 1–100.
	JPEGQuality int `koanf:"jpeg_quality"`

	// MaxAvatarBytes is the exclusive upper bound on avatar size.
	MaxAvatarBytes int64 `koanf:"max_avatar_bytes"`

	// SessionTTL expires idle editor sessions.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// OpenBrowser opens the editor page when the server starts.
	OpenBrowser bool `koanf:"open_browser"`

	// MetricsBuckets overrides the export and rasterize latency buckets, in
	// seconds. Empty keeps the Prometheus defaults.
	MetricsBuckets []float64 `koanf:"metrics_buckets"`

	// MetricsRuntime adds the Go runtime and process collectors to /metrics.
	MetricsRuntime bool `koanf:"metrics_runtime"`
}

// New returns a Config filled with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           DefaultAddr,
		OutputDir:      DefaultOutputDir,
		JPEGQuality:    DefaultJPEGQuality,
		MaxAvatarBytes: DefaultMaxAvatarBytes,
		SessionTTL:     DefaultSessionTTL,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.JPEGQuality < 1 || c.JPEGQuality > 100:
		return fmt.Errorf("%w: jpeg_quality %d out of range 1-100", ErrInvalidConfig, c.JPEGQuality)
	case c.MaxAvatarBytes <= 0:
		return fmt.Errorf("%w: max_avatar_bytes must be positive", ErrInvalidConfig)
	case c.SessionTTL <= 0:
		return fmt.Errorf("%w: session_ttl must be positive", ErrInvalidConfig)
	}
	for i := 1; i < len(c.MetricsBuckets); i++ {
		if c.MetricsBuckets[i] <= c.MetricsBuckets[i-1] {
			return fmt.Errorf("%w: metrics_buckets must be increasing", ErrInvalidConfig)
		}
	}
	return nil
}
