// Package api provides the HTTP surface of the showcase service: the
// rendered page, the site's static files and the frame visibility API.
package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/gommon/bytes"

	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultBodyLimit bounds request bodies; intersection batches are small.
	DefaultBodyLimit = "64K"

	// DefaultRateLimit is requests per second per client on /api.
	DefaultRateLimit = 20.0
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string  // echo size notation, e.g. "64K"
	RateLimit float64 // 0 disables the /api rate limiter

	// SiteRoot is served as static files below /.
	SiteRoot string

	Metrics bool
	Debug   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            strconv.Itoa(conf.DefaultPort),
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		RateLimit:       DefaultRateLimit,
		SiteRoot:        ".",
		Metrics:         true,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	cfg.Host = settings.WebServer.Host
	if settings.WebServer.Port != 0 {
		cfg.Port = strconv.Itoa(settings.WebServer.Port)
	}
	if settings.WebServer.ReadTimeout > 0 {
		cfg.ReadTimeout = settings.WebServer.ReadTimeout
	}
	if settings.WebServer.WriteTimeout > 0 {
		cfg.WriteTimeout = settings.WebServer.WriteTimeout
	}
	if settings.WebServer.BodyLimit != "" {
		cfg.BodyLimit = settings.WebServer.BodyLimit
	}
	cfg.RateLimit = settings.WebServer.RateLimit
	if settings.Site.Root != "" {
		cfg.SiteRoot = settings.Site.Root
	}
	cfg.Metrics = settings.Metrics.Enabled
	cfg.Debug = settings.Debug

	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if _, err := bytes.Parse(c.BodyLimit); err != nil {
		return fmt.Errorf("invalid body limit %q: %w", c.BodyLimit, err)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}

// Address returns the address string for the server to listen on.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf("Server Config: address=%s, root=%s, debug=%v",
		c.Address(), c.SiteRoot, c.Debug)
}
