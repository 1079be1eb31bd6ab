package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	gbytes "github.com/labstack/gommon/bytes"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/errors"
	"github.com/tphakala/showcase/internal/httpclient"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/observability/metrics"
)

const (
	// DefaultMaxRetries is the number of extra attempts after the first failure.
	DefaultMaxRetries = 2
	// DefaultRetryDelay is multiplied by the retry number: 1s, then 2s.
	DefaultRetryDelay = time.Second
	DefaultTimeout    = 10 * time.Second

	// maxManifestSize bounds how much of a response body is read.
	maxManifestSize = 8 << 20

	cacheKey = "manifest"
)

// Config configures a Loader.
type Config struct {
	// URL is an http(s) URL, a file:// URL or a plain file path.
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// CacheTTL of 0 keeps the manifest for the life of the Loader.
	CacheTTL time.Duration
}

// DefaultConfig returns the lazy-page loader configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:        url,
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
	}
}

// ConfigFromSettings maps service settings to a loader config. The eager
// page never retried, so MaxRetries is forced to 0 when lazy loading is off.
func ConfigFromSettings(s *conf.Settings, url string) Config {
	cfg := Config{
		URL:        url,
		Timeout:    s.Manifest.Timeout,
		MaxRetries: s.Manifest.Retries,
		RetryDelay: s.Manifest.RetryDelay,
		CacheTTL:   s.Manifest.CacheTTL,
	}
	if !s.Showcase.Lazy {
		cfg.MaxRetries = 0
	}
	return cfg
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures optional Loader dependencies.
type Option func(*Loader)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *httpclient.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.ManifestMetrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithLogger replaces the module logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) { l.logger = log }
}

// WithSleep replaces the retry wait, letting tests run without real delays.
func WithSleep(sleep SleepFunc) Option {
	return func(l *Loader) { l.sleep = sleep }
}

// Loader fetches the manifest once and serves it from cache afterwards.
// Concurrent cold loads share a single fetch.
type Loader struct {
	cfg     Config
	client  *httpclient.Client
	cache   *cache.Cache
	group   singleflight.Group
	metrics *metrics.ManifestMetrics
	logger  logger.Logger
	sleep   SleepFunc

	// closed ends in-flight loads when the Loader is closed.
	closed context.Context
	close  context.CancelFunc
}

// NewLoader validates cfg and builds a Loader.
func NewLoader(cfg Config, opts ...Option) (*Loader, error) {
	if cfg.URL == "" {
		return nil, errors.Newf("manifest URL is required").
			Component("manifest").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.Newf("manifest retries must not be negative, got %d", cfg.MaxRetries).
			Component("manifest").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if cfg.CacheTTL > 0 {
		expiration, cleanup = cfg.CacheTTL, cfg.CacheTTL
	}

	l := &Loader{
		cfg:   cfg,
		cache: cache.New(expiration, cleanup),
		sleep: sleepContext,
	}
	l.closed, l.close = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(l)
	}
	if l.client == nil {
		l.client = httpclient.New(&httpclient.Config{DefaultTimeout: cfg.Timeout})
	}
	if l.logger == nil {
		l.logger = logger.Global().Module("manifest")
	}
	return l, nil
}

// Load returns the cached manifest or fetches it, retrying up to MaxRetries
// times. When every attempt fails the error of the last attempt is returned.
// A started load runs to completion even if ctx is cancelled, unless the
// loader is closed; the result is cached for later callers.
func (l *Loader) Load(ctx context.Context) (*Manifest, error) {
	if m, ok := l.Cached(); ok {
		if l.metrics != nil {
			l.metrics.RecordCacheHit()
		}
		return m, nil
	}
	if l.metrics != nil {
		l.metrics.RecordCacheMiss()
	}

	// The shared load outlives the caller that started it; only Close ends it.
	ch := l.group.DoChan(cacheKey, func() (any, error) {
		if m, ok := l.Cached(); ok {
			return m, nil
		}
		loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(l.closed, cancel)
		defer stop()

		m, err := l.fetchWithRetry(loadCtx)
		if err != nil {
			return nil, err
		}
		l.cache.Set(cacheKey, m, cache.DefaultExpiration)
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Trace("Joined in-flight manifest load")
		}
		return res.Val.(*Manifest), nil
	case <-ctx.Done():
		return nil, errors.New(fmt.Errorf("manifest load abandoned: %w", ctx.Err())).
			Component("manifest").
			Category(errors.CategoryCancellation).
			Build()
	}
}

// Cached returns the cached manifest, if any.
func (l *Loader) Cached() (*Manifest, bool) {
	v, ok := l.cache.Get(cacheKey)
	if !ok {
		return nil, false
	}
	m, ok := v.(*Manifest)
	return m, ok
}

// Invalidate drops the cached manifest so the next Load fetches again.
func (l *Loader) Invalidate() {
	l.cache.Delete(cacheKey)
}

// Close stops any in-flight load and drops the cached manifest.
func (l *Loader) Close() {
	l.close()
	l.cache.Flush()
	l.client.CloseIdleConnections()
}

// URL returns the manifest location.
func (l *Loader) URL() string {
	return l.cfg.URL
}

func (l *Loader) fetchWithRetry(ctx context.Context) (*Manifest, error) {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			l.logger.Warn("Manifest load failed, retrying",
				logger.Int("attempt", attempt),
				logger.Int("max_retries", l.cfg.MaxRetries),
				logger.Duration("delay", delay),
				logger.Error(lastErr))

			if err := l.sleep(ctx, delay); err != nil {
				return nil, errors.New(err).
					Component("manifest").
					Category(errors.CategoryCancellation).
					Context("attempt", attempt).
					Context("last_error", lastErr.Error()).
					Build()
			}
		}

		m, err := l.fetch(ctx, attempt+1)
		if err == nil {
			return m, nil
		}
		lastErr = err
		if l.metrics != nil {
			var ee *errors.EnhancedError
			category := string(errors.CategoryGeneric)
			if errors.As(err, &ee) {
				category = string(ee.Category)
			}
			l.metrics.RecordFailure(category)
		}
	}

	l.logger.Error("Manifest load failed",
		logger.String("url", l.cfg.URL),
		logger.Int("attempts", l.cfg.MaxRetries+1),
		logger.Error(lastErr))
	return nil, lastErr
}

func (l *Loader) fetch(ctx context.Context, attempt int) (*Manifest, error) {
	if l.metrics != nil {
		l.metrics.RecordAttempt(attempt)
	}
	start := time.Now()

	data, err := l.read(ctx)
	if err != nil {
		return nil, err
	}

	m, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	if l.metrics != nil {
		l.metrics.RecordSuccess(elapsed.Seconds(), len(m.Days))
	}
	if m.Total != len(m.Days) {
		l.logger.Warn("Manifest total does not match entry count",
			logger.Int("total", m.Total),
			logger.Int("entries", len(m.Days)))
	}
	l.logger.Info("Manifest loaded",
		logger.Int("entries", len(m.Days)),
		logger.Int("attempt", attempt),
		logger.String("size", gbytes.Format(int64(len(data)))),
		logger.Duration("elapsed", elapsed))
	return m, nil
}

// read returns the raw manifest bytes from HTTP or the local filesystem.
func (l *Loader) read(ctx context.Context) ([]byte, error) {
	if path, ok := localPath(l.cfg.URL); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.New(err).
				Component("manifest").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		return data, nil
	}

	start := time.Now()
	resp, err := l.client.Get(ctx, l.cfg.URL)
	if err != nil {
		return nil, l.networkError(err, start)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			l.logger.Debug("Failed to close manifest response body", logger.Error(cerr))
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Newf("HTTP error! status: %d", resp.StatusCode).
			Component("manifest").
			Category(errors.CategoryHTTP).
			Context("status_code", resp.StatusCode).
			NetworkContext(l.cfg.URL, l.cfg.Timeout).
			Timing("manifest-fetch", time.Since(start)).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize+1))
	if err != nil {
		return nil, l.networkError(err, start)
	}
	if len(data) > maxManifestSize {
		return nil, errors.Newf("manifest exceeds %s", gbytes.Format(maxManifestSize)).
			Component("manifest").
			Category(errors.CategoryLimit).
			Build()
	}
	return data, nil
}

func localPath(url string) (string, bool) {
	if path, ok := strings.CutPrefix(url, "file://"); ok {
		return path, true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	return url, true
}

func (l *Loader) networkError(err error, start time.Time) error {
	return errors.New(err).
		Component("manifest").
		Category(errors.CategoryNetwork).
		NetworkContext(l.cfg.URL, l.cfg.Timeout).
		Timing("manifest-fetch", time.Since(start)).
		Build()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry wait interrupted: %w", ctx.Err())
	}
}
