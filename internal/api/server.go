package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/showcase/internal/api/middleware"
	"github.com/tphakala/showcase/internal/buildinfo"
	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/httpclient"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/manifest"
	"github.com/tphakala/showcase/internal/observability"
	"github.com/tphakala/showcase/internal/observability/metrics"
	"github.com/tphakala/showcase/internal/showcase"
	"github.com/tphakala/showcase/internal/visibility"
)

// Route prefixes shared with the page template and showcase.js.
const (
	AssetBase  = "/assets"
	SessionAPI = "/api/v1/sessions"
)

// Server is the showcase HTTP server. It manages the Echo instance, the
// middleware stack and all routes.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	logger   logger.Logger

	loader   *manifest.Loader
	renderer *showcase.Renderer
	registry *visibility.Registry
	metrics  *observability.Metrics
	build    buildinfo.BuildInfo

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// WithLoader sets the manifest loader. Without it the server builds one from
// the manifest settings.
func WithLoader(l *manifest.Loader) ServerOption {
	return func(s *Server) {
		s.loader = l
	}
}

// WithRenderer sets the page renderer.
func WithRenderer(r *showcase.Renderer) ServerOption {
	return func(s *Server) {
		s.renderer = r
	}
}

// WithRegistry sets the visibility session registry.
func WithRegistry(r *visibility.Registry) ServerOption {
	return func(s *Server) {
		s.registry = r
	}
}

// WithMetrics sets the observability metrics for the server.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithBuildInfo sets the version reported by /health.
func WithBuildInfo(b buildinfo.BuildInfo) ServerOption {
	return func(s *Server) {
		s.build = b
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = GetLogger()
	}
	if s.build == nil {
		s.build = buildinfo.NewContext("", "", "")
	}
	if s.renderer == nil {
		r, err := showcase.NewRenderer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize renderer: %w", err)
		}
		s.renderer = r
	}
	if s.loader == nil {
		l, err := s.newLoader()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize manifest loader: %w", err)
		}
		s.loader = l
	}
	if s.registry == nil {
		s.registry = visibility.NewRegistry(visibility.RegistryConfig{
			Cap:        settings.Visibility.Cap,
			RootMargin: settings.Visibility.RootMargin,
			TTL:        settings.Visibility.SessionTTL,
		}, s.visibilityMetrics())
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.Logger = logger.NewEchoLoggerAdapter(s.logger.Module("echo"))

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.logger.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.String("site_root", config.SiteRoot),
		logger.String("manifest_url", s.loader.URL()),
		logger.Bool("lazy", settings.Showcase.Lazy))

	return s, nil
}

func (s *Server) newLoader() (*manifest.Loader, error) {
	client := httpclient.New(&httpclient.Config{
		DefaultTimeout: s.settings.Manifest.Timeout,
		UserAgent:      "showcase/" + s.build.GetVersion(),
	})
	client.SetAfterResponseHook(manifestResponseLogger(s.logger.Module("manifest")))

	opts := []manifest.Option{manifest.WithHTTPClient(client)}
	if s.metrics != nil {
		opts = append(opts, manifest.WithMetrics(s.metrics.Manifest))
	}
	return manifest.NewLoader(manifest.ConfigFromSettings(s.settings, s.settings.ManifestURL()), opts...)
}

// manifestResponseLogger logs each manifest HTTP exchange at debug level.
func manifestResponseLogger(log logger.Logger) func(*http.Request, *http.Response, error) {
	return func(req *http.Request, resp *http.Response, err error) {
		if err != nil {
			log.Debug("Manifest request failed",
				logger.String("method", req.Method),
				logger.Error(err))
			return
		}
		log.Debug("Manifest response",
			logger.String("method", req.Method),
			logger.Int("status", resp.StatusCode),
			logger.Int64("content_length", resp.ContentLength))
	}
}

func (s *Server) visibilityMetrics() *metrics.VisibilityMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Visibility
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())

	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.logger.Module("http"), func(c echo.Context) bool {
		return c.Path() == "/health" || c.Path() == "/metrics"
	}))

	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}

	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewGzip())
	s.echo.Use(mw.NewSecureHeaders(mw.DefaultSecurityConfig()))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil && s.config.Metrics {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	// Site files: manifest.json and the dayN/ challenge pages. Registered
	// before "/" so the page handler replaces the static index route.
	s.echo.Static("/", s.config.SiteRoot)

	s.echo.GET("/", s.handlePage)
	s.registerAssetRoutes()

	api := s.echo.Group(SessionAPI)
	if s.config.RateLimit > 0 {
		api.Use(mw.NewRateLimiter(s.config.RateLimit))
	}
	api.POST("", s.createSession)
	api.DELETE("/:id", s.deleteSession)
	api.POST("/:id/intersections", s.reportIntersections)
	api.POST("/:id/frames/:index/error", s.reportFrameError)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.build.GetVersion(),
		"build_date":     s.build.GetBuildDate(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"sessions":       s.registry.Len(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Start begins serving HTTP requests in a background goroutine and returns
// immediately. Use Shutdown to stop the server.
func (s *Server) Start() {
	go func() {
		if err := s.startBlocking(); err != nil {
			s.logger.Error("Server error", logger.Error(err))
		}
	}()
}

func (s *Server) startBlocking() error {
	addr := s.config.Address()
	s.logger.Info("Starting HTTP server", logger.String("address", addr))

	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartWithGracefulShutdown starts the server and blocks until SIGINT or
// SIGTERM, then shuts down.
func (s *Server) StartWithGracefulShutdown() error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.startBlocking()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		s.logger.Info("Shutdown signal received, initiating graceful shutdown")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	err := s.echo.Shutdown(ctx)
	s.loader.Close()
	if err != nil {
		s.logger.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.logger.Info("Server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Loader returns the manifest loader used by the page and session routes.
func (s *Server) Loader() *manifest.Loader {
	return s.loader
}

// pageOptions maps settings to page options for the served page.
func (s *Server) pageOptions() showcase.Options {
	return showcase.Options{
		Title:      s.settings.Site.Title,
		Lazy:       s.settings.Showcase.Lazy,
		Locale:     s.settings.Showcase.Locale,
		TimeZone:   s.settings.Showcase.TimeZone,
		Cap:        s.registry.Config().Cap,
		RootMargin: s.registry.Config().RootMargin,
		SessionAPI: SessionAPI,
		AssetBase:  AssetBase,
	}
}
