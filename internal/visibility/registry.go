package visibility

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/observability/metrics"
)

// DefaultSessionTTL is how long an idle page session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Frame describes one card's frame when a session is created. Frames are
// given in page order; a frame's position is its card index.
type Frame struct {
	Day int
	Src string
}

// Session is the visibility state of one open page.
type Session struct {
	ID      string
	Created time.Time
	*Manager
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Cap        int
	RootMargin int
	TTL        time.Duration
}

// Registry holds live sessions keyed by UUID. Sessions idle for longer than
// the TTL are dropped.
type Registry struct {
	cfg     RegistryConfig
	cache   *cache.Cache
	metrics *metrics.VisibilityMetrics
	logger  logger.Logger
}

// NewRegistry creates a registry; m may be nil.
func NewRegistry(cfg RegistryConfig, m *metrics.VisibilityMetrics) *Registry {
	if cfg.Cap < 1 {
		cfg.Cap = DefaultCap
	}
	if cfg.RootMargin < 0 {
		cfg.RootMargin = DefaultRootMargin
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}

	r := &Registry{
		cfg:     cfg,
		cache:   cache.New(cfg.TTL, cfg.TTL/2),
		metrics: m,
		logger:  logger.Global().Module("visibility"),
	}
	r.cache.OnEvicted(func(id string, _ any) {
		r.logger.Debug("Visibility session closed", logger.String("session_id", id))
		if r.metrics != nil {
			r.metrics.SessionExpired()
		}
	})
	return r
}

// Create registers a session for the given frames.
func (r *Registry) Create(frames []Frame) *Session {
	s := &Session{
		ID:      uuid.NewString(),
		Created: time.Now(),
		Manager: NewManager(r.cfg.Cap),
	}
	for _, f := range frames {
		s.Observe(f.Day, f.Src)
	}

	r.cache.Set(s.ID, s, cache.DefaultExpiration)
	if r.metrics != nil {
		r.metrics.SessionCreated()
	}
	r.logger.Debug("Visibility session created",
		logger.String("session_id", s.ID),
		logger.Int("frames", len(frames)))
	return s
}

// Get returns a live session and restarts its idle timer.
func (r *Registry) Get(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	v, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	s, ok := v.(*Session)
	if !ok {
		return nil, false
	}
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Delete drops a session.
func (r *Registry) Delete(id string) {
	r.cache.Delete(id)
}

// Len returns the number of live sessions, including expired ones not yet swept.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Config returns the effective configuration.
func (r *Registry) Config() RegistryConfig {
	return r.cfg
}
