package manifest

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/errors"
	"github.com/tphakala/showcase/internal/httpclient"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/observability/metrics"
	waitutil "github.com/tphakala/showcase/internal/testutil"
)

const testURL = "https://showcase.test/manifest.json"

// recordingSleep records requested delays without waiting.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recordingSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

// newTestLoader wires a loader to an httpmock transport whose responder
// returns responses[i] for the i-th call (the last one repeats).
func newTestLoader(t *testing.T, responses ...httpmock.Responder) (*Loader, *recordingSleep, *atomic.Int32, *metrics.ManifestMetrics) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		n := int(calls.Add(1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		return responses[n](req)
	})

	m, err := metrics.NewManifestMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	sleeper := &recordingSleep{}
	l, err := NewLoader(DefaultConfig(testURL),
		WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})),
		WithSleep(sleeper.sleep),
		WithMetrics(m),
		WithLogger(logger.NewDiscardLogger()),
	)
	require.NoError(t, err)
	return l, sleeper, &calls, m
}

func okResponder() httpmock.Responder {
	return httpmock.NewStringResponder(http.StatusOK, sampleManifest)
}

func TestLoadFailFailSucceed(t *testing.T) {
	t.Parallel()

	l, sleeper, calls, m := newTestLoader(t,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"),
		httpmock.NewStringResponder(http.StatusBadGateway, "boom"),
		okResponder(),
	)

	got, err := l.Load(t.Context())
	require.NoError(t, err)
	assert.Len(t, got.Days, 3)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Delays())
	assert.InDelta(t, 2, testutil.ToFloat64(m.FetchFailures.WithLabelValues(string(errors.CategoryHTTP))), 0)
}

func TestLoadSurfacesLastError(t *testing.T) {
	t.Parallel()

	l, sleeper, calls, _ := newTestLoader(t,
		httpmock.NewStringResponder(http.StatusInternalServerError, ""),
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ""),
		httpmock.NewStringResponder(http.StatusNotFound, ""),
	)

	_, err := l.Load(t.Context())
	require.Error(t, err)
	assert.Equal(t, "HTTP error! status: 404", err.Error())
	assert.True(t, errors.IsCategory(err, errors.CategoryHTTP))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, http.StatusNotFound, ee.GetContext()["status_code"])
	assert.Equal(t, "manifest-fetch", ee.GetContext()["operation"])
	assert.Contains(t, ee.GetContext(), "duration_ms")
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
	assert.Len(t, sleeper.Delays(), 2)

	_, cached := l.Cached()
	assert.False(t, cached, "failures are not cached")
}

func TestLoadRetriesParseFailures(t *testing.T) {
	t.Parallel()

	l, _, calls, _ := newTestLoader(t,
		httpmock.NewStringResponder(http.StatusOK, "<html>"),
		okResponder(),
	)

	_, err := l.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadServesFromCache(t *testing.T) {
	t.Parallel()

	l, _, calls, m := newTestLoader(t, okResponder())

	first, err := l.Load(t.Context())
	require.NoError(t, err)
	second, err := l.Load(t.Context())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), calls.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheHits), 0)

	l.Invalidate()
	_, err = l.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLoadConcurrentColdLoadsShareFetch(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	slow := func(req *http.Request) (*http.Response, error) {
		<-release
		return httpmock.NewStringResponse(http.StatusOK, sampleManifest), nil
	}
	l, _, calls, _ := newTestLoader(t, slow)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*Manifest, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := l.Load(context.Background())
			assert.NoError(t, err)
			results[i] = m
		}()
	}

	// Let the callers pile up behind the first fetch.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	waitutil.WaitGroup(t, &wg, waitutil.DefaultTestTimeout, "callers did not finish")

	assert.Equal(t, int32(1), calls.Load())
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
}

func TestLoadStopsWhenContextCancelled(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	l, err := NewLoader(Config{URL: testURL, MaxRetries: 2, RetryDelay: time.Hour},
		WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})),
		WithLogger(logger.NewDiscardLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(l.Close)

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err = l.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLoadSurvivesFirstCallerCancelling(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, ""), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, sampleManifest), nil
	})

	waiting := make(chan struct{}, 1)
	release := make(chan struct{})
	blockingSleep := func(ctx context.Context, _ time.Duration) error {
		waiting <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l, err := NewLoader(DefaultConfig(testURL),
		WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})),
		WithSleep(blockingSleep),
		WithLogger(logger.NewDiscardLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(l.Close)

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Load(firstCtx)
		firstErr <- err
	}()
	waitutil.WaitForChannel(t, waiting, waitutil.DefaultTestTimeout, "load never reached the retry wait")

	type result struct {
		m   *Manifest
		err error
	}
	second := make(chan result, 1)
	go func() {
		m, err := l.Load(context.Background())
		second <- result{m, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitutil.DefaultTestTimeout):
		require.Fail(t, "first caller did not return after cancelling")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Len(t, res.m.Days, 3)
	case <-time.After(waitutil.DefaultTestTimeout):
		require.Fail(t, "second caller did not finish")
	}
	assert.Equal(t, int32(2), calls.Load())

	_, cached := l.Cached()
	assert.True(t, cached)
}

func TestLoadNoRetryWhenEager(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{
		Manifest: conf.ManifestSettings{Retries: 2, RetryDelay: time.Second, Timeout: time.Second},
		Showcase: conf.ShowcaseSettings{Lazy: false},
	}
	cfg := ConfigFromSettings(settings, testURL)
	assert.Equal(t, 0, cfg.MaxRetries)

	settings.Showcase.Lazy = true
	assert.Equal(t, 2, ConfigFromSettings(settings, testURL).MaxRetries)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o600))

	for _, url := range []string{path, "file://" + path} {
		l, err := NewLoader(DefaultConfig(url), WithLogger(logger.NewDiscardLogger()))
		require.NoError(t, err)
		m, err := l.Load(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 3, m.Total)
	}
}

func TestNewLoaderValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewLoader(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewLoader(Config{URL: testURL, MaxRetries: -1})
	require.Error(t, err)
}
