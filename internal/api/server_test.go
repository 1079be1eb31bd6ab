package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/httpclient"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/manifest"
	"github.com/tphakala/showcase/internal/observability"
	"github.com/tphakala/showcase/internal/visibility"
)

// getTestSettings returns settings serving root with the manifest read from disk.
func getTestSettings(t *testing.T, root string) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{}
	settings.WebServer.Port = conf.DefaultPort
	settings.WebServer.BodyLimit = "64K"
	settings.Site.Root = root
	settings.Site.Title = "Daily Challenges"
	settings.Manifest.URL = filepath.Join(root, "manifest.json")
	settings.Manifest.Timeout = 5 * time.Second
	settings.Manifest.Retries = 2
	settings.Manifest.RetryDelay = time.Second
	settings.Showcase.Lazy = true
	settings.Showcase.Locale = "en-US"
	settings.Visibility.Cap = conf.DefaultCap
	settings.Visibility.RootMargin = conf.DefaultRootMargin
	settings.Visibility.SessionTTL = time.Minute
	settings.Metrics.Enabled = true
	return settings
}

// writeSite writes a manifest with n days to a temporary site root.
func writeSite(t *testing.T, n int, title func(i int) string) string {
	t.Helper()

	root := t.TempDir()
	days := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("Challenge %d", i)
		if title != nil {
			name = title(i)
		}
		titleJSON, _ := json.Marshal(name)
		days = append(days, fmt.Sprintf(
			`{"number":%d,"title":%s,"theme":"theme %d","created":"2025-01-%02dT09:00:00Z","url":"day%d/index.html"}`,
			i, titleJSON, i, i%28+1, i))
	}
	body := fmt.Sprintf(`{"total":%d,"days":[%s]}`, n, strings.Join(days, ","))
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte(body), 0o600))
	return root
}

func newTestServer(t *testing.T, settings *conf.Settings, opts ...ServerOption) (*Server, *observability.Metrics) {
	t.Helper()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	opts = append([]ServerOption{
		WithLogger(logger.NewDiscardLogger()),
		WithMetrics(m),
	}, opts...)
	s, err := New(settings, opts...)
	require.NoError(t, err)
	return s, m
}

func doRequest(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, s *Server) SessionResponse {
	t.Helper()

	rec := doRequest(t, s, http.MethodPost, SessionAPI, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// intersections encodes a report for the cards at the given grid indexes.
func intersections(indexes []int, intersecting bool) string {
	entries := make([]visibility.Entry, 0, len(indexes))
	for _, i := range indexes {
		entries = append(entries, visibility.Entry{Index: i, Intersecting: intersecting})
	}
	b, _ := json.Marshal(IntersectionRequest{Entries: entries})
	return string(b)
}

// firstCards returns the grid indexes of the first n cards.
func firstCards(n int) []int {
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}
	return indexes
}

func countActions(cmds []visibility.Command, action visibility.Action) int {
	n := 0
	for _, c := range cmds {
		if c.Action == action {
			n++
		}
	}
	return n
}

func TestPageRendersCardsNewestFirst(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, getTestSettings(t, writeSite(t, 3, nil)))

	rec := doRequest(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "3 challenges completed")
	assert.Equal(t, 1, strings.Count(body, `class="latest-badge"`))
	assert.Contains(t, body, `data-session-api="/api/v1/sessions"`)
	assert.Contains(t, body, `src="/assets/showcase.js"`)

	i3 := strings.Index(body, "Day 3: Challenge 3")
	i2 := strings.Index(body, "Day 2: Challenge 2")
	i1 := strings.Index(body, "Day 1: Challenge 1")
	require.True(t, i3 >= 0 && i2 >= 0 && i1 >= 0)
	assert.Less(t, i3, i2)
	assert.Less(t, i2, i1)
}

func TestPageEmptyState(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte(`{"total":0,"days":[]}`), 0o600))
	s, _ := newTestServer(t, getTestSettings(t, root))

	rec := doRequest(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No challenges yet")
	assert.Contains(t, rec.Body.String(), "0 challenges")
	assert.NotContains(t, rec.Body.String(), "challenge-card")
	assert.NotContains(t, rec.Body.String(), "showcase.js")
}

func TestPageShowsLastErrorAfterRetries(t *testing.T) {
	t.Parallel()

	const url = "https://challenges.test/manifest.json"
	transport := httpmock.NewMockTransport()
	var calls atomic.Int32
	transport.RegisterResponder(http.MethodGet, url, func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) < 3 {
			return httpmock.NewStringResponse(http.StatusInternalServerError, "boom"), nil
		}
		return httpmock.NewStringResponse(http.StatusNotFound, "missing"), nil
	})

	var delays []time.Duration
	loader, err := manifest.NewLoader(manifest.DefaultConfig(url),
		manifest.WithHTTPClient(httpclient.New(&httpclient.Config{Transport: transport})),
		manifest.WithLogger(logger.NewDiscardLogger()),
		manifest.WithSleep(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		}),
	)
	require.NoError(t, err)

	s, _ := newTestServer(t, getTestSettings(t, t.TempDir()), WithLoader(loader))

	rec := doRequest(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := rec.Body.String()

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
	assert.Contains(t, body, "Failed to load challenges")
	assert.Contains(t, body, "HTTP error! status: 404")
	assert.Contains(t, body, "Make sure manifest.json exists and is valid.")
	assert.Contains(t, body, "Error loading challenges")
	assert.NotContains(t, body, "challenge-card")

	rec = doRequest(t, s, http.MethodPost, SessionAPI, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestPageEscapesMarkup(t *testing.T) {
	t.Parallel()

	root := writeSite(t, 1, func(int) string { return `<script>alert("x")</script>` })
	s, _ := newTestServer(t, getTestSettings(t, root))

	rec := doRequest(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `<script>alert(`)
	assert.Contains(t, rec.Body.String(), "&lt;script&gt;")
}

func TestPageEagerHasNoScript(t *testing.T) {
	t.Parallel()

	settings := getTestSettings(t, writeSite(t, 2, nil))
	settings.Showcase.Lazy = false
	s, _ := newTestServer(t, settings)

	rec := doRequest(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<iframe")
	assert.NotContains(t, rec.Body.String(), "showcase.js")
}

func TestStaticSiteFiles(t *testing.T) {
	t.Parallel()

	root := writeSite(t, 1, nil)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "day1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "day1", "index.html"), []byte("<p>day one</p>"), 0o600))
	s, _ := newTestServer(t, getTestSettings(t, root))

	rec := doRequest(t, s, http.MethodGet, "/manifest.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = doRequest(t, s, http.MethodGet, "/day1/index.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "day one")
}

func TestAssetsServed(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, getTestSettings(t, writeSite(t, 1, nil)))

	rec := doRequest(t, s, http.MethodGet, "/assets/showcase.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "IntersectionObserver")
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))

	rec = doRequest(t, s, http.MethodGet, "/assets/showcase.css", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".challenge-card")
}

func TestSessionKeepsWorkingSetBounded(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, getTestSettings(t, writeSite(t, 25, nil)))
	session := createSession(t, s)
	assert.Equal(t, 20, session.Cap)
	assert.Equal(t, 100, session.RootMargin)
	assert.Equal(t, 25, session.Frames)

	target := SessionAPI + "/" + session.ID + "/intersections"

	rec := doRequest(t, s, http.MethodPost, target, intersections(firstCards(25), true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp CommandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 20, resp.Loaded)
	assert.Equal(t, 20, countActions(resp.Commands, visibility.ActionLoad))
	// The grid is newest first, so card 0 is day 25.
	assert.Equal(t, visibility.Command{Index: 0, Day: 25, Action: visibility.ActionLoad, Src: "day25/index.html"}, resp.Commands[0])

	// A card scrolling away hands its slot to the oldest waiting card.
	rec = doRequest(t, s, http.MethodPost, target, intersections([]int{0}, false))
	require.Equal(t, http.StatusOK, rec.Code)
	resp = CommandResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 20, resp.Loaded)
	assert.Equal(t, []visibility.Command{
		{Index: 0, Day: 25, Action: visibility.ActionUnload},
		{Index: 20, Day: 5, Action: visibility.ActionLoad, Src: "day5/index.html"},
	}, resp.Commands)

	metricsRec := doRequest(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), `showcase_visibility_commands_total{action="load"} 21`)
}

func TestFrameErrorFallsBackOnce(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, getTestSettings(t, writeSite(t, 22, nil)))
	session := createSession(t, s)

	rec := doRequest(t, s, http.MethodPost, SessionAPI+"/"+session.ID+"/intersections", intersections(firstCards(22), true))
	require.Equal(t, http.StatusOK, rec.Code)

	// Card 1 is day 21.
	target := SessionAPI + "/" + session.ID + "/frames/1/error"
	rec = doRequest(t, s, http.MethodPost, target, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp CommandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 2)
	assert.Equal(t, visibility.ActionFallback, resp.Commands[0].Action)
	assert.Equal(t, 1, resp.Commands[0].Index)
	assert.Equal(t, 21, resp.Commands[0].Day)
	assert.Contains(t, resp.Commands[0].HTML, `href="day21/index.html"`)
	assert.Contains(t, resp.Commands[0].HTML, "Failed to load challenge")
	assert.Equal(t, visibility.Command{Index: 20, Day: 2, Action: visibility.ActionLoad, Src: "day2/index.html"}, resp.Commands[1])
	assert.Equal(t, 20, resp.Loaded)

	rec = doRequest(t, s, http.MethodPost, target, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSessionTracksCardsSharingADayNumber(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	body := `{"total":2,"days":[` +
		`{"number":5,"title":"Morning","url":"day5a/index.html"},` +
		`{"number":5,"title":"Evening","url":"day5b/index.html"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte(body), 0o600))
	s, _ := newTestServer(t, getTestSettings(t, root))

	page := doRequest(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `data-index="0" data-day="5"`)
	assert.Contains(t, page.Body.String(), `data-index="1" data-day="5"`)

	session := createSession(t, s)
	assert.Equal(t, 2, session.Frames)

	rec := doRequest(t, s, http.MethodPost, SessionAPI+"/"+session.ID+"/intersections", intersections(firstCards(2), true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp CommandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []visibility.Command{
		{Index: 0, Day: 5, Action: visibility.ActionLoad, Src: "day5b/index.html"},
		{Index: 1, Day: 5, Action: visibility.ActionLoad, Src: "day5a/index.html"},
	}, resp.Commands)
	assert.Equal(t, 2, resp.Loaded)
}

func TestSessionErrors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, getTestSettings(t, writeSite(t, 2, nil)))

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"unknown session", SessionAPI + "/6f1c1f8e-3a0f-4c8e-9d57-0d7c6c1b2a11/intersections", intersections([]int{1}, true), http.StatusNotFound},
		{"malformed id", SessionAPI + "/not-a-uuid/intersections", intersections([]int{1}, true), http.StatusNotFound},
		{"unknown session frame error", SessionAPI + "/not-a-uuid/frames/1/error", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	session := createSession(t, s)

	rec := doRequest(t, s, http.MethodPost, SessionAPI+"/"+session.ID+"/frames/two/error", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, SessionAPI+"/"+session.ID+"/intersections", `{"entries":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, SessionAPI+"/"+session.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodPost, SessionAPI+"/"+session.ID+"/intersections", intersections([]int{1}, true))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, getTestSettings(t, writeSite(t, 1, nil)))

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "unknown", body["version"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsDisabled(t *testing.T) {
	t.Parallel()

	settings := getTestSettings(t, writeSite(t, 1, nil))
	settings.Metrics.Enabled = false
	s, _ := newTestServer(t, settings)

	rec := doRequest(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	settings := getTestSettings(t, writeSite(t, 1, nil))
	settings.WebServer.RateLimit = 1
	s, _ := newTestServer(t, settings)

	codes := make([]int, 0, 4)
	for range 4 {
		codes = append(codes, doRequest(t, s, http.MethodPost, SessionAPI, "").Code)
	}
	assert.Contains(t, codes, http.StatusTooManyRequests)
	assert.Equal(t, http.StatusCreated, codes[0])
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Address())

	cfg.BodyLimit = "lots"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Port = ""
	require.Error(t, cfg.Validate())

	settings := getTestSettings(t, "site")
	settings.WebServer.Host = "127.0.0.1"
	settings.WebServer.Port = 9000
	cfg = ConfigFromSettings(settings)
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
	assert.Equal(t, "site", cfg.SiteRoot)
}
