package validate

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/showcase/internal/conf"
)

func testSettings(t *testing.T, manifestJSON string) *conf.Settings {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "manifest.json"), []byte(manifestJSON), 0o600))

	settings := &conf.Settings{}
	settings.Site.Root = root
	settings.Manifest.Timeout = time.Second
	return settings
}

func TestRunValidManifestYAML(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, `{"total":2,"days":[
		{"number":1,"title":"One","url":"day1/"},
		{"number":2,"title":"Two","created":"2025-01-02","url":"day2/"}]}`)

	var buf bytes.Buffer
	require.NoError(t, Run(t.Context(), settings, FormatYAML, &buf))

	var report Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Entries)
	assert.Equal(t, 2, report.Latest)
	assert.Empty(t, report.Issues)
}

func TestRunReportsIssuesJSON(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, `{"total":3,"days":[
		{"number":1,"title":"","url":"day1/"},
		{"number":1,"title":"Again","created":"yesterday","url":"day1b/"}]}`)

	var buf bytes.Buffer
	err := Run(t.Context(), settings, FormatJSON, &buf)
	require.ErrorIs(t, err, ErrIssuesFound)

	var report Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.False(t, report.Valid)
	assert.Len(t, report.Issues, 4)
}

func TestRunFailsOnInvalidJSON(t *testing.T) {
	t.Parallel()

	settings := testSettings(t, `{"total":`)
	settings.Manifest.Retries = 0

	err := Run(t.Context(), settings, FormatYAML, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid manifest JSON")
}

func TestRunRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	err := Run(t.Context(), testSettings(t, `{"total":0,"days":[]}`), "toml", &bytes.Buffer{})
	require.Error(t, err)
}
