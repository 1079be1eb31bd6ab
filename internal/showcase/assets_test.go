package showcase

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetsContainScriptAndStylesheet(t *testing.T) {
	t.Parallel()

	script, err := fs.ReadFile(Assets(), "showcase.js")
	require.NoError(t, err)
	assert.Contains(t, string(script), "grid.dataset.sessionApi")
	assert.Contains(t, string(script), "IntersectionObserver")

	_, err = fs.Stat(Assets(), "showcase.css")
	require.NoError(t, err)
}

func TestWriteAssets(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "assets")
	require.NoError(t, WriteAssets(dir))

	for _, name := range []string{"showcase.js", "showcase.css"} {
		want, err := fs.ReadFile(Assets(), name)
		require.NoError(t, err)
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}
