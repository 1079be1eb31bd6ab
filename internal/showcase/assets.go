package showcase

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tphakala/showcase/internal/errors"
)

//go:embed assets/showcase.js assets/showcase.css
var assetFS embed.FS

// Assets returns the page's stylesheet and script, rooted so that
// showcase.js sits at the top level.
func Assets() fs.FS {
	sub, err := fs.Sub(assetFS, "assets")
	if err != nil {
		// Unreachable: the directory is embedded above.
		panic(err)
	}
	return sub
}

// WriteAssets copies the embedded assets into dir, creating it if needed.
func WriteAssets(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("showcase").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	return fs.WalkDir(Assets(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(Assets(), path)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, path)
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return errors.New(err).
				Component("showcase").
				Category(errors.CategoryFileIO).
				Context("file", target).
				Build()
		}
		return nil
	})
}
