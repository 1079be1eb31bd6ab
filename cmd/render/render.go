// Package render implements the render command, which writes the showcase
// page to a file for static hosting.
package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/errors"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/manifest"
	"github.com/tphakala/showcase/internal/showcase"
)

// Output formats.
const (
	FormatHTML = "html"
	FormatText = "text"
)

// assetDir is where the stylesheet and script are written, relative to the page.
const assetDir = "assets"

// Options are the render command's own flags.
type Options struct {
	Out    string
	Format string
}

// Command creates the render command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := Options{}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the showcase page to a file",
		Long: "Render the showcase page from manifest.json. HTML output written to a file gets " +
			"an assets/ directory next to it so the page works without the server.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", FormatHTML, "Output format: html or text")

	return cmd
}

// Run renders the page. When the manifest cannot be loaded the error page is
// still written and the load error is returned.
func Run(ctx context.Context, settings *conf.Settings, opts Options, stdout io.Writer) error {
	if opts.Format != FormatHTML && opts.Format != FormatText {
		return errors.ValidationError(fmt.Sprintf("unknown format %q, want html or text", opts.Format))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log := logger.Global().Module("render")

	source := settings.Manifest.URL
	if source == "" {
		source = settings.ManifestPath()
	}
	loader, err := manifest.NewLoader(manifest.ConfigFromSettings(settings, source))
	if err != nil {
		return err
	}

	pageOpts := showcase.Options{
		Title:      settings.Site.Title,
		Lazy:       settings.Showcase.Lazy,
		Locale:     settings.Showcase.Locale,
		TimeZone:   settings.Showcase.TimeZone,
		Cap:        settings.Visibility.Cap,
		RootMargin: settings.Visibility.RootMargin,
		AssetBase:  assetDir,
	}

	defer loader.Close()

	m, loadErr := loader.Load(ctx)
	var page showcase.Page
	if loadErr != nil {
		log.Error("Failed to load manifest", logger.String("source", source), logger.Error(loadErr))
		page = showcase.ErrorPage(loadErr, pageOpts)
	} else {
		page = showcase.BuildPage(m, pageOpts)
	}

	w, closeOut, err := output(opts.Out, stdout)
	if err != nil {
		return err
	}

	renderer, err := showcase.NewRenderer()
	if err != nil {
		_ = closeOut()
		return err
	}
	if opts.Format == FormatText {
		err = renderer.RenderText(w, &page)
	} else {
		err = renderer.Render(w, &page)
	}
	if closeErr := closeOut(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if opts.Out != "" && opts.Format == FormatHTML {
		if err := showcase.WriteAssets(filepath.Join(filepath.Dir(opts.Out), assetDir)); err != nil {
			return err
		}
	}

	if loadErr != nil {
		return fmt.Errorf("manifest could not be loaded: %w", loadErr)
	}

	log.Info("Showcase rendered",
		logger.String("out", displayName(opts.Out)),
		logger.String("format", opts.Format),
		logger.Int("cards", len(page.Cards)))
	return nil
}

func output(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.New(err).
			Component("render").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return f, f.Close, nil
}

func displayName(path string) string {
	if path == "" {
		return "stdout"
	}
	return path
}
