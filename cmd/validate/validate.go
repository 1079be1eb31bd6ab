// Package validate implements the validate command, which loads the
// manifest and reports problems that do not stop the page from rendering.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/errors"
	"github.com/tphakala/showcase/internal/manifest"
)

// Report formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Report is the validate command's output.
type Report struct {
	Source  string           `json:"source" yaml:"source"`
	Total   int              `json:"total" yaml:"total"`
	Entries int              `json:"entries" yaml:"entries"`
	Latest  int              `json:"latest,omitempty" yaml:"latest,omitempty"`
	Valid   bool             `json:"valid" yaml:"valid"`
	Issues  []manifest.Issue `json:"issues" yaml:"issues"`
}

// ErrIssuesFound is returned when the manifest loads but has problems.
var ErrIssuesFound = errors.NewStd("manifest has issues")

// Command creates the validate command.
func Command(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check manifest.json",
		Long:  "Load manifest.json the way the page does and report its entries and any problems.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, format, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatYAML, "Report format: yaml or json")

	return cmd
}

// Run loads the manifest and writes the report. It returns ErrIssuesFound
// when Check reports anything.
func Run(ctx context.Context, settings *conf.Settings, format string, w io.Writer) error {
	if format != FormatYAML && format != FormatJSON {
		return errors.ValidationError(fmt.Sprintf("unknown format %q, want yaml or json", format))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	source := settings.Manifest.URL
	if source == "" {
		source = settings.ManifestPath()
	}
	loader, err := manifest.NewLoader(manifest.ConfigFromSettings(settings, source))
	if err != nil {
		return err
	}

	defer loader.Close()

	m, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	report := Report{
		Source:  source,
		Total:   m.Total,
		Entries: len(m.Days),
		Issues:  manifest.Check(m),
	}
	if n := len(m.Days); n > 0 {
		report.Latest = m.Days[n-1].Number
	}
	if report.Issues == nil {
		report.Issues = []manifest.Issue{}
	}
	report.Valid = len(report.Issues) == 0

	if err := write(w, format, &report); err != nil {
		return err
	}
	if !report.Valid {
		return fmt.Errorf("%w: %d found", ErrIssuesFound, len(report.Issues))
	}
	return nil
}

func write(w io.Writer, format string, report *Report) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
