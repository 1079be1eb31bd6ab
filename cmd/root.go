// Package cmd wires the showcase command line.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/showcase/cmd/config"
	"github.com/tphakala/showcase/cmd/render"
	"github.com/tphakala/showcase/cmd/serve"
	"github.com/tphakala/showcase/cmd/validate"
	"github.com/tphakala/showcase/cmd/version"
	"github.com/tphakala/showcase/internal/buildinfo"
	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/telemetry"
)

// runState is what PersistentPreRunE sets up for a run.
type runState struct {
	settings *conf.Settings
	logger   *logger.CentralLogger
	closed   bool
}

// close flushes telemetry and closes the log file. It runs whether or not
// the command succeeded.
func (r *runState) close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.settings.Telemetry.Enabled {
		telemetry.Flush()
	}
	return r.logger.Close()
}

// Execute runs the command line in args and releases logging and telemetry
// afterwards, also when the command fails.
func Execute(ctx context.Context, build *buildinfo.Context, args []string) error {
	state := &runState{settings: &conf.Settings{}}
	rootCmd := newRootCommand(build, state)
	rootCmd.SetArgs(args)
	return execute(ctx, rootCmd, state)
}

func execute(ctx context.Context, rootCmd *cobra.Command, state *runState) error {
	err := rootCmd.ExecuteContext(ctx)
	if cerr := state.close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close log file: %w", cerr))
	}
	return err
}

// newRootCommand creates the root command. Subcommands share the settings
// in state, which are loaded once the flags are parsed.
func newRootCommand(build *buildinfo.Context, state *runState) *cobra.Command {
	settings := state.settings
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "showcase",
		Short:         "Daily challenge showcase",
		Long:          "Serve or render a page of daily challenge cards from manifest.json.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	serveCmd := serve.Command(settings, build)
	versionCmd := version.Command(build)

	rootCmd.AddCommand(
		serveCmd,
		render.Command(settings),
		validate.Command(settings),
		config.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs neither settings nor logging
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		// Only serve keeps logs on stdout; the other commands print data there.
		state.logger, err = initLogging(settings, cmd != serveCmd)
		if err != nil {
			return err
		}

		if err := telemetry.InitSentry(settings, build); err != nil {
			logger.Global().Module("main").Warn("Telemetry disabled", logger.Error(err))
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags shared by every subcommand and binds them to viper.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config.yaml (default: ./config.yaml, then user and system config dirs)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("log-level", logger.DefaultLogLevel, "Log level (trace, debug, info, warn, error)")
	flags.String("root", ".", "Site root holding manifest.json and the dayN/ folders")
	flags.String("manifest-url", "", "Manifest URL or file path (default: the site root's manifest.json)")
	flags.String("locale", conf.DefaultLocale, "Locale for dates and labels")
	flags.Bool("lazy", true, "Render the lazy variant with deferred frames")

	bindings := map[string]string{
		"debug":           "debug",
		"logging.level":   "log-level",
		"site.root":       "root",
		"manifest.url":    "manifest-url",
		"showcase.locale": "locale",
		"showcase.lazy":   "lazy",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// initLogging installs the global logger for this run.
func initLogging(settings *conf.Settings, stderr bool) (*logger.CentralLogger, error) {
	level := settings.Logging.Level
	if settings.Debug {
		level = string(logger.LogLevelDebug)
	}

	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     "Local",
		Console: &logger.ConsoleOutput{
			Enabled: true,
			Level:   level,
			Stderr:  stderr,
		},
	}
	if settings.Logging.File != "" {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    settings.Logging.File,
			Level:   level,
		}
	}

	cl, err := logger.NewCentralLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return cl, nil
}
