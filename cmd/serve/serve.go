// Package serve implements the serve command.
package serve

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/showcase/internal/api"
	"github.com/tphakala/showcase/internal/buildinfo"
	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/observability"
)

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the showcase page",
		Long:  "Serve the showcase page, the site files below the site root and the frame visibility API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, build)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("host", "", "Address to bind to (default: all interfaces)")
	cmd.Flags().IntP("port", "p", conf.DefaultPort, "Port to listen on")
	cmd.Flags().Int("cap", conf.DefaultCap, "Maximum number of challenge frames loaded at once")

	for key, name := range map[string]string{
		"webserver.host": "host",
		"webserver.port": "port",
		"visibility.cap": "cap",
	} {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}

func run(settings *conf.Settings, build *buildinfo.Context) error {
	log := logger.Global().Module("serve")

	opts := []api.ServerOption{api.WithBuildInfo(build)}
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		opts = append(opts, api.WithMetrics(m))
	}

	server, err := api.New(settings, opts...)
	if err != nil {
		return err
	}

	log.Info("Showcase starting",
		logger.String("version", build.GetVersion()),
		logger.Int("port", settings.WebServer.Port),
		logger.String("site_root", settings.Site.Root),
		logger.Bool("lazy", settings.Showcase.Lazy))

	return server.StartWithGracefulShutdown()
}
