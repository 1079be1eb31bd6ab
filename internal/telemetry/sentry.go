// Package telemetry wires opt-in Sentry error reporting into the errors package.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/showcase/internal/buildinfo"
	"github.com/tphakala/showcase/internal/conf"
	"github.com/tphakala/showcase/internal/errors"
	"github.com/tphakala/showcase/internal/logger"
	"github.com/tphakala/showcase/internal/privacy"
)

const flushTimeout = 2 * time.Second

// Option adjusts the Sentry client options, used by tests to install a transport.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// InitSentry initialises Sentry when telemetry is enabled and installs the
// errors package reporter. It is a no-op when telemetry is disabled.
func InitSentry(settings *conf.Settings, info buildinfo.BuildInfo, opts ...Option) error {
	log := logger.Global().Module("telemetry")

	if !settings.Telemetry.Enabled {
		log.Debug("Sentry telemetry is disabled (opt-in required)")
		return nil
	}
	if settings.Telemetry.DSN == "" {
		return errors.Newf("telemetry enabled without a DSN").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	options := sentry.ClientOptions{
		Dsn:              settings.Telemetry.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      environment(settings),
		ServerName:       "",
		Release:          fmt.Sprintf("showcase@%s", info.GetVersion()),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("system_id", info.GetSystemID())
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("Sentry telemetry initialized",
		logger.String("release", options.Release),
		logger.String("environment", options.Environment))
	return nil
}

// Flush waits briefly for queued events; call it during shutdown.
func Flush() bool {
	return sentry.Flush(flushTimeout)
}

func environment(settings *conf.Settings) string {
	if settings.Debug {
		return "development"
	}
	return "production"
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
		if title, ok := event.Tags["error_title"]; ok {
			event.Tags["error_title"] = privacy.ScrubMessage(title)
		}
	}

	// Manifest URLs and site paths end up in error messages.
	event.Message = privacy.ScrubMessage(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = privacy.ScrubMessage(event.Exception[i].Value)
	}
	return event
}
