package conf

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // zone names validate without host zoneinfo

	"github.com/labstack/gommon/bytes"
	"golang.org/x/text/language"

	"github.com/tphakala/showcase/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) error{
		validateWebServerSettings,
		validateManifestSettings,
		validateShowcaseSettings,
		validateVisibilitySettings,
		validateTelemetrySettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) == 0 {
		return nil
	}
	return errors.New(ve).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("error_count", len(ve.Errors)).
		Build()
}

func validateWebServerSettings(s *Settings) error {
	ws := &s.WebServer
	if ws.Port < 1 || ws.Port > 65535 {
		return fmt.Errorf("webserver.port must be between 1 and 65535, got %d", ws.Port)
	}
	if ws.BodyLimit != "" {
		if _, err := bytes.Parse(ws.BodyLimit); err != nil {
			return fmt.Errorf("webserver.bodylimit %q is not a size: %w", ws.BodyLimit, err)
		}
	}
	if ws.RateLimit < 0 {
		return fmt.Errorf("webserver.ratelimit must not be negative")
	}
	return nil
}

func validateManifestSettings(s *Settings) error {
	m := &s.Manifest
	if m.Retries < 0 {
		return fmt.Errorf("manifest.retries must not be negative, got %d", m.Retries)
	}
	if m.Timeout <= 0 {
		return fmt.Errorf("manifest.timeout must be positive")
	}
	if m.RetryDelay < 0 || m.CacheTTL < 0 {
		return fmt.Errorf("manifest.retrydelay and manifest.cachettl must not be negative")
	}
	if m.URL != "" && strings.Contains(m.URL, "://") {
		u, err := url.Parse(m.URL)
		if err != nil {
			return fmt.Errorf("manifest.url is invalid: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file" {
			return fmt.Errorf("manifest.url scheme %q is not supported", u.Scheme)
		}
	}
	return nil
}

func validateShowcaseSettings(s *Settings) error {
	if _, err := language.Parse(s.Showcase.Locale); err != nil {
		return fmt.Errorf("showcase.locale %q is not a valid language tag", s.Showcase.Locale)
	}
	if s.Showcase.TimeZone != "" {
		if _, err := time.LoadLocation(s.Showcase.TimeZone); err != nil {
			return fmt.Errorf("showcase.timezone %q is not a known IANA zone", s.Showcase.TimeZone)
		}
	}
	return nil
}

func validateVisibilitySettings(s *Settings) error {
	v := &s.Visibility
	if v.Cap < 1 {
		return fmt.Errorf("visibility.cap must be at least 1, got %d", v.Cap)
	}
	if v.RootMargin < 0 {
		return fmt.Errorf("visibility.rootmargin must not be negative")
	}
	if v.SessionTTL <= 0 {
		return fmt.Errorf("visibility.sessionttl must be positive")
	}
	return nil
}

func validateTelemetrySettings(s *Settings) error {
	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		return fmt.Errorf("telemetry.dsn is required when telemetry is enabled")
	}
	return nil
}
