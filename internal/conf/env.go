package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "SHOWCASE_DEBUG", validateEnvBool},

		{"webserver.host", "SHOWCASE_HOST", nil},
		{"webserver.port", "SHOWCASE_PORT", validateEnvPort},
		{"webserver.ratelimit", "SHOWCASE_RATELIMIT", validateEnvFloat},

		{"site.root", "SHOWCASE_SITE_ROOT", nil},
		{"site.title", "SHOWCASE_SITE_TITLE", nil},

		{"manifest.url", "SHOWCASE_MANIFEST_URL", nil},
		{"manifest.timeout", "SHOWCASE_MANIFEST_TIMEOUT", validateEnvDuration},
		{"manifest.retries", "SHOWCASE_MANIFEST_RETRIES", validateEnvNonNegative},
		{"manifest.cachettl", "SHOWCASE_MANIFEST_CACHETTL", validateEnvDuration},

		{"showcase.lazy", "SHOWCASE_LAZY", validateEnvBool},
		{"showcase.locale", "SHOWCASE_LOCALE", validateEnvLocale},
		{"showcase.timezone", "SHOWCASE_TIMEZONE", validateEnvTimeZone},

		{"visibility.cap", "SHOWCASE_VISIBILITY_CAP", validateEnvNonNegative},

		{"logging.level", "SHOWCASE_LOG_LEVEL", validateEnvLogLevel},
		{"logging.file", "SHOWCASE_LOG_FILE", nil},

		{"telemetry.enabled", "SHOWCASE_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "SHOWCASE_SENTRY_DSN", nil},
		{"metrics.enabled", "SHOWCASE_METRICS_ENABLED", validateEnvBool},
	}
}

// bindEnvVars binds environment variables and validates any that are set
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f < 0 {
		return fmt.Errorf("must not be negative, got %g", f)
	}
	return nil
}

func validateEnvNonNegative(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	if _, err := time.ParseDuration(value); err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	return nil
}

func validateEnvLocale(value string) error {
	if _, err := language.Parse(value); err != nil {
		return fmt.Errorf("invalid BCP 47 tag: %w", err)
	}
	return nil
}

func validateEnvTimeZone(value string) error {
	if _, err := time.LoadLocation(value); err != nil {
		return fmt.Errorf("invalid time zone: %w", err)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("log level must be one of trace, debug, info, warn, error")
}
