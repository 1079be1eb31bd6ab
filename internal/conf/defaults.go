package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values, kept in sync with config.yaml.
const (
	DefaultPort       = 8080
	DefaultCap        = 20
	DefaultRootMargin = 100
	DefaultLocale     = "ja-JP"
)

func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("webserver.host", "")
	viper.SetDefault("webserver.port", DefaultPort)
	viper.SetDefault("webserver.readtimeout", 15*time.Second)
	viper.SetDefault("webserver.writetimeout", 30*time.Second)
	viper.SetDefault("webserver.bodylimit", "64K")
	viper.SetDefault("webserver.ratelimit", 20.0)

	viper.SetDefault("site.root", ".")
	viper.SetDefault("site.title", "Daily Challenges")

	viper.SetDefault("manifest.url", "")
	viper.SetDefault("manifest.timeout", 10*time.Second)
	viper.SetDefault("manifest.retries", 2)
	viper.SetDefault("manifest.retrydelay", time.Second)
	viper.SetDefault("manifest.cachettl", time.Duration(0))

	viper.SetDefault("showcase.lazy", true)
	viper.SetDefault("showcase.locale", DefaultLocale)
	viper.SetDefault("showcase.timezone", "")

	viper.SetDefault("visibility.cap", DefaultCap)
	viper.SetDefault("visibility.rootmargin", DefaultRootMargin)
	viper.SetDefault("visibility.sessionttl", 30*time.Minute)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")

	viper.SetDefault("metrics.enabled", true)
}
