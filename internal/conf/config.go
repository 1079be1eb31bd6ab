// Package conf loads showcase settings from defaults, the config file and SHOWCASE_* environment variables.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/showcase/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the root configuration
type Settings struct {
	Debug bool `yaml:"debug"`

	WebServer  WebServerSettings  `yaml:"webserver"`
	Site       SiteSettings       `yaml:"site"`
	Manifest   ManifestSettings   `yaml:"manifest"`
	Showcase   ShowcaseSettings   `yaml:"showcase"`
	Visibility VisibilitySettings `yaml:"visibility"`
	Logging    LoggingSettings    `yaml:"logging"`
	Telemetry  TelemetrySettings  `yaml:"telemetry"`
	Metrics    MetricsSettings    `yaml:"metrics"`
}

// WebServerSettings controls the HTTP listener
type WebServerSettings struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readtimeout"`
	WriteTimeout time.Duration `yaml:"writetimeout"`
	BodyLimit    string        `yaml:"bodylimit"` // echo size notation, e.g. "64K"
	RateLimit    float64       `yaml:"ratelimit"` // requests per second per client on /api, 0 disables
}

// SiteSettings describes the directory holding manifest.json and the dayN/ folders
type SiteSettings struct {
	Root  string `yaml:"root"`
	Title string `yaml:"title"`
}

// ManifestSettings configures the manifest loader
type ManifestSettings struct {
	URL        string        `yaml:"url"` // empty means the service's own /manifest.json
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retrydelay"`
	CacheTTL   time.Duration `yaml:"cachettl"` // 0 keeps the manifest for the process lifetime
}

// ShowcaseSettings selects the page variant
type ShowcaseSettings struct {
	Lazy     bool   `yaml:"lazy"`
	Locale   string `yaml:"locale"`
	TimeZone string `yaml:"timezone"` // IANA zone for card dates, empty follows the locale
}

// VisibilitySettings configures the frame working set
type VisibilitySettings struct {
	Cap        int           `yaml:"cap"`
	RootMargin int           `yaml:"rootmargin"`
	SessionTTL time.Duration `yaml:"sessionttl"`
}

type LoggingSettings struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // JSON log file, empty disables
}

type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type MetricsSettings struct {
	Enabled bool `yaml:"enabled"`
}

// ManifestURL returns the configured manifest URL, defaulting to the
// service's own origin. A wildcard or empty host is reached on loopback.
func (s *Settings) ManifestURL() string {
	if s.Manifest.URL != "" {
		return s.Manifest.URL
	}

	host := s.WebServer.Host
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.WebServer.Port)) + "/manifest.json"
}

// ManifestPath returns the manifest file inside the site root.
func (s *Settings) ManifestPath() string {
	return filepath.Join(s.Site.Root, "manifest.json")
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file (configFile, or the first config.yaml
// found on the default search paths) and environment overrides.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Defaults and environment are enough to run.
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}
	return nil
}

// GetSettings returns the most recently loaded settings, or nil
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// DefaultConfig returns the embedded, commented default config.yaml
func DefaultConfig() []byte {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return data
}

// WriteDefaultConfig writes the embedded default config to path, refusing
// to overwrite an existing file.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file %s already exists", path).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(path, DefaultConfig(), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// YAML renders settings as YAML.
func (s *Settings) YAML() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}
