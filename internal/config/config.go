package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "ROSTER"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultBackendAddress = "0.0.0.0:8000"
	defaultBackendBaseURL = "http://127.0.0.1:8000"
	defaultDatabasePath   = "roster.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultRequestTimeout = 10 * time.Second
	defaultRateLimit      = 5.0
	defaultRateBurst      = 10
)

// AppConfig captures runtime configuration for the view and backend servers.
type AppConfig struct {
	HTTPAddress    string
	BackendAddress string
	BackendBaseURL string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	// RequestTimeout bounds each backend request made by the view. Zero disables it.
	RequestTimeout time.Duration
	// RateLimit is the sustained rate of /ui posts per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("backend.address", defaultBackendAddress)
	configViper.SetDefault("backend.base_url", defaultBackendBaseURL)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("client.timeout", defaultRequestTimeout)
	configViper.SetDefault("ui.rate_limit", defaultRateLimit)
	configViper.SetDefault("ui.rate_burst", defaultRateBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		BackendAddress: configViper.GetString("backend.address"),
		BackendBaseURL: configViper.GetString("backend.base_url"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		RequestTimeout: configViper.GetDuration("client.timeout"),
		RateLimit:      configViper.GetFloat64("ui.rate_limit"),
		RateBurst:      configViper.GetInt("ui.rate_burst"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if strings.TrimSpace(c.BackendAddress) == "" {
		return fmt.Errorf("backend.address is required")
	}
	if strings.TrimSpace(c.BackendBaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	parsed, err := url.Parse(c.BackendBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("backend.base_url must be an absolute url: %q", c.BackendBaseURL)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "json", "console", "":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.LogFormat)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("client.timeout must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("ui.rate_limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("ui.rate_burst must be at least 1 when rate limiting is enabled")
	}
	return nil
}
