// Package config resolves runtime settings from flags, environment and an
// optional config file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys. Config files use the same snake_case names.
const (
	KeyBaseURL            = "base_url"
	KeyLogLevel           = "log_level"
	KeyLogFormat          = "log_format"
	KeyMetricsAddr        = "metrics_addr"
	KeyHTTPTimeout        = "http_timeout"
	KeyGracefulStop       = "graceful_stop"
	KeyInsecureSkipVerify = "insecure_skip_verify"
)

// EnvBaseURL is the environment variable holding the target prefix.
const EnvBaseURL = "BASE_URL"

// Defaults
const (
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultGracefulStop = 30 * time.Second
)

// Config holds the resolved runtime settings.
type Config struct {
	// BaseURL is used verbatim as the prefix of every request URL
	BaseURL string `mapstructure:"base_url" json:"baseUrl"`

	LogLevel  string `mapstructure:"log_level" json:"logLevel"`
	LogFormat string `mapstructure:"log_format" json:"logFormat"`

	// MetricsAddr enables the Prometheus endpoint when non-empty
	MetricsAddr string `mapstructure:"metrics_addr" json:"metricsAddr,omitempty"`

	HTTPTimeout        time.Duration `mapstructure:"http_timeout" json:"httpTimeout"`
	GracefulStop       time.Duration `mapstructure:"graceful_stop" json:"gracefulStop"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" json:"insecureSkipVerify"`
}

// Default returns a Config with every default applied and no base URL.
func Default() Config {
	return Config{
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		HTTPTimeout:  DefaultHTTPTimeout,
		GracefulStop: DefaultGracefulStop,
	}
}

// envBindings maps configuration keys to environment variables.
var envBindings = map[string]string{
	KeyBaseURL:            EnvBaseURL,
	KeyLogLevel:           "LOG_LEVEL",
	KeyLogFormat:          "LOG_FORMAT",
	KeyMetricsAddr:        "METRICS_ADDR",
	KeyHTTPTimeout:        "HTTP_TIMEOUT",
	KeyGracefulStop:       "GRACEFUL_STOP",
	KeyInsecureSkipVerify: "INSECURE_SKIP_VERIFY",
}

// flagBindings maps command line flags to configuration keys.
var flagBindings = map[string]string{
	"base-url":      KeyBaseURL,
	"log-level":     KeyLogLevel,
	"log-format":    KeyLogFormat,
	"metrics-addr":  KeyMetricsAddr,
	"http-timeout":  KeyHTTPTimeout,
	"graceful-stop": KeyGracefulStop,
	"insecure":      KeyInsecureSkipVerify,
}

// NewViper returns a viper instance with defaults and environment bindings
// applied. Precedence is flag, then environment, then config file, then
// default.
func NewViper() *viper.Viper {
	v := viper.New()

	defaults := Default()
	v.SetDefault(KeyBaseURL, defaults.BaseURL)
	v.SetDefault(KeyLogLevel, defaults.LogLevel)
	v.SetDefault(KeyLogFormat, defaults.LogFormat)
	v.SetDefault(KeyMetricsAddr, defaults.MetricsAddr)
	v.SetDefault(KeyHTTPTimeout, defaults.HTTPTimeout)
	v.SetDefault(KeyGracefulStop, defaults.GracefulStop)
	v.SetDefault(KeyInsecureSkipVerify, defaults.InsecureSkipVerify)

	for key, env := range envBindings {
		// BindEnv only fails when called without a key
		_ = v.BindEnv(key, env)
	}

	return v
}

// AddLogFlags registers the logging flags.
func AddLogFlags(flags *pflag.FlagSet) {
	defaults := Default()
	flags.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.LogFormat, "Log format (console, json)")
}

// AddRunFlags registers the flags that shape a run.
func AddRunFlags(flags *pflag.FlagSet) {
	defaults := Default()
	flags.String("base-url", "", "Target base URL (overrides $"+EnvBaseURL+")")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.Duration("http-timeout", defaults.HTTPTimeout, "HTTP request timeout")
	flags.Duration("graceful-stop", defaults.GracefulStop, "Time in-flight iterations get to finish after the last stage")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
}

// BindFlags binds every known flag present in flags to its configuration
// key. Unknown flags are ignored.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load resolves the configuration. configFile is optional; when set it must
// exist and be readable (yaml, json or toml, by extension).
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
