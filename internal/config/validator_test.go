package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(c *Config)
		wantPaths []string
	}{
		{
			name:   "defaults",
			modify: func(c *Config) {},
		},
		{
			name:   "empty base url is accepted",
			modify: func(c *Config) { c.BaseURL = "" },
		},
		{
			name:   "upper case level",
			modify: func(c *Config) { c.LogLevel = "DEBUG" },
		},
		{
			name:      "unknown level",
			modify:    func(c *Config) { c.LogLevel = "trace" },
			wantPaths: []string{KeyLogLevel},
		},
		{
			name:      "unknown format",
			modify:    func(c *Config) { c.LogFormat = "xml" },
			wantPaths: []string{KeyLogFormat},
		},
		{
			name:      "zero timeout",
			modify:    func(c *Config) { c.HTTPTimeout = 0 },
			wantPaths: []string{KeyHTTPTimeout},
		},
		{
			name:   "zero graceful stop",
			modify: func(c *Config) { c.GracefulStop = 0 },
		},
		{
			name:      "negative graceful stop",
			modify:    func(c *Config) { c.GracefulStop = -time.Second },
			wantPaths: []string{KeyGracefulStop},
		},
		{
			name:   "metrics addr",
			modify: func(c *Config) { c.MetricsAddr = "127.0.0.1:9090" },
		},
		{
			name:      "metrics addr without port",
			modify:    func(c *Config) { c.MetricsAddr = "localhost" },
			wantPaths: []string{KeyMetricsAddr},
		},
		{
			name: "several errors",
			modify: func(c *Config) {
				c.LogFormat = ""
				c.HTTPTimeout = -1
			},
			wantPaths: []string{KeyLogFormat, KeyHTTPTimeout},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)

			errs := ValidateConfig(&cfg)
			var paths []string
			for _, err := range errs {
				paths = append(paths, err.Path)
			}
			assert.Equal(t, tt.wantPaths, paths)

			if len(tt.wantPaths) == 0 {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	err := ValidationErrors{
		{Path: "a", Message: "bad"},
		{Path: "b", Message: "worse"},
	}
	assert.Equal(t, "invalid configuration: a: bad; b: worse", err.Error())
}
