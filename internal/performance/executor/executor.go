// Package executor drives the VU count of a run over time.
package executor

import (
	"time"

	"github.com/wesleyorama2/vuramp/internal/profile"
)

// DefaultGracefulStop is how long in-flight iterations may run once the
// last stage has elapsed.
const DefaultGracefulStop = 30 * time.Second

// controllerInterval is how often the target VU count is re-evaluated.
const controllerInterval = 100 * time.Millisecond

// Config contains configuration for the ramping executor.
type Config struct {
	// Profile is the stage sequence to follow
	Profile profile.Profile `json:"profile" yaml:"profile"`

	// GracefulStop bounds the wait for in-flight iterations at the end
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if err := c.Profile.Validate(); err != nil {
		return err
	}
	if c.GracefulStop < 0 {
		return &profile.ValidationError{Field: "gracefulStop", Message: "must not be negative"}
	}
	return nil
}

// Stats contains real-time executor statistics.
type Stats struct {
	// Timing
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	// VU stats
	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	Iterations int64 `json:"iterations"`

	// Stage info
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}
