// Package profile describes the staged virtual-user ramp a run follows.
package profile

import (
	"encoding/json"
	"time"
)

// Stage is one time-bounded ramp target.
//
// During a stage the VU count moves linearly from the previous stage's
// target (0 for the first stage) to Target over Duration.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional label for reporting
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Profile is an ordered list of stages. Order defines the ramp shape.
type Profile struct {
	Stages []Stage `json:"stages" yaml:"stages"`
}

// Default returns the get-users ramp: 0→20 VUs over 30s, hold 20 VUs for
// one minute, then 20→0 over 10s.
func Default() Profile {
	return Profile{
		Stages: []Stage{
			{Duration: 30 * time.Second, Target: 20, Name: "ramp-up"},
			{Duration: 1 * time.Minute, Target: 20, Name: "steady"},
			{Duration: 10 * time.Second, Target: 0, Name: "ramp-down"},
		},
	}
}

// TotalDuration returns the sum of all stage durations.
func (p Profile) TotalDuration() time.Duration {
	var total time.Duration
	for _, stage := range p.Stages {
		total += stage.Duration
	}
	return total
}

// MaxTarget returns the highest target across all stages.
func (p Profile) MaxTarget() int {
	maxTarget := 0
	for _, stage := range p.Stages {
		if stage.Target > maxTarget {
			maxTarget = stage.Target
		}
	}
	return maxTarget
}

// Ramp returns the VU counts a stage ramps from and to.
func (p Profile) Ramp(stageIdx int) (from, to int) {
	if stageIdx < 0 || stageIdx >= len(p.Stages) {
		return 0, 0
	}
	if stageIdx > 0 {
		from = p.Stages[stageIdx-1].Target
	}
	return from, p.Stages[stageIdx].Target
}

// TargetAt returns the interpolated VU target and the index of the active
// stage at the given elapsed time.
//
// Past the last stage the final target is returned together with the last
// stage index. The result is never negative.
func (p Profile) TargetAt(elapsed time.Duration) (target, stageIdx int) {
	if len(p.Stages) == 0 {
		return 0, 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	var stageStart time.Duration
	prevTarget := 0

	for i, stage := range p.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			// Progress within this stage (0.0 to 1.0)
			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress < 0 {
				progress = 0
			}
			if progress > 1 {
				progress = 1
			}

			vus := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return clampNonNegative(int(vus + 0.5)), i
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	last := len(p.Stages) - 1
	return clampNonNegative(p.Stages[last].Target), last
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

type stageJSON struct {
	Duration string `json:"duration" yaml:"duration"`
	Target   int    `json:"target" yaml:"target"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

// MarshalJSON renders the duration as a Go duration string ("30s", "1m0s").
func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(stageJSON{
		Duration: s.Duration.String(),
		Target:   s.Target,
		Name:     s.Name,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stage) UnmarshalJSON(b []byte) error {
	var raw stageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var d time.Duration
	if raw.Duration != "" {
		var err error
		d, err = time.ParseDuration(raw.Duration)
		if err != nil {
			return err
		}
	}

	*s = Stage{Duration: d, Target: raw.Target, Name: raw.Name}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Stage) MarshalYAML() (interface{}, error) {
	return stageJSON{
		Duration: s.Duration.String(),
		Target:   s.Target,
		Name:     s.Name,
	}, nil
}
