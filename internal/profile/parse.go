package profile

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStages parses the compact "duration:target" list, e.g.
// "30s:20,1m:20,10s:0". Stages are named stage-1, stage-2, ...
func ParseStages(stagesStr string) ([]Stage, error) {
	var stages []Stage

	parts := strings.Split(stagesStr, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		d, err := time.ParseDuration(durationStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}

		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}

		stages = append(stages, Stage{
			Duration: d,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", len(stages)+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}

// String renders the profile in the compact form accepted by ParseStages.
func (p Profile) String() string {
	parts := make([]string, 0, len(p.Stages))
	for _, stage := range p.Stages {
		parts = append(parts, fmt.Sprintf("%s:%d", stage.Duration, stage.Target))
	}
	return strings.Join(parts, ",")
}
