// Package output renders live progress and the end-of-run summary.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/vuramp/internal/performance/executor"
	"github.com/wesleyorama2/vuramp/internal/performance/metrics"
)

// Cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	rule           = "━"
	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	TotalRequests int64
	Iterations    int64
	CurrentRPS    float64

	// Check outcomes so far
	ChecksPassed int64
	ChecksFailed int64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	CurrentStage int // 1-indexed
	TotalStages  int
}

// CheckRate returns the fraction of passed checks, or 1 when none ran.
func (s *LiveStats) CheckRate() float64 {
	total := s.ChecksPassed + s.ChecksFailed
	if total == 0 {
		return 1
	}
	return float64(s.ChecksPassed) / float64(total)
}

// ConsoleOutput manages live console output during a run.
type ConsoleOutput struct {
	title  string
	writer io.Writer
	isTTY  bool
	colors *ColorScheme
	quiet  bool

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	Title       string
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.Title == "" {
		config.Title = "get-users"
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	colors := NoColorScheme()
	if useColors {
		colors = DefaultColorScheme()
	}

	return &ConsoleOutput{
		title:  config.Title,
		writer: config.Writer,
		isTTY:  isTTY,
		colors: colors,
		quiet:  config.Quiet,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader(runID, url string, stages int, duration time.Duration) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(rule, 56)
	c.writeln(c.colors.Header.Sprint(line))
	c.writeln(c.colors.Label.Sprintf("%s - Running", c.title))
	c.writeln(c.colors.Header.Sprint(line))
	c.writeln(fmt.Sprintf("  run:      %s", c.colors.Dim.Sprint(runID)))
	c.writeln(fmt.Sprintf("  target:   GET %s", c.colors.Value.Sprint(url)))
	c.writeln(fmt.Sprintf("  stages:   %d, %s total", stages, formatDuration(duration)))
	c.writeln("")
}

// Update redraws the live display in place. It does nothing on non-TTY
// writers; use PrintNonInteractiveUpdate there.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

// clearLive erases the previous live display. Callers hold mu.
func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

// renderLiveStats renders the live statistics display.
func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	var lines []string

	progressBar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		c.colors.Pass.Sprint(progressBar),
		c.colors.Label.Sprintf("%.0f%%", stats.Progress*100),
		c.colors.Dim.Sprint(timeInfo)))

	phaseInfo := stats.CurrentPhase
	if stats.TotalStages > 0 && stats.CurrentStage > 0 {
		phaseInfo = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, fmt.Sprintf("Stage:    %s", c.colors.Phase.Sprint(phaseInfo)))

	lines = append(lines, fmt.Sprintf("VUs:      %s / %d   Requests: %s   RPS: %s",
		c.colors.Value.Sprint(stats.ActiveVUs),
		stats.TargetVUs,
		c.colors.Value.Sprint(formatNumber(stats.TotalRequests)),
		c.colors.Pass.Sprintf("%.1f", stats.CurrentRPS)))

	rate := stats.CheckRate()
	lines = append(lines, fmt.Sprintf("Checks:   %s  %s %s  %s %s   Avg: %s   P95: %s",
		c.colors.rateColor(rate).Sprintf("%.1f%%", rate*100),
		c.colors.Pass.Sprint("✓"), formatNumber(stats.ChecksPassed),
		c.colors.Fail.Sprint("✗"), formatNumber(stats.ChecksFailed),
		c.colors.Latency.Sprint(formatDurationShort(stats.LatencyAvg)),
		c.colors.Latency.Sprint(formatDurationShort(stats.LatencyP95))))

	return lines
}

// PrintNonInteractiveUpdate prints a one-line status update.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s | Progress: %.0f%% | VUs: %d/%d | Reqs: %d | Iters: %d | Checks: %.1f%% | Avg: %s | P95: %s",
		formatDuration(stats.Elapsed),
		stats.CurrentPhase,
		stats.Progress*100,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.Iterations,
		stats.CheckRate()*100,
		formatDurationShort(stats.LatencyAvg),
		formatDurationShort(stats.LatencyP95)))
}

// write writes to the output without a newline.
func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

// writeln writes to the output with a newline.
func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// renderProgressBar renders a progress bar.
func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	empty := width - filled

	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, empty) + "]"
}

// StatsFromMetrics builds LiveStats from a metrics snapshot and the
// executor's stage statistics. Either may be nil.
func StatsFromMetrics(snapshot *metrics.Snapshot, stats *executor.Stats, progress float64) *LiveStats {
	live := &LiveStats{
		Progress:     progress,
		CurrentPhase: string(metrics.PhaseInit),
	}

	if stats != nil {
		live.TargetVUs = stats.TargetVUs
		live.TotalStages = stats.TotalStages
		live.CurrentStage = stats.CurrentStage + 1
		live.Elapsed = stats.Elapsed
		if remaining := stats.TotalDuration - stats.Elapsed; remaining > 0 {
			live.Remaining = remaining
		}
	}

	if snapshot == nil {
		return live
	}

	totals := snapshot.CheckTotals()
	live.ActiveVUs = snapshot.ActiveVUs
	live.TotalRequests = snapshot.TotalRequests
	live.Iterations = snapshot.Iterations
	live.CurrentRPS = snapshot.RPS
	live.ChecksPassed = totals.Passes
	live.ChecksFailed = totals.Fails
	live.LatencyP95 = snapshot.Latency.P95
	live.LatencyAvg = snapshot.Latency.Mean
	live.CurrentPhase = string(snapshot.CurrentPhase)
	if stats == nil {
		live.Elapsed = snapshot.Elapsed
	}

	return live
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency the way the summary prints it.
func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0s"
	case d < time.Millisecond:
		return fmt.Sprintf("%.2fµs", float64(d)/float64(time.Microsecond))
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
