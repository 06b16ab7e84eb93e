package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/wesleyorama2/vuramp/internal/check"
	"github.com/wesleyorama2/vuramp/internal/performance/engine"
)

// summaryLabelWidth is the dotted label column width of the metric table.
const summaryLabelWidth = 32

// PrintSummary prints the end-of-run summary: one line per check, then the
// aggregate metric table.
func (c *ConsoleOutput) PrintSummary(result *engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive()
	}

	if c.quiet {
		if result.Passed() {
			c.writeln(c.colors.Pass.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Fail.Sprint("FAILED"))
		}
		return
	}

	status := c.colors.Pass.Sprint("Completed")
	if result.Interrupted {
		status = c.colors.Warn.Sprint("Interrupted")
	}

	line := strings.Repeat(rule, 56)
	c.writeln("")
	c.writeln(c.colors.Header.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Label.Sprint(c.title), status))
	c.writeln(c.colors.Header.Sprint(line))
	c.writeln("")

	for _, res := range result.Checks {
		c.writeCheck(res)
	}
	if len(result.Checks) > 0 {
		c.writeln("")
	}

	snapshot := result.Metrics
	if snapshot == nil {
		return
	}
	seconds := snapshot.Elapsed.Seconds()

	totals := snapshot.CheckTotals()
	c.writeMetric("checks", fmt.Sprintf("%s %s %s",
		c.colors.rateColor(totals.Rate()).Sprintf("%.2f%%", totals.Rate()*100),
		c.colors.Pass.Sprint("✓ "+formatNumber(totals.Passes)),
		c.colors.Fail.Sprint("✗ "+formatNumber(totals.Fails))))

	lat := snapshot.Latency
	c.writeMetric("http_req_duration", fmt.Sprintf("avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s",
		c.colors.Latency.Sprint(formatDurationShort(lat.Mean)),
		c.colors.Latency.Sprint(formatDurationShort(lat.Min)),
		c.colors.Latency.Sprint(formatDurationShort(lat.P50)),
		c.colors.Latency.Sprint(formatDurationShort(lat.Max)),
		c.colors.Latency.Sprint(formatDurationShort(lat.P90)),
		c.colors.Latency.Sprint(formatDurationShort(lat.P95))))

	c.writeMetric("http_req_failed", fmt.Sprintf("%s %s %s",
		c.colors.rateColor(1-snapshot.ErrorRate).Sprintf("%.2f%%", snapshot.ErrorRate*100),
		c.colors.Pass.Sprint("✓ "+formatNumber(snapshot.FailedRequests)),
		c.colors.Fail.Sprint("✗ "+formatNumber(snapshot.TotalRequests-snapshot.FailedRequests))))

	c.writeMetric("http_reqs", countAndRate(c, snapshot.TotalRequests, seconds))
	c.writeMetric("data_received", fmt.Sprintf("%s %s",
		c.colors.Value.Sprint(formatBytes(snapshot.TotalBytes)),
		c.colors.Dim.Sprint(formatBytes(perSecond(snapshot.TotalBytes, seconds))+"/s")))
	c.writeMetric("iterations", countAndRate(c, result.Iterations, seconds))
	c.writeMetric("vus_max", c.colors.Value.Sprint(snapshot.MaxVUs))
	c.writeMetric("duration", c.colors.Value.Sprint(formatDuration(result.Duration.Round(time.Millisecond))))
	c.writeln("")
}

// writeCheck prints a check as ✓ when it never failed, and as ✗ with its
// pass ratio otherwise.
func (c *ConsoleOutput) writeCheck(res check.Result) {
	if res.Fails == 0 {
		c.writeln(fmt.Sprintf("     %s %s", c.colors.Pass.Sprint("✓"), res.Name))
		return
	}

	c.writeln(fmt.Sprintf("     %s %s", c.colors.Fail.Sprint("✗"), res.Name))
	c.writeln(fmt.Sprintf("      %s %.0f%% — %s / %s",
		c.colors.Dim.Sprint("↳"),
		res.Rate()*100,
		c.colors.Pass.Sprint("✓ "+formatNumber(res.Passes)),
		c.colors.Fail.Sprint("✗ "+formatNumber(res.Fails))))
}

// writeMetric prints a "name......: value" row.
func (c *ConsoleOutput) writeMetric(name, value string) {
	dots := summaryLabelWidth - len(name)
	if dots < 3 {
		dots = 3
	}
	c.writeln(fmt.Sprintf("     %s%s: %s", name, c.colors.Dim.Sprint(strings.Repeat(".", dots)), value))
}

func countAndRate(c *ConsoleOutput, n int64, seconds float64) string {
	return fmt.Sprintf("%s %s",
		c.colors.Value.Sprint(formatNumber(n)),
		c.colors.Dim.Sprintf("%.2f/s", float64(n)/nonZero(seconds)))
}

func perSecond(n int64, seconds float64) int64 {
	return int64(float64(n) / nonZero(seconds))
}

func nonZero(seconds float64) float64 {
	if seconds <= 0 {
		return 1
	}
	return seconds
}

// formatBytes formats a byte count with decimal units.
func formatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}
