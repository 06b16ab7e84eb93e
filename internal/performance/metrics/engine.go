// Package metrics collects request latencies, counters and check outcomes
// for a load run.
package metrics

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/vuramp/internal/check"
)

// Phase represents a phase of the load run.
type Phase string

const (
	// PhaseInit is the phase before the first stage starts
	PhaseInit Phase = "init"

	// PhaseRampUp is a stage where the VU count is increasing
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is a stage that holds the VU count
	PhaseSteady Phase = "steady"

	// PhaseRampDown is a stage where the VU count is decreasing
	PhaseRampDown Phase = "ramp-down"

	// PhaseDone indicates the run has completed
	PhaseDone Phase = "done"
)

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// Engine collects and aggregates run metrics using an HDR histogram.
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations and
// the histogram is mutex protected. Every recording is mirrored into the
// Prometheus collectors.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	totalRequests  atomic.Int64
	failedRequests atomic.Int64
	totalBytes     atomic.Int64
	iterations     atomic.Int64

	activeVUs atomic.Int32
	maxVUs    atomic.Int32

	checks     *check.Recorder
	collectors *Collectors

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time
	stopTime  atomic.Pointer[time.Time]

	config EngineConfig
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// Collectors receives a copy of every recording. When nil a fresh set
	// on a private registry is created.
	Collectors *Collectors
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
func NewEngineWithConfig(config EngineConfig) *Engine {
	defaults := DefaultEngineConfig()
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}

	collectors := config.Collectors
	if collectors == nil {
		collectors = MustNewCollectors(nil)
	}

	return &Engine{
		latencyHist:  hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		checks:       check.NewRecorder(),
		collectors:   collectors,
		currentPhase: PhaseInit,
		phaseHistory: make([]PhaseChange, 0),
		startTime:    time.Now(),
		config:       config,
	}
}

// RecordResponse records the request part of an iteration.
func (e *Engine) RecordResponse(resp *check.Response) {
	if resp == nil {
		return
	}

	latencyMicros := resp.Duration.Microseconds()
	if latencyMicros < e.config.HistogramMin {
		latencyMicros = e.config.HistogramMin
	}
	if latencyMicros > e.config.HistogramMax {
		latencyMicros = e.config.HistogramMax
	}

	// HDR histogram RecordValue is not thread-safe
	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	e.totalRequests.Add(1)
	e.totalBytes.Add(resp.Bytes)
	if resp.Failed() {
		e.failedRequests.Add(1)
	}

	e.collectors.HTTPReqs.WithLabelValues(statusLabel(resp)).Inc()
	e.collectors.HTTPReqDuration.Observe(resp.Duration.Seconds())
}

// statusLabel is the status code, or "error" for transport failures.
func statusLabel(resp *check.Response) string {
	if resp.Err != nil && resp.StatusCode == 0 {
		return "error"
	}
	return strconv.Itoa(resp.StatusCode)
}

// RecordCheck implements check.Sink.
func (e *Engine) RecordCheck(name string, ok bool) {
	e.checks.RecordCheck(name, ok)

	result := "fail"
	if ok {
		result = "pass"
	}
	e.collectors.Checks.WithLabelValues(name, result).Inc()
}

// RecordIteration counts one completed iteration.
func (e *Engine) RecordIteration() {
	e.iterations.Add(1)
	e.collectors.Iterations.Inc()
}

// SetPhase updates the current run phase.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current run phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// SetActiveVUs updates the active VU count and the high-water mark.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
	e.collectors.VUs.Set(float64(count))

	for {
		current := e.maxVUs.Load()
		if int32(count) <= current || e.maxVUs.CompareAndSwap(current, int32(count)) {
			break
		}
	}
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// Checks returns the per-check tallies.
func (e *Engine) Checks() []check.Result {
	return e.checks.Results()
}

// Collectors returns the Prometheus collectors fed by this engine.
func (e *Engine) Collectors() *Collectors {
	return e.collectors
}

// GetLatencyStats returns the current latency distribution.
func (e *Engine) GetLatencyStats() LatencyStats {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyStats{
		Min:    time.Duration(e.latencyHist.Min()) * time.Microsecond,
		Max:    time.Duration(e.latencyHist.Max()) * time.Microsecond,
		Mean:   time.Duration(e.latencyHist.Mean()) * time.Microsecond,
		StdDev: time.Duration(e.latencyHist.StdDev()) * time.Microsecond,
		P50:    time.Duration(e.latencyHist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(e.latencyHist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(e.latencyHist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(e.latencyHist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  e.latencyHist.TotalCount(),
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	now := time.Now()
	end := now
	if stopped := e.stopTime.Load(); stopped != nil {
		end = *stopped
	}
	elapsed := end.Sub(e.startTime)

	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	rps := 0.0
	if elapsed.Seconds() > 0 {
		rps = float64(totalReqs) / elapsed.Seconds()
	}

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	return &Snapshot{
		TotalRequests:  totalReqs,
		FailedRequests: failedReqs,
		TotalBytes:     e.totalBytes.Load(),
		Iterations:     e.iterations.Load(),
		Latency:        e.GetLatencyStats(),
		RPS:            rps,
		ErrorRate:      errorRate,
		ActiveVUs:      e.GetActiveVUs(),
		MaxVUs:         int(e.maxVUs.Load()),
		Checks:         e.checks.Results(),
		CurrentPhase:   e.GetPhase(),
		Elapsed:        elapsed,
		StartTime:      e.startTime,
		Timestamp:      now,
	}
}

// Stop freezes the elapsed time used for rate calculations.
func (e *Engine) Stop() {
	now := time.Now()
	e.stopTime.CompareAndSwap(nil, &now)
}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	TotalRequests  int64          `json:"totalRequests"`
	FailedRequests int64          `json:"failedRequests"`
	TotalBytes     int64          `json:"totalBytes"`
	Iterations     int64          `json:"iterations"`
	Latency        LatencyStats   `json:"latency"`
	RPS            float64        `json:"rps"`
	ErrorRate      float64        `json:"errorRate"`
	ActiveVUs      int            `json:"activeVUs"`
	MaxVUs         int            `json:"maxVUs"`
	Checks         []check.Result `json:"checks"`
	CurrentPhase   Phase          `json:"currentPhase"`
	Elapsed        time.Duration  `json:"elapsed"`
	StartTime      time.Time      `json:"startTime"`
	Timestamp      time.Time      `json:"timestamp"`
}

// CheckTotals sums passes and fails over every check in the snapshot.
func (s *Snapshot) CheckTotals() check.Result {
	return check.Totals(s.Checks)
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
