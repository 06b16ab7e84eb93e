// Package engine wires the get-users script, the VU scheduler, the ramping
// executor and the metrics engine into a single run.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wesleyorama2/vuramp/internal/check"
	"github.com/wesleyorama2/vuramp/internal/config"
	"github.com/wesleyorama2/vuramp/internal/performance"
	"github.com/wesleyorama2/vuramp/internal/performance/executor"
	"github.com/wesleyorama2/vuramp/internal/performance/metrics"
	"github.com/wesleyorama2/vuramp/internal/profile"
	"github.com/wesleyorama2/vuramp/internal/script"
)

// Engine runs the ramp profile against a base URL.
//
// Example usage:
//
//	eng, _ := engine.New(cfg, engine.WithLogger(log))
//	result, _ := eng.Run(ctx)
//	fmt.Printf("checks passed: %v\n", result.Passed())
//
// An Engine runs once.
type Engine struct {
	config     config.Config
	profile    profile.Profile
	pause      time.Duration
	httpConfig performance.HTTPClientConfig
	logger     *zap.Logger
	registry   *prometheus.Registry
	collectors *metrics.Collectors
	runID      string

	metricsEngine *metrics.Engine
	executor      *executor.RampingVUs

	mu        sync.RWMutex
	running   bool
	started   bool
	stopped   atomic.Bool
	startTime time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithProfile replaces the default stage sequence.
func WithProfile(p profile.Profile) Option {
	return func(e *Engine) { e.profile = p }
}

// WithPause replaces the pause at the end of each iteration.
func WithPause(d time.Duration) Option {
	return func(e *Engine) { e.pause = d }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry registers the run's Prometheus collectors on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithHTTPConfig replaces the HTTP client settings derived from the config.
func WithHTTPConfig(cfg performance.HTTPClientConfig) Option {
	return func(e *Engine) { e.httpConfig = cfg }
}

// Result contains the outcome of a run.
type Result struct {
	RunID     string          `json:"runId"`
	BaseURL   string          `json:"baseUrl"`
	Stages    []profile.Stage `json:"stages"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Duration  time.Duration   `json:"duration"`

	Metrics    *metrics.Snapshot     `json:"metrics"`
	Phases     []metrics.PhaseChange `json:"phases"`
	Checks     []check.Result        `json:"checks"`
	Iterations int64                 `json:"iterations"`

	// Interrupted is set when the run was cancelled or stopped before the
	// last stage ended.
	Interrupted bool `json:"interrupted"`
}

// Passed reports whether every check evaluation passed. It is informational
// and does not affect the exit status.
func (r *Result) Passed() bool {
	for _, c := range r.Checks {
		if c.Fails > 0 {
			return false
		}
	}
	return true
}

// New creates an engine for cfg. The base URL is not validated.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	httpConfig := performance.DefaultHTTPClientConfig()
	if cfg.HTTPTimeout > 0 {
		httpConfig.Timeout = cfg.HTTPTimeout
	}
	httpConfig.InsecureSkipVerify = cfg.InsecureSkipVerify

	e := &Engine{
		config:     cfg,
		profile:    profile.Default(),
		pause:      script.IterationPause,
		httpConfig: httpConfig,
		logger:     zap.NewNop(),
		runID:      uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	collectors, err := metrics.NewCollectors(e.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	e.collectors = collectors
	e.logger = e.logger.With(zap.String("run_id", e.runID))

	return e, nil
}

// Run executes the profile and blocks until it completes or ctx is
// cancelled. A cancelled run still returns its partial Result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine has already run")
	}
	e.started = true
	e.running = true
	e.startTime = time.Now()

	e.metricsEngine = metrics.NewEngineWithConfig(metrics.EngineConfig{Collectors: e.collectors})
	e.executor = executor.NewRampingVUs(e.logger.Named("executor"))
	if e.stopped.Load() {
		// Stop arrived before Run
		_ = e.executor.Stop(context.Background())
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if err := e.executor.Init(executor.Config{Profile: e.profile, GracefulStop: e.config.GracefulStop}); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	if e.config.BaseURL == "" {
		e.logger.Warn("BASE_URL is empty; every request will fail",
			zap.String("url", script.UserURL(e.config.BaseURL)))
	}

	baseURL, pause := e.config.BaseURL, e.pause
	newIteration := func(client *http.Client) performance.Iteration {
		s := script.New(baseURL, client)
		s.Pause = pause
		return s
	}
	scheduler := performance.NewVUScheduler(newIteration, e.metricsEngine, e.httpConfig)
	scheduler.SetLogger(e.logger.Named("vu"))

	e.logger.Info("Run started",
		zap.String("url", script.UserURL(baseURL)),
		zap.String("stages", e.profile.String()),
		zap.Duration("duration", e.profile.TotalDuration()))

	runErr := e.executor.Run(ctx, scheduler, e.metricsEngine)
	e.metricsEngine.Stop()

	snapshot := e.metricsEngine.GetSnapshot()
	endTime := time.Now()

	result := &Result{
		RunID:       e.runID,
		BaseURL:     baseURL,
		Stages:      e.profile.Stages,
		StartTime:   e.startTime,
		EndTime:     endTime,
		Duration:    endTime.Sub(e.startTime),
		Metrics:     snapshot,
		Phases:      e.metricsEngine.GetPhaseHistory(),
		Checks:      snapshot.Checks,
		Iterations:  snapshot.Iterations,
		Interrupted: ctx.Err() != nil || e.stopped.Load(),
	}

	totals := snapshot.CheckTotals()
	e.logger.Info("Run finished",
		zap.Duration("duration", result.Duration),
		zap.Int64("iterations", result.Iterations),
		zap.Int64("requests", snapshot.TotalRequests),
		zap.Int64("checks_passed", totals.Passes),
		zap.Int64("checks_failed", totals.Fails),
		zap.Bool("interrupted", result.Interrupted))

	return result, runErr
}

// RunID returns the identifier attached to logs and results.
func (e *Engine) RunID() string {
	return e.runID
}

// Profile returns the stage sequence the engine runs.
func (e *Engine) Profile() profile.Profile {
	return e.profile
}

// Gatherer exposes the run's Prometheus collectors.
func (e *Engine) Gatherer() prometheus.Gatherer {
	return e.collectors.Gatherer()
}

// GetMetrics returns the current metrics snapshot, or nil before Run.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metricsEngine == nil {
		return nil
	}
	return e.metricsEngine.GetSnapshot()
}

// GetStats returns executor statistics, or nil before Run.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.executor == nil {
		return nil
	}
	return e.executor.GetStats()
}

// GetProgress returns the run progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.executor == nil {
		return 0.0
	}
	return e.executor.GetProgress()
}

// IsRunning returns true while Run is executing.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends the run early. In-flight iterations still get the graceful stop
// period to finish. Called before Run, it makes Run end as soon as it starts.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopped.Store(true)
	exec := e.executor
	e.mu.Unlock()

	if exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}
