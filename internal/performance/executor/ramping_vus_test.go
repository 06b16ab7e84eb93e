package executor_test

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wesleyorama2/vuramp/internal/check"
	"github.com/wesleyorama2/vuramp/internal/performance"
	"github.com/wesleyorama2/vuramp/internal/performance/executor"
	"github.com/wesleyorama2/vuramp/internal/performance/metrics"
	"github.com/wesleyorama2/vuramp/internal/profile"
)

// sleepIteration passes its check and then sleeps for delay, or until ctx is
// cancelled.
type sleepIteration struct {
	delay    time.Duration
	started  *atomic.Int64
	finished *atomic.Int64
}

func (s *sleepIteration) Iterate(ctx context.Context, sink check.Sink) *check.Response {
	s.started.Add(1)
	resp := &check.Response{StatusCode: http.StatusOK, Duration: time.Millisecond}
	check.Run(resp, sink, check.StatusIs(http.StatusOK))

	select {
	case <-ctx.Done():
		return resp
	case <-time.After(s.delay):
	}
	s.finished.Add(1)
	return resp
}

type harness struct {
	executor  *executor.RampingVUs
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine
	started   atomic.Int64
	finished  atomic.Int64
}

func newHarness(t *testing.T, cfg executor.Config, delay time.Duration) *harness {
	t.Helper()

	h := &harness{
		executor: executor.NewRampingVUs(nil),
		metrics:  metrics.NewEngine(),
	}
	newIteration := func(*http.Client) performance.Iteration {
		return &sleepIteration{delay: delay, started: &h.started, finished: &h.finished}
	}
	h.scheduler = performance.NewVUScheduler(newIteration, h.metrics, performance.DefaultHTTPClientConfig())

	if err := h.executor.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return h
}

// waitFor polls cond every 10ms until it holds or timeout passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (h *harness) run(ctx context.Context) error {
	return h.executor.Run(ctx, h.scheduler, h.metrics)
}

func TestRampingVUs_Init(t *testing.T) {
	t.Run("valid config gets default graceful stop", func(t *testing.T) {
		e := executor.NewRampingVUs(nil)
		if err := e.Init(executor.Config{Profile: profile.Default()}); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
		if !reflect.DeepEqual(e.Profile(), profile.Default()) {
			t.Errorf("Profile() = %v, want the default profile", e.Profile())
		}
	})

	t.Run("empty profile", func(t *testing.T) {
		e := executor.NewRampingVUs(nil)
		err := e.Init(executor.Config{})
		if err == nil || !strings.Contains(err.Error(), "at least one stage") {
			t.Errorf("Init() error = %v, want an empty profile error", err)
		}
	})

	t.Run("negative graceful stop", func(t *testing.T) {
		e := executor.NewRampingVUs(nil)
		err := e.Init(executor.Config{Profile: profile.Default(), GracefulStop: -time.Second})
		if err == nil || !strings.Contains(err.Error(), "gracefulStop") {
			t.Errorf("Init() error = %v, want a gracefulStop error", err)
		}
	})
}

func TestRampingVUs_FollowsStages(t *testing.T) {
	cfg := executor.Config{
		Profile: profile.Profile{Stages: []profile.Stage{
			{Duration: 300 * time.Millisecond, Target: 4},
			{Duration: 300 * time.Millisecond, Target: 4},
			{Duration: 200 * time.Millisecond, Target: 0},
		}},
		GracefulStop: time.Second,
	}
	h := newHarness(t, cfg, 20*time.Millisecond)

	start := time.Now()
	if err := h.run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 800*time.Millisecond || elapsed >= 2*time.Second {
		t.Errorf("run took %v, want between 800ms and 2s", elapsed)
	}

	snapshot := h.metrics.GetSnapshot()
	if snapshot.MaxVUs != 4 {
		t.Errorf("MaxVUs = %d, want 4", snapshot.MaxVUs)
	}
	if snapshot.ActiveVUs != 0 {
		t.Errorf("ActiveVUs = %d, want 0", snapshot.ActiveVUs)
	}
	if snapshot.Iterations == 0 {
		t.Error("no iterations recorded")
	}
	if got := h.executor.GetStats().Iterations; got != snapshot.Iterations {
		t.Errorf("executor iterations = %d, metrics iterations = %d", got, snapshot.Iterations)
	}

	// Every started iteration ran to completion
	if h.started.Load() != h.finished.Load() {
		t.Errorf("started %d iterations, finished %d", h.started.Load(), h.finished.Load())
	}
	if h.finished.Load() != snapshot.Iterations {
		t.Errorf("finished %d iterations, counted %d", h.finished.Load(), snapshot.Iterations)
	}

	// One check per request
	if total := snapshot.CheckTotals().Total(); total != snapshot.TotalRequests {
		t.Errorf("checks = %d, requests = %d", total, snapshot.TotalRequests)
	}

	var phases []metrics.Phase
	for _, change := range h.metrics.GetPhaseHistory() {
		phases = append(phases, change.Phase)
	}
	want := []metrics.Phase{
		metrics.PhaseRampUp,
		metrics.PhaseSteady,
		metrics.PhaseRampDown,
		metrics.PhaseDone,
	}
	if !reflect.DeepEqual(phases, want) {
		t.Errorf("phases = %v, want %v", phases, want)
	}

	if got := h.executor.GetProgress(); got != 1.0 {
		t.Errorf("GetProgress() = %v, want 1", got)
	}
	if got := h.executor.GetActiveVUs(); got != 0 {
		t.Errorf("GetActiveVUs() = %d, want 0", got)
	}
	if got := h.scheduler.GetActiveVUCount(); got != 0 {
		t.Errorf("scheduler VUs = %d, want 0", got)
	}
}

func TestRampingVUs_GaugeCountsFinishingVUs(t *testing.T) {
	cfg := executor.Config{
		Profile: profile.Profile{Stages: []profile.Stage{
			{Duration: 0, Target: 2},
			{Duration: 300 * time.Millisecond, Target: 0},
		}},
		GracefulStop: 2 * time.Second,
	}
	h := newHarness(t, cfg, time.Second)

	done := make(chan error, 1)
	go func() {
		done <- h.run(context.Background())
	}()

	waitFor(t, time.Second, "ramp-down", func() bool {
		return h.metrics.GetSnapshot().MaxVUs == 2 && h.executor.GetStats().TargetVUs < 2
	})
	time.Sleep(150 * time.Millisecond)

	// Both VUs were asked to leave but are still inside their first iteration
	if got := h.metrics.GetActiveVUs(); got != 2 {
		t.Errorf("active VUs gauge = %d, want 2", got)
	}

	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := h.finished.Load(); got != 2 {
		t.Errorf("finished iterations = %d, want 2", got)
	}
}

func TestRampingVUs_FinishesInFlightIterations(t *testing.T) {
	cfg := executor.Config{
		Profile: profile.Profile{Stages: []profile.Stage{
			{Duration: 0, Target: 2},
			{Duration: 150 * time.Millisecond, Target: 2},
		}},
		GracefulStop: 2 * time.Second,
	}
	h := newHarness(t, cfg, 400*time.Millisecond)

	start := time.Now()
	if err := h.run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The run outlasts the stages by the iteration still in progress
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("run took %v, want at least 400ms", elapsed)
	}
	if h.started.Load() != 2 || h.finished.Load() != 2 {
		t.Errorf("started/finished = %d/%d, want 2/2", h.started.Load(), h.finished.Load())
	}
	if got := h.metrics.GetSnapshot().Iterations; got != 2 {
		t.Errorf("Iterations = %d, want 2", got)
	}
}

func TestRampingVUs_GracefulStopExpires(t *testing.T) {
	cfg := executor.Config{
		Profile: profile.Profile{Stages: []profile.Stage{
			{Duration: 0, Target: 3},
			{Duration: 100 * time.Millisecond, Target: 3},
		}},
		GracefulStop: 100 * time.Millisecond,
	}
	h := newHarness(t, cfg, 10*time.Second)

	start := time.Now()
	if err := h.run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("run took %v, want under 2s", elapsed)
	}
	if h.started.Load() != 3 {
		t.Errorf("started = %d, want 3", h.started.Load())
	}
	if h.finished.Load() != 0 {
		t.Errorf("finished = %d, want 0", h.finished.Load())
	}
	// Cancelled iterations are not counted
	if got := h.metrics.GetSnapshot().Iterations; got != 0 {
		t.Errorf("Iterations = %d, want 0", got)
	}
	if got := h.executor.GetActiveVUs(); got != 0 {
		t.Errorf("GetActiveVUs() = %d, want 0", got)
	}
}

func TestRampingVUs_ContextCancel(t *testing.T) {
	cfg := executor.Config{
		Profile:      profile.Profile{Stages: []profile.Stage{{Duration: 10 * time.Second, Target: 5}}},
		GracefulStop: 10 * time.Second,
	}
	h := newHarness(t, cfg, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	start := time.Now()
	if err := h.run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed >= 2*time.Second {
		t.Errorf("run took %v, want under 2s", elapsed)
	}
	if phase := h.metrics.GetPhase(); phase != metrics.PhaseDone {
		t.Errorf("phase = %v, want done", phase)
	}
}

func TestRampingVUs_Stop(t *testing.T) {
	cfg := executor.Config{
		Profile:      profile.Profile{Stages: []profile.Stage{{Duration: 10 * time.Second, Target: 5}}},
		GracefulStop: time.Second,
	}
	h := newHarness(t, cfg, 20*time.Millisecond)

	runErr := make(chan error, 1)
	go func() {
		runErr <- h.run(context.Background())
	}()

	waitFor(t, time.Second, "active VUs", func() bool {
		return h.executor.GetActiveVUs() > 0
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.executor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := <-runErr; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.started.Load() != h.finished.Load() {
		t.Errorf("started %d iterations, finished %d", h.started.Load(), h.finished.Load())
	}
	if got := h.executor.GetActiveVUs(); got != 0 {
		t.Errorf("GetActiveVUs() = %d, want 0", got)
	}
}

func TestRampingVUs_StopBeforeRun(t *testing.T) {
	cfg := executor.Config{
		Profile:      profile.Profile{Stages: []profile.Stage{{Duration: 0, Target: 3}, {Duration: 10 * time.Second, Target: 3}}},
		GracefulStop: time.Second,
	}
	h := newHarness(t, cfg, 20*time.Millisecond)

	// Returns at once: there is nothing to wait for yet
	if err := h.executor.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	start := time.Now()
	if err := h.run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("run after Stop took %v, want it to end at once", elapsed)
	}
	if got := h.started.Load(); got != 0 {
		t.Errorf("started %d iterations, want 0", got)
	}
	if phase := h.metrics.GetPhase(); phase != metrics.PhaseDone {
		t.Errorf("phase = %v, want done", phase)
	}
}

func TestRampingVUs_ProgressAndStats(t *testing.T) {
	cfg := executor.Config{
		Profile: profile.Profile{Stages: []profile.Stage{
			{Duration: 200 * time.Millisecond, Target: 2, Name: "up"},
			{Duration: 200 * time.Millisecond, Target: 2, Name: "hold"},
		}},
	}
	h := newHarness(t, cfg, 10*time.Millisecond)

	if got := h.executor.GetProgress(); got != 0.0 {
		t.Errorf("GetProgress() before Run = %v, want 0", got)
	}
	stats := h.executor.GetStats()
	if !stats.StartTime.IsZero() {
		t.Error("StartTime set before Run")
	}
	if stats.TotalStages != 2 {
		t.Errorf("TotalStages = %d, want 2", stats.TotalStages)
	}
	if stats.TotalDuration != 400*time.Millisecond {
		t.Errorf("TotalDuration = %v, want 400ms", stats.TotalDuration)
	}

	done := make(chan struct{})
	go func() {
		_ = h.run(context.Background())
		close(done)
	}()

	waitFor(t, time.Second, "the hold stage", func() bool {
		return h.executor.GetStats().CurrentStageName == "hold"
	})

	if progress := h.executor.GetProgress(); progress <= 0.4 || progress > 1.0 {
		t.Errorf("GetProgress() = %v, want in (0.4, 1]", progress)
	}
	stats = h.executor.GetStats()
	if stats.CurrentStage != 1 {
		t.Errorf("CurrentStage = %d, want 1", stats.CurrentStage)
	}
	if stats.TargetVUs != 2 {
		t.Errorf("TargetVUs = %d, want 2", stats.TargetVUs)
	}

	<-done
	if got := h.executor.GetProgress(); got != 1.0 {
		t.Errorf("GetProgress() after Run = %v, want 1", got)
	}
}
