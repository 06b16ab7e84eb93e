package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/vuramp/internal/performance"
	"github.com/wesleyorama2/vuramp/internal/performance/metrics"
	"github.com/wesleyorama2/vuramp/internal/profile"
)

// RampingVUs ramps the VU count up and down according to the profile stages.
//
// The target is interpolated linearly within each stage and re-evaluated
// every 100ms, so VU counts change smoothly instead of in steps.
//
// Scaling down never interrupts an iteration: surplus VUs are asked to stop
// and exit once their current iteration (pause included) finishes. When the
// last stage has elapsed every VU is asked to stop and the executor waits up
// to GracefulStop before cancelling whatever is still in flight.
type RampingVUs struct {
	config    Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine
	logger    *zap.Logger

	// State
	startTime    time.Time
	activeVUs    atomic.Int32
	targetVUs    atomic.Int32
	iterations   atomic.Int64
	currentStage atomic.Int32
	running      atomic.Bool
	finished     atomic.Bool

	// Cancellation
	cancelFunc    context.CancelFunc
	stopRequested bool
	doneCh        chan struct{}
	wg         sync.WaitGroup

	// VU tracking, oldest first
	vus   []*performance.VirtualUser
	vusMu sync.Mutex

	mu sync.RWMutex
}

// NewRampingVUs creates a new ramping VUs executor. A nil logger discards
// output.
func NewRampingVUs(logger *zap.Logger) *RampingVUs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RampingVUs{
		logger: logger,
		vus:    make([]*performance.VirtualUser, 0),
		doneCh: make(chan struct{}),
	}
}

// Init validates and stores the configuration. A zero GracefulStop is
// replaced by DefaultGracefulStop.
func (e *RampingVUs) Init(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if config.GracefulStop == 0 {
		config.GracefulStop = DefaultGracefulStop
	}

	e.config = config
	e.currentStage.Store(-1)
	return nil
}

// Run starts the executor and blocks until every stage has elapsed and the
// VUs have stopped, or ctx is cancelled.
//
// Cancelling ctx aborts in-flight requests immediately.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	defer close(e.doneCh)

	e.scheduler = scheduler
	e.metrics = metricsEngine

	e.mu.Lock()
	e.startTime = time.Now()
	// Stage timing, bounded by the total profile duration
	runCtx, cancel := context.WithTimeout(ctx, e.config.Profile.TotalDuration())
	e.cancelFunc = cancel
	if e.stopRequested {
		cancel()
	}
	e.mu.Unlock()
	defer cancel()

	e.running.Store(true)

	// VUs outlive runCtx so they can finish the iteration in progress
	vuCtx, vuCancel := context.WithCancel(ctx)
	defer vuCancel()

	e.logger.Info("Starting ramping VUs",
		zap.Int("stages", len(e.config.Profile.Stages)),
		zap.Int("maxVUs", e.config.Profile.MaxTarget()),
		zap.Duration("duration", e.config.Profile.TotalDuration()),
		zap.Duration("gracefulStop", e.config.GracefulStop))

	controllerDone := make(chan struct{})
	go func() {
		e.vuController(runCtx, vuCtx)
		close(controllerDone)
	}()

	<-runCtx.Done()
	<-controllerDone

	e.gracefulShutdown(vuCancel)

	e.metrics.SetActiveVUs(0)
	e.metrics.SetPhase(metrics.PhaseDone)
	e.scheduler.Shutdown(0)

	e.running.Store(false)
	e.finished.Store(true)

	e.logger.Info("Ramping VUs finished",
		zap.Int64("iterations", e.iterations.Load()),
		zap.Duration("elapsed", time.Since(e.startTime)))

	return nil
}

// vuController adjusts the VU count according to the stages until stageCtx
// is done. VUs it spawns run on vuCtx.
func (e *RampingVUs) vuController(stageCtx, vuCtx context.Context) {
	ticker := time.NewTicker(controllerInterval)
	defer ticker.Stop()

	e.tick(vuCtx)
	for {
		select {
		case <-stageCtx.Done():
			return
		case <-ticker.C:
			e.tick(vuCtx)
		}
	}
}

func (e *RampingVUs) tick(vuCtx context.Context) {
	target, stageIdx := e.config.Profile.TargetAt(time.Since(e.startTime))
	e.targetVUs.Store(int32(target))
	e.adjustVUs(vuCtx, target)
	e.updatePhase(stageIdx)
}

// adjustVUs adjusts the VU count to match the target.
func (e *RampingVUs) adjustVUs(vuCtx context.Context, targetVUs int) {
	e.vusMu.Lock()
	defer e.vusMu.Unlock()

	currentVUs := len(e.vus)

	if targetVUs > currentVUs {
		for i := currentVUs; i < targetVUs; i++ {
			vu := e.scheduler.SpawnVU()
			e.vus = append(e.vus, vu)
			e.wg.Add(1)
			go e.runVU(vuCtx, vu)
		}
	} else if targetVUs < currentVUs {
		// Newest VUs leave first
		for i := currentVUs - 1; i >= targetVUs; i-- {
			e.vus[i].RequestStop()
		}
		e.vus = e.vus[:targetVUs]
	}

	// Stopping VUs count until their last iteration ends
	e.scheduler.UpdateMetrics()
}

// updatePhase records a stage change and derives the metrics phase from the
// direction of the stage's ramp.
func (e *RampingVUs) updatePhase(stageIdx int) {
	if int(e.currentStage.Swap(int32(stageIdx))) == stageIdx {
		return
	}

	from, to := e.config.Profile.Ramp(stageIdx)
	phase := metrics.PhaseSteady
	switch {
	case to > from:
		phase = metrics.PhaseRampUp
	case to < from:
		phase = metrics.PhaseRampDown
	}
	e.metrics.SetPhase(phase)

	stage := e.config.Profile.Stages[stageIdx]
	e.logger.Info("Stage started",
		zap.Int("stage", stageIdx+1),
		zap.String("name", stage.Name),
		zap.Int("from", from),
		zap.Int("to", to),
		zap.Duration("duration", stage.Duration),
		zap.String("phase", string(phase)))
}

// runVU loops a VU over its iteration until it is asked to stop or ctx is
// cancelled.
func (e *RampingVUs) runVU(ctx context.Context, vu *performance.VirtualUser) {
	defer e.wg.Done()
	defer e.scheduler.RemoveVU(vu.ID)

	e.activeVUs.Add(1)
	defer e.activeVUs.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-vu.StopRequested():
			return
		default:
		}

		if err := vu.RunIteration(ctx); err != nil {
			return
		}
		e.iterations.Add(1)
	}
}

// gracefulShutdown asks every VU to stop and waits up to GracefulStop for
// in-flight iterations. VUs still running afterwards are cancelled.
func (e *RampingVUs) gracefulShutdown(cancelVUs context.CancelFunc) {
	e.vusMu.Lock()
	for _, vu := range e.vus {
		vu.RequestStop()
	}
	e.vus = e.vus[:0]
	e.vusMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(e.config.GracefulStop)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
	}

	e.logger.Warn("Graceful stop expired, cancelling in-flight iterations",
		zap.Int32("vus", e.activeVUs.Load()),
		zap.Duration("gracefulStop", e.config.GracefulStop))

	cancelVUs()
	<-done
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	if e.finished.Load() {
		return 1.0
	}
	if !e.running.Load() {
		return 0.0
	}

	totalDuration := e.config.Profile.TotalDuration()
	if totalDuration == 0 {
		return 1.0
	}

	progress := float64(time.Since(e.getStartTime())) / float64(totalDuration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns the number of VU goroutines currently alive,
// including those finishing their last iteration.
func (e *RampingVUs) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	startTime := e.getStartTime()

	var elapsed time.Duration
	if !startTime.IsZero() {
		elapsed = time.Since(startTime)
	}

	stageIdx := int(e.currentStage.Load())
	stageName := ""
	if stageIdx >= 0 && stageIdx < len(e.config.Profile.Stages) {
		stageName = e.config.Profile.Stages[stageIdx].Name
	}

	return &Stats{
		StartTime:        startTime,
		CurrentTime:      time.Now(),
		Elapsed:          elapsed,
		TotalDuration:    e.config.Profile.TotalDuration(),
		ActiveVUs:        int(e.activeVUs.Load()),
		TargetVUs:        int(e.targetVUs.Load()),
		Iterations:       e.iterations.Load(),
		CurrentStage:     stageIdx,
		CurrentStageName: stageName,
		TotalStages:      len(e.config.Profile.Stages),
	}
}

// Stop ends the stage timeline early and waits for Run to return or ctx to
// be done. In-flight iterations still get GracefulStop to finish.
// Called before Run, it returns at once and Run ends as soon as it starts.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopRequested = true
	cancel := e.cancelFunc
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *RampingVUs) getStartTime() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startTime
}

// Profile returns the configured profile.
func (e *RampingVUs) Profile() profile.Profile {
	return e.config.Profile
}
