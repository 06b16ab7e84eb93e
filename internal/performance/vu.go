// Package performance runs virtual users against an iteration body.
package performance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/vuramp/internal/check"
	"github.com/wesleyorama2/vuramp/internal/performance/metrics"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is ready but not currently running.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been requested to stop.
	VUStateStopping
	// VUStateStopped indicates the VU has fully stopped.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Iteration is the body a VU runs in a loop. Implementations report check
// outcomes to sink and return the response they produced.
type Iteration interface {
	Iterate(ctx context.Context, sink check.Sink) *check.Response
}

// VirtualUser represents a single simulated client looping over an Iteration.
type VirtualUser struct {
	// Unique identifier for this VU
	ID int

	// Body run on every iteration
	Iteration Iteration

	// Metrics engine for recording results
	Metrics *metrics.Engine

	// Logger receives transport errors at debug level. Nil disables it.
	Logger *zap.Logger

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	doneOnce  sync.Once
	iteration atomic.Int64
}

// NewVirtualUser creates a new Virtual User.
func NewVirtualUser(id int, iteration Iteration, metricsEngine *metrics.Engine) *VirtualUser {
	return &VirtualUser{
		ID:        id,
		Iteration: iteration,
		Metrics:   metricsEngine,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// IsStopping reports whether a stop was requested or completed.
func (vu *VirtualUser) IsStopping() bool {
	state := vu.GetState()
	return state == VUStateStopping || state == VUStateStopped
}

// RunIteration executes a single iteration.
//
// A requested stop never interrupts an iteration already in progress;
// only cancelling ctx does.
func (vu *VirtualUser) RunIteration(ctx context.Context) error {
	if vu.IsStopping() {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// A concurrent RequestStop wins: never overwrite stopping with running
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return fmt.Errorf("VU %d is stopping or stopped", vu.ID)
	}
	vu.iteration.Add(1)

	var sink check.Sink
	if vu.Metrics != nil {
		sink = vu.Metrics
	}

	resp := vu.Iteration.Iterate(ctx, sink)
	vu.logRequestError(ctx, resp)

	if vu.Metrics != nil {
		// A request aborted by cancellation is not a response from the target
		if resp != nil && (resp.Err == nil || ctx.Err() == nil) {
			vu.Metrics.RecordResponse(resp)
		}
		// Iterations cut short by cancellation are not counted
		if ctx.Err() == nil {
			vu.Metrics.RecordIteration()
		}
	}

	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	return ctx.Err()
}

// logRequestError logs a failed request unless the failure came from ctx
// being cancelled.
func (vu *VirtualUser) logRequestError(ctx context.Context, resp *check.Response) {
	if vu.Logger == nil || resp == nil || resp.Err == nil || ctx.Err() != nil {
		return
	}
	vu.Logger.Debug("Request failed",
		zap.Int("vu", vu.ID),
		zap.String("url", resp.URL),
		zap.Duration("duration", resp.Duration),
		zap.Error(resp.Err))
}

// RequestStop signals the VU to stop after completing the current iteration.
func (vu *VirtualUser) RequestStop() {
	if vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping)) ||
		vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateStopping)) {
		close(vu.stopCh)
	}
}

// StopRequested returns a channel closed once RequestStop has been called.
func (vu *VirtualUser) StopRequested() <-chan struct{} {
	return vu.stopCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	select {
	case <-vu.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// MarkStopped marks the VU as fully stopped.
// Should be called when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	previous := VUState(vu.state.Swap(int32(VUStateStopped)))
	if previous == VUStateIdle || previous == VUStateRunning {
		// stopCh was never closed by RequestStop
		close(vu.stopCh)
	}
	vu.doneOnce.Do(func() { close(vu.doneCh) })
}
