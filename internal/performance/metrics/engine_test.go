package metrics

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wesleyorama2/vuramp/internal/check"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	if engine == nil {
		t.Fatal("NewEngine() returned nil")
	}

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 0 {
		t.Errorf("TotalRequests = %d, want 0", snapshot.TotalRequests)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("CurrentPhase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
	if len(snapshot.Checks) != 0 {
		t.Errorf("Checks = %v, want none", snapshot.Checks)
	}
	if engine.Collectors() == nil {
		t.Error("Collectors() returned nil")
	}
}

func TestEngine_RecordResponse(t *testing.T) {
	engine := NewEngine()

	engine.RecordResponse(&check.Response{StatusCode: 200, Duration: 10 * time.Millisecond, Bytes: 100})
	engine.RecordResponse(&check.Response{StatusCode: 200, Duration: 20 * time.Millisecond, Bytes: 100})
	engine.RecordResponse(&check.Response{StatusCode: 500, Duration: 30 * time.Millisecond, Bytes: 10})
	engine.RecordResponse(&check.Response{Err: errors.New("refused"), Duration: time.Millisecond})
	engine.RecordResponse(nil)

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", snapshot.TotalRequests)
	}
	if snapshot.FailedRequests != 2 {
		t.Errorf("FailedRequests = %d, want 2", snapshot.FailedRequests)
	}
	if snapshot.TotalBytes != 210 {
		t.Errorf("TotalBytes = %d, want 210", snapshot.TotalBytes)
	}
	if math.Abs(snapshot.ErrorRate-0.5) > 0.0001 {
		t.Errorf("ErrorRate = %v, want 0.5", snapshot.ErrorRate)
	}
	if snapshot.Latency.Count != 4 {
		t.Errorf("Latency.Count = %d, want 4", snapshot.Latency.Count)
	}
	if diff := snapshot.Latency.Max - 30*time.Millisecond; diff < -100*time.Microsecond || diff > 100*time.Microsecond {
		t.Errorf("Latency.Max = %v, want ~30ms", snapshot.Latency.Max)
	}

	c := engine.Collectors()
	for label, want := range map[string]float64{"200": 2, "500": 1, "error": 1} {
		if got := testutil.ToFloat64(c.HTTPReqs.WithLabelValues(label)); got != want {
			t.Errorf("http_reqs{status=%q} = %v, want %v", label, got, want)
		}
	}
}

func TestEngine_RecordCheck(t *testing.T) {
	engine := NewEngine()

	engine.RecordCheck("is status 200", true)
	engine.RecordCheck("is status 200", true)
	engine.RecordCheck("is status 200", false)

	results := engine.Checks()
	if len(results) != 1 {
		t.Fatalf("len(Checks()) = %d, want 1", len(results))
	}
	want := check.Result{Name: "is status 200", Passes: 2, Fails: 1}
	if results[0] != want {
		t.Errorf("Checks()[0] = %+v, want %+v", results[0], want)
	}

	if total := engine.GetSnapshot().CheckTotals().Total(); total != 3 {
		t.Errorf("CheckTotals().Total() = %d, want 3", total)
	}

	c := engine.Collectors()
	if got := testutil.ToFloat64(c.Checks.WithLabelValues("is status 200", "pass")); got != 2 {
		t.Errorf("checks{result=pass} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Checks.WithLabelValues("is status 200", "fail")); got != 1 {
		t.Errorf("checks{result=fail} = %v, want 1", got)
	}
}

func TestEngine_IterationsAndVUs(t *testing.T) {
	engine := NewEngine()

	engine.RecordIteration()
	engine.RecordIteration()
	engine.SetActiveVUs(5)
	engine.SetActiveVUs(20)
	engine.SetActiveVUs(3)

	snapshot := engine.GetSnapshot()
	if snapshot.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", snapshot.Iterations)
	}
	if snapshot.ActiveVUs != 3 {
		t.Errorf("ActiveVUs = %d, want 3", snapshot.ActiveVUs)
	}
	if snapshot.MaxVUs != 20 {
		t.Errorf("MaxVUs = %d, want 20", snapshot.MaxVUs)
	}

	c := engine.Collectors()
	if got := testutil.ToFloat64(c.Iterations); got != 2 {
		t.Errorf("iterations counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.VUs); got != 3 {
		t.Errorf("vus gauge = %v, want 3", got)
	}
}

func TestEngine_Phases(t *testing.T) {
	engine := NewEngine()

	engine.SetPhase(PhaseRampUp)
	engine.SetPhase(PhaseRampUp)
	engine.SetPhase(PhaseSteady)
	engine.SetPhase(PhaseRampDown)
	engine.SetPhase(PhaseDone)

	if engine.GetPhase() != PhaseDone {
		t.Errorf("GetPhase() = %v, want %v", engine.GetPhase(), PhaseDone)
	}

	history := engine.GetPhaseHistory()
	if len(history) != 4 {
		t.Fatalf("len(GetPhaseHistory()) = %d, want 4", len(history))
	}
	if history[0].Phase != PhaseRampUp || history[3].Phase != PhaseDone {
		t.Errorf("history = %v, want ramp-up first and done last", history)
	}
}

func TestEngine_StopFreezesElapsed(t *testing.T) {
	engine := NewEngine()
	engine.Stop()

	first := engine.GetSnapshot().Elapsed
	time.Sleep(20 * time.Millisecond)
	if got := engine.GetSnapshot().Elapsed; got != first {
		t.Errorf("Elapsed moved after Stop: %v then %v", first, got)
	}
}

func TestEngine_ConcurrentRecording(t *testing.T) {
	engine := NewEngine()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				resp := &check.Response{StatusCode: 200, Duration: time.Millisecond}
				engine.RecordResponse(resp)
				engine.RecordCheck("is status 200", true)
				engine.RecordIteration()
			}
		}()
	}
	wg.Wait()

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 2000 {
		t.Errorf("TotalRequests = %d, want 2000", snapshot.TotalRequests)
	}
	if snapshot.Iterations != 2000 {
		t.Errorf("Iterations = %d, want 2000", snapshot.Iterations)
	}
	if passes := snapshot.CheckTotals().Passes; passes != 2000 {
		t.Errorf("check passes = %d, want 2000", passes)
	}
}

func TestNewCollectors_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	if _, err := NewCollectors(reg); err != nil {
		t.Fatalf("NewCollectors() error = %v", err)
	}
	if _, err := NewCollectors(reg); err == nil {
		t.Error("registering the same collectors twice must fail")
	}

	engine := NewEngineWithConfig(EngineConfig{})
	if engine.Collectors().Gatherer() == nil {
		t.Error("private registry has no gatherer")
	}
}

func TestCollectors_Gather(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := MustNewCollectors(reg)
	engine := NewEngineWithConfig(EngineConfig{Collectors: c})

	engine.SetActiveVUs(7)
	engine.RecordCheck("is status 200", true)

	families, err := c.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"vuramp_vus", "vuramp_checks_total"} {
		if !names[want] {
			t.Errorf("%s not gathered", want)
		}
	}
}
