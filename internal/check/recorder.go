package check

import (
	"sync"
	"sync/atomic"
)

// Result is the aggregated outcome of a single named check.
type Result struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Total returns the number of evaluations.
func (r Result) Total() int64 {
	return r.Passes + r.Fails
}

// Rate returns the pass ratio (0.0 to 1.0). A check never evaluated has rate 0.
func (r Result) Rate() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(r.Passes) / float64(total)
}

type counter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// Recorder tallies check outcomes by name. It is safe for concurrent use.
// Results keep the order in which check names were first seen.
type Recorder struct {
	mu       sync.RWMutex
	counters map[string]*counter
	order    []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		counters: make(map[string]*counter),
	}
}

// RecordCheck implements Sink.
func (r *Recorder) RecordCheck(name string, ok bool) {
	c := r.counter(name)
	if ok {
		c.passes.Add(1)
	} else {
		c.fails.Add(1)
	}
}

func (r *Recorder) counter(name string) *counter {
	r.mu.RLock()
	c, exists := r.counters[name]
	r.mu.RUnlock()
	if exists {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, exists = r.counters[name]; exists {
		return c
	}
	c = &counter{}
	r.counters[name] = c
	r.order = append(r.order, name)
	return c
}

// Results returns a snapshot of all check tallies.
func (r *Recorder) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]Result, 0, len(r.order))
	for _, name := range r.order {
		c := r.counters[name]
		results = append(results, Result{
			Name:   name,
			Passes: c.passes.Load(),
			Fails:  c.fails.Load(),
		})
	}
	return results
}

// Totals sums passes and fails over results.
func Totals(results []Result) Result {
	total := Result{Name: "checks"}
	for _, res := range results {
		total.Passes += res.Passes
		total.Fails += res.Fails
	}
	return total
}
