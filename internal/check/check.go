// Package check provides named boolean assertions evaluated against
// responses, and a recorder that tallies their outcomes.
package check

import (
	"fmt"
	"time"
)

// Response is the outcome of one request as seen by checks.
//
// A transport error leaves StatusCode at 0.
type Response struct {
	URL        string
	StatusCode int
	Duration   time.Duration
	Bytes      int64
	Err        error
}

// Failed reports whether the request itself failed: a transport error or
// an HTTP status of 400 or above.
func (r *Response) Failed() bool {
	return r == nil || r.Err != nil || r.StatusCode == 0 || r.StatusCode >= 400
}

// Check is a named assertion over a response.
type Check struct {
	Name string
	Fn   func(*Response) bool
}

// Eval runs the check. A nil response always fails.
func (c Check) Eval(r *Response) bool {
	if r == nil || c.Fn == nil {
		return false
	}
	return c.Fn(r)
}

// StatusIs passes when the response status equals code.
// Transport errors never pass.
func StatusIs(code int) Check {
	return Check{
		Name: fmt.Sprintf("is status %d", code),
		Fn: func(r *Response) bool {
			return r.Err == nil && r.StatusCode == code
		},
	}
}

// Sink receives check outcomes.
type Sink interface {
	RecordCheck(name string, ok bool)
}

// Run evaluates every check against r, reports each outcome to sink and
// returns true only when all of them passed.
func Run(r *Response, sink Sink, checks ...Check) bool {
	all := true
	for _, c := range checks {
		ok := c.Eval(r)
		if sink != nil {
			sink.RecordCheck(c.Name, ok)
		}
		all = all && ok
	}
	return all
}
