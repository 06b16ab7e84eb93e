// Package script holds the per-iteration body a virtual user runs:
// GET {BASE_URL}/user, check the status, pause.
package script

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/wesleyorama2/vuramp/internal/check"
)

// UserPath is appended verbatim to the base URL.
const UserPath = "/user"

// IterationPause is the fixed pause at the end of every iteration.
const IterationPause = time.Second

// UserURL returns baseURL + "/user". The base URL is not validated,
// trimmed or normalised.
func UserURL(baseURL string) string {
	return baseURL + UserPath
}

// Script is the iteration body. It is safe for concurrent use by many VUs
// as long as Client is.
type Script struct {
	// BaseURL is the externally supplied target prefix
	BaseURL string

	// Client issues the GET request
	Client *http.Client

	// Checks evaluated against every response
	Checks []check.Check

	// Pause at the end of each iteration
	Pause time.Duration
}

// New creates the get-users script: the single "is status 200" check and a
// one second pause.
func New(baseURL string, client *http.Client) *Script {
	if client == nil {
		client = http.DefaultClient
	}
	return &Script{
		BaseURL: baseURL,
		Client:  client,
		Checks:  []check.Check{check.StatusIs(http.StatusOK)},
		Pause:   IterationPause,
	}
}

// Iterate runs one iteration and returns what the request produced.
//
// Request failures and non-200 statuses are not errors here: they only
// show up as failed checks on the sink and in the returned response.
// A request aborted because ctx was cancelled records no check.
// The pause ends early only when ctx is cancelled.
func (s *Script) Iterate(ctx context.Context, sink check.Sink) *check.Response {
	resp := s.get(ctx, UserURL(s.BaseURL))
	if resp.Err != nil && ctx.Err() != nil {
		// Interrupted by shutdown, not a target failure
		return resp
	}

	check.Run(resp, sink, s.Checks...)

	if s.Pause > 0 {
		timer := time.NewTimer(s.Pause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	return resp
}

// get performs a blocking GET and drains the body for byte counting.
func (s *Script) get(ctx context.Context, url string) *check.Response {
	start := time.Now()
	resp := &check.Response{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		resp.Err = err
		resp.Duration = time.Since(start)
		return resp
	}

	httpResp, err := s.Client.Do(req)
	if err != nil {
		resp.Err = err
		resp.Duration = time.Since(start)
		return resp
	}
	defer httpResp.Body.Close()

	n, err := io.Copy(io.Discard, httpResp.Body)
	resp.Duration = time.Since(start)
	resp.StatusCode = httpResp.StatusCode
	resp.Bytes = n
	if err != nil {
		resp.Err = err
	}

	return resp
}
