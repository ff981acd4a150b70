package e2e

import (
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	StatusPassed = "PASSED"
	StatusFailed = "FAILED"
)

// Outcome is the result of one scenario. Err carries the cause of a failure
// for diagnostics; the report line only ever shows the status.
type Outcome struct {
	Name     string
	Err      error
	Duration time.Duration
}

func (o Outcome) Passed() bool {
	return o.Err == nil
}

func (o Outcome) Status() string {
	if o.Passed() {
		return StatusPassed
	}
	return StatusFailed
}

// String renders the report line, "<name>: PASSED" or "<name>: FAILED".
func (o Outcome) String() string {
	return fmt.Sprintf("%s: %s", o.Name, o.Status())
}

// Report collects the outcomes of one run in execution order.
type Report struct {
	RunID    string
	Outcomes []Outcome

	// ReleaseErr is the error returned when closing the session, if any.
	ReleaseErr error
}

func (r *Report) Passed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Passed() {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Passed()
}

// Reporter receives each outcome as soon as its scenario finishes.
type Reporter interface {
	Report(o Outcome)
}

// LineReporter writes one line per outcome.
type LineReporter struct {
	w  io.Writer
	mu sync.Mutex
}

func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

func (r *LineReporter) Report(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, o.String())
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(o Outcome)

func (f ReporterFunc) Report(o Outcome) {
	f(o)
}
