// Package e2e runs named browser scenarios one after another against a single
// shared browser session and reports a PASSED or FAILED line for each.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mateothegreat/go-signin-e2e/browser"
)

// ErrAcquire wraps a failure to open the browser session. It is the only
// failure that aborts a run.
var ErrAcquire = errors.New("acquiring browser session")

// ScenarioFn is the body of a scenario. The session is borrowed for the
// duration of the call and must not be closed or retained.
type ScenarioFn func(ctx context.Context, s browser.Session) error

// HookFn runs around scenarios with the same borrowed session.
type HookFn func(ctx context.Context, s browser.Session) error

type Scenario struct {
	Name string
	Fn   ScenarioFn
}

type Suite struct {
	Scenarios     []*Scenario
	Engine        browser.Engine
	Options       browser.Options
	Reporter      Reporter
	Logger        *slog.Logger
	SetupFns      []HookFn
	TearDownFns   []HookFn
	BeforeEachFns []HookFn
	AfterEachFns  []HookFn

	only map[string]bool
	mu   sync.Mutex
}

// NewSuite returns a suite that opens sessions from engine with the default
// options and writes outcome lines to w.
func NewSuite(engine browser.Engine, w io.Writer) *Suite {
	return &Suite{
		Scenarios:     []*Scenario{},
		Engine:        engine,
		Options:       browser.DefaultOptions(),
		Reporter:      NewLineReporter(w),
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		SetupFns:      []HookFn{},
		TearDownFns:   []HookFn{},
		BeforeEachFns: []HookFn{},
		AfterEachFns:  []HookFn{},
	}
}

// AddScenario appends a scenario. Scenarios run in the order they are added.
func (s *Suite) AddScenario(name string, fn ScenarioFn) (*Scenario, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, fmt.Errorf("scenario name must not be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("scenario %s has no function", name)
	}
	if s.findScenarioByName(name) != nil {
		return nil, fmt.Errorf("scenario %s already exists", name)
	}
	scenario := &Scenario{
		Name: name,
		Fn:   fn,
	}
	s.Scenarios = append(s.Scenarios, scenario)
	return scenario, nil
}

// Setup registers a hook run once after the session is acquired. A failing
// setup hook aborts the run.
func (s *Suite) Setup(fn HookFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetupFns = append(s.SetupFns, fn)
}

// TearDown registers a hook run once after the last scenario, before the
// session is released.
func (s *Suite) TearDown(fn HookFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TearDownFns = append(s.TearDownFns, fn)
}

func (s *Suite) BeforeEach(fn HookFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BeforeEachFns = append(s.BeforeEachFns, fn)
}

func (s *Suite) AfterEach(fn HookFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AfterEachFns = append(s.AfterEachFns, fn)
}

// Only restricts the next runs to the named scenarios. Declaration order is
// kept. Calling Only with no names clears the restriction.
//
// Only waits for a run in progress to finish.
func (s *Suite) Only(names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(names) == 0 {
		s.only = nil
		return nil
	}
	only := make(map[string]bool, len(names))
	for _, name := range names {
		if s.findScenarioByName(name) == nil {
			return fmt.Errorf("scenario %s does not exist", name)
		}
		only[name] = true
	}
	s.only = only
	return nil
}

// Selected returns the scenarios a run executes, in execution order.
func (s *Suite) Selected() []*Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected()
}

// selected is Selected for callers holding s.mu.
func (s *Suite) selected() []*Scenario {
	var selected []*Scenario
	for _, scenario := range s.Scenarios {
		if s.only == nil || s.only[scenario.Name] {
			selected = append(selected, scenario)
		}
	}
	return selected
}

func (s *Suite) findScenarioByName(name string) *Scenario {
	for _, scenario := range s.Scenarios {
		if scenario.Name == name {
			return scenario
		}
	}
	return nil
}

// Run acquires one session, runs every selected scenario in declaration order
// and releases the session on every exit path.
//
// Scenario failures never abort the run; they are reported as FAILED and
// recorded in the returned Report. Run returns an error only when the session
// cannot be acquired (wrapping ErrAcquire) or a setup hook fails.
func (s *Suite) Run(ctx context.Context) (report *Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("run_id", runID)

	if s.Engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", ErrAcquire)
	}
	session, err := s.Engine.Open(ctx, s.Options)
	if err != nil {
		logger.Error("session acquisition failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrAcquire, err)
	}
	logger.Debug("session acquired", "session", session.ID())

	report = &Report{RunID: runID}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			// A release failure is logged and kept, never returned.
			logger.Warn("session release failed", "error", cerr)
			report.ReleaseErr = cerr
		}
		logger.Debug("session released", "session", session.ID())
	}()

	// Run setup functions.
	for _, fn := range s.SetupFns {
		if err := safeCall(func() error { return fn(ctx, session) }); err != nil {
			logger.Error("setup failed", "error", err)
			return report, fmt.Errorf("setup: %w", err)
		}
	}

	// Run scenarios sequentially, sharing the session.
	for _, scenario := range s.selected() {
		outcome := s.runScenario(ctx, session, scenario)
		if outcome.Passed() {
			logger.Debug("scenario passed", "scenario", outcome.Name, "duration", outcome.Duration)
		} else {
			logger.Warn("scenario failed", "scenario", outcome.Name, "duration", outcome.Duration, "error", outcome.Err)
		}
		if s.Reporter != nil {
			s.Reporter.Report(outcome)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	// Run teardown functions.
	for _, fn := range s.TearDownFns {
		if err := safeCall(func() error { return fn(ctx, session) }); err != nil {
			logger.Warn("teardown failed", "error", err)
		}
	}

	return report, nil
}

// runScenario runs the before hooks, the scenario and the after hooks as a
// single invocation and folds any failure into one Outcome.
func (s *Suite) runScenario(ctx context.Context, session browser.Session, scenario *Scenario) Outcome {
	start := time.Now()

	var errs []error
	for _, fn := range s.BeforeEachFns {
		if err := safeCall(func() error { return fn(ctx, session) }); err != nil {
			errs = append(errs, fmt.Errorf("before each: %w", err))
			break
		}
	}
	if len(errs) == 0 {
		if err := safeCall(func() error { return scenario.Fn(ctx, session) }); err != nil {
			errs = append(errs, err)
		}
	}
	for _, fn := range s.AfterEachFns {
		if err := safeCall(func() error { return fn(ctx, session) }); err != nil {
			errs = append(errs, fmt.Errorf("after each: %w", err))
		}
	}

	return Outcome{
		Name:     scenario.Name,
		Err:      errors.Join(errs...),
		Duration: time.Since(start),
	}
}

// PanicError is the failure recorded when a scenario or hook panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
