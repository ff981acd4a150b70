package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mateothegreat/go-signin-e2e/browser"
)

// Engine opens sessions against an App and records the session lifecycle.
type Engine struct {
	App *App

	// OpenErr, when set, is returned by Open instead of a session.
	OpenErr error

	// CloseErr, when set, is returned by Session.Close after releasing.
	CloseErr error

	// PollInterval is how often WaitUntil re-checks its condition.
	PollInterval time.Duration

	mu       sync.Mutex
	opens    int
	closes   int
	live     int
	last     *Session
	lastOpts browser.Options
}

func NewEngine(app *App) *Engine {
	if app == nil {
		app = NewApp()
	}
	return &Engine{
		App:          app,
		PollInterval: 5 * time.Millisecond,
	}
}

func (e *Engine) Open(ctx context.Context, opts browser.Options) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}

	s := &Session{
		id:      uuid.NewString(),
		engine:  e,
		app:     e.App,
		storage: NewStorage(),
		values:  make(map[string]string),
	}
	if err := s.load(""); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.opens++
	e.live++
	e.last = s
	e.lastOpts = opts
	return s, nil
}

func (e *Engine) released() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	e.live--
}

// Opens is the number of sessions successfully acquired.
func (e *Engine) Opens() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens
}

// Closes is the number of sessions released.
func (e *Engine) Closes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

// Live is the number of sessions currently open.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live
}

// LastSession returns the most recently opened session, or nil.
func (e *Engine) LastSession() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// LastOptions returns the options passed to the most recent Open.
func (e *Engine) LastOptions() browser.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastOpts
}
