// Package browser defines the port the scenario runner uses to drive a browser
// automation engine. Adapters in the sub-packages implement it for WebDriver
// (selenium), the Chrome DevTools Protocol (devtools, rod) and an in-memory
// simulation of the application under test (browsertest).
package browser

import (
	"context"
	"time"
)

// Options are the session options every engine recognizes.
type Options struct {
	// Headless runs the browser without a visible window.
	Headless bool `yaml:"headless" json:"headless"`

	// DisableSandbox turns off the browser sandbox (required in most containers).
	DisableSandbox bool `yaml:"disable_sandbox" json:"disable_sandbox"`

	// SuppressLogging silences the engine's own diagnostic output.
	SuppressLogging bool `yaml:"suppress_logging" json:"suppress_logging"`
}

// DefaultOptions returns the non-interactive configuration used for test runs.
func DefaultOptions() Options {
	return Options{
		Headless:        true,
		DisableSandbox:  true,
		SuppressLogging: true,
	}
}

// ChromeArgs renders the options as Chrome command line switches.
func (o Options) ChromeArgs() []string {
	var args []string
	if o.Headless {
		args = append(args, "--headless")
	}
	if o.DisableSandbox {
		args = append(args, "--no-sandbox", "--disable-dev-shm-usage")
	}
	if o.SuppressLogging {
		args = append(args, "--disable-logging", "--log-level=3", "--silent")
	}
	return args
}

// Engine opens browser sessions.
type Engine interface {
	Open(ctx context.Context, opts Options) (Session, error)
}

// Session is a live handle to one remote-controlled browser instance.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Find(ctx context.Context, sel Selector) (Element, error)

	// WaitUntil blocks until cond holds or timeout elapses, in which case the
	// returned error wraps ErrTimeout.
	WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) error

	// RunScript executes script in the context of the current page.
	RunScript(ctx context.Context, script string) error

	// Close releases the browser. Calling it more than once is a no-op.
	Close() error
}

// Element is a located DOM element.
type Element interface {
	SendKeys(ctx context.Context, text string) error
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}

// By is the strategy a Selector uses to locate an element.
type By string

const (
	ByIDStrategy  By = "id"
	ByCSSStrategy By = "css"
)

// Selector locates an element on the current page.
type Selector struct {
	By    By
	Value string
}

// ByID locates the element whose id attribute equals id.
func ByID(id string) Selector {
	return Selector{By: ByIDStrategy, Value: id}
}

// ByCSS locates the first element matching a CSS selector.
func ByCSS(css string) Selector {
	return Selector{By: ByCSSStrategy, Value: css}
}

// CSS returns the selector as a CSS query.
func (s Selector) CSS() string {
	if s.By == ByIDStrategy {
		return "#" + s.Value
	}
	return s.Value
}

func (s Selector) String() string {
	return string(s.By) + "=" + s.Value
}

// ConditionKind identifies what a Condition waits for.
type ConditionKind int

const (
	// ConditionURLIs holds once the current URL equals Condition.URL.
	ConditionURLIs ConditionKind = iota + 1

	// ConditionElementLocated holds once Condition.Selector matches an element.
	ConditionElementLocated
)

// Condition is a predicate polled by WaitUntil.
type Condition struct {
	Kind     ConditionKind
	URL      string
	Selector Selector
}

// URLIs waits for the current URL to equal url exactly.
func URLIs(url string) Condition {
	return Condition{Kind: ConditionURLIs, URL: url}
}

// ElementLocated waits for sel to match an element.
func ElementLocated(sel Selector) Condition {
	return Condition{Kind: ConditionElementLocated, Selector: sel}
}

func (c Condition) String() string {
	switch c.Kind {
	case ConditionURLIs:
		return "url is " + c.URL
	case ConditionElementLocated:
		return "element located " + c.Selector.String()
	default:
		return "unknown condition"
	}
}
