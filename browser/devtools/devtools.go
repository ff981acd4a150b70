// Package devtools drives Chrome over the DevTools Protocol with
// github.com/chromedp/chromedp.
package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/mateothegreat/go-signin-e2e/browser"
)

// Config selects how the browser is reached.
type Config struct {
	// RemoteURL is the devtools websocket URL of an already running browser.
	// When empty a local Chrome is launched.
	RemoteURL string `yaml:"remote_url" json:"remote_url"`

	// ExecPath overrides the Chrome binary used for local launches.
	ExecPath string `yaml:"exec_path" json:"exec_path"`

	// PollInterval is how often URL waits re-check the location.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// Engine opens chromedp browser contexts.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = browser.DefaultPollInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{cfg: cfg, logger: logger}
}

// allocatorOptions translates browser options into chromedp exec flags.
func (e *Engine) allocatorOptions(opts browser.Options) []chromedp.ExecAllocatorOption {
	flags := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	flags = append(flags, chromedp.Flag("headless", opts.Headless))
	if opts.DisableSandbox {
		flags = append(flags, chromedp.NoSandbox, chromedp.Flag("disable-dev-shm-usage", true))
	}
	if opts.SuppressLogging {
		flags = append(flags,
			chromedp.Flag("disable-logging", true),
			chromedp.Flag("log-level", "3"),
			chromedp.Flag("silent", true),
		)
	}
	if e.cfg.ExecPath != "" {
		flags = append(flags, chromedp.ExecPath(e.cfg.ExecPath))
	}
	return flags
}

func (e *Engine) Open(ctx context.Context, opts browser.Options) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The browser outlives the ctx passed to Open; it is torn down by Close.
	base := context.WithoutCancel(ctx)

	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
	)
	if e.cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, e.cfg.RemoteURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, e.allocatorOptions(opts)...)
	}

	var contextOpts []chromedp.ContextOption
	if !opts.SuppressLogging {
		logf := func(format string, args ...any) {
			e.logger.Debug(fmt.Sprintf(format, args...), "engine", "chromedp")
		}
		contextOpts = append(contextOpts, chromedp.WithLogf(logf), chromedp.WithErrorf(logf))
	}
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, contextOpts...)

	// Run with no actions starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	return &session{
		id:          uuid.NewString(),
		ctx:         browserCtx,
		cancel:      cancelBrowser,
		cancelAlloc: cancelAlloc,
		interval:    e.cfg.PollInterval,
	}, nil
}

type session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc
	interval    time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *session) ID() string {
	return s.id
}

// run executes actions on the browser context, stopping early if ctx is done.
func (s *session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return browser.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *session) Navigate(ctx context.Context, url string) error {
	return browser.WrapError("navigate", url, s.run(ctx, chromedp.Navigate(url)))
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", browser.WrapError("current url", "", err)
	}
	return url, nil
}

func (s *session) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.CSS(), &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, browser.WrapError("find", sel.String(), err)
	}
	if len(nodes) == 0 {
		return nil, browser.WrapError("find", sel.String(), browser.ErrElementNotFound)
	}
	return &element{s: s, sel: sel, node: nodes[0]}, nil
}

func (s *session) WaitUntil(ctx context.Context, cond browser.Condition, timeout time.Duration) error {
	switch cond.Kind {
	case browser.ConditionURLIs:
		err := browser.Poll(ctx, timeout, s.interval, func(ctx context.Context) (bool, error) {
			url, err := s.CurrentURL(ctx)
			if err != nil {
				return false, err
			}
			return url == cond.URL, nil
		})
		return browser.WrapError("wait", cond.String(), err)

	case browser.ConditionElementLocated:
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		err := s.run(waitCtx, chromedp.WaitReady(cond.Selector.CSS(), chromedp.ByQuery))
		if err != nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", browser.ErrTimeout, timeout)
		}
		return browser.WrapError("wait", cond.String(), err)

	default:
		return browser.WrapError("wait", cond.String(), browser.ErrUnsupported)
	}
}

func (s *session) RunScript(ctx context.Context, script string) error {
	return browser.WrapError("run script", "", s.run(ctx, chromedp.Evaluate(script, nil)))
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	s.cancelAlloc()
	return browser.WrapError("close", "", err)
}

// element is the node found by Find. Actions address the node itself, so an
// element removed from the page fails the action instead of waiting for the
// selector to match again.
type element struct {
	s    *session
	sel  browser.Selector
	node *cdp.Node
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return browser.WrapError("send keys", e.sel.String(), e.s.run(ctx, chromedp.KeyEventNode(e.node, text)))
}

func (e *element) Click(ctx context.Context) error {
	return browser.WrapError("click", e.sel.String(), e.s.run(ctx, chromedp.MouseClickNode(e.node)))
}

const innerTextFunction = `function() { return this.innerText; }`

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exception, err := runtime.CallFunctionOn(innerTextFunction).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return exception
		}
		return json.Unmarshal(res.Value, &text)
	}))
	if err != nil {
		return "", browser.WrapError("text", e.sel.String(), err)
	}
	return text, nil
}
