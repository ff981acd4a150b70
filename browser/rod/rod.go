// Package rod drives Chromium through github.com/go-rod/rod.
package rod

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gorod "github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/mateothegreat/go-signin-e2e/browser"
)

// Config selects how the browser is reached.
type Config struct {
	// ControlURL is the devtools URL of a running browser. When empty a
	// browser is launched locally.
	ControlURL string `yaml:"control_url" json:"control_url"`

	// Bin overrides the browser binary used for local launches.
	Bin string `yaml:"bin" json:"bin"`

	// PollInterval is how often URL waits re-check the location.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// Engine opens rod pages.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = browser.DefaultPollInterval
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) launcher(opts browser.Options) *launcher.Launcher {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(opts.DisableSandbox)
	if opts.DisableSandbox {
		l = l.Set("disable-dev-shm-usage")
	}
	if opts.SuppressLogging {
		l = l.Set("disable-logging").Set("log-level", "3").Set("silent")
	}
	if e.cfg.Bin != "" {
		l = l.Bin(e.cfg.Bin)
	}
	return l
}

func (e *Engine) Open(ctx context.Context, opts browser.Options) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var l *launcher.Launcher
	controlURL := e.cfg.ControlURL
	if controlURL == "" {
		l = e.launcher(opts)
		u, err := l.Launch()
		if err != nil {
			l.Kill()
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		controlURL = u
	}

	b := gorod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("connecting to %s: %w", controlURL, err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("opening page: %w", err)
	}

	return &session{
		browser:  b,
		launcher: l,
		page:     page,
		interval: e.cfg.PollInterval,
	}, nil
}

type session struct {
	browser  *gorod.Browser
	launcher *launcher.Launcher
	page     *gorod.Page
	interval time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *session) ID() string {
	return string(s.page.TargetID)
}

// pageFor binds the page to ctx after checking the session is still open.
func (s *session) pageFor(ctx context.Context) (*gorod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, browser.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.page.Context(ctx), nil
}

func (s *session) Navigate(ctx context.Context, url string) error {
	p, err := s.pageFor(ctx)
	if err != nil {
		return browser.WrapError("navigate", url, err)
	}
	if err := p.Navigate(url); err != nil {
		return browser.WrapError("navigate", url, err)
	}
	return browser.WrapError("navigate", url, p.WaitLoad())
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return "", browser.WrapError("current url", "", err)
	}
	info, err := p.Info()
	if err != nil {
		return "", browser.WrapError("current url", "", err)
	}
	return info.URL, nil
}

func (s *session) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	p, err := s.pageFor(ctx)
	if err != nil {
		return nil, browser.WrapError("find", sel.String(), err)
	}
	has, el, err := p.Has(sel.CSS())
	if err != nil {
		return nil, browser.WrapError("find", sel.String(), err)
	}
	if !has {
		return nil, browser.WrapError("find", sel.String(), browser.ErrElementNotFound)
	}
	return &element{el: el, sel: sel}, nil
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
		p, err := s.pageFor(ctx)
		if err != nil {
			return browser.WrapError("wait", cond.String(), err)
		}
		_, err = p.Timeout(timeout).Element(cond.Selector.CSS())
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s", browser.ErrTimeout, timeout)
		}
		return browser.WrapError("wait", cond.String(), err)

	default:
		return browser.WrapError("wait", cond.String(), browser.ErrUnsupported)
	}
}

func (s *session) RunScript(ctx context.Context, script string) error {
	p, err := s.pageFor(ctx)
	if err != nil {
		return browser.WrapError("run script", "", err)
	}
	_, err = p.Eval("() => { " + script + " }")
	return browser.WrapError("run script", "", err)
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.browser.Close()
	if s.launcher != nil {
		s.launcher.Kill()
	}
	return browser.WrapError("close", "", err)
}

type element struct {
	el  *gorod.Element
	sel browser.Selector
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return browser.WrapError("send keys", e.sel.String(), e.el.Context(ctx).Input(text))
}

func (e *element) Click(ctx context.Context) error {
	return browser.WrapError("click", e.sel.String(), e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (e *element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", browser.WrapError("text", e.sel.String(), err)
	}
	return text, nil
}
