// Package selenium drives Chrome through the WebDriver protocol using
// github.com/tebeka/selenium, either against a local chromedriver it starts
// itself or against a remote Selenium hub.
package selenium

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"

	"github.com/mateothegreat/go-signin-e2e/browser"
)

// Config selects how the WebDriver endpoint is reached.
type Config struct {
	// RemoteURL is a running WebDriver endpoint. When set no driver is started.
	RemoteURL string `yaml:"remote_url" json:"remote_url"`

	// DriverPath is the chromedriver binary started when RemoteURL is empty.
	DriverPath string `yaml:"driver_path" json:"driver_path"`

	// Port is the port the started chromedriver listens on.
	Port int `yaml:"port" json:"port"`

	// PollInterval is how often WaitUntil re-checks its condition.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// Engine opens WebDriver sessions.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.DriverPath == "" {
		cfg.DriverPath = "chromedriver"
	}
	if cfg.Port == 0 {
		cfg.Port = 9515
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = browser.DefaultPollInterval
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Open(ctx context.Context, opts browser.Options) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var output io.Writer = os.Stderr
	if opts.SuppressLogging {
		output = io.Discard
		selenium.SetDebug(false)
	}

	var service *selenium.Service
	url := e.cfg.RemoteURL
	if url == "" {
		var err error
		service, err = selenium.NewChromeDriverService(e.cfg.DriverPath, e.cfg.Port, selenium.Output(output))
		if err != nil {
			return nil, fmt.Errorf("starting chromedriver %s: %w", e.cfg.DriverPath, err)
		}
		url = fmt.Sprintf("http://localhost:%d", e.cfg.Port)
	}

	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{Args: opts.ChromeArgs()})

	wd, err := selenium.NewRemote(caps, url)
	if err != nil {
		if service != nil {
			_ = service.Stop()
		}
		return nil, fmt.Errorf("connecting to webdriver at %s: %w", url, err)
	}

	return &session{
		wd:       wd,
		service:  service,
		interval: e.cfg.PollInterval,
	}, nil
}

type session struct {
	wd       selenium.WebDriver
	service  *selenium.Service
	interval time.Duration

	mu     sync.Mutex
	closed bool
}

func (s *session) ID() string {
	return s.wd.SessionID()
}

func (s *session) check(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return browser.ErrSessionClosed
	}
	return ctx.Err()
}

func (s *session) Navigate(ctx context.Context, url string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return browser.WrapError("navigate", url, s.wd.Get(url))
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	url, err := s.wd.CurrentURL()
	if err != nil {
		return "", browser.WrapError("current url", "", err)
	}
	return url, nil
}

func (s *session) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	el, err := s.wd.FindElement(by(sel), sel.Value)
	if err != nil {
		if isNoSuchElement(err) {
			err = fmt.Errorf("%w: %v", browser.ErrElementNotFound, err)
		}
		return nil, browser.WrapError("find", sel.String(), err)
	}
	return &element{el: el, sel: sel}, nil
}

func (s *session) WaitUntil(ctx context.Context, cond browser.Condition, timeout time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	// WaitWithTimeoutAndInterval does not take a context, so the condition
	// checks ctx itself and stops the wait once it is done.
	var condErr error
	check := func(condition func(wd selenium.WebDriver) (bool, error)) selenium.Condition {
		return func(wd selenium.WebDriver) (bool, error) {
			if err := ctx.Err(); err != nil {
				condErr = err
				return false, err
			}
			ok, err := condition(wd)
			if err != nil {
				condErr = err
			}
			return ok, err
		}
	}

	var fn selenium.Condition
	switch cond.Kind {
	case browser.ConditionURLIs:
		fn = check(func(wd selenium.WebDriver) (bool, error) {
			url, err := wd.CurrentURL()
			if err != nil {
				return false, err
			}
			return url == cond.URL, nil
		})
	case browser.ConditionElementLocated:
		fn = check(func(wd selenium.WebDriver) (bool, error) {
			_, err := wd.FindElement(by(cond.Selector), cond.Selector.Value)
			if err != nil {
				if isNoSuchElement(err) {
					return false, nil
				}
				return false, err
			}
			return true, nil
		})
	default:
		return browser.WrapError("wait", cond.String(), browser.ErrUnsupported)
	}

	err := s.wd.WaitWithTimeoutAndInterval(fn, timeout, s.interval)
	if err != nil && condErr == nil {
		// The only error the wait loop produces itself is its timeout.
		err = fmt.Errorf("%w: %v", browser.ErrTimeout, err)
	}
	return browser.WrapError("wait", cond.String(), err)
}

func (s *session) RunScript(ctx context.Context, script string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	_, err := s.wd.ExecuteScript(script, nil)
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

	err := s.wd.Quit()
	if s.service != nil {
		if stopErr := s.service.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	return browser.WrapError("quit", "", err)
}

type element struct {
	el  selenium.WebElement
	sel browser.Selector
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return browser.WrapError("send keys", e.sel.String(), e.el.SendKeys(text))
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return browser.WrapError("click", e.sel.String(), e.el.Click())
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.el.Text()
	if err != nil {
		return "", browser.WrapError("text", e.sel.String(), err)
	}
	return text, nil
}

func by(sel browser.Selector) string {
	if sel.By == browser.ByIDStrategy {
		return selenium.ByID
	}
	return selenium.ByCSSSelector
}

// isNoSuchElement reports whether err is the WebDriver "no such element"
// error.
func isNoSuchElement(err error) bool {
	var wdErr *selenium.Error
	return errors.As(err, &wdErr) && wdErr.Err == "no such element"
}
