package browsertest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mateothegreat/go-signin-e2e/browser"
)

const blankURL = "about:blank"

var (
	clearScript   = regexp.MustCompile(`localStorage\.clear\(\s*\)`)
	setItemScript = regexp.MustCompile(`(?m)localStorage\.setItem\(\s*["']([^"']+)["']\s*,\s*(.+?)\s*\)\s*;?\s*$`)
	removeScript  = regexp.MustCompile(`localStorage\.removeItem\(\s*["']([^"']+)["']\s*\)`)
	consoleScript = regexp.MustCompile(`console\.(log|error|warn|info)\s*=`)
	stringifyExpr = regexp.MustCompile(`^JSON\.stringify\((.*)\)$`)
)

// transition is a client-side change applied once its time has come.
type transition struct {
	at    time.Time
	path  string
	alert string
}

// Session is a simulated browser tab.
type Session struct {
	id      string
	engine  *Engine
	app     *App
	storage *Storage

	mu              sync.Mutex
	closed          bool
	path            string
	doc             *goquery.Document
	values          map[string]string
	alert           string
	pending         *transition
	consoleSilenced bool
	scripts         []string
}

func (s *Session) ID() string {
	return s.id
}

// Storage exposes the session's localStorage.
func (s *Session) Storage() *Storage {
	return s.storage
}

// ConsoleSilenced reports whether a script replaced the console methods.
func (s *Session) ConsoleSilenced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consoleSilenced
}

// Scripts returns every script run in the session, in order.
func (s *Session) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// begin locks the session and applies any due transition. The caller must
// call s.mu.Unlock when it returns nil.
func (s *Session) begin(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return browser.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.settle(); err != nil {
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Session) settle() error {
	for s.pending != nil && !time.Now().Before(s.pending.at) {
		t := s.pending
		s.pending = nil
		if err := s.apply(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) schedule(t transition) error {
	if s.app.Latency <= 0 {
		return s.apply(&t)
	}
	t.at = time.Now().Add(s.app.Latency)
	s.pending = &t
	return nil
}

func (s *Session) apply(t *transition) error {
	if t.path != "" {
		return s.load(t.path)
	}
	s.alert = t.alert
	return s.render()
}

// load replaces the current page with path. An empty path is about:blank.
func (s *Session) load(path string) error {
	s.path = path
	s.values = make(map[string]string)
	s.alert = ""
	s.pending = nil
	if err := s.render(); err != nil {
		return err
	}
	if path == SignInPath && s.app.RedirectAuthenticated && s.storage.Has(TokenKey) {
		return s.schedule(transition{path: HomePath})
	}
	return nil
}

func (s *Session) render() error {
	html, err := s.app.render(s.path, pageData{Alert: s.alert, Email: s.values["email"]})
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *Session) currentURL() string {
	if s.path == "" {
		return blankURL
	}
	return s.app.URL(s.path)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.begin(ctx); err != nil {
		return browser.WrapError("navigate", url, err)
	}
	defer s.mu.Unlock()

	if url == blankURL {
		return s.load("")
	}
	base := strings.TrimRight(s.app.BaseURL, "/")
	path, ok := strings.CutPrefix(url, base)
	if !ok || (path != "" && path[0] != '/') {
		return browser.WrapError("navigate", url, fmt.Errorf("host unreachable"))
	}
	if path == "" {
		path = HomePath
	}
	return browser.WrapError("navigate", url, s.load(path))
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	if err := s.begin(ctx); err != nil {
		return "", browser.WrapError("current url", "", err)
	}
	defer s.mu.Unlock()
	return s.currentURL(), nil
}

func (s *Session) find(sel browser.Selector) *goquery.Selection {
	return s.doc.Find(sel.CSS()).First()
}

func (s *Session) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	if err := s.begin(ctx); err != nil {
		return nil, browser.WrapError("find", sel.String(), err)
	}
	defer s.mu.Unlock()

	if s.find(sel).Length() == 0 {
		return nil, browser.WrapError("find", sel.String(), browser.ErrElementNotFound)
	}
	return &element{s: s, sel: sel}, nil
}

func (s *Session) WaitUntil(ctx context.Context, cond browser.Condition, timeout time.Duration) error {
	var check func() bool
	switch cond.Kind {
	case browser.ConditionURLIs:
		check = func() bool { return s.currentURL() == cond.URL }
	case browser.ConditionElementLocated:
		check = func() bool { return s.find(cond.Selector).Length() > 0 }
	default:
		return browser.WrapError("wait", cond.String(), browser.ErrUnsupported)
	}

	err := browser.Poll(ctx, timeout, s.engine.PollInterval, func(ctx context.Context) (bool, error) {
		if err := s.begin(ctx); err != nil {
			return false, err
		}
		defer s.mu.Unlock()
		return check(), nil
	})
	return browser.WrapError("wait", cond.String(), err)
}

func (s *Session) RunScript(ctx context.Context, script string) error {
	if err := s.begin(ctx); err != nil {
		return browser.WrapError("run script", "", err)
	}
	defer s.mu.Unlock()

	s.scripts = append(s.scripts, script)
	if consoleScript.MatchString(script) {
		s.consoleSilenced = true
	}
	if s.path == "" && (clearScript.MatchString(script) || setItemScript.MatchString(script) || removeScript.MatchString(script)) {
		// about:blank has an opaque origin and no storage.
		return browser.WrapError("run script", "", fmt.Errorf("localStorage is not available on %s", blankURL))
	}
	if clearScript.MatchString(script) {
		s.storage.Clear()
	}
	for _, m := range removeScript.FindAllStringSubmatch(script, -1) {
		s.storage.Remove(m[1])
	}
	for _, m := range setItemScript.FindAllStringSubmatch(script, -1) {
		s.storage.Set(m[1], storedValue(m[2]))
	}
	return nil
}

// storedValue reduces the JavaScript value expression passed to setItem to
// the string the browser would store.
func storedValue(expr string) string {
	expr = strings.TrimSpace(expr)
	if m := stringifyExpr.FindStringSubmatch(expr); m != nil {
		return strings.TrimSpace(m[1])
	}
	if len(expr) >= 2 && (expr[0] == '"' || expr[0] == '\'') && expr[len(expr)-1] == expr[0] {
		return expr[1 : len(expr)-1]
	}
	return expr
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.engine.released()
	return s.engine.CloseErr
}

type element struct {
	s   *Session
	sel browser.Selector
}

// node re-queries the element on the current page. The caller holds s.mu.
func (e *element) node() (*goquery.Selection, error) {
	n := e.s.find(e.sel)
	if n.Length() == 0 {
		return nil, fmt.Errorf("stale element: %w", browser.ErrElementNotFound)
	}
	return n, nil
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	if err := e.s.begin(ctx); err != nil {
		return browser.WrapError("send keys", e.sel.String(), err)
	}
	defer e.s.mu.Unlock()

	n, err := e.node()
	if err != nil {
		return browser.WrapError("send keys", e.sel.String(), err)
	}
	id, ok := n.Attr("id")
	if goquery.NodeName(n) != "input" || !ok {
		return browser.WrapError("send keys", e.sel.String(), fmt.Errorf("element is not an input"))
	}
	e.s.values[id] += text
	return nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.s.begin(ctx); err != nil {
		return browser.WrapError("click", e.sel.String(), err)
	}
	defer e.s.mu.Unlock()

	n, err := e.node()
	if err != nil {
		return browser.WrapError("click", e.sel.String(), err)
	}
	if kind, _ := n.Attr("type"); goquery.NodeName(n) != "button" || kind != "submit" {
		return nil
	}

	result := e.s.app.signIn(e.s.values["email"], e.s.values["password"])
	if result.Token != "" {
		e.s.storage.Set(TokenKey, result.Token)
	}
	return browser.WrapError("click", e.sel.String(), e.s.schedule(transition{path: result.Redirect, alert: result.Alert}))
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := e.s.begin(ctx); err != nil {
		return "", browser.WrapError("text", e.sel.String(), err)
	}
	defer e.s.mu.Unlock()

	n, err := e.node()
	if err != nil {
		return "", browser.WrapError("text", e.sel.String(), err)
	}
	return strings.TrimSpace(n.Text()), nil
}
