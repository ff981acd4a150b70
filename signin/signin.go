// Package signin declares the end-to-end scenarios for the application's
// sign-in page.
//
// Every scenario starts from a known state: it opens the sign-in page, clears
// localStorage and opens the page again. Without the reset a successful login
// leaves a token behind and the next visit to the sign-in page is redirected
// home.
//
// The alert checks match application copy ("doesn't exist", "didn't match")
// by substring, so a wording change in the application fails them.
package signin

import (
	"context"
	"fmt"
	"strings"
	"time"

	e2e "github.com/mateothegreat/go-signin-e2e"
	"github.com/mateothegreat/go-signin-e2e/browser"
)

// Scenario names, in declaration order.
const (
	RegularUserLogin = "Regular user login"
	AdminLogin       = "Admin login"
	InvalidEmail     = "Invalid email"
	InvalidPassword  = "Invalid password"
	EmptyForm        = "Empty form submission"
	AlreadySignedIn  = "Redirect if already authenticated"
)

// Names returns every scenario name in declaration order.
func Names() []string {
	return []string{
		RegularUserLogin,
		AdminLogin,
		InvalidEmail,
		InvalidPassword,
		EmptyForm,
		AlreadySignedIn,
	}
}

const (
	// SilenceConsoleScript replaces the in-page console methods with no-ops.
	SilenceConsoleScript = `
console.log = function() {};
console.error = function() {};
console.warn = function() {};
console.info = function() {};
`

	// ClearStorageScript drops all client-side state for the current origin.
	ClearStorageScript = `window.localStorage.clear();`
)

var (
	EmailInput  = browser.ByID("email")
	PassInput   = browser.ByID("password")
	SubmitInput = browser.ByCSS(`button[type="submit"]`)
	ErrorAlert  = browser.ByCSS(".alert.alert-danger")
)

type Credentials struct {
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
}

// Config describes the application under test and its fixtures.
type Config struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	SignInPath  string        `yaml:"signin_path" json:"signin_path"`
	WaitTimeout time.Duration `yaml:"wait_timeout" json:"wait_timeout"`

	User          Credentials `yaml:"user" json:"user"`
	Admin         Credentials `yaml:"admin" json:"admin"`
	UnknownEmail  Credentials `yaml:"unknown_email" json:"unknown_email"`
	WrongPassword Credentials `yaml:"wrong_password" json:"wrong_password"`

	// MockToken is the JSON value seeded into localStorage["jwt"].
	MockToken string `yaml:"mock_token" json:"mock_token"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://localhost:3000",
		SignInPath:    "/signin",
		WaitTimeout:   10 * time.Second,
		User:          Credentials{Email: "user1@psg.in", Password: "12345678"},
		Admin:         Credentials{Email: "admin@psg.in", Password: "12345678"},
		UnknownEmail:  Credentials{Email: "nonexistent@example.com", Password: "password123"},
		WrongPassword: Credentials{Email: "testuser@example.com", Password: "wrongpassword"},
		MockToken:     `{"token":"mock-token","user":{"_id":"123","role":0}}`,
	}
}

// URL joins path onto the base URL.
func (c Config) URL(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c Config) SignInURL() string {
	return c.URL(c.SignInPath)
}

// SeedTokenScript stores token under localStorage["jwt"].
func SeedTokenScript(token string) string {
	return fmt.Sprintf(`window.localStorage.setItem("jwt", JSON.stringify(%s));`, token)
}

// MismatchError is returned when an alert does not carry the expected text.
type MismatchError struct {
	Want string
	Got  string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("alert text %q does not contain %q", e.Got, e.Want)
}

// Register adds the console-silencing setup hook and the six scenarios to
// suite, in order.
func Register(suite *e2e.Suite, cfg Config) error {
	scenarios := []struct {
		name string
		fn   e2e.ScenarioFn
	}{
		{RegularUserLogin, loginRedirects(cfg, cfg.User, cfg.URL("/user/dashboard"))},
		{AdminLogin, loginRedirects(cfg, cfg.Admin, cfg.URL("/admin/dashboard"))},
		{InvalidEmail, loginAlerts(cfg, cfg.UnknownEmail, "doesn't exist", false)},
		{InvalidPassword, loginAlerts(cfg, cfg.WrongPassword, "didn't match", false)},
		{EmptyForm, loginAlerts(cfg, Credentials{}, "error", true)},
		{AlreadySignedIn, redirectsWhenAuthenticated(cfg)},
	}
	for _, s := range scenarios {
		if _, err := suite.AddScenario(s.name, s.fn); err != nil {
			return err
		}
	}
	suite.Setup(SilenceConsole)
	return nil
}

// SilenceConsole silences the in-page console of the current page.
func SilenceConsole(ctx context.Context, s browser.Session) error {
	return s.RunScript(ctx, SilenceConsoleScript)
}

// Reset leaves the session on the sign-in page with empty localStorage.
func Reset(ctx context.Context, s browser.Session, cfg Config) error {
	if err := s.Navigate(ctx, cfg.SignInURL()); err != nil {
		return err
	}
	if err := s.RunScript(ctx, ClearStorageScript); err != nil {
		return err
	}
	return s.Navigate(ctx, cfg.SignInURL())
}

// submit fills in the non-empty credential fields and clicks submit.
func submit(ctx context.Context, s browser.Session, creds Credentials) error {
	fields := []struct {
		sel   browser.Selector
		value string
	}{
		{EmailInput, creds.Email},
		{PassInput, creds.Password},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		el, err := s.Find(ctx, f.sel)
		if err != nil {
			return err
		}
		if err := el.SendKeys(ctx, f.value); err != nil {
			return err
		}
	}

	button, err := s.Find(ctx, SubmitInput)
	if err != nil {
		return err
	}
	return button.Click(ctx)
}

func loginRedirects(cfg Config, creds Credentials, want string) e2e.ScenarioFn {
	return func(ctx context.Context, s browser.Session) error {
		if err := Reset(ctx, s, cfg); err != nil {
			return err
		}
		if err := submit(ctx, s, creds); err != nil {
			return err
		}
		return s.WaitUntil(ctx, browser.URLIs(want), cfg.WaitTimeout)
	}
}

func loginAlerts(cfg Config, creds Credentials, want string, foldCase bool) e2e.ScenarioFn {
	return func(ctx context.Context, s browser.Session) error {
		if err := Reset(ctx, s, cfg); err != nil {
			return err
		}
		if err := submit(ctx, s, creds); err != nil {
			return err
		}
		if err := s.WaitUntil(ctx, browser.ElementLocated(ErrorAlert), cfg.WaitTimeout); err != nil {
			return err
		}
		alert, err := s.Find(ctx, ErrorAlert)
		if err != nil {
			return err
		}
		text, err := alert.Text(ctx)
		if err != nil {
			return err
		}

		got := text
		if foldCase {
			got = strings.ToLower(text)
		}
		if !strings.Contains(got, want) {
			return &MismatchError{Want: want, Got: text}
		}
		return nil
	}
}

func redirectsWhenAuthenticated(cfg Config) e2e.ScenarioFn {
	return func(ctx context.Context, s browser.Session) error {
		if err := Reset(ctx, s, cfg); err != nil {
			return err
		}
		if err := s.RunScript(ctx, SeedTokenScript(cfg.MockToken)); err != nil {
			return err
		}
		if err := s.Navigate(ctx, cfg.SignInURL()); err != nil {
			return err
		}
		return s.WaitUntil(ctx, browser.URLIs(cfg.URL("/")), cfg.WaitTimeout)
	}
}
