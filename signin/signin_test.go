package signin

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	e2e "github.com/mateothegreat/go-signin-e2e"
	"github.com/mateothegreat/go-signin-e2e/browser"
	"github.com/mateothegreat/go-signin-e2e/browser/browsertest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.WaitTimeout = time.Second
	return cfg
}

func run(t *testing.T, app *browsertest.App, cfg Config, only ...string) (*e2e.Report, *browsertest.Engine, string) {
	t.Helper()
	engine := browsertest.NewEngine(app)
	var out bytes.Buffer
	suite := e2e.NewSuite(engine, &out)
	require.NoError(t, Register(suite, cfg))
	require.NoError(t, suite.Only(only...))

	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	return report, engine, out.String()
}

func outcome(t *testing.T, report *e2e.Report, name string) e2e.Outcome {
	t.Helper()
	for _, o := range report.Outcomes {
		if o.Name == name {
			return o
		}
	}
	t.Fatalf("no outcome for %s", name)
	return e2e.Outcome{}
}

func TestAllScenariosPass(t *testing.T) {
	_, engine, out := run(t, browsertest.NewApp(), testConfig())

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "all_scenarios", []byte(out))

	assert.Equal(t, 1, engine.Opens())
	assert.Equal(t, 1, engine.Closes())
	assert.True(t, engine.LastSession().ConsoleSilenced())
	assert.Equal(t, browser.DefaultOptions(), engine.LastOptions())
}

func TestBrokenApplication(t *testing.T) {
	app := browsertest.NewApp()
	app.Messages = browsertest.Messages{
		UnknownEmail:  "wrong password",
		WrongPassword: "Invalid credentials",
		EmptyForm:     "Please fill in all fields",
	}
	app.RedirectAuthenticated = false

	cfg := testConfig()
	cfg.WaitTimeout = 50 * time.Millisecond
	report, engine, out := run(t, app, cfg)

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "broken_copy_no_redirect", []byte(out))

	var mismatch *MismatchError
	require.True(t, errors.As(outcome(t, report, InvalidEmail).Err, &mismatch))
	assert.Equal(t, "doesn't exist", mismatch.Want)
	assert.Equal(t, "wrong password", mismatch.Got)

	assert.True(t, browser.IsTimeout(outcome(t, report, AlreadySignedIn).Err))
	assert.Equal(t, 1, engine.Closes())
}

func TestInvalidEmailWithWrongCopyFails(t *testing.T) {
	app := browsertest.NewApp()
	app.Messages.UnknownEmail = "wrong password"

	_, _, out := run(t, app, testConfig(), InvalidEmail)
	assert.Equal(t, "Invalid email: FAILED\n", out)
}

func TestEmptyFormMatchesCaseInsensitively(t *testing.T) {
	app := browsertest.NewApp()
	app.Messages.EmptyForm = "VALIDATION ERROR"

	_, _, out := run(t, app, testConfig(), EmptyForm)
	assert.Equal(t, "Empty form submission: PASSED\n", out)
}

func TestRedirectTimesOutWithoutRedirect(t *testing.T) {
	app := browsertest.NewApp()
	app.RedirectAuthenticated = false
	cfg := testConfig()
	cfg.WaitTimeout = 30 * time.Millisecond

	report, _, out := run(t, app, cfg, AlreadySignedIn)
	assert.Equal(t, "Redirect if already authenticated: FAILED\n", out)
	assert.True(t, browser.IsTimeout(outcome(t, report, AlreadySignedIn).Err))
}

func TestScenariosWaitForSlowApplication(t *testing.T) {
	app := browsertest.NewApp()
	app.Latency = 20 * time.Millisecond

	report, _, _ := run(t, app, testConfig())
	assert.Equal(t, len(Names()), report.Passed())
}

func TestUnknownAccountFailsLogin(t *testing.T) {
	cfg := testConfig()
	cfg.WaitTimeout = 30 * time.Millisecond
	cfg.User = Credentials{Email: "ghost@psg.in", Password: "12345678"}

	report, _, out := run(t, browsertest.NewApp(), cfg, RegularUserLogin)
	assert.Equal(t, "Regular user login: FAILED\n", out)
	assert.True(t, browser.IsTimeout(outcome(t, report, RegularUserLogin).Err))
}

func TestMissingFormFailsEveryScenario(t *testing.T) {
	cfg := testConfig()
	cfg.SignInPath = "/login"

	report, engine, out := run(t, browsertest.NewApp(), cfg)
	assert.Equal(t, 0, report.Passed())
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), len(Names()))
	assert.True(t, browser.IsNotFound(outcome(t, report, AdminLogin).Err))
	assert.Equal(t, 1, engine.Closes())
}

func TestLoginLeavesTokenBehind(t *testing.T) {
	_, engine, _ := run(t, browsertest.NewApp(), testConfig(), RegularUserLogin)
	assert.True(t, engine.LastSession().Storage().Has(browsertest.TokenKey))
}

func TestSeedTokenScript(t *testing.T) {
	assert.Equal(t,
		`window.localStorage.setItem("jwt", JSON.stringify({"token":"mock-token","user":{"_id":"123","role":0}}));`,
		SeedTokenScript(DefaultConfig().MockToken))
}

func TestRegisterDeclaresScenariosInOrder(t *testing.T) {
	suite := e2e.NewSuite(browsertest.NewEngine(nil), &bytes.Buffer{})
	require.NoError(t, Register(suite, DefaultConfig()))

	var names []string
	for _, s := range suite.Scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, Names(), names)
	assert.Len(t, suite.SetupFns, 1)

	assert.Error(t, Register(suite, DefaultConfig()), "duplicate registration")
	assert.Len(t, suite.SetupFns, 1, "a failed registration adds no hook")
	assert.Len(t, suite.Scenarios, len(Names()))
}

func TestConfigURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://localhost:3000/"
	assert.Equal(t, "http://localhost:3000/signin", cfg.SignInURL())
	assert.Equal(t, "http://localhost:3000/", cfg.URL("/"))
}
