package e2e

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mateothegreat/go-signin-e2e/browser"
	"github.com/mateothegreat/go-signin-e2e/browser/browsertest"
)

func pass(context.Context, browser.Session) error { return nil }

func fail(context.Context, browser.Session) error { return errors.New("assertion failed") }

func newSuite(t *testing.T) (*Suite, *browsertest.Engine, *bytes.Buffer) {
	t.Helper()
	engine := browsertest.NewEngine(nil)
	var out bytes.Buffer
	return NewSuite(engine, &out), engine, &out
}

func add(t *testing.T, s *Suite, name string, fn ScenarioFn) {
	t.Helper()
	_, err := s.AddScenario(name, fn)
	require.NoError(t, err)
}

func lines(out *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(out.String()), "\n")
}

func TestRunReportsOneLinePerScenarioInOrder(t *testing.T) {
	suite, engine, out := newSuite(t)
	add(t, suite, "first", pass)
	add(t, suite, "second", fail)
	add(t, suite, "third", pass)

	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first: PASSED",
		"second: FAILED",
		"third: PASSED",
	}, lines(out))
	assert.Equal(t, 2, report.Passed())
	assert.Equal(t, 1, report.Failed())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, engine.Opens())
	assert.Equal(t, 1, engine.Closes())
}

func TestRunOrderIsStableAcrossRuns(t *testing.T) {
	suite, _, out := newSuite(t)
	for _, name := range []string{"c", "a", "b"} {
		add(t, suite, name, pass)
	}

	for i := 0; i < 3; i++ {
		out.Reset()
		_, err := suite.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"c: PASSED", "a: PASSED", "b: PASSED"}, lines(out))
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	suite, engine, out := newSuite(t)
	var ran []string
	record := func(name string, err error) ScenarioFn {
		return func(context.Context, browser.Session) error {
			ran = append(ran, name)
			return err
		}
	}
	add(t, suite, "one", record("one", errors.New("element not found")))
	add(t, suite, "two", func(context.Context, browser.Session) error {
		ran = append(ran, "two")
		panic("unexpected nil")
	})
	add(t, suite, "three", record("three", nil))

	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, ran)
	assert.Equal(t, []string{"one: FAILED", "two: FAILED", "three: PASSED"}, lines(out))

	var panicErr *PanicError
	require.True(t, errors.As(report.Outcomes[1].Err, &panicErr))
	assert.Equal(t, "unexpected nil", panicErr.Value)
	assert.Equal(t, 1, engine.Closes())
}

func TestRunSharesOneSession(t *testing.T) {
	suite, engine, _ := newSuite(t)
	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		add(t, suite, name, func(_ context.Context, s browser.Session) error {
			ids = append(ids, s.ID())
			if engine.Live() != 1 {
				return errors.New("expected exactly one live session")
			}
			return nil
		})
	}

	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Failed())
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1])
	assert.Equal(t, ids[1], ids[2])
}

func TestRunAcquisitionFailureIsFatal(t *testing.T) {
	suite, engine, out := newSuite(t)
	engine.OpenErr = errors.New("chrome not found")
	called := false
	add(t, suite, "never", func(context.Context, browser.Session) error {
		called = true
		return nil
	})

	report, err := suite.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquire)
	assert.ErrorIs(t, err, engine.OpenErr)
	assert.Nil(t, report)
	assert.False(t, called)
	assert.Empty(t, out.String())
	assert.Equal(t, 0, engine.Closes())
}

func TestRunWithoutEngine(t *testing.T) {
	suite := NewSuite(nil, &bytes.Buffer{})
	_, err := suite.Run(context.Background())
	assert.ErrorIs(t, err, ErrAcquire)
}

func TestRunReleaseFailureDoesNotFailRun(t *testing.T) {
	suite, engine, out := newSuite(t)
	engine.CloseErr = errors.New("quit failed")
	add(t, suite, "broken", fail)

	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, report.ReleaseErr, engine.CloseErr)
	assert.Equal(t, []string{"broken: FAILED"}, lines(out))
	assert.Equal(t, 1, engine.Closes())
}

func TestRunSetupFailureReleasesSession(t *testing.T) {
	suite, engine, out := newSuite(t)
	suite.Setup(func(context.Context, browser.Session) error {
		return errors.New("script error")
	})
	add(t, suite, "never", pass)

	_, err := suite.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, out.String())
	assert.Equal(t, 1, engine.Opens())
	assert.Equal(t, 1, engine.Closes())
}

func TestRunHooks(t *testing.T) {
	suite, _, out := newSuite(t)
	var calls []string
	hook := func(name string) HookFn {
		return func(context.Context, browser.Session) error {
			calls = append(calls, name)
			return nil
		}
	}
	suite.Setup(hook("setup"))
	suite.BeforeEach(hook("before"))
	suite.AfterEach(hook("after"))
	suite.TearDown(hook("teardown"))
	add(t, suite, "a", func(context.Context, browser.Session) error {
		calls = append(calls, "a")
		return nil
	})
	add(t, suite, "b", func(context.Context, browser.Session) error {
		calls = append(calls, "b")
		return nil
	})

	_, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"setup", "before", "a", "after", "before", "b", "after", "teardown"}, calls)
	assert.Equal(t, []string{"a: PASSED", "b: PASSED"}, lines(out))
}

func TestRunBeforeEachFailureSkipsBody(t *testing.T) {
	suite, _, out := newSuite(t)
	afterRan := false
	suite.BeforeEach(func(context.Context, browser.Session) error {
		return errors.New("reset failed")
	})
	suite.AfterEach(func(context.Context, browser.Session) error {
		afterRan = true
		return nil
	})
	bodyRan := false
	add(t, suite, "a", func(context.Context, browser.Session) error {
		bodyRan = true
		return nil
	})

	report, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, bodyRan)
	assert.True(t, afterRan)
	assert.Equal(t, []string{"a: FAILED"}, lines(out))
	assert.ErrorContains(t, report.Outcomes[0].Err, "before each")
}

func TestRunTearDownFailureIsLogged(t *testing.T) {
	suite, engine, out := newSuite(t)
	suite.TearDown(func(context.Context, browser.Session) error {
		return errors.New("cleanup failed")
	})
	add(t, suite, "a", pass)

	_, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a: PASSED"}, lines(out))
	assert.Equal(t, 1, engine.Closes())
}

func TestRunSerializesConcurrentCalls(t *testing.T) {
	suite, engine, _ := newSuite(t)
	suite.Reporter = nil
	add(t, suite, "a", func(context.Context, browser.Session) error {
		if engine.Live() != 1 {
			return errors.New("overlapping sessions")
		}
		return nil
	})

	var wg sync.WaitGroup
	reports := make([]*Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], _ = suite.Run(context.Background())
		}(i)
	}
	wg.Wait()

	for _, r := range reports {
		require.NotNil(t, r)
		assert.Equal(t, 0, r.Failed())
	}
	assert.Equal(t, 4, engine.Opens())
	assert.Equal(t, 4, engine.Closes())
}

func TestOnlyDuringRun(t *testing.T) {
	suite, _, _ := newSuite(t)
	suite.Reporter = nil
	for _, name := range []string{"a", "b", "c"} {
		add(t, suite, name, pass)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if i%2 == 0 {
				_ = suite.Only("b")
			} else {
				_ = suite.Only()
			}
			_ = suite.Selected()
		}
	}()

	for i := 0; i < 10; i++ {
		report, err := suite.Run(context.Background())
		require.NoError(t, err)
		n := len(report.Outcomes)
		assert.True(t, n == 1 || n == 3, "a run sees one complete selection, got %d", n)
	}
	<-done
}

func TestAddScenarioValidation(t *testing.T) {
	suite, _, _ := newSuite(t)

	_, err := suite.AddScenario("", pass)
	assert.Error(t, err)

	_, err = suite.AddScenario("no fn", nil)
	assert.Error(t, err)

	add(t, suite, "a", pass)
	_, err = suite.AddScenario("a", pass)
	assert.Error(t, err)
}

func TestOnlyKeepsDeclarationOrder(t *testing.T) {
	suite, _, out := newSuite(t)
	for _, name := range []string{"a", "b", "c"} {
		add(t, suite, name, pass)
	}

	require.NoError(t, suite.Only("c", "a"))
	_, err := suite.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a: PASSED", "c: PASSED"}, lines(out))

	assert.Error(t, suite.Only("missing"))

	require.NoError(t, suite.Only())
	assert.Len(t, suite.Selected(), 3)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "Admin login: PASSED", Outcome{Name: "Admin login"}.String())
	assert.Equal(t, "Admin login: FAILED", Outcome{Name: "Admin login", Err: browser.ErrTimeout}.String())
}

func TestReporterFunc(t *testing.T) {
	var got []Outcome
	suite, _, _ := newSuite(t)
	suite.Reporter = ReporterFunc(func(o Outcome) { got = append(got, o) })
	add(t, suite, "a", fail)

	_, err := suite.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Passed())
}

func TestToD2(t *testing.T) {
	suite, _, _ := newSuite(t)

	var empty bytes.Buffer
	require.NoError(t, suite.ToD2(&empty))
	assert.Empty(t, empty.String())

	add(t, suite, "Regular user login", pass)
	var single bytes.Buffer
	require.NoError(t, suite.ToD2(&single))
	assert.Equal(t, "\"Regular user login\"\n", single.String())

	add(t, suite, "Admin login", pass)
	add(t, suite, "Invalid email", pass)

	path := filepath.Join(t.TempDir(), "run.d2")
	require.NoError(t, suite.WriteD2(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\"Regular user login\" -> \"Admin login\"\n\"Admin login\" -> \"Invalid email\"\n", string(data))
}
