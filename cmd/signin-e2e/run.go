package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	e2e "github.com/mateothegreat/go-signin-e2e"
	"github.com/mateothegreat/go-signin-e2e/browser"
	"github.com/mateothegreat/go-signin-e2e/browser/browsertest"
	"github.com/mateothegreat/go-signin-e2e/browser/devtools"
	"github.com/mateothegreat/go-signin-e2e/browser/rod"
	"github.com/mateothegreat/go-signin-e2e/browser/selenium"
	"github.com/mateothegreat/go-signin-e2e/signin"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the sign-in scenarios in order and print one line per scenario",
		Long: `Run opens one browser session, runs every sign-in scenario against it in
declaration order and prints "<name>: PASSED" or "<name>: FAILED" for each.

Failures are reported, not returned: the command exits 0 unless --strict is set.`,
		Args: cobra.NoArgs,
		RunE: runScenarios,
	}

	flags := cmd.Flags()
	flags.String("engine", EngineSelenium, fmt.Sprintf("browser engine (%s)", strings.Join(Engines, "|")))
	flags.String("base-url", "", "base URL of the application under test")
	flags.Duration("timeout", 0, "how long to wait for each redirect or alert")
	flags.Bool("headful", false, "show the browser window")
	flags.Bool("strict", false, "exit 1 when any scenario fails")
	flags.StringArray("scenario", nil, "run only the named scenario (repeatable)")
	flags.String("d2", "", "write the run order as a D2 diagram to this path")
	flags.String("driver-path", "", "chromedriver binary started by the selenium engine")
	flags.Int("driver-port", 0, "port of the chromedriver started by the selenium engine")
	flags.String("remote-url", "", "endpoint of an already running WebDriver hub or browser")
	return cmd
}

// configFromFlags loads the config file and applies the flags the user set
// explicitly on top of it.
func configFromFlags(cmd *cobra.Command) (Config, error) {
	cfg, err := LoadConfig(cmd.Flag("config").Value.String())
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine, _ = flags.GetString("engine")
	}
	if flags.Changed("base-url") {
		cfg.App.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("timeout") {
		cfg.App.WaitTimeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("headful") {
		headful, _ := flags.GetBool("headful")
		cfg.Browser.Headless = !headful
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("scenario") {
		cfg.Scenarios, _ = flags.GetStringArray("scenario")
	}
	if flags.Changed("d2") {
		cfg.D2, _ = flags.GetString("d2")
	}
	if flags.Changed("driver-path") {
		cfg.Selenium.DriverPath, _ = flags.GetString("driver-path")
	}
	if flags.Changed("driver-port") {
		cfg.Selenium.Port, _ = flags.GetInt("driver-port")
	}
	if flags.Changed("remote-url") {
		url, _ := flags.GetString("remote-url")
		cfg.Selenium.RemoteURL = url
		cfg.Chromedp.RemoteURL = url
		cfg.Rod.ControlURL = url
	}
	if cfg.App.WaitTimeout <= 0 {
		return cfg, fmt.Errorf("timeout must be positive, got %s", cfg.App.WaitTimeout)
	}
	return cfg, cfg.Validate()
}

func newLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newEngine(cfg Config, logger *slog.Logger) (browser.Engine, error) {
	switch cfg.Engine {
	case EngineSelenium:
		return selenium.New(cfg.Selenium), nil
	case EngineChromedp:
		return devtools.New(cfg.Chromedp, logger), nil
	case EngineRod:
		return rod.New(cfg.Rod), nil
	case EngineSimulated:
		app := browsertest.NewApp()
		app.BaseURL = cfg.App.BaseURL
		return browsertest.NewEngine(app), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := newLogger(cmd, cmd.ErrOrStderr())
	engine, err := newEngine(cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	suite := e2e.NewSuite(engine, cmd.OutOrStdout())
	suite.Options = cfg.Browser
	suite.Logger = logger
	if err := signin.Register(suite, cfg.App); err != nil {
		return WrapExitError(ExitCommandError, "registering scenarios", err)
	}
	if err := suite.Only(cfg.Scenarios...); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if cfg.D2 != "" {
		if err := suite.WriteD2(cfg.D2); err != nil {
			return WrapExitError(ExitCommandError, "writing d2 diagram", err)
		}
	}

	logger.Debug("starting run", "engine", cfg.Engine, "base_url", cfg.App.BaseURL, "scenarios", len(suite.Selected()))
	start := time.Now()
	report, err := suite.Run(cmd.Context())
	if err != nil {
		if errors.Is(err, e2e.ErrAcquire) {
			return WrapExitError(ExitCommandError, "no browser session", err)
		}
		return WrapExitError(ExitCommandError, "run aborted", err)
	}
	logger.Info("run finished",
		"run_id", report.RunID,
		"passed", report.Passed(),
		"failed", report.Failed(),
		"duration", time.Since(start),
	)

	if cfg.Strict && report.Failed() > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed()))
	}
	return nil
}
