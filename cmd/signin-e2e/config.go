package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mateothegreat/go-signin-e2e/browser"
	"github.com/mateothegreat/go-signin-e2e/browser/devtools"
	"github.com/mateothegreat/go-signin-e2e/browser/rod"
	"github.com/mateothegreat/go-signin-e2e/browser/selenium"
	"github.com/mateothegreat/go-signin-e2e/signin"
)

const (
	EngineSelenium  = "selenium"
	EngineChromedp  = "chromedp"
	EngineRod       = "rod"
	EngineSimulated = "simulated"
)

// Engines lists the accepted values of the engine setting.
var Engines = []string{EngineSelenium, EngineChromedp, EngineRod, EngineSimulated}

type Config struct {
	Engine    string   `yaml:"engine" json:"engine"`
	Strict    bool     `yaml:"strict" json:"strict"`
	Scenarios []string `yaml:"scenarios" json:"scenarios"`
	D2        string   `yaml:"d2" json:"d2"`

	App     signin.Config   `yaml:"app" json:"app"`
	Browser browser.Options `yaml:"browser" json:"browser"`

	Selenium selenium.Config `yaml:"selenium" json:"selenium"`
	Chromedp devtools.Config `yaml:"chromedp" json:"chromedp"`
	Rod      rod.Config      `yaml:"rod" json:"rod"`
}

func DefaultConfig() Config {
	return Config{
		Engine:  EngineSelenium,
		App:     signin.DefaultConfig(),
		Browser: browser.DefaultOptions(),
	}
}

// LoadConfig reads the YAML file at path over the defaults. Keys missing from
// the file keep their default values. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	for _, name := range Engines {
		if c.Engine == name {
			return nil
		}
	}
	return fmt.Errorf("unknown engine %q (want one of %s)", c.Engine, strings.Join(Engines, ", "))
}
