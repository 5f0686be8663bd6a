// Package config loads the YAML configuration file.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"netrisk/internal/analysis"
	"netrisk/internal/capture"
	"netrisk/internal/logging"
	"netrisk/internal/risk"
)

// Config is the whole process configuration.
type Config struct {
	Listen      string          `yaml:"listen"`
	CORSOrigins []string        `yaml:"cors_origins"`
	ReportDir   string          `yaml:"report_dir"`
	Capture     capture.Config  `yaml:"capture"`
	Risk        risk.Config     `yaml:"risk"`
	Analysis    analysis.Config `yaml:"analysis"`
	Log         logging.Config  `yaml:"log"`
}

// Default returns a configuration usable without a file.
func Default() Config {
	return Config{
		Listen:      "127.0.0.1:8000",
		CORSOrigins: []string{"*"},
		ReportDir:   "reports",
		Capture:     capture.DefaultConfig(),
		Risk:        risk.DefaultConfig(),
		Analysis:    analysis.DefaultConfig(),
		Log:         logging.DefaultConfig(),
	}
}

// Load reads path over the defaults. Fields missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the capture pipeline cannot run with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.Capture.SnapLen <= 0 {
		return errors.Errorf("snaplen must be positive, got %d", c.Capture.SnapLen)
	}
	if c.Capture.ReadTimeout < 0 {
		return errors.Errorf("read_timeout must not be negative, got %s", c.Capture.ReadTimeout)
	}
	if c.Capture.StopTimeout < 0 {
		return errors.Errorf("stop_timeout must not be negative, got %s", c.Capture.StopTimeout)
	}
	if c.Analysis.BurstWindow < 0 || c.Analysis.CleanupInterval < 0 {
		return errors.New("analysis windows must not be negative")
	}
	return nil
}
