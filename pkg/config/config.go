package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/dutexpect/pkg/dut"
	"github.com/srg/dutexpect/pkg/expect"
	"github.com/srg/dutexpect/pkg/scenario"
	"github.com/srg/dutexpect/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel        logrus.Level        `yaml:"log_level" default:"4"`
	DefaultTimeout  time.Duration       `yaml:"default_timeout" default:"30s"`
	TailLines       int                 `yaml:"tail_lines" default:"20"`
	TranscriptLines uint32              `yaml:"transcript_lines" default:"10000"`
	PollInterval    time.Duration       `yaml:"poll_interval" default:"20ms"`
	MaxLineBytes    int                 `yaml:"max_line_bytes" default:"65536"`
	StripEscapes    bool                `yaml:"strip_escapes"`
	Match           expect.MatchOptions `yaml:"match"`
	Baud            int                 `yaml:"baud" default:"115200"`
	LockDir         string              `yaml:"lock_dir"`
	HistoryPath     string              `yaml:"history_path"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DefaultTimeout <= 0:
		return fmt.Errorf("default_timeout must be positive, got %v", c.DefaultTimeout)
	case c.TailLines <= 0:
		return fmt.Errorf("tail_lines must be positive, got %d", c.TailLines)
	case c.TranscriptLines > dut.MaxTranscriptLines:
		return fmt.Errorf("transcript_lines must be at most %d, got %d", dut.MaxTranscriptLines, c.TranscriptLines)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	case c.MaxLineBytes <= 0:
		return fmt.Errorf("max_line_bytes must be positive, got %d", c.MaxLineBytes)
	}
	return nil
}

// ReaderOptions returns the line reader settings.
func (c *Config) ReaderOptions() dut.ReaderOptions {
	opts := dut.DefaultReaderOptions()
	opts.PollInterval = c.PollInterval
	opts.MaxLineBytes = c.MaxLineBytes
	opts.StripEscapes = c.StripEscapes
	return opts
}

// RunnerOptions returns the scenario runner settings.
func (c *Config) RunnerOptions() scenario.RunnerOptions {
	return scenario.RunnerOptions{DefaultTimeout: c.DefaultTimeout}
}

// ScenarioMatch widens a scenario's literal comparison with the options enabled in
// the config. A scenario can relax matching further but not undo the config.
func (c *Config) ScenarioMatch(m expect.MatchOptions) expect.MatchOptions {
	m.TrimSpace = m.TrimSpace || c.Match.TrimSpace
	m.Substring = m.Substring || c.Match.Substring
	m.IgnoreCase = m.IgnoreCase || c.Match.IgnoreCase
	return m
}

// TransportOptions returns the settings used to open targets.
func (c *Config) TransportOptions() transport.Options {
	opts := transport.DefaultOptions()
	opts.Baud = c.Baud
	opts.LockDir = c.LockDir
	return opts
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
