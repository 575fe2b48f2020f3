package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the content of consteval.yaml.
//
// Example:
//
//	max_instructions: 500000
//	timeout_grace: 1000
//	max_proxy_depth: 32
//	trace: false
//	log_level: warn
type Config struct {
	// MaxInstructions is the instruction budget of one top-level evaluation.
	MaxInstructions int `yaml:"max_instructions,omitempty"`

	// TimeoutGrace is the number of instructions allowed after the timeout
	// exception has been raised into the interpreted program.
	TimeoutGrace int `yaml:"timeout_grace,omitempty"`

	// MaxProxyDepth bounds nested evaluations on fresh call stacks.
	MaxProxyDepth int `yaml:"max_proxy_depth,omitempty"`

	// Trace logs every instruction. It forces log_level to trace.
	Trace bool `yaml:"trace,omitempty"`

	// LogLevel is one of trace, debug, info, warn, error. Defaults to warn.
	LogLevel string `yaml:"log_level,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a consteval.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses consteval.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for consteval.yaml starting from dir and walking up
// to parent directories. It returns an empty path and nil error if none is found.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.MaxInstructions < 0 {
		return fmt.Errorf("%s: max_instructions must not be negative, got %d", path, c.MaxInstructions)
	}
	if c.TimeoutGrace < 0 {
		return fmt.Errorf("%s: timeout_grace must not be negative, got %d", path, c.TimeoutGrace)
	}
	if c.MaxProxyDepth < 0 {
		return fmt.Errorf("%s: max_proxy_depth must not be negative, got %d", path, c.MaxProxyDepth)
	}
	switch c.LogLevel {
	case "", LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("%s: unknown log_level %q", path, c.LogLevel)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.MaxInstructions == 0 {
		c.MaxInstructions = DefaultMaxInstructions
	}
	if c.TimeoutGrace == 0 {
		c.TimeoutGrace = DefaultTimeoutGrace
	}
	if c.MaxProxyDepth == 0 {
		c.MaxProxyDepth = DefaultMaxProxyDepth
	}
	if c.Trace {
		c.LogLevel = LogLevelTrace
	}
	if c.LogLevel == "" {
		c.LogLevel = LogLevelWarn
	}
}
