// Package config provides the settings shared by the asmvm tools.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"asmvm/pkg/cpu"
)

// Config is read from a YAML file. Fields left out of the file keep their
// defaults.
type Config struct {
	// MemorySize is the VM memory in bytes.
	MemorySize int `yaml:"memory_size"`
	// MaxSteps caps execution; zero means no cap.
	MaxSteps int64 `yaml:"max_steps"`
	// Trace logs every executed instruction.
	Trace bool `yaml:"trace"`
	// CoreDump is where a snapshot is written when a program faults. Empty
	// disables core dumps.
	CoreDump string `yaml:"core_dump"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		MemorySize: cpu.DefaultMemorySize,
		LogLevel:   "warn",
	}
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to io.EOF and leaves the defaults.
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Load reads path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "Load")
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.MemorySize <= 0 {
		return errors.Errorf("memory_size must be positive, got %d", c.MemorySize)
	}
	if c.MaxSteps < 0 {
		return errors.Errorf("max_steps must not be negative, got %d", c.MaxSteps)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level is the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel accepts the slog level names plus "trace", which maps to
// cpu.LevelTrace.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return cpu.LevelTrace, nil
	case "":
		return slog.LevelWarn, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Errorf("unknown log level %q", s)
	}
	return l, nil
}
