// Package config handles pmeval.toml (or pmeval.yaml) runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/chazu/pmeval/vm"
)

// FileNames are the configuration files FindAndLoad looks for, in order.
var FileNames = []string{"pmeval.toml", "pmeval.yaml", "pmeval.yml"}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents a pmeval configuration file.
type Config struct {
	Evaluation Evaluation `toml:"evaluation" yaml:"evaluation"`
	Dispatch   Dispatch   `toml:"dispatch" yaml:"dispatch"`
	Log        Log        `toml:"log" yaml:"log"`
	Store      Store      `toml:"store" yaml:"store"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Evaluation configures the evaluator. A zero MessageLogSize keeps every
// message.
type Evaluation struct {
	MaxRecursion    int `toml:"max_recursion" yaml:"max_recursion"`
	FlattenMaxDepth int `toml:"flatten_max_depth" yaml:"flatten_max_depth"`
	MessageLogSize  int `toml:"message_log_size" yaml:"message_log_size"`
}

// Dispatch configures the dispatch table cache. A zero SweepInterval
// disables the periodic limbo sweeper.
type Dispatch struct {
	LimboSize     int           `toml:"limbo_size" yaml:"limbo_size"`
	SweepInterval time.Duration `toml:"sweep_interval" yaml:"sweep_interval"`
	MaxRules      int           `toml:"max_rules" yaml:"max_rules"`
}

// Log configures commonlog. Verbosity 0 keeps only errors and warnings.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	File      string `toml:"file" yaml:"file"`
}

// Store configures the definition database. An empty Path disables it.
type Store struct {
	Path string `toml:"path" yaml:"path"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	d := vm.DefaultOptions()
	return &Config{
		Evaluation: Evaluation{
			MaxRecursion:    d.MaxRecursion,
			FlattenMaxDepth: d.FlattenMaxDepth,
			MessageLogSize:  d.MessageLogSize,
		},
		Dispatch: Dispatch{
			LimboSize:     d.LimboSize,
			SweepInterval: d.SweepInterval,
			MaxRules:      d.MaxRules,
		},
	}
}

// Load parses the configuration file at path. The format follows the
// extension: .yaml and .yml are YAML, anything else TOML. Keys missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = toml.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if c.Store.Path != "" && !filepath.IsAbs(c.Store.Path) {
		c.Store.Path = filepath.Join(filepath.Dir(c.Path), c.Store.Path)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a configuration file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate rejects limits the runtime cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Evaluation.MaxRecursion <= 0:
		return fmt.Errorf("%w: evaluation.max_recursion must be positive, got %d", ErrInvalid, c.Evaluation.MaxRecursion)
	case c.Evaluation.FlattenMaxDepth <= 0:
		return fmt.Errorf("%w: evaluation.flatten_max_depth must be positive, got %d", ErrInvalid, c.Evaluation.FlattenMaxDepth)
	case c.Evaluation.MessageLogSize < 0:
		return fmt.Errorf("%w: evaluation.message_log_size must not be negative", ErrInvalid)
	case c.Dispatch.LimboSize < 0:
		return fmt.Errorf("%w: dispatch.limbo_size must not be negative", ErrInvalid)
	case c.Dispatch.SweepInterval < 0:
		return fmt.Errorf("%w: dispatch.sweep_interval must not be negative", ErrInvalid)
	case c.Dispatch.MaxRules <= 0:
		return fmt.Errorf("%w: dispatch.max_rules must be positive, got %d", ErrInvalid, c.Dispatch.MaxRules)
	case c.Log.Verbosity < -4 || c.Log.Verbosity > 4:
		return fmt.Errorf("%w: log.verbosity out of range, got %d", ErrInvalid, c.Log.Verbosity)
	}
	return nil
}

// Options converts the configuration to runtime options.
func (c *Config) Options() vm.Options {
	opts := vm.Options{
		MaxRecursion:    c.Evaluation.MaxRecursion,
		FlattenMaxDepth: c.Evaluation.FlattenMaxDepth,
		LimboSize:       c.Dispatch.LimboSize,
		SweepInterval:   c.Dispatch.SweepInterval,
		MaxRules:        c.Dispatch.MaxRules,
		MessageLogSize:  c.Evaluation.MessageLogSize,
	}
	// zero means "default" to vm.Options
	if opts.LimboSize == 0 {
		opts.LimboSize = -1
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = -1
	}
	if opts.MessageLogSize == 0 {
		opts.MessageLogSize = -1
	}
	return opts
}
