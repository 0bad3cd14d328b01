// Package config loads ralph-ra settings from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/xyproto/env/v2"

	"github.com/raymyers/ralph-ra/pkg/regalloc"
	"github.com/raymyers/ralph-ra/pkg/x86"
)

// Names of the environment variables consulted by FromEnv
const (
	EnvConfig    = "RALPH_RA_CONFIG"
	EnvHeuristic = "RALPH_RA_HEURISTIC"
	EnvVerbose   = "RALPH_RA_VERBOSE"
)

// DefaultFileName is looked up in the working directory when no config
// path is given
const DefaultFileName = "ralph-ra.toml"

// Config holds every tunable of a run
type Config struct {
	Alloc   AllocConfig `toml:"alloc"`
	Emit    EmitConfig  `toml:"emit"`
	Verbose bool        `toml:"verbose"`
}

// AllocConfig describes the machine model and the coloring heuristic
type AllocConfig struct {
	Heuristic   string   `toml:"heuristic"`
	Allocatable []string `toml:"allocatable"`
	Reserved    []string `toml:"reserved"`
	// MaxColors bounds the color space; 0 means unbounded
	MaxColors  int  `toml:"max_colors"`
	ElideMoves bool `toml:"elide_moves"`
}

// EmitConfig controls the assembly printer
type EmitConfig struct {
	Entry       string `toml:"entry"`
	PrintResult bool   `toml:"print_result"`
	ResultFunc  string `toml:"result_func"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Alloc: AllocConfig{
			Heuristic:   regalloc.HeuristicDegree.String(),
			Allocatable: []string{"rbx"},
			Reserved:    []string{"rax"},
		},
		Emit: EmitConfig{
			PrintResult: true,
			ResultFunc:  "print_int",
		},
	}
}

// Load reads a TOML file on top of the defaults
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Resolve finds the configuration for a run: an explicit path wins, then
// $RALPH_RA_CONFIG, then ralph-ra.toml in the working directory, then the
// defaults. Environment overrides are applied last.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = env.Str(EnvConfig)
	}
	var cfg *Config
	switch {
	case path != "":
		c, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		c, err := Load(DefaultFileName)
		switch {
		case err == nil:
			cfg = c
		case errors.Is(err, os.ErrNotExist):
			cfg = Default()
		default:
			return nil, err
		}
	}
	cfg.FromEnv()
	return cfg, nil
}

// FromEnv applies environment overrides
func (c *Config) FromEnv() {
	c.Alloc.Heuristic = env.Str(EnvHeuristic, c.Alloc.Heuristic)
	if env.Str(EnvVerbose) != "" {
		c.Verbose = env.Bool(EnvVerbose)
	}
}

// Machine builds the allocator's machine model
func (c *Config) Machine() (regalloc.Machine, error) {
	m := regalloc.DefaultMachine()
	allocatable, err := parseRegs(c.Alloc.Allocatable)
	if err != nil {
		return m, fmt.Errorf("alloc.allocatable: %w", err)
	}
	reserved, err := parseRegs(c.Alloc.Reserved)
	if err != nil {
		return m, fmt.Errorf("alloc.reserved: %w", err)
	}
	if len(allocatable) > 0 {
		m.Allocatable = allocatable
	}
	m.Reserved = reserved
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}

// Options converts the configuration into allocator options
func (c *Config) Options() ([]regalloc.Option, error) {
	m, err := c.Machine()
	if err != nil {
		return nil, err
	}
	h, err := regalloc.ParseHeuristic(c.Alloc.Heuristic)
	if err != nil {
		return nil, err
	}
	return []regalloc.Option{
		regalloc.WithMachine(m),
		regalloc.WithHeuristic(h),
		regalloc.WithMaxColors(c.Alloc.MaxColors),
	}, nil
}

func parseRegs(names []string) ([]x86.MReg, error) {
	regs := make([]x86.MReg, 0, len(names))
	for _, n := range names {
		if len(n) > 0 && n[0] == '%' {
			n = n[1:]
		}
		r, ok := x86.LookupReg(n)
		if !ok {
			return nil, fmt.Errorf("unknown register %q", n)
		}
		regs = append(regs, r)
	}
	return regs, nil
}
