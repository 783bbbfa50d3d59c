// Package config provides configuration for the simulated machine.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/loader"
	"github.com/sarchlab/mipsim/timing/core"
)

// Memory initialization modes.
const (
	// MemoryInitZero clears every word.
	MemoryInitZero = "zero"
	// MemoryInitIdentity sets memory[i] = i.
	MemoryInitIdentity = "identity"
)

// Config holds the parameters of a simulation run.
// Values can be loaded from a JSON or YAML file to override defaults.
type Config struct {
	// RegisterSet is "full" (32 registers) or "reduced" (8 registers).
	RegisterSet string `json:"register_set" yaml:"register_set"`

	// MemorySize is the number of 16-bit words of data memory.
	MemorySize int `json:"memory_size" yaml:"memory_size"`

	// MemoryInit is "zero" or "identity".
	MemoryInit string `json:"memory_init" yaml:"memory_init"`

	// DataFile is an optional data memory image loaded at address 0 after
	// MemoryInit is applied.
	DataFile string `json:"data_file,omitempty" yaml:"data_file,omitempty"`

	// MaxCycles bounds a pipeline run.
	MaxCycles uint64 `json:"max_cycles" yaml:"max_cycles"`

	// Presets overrides the reset value of registers by name.
	Presets map[string]uint16 `json:"presets,omitempty" yaml:"presets,omitempty"`

	// LogLevel is a logrus level name.
	LogLevel string `json:"log_level" yaml:"log_level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		RegisterSet: "full",
		MemorySize:  emu.DefaultMemorySize,
		MemoryInit:  MemoryInitZero,
		MaxCycles:   core.DefaultMaxCycles,
		LogLevel:    "warn",
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a configuration file. Missing fields keep their defaults.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	c := Default()

	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}

	if err != nil {
		return nil, errors.Wrap(err, "parse config %s", path)
	}

	return c, nil
}

// Save writes the configuration to path, as YAML or JSON by extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)

	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return errors.Wrap(err, "serialize config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "write config file")
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	set, err := insts.LookupRegisterSet(c.RegisterSet)
	if err != nil {
		return err
	}
	if c.MemorySize <= 0 {
		return errors.New("memory_size must be > 0")
	}
	if c.MemoryInit != MemoryInitZero && c.MemoryInit != MemoryInitIdentity {
		return errors.New("memory_init must be %q or %q", MemoryInitZero, MemoryInitIdentity)
	}
	if c.MaxCycles == 0 {
		return errors.New("max_cycles must be > 0")
	}
	for name := range c.Presets {
		if _, err := set.Lookup(name); err != nil {
			return errors.Wrap(err, "presets")
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	if c.Presets != nil {
		clone.Presets = make(map[string]uint16, len(c.Presets))
		for k, v := range c.Presets {
			clone.Presets[k] = v
		}
	}

	return &clone
}

// Registers returns the configured register set.
func (c *Config) Registers() (*insts.RegisterSet, error) {
	return insts.LookupRegisterSet(c.RegisterSet)
}

// Level returns the configured log level.
func (c *Config) Level() (logrus.Level, error) {
	return logrus.ParseLevel(c.LogLevel)
}

// NewMachine builds a register file and data memory as configured. Presets
// are applied on top of the register set's own.
func (c *Config) NewMachine() (*emu.RegFile, *emu.Memory, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	set, err := c.Registers()
	if err != nil {
		return nil, nil, err
	}

	regFile := emu.NewRegFile(set)
	for name, v := range c.Presets {
		reg, err := set.Lookup(name)
		if err != nil {
			return nil, nil, err
		}
		if err := regFile.SetPreset(reg, v); err != nil {
			return nil, nil, err
		}
	}
	regFile.Reset()

	memory := emu.NewMemory(c.MemorySize)
	if err := c.InitMemory(memory); err != nil {
		return nil, nil, err
	}

	return regFile, memory, nil
}

// InitMemory fills memory according to MemoryInit and DataFile.
func (c *Config) InitMemory(memory *emu.Memory) error {
	memory.Reset()

	if c.MemoryInit == MemoryInitIdentity {
		words := make([]uint16, memory.Size())
		for i := range words {
			words[i] = uint16(i)
		}
		if err := memory.LoadWords(0, words); err != nil {
			return err
		}
	}

	if c.DataFile == "" {
		return nil
	}

	words, err := loader.LoadData(c.DataFile)
	if err != nil {
		return err
	}

	if err := memory.LoadWords(0, words); err != nil {
		return errors.Wrap(err, "data file %s", c.DataFile)
	}

	return nil
}
