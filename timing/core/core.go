// Package core provides the cycle-accurate CPU core model.
// It wraps the pipeline with a program and the fetch driver.
package core

import (
	"github.com/sirupsen/logrus"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/timing/pipeline"
)

// DefaultMaxCycles bounds Run when no limit is configured.
const DefaultMaxCycles = 100000

// ErrMaxCycles is returned by Run when the program does not finish within
// the cycle limit.
var ErrMaxCycles = errors.New("cycle limit exceeded")

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Stalls is the number of stall cycles.
	Stalls uint64
	// Flushes is the number of pipeline flushes.
	Flushes uint64
	// Forwards is the number of forwarded operands.
	Forwards uint64
	// StoreFaults is the number of dropped out-of-range stores.
	StoreFaults uint64
}

// CPI returns the cycles per instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Option configures a Core.
type Option func(*Core)

// WithMaxCycles bounds Run. Zero selects DefaultMaxCycles.
func WithMaxCycles(n uint64) Option {
	return func(c *Core) {
		c.maxCycles = n
	}
}

// WithLogger sets the logger of the core and its pipeline.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Core) {
		c.logger = logger
	}
}

// WithPipelineOptions passes options through to the pipeline.
func WithPipelineOptions(opts ...pipeline.PipelineOption) Option {
	return func(c *Core) {
		c.pipeOpts = append(c.pipeOpts, opts...)
	}
}

// Core represents a cycle-accurate CPU core model.
// Each Tick it refills the fetch slot from the program at the pipeline's PC,
// unless the previous cycle stalled, and steps the pipeline once.
type Core struct {
	// Pipeline is the underlying 5-stage pipeline.
	Pipeline *pipeline.Pipeline

	// Shared resources
	regFile *emu.RegFile
	memory  *emu.Memory

	program   []insts.Instruction
	maxCycles uint64
	logger    logrus.FieldLogger
	pipeOpts  []pipeline.PipelineOption

	stalled bool
}

// NewCore creates a new Core with the given register file and memory.
func NewCore(regFile *emu.RegFile, memory *emu.Memory, opts ...Option) *Core {
	c := &Core{
		regFile:   regFile,
		memory:    memory,
		maxCycles: DefaultMaxCycles,
		logger:    logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxCycles == 0 {
		c.maxCycles = DefaultMaxCycles
	}

	pipeOpts := append([]pipeline.PipelineOption{pipeline.WithLogger(c.logger)}, c.pipeOpts...)
	c.Pipeline = pipeline.NewPipeline(regFile, memory, pipeOpts...)

	return c
}

// RegFile returns the register file.
func (c *Core) RegFile() *emu.RegFile {
	return c.regFile
}

// Memory returns the data memory.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// LoadProgram sets the program to run and restarts fetch at index 0.
func (c *Core) LoadProgram(program []insts.Instruction) {
	c.program = program
	c.Pipeline.Reset()
	c.stalled = false
}

// Program returns the loaded program.
func (c *Core) Program() []insts.Instruction {
	return c.program
}

// SetPC sets the index of the next instruction to fetch.
func (c *Core) SetPC(pc int) {
	c.Pipeline.SetPC(pc)
}

// PC returns the index of the next instruction to fetch.
func (c *Core) PC() int {
	return c.Pipeline.PC()
}

// Halted returns true once fetch has run past the program and every
// instruction in flight has committed. A jump outside the program halts the
// core the same way.
func (c *Core) Halted() bool {
	return !c.inProgram(c.Pipeline.PC()) && c.Pipeline.Drained()
}

// Tick executes one pipeline cycle. It does nothing once the core has halted.
func (c *Core) Tick() error {
	if c.Halted() {
		return nil
	}

	if !c.stalled {
		if pc := c.Pipeline.PC(); c.inProgram(pc) {
			if err := c.Pipeline.Fetch(c.program[pc], pc); err != nil {
				return err
			}
			c.Pipeline.SetPC(pc + 1)
		}
	}

	stalled, err := c.Pipeline.Step()
	if err != nil {
		return err
	}

	c.stalled = stalled

	return nil
}

// Run executes the core until it halts. It fails with ErrMaxCycles if the
// program is still running after the cycle limit.
func (c *Core) Run() error {
	for !c.Halted() {
		if c.Pipeline.Stats().Cycles >= c.maxCycles {
			return errors.Wrap(ErrMaxCycles, "pc %d after %d cycles",
				c.Pipeline.PC(), c.maxCycles)
		}

		if err := c.Tick(); err != nil {
			return err
		}
	}

	stats := c.Stats()
	c.logger.WithFields(logrus.Fields{
		"cycles":       stats.Cycles,
		"instructions": stats.Instructions,
		"stalls":       stats.Stalls,
		"flushes":      stats.Flushes,
	}).Debug("run complete")

	return nil
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) (bool, error) {
	for i := uint64(0); i < cycles; i++ {
		if c.Halted() {
			return false, nil
		}

		if err := c.Tick(); err != nil {
			return false, err
		}
	}

	return !c.Halted(), nil
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	pipeStats := c.Pipeline.Stats()
	return Stats{
		Cycles:       pipeStats.Cycles,
		Instructions: pipeStats.Instructions,
		Stalls:       pipeStats.Stalls,
		Flushes:      pipeStats.Flushes,
		Forwards:     pipeStats.Forwards,
		StoreFaults:  pipeStats.StoreFaults,
	}
}

// Reset clears the pipeline and restores the register file to its presets.
// Memory contents are kept; reset them through Memory() if needed.
func (c *Core) Reset() {
	c.Pipeline.Reset()
	c.regFile.Reset()
	c.stalled = false
}

func (c *Core) inProgram(pc int) bool {
	return pc >= 0 && pc < len(c.program)
}
