// Package benchmarks provides the benchmark harness that runs programs on the
// pipeline core and cross-checks them against the reference emulator.
package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/asm"
	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/timing/core"
)

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// SimulatedCycles is the total cycle count from the pipeline
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of committed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// StallCycles is the number of load-use stall cycles
	StallCycles uint64 `json:"stall_cycles"`

	// Forwards is the number of operands forwarded from MEM
	Forwards uint64 `json:"forwards"`

	// PipelineFlushes is the number of taken redirects
	PipelineFlushes uint64 `json:"pipeline_flushes"`

	// StoreFaults is the number of dropped out-of-range stores
	StoreFaults uint64 `json:"store_faults"`

	// EmulatorInstructions is the instruction count of the reference run
	EmulatorInstructions uint64 `json:"emulator_instructions"`

	// Mismatches lists every disagreement between the pipeline, the
	// emulator and the expected values. Empty means the run is correct.
	Mismatches []string `json:"mismatches,omitempty"`

	// WallTime is the actual time taken to run the pipeline
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the run matched the emulator and the expectations.
func (r BenchmarkResult) Passed() bool {
	return len(r.Mismatches) == 0
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Source is the assembly source of the program
	Source string

	// Registers is the register set; nil selects the full set
	Registers *insts.RegisterSet

	// Setup prepares the machine state (e.g., initialize registers, memory)
	Setup func(regFile *emu.RegFile, memory *emu.Memory) error

	// ExpectedRegs are register values the run must end with
	ExpectedRegs map[string]uint16

	// ExpectedMemory are memory words the run must end with
	ExpectedMemory map[int]uint16
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// MemorySize is the data memory size in words
	MemorySize int

	// MaxCycles bounds each pipeline run
	MaxCycles uint64

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives per-benchmark progress
	Logger logrus.FieldLogger

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		MemorySize: emu.DefaultMemorySize,
		MaxCycles:  core.DefaultMaxCycles,
		Output:     os.Stdout,
		Logger:     logrus.StandardLogger(),
		Verbose:    false,
	}
}

// Harness runs benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results. A benchmark that cannot
// be set up or fails fatally aborts the whole run.
func (h *Harness) RunAll() ([]BenchmarkResult, error) {
	results := make([]BenchmarkResult, 0, len(h.benchmarks))

	for _, bench := range h.benchmarks {
		result, err := h.Run(bench)
		if err != nil {
			return results, errors.Wrap(err, "benchmark %s", bench.Name)
		}
		results = append(results, result)
	}

	return results, nil
}

type machine struct {
	regFile *emu.RegFile
	memory  *emu.Memory
}

func (h *Harness) newMachine(bench Benchmark) (machine, error) {
	set := bench.Registers
	if set == nil {
		set = insts.FullRegisters
	}

	m := machine{
		regFile: emu.NewRegFile(set),
		memory:  emu.NewMemory(h.config.MemorySize),
	}

	if bench.Setup != nil {
		if err := bench.Setup(m.regFile, m.memory); err != nil {
			return machine{}, errors.Wrap(err, "setup")
		}
	}

	return m, nil
}

// Run executes a single benchmark on the pipeline and on the emulator, each
// from a fresh machine, and compares their final state.
func (h *Harness) Run(bench Benchmark) (BenchmarkResult, error) {
	set := bench.Registers
	if set == nil {
		set = insts.FullRegisters
	}

	prog, err := asm.Assemble(bench.Source, set)
	if err != nil {
		return BenchmarkResult{}, err
	}

	pipeMachine, err := h.newMachine(bench)
	if err != nil {
		return BenchmarkResult{}, err
	}

	c := core.NewCore(pipeMachine.regFile, pipeMachine.memory,
		core.WithMaxCycles(h.config.MaxCycles),
		core.WithLogger(h.config.Logger))
	c.LoadProgram(prog.Instructions)

	start := time.Now()
	if err := c.Run(); err != nil {
		return BenchmarkResult{}, errors.Wrap(err, "pipeline")
	}
	wallTime := time.Since(start)

	refMachine, err := h.newMachine(bench)
	if err != nil {
		return BenchmarkResult{}, err
	}

	ref := emu.NewEmulator(
		emu.WithRegFile(refMachine.regFile),
		emu.WithMemory(refMachine.memory),
		emu.WithLogger(h.config.Logger),
		emu.WithMaxInstructions(h.config.MaxCycles),
	)
	ref.LoadProgram(prog.Instructions)

	if err := ref.Run(); err != nil {
		return BenchmarkResult{}, errors.Wrap(err, "emulator")
	}

	// Collect statistics
	stats := c.Stats()
	result := BenchmarkResult{
		Name:                 bench.Name,
		Description:          bench.Description,
		SimulatedCycles:      stats.Cycles,
		InstructionsRetired:  stats.Instructions,
		CPI:                  stats.CPI(),
		StallCycles:          stats.Stalls,
		Forwards:             stats.Forwards,
		PipelineFlushes:      stats.Flushes,
		StoreFaults:          stats.StoreFaults,
		EmulatorInstructions: ref.InstructionCount(),
		WallTime:             wallTime,
	}

	result.Mismatches = compare(bench, pipeMachine, refMachine, result)

	h.config.Logger.WithFields(logrus.Fields{
		"benchmark": bench.Name,
		"cycles":    result.SimulatedCycles,
		"cpi":       result.CPI,
		"passed":    result.Passed(),
	}).Debug("benchmark finished")

	return result, nil
}

func compare(bench Benchmark, pipe, ref machine, result BenchmarkResult) []string {
	var out []string

	if result.InstructionsRetired != result.EmulatorInstructions {
		out = append(out, fmt.Sprintf("instructions: pipeline %d, emulator %d",
			result.InstructionsRetired, result.EmulatorInstructions))
	}

	pipeRegs := pipe.regFile.Snapshot()
	refRegs := ref.regFile.Snapshot()

	for _, name := range pipe.regFile.Registers().Names() {
		if pipeRegs[name] != refRegs[name] {
			out = append(out, fmt.Sprintf("%s: pipeline %d, emulator %d",
				name, pipeRegs[name], refRegs[name]))
		}
	}

	pipeMem := pipe.memory.Dump()
	refMem := ref.memory.Dump()

	for addr := range pipeMem {
		if pipeMem[addr] != refMem[addr] {
			out = append(out, fmt.Sprintf("memory[%d]: pipeline %d, emulator %d",
				addr, pipeMem[addr], refMem[addr]))
		}
	}

	for _, name := range sortedKeys(bench.ExpectedRegs) {
		want := bench.ExpectedRegs[name]
		if got, ok := pipeRegs[name]; !ok || got != want {
			out = append(out, fmt.Sprintf("%s: got %d, want %d", name, got, want))
		}
	}

	addrs := make([]int, 0, len(bench.ExpectedMemory))
	for addr := range bench.ExpectedMemory {
		addrs = append(addrs, addr)
	}
	sort.Ints(addrs)

	for _, addr := range addrs {
		want := bench.ExpectedMemory[addr]
		if addr < 0 || addr >= len(pipeMem) {
			out = append(out, fmt.Sprintf("memory[%d]: out of range", addr))
			continue
		}
		if pipeMem[addr] != want {
			out = append(out, fmt.Sprintf("memory[%d]: got %d, want %d", addr, pipeMem[addr], want))
		}
	}

	return out
}

func sortedKeys(m map[string]uint16) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== Pipeline Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
		}

		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s [%s]\n", r.Name, status)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Forwards:             %d\n", r.Forwards)
		_, _ = fmt.Fprintf(h.config.Output, "  Pipeline Flushes:     %d\n", r.PipelineFlushes)
		if r.StoreFaults > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Store Faults:         %d\n", r.StoreFaults)
		}

		for _, m := range r.Mismatches {
			_, _ = fmt.Fprintf(h.config.Output, "  mismatch: %s\n", m)
		}

		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		}
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,stalls,forwards,flushes,store_faults,passed")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%t\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.Forwards,
			r.PipelineFlushes,
			r.StoreFaults,
			r.Passed(),
		)
	}
}

// BenchmarkReport is the JSON document written by PrintJSON.
type BenchmarkReport struct {
	Timestamp string            `json:"timestamp"`
	Results   []BenchmarkResult `json:"results"`
	Summary   ReportSummary     `json:"summary"`
}

// ReportSummary aggregates a run.
type ReportSummary struct {
	TotalBenchmarks   int     `json:"total_benchmarks"`
	Passed            int     `json:"passed"`
	TotalCycles       uint64  `json:"total_cycles"`
	TotalInstructions uint64  `json:"total_instructions"`
	AverageCPI        float64 `json:"average_cpi"`
}

// Summarize aggregates results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}

	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		if r.Passed() {
			s.Passed++
		}
	}

	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}

	return s
}

// PrintJSON outputs the results and their summary as JSON.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	report := BenchmarkReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Results:   results,
		Summary:   Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
