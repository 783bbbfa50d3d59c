// Command mipsim assembles and runs 16-bit MIPS-like programs on a 5-stage
// pipeline model.
//
// Usage:
//
//	mipsim run [-config f] [-regs full|reduced] [-data f] [-v] program.s
//	mipsim trace [-last n] [-width n] program.s
//	mipsim hex program.s [out.hex]
//	mipsim disasm program.hex
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/config"
	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/loader"
	"github.com/sarchlab/mipsim/timing/core"
)

func main() {
	runCmd := &cli.Command{
		Name:        "run",
		Description: "run a program on the pipeline and print registers and statistics",
		Action:      runAct,
		Args:        cli.Args{},
		Flags:       machineFlags(),
	}

	traceCmd := &cli.Command{
		Name:        "trace",
		Description: "run a program and print the pipeline contents of every cycle",
		Action:      traceAct,
		Args:        cli.Args{},
		Flags: append(machineFlags(),
			cli.NewFlag("last", 0, "only print the last n cycles"),
			cli.NewFlag("width", 0, "table width, defaults to the terminal width"),
		),
	}

	hexCmd := &cli.Command{
		Name:        "hex",
		Description: "export a program as a hex image",
		Action:      hexAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("regs", "full", "register set: full or reduced"),
			cli.NewFlag("capacity", loader.DefaultCapacity, "image size in words"),
		},
	}

	disasmCmd := &cli.Command{
		Name:        "disasm",
		Description: "disassemble a hex image or assembly file",
		Action:      disasmAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("regs", "full", "register set: full or reduced"),
		},
	}

	app := &cli.Command{
		Name:        "mipsim",
		Description: "mipsim is a cycle-level simulator of a 5-stage 16-bit pipeline",
		Commands: []*cli.Command{
			runCmd,
			traceCmd,
			hexCmd,
			disasmCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func machineFlags() []*cli.Flag {
	return []*cli.Flag{
		cli.NewFlag("config", "", "JSON or YAML configuration file"),
		cli.NewFlag("regs", "", "register set: full or reduced"),
		cli.NewFlag("data", "", "data memory image loaded at address 0"),
		cli.NewFlag("max-cycles", 0, "cycle limit, 0 keeps the configured one"),
		cli.NewFlag("v", false, "verbose logging"),
	}
}

// options are the machine flags shared by run and trace.
type options struct {
	configPath string
	regs       string
	data       string
	maxCycles  int
	verbose    bool
}

func optionsFrom(c *cli.Command) options {
	return options{
		configPath: c.String("config"),
		regs:       c.String("regs"),
		data:       c.String("data"),
		maxCycles:  c.Int("max-cycles"),
		verbose:    c.Bool("v"),
	}
}

// config loads the configuration file, if any, and applies flag overrides.
func (o options) config() (*config.Config, error) {
	cfg := config.Default()

	if o.configPath != "" {
		var err error
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	if o.regs != "" {
		cfg.RegisterSet = o.regs
	}
	if o.data != "" {
		cfg.DataFile = o.data
	}
	if o.maxCycles > 0 {
		cfg.MaxCycles = uint64(o.maxCycles)
	}
	if o.verbose {
		cfg.LogLevel = logrus.DebugLevel.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (*logrus.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)

	return logger, nil
}

// simulate loads path onto a configured machine and runs it to completion.
// The core is returned together with any run error so callers can still
// report the state reached.
func simulate(o options, path string, opts ...core.Option) (*core.Core, *loader.Program, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	regFile, memory, err := cfg.NewMachine()
	if err != nil {
		return nil, nil, err
	}

	prog, err := loader.Load(path, regFile.Registers())
	if err != nil {
		return nil, nil, err
	}

	opts = append([]core.Option{
		core.WithMaxCycles(cfg.MaxCycles),
		core.WithLogger(logger),
	}, opts...)

	c := core.NewCore(regFile, memory, opts...)
	c.LoadProgram(prog.Instructions)

	logger.WithFields(logrus.Fields{
		"program":      path,
		"instructions": len(prog.Instructions),
		"registers":    regFile.Registers().Name(),
	}).Debug("program loaded")

	return c, prog, c.Run()
}

func runAct(c *cli.Command) error {
	if len(c.Args) != 1 {
		return errors.New("usage: mipsim run [flags] program")
	}

	return runProgram(os.Stdout, optionsFrom(c), c.Args[0])
}

func runProgram(w io.Writer, o options, path string) error {
	c, _, err := simulate(o, path)
	if c == nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Program: %s\n\n", path)
	printRegisters(w, c.RegFile())
	_, _ = fmt.Fprintln(w)
	printStats(w, c.Stats())

	if err != nil {
		return errors.Wrap(err, "run %v", path)
	}

	return nil
}

func printRegisters(w io.Writer, regFile *emu.RegFile) {
	const perRow = 4

	values := regFile.Snapshot()
	names := regFile.Registers().Names()

	for i, name := range names {
		_, _ = fmt.Fprintf(w, "%-6s %5d (0x%04X)", name, values[name], values[name])

		if (i+1)%perRow == 0 || i == len(names)-1 {
			_, _ = fmt.Fprintln(w)
		} else {
			_, _ = fmt.Fprint(w, "   ")
		}
	}
}

func printStats(w io.Writer, stats core.Stats) {
	_, _ = fmt.Fprintf(w, "Cycles:       %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(w, "Instructions: %d\n", stats.Instructions)
	_, _ = fmt.Fprintf(w, "CPI:          %.3f\n", stats.CPI())
	_, _ = fmt.Fprintf(w, "Stalls:       %d\n", stats.Stalls)
	_, _ = fmt.Fprintf(w, "Flushes:      %d\n", stats.Flushes)
	_, _ = fmt.Fprintf(w, "Forwards:     %d\n", stats.Forwards)

	if stats.StoreFaults > 0 {
		_, _ = fmt.Fprintf(w, "Store faults: %d\n", stats.StoreFaults)
	}
}

func hexAct(c *cli.Command) error {
	if len(c.Args) < 1 || len(c.Args) > 2 {
		return errors.New("usage: mipsim hex [flags] program [out]")
	}

	set, err := insts.LookupRegisterSet(c.String("regs"))
	if err != nil {
		return err
	}

	if len(c.Args) == 1 {
		return exportHex(os.Stdout, c.Args[0], set, c.Int("capacity"))
	}

	f, err := os.Create(c.Args[1])
	if err != nil {
		return errors.Wrap(err, "create %v", c.Args[1])
	}

	err = exportHex(f, c.Args[0], set, c.Int("capacity"))
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close %v", c.Args[1])
	}

	return err
}

func exportHex(w io.Writer, path string, set *insts.RegisterSet, capacity int) error {
	prog, err := loader.Load(path, set)
	if err != nil {
		return err
	}

	return loader.WriteHex(w, prog.Instructions, capacity)
}

func disasmAct(c *cli.Command) error {
	if len(c.Args) != 1 {
		return errors.New("usage: mipsim disasm [flags] program")
	}

	set, err := insts.LookupRegisterSet(c.String("regs"))
	if err != nil {
		return err
	}

	return disassemble(os.Stdout, c.Args[0], set)
}

func disassemble(w io.Writer, path string, set *insts.RegisterSet) error {
	prog, err := loader.Load(path, set)
	if err != nil {
		return err
	}

	for pc, inst := range prog.Instructions {
		for _, label := range prog.LabelAt(pc) {
			_, _ = fmt.Fprintf(w, "%s:\n", label)
		}

		word, err := insts.Encode(inst)
		if err != nil {
			return errors.Wrap(err, "instruction %d", pc)
		}

		_, _ = fmt.Fprintf(w, "%4d  %08x  %s\n", pc, word, inst.Disasm(set))
	}

	return nil
}
