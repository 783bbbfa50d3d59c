// Package main provides a profiling wrapper that repeatedly runs a program to
// find performance bottlenecks in the simulator.
package main

import (
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sirupsen/logrus"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/config"
	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/loader"
	"github.com/sarchlab/mipsim/timing/core"
)

func main() {
	app := &cli.Command{
		Name:        "profile",
		Description: "run a program repeatedly under the CPU and heap profilers",
		Action:      profileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("config", "", "JSON or YAML configuration file"),
			cli.NewFlag("timing", true, "run on the pipeline; false runs the emulator"),
			cli.NewFlag("repeat", 1000, "number of runs"),
			cli.NewFlag("cpuprofile", "", "write cpu profile to file"),
			cli.NewFlag("memprofile", "", "write memory profile to file"),
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

type profileOptions struct {
	configPath string
	timing     bool
	repeat     int
}

// result is the outcome of a profiling session.
type result struct {
	Runs         int
	Instructions uint64
	Cycles       uint64
	Elapsed      time.Duration
}

func profileAct(c *cli.Command) error {
	if len(c.Args) != 1 {
		return errors.New("usage: profile [flags] program")
	}

	if path := c.String("cpuprofile"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrap(err, "create cpu profile")
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			return errors.Wrap(err, "start cpu profile")
		}
		defer pprof.StopCPUProfile()
	}

	o := profileOptions{
		configPath: c.String("config"),
		timing:     c.Bool("timing"),
		repeat:     c.Int("repeat"),
	}

	r, err := profile(o, c.Args[0])
	if err != nil {
		return err
	}

	if path := c.String("memprofile"); path != "" {
		if err := writeHeapProfile(path); err != nil {
			return err
		}
	}

	printResult(os.Stdout, c.Args[0], r)

	return nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create memory profile")
	}
	defer func() { _ = f.Close() }()

	if err := pprof.WriteHeapProfile(f); err != nil {
		return errors.Wrap(err, "write memory profile")
	}

	return nil
}

// profile runs the program o.repeat times on one machine, restoring the
// configured register and memory state before every run.
func profile(o profileOptions, path string) (result, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return result{}, err
		}
	}

	regFile, memory, err := cfg.NewMachine()
	if err != nil {
		return result{}, err
	}

	prog, err := loader.Load(path, regFile.Registers())
	if err != nil {
		return result{}, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.ErrorLevel)

	repeat := o.repeat
	if repeat <= 0 {
		repeat = 1
	}

	if o.timing {
		return profileTiming(cfg, regFile, memory, prog, logger, repeat)
	}

	return profileEmulation(cfg, regFile, memory, prog, logger, repeat)
}

func profileTiming(cfg *config.Config, regFile *emu.RegFile, memory *emu.Memory,
	prog *loader.Program, logger logrus.FieldLogger, repeat int,
) (result, error) {
	c := core.NewCore(regFile, memory,
		core.WithMaxCycles(cfg.MaxCycles),
		core.WithLogger(logger))

	r := result{Runs: repeat}
	start := time.Now()

	for i := 0; i < repeat; i++ {
		c.Reset()
		if err := cfg.InitMemory(memory); err != nil {
			return result{}, err
		}
		c.LoadProgram(prog.Instructions)

		if err := c.Run(); err != nil {
			return result{}, errors.Wrap(err, "run %d", i)
		}

		stats := c.Stats()
		r.Instructions += stats.Instructions
		r.Cycles += stats.Cycles
	}

	r.Elapsed = time.Since(start)

	return r, nil
}

func profileEmulation(cfg *config.Config, regFile *emu.RegFile, memory *emu.Memory,
	prog *loader.Program, logger logrus.FieldLogger, repeat int,
) (result, error) {
	e := emu.NewEmulator(
		emu.WithRegFile(regFile),
		emu.WithMemory(memory),
		emu.WithLogger(logger),
		emu.WithMaxInstructions(cfg.MaxCycles),
	)
	e.LoadProgram(prog.Instructions)

	r := result{Runs: repeat}
	start := time.Now()

	for i := 0; i < repeat; i++ {
		e.Reset()
		if err := cfg.InitMemory(memory); err != nil {
			return result{}, err
		}

		if err := e.Run(); err != nil {
			return result{}, errors.Wrap(err, "run %d", i)
		}

		r.Instructions += e.InstructionCount()
	}

	r.Elapsed = time.Since(start)

	return r, nil
}

func printResult(w io.Writer, path string, r result) {
	_, _ = fmt.Fprintf(w, "Profiling Results: %s\n", path)
	_, _ = fmt.Fprintf(w, "Runs: %d\n", r.Runs)
	_, _ = fmt.Fprintf(w, "Instructions executed: %d\n", r.Instructions)
	if r.Cycles > 0 {
		_, _ = fmt.Fprintf(w, "Cycles simulated: %d\n", r.Cycles)
	}
	_, _ = fmt.Fprintf(w, "Elapsed time: %v\n", r.Elapsed)
	if r.Instructions > 0 && r.Elapsed > 0 {
		_, _ = fmt.Fprintf(w, "Instructions/second: %.0f\n", float64(r.Instructions)/r.Elapsed.Seconds())
	}
}
