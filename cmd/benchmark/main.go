// Command benchmark runs the pipeline benchmark harness.
//
// Usage:
//
//	benchmark [flags] [name...]
//
// Flags:
//
//	-csv   Output results in CSV format (default: human-readable)
//	-json  Output results and a summary as JSON
//	-core  Run only the core benchmark set
//	-v     Verbose output
//
// Example:
//
//	# Run all benchmarks with human-readable output
//	go run ./cmd/benchmark
//
//	# Output CSV for spreadsheet comparison
//	go run ./cmd/benchmark -csv > results.csv
//
// Every benchmark runs on the pipeline and on the reference emulator; the
// command fails if any of them disagree.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/benchmarks"
)

func main() {
	app := &cli.Command{
		Name:        "benchmark",
		Description: "run the pipeline benchmarks and cross-check them against the emulator",
		Action:      benchmarkAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("csv", false, "output results in CSV format"),
			cli.NewFlag("json", false, "output results as JSON"),
			cli.NewFlag("core", false, "run only the core benchmark set"),
			cli.NewFlag("v", false, "verbose output"),
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

type format int

const (
	formatText format = iota
	formatCSV
	formatJSON
)

func benchmarkAct(c *cli.Command) error {
	f := formatText
	switch {
	case c.Bool("csv") && c.Bool("json"):
		return errors.New("-csv and -json are exclusive")
	case c.Bool("csv"):
		f = formatCSV
	case c.Bool("json"):
		f = formatJSON
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if c.Bool("v") {
		logger.SetLevel(logrus.DebugLevel)
	}

	set, err := selectBenchmarks(c.Bool("core"), c.Args)
	if err != nil {
		return err
	}

	config := benchmarks.DefaultConfig()
	config.Output = os.Stdout
	config.Logger = logger
	config.Verbose = c.Bool("v")

	return run(config, set, f)
}

func selectBenchmarks(core bool, names []string) ([]benchmarks.Benchmark, error) {
	if len(names) == 0 {
		if core {
			return benchmarks.GetCoreBenchmarks(), nil
		}
		return benchmarks.GetMicrobenchmarks(), nil
	}

	out := make([]benchmarks.Benchmark, 0, len(names))
	for _, name := range names {
		b, ok := benchmarks.Lookup(name)
		if !ok {
			return nil, errors.New("unknown benchmark %q", name)
		}
		out = append(out, b)
	}

	return out, nil
}

func run(config benchmarks.HarnessConfig, set []benchmarks.Benchmark, f format) error {
	harness := benchmarks.NewHarness(config)
	harness.AddBenchmarks(set)

	if f == formatText {
		printHeader(config.Output, len(set))
	}

	results, err := harness.RunAll()
	if err != nil {
		return err
	}

	switch f {
	case formatCSV:
		harness.PrintCSV(results)
	case formatJSON:
		if err := harness.PrintJSON(results); err != nil {
			return err
		}
	default:
		harness.PrintResults(results)
		printSummary(config.Output, benchmarks.Summarize(results))
	}

	if s := benchmarks.Summarize(results); s.Passed != s.TotalBenchmarks {
		return errors.New("%d of %d benchmarks failed", s.TotalBenchmarks-s.Passed, s.TotalBenchmarks)
	}

	return nil
}

func printHeader(w io.Writer, n int) {
	_, _ = fmt.Fprintln(w, "Pipeline Benchmark Harness")
	_, _ = fmt.Fprintln(w, "==========================")
	_, _ = fmt.Fprintf(w, "Benchmarks: %d\n", n)
	_, _ = fmt.Fprintln(w, "")
}

func printSummary(w io.Writer, s benchmarks.ReportSummary) {
	_, _ = fmt.Fprintln(w, "=== Summary ===")
	_, _ = fmt.Fprintf(w, "Passed:       %d/%d\n", s.Passed, s.TotalBenchmarks)
	_, _ = fmt.Fprintf(w, "Cycles:       %d\n", s.TotalCycles)
	_, _ = fmt.Fprintf(w, "Instructions: %d\n", s.TotalInstructions)
	_, _ = fmt.Fprintf(w, "Average CPI:  %.3f\n", s.AverageCPI)
}
