package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/timing/core"
	"github.com/sarchlab/mipsim/timing/pipeline"
)

const (
	defaultWidth = 100

	cycleColumn = 7
	pcColumn    = 5
	noteColumn  = 6

	minCell = 10
	maxCell = 28
)

func traceAct(c *cli.Command) error {
	if len(c.Args) != 1 {
		return errors.New("usage: mipsim trace [flags] program")
	}

	width := c.Int("width")
	if width <= 0 {
		width = terminalWidth()
	}

	return traceProgram(os.Stdout, optionsFrom(c), c.Args[0], c.Int("last"), width)
}

func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultWidth
	}

	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}

	return w
}

// traceProgram runs path with a tracer attached and prints one row per
// cycle. The table is printed even when the run fails.
func traceProgram(w io.Writer, o options, path string, last, width int) error {
	tracer := pipeline.NewTracer(last)

	c, _, err := simulate(o, path,
		core.WithPipelineOptions(pipeline.WithHook(tracer)))
	if c == nil {
		return err
	}

	renderTrace(w, tracer.Snapshots(), c.RegFile().Registers(), width)
	_, _ = fmt.Fprintln(w)
	printStats(w, c.Stats())

	if err != nil {
		return errors.Wrap(err, "trace %v", path)
	}

	return nil
}

func cellWidth(width int) int {
	cell := (width - cycleColumn - pcColumn - noteColumn) / int(pipeline.NumStages)

	switch {
	case cell < minCell:
		return minCell
	case cell > maxCell:
		return maxCell
	}

	return cell
}

func renderTrace(w io.Writer, snaps []pipeline.Snapshot, set *insts.RegisterSet, width int) {
	cell := cellWidth(width)

	var b strings.Builder

	fmt.Fprintf(&b, "%-*s%-*s", cycleColumn, "cycle", pcColumn, "pc")
	for s := pipeline.StageIF; s < pipeline.NumStages; s++ {
		fmt.Fprintf(&b, "%-*s", cell, s)
	}
	b.WriteString("note")
	_, _ = fmt.Fprintln(w, strings.TrimRight(b.String(), " "))

	for _, snap := range snaps {
		b.Reset()

		fmt.Fprintf(&b, "%-*d%-*d", cycleColumn, snap.Cycle, pcColumn, snap.PC)
		fmt.Fprintf(&b, "%-*s", cell, slotText(snap.Fetched, set, cell-1))
		for _, f := range snap.Slots[pipeline.StageID:] {
			fmt.Fprintf(&b, "%-*s", cell, slotText(f, set, cell-1))
		}

		switch {
		case snap.Stalled && snap.Flushed:
			b.WriteString("stall flush")
		case snap.Stalled:
			b.WriteString("stall")
		case snap.Flushed:
			b.WriteString("flush")
		}

		_, _ = fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}

func slotText(f *pipeline.InFlight, set *insts.RegisterSet, limit int) string {
	if f == nil {
		return "-"
	}

	text := fmt.Sprintf("%d:%s", f.PC, f.Inst.Disasm(set))
	if len(text) > limit {
		text = text[:limit]
	}

	return text
}
