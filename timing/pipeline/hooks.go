package pipeline

import "github.com/sarchlab/akita/v4/sim"

// Hook positions invoked by the pipeline.
var (
	// HookPosCommit fires when an instruction leaves MEM and commits. Item
	// is the *InFlight.
	HookPosCommit = &sim.HookPos{Name: "Pipeline Commit"}
	// HookPosStall fires on a load-use stall. Item is the held *InFlight in
	// ID.
	HookPosStall = &sim.HookPos{Name: "Pipeline Stall"}
	// HookPosFlush fires on a taken redirect. Item is the redirecting
	// *InFlight and Detail the target PC.
	HookPosFlush = &sim.HookPos{Name: "Pipeline Flush"}
	// HookPosStoreFault fires when a store is dropped for being out of
	// range. Item is the *InFlight and Detail the *emu.RangeError.
	HookPosStoreFault = &sim.HookPos{Name: "Pipeline Store Fault"}
	// HookPosCycleEnd fires at the end of every step. Item is a Snapshot.
	HookPosCycleEnd = &sim.HookPos{Name: "Pipeline Cycle End"}
)

// Snapshot is the state of the pipeline at the end of a cycle.
type Snapshot struct {
	Cycle uint64
	// PC is the index of the next instruction to fetch.
	PC int
	// Fetched is the instruction that sat in IF during the cycle. Slots are
	// taken after the advance, so their IF entry is only occupied when the
	// cycle stalled.
	Fetched *InFlight
	Slots   Slots
	Stalled bool
	Flushed bool
}

// Tracer is a hook that records a Snapshot per cycle.
type Tracer struct {
	snapshots []Snapshot
	limit     int
}

// NewTracer creates a tracer. A positive limit keeps only the most recent
// limit snapshots.
func NewTracer(limit int) *Tracer {
	return &Tracer{limit: limit}
}

// Func implements sim.Hook.
func (t *Tracer) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosCycleEnd {
		return
	}

	snap, ok := ctx.Item.(Snapshot)
	if !ok {
		return
	}

	t.snapshots = append(t.snapshots, snap)
	if t.limit > 0 && len(t.snapshots) > t.limit {
		t.snapshots = t.snapshots[len(t.snapshots)-t.limit:]
	}
}

// Snapshots returns the recorded snapshots, oldest first.
func (t *Tracer) Snapshots() []Snapshot {
	return t.snapshots
}

// Reset discards the recorded snapshots.
func (t *Tracer) Reset() {
	t.snapshots = nil
}
