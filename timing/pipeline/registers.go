// Package pipeline provides the 5-stage pipeline engine.
package pipeline

import "github.com/sarchlab/mipsim/insts"

// Stage identifies a pipeline stage.
type Stage int

// Pipeline stages in program order.
const (
	StageIF Stage = iota
	StageID
	StageEX
	StageMEM
	StageWB

	NumStages
)

var stageNames = [NumStages]string{"IF", "ID", "EX", "MEM", "WB"}

func (s Stage) String() string {
	if s >= 0 && s < NumStages {
		return stageNames[s]
	}

	return "?"
}

// Computed holds the values an instruction accumulates in flight. Each is
// set once, by the stage that owns it: Result at EX (or MEM for loads),
// EffectiveAddress and StoreValue at EX.
type Computed struct {
	Result           uint16
	EffectiveAddress int
	StoreValue       uint16

	HasResult           bool
	HasEffectiveAddress bool
	HasStoreValue       bool
}

func (c *Computed) setResult(v uint16) {
	c.Result = v
	c.HasResult = true
}

func (c *Computed) setEffectiveAddress(addr int) {
	c.EffectiveAddress = addr
	c.HasEffectiveAddress = true
}

func (c *Computed) setStoreValue(v uint16) {
	c.StoreValue = v
	c.HasStoreValue = true
}

// InFlight is an instruction occupying a pipeline slot. It is a copy of the
// program's instruction template, so the template is never mutated and the
// same instruction can be in flight more than once.
type InFlight struct {
	// PC is the instruction index the instruction was fetched from.
	PC int

	Inst     insts.Instruction
	Computed Computed
}

// NewInFlight creates an in-flight copy of inst fetched from pc.
func NewInFlight(inst insts.Instruction, pc int) *InFlight {
	return &InFlight{PC: pc, Inst: inst}
}

// Clone returns a copy of the in-flight record. Nil stays nil.
func (f *InFlight) Clone() *InFlight {
	if f == nil {
		return nil
	}

	c := *f

	return &c
}

// Slots is a view of the five stage slots. A nil entry is an empty slot.
type Slots [NumStages]*InFlight

// Clone deep-copies the slots.
func (s Slots) Clone() Slots {
	var out Slots
	for i, f := range s {
		out[i] = f.Clone()
	}

	return out
}
