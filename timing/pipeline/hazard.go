package pipeline

import (
	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
)

// ForwardSource indicates where an operand value came from.
type ForwardSource int

const (
	// ForwardNone means the value was read from the register file.
	ForwardNone ForwardSource = iota
	// ForwardFromMEM means the value was taken from the instruction in MEM.
	ForwardFromMEM
)

// HazardUnit detects load-use hazards and resolves operand forwarding.
type HazardUnit struct {
	regs *insts.RegisterSet
}

// NewHazardUnit creates a hazard unit for the given register set.
func NewHazardUnit(set *insts.RegisterSet) *HazardUnit {
	return &HazardUnit{regs: set}
}

// DetectLoadUseHazard reports whether the instruction in ID reads the
// destination of a load in EX. The loaded value is not available to ID's
// execute in the next cycle, so the pipeline must stall for one cycle.
//
// STORE reads its value and base registers. Every other instruction reads
// its source fields. The zero register never causes a hazard.
func (h *HazardUnit) DetectLoadUseHazard(ex, id *InFlight) bool {
	if ex == nil || id == nil || !ex.Inst.IsLoad() {
		return false
	}

	loadRd, ok := ex.Inst.Dest(h.regs)
	if !ok || loadRd == insts.RegZero {
		return false
	}

	for _, src := range id.Inst.Sources() {
		if src == loadRd {
			return true
		}
	}

	return false
}

// DetectForwarding reports whether reg should be taken from the instruction
// in MEM: that instruction writes reg back and has its result.
func (h *HazardUnit) DetectForwarding(reg insts.Reg, mem *InFlight) ForwardSource {
	if reg == insts.RegZero || reg == insts.RegNone || mem == nil {
		return ForwardNone
	}

	dest, ok := mem.Inst.Dest(h.regs)
	if ok && dest == reg && mem.Computed.HasResult {
		return ForwardFromMEM
	}

	return ForwardNone
}

// GetForwardedValue reads reg for an instruction in EX. The MEM slot's
// in-flight result wins over the register file; any older writer has already
// committed this cycle.
func (h *HazardUnit) GetForwardedValue(
	reg insts.Reg,
	mem *InFlight,
	regFile *emu.RegFile,
) (uint16, ForwardSource, error) {
	if reg == insts.RegNone {
		return 0, ForwardNone, nil
	}

	if h.DetectForwarding(reg, mem) == ForwardFromMEM {
		return mem.Computed.Result, ForwardFromMEM, nil
	}

	v, err := regFile.ReadReg(reg)

	return v, ForwardNone, err
}
