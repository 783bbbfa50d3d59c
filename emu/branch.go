package emu

import "github.com/sarchlab/mipsim/insts"

// BranchUnit resolves control-flow instructions to a redirect target.
type BranchUnit struct{}

// NewBranchUnit creates a branch unit.
func NewBranchUnit() *BranchUnit {
	return &BranchUnit{}
}

// Redirect reports whether inst changes the PC and where to. For BEQ/BNE,
// op1 and op2 are the values of Rs and Rd. For JR, op1 is the value of Rs.
// Targets are absolute instruction indices.
func (b *BranchUnit) Redirect(inst insts.Instruction, op1, op2 uint16) (target int, taken bool) {
	switch inst.Op {
	case insts.OpBEQ:
		return int(inst.Imm), op1 == op2
	case insts.OpBNE:
		return int(inst.Imm), op1 != op2
	case insts.OpJ, insts.OpJAL:
		return int(inst.Target), true
	case insts.OpJR:
		return int(op1), true
	default:
		return 0, false
	}
}

// LinkValue returns the return address JAL stores: the index of the
// instruction following the JAL at pc.
func (b *BranchUnit) LinkValue(pc int) uint16 {
	return uint16(pc + 1)
}
