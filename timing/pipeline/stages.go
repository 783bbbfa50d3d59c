package pipeline

import (
	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
)

// ExecuteStage performs the EX stage: operand read with forwarding, ALU
// evaluation, address generation and branch resolution.
type ExecuteStage struct {
	regFile    *emu.RegFile
	hazardUnit *HazardUnit
	alu        *emu.ALU
	branchUnit *emu.BranchUnit
	regs       *insts.RegisterSet
}

// NewExecuteStage creates a new execute stage.
func NewExecuteStage(regFile *emu.RegFile, hazardUnit *HazardUnit) *ExecuteStage {
	return &ExecuteStage{
		regFile:    regFile,
		hazardUnit: hazardUnit,
		alu:        emu.NewALU(),
		branchUnit: emu.NewBranchUnit(),
		regs:       regFile.Registers(),
	}
}

// ExecuteResult holds the outcome of the execute stage.
type ExecuteResult struct {
	// Redirect is set when the instruction changes the PC.
	Redirect bool
	// Target is the new PC when Redirect is set.
	Target int
	// Forwards counts operands taken from the MEM slot.
	Forwards int
}

// Execute evaluates the instruction in ex. mem is the instruction that has
// just moved into MEM (nil for a bubble) and is the only forwarding source.
func (s *ExecuteStage) Execute(ex, mem *InFlight) (ExecuteResult, error) {
	var res ExecuteResult

	read := func(reg insts.Reg) (uint16, error) {
		v, src, err := s.hazardUnit.GetForwardedValue(reg, mem, s.regFile)
		if src == ForwardFromMEM {
			res.Forwards++
		}

		return v, err
	}

	inst := ex.Inst
	c := &ex.Computed

	switch inst.Op {
	case insts.OpADD, insts.OpSUB, insts.OpAND, insts.OpOR, insts.OpSLT:
		op1, err := read(inst.Rs)
		if err != nil {
			return res, err
		}

		op2, err := read(inst.Rt)
		if err != nil {
			return res, err
		}

		v, err := s.alu.Compute(inst.Op, op1, op2)
		if err != nil {
			return res, err
		}

		c.setResult(v)

	case insts.OpADDI:
		op1, err := read(inst.Rs)
		if err != nil {
			return res, err
		}

		c.setResult(s.alu.AddImm(op1, inst.Imm))

	case insts.OpLOAD:
		base, err := read(inst.Rs)
		if err != nil {
			return res, err
		}

		c.setEffectiveAddress(s.alu.EffectiveAddress(base, inst.Imm))

	case insts.OpSTORE:
		base, err := read(inst.Rs)
		if err != nil {
			return res, err
		}

		val, err := read(inst.Rd)
		if err != nil {
			return res, err
		}

		c.setEffectiveAddress(s.alu.EffectiveAddress(base, inst.Imm))
		c.setStoreValue(val)

	case insts.OpBEQ, insts.OpBNE:
		op1, err := read(inst.Rs)
		if err != nil {
			return res, err
		}

		op2, err := read(inst.Rd)
		if err != nil {
			return res, err
		}

		res.Target, res.Redirect = s.branchUnit.Redirect(inst, op1, op2)

	case insts.OpJR:
		op1, err := read(inst.Rs)
		if err != nil {
			return res, err
		}

		res.Target, res.Redirect = s.branchUnit.Redirect(inst, op1, 0)

	case insts.OpJ:
		res.Target, res.Redirect = s.branchUnit.Redirect(inst, 0, 0)

	case insts.OpJAL:
		// The link is committed at WB like any other result, so an older
		// in-flight writer of the return register cannot overwrite it.
		c.setResult(s.branchUnit.LinkValue(ex.PC))
		res.Target, res.Redirect = s.branchUnit.Redirect(inst, 0, 0)

	default:
		return res, &emu.ConfigurationError{
			What: "opcode " + inst.Op.String(),
			Err:  emu.ErrUnknownOpcode,
		}
	}

	return res, nil
}

// MemoryStage performs the MEM stage.
type MemoryStage struct {
	lsu *emu.LoadStoreUnit
}

// NewMemoryStage creates a new memory stage.
func NewMemoryStage(lsu *emu.LoadStoreUnit) *MemoryStage {
	return &MemoryStage{lsu: lsu}
}

// Access performs the data memory operation of f. A load fills in the
// result; a load out of range is returned as err. A store out of range is
// dropped and returned as fault.
func (s *MemoryStage) Access(f *InFlight) (fault *emu.RangeError, err error) {
	switch {
	case f.Inst.IsLoad():
		v, err := s.lsu.Load(f.Computed.EffectiveAddress)
		if err != nil {
			return nil, err
		}

		f.Computed.setResult(v)

		return nil, nil

	case f.Inst.IsStore():
		return s.lsu.Store(f.Computed.EffectiveAddress, f.Computed.StoreValue)
	}

	return nil, nil
}

// WritebackStage performs the WB stage.
type WritebackStage struct {
	regFile *emu.RegFile
	regs    *insts.RegisterSet
}

// NewWritebackStage creates a new writeback stage.
func NewWritebackStage(regFile *emu.RegFile) *WritebackStage {
	return &WritebackStage{
		regFile: regFile,
		regs:    regFile.Registers(),
	}
}

// Writeback commits the result of f to its destination register. It returns
// whether a register was written.
func (s *WritebackStage) Writeback(f *InFlight) (bool, error) {
	dest, ok := f.Inst.Dest(s.regs)
	if !ok || !f.Computed.HasResult {
		return false, nil
	}

	if err := s.regFile.WriteReg(dest, uint32(f.Computed.Result)); err != nil {
		return false, err
	}

	return true, nil
}
