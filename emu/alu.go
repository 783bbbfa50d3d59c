package emu

import (
	"fmt"

	"github.com/sarchlab/mipsim/insts"
)

// ALU implements the arithmetic and logic operations. Operands are 16-bit
// register values and results are truncated to 16 bits, so a forwarded
// result equals the value that is later committed.
type ALU struct{}

// NewALU creates an ALU.
func NewALU() *ALU {
	return &ALU{}
}

// Compute evaluates a register-format ALU operation: ADD, SUB, AND, OR or
// SLT. SLT compares the operands as unsigned 16-bit values and yields 1 or 0.
func (a *ALU) Compute(op insts.Op, op1, op2 uint16) (uint16, error) {
	switch op {
	case insts.OpADD:
		return op1 + op2, nil
	case insts.OpSUB:
		return op1 - op2, nil
	case insts.OpAND:
		return op1 & op2, nil
	case insts.OpOR:
		return op1 | op2, nil
	case insts.OpSLT:
		if op1 < op2 {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, unknownOpcode(op)
	}
}

// AddImm computes rs + imm for ADDI.
func (a *ALU) AddImm(op1 uint16, imm int32) uint16 {
	return uint16(int32(op1) + imm)
}

// EffectiveAddress computes base + imm for LOAD and STORE. The result is not
// truncated, so a negative or oversized address reaches the memory range
// check.
func (a *ALU) EffectiveAddress(base uint16, imm int32) int {
	return int(base) + int(imm)
}

func unknownOpcode(op insts.Op) error {
	return &ConfigurationError{What: fmt.Sprintf("opcode %v", op), Err: ErrUnknownOpcode}
}
