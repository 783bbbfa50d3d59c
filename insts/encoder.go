package insts

import "tlog.app/go/errors"

// Encode returns the 32-bit binary encoding of inst. Unused register fields
// encode as 0, immediates are masked to 16 bits and jump targets to 26 bits.
func Encode(inst Instruction) (uint32, error) {
	switch inst.Format() {
	case FormatR:
		return encodeR(inst)
	case FormatI:
		return encodeI(inst)
	case FormatJ:
		return encodeJ(inst), nil
	default:
		return 0, errors.Wrap(ErrUnknownEncoding, "encode %v", inst.Op)
	}
}

// MustEncode is like Encode but panics on error. It is intended for
// programs built in code from known-good instructions.
func MustEncode(inst Instruction) uint32 {
	word, err := Encode(inst)
	if err != nil {
		panic(err)
	}

	return word
}

func field(r Reg) (uint32, error) {
	if r == RegNone {
		return 0, nil
	}

	if r > 31 {
		return 0, errors.Wrap(ErrUnknownRegister, "register index %d does not fit 5 bits", r)
	}

	return uint32(r), nil
}

func fields(regs ...Reg) ([]uint32, error) {
	out := make([]uint32, len(regs))
	for i, r := range regs {
		f, err := field(r)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}

	return out, nil
}

// encodeR: 000000 | rs | rt | rd | 00000 | funct
func encodeR(inst Instruction) (uint32, error) {
	f, err := fields(inst.Rs, inst.Rt, inst.Rd)
	if err != nil {
		return 0, errors.Wrap(err, "encode %v", inst.Op)
	}

	var funct uint32
	switch inst.Op {
	case OpADD:
		funct = functADD
	case OpSUB:
		funct = functSUB
	case OpAND:
		funct = functAND
	case OpOR:
		funct = functOR
	case OpSLT:
		funct = functSLT
	case OpJR:
		funct = functJR
	}

	return opcodeSpecial<<26 | f[0]<<21 | f[1]<<16 | f[2]<<11 | funct, nil
}

// encodeI: opcode | rs | rt | imm16
func encodeI(inst Instruction) (uint32, error) {
	f, err := fields(inst.Rs, inst.Rd)
	if err != nil {
		return 0, errors.Wrap(err, "encode %v", inst.Op)
	}

	var opcode uint32
	switch inst.Op {
	case OpADDI:
		opcode = opcodeADDI
	case OpLOAD:
		opcode = opcodeLOAD
	case OpSTORE:
		opcode = opcodeSTORE
	case OpBEQ:
		opcode = opcodeBEQ
	case OpBNE:
		opcode = opcodeBNE
	}

	imm := uint32(inst.Imm) & 0xFFFF

	return opcode<<26 | f[0]<<21 | f[1]<<16 | imm, nil
}

// encodeJ: opcode | address26
func encodeJ(inst Instruction) uint32 {
	opcode := opcodeJ
	if inst.Op == OpJAL {
		opcode = opcodeJAL
	}

	return opcode<<26 | inst.Target&0x3FFFFFF
}
