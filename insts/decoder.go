package insts

import (
	"fmt"
	"strings"

	"tlog.app/go/errors"
)

// Op represents an operation.
type Op uint8

// Supported operations.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpAND
	OpOR
	OpSLT
	OpJR
	OpADDI
	OpLOAD
	OpSTORE
	OpBEQ
	OpBNE
	OpJ
	OpJAL

	numOps
)

var opNames = [...]string{
	OpUnknown: "UNKNOWN",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpAND:     "AND",
	OpOR:      "OR",
	OpSLT:     "SLT",
	OpJR:      "JR",
	OpADDI:    "ADDI",
	OpLOAD:    "LOAD",
	OpSTORE:   "STORE",
	OpBEQ:     "BEQ",
	OpBNE:     "BNE",
	OpJ:       "J",
	OpJAL:     "JAL",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}

	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Known reports whether o is one of the supported operations.
func (o Op) Known() bool {
	return o > OpUnknown && o < numOps
}

// ParseOp resolves a mnemonic. LW and SW are accepted as aliases of LOAD and
// STORE.
func ParseOp(mnemonic string) (Op, bool) {
	m := strings.ToUpper(mnemonic)
	switch m {
	case "LW":
		return OpLOAD, true
	case "SW":
		return OpSTORE, true
	}

	for op := OpADD; op < numOps; op++ {
		if opNames[op] == m {
			return op, true
		}
	}

	return OpUnknown, false
}

// Format represents an instruction encoding format.
type Format uint8

// Instruction formats.
const (
	FormatUnknown Format = iota
	FormatR              // Register-register
	FormatI              // Register-immediate
	FormatJ              // Jump
)

func (f Format) String() string {
	switch f {
	case FormatR:
		return "R"
	case FormatI:
		return "I"
	case FormatJ:
		return "J"
	default:
		return "?"
	}
}

// Format returns the encoding format of the operation.
func (o Op) Format() Format {
	switch o {
	case OpADD, OpSUB, OpAND, OpOR, OpSLT, OpJR:
		return FormatR
	case OpADDI, OpLOAD, OpSTORE, OpBEQ, OpBNE:
		return FormatI
	case OpJ, OpJAL:
		return FormatJ
	default:
		return FormatUnknown
	}
}

// Instruction is an operation template. Its format tag selects which fields
// are meaningful:
//
//	R: Rd, Rs, Rt          (JR uses Rs only)
//	I: Rd, Rs, Imm         (Rd is the rt field)
//	J: Target
//
// In the I format, Rd carries the destination of LOAD and ADDI, the value
// register of STORE and the second comparison operand of BEQ/BNE. Rs is the
// base of LOAD/STORE and the first operand otherwise. This mirrors the rt/rs
// fields of the binary encoding.
type Instruction struct {
	Op Op

	Rd Reg
	Rs Reg
	Rt Reg

	// Imm is the immediate operand. For BEQ/BNE it is the absolute
	// instruction index of the branch target.
	Imm int32

	// Target is the absolute instruction index of a J/JAL.
	Target uint32
}

// Format returns the encoding format of the instruction.
func (i Instruction) Format() Format {
	return i.Op.Format()
}

// NewR builds a register-format instruction.
func NewR(op Op, rd, rs, rt Reg) Instruction {
	return Instruction{Op: op, Rd: rd, Rs: rs, Rt: rt}
}

// NewI builds an immediate-format instruction. rd is the rt field.
func NewI(op Op, rd, rs Reg, imm int32) Instruction {
	return Instruction{Op: op, Rd: rd, Rs: rs, Rt: RegNone, Imm: imm}
}

// NewJ builds a jump-format instruction.
func NewJ(op Op, target uint32) Instruction {
	return Instruction{Op: op, Rd: RegNone, Rs: RegNone, Rt: RegNone, Target: target}
}

// Sources returns the registers the instruction reads, in operand order.
// Unused fields are not reported.
func (i Instruction) Sources() []Reg {
	switch i.Op {
	case OpADD, OpSUB, OpAND, OpOR, OpSLT:
		return nonNone(i.Rs, i.Rt)
	case OpJR, OpADDI, OpLOAD:
		return nonNone(i.Rs)
	case OpSTORE:
		return nonNone(i.Rd, i.Rs)
	case OpBEQ, OpBNE:
		return nonNone(i.Rs, i.Rd)
	default:
		return nil
	}
}

// Dest returns the register the instruction writes back, if any. JAL links
// into the return-address register of the given set.
func (i Instruction) Dest(set *RegisterSet) (Reg, bool) {
	switch i.Op {
	case OpADD, OpSUB, OpAND, OpOR, OpSLT, OpADDI, OpLOAD:
		if i.Rd == RegNone {
			return RegNone, false
		}
		return i.Rd, true
	case OpJAL:
		return set.ReturnAddress, true
	default:
		return RegNone, false
	}
}

// IsLoad reports whether the instruction reads data memory.
func (i Instruction) IsLoad() bool {
	return i.Op == OpLOAD
}

// IsStore reports whether the instruction writes data memory.
func (i Instruction) IsStore() bool {
	return i.Op == OpSTORE
}

// IsControl reports whether the instruction may redirect the PC.
func (i Instruction) IsControl() bool {
	switch i.Op {
	case OpJR, OpBEQ, OpBNE, OpJ, OpJAL:
		return true
	default:
		return false
	}
}

func nonNone(regs ...Reg) []Reg {
	out := regs[:0]
	for _, r := range regs {
		if r != RegNone {
			out = append(out, r)
		}
	}

	return out
}

// String renders the instruction with numeric register names.
func (i Instruction) String() string {
	return i.Disasm(nil)
}

// Disasm renders the instruction in assembler syntax using the names of the
// given register set. A nil set prints numeric register names.
func (i Instruction) Disasm(set *RegisterSet) string {
	name := func(r Reg) string {
		if set == nil {
			if r == RegNone {
				return "-"
			}
			return fmt.Sprintf("$%d", r)
		}
		return set.RegName(r)
	}

	switch i.Op {
	case OpADD, OpSUB, OpAND, OpOR, OpSLT:
		return fmt.Sprintf("%s %s, %s, %s", i.Op, name(i.Rd), name(i.Rs), name(i.Rt))
	case OpJR:
		return fmt.Sprintf("%s %s", i.Op, name(i.Rs))
	case OpADDI:
		return fmt.Sprintf("%s %s, %s, %d", i.Op, name(i.Rd), name(i.Rs), i.Imm)
	case OpLOAD, OpSTORE:
		if i.Rs == RegNone || i.Rs == RegZero {
			return fmt.Sprintf("%s %s, %d", i.Op, name(i.Rd), i.Imm)
		}
		return fmt.Sprintf("%s %s, %d(%s)", i.Op, name(i.Rd), i.Imm, name(i.Rs))
	case OpBEQ, OpBNE:
		return fmt.Sprintf("%s %s, %s, %d", i.Op, name(i.Rs), name(i.Rd), i.Imm)
	case OpJ, OpJAL:
		return fmt.Sprintf("%s %d", i.Op, i.Target)
	default:
		return i.Op.String()
	}
}

// Primary opcodes (bits [31:26]).
const (
	opcodeSpecial uint32 = 0b000000
	opcodeJ       uint32 = 0b000010
	opcodeJAL     uint32 = 0b000011
	opcodeBEQ     uint32 = 0b000100
	opcodeBNE     uint32 = 0b000101
	opcodeADDI    uint32 = 0b001000
	opcodeLOAD    uint32 = 0b100011
	opcodeSTORE   uint32 = 0b101011
)

// Function codes (bits [5:0]) of the register format.
const (
	functJR  uint32 = 0b001000
	functADD uint32 = 0b100000
	functSUB uint32 = 0b100010
	functAND uint32 = 0b100100
	functOR  uint32 = 0b100101
	functSLT uint32 = 0b101010
)

// ErrUnknownEncoding is returned for words with an unsupported opcode or
// function code.
var ErrUnknownEncoding = errors.New("unknown instruction encoding")

// Decoder decodes 32-bit instruction words.
type Decoder struct {
	regs *RegisterSet
}

// NewDecoder creates a decoder that validates registers against set.
func NewDecoder(set *RegisterSet) *Decoder {
	return &Decoder{regs: set}
}

// Decode decodes a 32-bit instruction word. Immediates are sign-extended from
// 16 bits.
func (d *Decoder) Decode(word uint32) (Instruction, error) {
	opcode := (word >> 26) & 0x3F // bits [31:26]

	var (
		inst Instruction
		err  error
	)

	switch {
	case opcode == opcodeSpecial:
		inst, err = d.decodeR(word)
	case d.isJump(opcode):
		inst = d.decodeJ(word, opcode)
	default:
		inst, err = d.decodeI(word, opcode)
	}

	if err != nil {
		return Instruction{}, err
	}

	if err := d.checkRegs(inst); err != nil {
		return Instruction{}, errors.Wrap(err, "decode %08x", word)
	}

	return inst, nil
}

func (d *Decoder) isJump(opcode uint32) bool {
	return opcode == opcodeJ || opcode == opcodeJAL
}

// decodeR decodes register-format instructions.
// Format: 000000 | rs | rt | rd | shamt | funct
func (d *Decoder) decodeR(word uint32) (Instruction, error) {
	rs := Reg((word >> 21) & 0x1F) // bits [25:21]
	rt := Reg((word >> 16) & 0x1F) // bits [20:16]
	rd := Reg((word >> 11) & 0x1F) // bits [15:11]
	funct := word & 0x3F           // bits [5:0]

	var op Op
	switch funct {
	case functADD:
		op = OpADD
	case functSUB:
		op = OpSUB
	case functAND:
		op = OpAND
	case functOR:
		op = OpOR
	case functSLT:
		op = OpSLT
	case functJR:
		return NewR(OpJR, RegNone, rs, RegNone), nil
	default:
		return Instruction{}, errors.Wrap(ErrUnknownEncoding, "funct %#x in %08x", funct, word)
	}

	return NewR(op, rd, rs, rt), nil
}

// decodeI decodes immediate-format instructions.
// Format: opcode | rs | rt | imm16
func (d *Decoder) decodeI(word, opcode uint32) (Instruction, error) {
	rs := Reg((word >> 21) & 0x1F)     // bits [25:21]
	rt := Reg((word >> 16) & 0x1F)     // bits [20:16]
	imm := int32(int16(word & 0xFFFF)) // bits [15:0], sign-extended

	var op Op
	switch opcode {
	case opcodeADDI:
		op = OpADDI
	case opcodeLOAD:
		op = OpLOAD
	case opcodeSTORE:
		op = OpSTORE
	case opcodeBEQ:
		op = OpBEQ
	case opcodeBNE:
		op = OpBNE
	default:
		return Instruction{}, errors.Wrap(ErrUnknownEncoding, "opcode %#x in %08x", opcode, word)
	}

	return NewI(op, rt, rs, imm), nil
}

// decodeJ decodes jump-format instructions.
// Format: opcode | address26
func (d *Decoder) decodeJ(word, opcode uint32) Instruction {
	op := OpJ
	if opcode == opcodeJAL {
		op = OpJAL
	}

	return NewJ(op, word&0x3FFFFFF)
}

func (d *Decoder) checkRegs(inst Instruction) error {
	if d.regs == nil {
		return nil
	}

	for _, r := range []Reg{inst.Rd, inst.Rs, inst.Rt} {
		if r != RegNone && !d.regs.Valid(r) {
			return errors.Wrap(ErrUnknownRegister, "%s register set: index %d", d.regs.Name(), r)
		}
	}

	return nil
}
