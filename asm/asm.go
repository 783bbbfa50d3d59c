// Package asm assembles the textual instruction syntax into instructions.
//
// Source is line oriented. A '#' starts a comment. A line beginning with
// "name:" binds name to the index of the next instruction; the rest of the
// line may hold an instruction. Labels may be used before they are defined.
//
//	loop:  ADDI $t0, $t0, -1     # decrement
//	       BNE  $t0, $zero, loop
//	       LOAD $t1, 4($sp)
//	       CALL done
//	done:  RET
package asm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/insts"
)

// Errors wrapped by AssemblyError.
var (
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrOperandCount   = errors.New("wrong number of operands")
	ErrUndefinedLabel = errors.New("undefined label")
	ErrDuplicateLabel = errors.New("duplicate label")
	ErrBadImmediate   = errors.New("immediate is not an integer")
	ErrBadMemOperand  = errors.New("malformed memory operand")
	ErrTargetNegative = errors.New("jump target is negative")
)

// AssemblyError reports the first malformed line of a source.
type AssemblyError struct {
	// Line is the 1-based source line number.
	Line int
	// Text is the source line without its comment.
	Text string

	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// Program is the output of the assembler.
type Program struct {
	Instructions []insts.Instruction
	// Labels maps each label to its instruction index.
	Labels map[string]int
	// Lines holds the source line number of each instruction.
	Lines []int
}

// LabelAt returns the labels bound to instruction index pc, sorted.
func (p *Program) LabelAt(pc int) []string {
	var out []string
	for name, idx := range p.Labels {
		if idx == pc {
			out = append(out, name)
		}
	}

	sort.Strings(out)

	return out
}

// Assembler turns source text into a Program.
type Assembler struct {
	regs *insts.RegisterSet
}

// NewAssembler creates an assembler that resolves register names in set.
func NewAssembler(set *insts.RegisterSet) *Assembler {
	return &Assembler{regs: set}
}

// Assemble is a shorthand for NewAssembler(set).Assemble(src).
func Assemble(src string, set *insts.RegisterSet) (*Program, error) {
	return NewAssembler(set).Assemble(src)
}

type sourceLine struct {
	num  int
	text string
	// body is the instruction part, after the label.
	body string
}

// Assemble assembles src. It stops at the first error, which is an
// *AssemblyError.
func (a *Assembler) Assemble(src string) (*Program, error) {
	prog := &Program{Labels: make(map[string]int)}

	// First pass: strip comments, bind labels, collect instruction lines.
	var lines []sourceLine

	for i, raw := range strings.Split(src, "\n") {
		text := raw
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)

		if text == "" {
			continue
		}

		line := sourceLine{num: i + 1, text: text, body: text}

		if label, rest, ok := splitLabel(text); ok {
			if _, dup := prog.Labels[label]; dup {
				return nil, &AssemblyError{
					Line: line.num,
					Text: text,
					Err:  errors.Wrap(ErrDuplicateLabel, "%s", label),
				}
			}

			prog.Labels[label] = len(lines)
			line.body = rest
		}

		if line.body != "" {
			lines = append(lines, line)
		}
	}

	// Second pass: parse instructions with every label known.
	for _, line := range lines {
		inst, err := a.parse(line.body, prog.Labels)
		if err != nil {
			return nil, &AssemblyError{Line: line.num, Text: line.text, Err: err}
		}

		prog.Instructions = append(prog.Instructions, inst)
		prog.Lines = append(prog.Lines, line.num)
	}

	return prog, nil
}

// splitLabel splits "name: rest" into its parts. name must be an
// identifier.
func splitLabel(text string) (label, rest string, ok bool) {
	idx := strings.IndexByte(text, ':')
	if idx <= 0 {
		return "", "", false
	}

	label = text[:idx]
	if !isIdent(label) {
		return "", "", false
	}

	return label, strings.TrimSpace(text[idx+1:]), true
}

func isIdent(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}

	return s != ""
}

func (a *Assembler) parse(body string, labels map[string]int) (insts.Instruction, error) {
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if len(fields) == 0 {
		return insts.Instruction{}, errors.Wrap(ErrOperandCount, "empty instruction")
	}

	mnemonic := strings.ToUpper(fields[0])
	args := fields[1:]

	switch mnemonic {
	case "CALL":
		mnemonic = "JAL"
	case "RET":
		if err := arity(args, 0); err != nil {
			return insts.Instruction{}, err
		}
		return insts.NewR(insts.OpJR, insts.RegNone, a.regs.ReturnAddress, insts.RegNone), nil
	case "NOP":
		if err := arity(args, 0); err != nil {
			return insts.Instruction{}, err
		}
		return insts.NewR(insts.OpADD, insts.RegZero, insts.RegZero, insts.RegZero), nil
	}

	op, ok := insts.ParseOp(mnemonic)
	if !ok {
		return insts.Instruction{}, errors.Wrap(ErrUnknownOpcode, "%s", fields[0])
	}

	switch op {
	case insts.OpADD, insts.OpSUB, insts.OpAND, insts.OpOR, insts.OpSLT:
		return a.parseR(op, args)
	case insts.OpJR:
		if err := arity(args, 1); err != nil {
			return insts.Instruction{}, err
		}
		rs, err := a.reg(args[0])
		if err != nil {
			return insts.Instruction{}, err
		}
		return insts.NewR(op, insts.RegNone, rs, insts.RegNone), nil
	case insts.OpADDI:
		return a.parseADDI(args)
	case insts.OpLOAD, insts.OpSTORE:
		return a.parseMem(op, args)
	case insts.OpBEQ, insts.OpBNE:
		return a.parseBranch(op, args, labels)
	default:
		return a.parseJump(op, args, labels)
	}
}

func (a *Assembler) parseR(op insts.Op, args []string) (insts.Instruction, error) {
	if err := arity(args, 3); err != nil {
		return insts.Instruction{}, err
	}

	regs, err := a.regList(args...)
	if err != nil {
		return insts.Instruction{}, err
	}

	return insts.NewR(op, regs[0], regs[1], regs[2]), nil
}

// parseADDI parses "ADDI rt, rs, imm".
func (a *Assembler) parseADDI(args []string) (insts.Instruction, error) {
	if err := arity(args, 3); err != nil {
		return insts.Instruction{}, err
	}

	regs, err := a.regList(args[0], args[1])
	if err != nil {
		return insts.Instruction{}, err
	}

	imm, err := immediate(args[2])
	if err != nil {
		return insts.Instruction{}, err
	}

	return insts.NewI(insts.OpADDI, regs[0], regs[1], imm), nil
}

// parseMem parses "LOAD rt, imm" and "LOAD rt, imm(base)". For STORE, rt is
// the register whose value is stored.
func (a *Assembler) parseMem(op insts.Op, args []string) (insts.Instruction, error) {
	if err := arity(args, 2); err != nil {
		return insts.Instruction{}, err
	}

	rt, err := a.reg(args[0])
	if err != nil {
		return insts.Instruction{}, err
	}

	operand := args[1]
	base := insts.RegZero

	if open := strings.IndexByte(operand, '('); open >= 0 {
		if !strings.HasSuffix(operand, ")") {
			return insts.Instruction{}, errors.Wrap(ErrBadMemOperand, "%s", operand)
		}

		base, err = a.reg(operand[open+1 : len(operand)-1])
		if err != nil {
			return insts.Instruction{}, err
		}

		operand = operand[:open]
		if operand == "" {
			operand = "0"
		}
	}

	imm, err := immediate(operand)
	if err != nil {
		return insts.Instruction{}, err
	}

	return insts.NewI(op, rt, base, imm), nil
}

// parseBranch parses "BEQ rs, rt, target". The target is a label or an
// absolute instruction index.
func (a *Assembler) parseBranch(op insts.Op, args []string, labels map[string]int) (insts.Instruction, error) {
	if err := arity(args, 3); err != nil {
		return insts.Instruction{}, err
	}

	regs, err := a.regList(args[0], args[1])
	if err != nil {
		return insts.Instruction{}, err
	}

	target, err := resolve(args[2], labels)
	if err != nil {
		return insts.Instruction{}, err
	}

	return insts.NewI(op, regs[1], regs[0], target), nil
}

func (a *Assembler) parseJump(op insts.Op, args []string, labels map[string]int) (insts.Instruction, error) {
	if err := arity(args, 1); err != nil {
		return insts.Instruction{}, err
	}

	target, err := resolve(args[0], labels)
	if err != nil {
		return insts.Instruction{}, err
	}

	if target < 0 {
		return insts.Instruction{}, errors.Wrap(ErrTargetNegative, "%d", target)
	}

	return insts.NewJ(op, uint32(target)), nil
}

func (a *Assembler) reg(name string) (insts.Reg, error) {
	return a.regs.Lookup(name)
}

func (a *Assembler) regList(names ...string) ([]insts.Reg, error) {
	regs := make([]insts.Reg, len(names))
	for i, n := range names {
		r, err := a.reg(n)
		if err != nil {
			return nil, err
		}
		regs[i] = r
	}

	return regs, nil
}

func arity(args []string, n int) error {
	if len(args) != n {
		return errors.Wrap(ErrOperandCount, "want %d, got %d", n, len(args))
	}

	return nil
}

func immediate(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, errors.Wrap(ErrBadImmediate, "%s", s)
	}

	return int32(v), nil
}

// resolve returns the index of a label, or parses s as an integer.
func resolve(s string, labels map[string]int) (int32, error) {
	if idx, ok := labels[s]; ok {
		return int32(idx), nil
	}

	if isIdent(s) {
		return 0, errors.Wrap(ErrUndefinedLabel, "%s", s)
	}

	return immediate(s)
}
