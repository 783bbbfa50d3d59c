package emu

import (
	"github.com/sirupsen/logrus"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Done is true once the PC has left the program.
	Done bool

	// StoreFault is set when the instruction was a store outside memory.
	StoreFault *RangeError

	// Err is set if a fatal error occurred during execution.
	Err error
}

// Emulator executes a program one instruction at a time with no pipeline.
// It shares the ALU, branch and load/store semantics of the pipeline and
// serves as the reference for its architectural results.
type Emulator struct {
	regFile    *RegFile
	memory     *Memory
	alu        *ALU
	branchUnit *BranchUnit
	lsu        *LoadStoreUnit
	logger     logrus.FieldLogger

	program []insts.Instruction
	pc      int

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	storeFaults      uint64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithRegFile uses an existing register file.
func WithRegFile(regFile *RegFile) EmulatorOption {
	return func(e *Emulator) {
		e.regFile = regFile
	}
}

// WithMemory uses an existing memory.
func WithMemory(memory *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = memory
	}
}

// WithLogger sets the logger used for store-fault warnings.
func WithLogger(logger logrus.FieldLogger) EmulatorOption {
	return func(e *Emulator) {
		e.logger = logger
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates an emulator. Without options it uses the full register
// set and a memory of DefaultMemorySize words.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		alu:        NewALU(),
		branchUnit: NewBranchUnit(),
		logger:     logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.regFile == nil {
		e.regFile = NewRegFile(insts.FullRegisters)
	}
	if e.memory == nil {
		e.memory = NewMemory(DefaultMemorySize)
	}

	e.lsu = NewLoadStoreUnit(e.memory, e.logger)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// PC returns the index of the next instruction.
func (e *Emulator) PC() int {
	return e.pc
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// StoreFaults returns the number of dropped out-of-range stores.
func (e *Emulator) StoreFaults() uint64 {
	return e.storeFaults
}

// LoadProgram installs a program and sets the PC to its first instruction.
func (e *Emulator) LoadProgram(program []insts.Instruction) {
	e.program = program
	e.pc = 0
}

// Reset restores the registers to their presets and clears the counters.
// The program and memory contents are kept.
func (e *Emulator) Reset() {
	e.regFile.Reset()
	e.pc = 0
	e.instructionCount = 0
	e.storeFaults = 0
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.pc < 0 || e.pc >= len(e.program) {
		return StepResult{Done: true}
	}

	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{
			Err: errors.Wrap(ErrMaxInstructions, "after %d", e.maxInstructions),
		}
	}

	inst := e.program[e.pc]
	result := e.execute(inst)

	e.instructionCount++

	return result
}

// Run executes instructions until the PC leaves the program or an error
// occurs.
func (e *Emulator) Run() error {
	for {
		result := e.Step()
		if result.Err != nil {
			return result.Err
		}
		if result.Done {
			return nil
		}
	}
}

// execute dispatches and executes one instruction and advances the PC.
func (e *Emulator) execute(inst insts.Instruction) StepResult {
	next := e.pc + 1

	var res StepResult

	switch inst.Format() {
	case insts.FormatR:
		if inst.Op == insts.OpJR {
			target, err := e.read(inst.Rs)
			if err != nil {
				return StepResult{Err: err}
			}
			next = int(target)
			break
		}

		if err := e.executeALU(inst); err != nil {
			return StepResult{Err: err}
		}

	case insts.FormatI:
		result, target, taken, err := e.executeImm(inst)
		if err != nil {
			return StepResult{Err: err}
		}
		if taken {
			next = target
		}
		res = result

	case insts.FormatJ:
		if inst.Op == insts.OpJAL {
			link := e.branchUnit.LinkValue(e.pc)
			if err := e.regFile.WriteReg(e.regFile.Registers().ReturnAddress, uint32(link)); err != nil {
				return StepResult{Err: err}
			}
		}
		next, _ = e.branchUnit.Redirect(inst, 0, 0)

	default:
		return StepResult{Err: unknownOpcode(inst.Op)}
	}

	e.pc = next

	return res
}

func (e *Emulator) executeALU(inst insts.Instruction) error {
	op1, err := e.read(inst.Rs)
	if err != nil {
		return err
	}

	op2, err := e.read(inst.Rt)
	if err != nil {
		return err
	}

	result, err := e.alu.Compute(inst.Op, op1, op2)
	if err != nil {
		return err
	}

	return e.writeBack(inst, result)
}

// writeBack commits value to the instruction's destination. Instructions
// without one, such as an ADDI built with no destination, write nothing.
func (e *Emulator) writeBack(inst insts.Instruction, value uint16) error {
	dest, ok := inst.Dest(e.regFile.Registers())
	if !ok {
		return nil
	}

	return e.regFile.WriteReg(dest, uint32(value))
}

// executeImm executes I-format instructions. taken reports a taken branch
// to target, which may be any index including a negative one.
func (e *Emulator) executeImm(inst insts.Instruction) (res StepResult, target int, taken bool, err error) {
	switch inst.Op {
	case insts.OpADDI:
		op1, err := e.read(inst.Rs)
		if err != nil {
			return StepResult{}, 0, false, err
		}
		return StepResult{}, 0, false, e.writeBack(inst, e.alu.AddImm(op1, inst.Imm))

	case insts.OpLOAD:
		base, err := e.read(inst.Rs)
		if err != nil {
			return StepResult{}, 0, false, err
		}
		value, err := e.lsu.Load(e.alu.EffectiveAddress(base, inst.Imm))
		if err != nil {
			return StepResult{}, 0, false, err
		}
		return StepResult{}, 0, false, e.writeBack(inst, value)

	case insts.OpSTORE:
		base, err := e.read(inst.Rs)
		if err != nil {
			return StepResult{}, 0, false, err
		}
		value, err := e.read(inst.Rd)
		if err != nil {
			return StepResult{}, 0, false, err
		}
		fault, err := e.lsu.Store(e.alu.EffectiveAddress(base, inst.Imm), value)
		if fault != nil {
			e.storeFaults++
		}
		return StepResult{StoreFault: fault}, 0, false, err

	case insts.OpBEQ, insts.OpBNE:
		op1, err := e.read(inst.Rs)
		if err != nil {
			return StepResult{}, 0, false, err
		}
		op2, err := e.read(inst.Rd)
		if err != nil {
			return StepResult{}, 0, false, err
		}
		target, taken := e.branchUnit.Redirect(inst, op1, op2)
		return StepResult{}, target, taken, nil

	default:
		return StepResult{}, 0, false, unknownOpcode(inst.Op)
	}
}

func (e *Emulator) read(reg insts.Reg) (uint16, error) {
	if reg == insts.RegNone {
		return 0, nil
	}

	return e.regFile.ReadReg(reg)
}
