package pipeline

import (
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
)

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions committed at WB.
	Instructions uint64
	// Stalls is the number of load-use stall cycles.
	Stalls uint64
	// Flushes is the number of taken redirects that cleared IF and ID.
	Flushes uint64
	// Forwards is the number of operands taken from the MEM slot.
	Forwards uint64
	// StoreFaults is the number of stores dropped for being out of range.
	StoreFaults uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger used for stage events and store faults.
func WithLogger(logger logrus.FieldLogger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithHook registers a hook that is invoked at the pipeline's hook
// positions.
func WithHook(hook sim.Hook) PipelineOption {
	return func(p *Pipeline) {
		p.AcceptHook(hook)
	}
}

// Pipeline implements a single-issue 5-stage pipeline.
// Stages: Fetch (IF) -> Decode (ID) -> Execute (EX) -> Memory (MEM) -> Writeback (WB)
//
// The pipeline does not fetch by itself. A driver places the instruction at
// PC() into IF between steps, see core.Core. Operands are read at EX, with
// forwarding from the MEM slot, so the only hazard that costs a cycle is a
// load followed by a consumer of the loaded register.
type Pipeline struct {
	sim.HookableBase

	slots Slots

	// pc is the index of the next instruction to fetch.
	pc int

	regFile *emu.RegFile
	memory  *emu.Memory
	logger  logrus.FieldLogger

	hazardUnit     *HazardUnit
	executeStage   *ExecuteStage
	memoryStage    *MemoryStage
	writebackStage *WritebackStage

	stats       Statistics
	lastStalled bool
	lastFlushed bool
}

// NewPipeline creates a new pipeline over the given register file and data
// memory.
func NewPipeline(regFile *emu.RegFile, memory *emu.Memory, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		regFile: regFile,
		memory:  memory,
		logger:  logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.hazardUnit = NewHazardUnit(regFile.Registers())
	p.executeStage = NewExecuteStage(regFile, p.hazardUnit)
	p.memoryStage = NewMemoryStage(emu.NewLoadStoreUnit(memory, p.logger))
	p.writebackStage = NewWritebackStage(regFile)

	return p
}

// RegFile returns the register file.
func (p *Pipeline) RegFile() *emu.RegFile {
	return p.regFile
}

// Memory returns the data memory.
func (p *Pipeline) Memory() *emu.Memory {
	return p.memory
}

// PC returns the index of the next instruction to fetch.
func (p *Pipeline) PC() int {
	return p.pc
}

// SetPC sets the index of the next instruction to fetch.
func (p *Pipeline) SetPC(pc int) {
	p.pc = pc
}

// Stats returns the pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// IF returns the instruction in the fetch slot, or nil.
func (p *Pipeline) IF() *InFlight { return p.slots[StageIF] }

// ID returns the instruction in the decode slot, or nil.
func (p *Pipeline) ID() *InFlight { return p.slots[StageID] }

// EX returns the instruction in the execute slot, or nil.
func (p *Pipeline) EX() *InFlight { return p.slots[StageEX] }

// MEM returns the instruction in the memory slot, or nil.
func (p *Pipeline) MEM() *InFlight { return p.slots[StageMEM] }

// WB returns the instruction committed by the last step, or nil.
func (p *Pipeline) WB() *InFlight { return p.slots[StageWB] }

// Slots returns a copy of all five slots.
func (p *Pipeline) Slots() Slots {
	return p.slots.Clone()
}

// Fetch places a copy of inst, fetched from pc, into the IF slot.
func (p *Pipeline) Fetch(inst insts.Instruction, pc int) error {
	if p.slots[StageIF] != nil {
		return errors.New("fetch at pc %d: IF slot is occupied by pc %d",
			pc, p.slots[StageIF].PC)
	}

	p.slots[StageIF] = NewInFlight(inst, pc)

	return nil
}

// Drained reports whether IF, ID, EX and MEM are all empty. The WB slot only
// records the last committed instruction.
func (p *Pipeline) Drained() bool {
	for s := StageIF; s < StageWB; s++ {
		if p.slots[s] != nil {
			return false
		}
	}

	return true
}

// Stalled reports whether the last step stalled.
func (p *Pipeline) Stalled() bool {
	return p.lastStalled
}

// Reset clears all slots and statistics and sets the PC to 0. The register
// file and memory are left to their owner.
func (p *Pipeline) Reset() {
	p.slots = Slots{}
	p.pc = 0
	p.stats = Statistics{}
	p.lastStalled = false
	p.lastFlushed = false
}

// Step advances the pipeline by one cycle and reports whether it stalled.
//
// Stages are evaluated from the back of the pipeline to the front, so the
// write-back of the older instruction is visible to the execute of the
// younger one within the same call. After an error the pipeline state is
// undefined until Reset.
func (p *Pipeline) Step() (stalled bool, err error) {
	p.stats.Cycles++
	p.lastFlushed = false
	fetched := p.slots[StageIF]

	stalled = p.hazardUnit.DetectLoadUseHazard(p.slots[StageEX], p.slots[StageID])

	if err := p.doWriteback(); err != nil {
		return stalled, err
	}

	if err := p.doMemory(); err != nil {
		return stalled, err
	}

	redirect, target, err := p.doExecute(stalled)
	if err != nil {
		return stalled, err
	}

	if !stalled {
		p.slots[StageID] = p.slots[StageIF]
		p.slots[StageIF] = nil
	}

	if redirect {
		p.flush(target)
	}

	p.lastStalled = stalled
	p.invoke(HookPosCycleEnd, p.snapshot(fetched))

	return stalled, nil
}

func (p *Pipeline) doWriteback() error {
	wb := p.slots[StageMEM]
	p.slots[StageWB] = wb

	if wb == nil {
		return nil
	}

	if _, err := p.writebackStage.Writeback(wb); err != nil {
		return errors.Wrap(err, "WB %v at pc %d", wb.Inst, wb.PC)
	}

	p.stats.Instructions++
	p.invoke(HookPosCommit, wb)

	return nil
}

func (p *Pipeline) doMemory() error {
	mem := p.slots[StageEX]
	p.slots[StageMEM] = mem

	if mem == nil {
		return nil
	}

	fault, err := p.memoryStage.Access(mem)
	if err != nil {
		return errors.Wrap(err, "MEM %v at pc %d", mem.Inst, mem.PC)
	}

	if fault != nil {
		p.stats.StoreFaults++
		p.invokeDetail(HookPosStoreFault, mem, fault)
	}

	return nil
}

func (p *Pipeline) doExecute(stalled bool) (redirect bool, target int, err error) {
	if stalled {
		p.slots[StageEX] = nil
		p.stats.Stalls++

		p.logger.WithFields(logrus.Fields{
			"cycle": p.stats.Cycles,
			"pc":    p.slots[StageID].PC,
			"inst":  p.slots[StageID].Inst.String(),
		}).Debug("load-use stall")
		p.invoke(HookPosStall, p.slots[StageID])

		return false, 0, nil
	}

	ex := p.slots[StageID]
	p.slots[StageEX] = ex

	if ex == nil {
		return false, 0, nil
	}

	res, err := p.executeStage.Execute(ex, p.slots[StageMEM])
	if err != nil {
		return false, 0, errors.Wrap(err, "EX %v at pc %d", ex.Inst, ex.PC)
	}

	p.stats.Forwards += uint64(res.Forwards)

	return res.Redirect, res.Target, nil
}

func (p *Pipeline) flush(target int) {
	p.logger.WithFields(logrus.Fields{
		"cycle":  p.stats.Cycles,
		"target": target,
	}).Debug("redirect")

	p.slots[StageIF] = nil
	p.slots[StageID] = nil
	p.pc = target
	p.stats.Flushes++
	p.lastFlushed = true

	p.invokeDetail(HookPosFlush, p.slots[StageEX], target)
}

func (p *Pipeline) snapshot(fetched *InFlight) Snapshot {
	return Snapshot{
		Cycle:   p.stats.Cycles,
		Fetched: fetched.Clone(),
		PC:      p.pc,
		Slots:   p.slots.Clone(),
		Stalled: p.lastStalled,
		Flushed: p.lastFlushed,
	}
}

func (p *Pipeline) invoke(pos *sim.HookPos, item interface{}) {
	p.invokeDetail(pos, item, nil)
}

func (p *Pipeline) invokeDetail(pos *sim.HookPos, item, detail interface{}) {
	if p.NumHooks() == 0 {
		return
	}

	p.InvokeHook(sim.HookCtx{
		Domain: p,
		Pos:    pos,
		Item:   item,
		Detail: detail,
	})
}
