package pipeline_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/timing/pipeline"
)

type countingHook struct {
	counts map[*sim.HookPos]int
	items  map[*sim.HookPos][]interface{}
}

func newCountingHook() *countingHook {
	return &countingHook{
		counts: make(map[*sim.HookPos]int),
		items:  make(map[*sim.HookPos][]interface{}),
	}
}

func (h *countingHook) Func(ctx sim.HookCtx) {
	h.counts[ctx.Pos]++
	h.items[ctx.Pos] = append(h.items[ctx.Pos], ctx.Detail)
}

var _ = Describe("Pipeline", func() {
	var pipe *pipeline.Pipeline

	BeforeEach(func() {
		pipe = newMachine()
	})

	Describe("NewPipeline", func() {
		It("should start empty at pc 0", func() {
			Expect(pipe.PC()).To(Equal(0))
			Expect(pipe.Drained()).To(BeTrue())
			Expect(pipe.WB()).To(BeNil())
			Expect(pipe.Stats()).To(Equal(pipeline.Statistics{}))
		})
	})

	Describe("scenarios", func() {
		It("should skip the not-taken path after a taken BEQ", func() {
			program := []insts.Instruction{
				load("$t0", 5),
				load("$t1", 5),
				beq("$t0", "$t1", 5),
				add("$t2", "$t0", "$t1"),
				load("$t2", 999),
				load("$t3", 10),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())

			Expect(reg(pipe, "$t3")).To(Equal(uint16(10)))
			Expect(reg(pipe, "$t2")).To(Equal(uint16(0)))
			Expect(pipe.Stats().Flushes).To(Equal(uint64(1)))
			Expect(pipe.Stats().Stalls).To(Equal(uint64(1)))
			Expect(pipe.Stats().Instructions).To(Equal(uint64(4)))
		})

		It("should add two loaded values", func() {
			program := []insts.Instruction{
				load("$t0", 10),
				load("$t1", 20),
				add("$t2", "$t0", "$t1"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())

			Expect(reg(pipe, "$t0")).To(Equal(uint16(10)))
			Expect(reg(pipe, "$t1")).To(Equal(uint16(20)))
			Expect(reg(pipe, "$t2")).To(Equal(uint16(30)))
		})
	})

	Describe("ALU operations", func() {
		DescribeTable("should commit 16-bit results",
			func(op insts.Op, a, b int32, expected uint16) {
				program := []insts.Instruction{
					addi("$t0", "$zero", a),
					addi("$t1", "$zero", b),
					alu(op, "$t2", "$t0", "$t1"),
				}

				Expect(drive(pipe, program, 100)).To(Succeed())
				Expect(reg(pipe, "$t2")).To(Equal(expected))
			},
			Entry("ADD", insts.OpADD, int32(3), int32(4), uint16(7)),
			Entry("ADD wraps", insts.OpADD, int32(-1), int32(2), uint16(1)),
			Entry("SUB", insts.OpSUB, int32(3), int32(4), uint16(0xFFFF)),
			Entry("AND", insts.OpAND, int32(0x0C), int32(0x0A), uint16(0x08)),
			Entry("OR", insts.OpOR, int32(0x0C), int32(0x0A), uint16(0x0E)),
			Entry("SLT less", insts.OpSLT, int32(3), int32(4), uint16(1)),
			Entry("SLT not less", insts.OpSLT, int32(4), int32(4), uint16(0)),
			Entry("SLT is unsigned", insts.OpSLT, int32(-1), int32(1), uint16(0)),
		)
	})

	Describe("load-use hazard", func() {
		It("should stall exactly one cycle", func() {
			dependent := []insts.Instruction{
				load("$t0", 5),
				add("$t1", "$t0", "$t0"),
			}
			independent := []insts.Instruction{
				load("$t0", 5),
				add("$t1", "$t2", "$t2"),
			}

			Expect(drive(pipe, dependent, 100)).To(Succeed())
			withStall := pipe.Stats()

			other := newMachine()
			Expect(drive(other, independent, 100)).To(Succeed())
			withoutStall := other.Stats()

			Expect(withStall.Stalls).To(Equal(uint64(1)))
			Expect(withoutStall.Stalls).To(Equal(uint64(0)))
			Expect(withStall.Cycles).To(Equal(withoutStall.Cycles + 1))
			Expect(reg(pipe, "$t1")).To(Equal(uint16(10)))
		})

		It("should insert a bubble and hold ID and IF", func() {
			Expect(pipe.Fetch(load("$t0", 5), 0)).To(Succeed())
			Expect(pipe.Step()).To(BeFalse())
			Expect(pipe.Fetch(add("$t1", "$t0", "$t0"), 1)).To(Succeed())
			Expect(pipe.Step()).To(BeFalse())
			Expect(pipe.Fetch(addi("$t2", "$zero", 1), 2)).To(Succeed())

			stalled, err := pipe.Step()
			Expect(err).NotTo(HaveOccurred())
			Expect(stalled).To(BeTrue())
			Expect(pipe.Stalled()).To(BeTrue())
			Expect(pipe.EX()).To(BeNil())
			Expect(pipe.MEM().Inst.Op).To(Equal(insts.OpLOAD))
			Expect(pipe.ID().Inst.Op).To(Equal(insts.OpADD))
			Expect(pipe.IF().Inst.Op).To(Equal(insts.OpADDI))

			stalled, err = pipe.Step()
			Expect(err).NotTo(HaveOccurred())
			Expect(stalled).To(BeFalse())
			Expect(pipe.EX().Inst.Op).To(Equal(insts.OpADD))
			Expect(pipe.EX().Computed.Result).To(Equal(uint16(10)))
		})

		It("should stall a store whose value register is being loaded", func() {
			program := []insts.Instruction{
				load("$t0", 7),
				store("$t0", 100, "$zero"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(pipe.Stats().Stalls).To(Equal(uint64(1)))

			v, err := pipe.Memory().Load(100)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(7)))
		})

		It("should not stall on a load into the zero register", func() {
			program := []insts.Instruction{
				load("$zero", 7),
				add("$t1", "$zero", "$zero"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(pipe.Stats().Stalls).To(Equal(uint64(0)))
			Expect(reg(pipe, "$t1")).To(Equal(uint16(0)))
		})
	})

	Describe("forwarding", func() {
		It("should forward the previous result before it is committed", func() {
			Expect(pipe.Fetch(addi("$t0", "$zero", 7), 0)).To(Succeed())
			Expect(pipe.Step()).To(BeFalse())
			Expect(pipe.Fetch(add("$t1", "$t0", "$t0"), 1)).To(Succeed())
			Expect(pipe.Step()).To(BeFalse())
			Expect(pipe.Step()).To(BeFalse())

			Expect(reg(pipe, "$t0")).To(Equal(uint16(0)))
			Expect(pipe.EX().Computed.Result).To(Equal(uint16(14)))
			Expect(pipe.Stats().Forwards).To(Equal(uint64(2)))
		})

		It("should read the register file for older producers", func() {
			program := []insts.Instruction{
				addi("$t0", "$zero", 7),
				add("$t3", "$zero", "$zero"),
				add("$t1", "$t0", "$t0"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(reg(pipe, "$t1")).To(Equal(uint16(14)))
			Expect(pipe.Stats().Forwards).To(Equal(uint64(0)))
		})

		It("should forward the store value", func() {
			program := []insts.Instruction{
				addi("$t0", "$zero", 42),
				store("$t0", 3, "$zero"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())

			v, err := pipe.Memory().Load(3)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(42)))
		})

		It("should forward the base register of a load", func() {
			program := []insts.Instruction{
				addi("$t0", "$zero", 40),
				loadFrom("$t1", 2, "$t0"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(reg(pipe, "$t1")).To(Equal(uint16(42)))
		})
	})

	Describe("branches", func() {
		It("should clear IF and ID in the resolving cycle", func() {
			program := []insts.Instruction{
				addi("$t0", "$zero", 1),
				beq("$zero", "$zero", 4),
				addi("$t1", "$zero", 9),
				addi("$t2", "$zero", 9),
				addi("$t3", "$zero", 3),
			}

			for pc := 0; pc < 3; pc++ {
				Expect(pipe.Fetch(program[pc], pc)).To(Succeed())
				pipe.SetPC(pc + 1)
				Expect(pipe.Step()).To(BeFalse())
			}

			Expect(pipe.EX().Inst.Op).To(Equal(insts.OpBEQ))
			Expect(pipe.ID()).To(BeNil())
			Expect(pipe.IF()).To(BeNil())
			Expect(pipe.PC()).To(Equal(4))

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(reg(pipe, "$t1")).To(Equal(uint16(0)))
			Expect(reg(pipe, "$t2")).To(Equal(uint16(0)))
			Expect(reg(pipe, "$t3")).To(Equal(uint16(3)))
			Expect(pipe.Stats().Flushes).To(Equal(uint64(1)))
		})

		It("should fall through a not-taken BNE", func() {
			program := []insts.Instruction{
				bne("$zero", "$zero", 3),
				addi("$t1", "$zero", 9),
				addi("$t2", "$zero", 8),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(reg(pipe, "$t1")).To(Equal(uint16(9)))
			Expect(reg(pipe, "$t2")).To(Equal(uint16(8)))
			Expect(pipe.Stats().Flushes).To(Equal(uint64(0)))
		})

		It("should run a loop without mutating the program", func() {
			Expect(pipe.RegFile().Set("$t1", 3)).To(Succeed())
			program := []insts.Instruction{
				addi("$t0", "$t0", 1),
				bne("$t0", "$t1", 0),
				addi("$t2", "$t0", 0),
			}
			original := append([]insts.Instruction(nil), program...)

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(reg(pipe, "$t0")).To(Equal(uint16(3)))
			Expect(reg(pipe, "$t2")).To(Equal(uint16(3)))
			Expect(pipe.Stats().Flushes).To(Equal(uint64(2)))
			Expect(program).To(Equal(original))
		})
	})

	Describe("jumps", func() {
		It("should return to the instruction after JAL", func() {
			program := []insts.Instruction{
				insts.NewJ(insts.OpJAL, 3),
				addi("$t0", "$zero", 5),
				insts.NewJ(insts.OpJ, 5),
				addi("$t1", "$zero", 7),
				jr("$ra"),
				addi("$t2", "$zero", 1),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(reg(pipe, "$ra")).To(Equal(uint16(1)))
			Expect(reg(pipe, "$t0")).To(Equal(uint16(5)))
			Expect(reg(pipe, "$t1")).To(Equal(uint16(7)))
			Expect(reg(pipe, "$t2")).To(Equal(uint16(1)))
			Expect(pipe.Stats().Flushes).To(Equal(uint64(3)))
		})

		It("should link into the reduced set's return register", func() {
			regFile := emu.NewRegFile(insts.ReducedRegisters)
			pipe = pipeline.NewPipeline(regFile, emu.NewMemory(0),
				pipeline.WithLogger(quietLogger()))
			program := []insts.Instruction{
				insts.NewJ(insts.OpJAL, 2),
				insts.NewJ(insts.OpJ, 3),
				insts.NewR(insts.OpJR, insts.RegNone, 7, insts.RegNone),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(regFile.ReadReg(7)).To(Equal(uint16(1)))
		})
	})

	Describe("zero register", func() {
		It("should never observe a write to $zero", func() {
			program := []insts.Instruction{
				addi("$zero", "$zero", 5),
				add("$t0", "$zero", "$zero"),
				load("$zero", 9),
				add("$t1", "$zero", "$zero"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(reg(pipe, "$zero")).To(Equal(uint16(0)))
			Expect(reg(pipe, "$t0")).To(Equal(uint16(0)))
			Expect(reg(pipe, "$t1")).To(Equal(uint16(0)))
		})
	})

	Describe("faults", func() {
		It("should drop an out-of-range store and continue", func() {
			hook := newCountingHook()
			pipe = newMachine(pipeline.WithHook(hook))
			program := []insts.Instruction{
				addi("$t0", "$zero", 1),
				store("$t0", 300, "$zero"),
				addi("$t1", "$zero", 2),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())
			Expect(pipe.Stats().StoreFaults).To(Equal(uint64(1)))
			Expect(hook.counts[pipeline.HookPosStoreFault]).To(Equal(1))
			Expect(hook.items[pipeline.HookPosStoreFault][0]).To(
				BeAssignableToTypeOf(&emu.RangeError{}))
			Expect(reg(pipe, "$t1")).To(Equal(uint16(2)))
		})

		It("should fail on an out-of-range load", func() {
			err := drive(pipe, []insts.Instruction{load("$t0", 999)}, 100)

			var rangeErr *emu.RangeError
			Expect(errors.As(err, &rangeErr)).To(BeTrue())
			Expect(rangeErr.Op).To(Equal("load"))
			Expect(rangeErr.Addr).To(Equal(999))
		})

		It("should fail on an unknown opcode reaching EX", func() {
			err := drive(pipe, []insts.Instruction{{Op: insts.OpUnknown}}, 100)

			var cfgErr *emu.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(errors.Is(err, emu.ErrUnknownOpcode)).To(BeTrue())
		})

		It("should refuse to fetch into an occupied IF slot", func() {
			Expect(pipe.Fetch(add("$t0", "$t0", "$t0"), 0)).To(Succeed())
			Expect(pipe.Fetch(add("$t0", "$t0", "$t0"), 1)).NotTo(Succeed())
		})
	})

	Describe("hooks", func() {
		It("should invoke commit and cycle-end hooks", func() {
			hook := newCountingHook()
			pipe.AcceptHook(hook)
			program := []insts.Instruction{
				load("$t0", 1),
				add("$t1", "$t0", "$t0"),
			}

			Expect(drive(pipe, program, 100)).To(Succeed())

			stats := pipe.Stats()
			Expect(hook.counts[pipeline.HookPosCommit]).To(Equal(int(stats.Instructions)))
			Expect(hook.counts[pipeline.HookPosCycleEnd]).To(Equal(int(stats.Cycles)))
			Expect(hook.counts[pipeline.HookPosStall]).To(Equal(1))
		})
	})

	Describe("Reset", func() {
		It("should clear slots, pc and statistics", func() {
			Expect(drive(pipe, []insts.Instruction{beq("$zero", "$zero", 9)}, 3)).To(Succeed())

			pipe.Reset()

			Expect(pipe.PC()).To(Equal(0))
			Expect(pipe.Drained()).To(BeTrue())
			Expect(pipe.WB()).To(BeNil())
			Expect(pipe.Stats()).To(Equal(pipeline.Statistics{}))
		})
	})

	Describe("Statistics", func() {
		It("should compute CPI", func() {
			s := pipeline.Statistics{Cycles: 9, Instructions: 3}
			Expect(s.CPI()).To(Equal(3.0))
			Expect(pipeline.Statistics{}.CPI()).To(Equal(0.0))
		})
	})
})
