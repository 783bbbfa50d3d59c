package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/timing/pipeline"
)

var _ = Describe("Stages", func() {
	var (
		regFile *emu.RegFile
		memory  *emu.Memory
	)

	BeforeEach(func() {
		regFile = emu.NewRegFile(set)
		memory = emu.NewMemory(16)
	})

	Describe("ExecuteStage", func() {
		var stage *pipeline.ExecuteStage

		BeforeEach(func() {
			stage = pipeline.NewExecuteStage(regFile, pipeline.NewHazardUnit(set))
		})

		It("should compute the effective address and store value", func() {
			Expect(regFile.Set("$t0", 0xBEEF)).To(Succeed())
			f := pipeline.NewInFlight(store("$t0", 4, "$sp"), 0)

			res, err := stage.Execute(f, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Redirect).To(BeFalse())
			Expect(f.Computed.EffectiveAddress).To(Equal(0xFFF + 4))
			Expect(f.Computed.StoreValue).To(Equal(uint16(0xBEEF)))
			Expect(f.Computed.HasResult).To(BeFalse())
		})

		It("should keep a negative effective address unwrapped", func() {
			f := pipeline.NewInFlight(load("$t0", -1), 0)

			_, err := stage.Execute(f, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Computed.EffectiveAddress).To(Equal(-1))
		})

		It("should link JAL to the following instruction", func() {
			f := pipeline.NewInFlight(insts.NewJ(insts.OpJAL, 12), 6)

			res, err := stage.Execute(f, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Redirect).To(BeTrue())
			Expect(res.Target).To(Equal(12))
			Expect(f.Computed.Result).To(Equal(uint16(7)))
		})

		It("should redirect JR to the register value", func() {
			Expect(regFile.Set("$ra", 21)).To(Succeed())
			f := pipeline.NewInFlight(jr("$ra"), 3)

			res, err := stage.Execute(f, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Redirect).To(BeTrue())
			Expect(res.Target).To(Equal(21))
		})
	})

	Describe("MemoryStage", func() {
		var stage *pipeline.MemoryStage

		BeforeEach(func() {
			stage = pipeline.NewMemoryStage(emu.NewLoadStoreUnit(memory, quietLogger()))
			Expect(memory.Store(2, 77)).To(Succeed())
		})

		It("should fill in the loaded value", func() {
			f := pipeline.NewInFlight(load("$t0", 2), 0)
			f.Computed.EffectiveAddress = 2

			fault, err := stage.Access(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(fault).To(BeNil())
			Expect(f.Computed.Result).To(Equal(uint16(77)))
			Expect(f.Computed.HasResult).To(BeTrue())
		})

		It("should report an out-of-range store as a fault", func() {
			f := pipeline.NewInFlight(store("$t0", 0, "$zero"), 0)
			f.Computed.EffectiveAddress = 16
			f.Computed.StoreValue = 1

			fault, err := stage.Access(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(fault).NotTo(BeNil())
			Expect(fault.Addr).To(Equal(16))
		})
	})

	Describe("WritebackStage", func() {
		It("should skip instructions without a destination", func() {
			stage := pipeline.NewWritebackStage(regFile)
			f := pipeline.NewInFlight(store("$t0", 0, "$zero"), 0)

			Expect(stage.Writeback(f)).To(BeFalse())
		})
	})
})
