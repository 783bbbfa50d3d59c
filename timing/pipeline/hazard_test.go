package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/timing/pipeline"
)

var _ = Describe("HazardUnit", func() {
	var hazardUnit *pipeline.HazardUnit

	BeforeEach(func() {
		hazardUnit = pipeline.NewHazardUnit(set)
	})

	Describe("DetectLoadUseHazard", func() {
		DescribeTable("consumers of a load into $t0",
			func(consumer insts.Instruction, expected bool) {
				ex := pipeline.NewInFlight(load("$t0", 5), 0)
				id := pipeline.NewInFlight(consumer, 1)

				Expect(hazardUnit.DetectLoadUseHazard(ex, id)).To(Equal(expected))
			},
			Entry("ALU first operand", add("$t1", "$t0", "$t2"), true),
			Entry("ALU second operand", add("$t1", "$t2", "$t0"), true),
			Entry("ADDI source", addi("$t1", "$t0", 1), true),
			Entry("load base", loadFrom("$t1", 0, "$t0"), true),
			Entry("store value", store("$t0", 0, "$t1"), true),
			Entry("store base", store("$t1", 0, "$t0"), true),
			Entry("branch operand", beq("$t1", "$t0", 0), true),
			Entry("JR target", jr("$t0"), true),
			Entry("writer only", addi("$t0", "$t1", 1), false),
			Entry("unrelated", add("$t1", "$t2", "$t3"), false),
			Entry("jump", insts.NewJ(insts.OpJ, 0), false),
		)

		It("should ignore a non-load in EX", func() {
			ex := pipeline.NewInFlight(addi("$t0", "$zero", 1), 0)
			id := pipeline.NewInFlight(add("$t1", "$t0", "$t0"), 1)

			Expect(hazardUnit.DetectLoadUseHazard(ex, id)).To(BeFalse())
		})

		It("should ignore a load into $zero", func() {
			ex := pipeline.NewInFlight(load("$zero", 5), 0)
			id := pipeline.NewInFlight(add("$t1", "$zero", "$zero"), 1)

			Expect(hazardUnit.DetectLoadUseHazard(ex, id)).To(BeFalse())
		})

		It("should ignore empty slots", func() {
			ex := pipeline.NewInFlight(load("$t0", 5), 0)

			Expect(hazardUnit.DetectLoadUseHazard(ex, nil)).To(BeFalse())
			Expect(hazardUnit.DetectLoadUseHazard(nil, ex)).To(BeFalse())
		})
	})

	Describe("GetForwardedValue", func() {
		var regFile *emu.RegFile

		BeforeEach(func() {
			regFile = emu.NewRegFile(set)
			Expect(regFile.Set("$t0", 3)).To(Succeed())
		})

		It("should prefer the MEM slot's result", func() {
			mem := pipeline.NewInFlight(addi("$t0", "$zero", 9), 0)
			mem.Computed.Result = 9
			mem.Computed.HasResult = true

			v, src, err := hazardUnit.GetForwardedValue(r("$t0"), mem, regFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(9)))
			Expect(src).To(Equal(pipeline.ForwardFromMEM))
		})

		It("should read the register file when MEM writes elsewhere", func() {
			mem := pipeline.NewInFlight(addi("$t1", "$zero", 9), 0)
			mem.Computed.Result = 9
			mem.Computed.HasResult = true

			v, src, err := hazardUnit.GetForwardedValue(r("$t0"), mem, regFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(3)))
			Expect(src).To(Equal(pipeline.ForwardNone))
		})

		It("should not forward from a store", func() {
			mem := pipeline.NewInFlight(store("$t0", 0, "$zero"), 0)

			v, src, err := hazardUnit.GetForwardedValue(r("$t0"), mem, regFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(3)))
			Expect(src).To(Equal(pipeline.ForwardNone))
		})

		It("should forward a JAL link to the return register", func() {
			mem := pipeline.NewInFlight(insts.NewJ(insts.OpJAL, 4), 6)
			mem.Computed.Result = 7
			mem.Computed.HasResult = true

			v, src, err := hazardUnit.GetForwardedValue(r("$ra"), mem, regFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(7)))
			Expect(src).To(Equal(pipeline.ForwardFromMEM))
		})

		It("should never forward into $zero", func() {
			mem := pipeline.NewInFlight(addi("$zero", "$zero", 9), 0)
			mem.Computed.Result = 9
			mem.Computed.HasResult = true

			v, src, err := hazardUnit.GetForwardedValue(insts.RegZero, mem, regFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(uint16(0)))
			Expect(src).To(Equal(pipeline.ForwardNone))
		})
	})
})
