package emu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
)

var _ = Describe("ALU", func() {
	alu := emu.NewALU()

	DescribeTable("Compute",
		func(op insts.Op, a, b, expected uint16) {
			Expect(alu.Compute(op, a, b)).To(Equal(expected))
		},
		Entry("ADD", insts.OpADD, uint16(2), uint16(3), uint16(5)),
		Entry("ADD overflow", insts.OpADD, uint16(0xFFFF), uint16(2), uint16(1)),
		Entry("SUB underflow", insts.OpSUB, uint16(0), uint16(1), uint16(0xFFFF)),
		Entry("AND", insts.OpAND, uint16(0xF0F0), uint16(0xFF00), uint16(0xF000)),
		Entry("OR", insts.OpOR, uint16(0xF0F0), uint16(0x0F00), uint16(0xFFF0)),
		Entry("SLT true", insts.OpSLT, uint16(1), uint16(2), uint16(1)),
		Entry("SLT unsigned", insts.OpSLT, uint16(0xFFFF), uint16(1), uint16(0)),
	)

	It("should reject non-ALU ops", func() {
		_, err := alu.Compute(insts.OpLOAD, 1, 2)
		Expect(errors.Is(err, emu.ErrUnknownOpcode)).To(BeTrue())
	})

	It("should add signed immediates", func() {
		Expect(alu.AddImm(10, -1)).To(Equal(uint16(9)))
		Expect(alu.AddImm(0, -1)).To(Equal(uint16(0xFFFF)))
	})

	It("should compute unwrapped effective addresses", func() {
		Expect(alu.EffectiveAddress(0, -2)).To(Equal(-2))
		Expect(alu.EffectiveAddress(0xFFFF, 1)).To(Equal(0x10000))
	})
})

var _ = Describe("LoadStoreUnit", func() {
	It("should warn and drop out-of-range stores", func() {
		logger, hook := test.NewNullLogger()
		memory := emu.NewMemory(4)
		lsu := emu.NewLoadStoreUnit(memory, logger)

		fault, err := lsu.Store(4, 1)

		Expect(err).NotTo(HaveOccurred())
		Expect(fault).NotTo(BeNil())
		Expect(hook.LastEntry()).NotTo(BeNil())
		Expect(hook.LastEntry().Level).To(Equal(logrus.WarnLevel))
		Expect(hook.LastEntry().Data).To(HaveKeyWithValue("addr", 4))
		Expect(memory.Dump()).To(Equal([]uint16{0, 0, 0, 0}))
	})

	It("should fail out-of-range loads", func() {
		lsu := emu.NewLoadStoreUnit(emu.NewMemory(4), nil)

		_, err := lsu.Load(-1)
		Expect(err).To(BeAssignableToTypeOf(&emu.RangeError{}))
	})
})
