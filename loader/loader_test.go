package loader_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mipsim/asm"
	"github.com/sarchlab/mipsim/insts"
	"github.com/sarchlab/mipsim/loader"
)

const source = `
start: LOAD $t0, 10
       LOAD $t1, 20
       ADD  $t2, $t0, $t1
       J    start
`

var _ = Describe("Loader", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	write := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
		return path
	}

	Describe("WriteHex", func() {
		It("should write one padded word per line", func() {
			var buf bytes.Buffer
			program := []insts.Instruction{
				insts.NewR(insts.OpADD, 8, 9, 10),
				insts.NewJ(insts.OpJAL, 6),
			}

			Expect(loader.WriteHex(&buf, program, 4)).To(Succeed())

			Expect(buf.String()).To(Equal("012a4020\n0c000006\n00000000\n00000000\n"))
		})

		It("should default to the standard capacity", func() {
			var buf bytes.Buffer

			Expect(loader.WriteHex(&buf, nil, 0)).To(Succeed())
			Expect(strings.Count(buf.String(), "\n")).To(Equal(loader.DefaultCapacity))
		})

		It("should reject a program that does not fit", func() {
			program := make([]insts.Instruction, 3)
			for i := range program {
				program[i] = insts.NewJ(insts.OpJ, 0)
			}

			err := loader.WriteHex(&bytes.Buffer{}, program, 2)
			Expect(errors.Is(err, loader.ErrProgramTooLarge)).To(BeTrue())
		})
	})

	Describe("Load", func() {
		It("should assemble source files", func() {
			prog, err := loader.Load(write("prog.s", source), insts.FullRegisters)
			Expect(err).NotTo(HaveOccurred())

			Expect(prog.Format).To(Equal(loader.FormatAsm))
			Expect(prog.Instructions).To(HaveLen(4))
			Expect(prog.LabelAt(0)).To(Equal([]string{"start"}))
			Expect(prog.Lines).To(Equal([]int{2, 3, 4, 5}))
		})

		It("should round-trip through a hex image", func() {
			ap, err := asm.Assemble(source, insts.FullRegisters)
			Expect(err).NotTo(HaveOccurred())

			var buf bytes.Buffer
			Expect(loader.WriteHex(&buf, ap.Instructions, 0)).To(Succeed())

			prog, err := loader.Load(write("prog.hex", buf.String()), insts.FullRegisters)
			Expect(err).NotTo(HaveOccurred())

			Expect(prog.Format).To(Equal(loader.FormatHex))
			Expect(prog.Instructions).To(Equal(ap.Instructions))
			Expect(prog.LabelAt(0)).To(BeEmpty())
		})

		It("should carry the assembly error", func() {
			_, err := loader.Load(write("bad.s", "ADD $t0\n"), insts.FullRegisters)

			var asmErr *asm.AssemblyError
			Expect(errors.As(err, &asmErr)).To(BeTrue())
			Expect(asmErr.Line).To(Equal(1))
		})

		It("should reject undecodable words", func() {
			_, err := loader.Load(write("bad.hex", "fc000000\n"), insts.FullRegisters)
			Expect(errors.Is(err, insts.ErrUnknownEncoding)).To(BeTrue())
		})

		It("should reject non-hex lines", func() {
			_, err := loader.Load(write("bad.hex", "zz\n"), insts.FullRegisters)
			Expect(err).To(MatchError(ContainSubstring("line 1")))
		})

		It("should fail on a missing file", func() {
			_, err := loader.Load(filepath.Join(tempDir, "none.s"), insts.FullRegisters)
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		})
	})

	Describe("LoadData", func() {
		It("should read 16-bit words", func() {
			words, err := loader.LoadData(write("data.hex", "0001\n# comment\nbeef\n0x10\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(words).To(Equal([]uint16{1, 0xBEEF, 0x10}))
		})

		It("should reject words wider than 16 bits", func() {
			_, err := loader.LoadData(write("data.hex", "10000\n"))
			Expect(err).To(HaveOccurred())
		})
	})
})
