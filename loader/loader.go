// Package loader reads programs and data images from files and exports
// programs as hex images.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"github.com/sarchlab/mipsim/asm"
	"github.com/sarchlab/mipsim/insts"
)

// DefaultCapacity is the number of words in a hex program image.
const DefaultCapacity = 256

// ErrProgramTooLarge is returned when a program does not fit the image
// capacity.
var ErrProgramTooLarge = errors.New("program exceeds image capacity")

// Format is the on-disk form of a program.
type Format int

// Program formats.
const (
	FormatAsm Format = iota
	FormatHex
)

func (f Format) String() string {
	if f == FormatHex {
		return "hex"
	}
	return "asm"
}

// Program represents a loaded program ready for execution.
type Program struct {
	// Path is the file the program was loaded from.
	Path   string
	Format Format

	Instructions []insts.Instruction

	// Labels and Lines are only set for assembled programs.
	Labels map[string]int
	Lines  []int
}

// LabelAt returns the labels bound to instruction index pc.
func (p *Program) LabelAt(pc int) []string {
	if p.Labels == nil {
		return nil
	}

	ap := asm.Program{Labels: p.Labels}

	return ap.LabelAt(pc)
}

// Load reads a program. Files ending in .hex are decoded as hex images;
// anything else is assembled.
func Load(path string, set *insts.RegisterSet) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open program")
	}
	defer func() { _ = f.Close() }()

	prog := &Program{Path: path}

	if strings.EqualFold(filepath.Ext(path), ".hex") {
		prog.Format = FormatHex
		prog.Instructions, err = ReadHex(f, set)
		if err != nil {
			return nil, errors.Wrap(err, "%s", path)
		}

		return prog, nil
	}

	src, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "read %s", path)
	}

	ap, err := asm.Assemble(string(src), set)
	if err != nil {
		return nil, errors.Wrap(err, "%s", path)
	}

	prog.Format = FormatAsm
	prog.Instructions = ap.Instructions
	prog.Labels = ap.Labels
	prog.Lines = ap.Lines

	return prog, nil
}

// ReadHex decodes a hex image: one 32-bit word of hex digits per line.
// Blank lines and '#' comments are skipped. Trailing all-zero words are
// padding and are dropped.
func ReadHex(r io.Reader, set *insts.RegisterSet) ([]insts.Instruction, error) {
	words, err := readWords(r, 32)
	if err != nil {
		return nil, err
	}

	for len(words) > 0 && words[len(words)-1] == 0 {
		words = words[:len(words)-1]
	}

	decoder := insts.NewDecoder(set)
	program := make([]insts.Instruction, 0, len(words))

	for i, w := range words {
		inst, err := decoder.Decode(uint32(w))
		if err != nil {
			return nil, errors.Wrap(err, "word %d (%08x)", i, w)
		}
		program = append(program, inst)
	}

	return program, nil
}

// WriteHex writes the encoding of each instruction as 8 lowercase hex
// digits per line, padded with zero words to capacity. A capacity <= 0
// selects DefaultCapacity.
func WriteHex(w io.Writer, program []insts.Instruction, capacity int) error {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	if len(program) > capacity {
		return errors.Wrap(ErrProgramTooLarge, "%d > %d", len(program), capacity)
	}

	bw := bufio.NewWriter(w)

	for i, inst := range program {
		word, err := insts.Encode(inst)
		if err != nil {
			return errors.Wrap(err, "instruction %d (%v)", i, inst)
		}

		if _, err := fmt.Fprintf(bw, "%08x\n", word); err != nil {
			return err
		}
	}

	for i := len(program); i < capacity; i++ {
		if _, err := bw.WriteString("00000000\n"); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// LoadData reads a data memory image: one 16-bit word per line, in hex.
func LoadData(path string) ([]uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open data image")
	}
	defer func() { _ = f.Close() }()

	words, err := readWords(f, 16)
	if err != nil {
		return nil, errors.Wrap(err, "%s", path)
	}

	out := make([]uint16, len(words))
	for i, w := range words {
		out[i] = uint16(w)
	}

	return out, nil
}

func readWords(r io.Reader, bits int) ([]uint64, error) {
	var words []uint64

	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++

		text := scanner.Text()
		if idx := strings.IndexByte(text, '#'); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)

		if text == "" {
			continue
		}

		text = strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")

		w, err := strconv.ParseUint(text, 16, bits)
		if err != nil {
			return nil, errors.Wrap(err, "line %d", line)
		}

		words = append(words, w)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return words, nil
}
