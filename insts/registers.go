package insts

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

// Reg is a register index as it appears in the rs/rt/rd encoding fields.
type Reg uint8

const (
	// RegZero is the hardwired zero register.
	RegZero Reg = 0

	// RegNone marks an operand field that the instruction does not use.
	RegNone Reg = 0xFF
)

// ErrUnknownRegister is returned when a register name or index does not
// belong to a register set.
var ErrUnknownRegister = errors.New("unknown register")

// RegisterSet is a fixed bijection between register names and indices.
// The simulator supports two widths over this one type: the full 32-register
// MIPS set and a reduced 8-register teaching set.
type RegisterSet struct {
	name    string
	names   []string
	index   map[string]Reg
	presets map[Reg]uint16

	// ReturnAddress is the register JAL links into.
	ReturnAddress Reg
}

// FullRegisters is the conventional 32-register MIPS naming.
var FullRegisters = newRegisterSet("full", []string{
	"$zero", "$at", "$v0", "$v1", "$a0", "$a1", "$a2", "$a3",
	"$t0", "$t1", "$t2", "$t3", "$t4", "$t5", "$t6", "$t7",
	"$s0", "$s1", "$s2", "$s3", "$s4", "$s5", "$s6", "$s7",
	"$t8", "$t9", "$k0", "$k1", "$gp", "$sp", "$fp", "$ra",
}, map[string]uint16{
	"$sp": 0xFFF,
	"$gp": 0x1000,
})

// ReducedRegisters is the 8-register set of the hardware variant.
var ReducedRegisters = newRegisterSet("reduced", []string{
	"$zero", "$t0", "$t1", "$t2", "$t3", "$v0", "$sp", "$ra",
}, map[string]uint16{
	"$sp": 0xFFF,
})

func newRegisterSet(name string, names []string, presets map[string]uint16) *RegisterSet {
	s := &RegisterSet{
		name:    name,
		names:   names,
		index:   make(map[string]Reg, len(names)),
		presets: make(map[Reg]uint16, len(presets)),
	}

	for i, n := range names {
		s.index[n] = Reg(i)
	}

	for n, v := range presets {
		s.presets[s.index[n]] = v
	}

	s.ReturnAddress = s.index["$ra"]

	return s
}

// LookupRegisterSet returns the register set with the given name
// ("full" or "reduced").
func LookupRegisterSet(name string) (*RegisterSet, error) {
	switch strings.ToLower(name) {
	case "", FullRegisters.name:
		return FullRegisters, nil
	case ReducedRegisters.name:
		return ReducedRegisters, nil
	default:
		return nil, errors.New("unknown register set %q", name)
	}
}

// Name returns the register set name.
func (s *RegisterSet) Name() string {
	return s.name
}

// Size returns the number of registers in the set.
func (s *RegisterSet) Size() int {
	return len(s.names)
}

// Valid reports whether reg is an index of this set.
func (s *RegisterSet) Valid(reg Reg) bool {
	return int(reg) < len(s.names)
}

// Lookup resolves a register name. Both symbolic names ("$t0") and numeric
// names ("$8") are accepted. Unknown names are an error, never register 0.
func (s *RegisterSet) Lookup(name string) (Reg, error) {
	if reg, ok := s.index[name]; ok {
		return reg, nil
	}

	if strings.HasPrefix(name, "$") {
		if n, err := strconv.Atoi(name[1:]); err == nil && n >= 0 && n < len(s.names) {
			return Reg(n), nil
		}
	}

	return RegNone, errors.Wrap(ErrUnknownRegister, "%s register set: %q", s.name, name)
}

// RegName returns the symbolic name of reg, or "$<n>" if reg is outside the set.
func (s *RegisterSet) RegName(reg Reg) string {
	if reg == RegNone {
		return "-"
	}

	if s.Valid(reg) {
		return s.names[reg]
	}

	return "$" + strconv.Itoa(int(reg))
}

// Names returns the register names in index order.
func (s *RegisterSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)

	return out
}

// Preset returns the reset value of reg.
func (s *RegisterSet) Preset(reg Reg) uint16 {
	return s.presets[reg]
}
