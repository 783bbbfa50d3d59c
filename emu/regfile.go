// Package emu provides the architectural state of the simulated machine and a
// functional reference emulator.
package emu

import (
	"fmt"

	"github.com/sarchlab/mipsim/insts"
)

// RegFile is the register file. Its width and names come from a register
// set. Register 0 always reads as 0 and ignores writes. Every write is masked
// to 16 bits.
type RegFile struct {
	regs    *insts.RegisterSet
	values  []uint16
	presets map[insts.Reg]uint16
}

// NewRegFile creates a register file over set, reset to the set's presets.
func NewRegFile(set *insts.RegisterSet) *RegFile {
	r := &RegFile{
		regs:    set,
		values:  make([]uint16, set.Size()),
		presets: make(map[insts.Reg]uint16),
	}
	r.Reset()

	return r
}

// Registers returns the register set of the file.
func (r *RegFile) Registers() *insts.RegisterSet {
	return r.regs
}

// SetPreset overrides the value reg takes on Reset.
func (r *RegFile) SetPreset(reg insts.Reg, value uint16) error {
	if err := r.check(reg); err != nil {
		return err
	}

	r.presets[reg] = value

	return nil
}

// Reset sets every register to 0 except the preset ones (e.g. $sp).
func (r *RegFile) Reset() {
	for i := range r.values {
		reg := insts.Reg(i)
		v, ok := r.presets[reg]
		if !ok {
			v = r.regs.Preset(reg)
		}
		r.values[i] = v
	}

	r.values[insts.RegZero] = 0
}

// ReadReg reads a register. Register 0 returns 0.
func (r *RegFile) ReadReg(reg insts.Reg) (uint16, error) {
	if err := r.check(reg); err != nil {
		return 0, err
	}

	if reg == insts.RegZero {
		return 0, nil
	}

	return r.values[reg], nil
}

// WriteReg writes value&0xFFFF to a register. Writes to register 0 are
// ignored.
func (r *RegFile) WriteReg(reg insts.Reg, value uint32) error {
	if err := r.check(reg); err != nil {
		return err
	}

	if reg == insts.RegZero {
		return nil
	}

	r.values[reg] = uint16(value & 0xFFFF)

	return nil
}

// Get reads a register by name.
func (r *RegFile) Get(name string) (uint16, error) {
	reg, err := r.lookup(name)
	if err != nil {
		return 0, err
	}

	return r.ReadReg(reg)
}

// Set writes a register by name.
func (r *RegFile) Set(name string, value uint32) error {
	reg, err := r.lookup(name)
	if err != nil {
		return err
	}

	return r.WriteReg(reg, value)
}

// Snapshot returns every register value keyed by name.
func (r *RegFile) Snapshot() map[string]uint16 {
	out := make(map[string]uint16, len(r.values))
	for i, name := range r.regs.Names() {
		out[name] = r.values[i]
	}

	return out
}

func (r *RegFile) lookup(name string) (insts.Reg, error) {
	reg, err := r.regs.Lookup(name)
	if err != nil {
		return insts.RegNone, &ConfigurationError{What: fmt.Sprintf("register %q", name), Err: err}
	}

	return reg, nil
}

func (r *RegFile) check(reg insts.Reg) error {
	if !r.regs.Valid(reg) {
		return &ConfigurationError{
			What: fmt.Sprintf("register index %d", reg),
			Err:  insts.ErrUnknownRegister,
		}
	}

	return nil
}
