package emu

import (
	"encoding/binary"

	"github.com/sarchlab/akita/v4/mem/mem"
)

// DefaultMemorySize is the default number of words in data memory.
const DefaultMemorySize = 256

const bytesPerWord = 2

// Memory is a fixed-size array of 16-bit words addressed 0..Size()-1.
// Words are kept little endian in an akita storage.
type Memory struct {
	size    int
	storage *mem.Storage
}

// NewMemory creates a memory of size words. A size <= 0 selects
// DefaultMemorySize.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}

	m := &Memory{size: size}
	m.Reset()

	return m
}

// Size returns the capacity in words.
func (m *Memory) Size() int {
	return m.size
}

// Reset clears every word to 0.
func (m *Memory) Reset() {
	m.storage = mem.NewStorage(uint64(m.size * bytesPerWord))
}

// Load returns the word at addr. Out-of-range addresses return a
// *RangeError and never a default value.
func (m *Memory) Load(addr int) (uint16, error) {
	if !m.inRange(addr) {
		return 0, &RangeError{Op: "load", Addr: addr, Size: m.size}
	}

	data, err := m.storage.Read(uint64(addr*bytesPerWord), bytesPerWord)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(data), nil
}

// Store writes value&0xFFFF to addr. An out-of-range store changes nothing
// and returns a *RangeError for the caller to report.
func (m *Memory) Store(addr int, value uint32) error {
	if !m.inRange(addr) {
		return &RangeError{Op: "store", Addr: addr, Size: m.size}
	}

	data := make([]byte, bytesPerWord)
	binary.LittleEndian.PutUint16(data, uint16(value&0xFFFF))

	return m.storage.Write(uint64(addr*bytesPerWord), data)
}

// LoadWords copies words into memory starting at base.
func (m *Memory) LoadWords(base int, words []uint16) error {
	for i, w := range words {
		if err := m.Store(base+i, uint32(w)); err != nil {
			return err
		}
	}

	return nil
}

// Dump returns a copy of the whole word array.
func (m *Memory) Dump() []uint16 {
	out := make([]uint16, m.size)
	for i := range out {
		out[i], _ = m.Load(i)
	}

	return out
}

func (m *Memory) inRange(addr int) bool {
	return addr >= 0 && addr < m.size
}
