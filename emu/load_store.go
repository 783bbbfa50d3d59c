package emu

import (
	"github.com/sirupsen/logrus"
)

// LoadStoreUnit performs data memory accesses and applies the fault policy:
// a load outside memory is fatal, a store outside memory is reported and
// dropped.
type LoadStoreUnit struct {
	memory *Memory
	logger logrus.FieldLogger
}

// NewLoadStoreUnit creates a LoadStoreUnit connected to the given memory.
func NewLoadStoreUnit(memory *Memory, logger logrus.FieldLogger) *LoadStoreUnit {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &LoadStoreUnit{
		memory: memory,
		logger: logger,
	}
}

// Load reads the word at addr.
func (lsu *LoadStoreUnit) Load(addr int) (uint16, error) {
	return lsu.memory.Load(addr)
}

// Store writes value to addr. If the address is out of range the store is
// dropped, a warning is logged and the fault is returned so the caller can
// count it. Any other error is returned as err.
func (lsu *LoadStoreUnit) Store(addr int, value uint16) (fault *RangeError, err error) {
	err = lsu.memory.Store(addr, uint32(value))
	if err == nil {
		return nil, nil
	}

	rangeErr, ok := err.(*RangeError)
	if !ok {
		return nil, err
	}

	lsu.logger.WithFields(logrus.Fields{
		"addr":  addr,
		"value": value,
		"size":  lsu.memory.Size(),
	}).Warn("store out of range ignored")

	return rangeErr, nil
}
