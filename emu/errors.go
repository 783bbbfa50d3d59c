package emu

import (
	"fmt"

	"tlog.app/go/errors"
)

// ErrUnknownOpcode is wrapped by a ConfigurationError when an instruction
// with an unsupported operation reaches execution.
var ErrUnknownOpcode = errors.New("unknown opcode")

// ErrMaxInstructions is returned by the emulator when its instruction limit
// is reached.
var ErrMaxInstructions = errors.New("max instructions reached")

// ConfigurationError reports a fault in the simulated machine's setup: an
// unknown register name or index, or an unknown opcode reaching execution.
// It is always fatal to a run.
type ConfigurationError struct {
	// What names the offending item, e.g. `register "$s9"`.
	What string

	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.What
	}

	return fmt.Sprintf("configuration error: %s: %v", e.What, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RangeError reports a memory access outside the word array. Loads treat it
// as fatal. Stores report it and are dropped.
type RangeError struct {
	// Op is "load" or "store".
	Op   string
	Addr int
	Size int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s address %d out of range [0, %d)", e.Op, e.Addr, e.Size)
}
