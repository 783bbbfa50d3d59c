// Package insts provides the MIPS-like instruction set used by the simulator.
//
// It defines the 13 supported operations, their three encoding formats and
// the register-name tables that map assembler names to register indices:
//   - Register format (R): ADD, SUB, AND, OR, SLT, JR
//   - Immediate format (I): ADDI, LOAD, STORE, BEQ, BNE
//   - Jump format (J): J, JAL
//
// Usage:
//
//	decoder := insts.NewDecoder(insts.FullRegisters)
//	inst, err := decoder.Decode(0x012A4020) // ADD $t0, $t1, $t2
//	word, err := insts.Encode(inst)
package insts
