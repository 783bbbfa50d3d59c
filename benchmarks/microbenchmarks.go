package benchmarks

import (
	"strings"

	"github.com/sarchlab/mipsim/emu"
	"github.com/sarchlab/mipsim/insts"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks.
// Each benchmark targets a specific pipeline characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		loadUseSum(),
		branchLoop(),
		functionCalls(),
		memoryCopy(),
		takenBranchScenario(),
		loadAddScenario(),
		reducedSetCall(),
		storeFault(),
	}
}

// GetCoreBenchmarks returns a minimal set of 3 core benchmarks for quick
// validation: a loop, a load-use chain and call/return.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		branchLoop(),
		loadUseSum(),
		functionCalls(),
	}
}

// Lookup returns the microbenchmark with the given name.
func Lookup(name string) (Benchmark, bool) {
	for _, b := range GetMicrobenchmarks() {
		if b.Name == name {
			return b, true
		}
	}

	return Benchmark{}, false
}

// IdentityMemory is a setup that fills memory with memory[i] = i.
func IdentityMemory(_ *emu.RegFile, memory *emu.Memory) error {
	words := make([]uint16, memory.Size())
	for i := range words {
		words[i] = uint16(i)
	}

	return memory.LoadWords(0, words)
}

// 1. Arithmetic Sequential - independent operations, no hazards
func arithmeticSequential() Benchmark {
	var b strings.Builder
	for i := 0; i < 4; i++ {
		b.WriteString("ADDI $t0, $t0, 1\nADDI $t1, $t1, 1\nADDI $t2, $t2, 1\nADDI $t3, $t3, 1\nADDI $t4, $t4, 1\n")
	}

	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "20 ADDIs over 5 registers - dependences are 5 apart, never forwarded",
		Source:      b.String(),
		ExpectedRegs: map[string]uint16{
			"$t0": 4, "$t1": 4, "$t2": 4, "$t3": 4, "$t4": 4,
		},
	}
}

// 2. Dependency Chain - every instruction reads the previous result
func dependencyChain() Benchmark {
	return Benchmark{
		Name:         "dependency_chain",
		Description:  "20 dependent ADDIs ($t0 = $t0 + 1) - every operand is forwarded",
		Source:       strings.Repeat("ADDI $t0, $t0, 1\n", 20),
		ExpectedRegs: map[string]uint16{"$t0": 20},
	}
}

// 3. Load-use sum - a load consumed by the next instruction each iteration
func loadUseSum() Benchmark {
	return Benchmark{
		Name:        "load_use_sum",
		Description: "sum of memory[0..9] - one load-use stall per iteration",
		Source: `
			      ADDI $t1, $zero, 10
			loop: LOAD $t2, 0($t0)
			      ADD  $t3, $t3, $t2
			      ADDI $t0, $t0, 1
			      BNE  $t0, $t1, loop
		`,
		Setup:        IdentityMemory,
		ExpectedRegs: map[string]uint16{"$t0": 10, "$t3": 45},
	}
}

// 4. Branch loop - taken backward branches
func branchLoop() Benchmark {
	return Benchmark{
		Name:        "branch_loop",
		Description: "10-iteration countdown loop - one flush per taken branch",
		Source: `
			      ADDI $t0, $zero, 10
			loop: ADDI $t1, $t1, 2
			      ADDI $t0, $t0, -1
			      BNE  $t0, $zero, loop
		`,
		ExpectedRegs: map[string]uint16{"$t0": 0, "$t1": 20},
	}
}

// 5. Function calls - JAL/JR pairs
func functionCalls() Benchmark {
	return Benchmark{
		Name:        "function_calls",
		Description: "3 calls to a leaf function - JAL links, RET returns",
		Source: `
			      CALL inc
			      CALL inc
			      CALL inc
			      J    end
			inc:  ADDI $v0, $v0, 1
			      RET
			end:  NOP
		`,
		ExpectedRegs: map[string]uint16{"$v0": 3, "$ra": 3},
	}
}

// 6. Memory copy - load then store of the loaded value
func memoryCopy() Benchmark {
	expected := make(map[int]uint16)
	for i := 0; i < 8; i++ {
		expected[64+i] = uint16(16 + i)
	}

	return Benchmark{
		Name:        "memory_copy",
		Description: "copy memory[16..23] to memory[64..71] - store value is a load-use",
		Source: `
			      ADDI  $t0, $zero, 16
			      ADDI  $t1, $zero, 24
			loop: LOAD  $t2, 0($t0)
			      STORE $t2, 48($t0)
			      ADDI  $t0, $t0, 1
			      BNE   $t0, $t1, loop
		`,
		Setup:          IdentityMemory,
		ExpectedMemory: expected,
	}
}

// 7. Taken-branch scenario - the not-taken path never commits
func takenBranchScenario() Benchmark {
	return Benchmark{
		Name:        "scenario_taken_branch",
		Description: "BEQ on two equal loads skips an ADD and an out-of-range load",
		Source: `
			LOAD $t0, 5
			LOAD $t1, 5
			BEQ  $t0, $t1, 5
			ADD  $t2, $t0, $t1
			LOAD $t2, 999
			LOAD $t3, 10
		`,
		Setup:        IdentityMemory,
		ExpectedRegs: map[string]uint16{"$t2": 0, "$t3": 10},
	}
}

// 8. Load-add scenario - a consumer of two back-to-back loads
func loadAddScenario() Benchmark {
	return Benchmark{
		Name:        "scenario_load_add",
		Description: "ADD of two loaded values",
		Source: `
			LOAD $t0, 10
			LOAD $t1, 20
			ADD  $t2, $t0, $t1
		`,
		Setup:        IdentityMemory,
		ExpectedRegs: map[string]uint16{"$t0": 10, "$t1": 20, "$t2": 30},
	}
}

// 9. Reduced-set call - the 8-register variant
func reducedSetCall() Benchmark {
	return Benchmark{
		Name:        "reduced_set_call",
		Description: "call/return on the 8-register set",
		Registers:   insts.ReducedRegisters,
		Source: `
			        ADDI $t0, $zero, 5
			        CALL double
			        J    end
			double: ADD  $v0, $t0, $t0
			        RET
			end:    NOP
		`,
		ExpectedRegs: map[string]uint16{"$v0": 10, "$ra": 2, "$sp": 0xFFF},
	}
}

// 10. Store fault - an out-of-range store is dropped and the run continues
func storeFault() Benchmark {
	return Benchmark{
		Name:        "store_fault",
		Description: "out-of-range store is reported and ignored",
		Source: `
			ADDI  $t0, $zero, 7
			STORE $t0, 300
			ADDI  $t1, $zero, 1
		`,
		ExpectedRegs: map[string]uint16{"$t0": 7, "$t1": 1},
	}
}
