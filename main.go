// Package main provides the entry point for mipsim.
// mipsim is a cycle-level simulator of a 5-stage, 16-bit MIPS-like pipeline
// built on Akita.
//
// For the full CLI, use: go run ./cmd/mipsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("mipsim - 5-stage pipeline simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: mipsim <command> [options] <program>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run      Run a program and print registers and statistics")
	fmt.Println("  trace    Print the pipeline contents of every cycle")
	fmt.Println("  hex      Export a program as a hex image")
	fmt.Println("  disasm   Disassemble a hex image")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/mipsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/mipsim' instead.")
	}
}
