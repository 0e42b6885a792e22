package cpu

import "fmt"

// IllegalInstructionError is raised when the decoder cannot classify an
// opcode/funct3/funct7 combination.
type IllegalInstructionError struct {
	PC   uint32
	Insn uint32
}

func (e *IllegalInstructionError) Error() string {
	return fmt.Sprintf("cpu: illegal instruction 0x%08x at pc=0x%08x", e.Insn, e.PC)
}

// MisalignedFetchError is raised when the PC is not 4-byte aligned; this
// simulator does not implement the compressed (C) extension, so any
// non-word-aligned PC is an alignment fault.
type MisalignedFetchError struct {
	PC uint32
}

func (e *MisalignedFetchError) Error() string {
	return fmt.Sprintf("cpu: misaligned fetch at pc=0x%08x", e.PC)
}
