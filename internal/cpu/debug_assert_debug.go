//go:build rvsim_debug

package cpu

// assertRewindIsEcall checks, under -tags rvsim_debug only, that the
// instruction sitting at pc actually decodes to ECALL. This is the debug
// build called out in spec.md §9 Open Question 2: "implementers should
// assert this in debug builds." It panics rather than returning an error
// because a violation means the kernel itself has a bug, not user code.
func assertRewindIsEcall(h *Hart, pc uint32) {
	if h.Mem == nil {
		return
	}
	insn, err := h.Mem.ReadWord(pc)
	if err != nil {
		return
	}
	d := decode(insn)
	if d.Opcode != opSYSTEM || d.Funct3 != 0 {
		panic("cpu: SetProgramCounter rewind target does not decode to ECALL")
	}
}
