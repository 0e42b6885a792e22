package mem

// ExecMemory is an optional capability a Memory implementation can provide
// to distinguish instruction fetches from data loads. The base Memory
// contract (spec.md §4.2) has a single ReadWord with no access-kind
// parameter, so an MMU that wants to enforce the X permission bit
// separately from R implements this; cpu.Hart type-asserts for it and falls
// back to ReadWord when absent (e.g. the contiguous MMU, which has no
// per-page permission bits at all).
type ExecMemory interface {
	Memory
	ReadInstruction(va uint32) (uint32, error)
}
