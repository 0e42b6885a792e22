//go:build !rvsim_debug

package cpu

// assertRewindIsEcall is a no-op in normal builds; see debug_assert_debug.go
// for the -tags rvsim_debug variant that pays for the extra fetch+decode to
// check the invariant spec.md §9 leaves undocumented.
func assertRewindIsEcall(h *Hart, pc uint32) {}
