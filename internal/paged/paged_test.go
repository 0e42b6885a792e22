package paged

import (
	"testing"

	"github.com/Ewad245/RISCV32/internal/mem"
)

func newTestMMU(numFrames int, fetch FetchPolicy) *MMU {
	ram := mem.NewRAM(uint32(numFrames) * PageSize)
	return New(ram, numFrames, "clock", fetch, mem.NewUART(nil))
}

func TestDemandFaultAllocatesZeroFilledPage(t *testing.T) {
	m := newTestMMU(4, Demand)
	as, err := m.NewAddressSpace(1)
	if err != nil {
		t.Fatal(err)
	}
	as.DeclareRegion(0x1000, PageSize, RegionFlags{R: true, W: true})
	m.SwitchContext(1)

	before := m.FreeFrames()
	v, err := m.ReadByte(0x1000)
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if v != 0 {
		t.Fatalf("first read of a fresh demand page = %d, want 0", v)
	}
	if m.FreeFrames() != before-2 {
		t.Fatalf("FreeFrames() = %d, want %d after one demand fault (L2 table + data page)", m.FreeFrames(), before-2)
	}

	if err := m.WriteByte(0x1000, 0xAB); err != nil {
		t.Fatal(err)
	}
	v, _ = m.ReadByte(0x1000)
	if v != 0xAB {
		t.Fatalf("ReadByte after write = %d, want 0xAB", v)
	}
}

// TestAddressSpaceIsolation is spec.md §8 scenario S3: two tasks mapping the
// same virtual address must never observe each other's physical frame.
func TestAddressSpaceIsolation(t *testing.T) {
	// Each address space needs a directory, an L2 table and one data frame.
	m := newTestMMU(6, Demand)
	as1, _ := m.NewAddressSpace(1)
	as2, _ := m.NewAddressSpace(2)
	as1.DeclareRegion(0x2000, PageSize, RegionFlags{R: true, W: true})
	as2.DeclareRegion(0x2000, PageSize, RegionFlags{R: true, W: true})

	m.SwitchContext(1)
	if err := m.WriteByte(0x2000, 0x11); err != nil {
		t.Fatal(err)
	}
	m.SwitchContext(2)
	if err := m.WriteByte(0x2000, 0x22); err != nil {
		t.Fatal(err)
	}

	m.SwitchContext(1)
	v, _ := m.ReadByte(0x2000)
	if v != 0x11 {
		t.Fatalf("pid1 at 0x2000 = %#x, want 0x11 (isolation broken)", v)
	}
	m.SwitchContext(2)
	v, _ = m.ReadByte(0x2000)
	if v != 0x22 {
		t.Fatalf("pid2 at 0x2000 = %#x, want 0x22 (isolation broken)", v)
	}
}

func TestProtectionFaultOnWriteToReadOnlyPage(t *testing.T) {
	m := newTestMMU(4, Demand)
	as, _ := m.NewAddressSpace(1)
	as.DeclareRegion(0x3000, PageSize, RegionFlags{R: true, W: false, X: true})
	m.SwitchContext(1)

	if _, err := m.ReadByte(0x3000); err != nil {
		t.Fatalf("read of RX page should succeed: %v", err)
	}
	if err := m.WriteByte(0x3000, 1); err == nil {
		t.Fatalf("expected a protection fault writing a read-only page")
	}
}

func TestEagerMapRegionPopulatesImmediately(t *testing.T) {
	m := newTestMMU(4, Eager)
	as, err := m.NewAddressSpace(1)
	if err != nil {
		t.Fatal(err)
	}
	before := m.FreeFrames()
	if err := m.MapRegion(as, 0x4000, PageSize, RegionFlags{R: true, W: true}); err != nil {
		t.Fatal(err)
	}
	if m.FreeFrames() != before-2 {
		t.Fatalf("eager MapRegion should allocate immediately (L2 table + data page): FreeFrames() = %d, want %d", m.FreeFrames(), before-2)
	}
}

func TestEvictionReclaimsAFrameUnderPressure(t *testing.T) {
	m := newTestMMU(3, Demand)
	as, _ := m.NewAddressSpace(1)
	as.DeclareRegion(0x1000, 3*PageSize, RegionFlags{R: true, W: true})
	m.SwitchContext(1)

	// The directory and the L2 table take two of the three frames and are
	// never evicted, leaving one data frame: touching the second and third
	// data pages each forces an eviction.
	if err := m.WriteByte(0x1000, 1); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteByte(0x1000+PageSize, 2); err != nil {
		t.Fatal(err)
	}
	if err := m.WriteByte(0x1000+2*PageSize, 3); err != nil {
		t.Fatal(err)
	}
}

// TestForkPrivatePagesDiverge is spec.md §8 property 9 ("fork register
// equality") extended to memory: a private page copied at fork time must be
// independently mutable afterward.
func TestForkPrivatePagesDiverge(t *testing.T) {
	m := newTestMMU(6, Demand)
	parent, _ := m.NewAddressSpace(1)
	parent.DeclareRegion(0x5000, PageSize, RegionFlags{R: true, W: true})
	m.SwitchContext(1)
	if err := m.WriteByte(0x5000, 0x42); err != nil {
		t.Fatal(err)
	}

	child, err := m.CopyAddressSpace(parent, 2)
	if err != nil {
		t.Fatalf("CopyAddressSpace: %v", err)
	}

	m.SwitchContext(2)
	v, err := m.ReadByte(0x5000)
	if err != nil {
		t.Fatalf("child read of copied page: %v", err)
	}
	if v != 0x42 {
		t.Fatalf("child's copy at 0x5000 = %#x, want 0x42", v)
	}
	if err := m.WriteByte(0x5000, 0x99); err != nil {
		t.Fatal(err)
	}

	m.SwitchContext(1)
	v, _ = m.ReadByte(0x5000)
	if v != 0x42 {
		t.Fatalf("parent's page changed to %#x after child wrote its own copy (fork copy isolation broken)", v)
	}
	_ = child
}

func TestOpenSharedFrameIsVisibleAcrossAddressSpaces(t *testing.T) {
	m := newTestMMU(6, Demand)
	as1, _ := m.NewAddressSpace(1)
	as2, _ := m.NewAddressSpace(2)

	ppn, err := m.OpenShared("segment-a")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.MapShared(as1, 0x6000, ppn, true); err != nil {
		t.Fatal(err)
	}
	if err := m.MapShared(as2, 0x7000, ppn, true); err != nil {
		t.Fatal(err)
	}

	m.SwitchContext(1)
	if err := m.WriteByte(0x6000, 0x55); err != nil {
		t.Fatal(err)
	}
	m.SwitchContext(2)
	v, err := m.ReadByte(0x7000)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x55 {
		t.Fatalf("shared frame read at the other AS's mapping = %#x, want 0x55", v)
	}

	if err := m.UnmapShared(as1, 0x6000, ppn); err != nil {
		t.Fatal(err)
	}
	if m.frames.IsFree(ppn) {
		t.Fatalf("frame should still be held by as2's mapping")
	}
	if err := m.UnmapShared(as2, 0x7000, ppn); err != nil {
		t.Fatal(err)
	}
	if !m.frames.IsFree(ppn) {
		t.Fatalf("frame should be returned to the free set once the last mapping is gone")
	}
}

// TestFrameConservation is spec.md §8 property 1: destroying every address
// space must return every frame it held (honoring shared refcounts) to the
// free set.
func TestFrameConservation(t *testing.T) {
	m := newTestMMU(8, Demand)
	total := m.TotalFrames()

	as1, _ := m.NewAddressSpace(1)
	as2, _ := m.NewAddressSpace(2)
	as1.DeclareRegion(0x1000, PageSize, RegionFlags{R: true, W: true})
	as2.DeclareRegion(0x1000, PageSize, RegionFlags{R: true, W: true})

	m.SwitchContext(1)
	_ = m.WriteByte(0x1000, 1)
	m.SwitchContext(2)
	_ = m.WriteByte(0x1000, 2)

	ppn, _ := m.OpenShared("conserved")
	_ = m.MapShared(as1, 0x2000, ppn, true)
	_ = m.MapShared(as2, 0x2000, ppn, true)

	if err := as1.Destroy(); err != nil {
		t.Fatal(err)
	}
	if err := as2.Destroy(); err != nil {
		t.Fatal(err)
	}

	if got := m.FreeFrames(); got != total {
		t.Fatalf("FreeFrames() = %d after destroying every address space, want %d", got, total)
	}
}
