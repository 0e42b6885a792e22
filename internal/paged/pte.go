package paged

import "github.com/Ewad245/RISCV32/internal/mem"

// PageSize is the fixed page size of the Sv32-style two-level layout
// (spec.md §4.2.2): 4KiB pages, 1024-entry directories at each level.
const PageSize = 4096

const (
	l1Bits = 10
	l2Bits = 10
	l1Mask = 1<<l1Bits - 1
	l2Mask = 1<<l2Bits - 1
)

// pte is a packed page-table entry: a leaf PTE carries V/R/W/X/Shared/A/D
// plus a physical frame number; a directory (L1) entry only ever carries V
// and the PPN of the L2 table frame it points to.
type pte uint32

const (
	pteV      pte = 1 << 0
	pteR      pte = 1 << 1
	pteW      pte = 1 << 2
	pteX      pte = 1 << 3
	pteShared pte = 1 << 4
	pteA      pte = 1 << 5
	pteD      pte = 1 << 6
	ppnShift      = 12
)

func makeLeafPTE(r, w, x, shared bool, ppn int32) pte {
	p := pteV
	if r {
		p |= pteR
	}
	if w {
		p |= pteW
	}
	if x {
		p |= pteX
	}
	if shared {
		p |= pteShared
	}
	return p | pte(uint32(ppn)<<ppnShift)
}

func makeDirPTE(ppn int32) pte {
	return pteV | pte(uint32(ppn)<<ppnShift)
}

func (p pte) valid() bool  { return p&pteV != 0 }
func (p pte) shared() bool { return p&pteShared != 0 }
func (p pte) ppn() int32   { return int32(p >> ppnShift) }

func (p pte) permits(k mem.AccessKind) bool {
	switch k {
	case mem.AccessRead:
		return p&pteR != 0
	case mem.AccessWrite:
		return p&pteW != 0
	case mem.AccessExec:
		return p&pteX != 0
	default:
		return false
	}
}

func (p pte) withAccessed(k mem.AccessKind) pte {
	p |= pteA
	if k == mem.AccessWrite {
		p |= pteD
	}
	return p
}

// splitVA breaks a virtual address into its L1 index, L2 index and
// in-page offset.
func splitVA(va uint32) (l1idx, l2idx, off uint32) {
	return (va >> (l2Bits + 12)) & l1Mask, (va >> 12) & l2Mask, va & 0xfff
}

func vpnOf(va uint32) uint32 { return va >> 12 }

func vpnFromIdx(l1idx, l2idx uint32) uint32 { return (l1idx << l2Bits) | l2idx }

func idxFromVPN(vpn uint32) (l1idx, l2idx uint32) { return (vpn >> l2Bits) & l1Mask, vpn & l2Mask }
