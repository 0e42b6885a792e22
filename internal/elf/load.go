package elf

import (
	"encoding/binary"
	"fmt"

	"github.com/Ewad245/RISCV32/internal/contiguous"
	"github.com/Ewad245/RISCV32/internal/paged"
)

const (
	pageSize = 4096

	// stackSize is the fixed 8 KiB user stack spec.md §4.6 EXEC maps.
	stackSize = 8192

	// pagedStackTop is the fixed virtual address spec.md §4.6 fixes the
	// stack's top at for the paged backend, whose sparse 4 GiB VA space
	// makes a fixed high address essentially free. The contiguous backend
	// cannot use this address (its flat per-process block would have to
	// grow to ~2 GiB to cover it); see LoadContiguous.
	pagedStackTop = 0x7FFFF000

	// noXAboveAddr is the policy boundary spec.md §4.3/§9 documents as one
	// code path's behavior, not an ELF-mandated rule: any mapped range
	// ending above this address has its X permission forced off.
	noXAboveAddr = 0x7FFFFFF0
)

func pageAlignDown(x uint32) uint32 { return x &^ (pageSize - 1) }
func pageAlignUp(x uint32) uint32   { return pageAlignDown(x + pageSize - 1) }
func align16Down(x uint32) uint32   { return x &^ 15 }

// buildStack lays out argv strings followed by the argv pointer array at the
// top of an 8 KiB stack image, 16-byte-aligning SP after each stage (spec.md
// §4.6 EXEC: "copy argv strings and then a pointer array onto that stack,
// 16-byte-aligning SP at each stage"). base is the stack region's lowest
// virtual address; the returned sp/argvAddr are virtual addresses within
// [base, base+stackSize).
func buildStack(base uint32, argv []string) (image []byte, sp, argvAddr uint32, err error) {
	image = make([]byte, stackSize)
	cur := base + stackSize

	ptrs := make([]uint32, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		n := uint32(len(s)) + 1
		if cur-base < n {
			return nil, 0, 0, fmt.Errorf("elf: argv strings overflow the %d-byte stack", stackSize)
		}
		cur -= n
		off := cur - base
		copy(image[off:], s)
		image[off+uint32(len(s))] = 0
		ptrs[i] = cur
	}
	cur = align16Down(cur)

	arrBytes := (uint32(len(argv)) + 1) * 4
	if cur-base < arrBytes {
		return nil, 0, 0, fmt.Errorf("elf: argv pointer array overflows the %d-byte stack", stackSize)
	}
	cur -= arrBytes
	cur = align16Down(cur)
	off := cur - base
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(image[off+uint32(i)*4:], p)
	}
	binary.LittleEndian.PutUint32(image[off+uint32(len(ptrs))*4:], 0)

	return image, cur, cur, nil
}

// segmentImage builds the page-aligned byte image for one PT_LOAD segment:
// file content copied to its vaddr offset, the rest zero-filled, spanning
// [pageAlignDown(vaddr), pageAlignUp(vaddr+memsz)).
func segmentImage(s Segment) (base uint32, buf []byte, flags paged.RegionFlags) {
	base = pageAlignDown(s.VAddr)
	end := pageAlignUp(s.VAddr + s.MemSize)
	buf = make([]byte, end-base)
	copy(buf[s.VAddr-base:], s.Data)
	flags = paged.RegionFlags{R: s.R, W: s.W, X: s.X}
	if end > noXAboveAddr {
		flags.X = false
	}
	return base, buf, flags
}

// LoadPaged parses elfData and materializes a fresh paged address space for
// pid: every PT_LOAD segment eagerly mapped via LoadSegment (ELF content
// must be resident up front regardless of the MMU's configured demand/eager
// fetch policy, spec.md §4.3), plus an 8 KiB stack fixed at pagedStackTop
// holding argv.
func LoadPaged(m *paged.MMU, pid int, elfData []byte, argv []string) (as *paged.AddressSpace, entry, sp, argvAddr uint32, err error) {
	img, err := Parse(elfData)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	as, err = m.NewAddressSpace(pid)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	for _, seg := range img.Segments {
		base, buf, flags := segmentImage(seg)
		if err := m.LoadSegment(as, base, uint32(len(buf)), flags, buf); err != nil {
			_ = as.Destroy()
			return nil, 0, 0, 0, err
		}
	}

	stackBase := uint32(pagedStackTop - stackSize)
	stackImg, stackSP, stackArgv, err := buildStack(stackBase, argv)
	if err != nil {
		_ = as.Destroy()
		return nil, 0, 0, 0, err
	}
	if err := m.LoadSegment(as, stackBase, stackSize, paged.RegionFlags{R: true, W: true}, stackImg); err != nil {
		_ = as.Destroy()
		return nil, 0, 0, 0, err
	}

	return as, img.Entry, stackSP, stackArgv, nil
}

// LoadContiguous parses elfData and materializes a fresh contiguous address
// space for pid. Unlike the paged backend, the fixed pagedStackTop address
// is not feasible here (it would force every process's flat block to cover
// ~2 GiB); instead the 8 KiB stack is placed immediately above the highest
// PT_LOAD segment's end address within the same block.
func LoadContiguous(m *contiguous.MMU, pid int, elfData []byte, argv []string) (sp *contiguous.Space, entry, spVal, argvAddr uint32, err error) {
	img, err := Parse(elfData)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	var highEnd uint32
	for _, seg := range img.Segments {
		end := pageAlignUp(seg.VAddr + seg.MemSize)
		if end > highEnd {
			highEnd = end
		}
	}
	stackBase := highEnd
	total := stackBase + stackSize

	space, err := m.Allocate(pid, total)
	if err != nil {
		return nil, 0, 0, 0, err
	}

	image := make([]byte, total)
	for _, seg := range img.Segments {
		copy(image[seg.VAddr:], seg.Data)
	}

	stackImg, stackSP, stackArgv, err := buildStack(stackBase, argv)
	if err != nil {
		_ = space.Destroy()
		return nil, 0, 0, 0, err
	}
	copy(image[stackBase:], stackImg)

	if err := m.LoadImage(pid, image); err != nil {
		_ = space.Destroy()
		return nil, 0, 0, 0, err
	}

	return space, img.Entry, stackSP, stackArgv, nil
}
