// Package contiguous implements the contiguous base/limit MMU of spec.md
// §4.2.1: a hole/allocated-block list with FIRST_FIT or BEST_FIT placement
// and slide-to-zero compaction on external fragmentation.
package contiguous

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/Ewad245/RISCV32/internal/mem"
)

// Strategy selects how Allocate picks a hole.
type Strategy int

const (
	FirstFit Strategy = iota
	BestFit
)

// Hole is a free region, ordered by Start in the hole tree.
type Hole struct {
	Start, Size uint32
}

// Block is an allocated region belonging to one task, ordered by Start in
// the allocated tree.
type Block struct {
	PID         int
	Start, Size uint32
}

func lessByStart[T interface{ startOf() uint32 }](a, b T) bool {
	return a.startOf() < b.startOf()
}

func (h Hole) startOf() uint32  { return h.Start }
func (b Block) startOf() uint32 { return b.Start }

// SegfaultError reports a virtual address at or beyond the current task's
// limit.
type SegfaultError struct {
	VA    uint32
	Limit uint32
}

func (e *SegfaultError) Error() string {
	return fmt.Sprintf("contiguous: segfault va=0x%08x >= limit=0x%08x", e.VA, e.Limit)
}

// OutOfMemoryError is returned by Allocate when no hole (even after
// compaction) is large enough.
type OutOfMemoryError struct {
	Requested uint32
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("contiguous: out of memory, requested %d bytes", e.Requested)
}

// MMU is the global (machine-wide) contiguous allocator plus base/limit
// translation context for whichever task is currently dispatched.
type MMU struct {
	mu sync.Mutex

	ram      *mem.RAM
	uart     *mem.UART
	total    uint32
	strategy Strategy

	holes  *btree.BTreeG[Hole]
	blocks *btree.BTreeG[Block]
	byPID  map[int]Block

	curPID          int
	curBase, curLim uint32
}

// New creates a contiguous MMU over all of ram's bytes.
func New(ram *mem.RAM, strategy Strategy, uart *mem.UART) *MMU {
	m := &MMU{
		ram:      ram,
		uart:     uart,
		total:    ram.Size(),
		strategy: strategy,
		holes:    btree.NewG(32, lessByStart[Hole]),
		blocks:   btree.NewG(32, lessByStart[Block]),
		byPID:    make(map[int]Block),
		curLim:   ram.Size(),
	}
	m.holes.ReplaceOrInsert(Hole{Start: 0, Size: ram.Size()})
	return m
}

// Space is the opaque per-task handle returned by Allocate; it satisfies
// task.AddressSpace.
type Space struct {
	mmu *MMU
	PID int
}

// Destroy frees this task's block, coalescing it back into the hole list.
func (s *Space) Destroy() error {
	return s.mmu.free(s.PID)
}

// Allocate reserves size bytes for pid, compacting once if fragmentation
// (not total capacity) is the blocker, per spec.md §4.2.1.
func (m *MMU) Allocate(pid int, size uint32) (*Space, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tryAllocateLocked(pid, size) {
		return &Space{mmu: m, PID: pid}, nil
	}

	var free uint32
	m.holes.Ascend(func(h Hole) bool {
		free += h.Size
		return true
	})
	if free < size {
		return nil, &OutOfMemoryError{Requested: size}
	}

	m.compactLocked()

	if !m.tryAllocateLocked(pid, size) {
		return nil, &OutOfMemoryError{Requested: size}
	}
	return &Space{mmu: m, PID: pid}, nil
}

func (m *MMU) tryAllocateLocked(pid int, size uint32) bool {
	var chosen Hole
	found := false

	switch m.strategy {
	case FirstFit:
		m.holes.Ascend(func(h Hole) bool {
			if h.Size >= size {
				chosen = h
				found = true
				return false
			}
			return true
		})
	case BestFit:
		best := Hole{Size: ^uint32(0)}
		m.holes.Ascend(func(h Hole) bool {
			if h.Size >= size && h.Size < best.Size {
				best = h
				found = true
			}
			return true
		})
		chosen = best
	}

	if !found {
		return false
	}

	m.holes.Delete(chosen)
	if chosen.Size > size {
		m.holes.ReplaceOrInsert(Hole{Start: chosen.Start + size, Size: chosen.Size - size})
	}

	blk := Block{PID: pid, Start: chosen.Start, Size: size}
	m.blocks.ReplaceOrInsert(blk)
	m.byPID[pid] = blk
	return true
}

func (m *MMU) free(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blk, ok := m.byPID[pid]
	if !ok {
		return fmt.Errorf("contiguous: free: pid %d has no allocation", pid)
	}
	delete(m.byPID, pid)
	m.blocks.Delete(blk)

	m.insertHoleCoalescedLocked(Hole{Start: blk.Start, Size: blk.Size})

	if m.curPID == pid {
		m.curPID = 0
		m.curBase, m.curLim = 0, m.total
	}
	return nil
}

// insertHoleCoalescedLocked inserts a freed hole, merging it with any
// adjacent hole so the hole list never carries two touching entries.
func (m *MMU) insertHoleCoalescedLocked(h Hole) {
	// Find a hole ending exactly at h.Start (left neighbor).
	var leftNeighbor *Hole
	m.holes.AscendRange(Hole{Start: 0}, h, func(cand Hole) bool {
		if cand.Start+cand.Size == h.Start {
			c := cand
			leftNeighbor = &c
		}
		return true
	})
	if leftNeighbor != nil {
		m.holes.Delete(*leftNeighbor)
		h.Start = leftNeighbor.Start
		h.Size += leftNeighbor.Size
	}

	// Find a hole starting exactly at h.Start+h.Size (right neighbor).
	if right, ok := m.holes.Get(Hole{Start: h.Start + h.Size}); ok {
		m.holes.Delete(right)
		h.Size += right.Size
	}

	m.holes.ReplaceOrInsert(h)
}

// compactLocked slides every allocated block toward address 0, preserving
// order and content, then rebuilds a single trailing hole (spec.md §8
// property 7, scenario S4).
func (m *MMU) compactLocked() {
	var ordered []Block
	m.blocks.Ascend(func(b Block) bool {
		ordered = append(ordered, b)
		return true
	})

	var cursor uint32
	newBlocks := btree.NewG(32, lessByStart[Block])
	for _, b := range ordered {
		if b.Start != cursor {
			_ = m.ram.CopyWithin(cursor, b.Start, b.Size)
		}
		b.Start = cursor
		newBlocks.ReplaceOrInsert(b)
		m.byPID[b.PID] = b
		cursor += b.Size
	}
	m.blocks = newBlocks

	m.holes = btree.NewG(32, lessByStart[Hole])
	if cursor < m.total {
		m.holes.ReplaceOrInsert(Hole{Start: cursor, Size: m.total - cursor})
	}

	if m.curPID != 0 {
		if blk, ok := m.byPID[m.curPID]; ok {
			m.curBase, m.curLim = blk.Start, blk.Size
		}
	}
}

// SwitchContext sets the current (base, limit) translation context to pid's
// block, or (0, total) outside any task (pid == 0).
func (m *MMU) SwitchContext(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pid == 0 {
		m.curPID = 0
		m.curBase, m.curLim = 0, m.total
		return nil
	}
	blk, ok := m.byPID[pid]
	if !ok {
		return fmt.Errorf("contiguous: SwitchContext: pid %d has no allocation", pid)
	}
	m.curPID = pid
	m.curBase = blk.Start
	m.curLim = blk.Size
	return nil
}

func (m *MMU) translate(va uint32, kind mem.AccessKind) (uint32, error) {
	m.mu.Lock()
	base, limit := m.curBase, m.curLim
	m.mu.Unlock()

	if va >= limit {
		return 0, &SegfaultError{VA: va, Limit: limit}
	}
	return base + va, nil
}

// HoleCount reports the number of disjoint free holes, used by tests to
// check scenario S4's "exactly one hole remains" property.
func (m *MMU) HoleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holes.Len()
}

// BlockOf returns the allocated block for pid, for tests and observation.
func (m *MMU) BlockOf(pid int) (Block, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byPID[pid]
	return b, ok
}

// Holes returns a snapshot of every free region in Start order, the "hole
// list" half of spec.md §6's observation surface for the contiguous
// backend.
func (m *MMU) Holes() []Hole {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Hole, 0, m.holes.Len())
	m.holes.Ascend(func(h Hole) bool {
		out = append(out, h)
		return true
	})
	return out
}

// Blocks returns a snapshot of every allocated region in Start order, the
// "allocation list" half of spec.md §6's observation surface for the
// contiguous backend.
func (m *MMU) Blocks() []Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Block, 0, m.blocks.Len())
	m.blocks.Ascend(func(b Block) bool {
		out = append(out, b)
		return true
	})
	return out
}

// LoadImage bulk-copies a fully-constructed program image (code, data,
// zero-filled gaps and the initial stack, all pre-assembled by the caller)
// into pid's block in one call, mirroring the paged MMU's LoadSegment bulk
// primitive so the ELF/argv loader never has to special-case the backend.
func (m *MMU) LoadImage(pid int, image []byte) error {
	m.mu.Lock()
	blk, ok := m.byPID[pid]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("contiguous: LoadImage: pid %d has no allocation", pid)
	}
	if uint32(len(image)) > blk.Size {
		return fmt.Errorf("contiguous: LoadImage: image of %d bytes exceeds block size %d", len(image), blk.Size)
	}
	return m.ram.CopyFrom(blk.Start, image)
}

// Fork allocates a same-size block for childPID and duplicates parentPID's
// bytes into it, the contiguous-mode equivalent of the paged MMU's
// CopyAddressSpace.
func (m *MMU) Fork(parentPID, childPID int) (*Space, error) {
	m.mu.Lock()
	parent, ok := m.byPID[parentPID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("contiguous: Fork: parent pid %d has no allocation", parentPID)
	}

	child, err := m.Allocate(childPID, parent.Size)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	parent, ok = m.byPID[parentPID]
	childBlk := m.byPID[childPID]
	m.mu.Unlock()
	if !ok {
		_ = m.free(childPID)
		return nil, fmt.Errorf("contiguous: Fork: parent pid %d vanished mid-fork", parentPID)
	}

	data, err := m.ram.Slice(parent.Start, parent.Size)
	if err != nil {
		_ = m.free(childPID)
		return nil, err
	}
	if err := m.ram.CopyFrom(childBlk.Start, data); err != nil {
		_ = m.free(childPID)
		return nil, err
	}
	return child, nil
}

// Rebind atomically moves s's block from its current PID slot to newPID,
// freeing (coalescing back into the hole list) whatever block already
// occupied newPID's slot rather than rejecting the call. EXEC's atomic swap
// needs exactly this: a new block is built under a synthetic negative
// scratch PID so construction failures (OOM, bad ELF) leave the real
// process's current block completely untouched; on success it is rebound
// onto the real PID, freeing the process's old block in the same locked
// step (unlike the paged MMU, freeing a contiguous block is cheap enough —
// one hole-list insert — to do inline rather than deferring to the caller).
func (m *MMU) Rebind(s *Space, newPID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	blk, ok := m.byPID[s.PID]
	if !ok {
		return fmt.Errorf("contiguous: Rebind: pid %d has no allocation", s.PID)
	}
	delete(m.byPID, s.PID)
	m.blocks.Delete(blk)

	if old, exists := m.byPID[newPID]; exists {
		delete(m.byPID, newPID)
		m.blocks.Delete(old)
		m.insertHoleCoalescedLocked(Hole{Start: old.Start, Size: old.Size})
		if m.curPID == newPID {
			m.curPID = 0
			m.curBase, m.curLim = 0, m.total
		}
	}

	blk.PID = newPID
	m.byPID[newPID] = blk
	m.blocks.ReplaceOrInsert(blk)
	s.PID = newPID
	return nil
}

var _ mem.Memory = (*MMU)(nil)

func (m *MMU) ReadByte(va uint32) (byte, error) {
	if mem.InUARTWindow(va) {
		return m.uart.ReadByte(va)
	}
	pa, err := m.translate(va, mem.AccessRead)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadByte(pa)
}

func (m *MMU) ReadHalf(va uint32) (uint16, error) {
	if mem.InUARTWindow(va) {
		lo, err := m.uart.ReadByte(va)
		return uint16(lo), err
	}
	pa, err := m.translate(va, mem.AccessRead)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadHalf(pa)
}

func (m *MMU) ReadWord(va uint32) (uint32, error) {
	if mem.InUARTWindow(va) {
		lo, err := m.uart.ReadByte(va)
		return uint32(lo), err
	}
	pa, err := m.translate(va, mem.AccessExec)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadWord(pa)
}

func (m *MMU) WriteByte(va uint32, v byte) error {
	if mem.InUARTWindow(va) {
		return m.uart.WriteByte(va, v)
	}
	pa, err := m.translate(va, mem.AccessWrite)
	if err != nil {
		return err
	}
	return m.ram.WriteByte(pa, v)
}

func (m *MMU) WriteHalf(va uint32, v uint16) error {
	if mem.InUARTWindow(va) {
		return m.uart.WriteByte(va, byte(v))
	}
	pa, err := m.translate(va, mem.AccessWrite)
	if err != nil {
		return err
	}
	return m.ram.WriteHalf(pa, v)
}

func (m *MMU) WriteWord(va uint32, v uint32) error {
	if mem.InUARTWindow(va) {
		return m.uart.WriteByte(va, byte(v))
	}
	pa, err := m.translate(va, mem.AccessWrite)
	if err != nil {
		return err
	}
	return m.ram.WriteWord(pa, v)
}

func (m *MMU) WriteByteToVirtual(va uint32, v byte) error {
	pa, err := m.translate(va, mem.AccessWrite)
	if err != nil {
		return err
	}
	return m.ram.WriteByte(pa, v)
}
