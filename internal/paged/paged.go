// Package paged implements the Sv32-style two-level paged MMU of spec.md
// §4.2.2: a 1024x1024 directory of 4KiB pages per address space, a
// machine-wide frame allocator with refcounting for fork-time page sharing,
// and a pluggable eviction policy (CLOCK/LRU/RANDOM) that runs when the
// frame pool is exhausted.
package paged

import (
	"fmt"
	"sync"

	"github.com/Ewad245/RISCV32/internal/mem"
)

// FetchPolicy selects when a virtual page's backing frame is materialized.
type FetchPolicy int

const (
	// Demand allocates and zero-fills a frame the first time a VPN is
	// touched; MapRegion only records the region's permissions.
	Demand FetchPolicy = iota
	// Eager allocates and zero-fills every page in a region up front.
	Eager
)

// RegionFlags is the permission set recorded for a declared VPN range,
// consulted on a demand fault when no leaf PTE exists yet.
type RegionFlags struct {
	R, W, X bool
}

// MMU is the machine-wide paged memory manager: the frame allocator, the
// eviction policy, the UART device and the registry of every live address
// space (needed so eviction can reach into whichever AS currently owns the
// victim frame and invalidate its mapping).
type MMU struct {
	mu sync.Mutex

	ram    *mem.RAM
	uart   *mem.UART
	frames *FrameAllocator
	policy Policy
	fetch  FetchPolicy

	asByPID map[int]*AddressSpace
	shared  map[string]int32 // key -> ppn, first-use-creates registry
	mapCnt  map[int32]int32  // ppn -> number of active MapShared mappings

	curPID int
}

// New creates a paged MMU over ram's first numFrames*PageSize bytes.
func New(ram *mem.RAM, numFrames int, policyName string, fetch FetchPolicy, uart *mem.UART) *MMU {
	return &MMU{
		ram:     ram,
		uart:    uart,
		frames:  NewFrameAllocator(numFrames),
		policy:  NewPolicy(policyName),
		fetch:   fetch,
		asByPID: make(map[int]*AddressSpace),
		shared:  make(map[string]int32),
		mapCnt:  make(map[int32]int32),
	}
}

// FreeFrames reports the number of unallocated physical frames, used by
// observe snapshots and the frame-conservation invariant tests.
func (m *MMU) FreeFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames.FreeCount()
}

// TotalFrames reports the fixed physical frame capacity.
func (m *MMU) TotalFrames() int { return m.frames.Total() }

// FrameOwners returns a snapshot of every frame's (pid, vpn) ownership, or
// the zero Owner for a currently-free frame, in ppn order. This is the
// `FrameOwner[]` array spec.md §6's observation surface names for the paged
// backend.
func (m *MMU) FrameOwners() []Owner {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.frames.Total()
	out := make([]Owner, total)
	for ppn := 0; ppn < total; ppn++ {
		if !m.frames.IsFree(int32(ppn)) {
			out[ppn] = m.frames.Owner(int32(ppn))
		}
	}
	return out
}

// AddressSpace is one task's page directory: a dedicated physical frame
// holding 1024 L1 entries, each either invalid or pointing at an L2 table
// frame holding 1024 leaf entries. It satisfies task.AddressSpace.
type AddressSpace struct {
	pid      int
	dirFrame int32
	mmu      *MMU
	regions  map[uint32]RegionFlags // vpn -> declared permissions, for demand faults
}

// Destroy walks every L1/L2 entry, releases the data frames (honoring
// shared refcounts) and the directory frames themselves, then forgets this
// address space (spec.md §4.2.2 "address-space destruction").
func (as *AddressSpace) Destroy() error {
	m := as.mmu
	m.mu.Lock()
	defer m.mu.Unlock()

	for l1idx := uint32(0); l1idx < 1<<l1Bits; l1idx++ {
		l1pte, err := as.readL1Locked(l1idx)
		if err != nil {
			return err
		}
		if !l1pte.valid() {
			continue
		}
		l2frame := l1pte.ppn()
		for l2idx := uint32(0); l2idx < 1<<l2Bits; l2idx++ {
			leaf, err := as.readL2Locked(l2frame, l2idx)
			if err != nil {
				return err
			}
			if !leaf.valid() {
				continue
			}
			m.dropMappingLocked(leaf.ppn())
		}
		m.frames.FreeFrame(l2frame)
	}
	m.frames.FreeFrame(as.dirFrame)
	// Only remove the asByPID entry if it still points at this exact
	// AddressSpace: EXEC's Rebind can have already moved a different,
	// newly-built AddressSpace into as.pid's slot before the evicted old
	// one (this receiver) is destroyed, and that slot must not be clobbered.
	if m.asByPID[as.pid] == as {
		delete(m.asByPID, as.pid)
		if m.curPID == as.pid {
			m.curPID = 0
		}
	}
	return nil
}

func (m *MMU) forgetSharedLocked(ppn int32) {
	delete(m.mapCnt, ppn)
	for k, v := range m.shared {
		if v == ppn {
			delete(m.shared, k)
		}
	}
}

// dropMappingLocked releases one reference to ppn, whether it is an
// ordinary private frame or one tracked by the shared-frame registry's
// mapping count, returning it to the free set once nothing references it
// anymore.
func (m *MMU) dropMappingLocked(ppn int32) {
	if cnt, ok := m.mapCnt[ppn]; ok {
		if cnt <= 1 {
			delete(m.mapCnt, ppn)
			if freed := m.frames.FreeFrame(ppn); freed {
				m.policy.OnUnmap(ppn)
				m.forgetSharedLocked(ppn)
			}
		} else {
			m.mapCnt[ppn] = cnt - 1
			m.frames.FreeFrame(ppn)
		}
		return
	}
	if freed := m.frames.FreeFrame(ppn); freed {
		m.policy.OnUnmap(ppn)
	}
}

// NewAddressSpace allocates a fresh, empty address space for pid.
func (m *MMU) NewAddressSpace(pid int) (*AddressSpace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirFrame, err := m.allocFrameLocked(pageTableOwner)
	if err != nil {
		return nil, err
	}
	as := &AddressSpace{pid: pid, dirFrame: dirFrame, mmu: m, regions: make(map[uint32]RegionFlags)}
	m.asByPID[pid] = as
	return as, nil
}

// allocFrameLocked claims a frame for owner, evicting one resident frame
// first if the pool is exhausted. Caller holds m.mu.
func (m *MMU) allocFrameLocked(owner Owner) (int32, error) {
	if ppn, ok := m.frames.AllocFrame(owner); ok {
		return ppn, nil
	}
	victim, ok := m.policy.PickVictim(func(ppn int32) bool {
		o := m.frames.Owner(ppn)
		return o.PID >= 0 && m.frames.RefCount(ppn) == 1
	})
	if !ok {
		return 0, &OOMFrameError{}
	}
	m.evictLocked(victim)
	ppn, ok := m.frames.AllocFrame(owner)
	if !ok {
		return 0, &OOMFrameError{}
	}
	return ppn, nil
}

// evictLocked reclaims victim's single resident mapping: it looks up the
// owning address space via the frame's reverse map, invalidates that leaf
// PTE, and returns the frame to the free set.
func (m *MMU) evictLocked(victim int32) {
	owner := m.frames.Owner(victim)
	owningAS, ok := m.asByPID[int(owner.PID)]
	if !ok {
		return
	}
	l1idx, l2idx := idxFromVPN(uint32(owner.VPN))
	l1pte, err := owningAS.readL1Locked(l1idx)
	if err != nil || !l1pte.valid() {
		return
	}
	_ = owningAS.writeL2Locked(l1pte.ppn(), l2idx, 0)
	m.policy.OnUnmap(victim)
	m.frames.FreeFrame(victim)
}

func (as *AddressSpace) frameAddr(ppn int32, offset uint32) uint32 {
	return uint32(ppn)*PageSize + offset
}

func (as *AddressSpace) readL1Locked(idx uint32) (pte, error) {
	w, err := as.mmu.ram.ReadWord(as.frameAddr(as.dirFrame, idx*4))
	return pte(w), err
}

func (as *AddressSpace) writeL1Locked(idx uint32, p pte) error {
	return as.mmu.ram.WriteWord(as.frameAddr(as.dirFrame, idx*4), uint32(p))
}

func (as *AddressSpace) readL2Locked(l2frame int32, idx uint32) (pte, error) {
	w, err := as.mmu.ram.ReadWord(as.frameAddr(l2frame, idx*4))
	return pte(w), err
}

func (as *AddressSpace) writeL2Locked(l2frame int32, idx uint32, p pte) error {
	return as.mmu.ram.WriteWord(as.frameAddr(l2frame, idx*4), uint32(p))
}

// getOrCreateL2Locked returns the L2 table frame for l1idx, allocating and
// zero-filling it if allowCreate and no entry exists yet.
func (as *AddressSpace) getOrCreateL2Locked(l1idx uint32, allowCreate bool) (int32, error) {
	l1pte, err := as.readL1Locked(l1idx)
	if err != nil {
		return 0, err
	}
	if l1pte.valid() {
		return l1pte.ppn(), nil
	}
	if !allowCreate {
		return 0, &mem.FaultError{Addr: l1idx << (l2Bits + 12), Kind: mem.AccessRead, Reason: "unmapped L1 directory entry"}
	}
	frame, err := as.mmu.allocFrameLocked(pageTableOwner)
	if err != nil {
		return 0, err
	}
	as.mmu.ram.Zero(uint32(frame)*PageSize, PageSize)
	if err := as.writeL1Locked(l1idx, makeDirPTE(frame)); err != nil {
		return 0, err
	}
	return frame, nil
}

// DeclareRegion records flags for every VPN covering [va, va+length) without
// allocating frames; used by Demand-fetch callers (spec.md §4.2.2 "DEMAND:
// ... MapRegion only records permissions").
func (as *AddressSpace) DeclareRegion(va, length uint32, flags RegionFlags) {
	as.mmu.mu.Lock()
	defer as.mmu.mu.Unlock()
	start := vpnOf(va)
	end := vpnOf(va + length - 1)
	for vpn := start; vpn <= end; vpn++ {
		as.regions[vpn] = flags
	}
}

func (as *AddressSpace) regionFlags(vpn uint32) RegionFlags {
	if f, ok := as.regions[vpn]; ok {
		return f
	}
	return RegionFlags{R: true, W: true}
}

// MapRegion allocates and installs leaf PTEs for [va, va+length) with the
// given permissions. Under Eager fetch every page is allocated and
// zero-filled immediately; under Demand this only declares the region, per
// spec.md §4.2.2.
func (m *MMU) MapRegion(as *AddressSpace, va, length uint32, flags RegionFlags) error {
	if m.fetch == Demand {
		as.DeclareRegion(va, length, flags)
		return nil
	}
	return m.LoadSegment(as, va, length, flags, nil)
}

// LoadSegment eagerly allocates and zero-fills every page covering
// [va, va+length), optionally copying data into the start of the region,
// regardless of the MMU's configured fetch policy. The ELF loader and EXEC's
// stack/argv setup use this directly: file and argv content must be
// materialized up front, independent of how ordinary demand faults are
// serviced.
func (m *MMU) LoadSegment(as *AddressSpace, va, length uint32, flags RegionFlags, data []byte) error {
	as.DeclareRegion(va, length, flags)

	m.mu.Lock()
	defer m.mu.Unlock()

	start := vpnOf(va)
	end := vpnOf(va + length - 1)
	for vpn := start; vpn <= end; vpn++ {
		l1idx, l2idx := idxFromVPN(vpn)
		l2frame, err := as.getOrCreateL2Locked(l1idx, true)
		if err != nil {
			return err
		}
		leaf, err := as.readL2Locked(l2frame, l2idx)
		if err != nil {
			return err
		}
		var ppn int32
		if leaf.valid() {
			ppn = leaf.ppn()
		} else {
			ppn, err = m.allocFrameLocked(Owner{PID: int32(as.pid), VPN: int32(vpn)})
			if err != nil {
				return err
			}
			m.ram.Zero(uint32(ppn)*PageSize, PageSize)
			m.policy.OnMap(ppn)
			if err := as.writeL2Locked(l2frame, l2idx, makeLeafPTE(flags.R, flags.W, flags.X, false, ppn)); err != nil {
				return err
			}
		}
		if data != nil {
			pageVA := vpn * PageSize
			var lo, hi uint32
			if pageVA > va {
				lo = 0
			} else {
				lo = va - pageVA
			}
			hi = PageSize
			if pageVA+PageSize > va+length {
				hi = (va + length) - pageVA
			}
			if lo < hi {
				srcOff := (pageVA + lo) - va
				if int(srcOff) < len(data) {
					end := srcOff + (hi - lo)
					if end > uint32(len(data)) {
						end = uint32(len(data))
					}
					if err := m.ram.CopyFrom(uint32(ppn)*PageSize+lo, data[srcOff:end]); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// SwitchContext sets the currently dispatched address space, used by
// Read/Write to resolve "current task" translations.
func (m *MMU) SwitchContext(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pid == 0 {
		m.curPID = 0
		return nil
	}
	if _, ok := m.asByPID[pid]; !ok {
		return fmt.Errorf("paged: SwitchContext: pid %d has no address space", pid)
	}
	m.curPID = pid
	return nil
}

// Rebind atomically moves as from its current PID slot to newPID. Any
// address space already occupying newPID's slot is evicted (returned, not
// destroyed — Destroy takes m.mu itself, so the caller must call it after
// Rebind returns) rather than rejected, because EXEC's atomic swap needs
// exactly this: the new address space is built under a synthetic negative
// scratch PID so a failure partway through (OOM_FRAME, BAD_ELF) leaves the
// real process's current address space completely untouched; on success it
// is rebound onto the real PID, evicting (and the caller then destroys) the
// process's old address space in the same step.
func (m *MMU) Rebind(as *AddressSpace, newPID int) (evicted *AddressSpace, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.asByPID[as.pid]; !ok {
		return nil, fmt.Errorf("paged: Rebind: pid %d has no address space", as.pid)
	}
	delete(m.asByPID, as.pid)
	evicted = m.asByPID[newPID]
	as.pid = newPID
	m.asByPID[newPID] = as
	return evicted, nil
}

// ensureResident is the page-fault path of spec.md §4.2.2 steps 1-4: walk
// the directory, lazily create the L2 table under Demand, service a missing
// leaf under Demand (allocating/evicting as needed), and enforce the
// permission bits on a resolved leaf unless bypassPerm is set.
func (m *MMU) ensureResident(as *AddressSpace, va uint32, access mem.AccessKind, bypassPerm bool) (int32, error) {
	l1idx, l2idx, _ := splitVA(va)
	l2frame, err := as.getOrCreateL2Locked(l1idx, m.fetch == Demand)
	if err != nil {
		return 0, err
	}
	leaf, err := as.readL2Locked(l2frame, l2idx)
	if err != nil {
		return 0, err
	}
	if leaf.valid() {
		if !bypassPerm && !leaf.permits(access) {
			return 0, &mem.ProtectionFaultError{Addr: va, Kind: access}
		}
		ppn := leaf.ppn()
		m.policy.OnAccess(ppn)
		if err := as.writeL2Locked(l2frame, l2idx, leaf.withAccessed(access)); err != nil {
			return 0, err
		}
		return ppn, nil
	}

	if m.fetch != Demand {
		return 0, &mem.FaultError{Addr: va, Kind: access, Reason: "unmapped page"}
	}

	flags := as.regionFlags(vpnOf(va))
	ppn, err := m.allocFrameLocked(Owner{PID: int32(as.pid), VPN: int32(vpnOf(va))})
	if err != nil {
		return 0, err
	}
	m.ram.Zero(uint32(ppn)*PageSize, PageSize)
	m.policy.OnMap(ppn)
	if err := as.writeL2Locked(l2frame, l2idx, makeLeafPTE(flags.R, flags.W, flags.X, false, ppn).withAccessed(access)); err != nil {
		return 0, err
	}
	return ppn, nil
}

// CopyAddressSpace implements fork's copy-on-fork semantics (spec.md
// §4.2.2): shared leaves are refcounted rather than duplicated, private
// leaves are deep-copied into freshly allocated frames. On any allocation
// failure every frame already claimed for childPID is rolled back and the
// call reports OOM_FRAME.
func (m *MMU) CopyAddressSpace(parent *AddressSpace, childPID int) (child *AddressSpace, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	childDir, ok := m.frames.AllocFrame(pageTableOwner)
	if !ok {
		return nil, &OOMFrameError{}
	}
	m.ram.Zero(uint32(childDir)*PageSize, PageSize)

	child = &AddressSpace{pid: childPID, dirFrame: childDir, mmu: m, regions: make(map[uint32]RegionFlags)}
	for vpn, f := range parent.regions {
		child.regions[vpn] = f
	}

	var claimed []int32
	rollback := func() {
		for _, ppn := range claimed {
			if freed := m.frames.FreeFrame(ppn); freed {
				m.policy.OnUnmap(ppn)
			}
		}
		m.frames.FreeFrame(childDir)
	}

	for l1idx := uint32(0); l1idx < 1<<l1Bits; l1idx++ {
		l1pte, rerr := parent.readL1Locked(l1idx)
		if rerr != nil {
			err = rerr
			rollback()
			return nil, err
		}
		if !l1pte.valid() {
			continue
		}
		parentL2 := l1pte.ppn()

		childL2, ok := m.frames.AllocFrame(pageTableOwner)
		if !ok {
			rollback()
			return nil, &OOMFrameError{}
		}
		claimed = append(claimed, childL2)
		m.ram.Zero(uint32(childL2)*PageSize, PageSize)
		if werr := child.writeL1Locked(l1idx, makeDirPTE(childL2)); werr != nil {
			err = werr
			rollback()
			return nil, err
		}

		for l2idx := uint32(0); l2idx < 1<<l2Bits; l2idx++ {
			leaf, rerr := parent.readL2Locked(parentL2, l2idx)
			if rerr != nil {
				err = rerr
				rollback()
				return nil, err
			}
			if !leaf.valid() {
				continue
			}
			ppn := leaf.ppn()
			if leaf.shared() {
				m.frames.IncRef(ppn)
				if werr := child.writeL2Locked(childL2, l2idx, leaf); werr != nil {
					err = werr
					rollback()
					return nil, err
				}
				continue
			}

			vpn := vpnFromIdx(l1idx, l2idx)
			newPPN, aerr := m.allocFrameLocked(Owner{PID: int32(childPID), VPN: int32(vpn)})
			if aerr != nil {
				err = aerr
				rollback()
				return nil, err
			}
			claimed = append(claimed, newPPN)
			src, serr := m.ram.Slice(uint32(ppn)*PageSize, PageSize)
			if serr != nil {
				err = serr
				rollback()
				return nil, err
			}
			if cerr := m.ram.CopyFrom(uint32(newPPN)*PageSize, src); cerr != nil {
				err = cerr
				rollback()
				return nil, err
			}
			m.policy.OnMap(newPPN)
			newLeaf := makeLeafPTE(leaf&pteR != 0, leaf&pteW != 0, leaf&pteX != 0, false, newPPN)
			if werr := child.writeL2Locked(childL2, l2idx, newLeaf); werr != nil {
				err = werr
				rollback()
				return nil, err
			}
		}
	}

	m.asByPID[childPID] = child
	return child, nil
}

// OpenShared returns the physical frame backing key, creating and
// zero-filling it on first use (spec.md §4.2.2 "explicit shared regions").
func (m *MMU) OpenShared(key string) (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ppn, ok := m.shared[key]; ok {
		return ppn, nil
	}
	ppn, err := m.allocFrameLocked(Owner{PID: -3, VPN: -3})
	if err != nil {
		return 0, err
	}
	m.ram.Zero(uint32(ppn)*PageSize, PageSize)
	m.shared[key] = ppn
	return ppn, nil
}

// MapShared installs a shared leaf PTE for vpn in as, pointing at ppn
// (normally the result of OpenShared). The first mapping takes over the
// reference OpenShared created; each later mapping adds one. UnmapShared
// removing the last live mapping returns the frame to the free set.
func (m *MMU) MapShared(as *AddressSpace, va uint32, ppn int32, writable bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l1idx, l2idx, _ := splitVA(va)
	l2frame, err := as.getOrCreateL2Locked(l1idx, true)
	if err != nil {
		return err
	}
	if err := as.writeL2Locked(l2frame, l2idx, makeLeafPTE(true, writable, false, true, ppn)); err != nil {
		return err
	}
	cnt := m.mapCnt[ppn]
	if cnt > 0 {
		m.frames.IncRef(ppn)
	}
	m.mapCnt[ppn] = cnt + 1
	m.policy.OnMap(ppn)
	return nil
}

// UnmapShared removes as's mapping of ppn at va. Once the last mapping is
// gone the frame's refcount reaches zero and it is returned to the free
// set.
func (m *MMU) UnmapShared(as *AddressSpace, va uint32, ppn int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l1idx, l2idx, _ := splitVA(va)
	l2frame, err := as.getOrCreateL2Locked(l1idx, false)
	if err != nil {
		return err
	}
	if err := as.writeL2Locked(l2frame, l2idx, 0); err != nil {
		return err
	}
	m.dropMappingLocked(ppn)
	return nil
}

var _ mem.ExecMemory = (*MMU)(nil)

func (m *MMU) translate(va uint32, access mem.AccessKind, bypassPerm bool) (int32, uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	as := m.asByPID[m.curPID]
	if as == nil {
		return 0, 0, &mem.FaultError{Addr: va, Kind: access, Reason: "no address space"}
	}
	ppn, err := m.ensureResident(as, va, access, bypassPerm)
	return ppn, va & 0xfff, err
}

func (m *MMU) ReadByte(va uint32) (byte, error) {
	if mem.InUARTWindow(va) {
		return m.uart.ReadByte(va)
	}
	ppn, off, err := m.translate(va, mem.AccessRead, false)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadByte(uint32(ppn)*PageSize + off)
}

func (m *MMU) ReadHalf(va uint32) (uint16, error) {
	if mem.InUARTWindow(va) {
		lo, err := m.uart.ReadByte(va)
		return uint16(lo), err
	}
	ppn, off, err := m.translate(va, mem.AccessRead, false)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadHalf(uint32(ppn)*PageSize + off)
}

func (m *MMU) ReadWord(va uint32) (uint32, error) {
	if mem.InUARTWindow(va) {
		lo, err := m.uart.ReadByte(va)
		return uint32(lo), err
	}
	ppn, off, err := m.translate(va, mem.AccessRead, false)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadWord(uint32(ppn)*PageSize + off)
}

// ReadInstruction fetches a word enforcing the X permission bit, the
// distinction the base Memory interface cannot express (see mem.ExecMemory).
func (m *MMU) ReadInstruction(va uint32) (uint32, error) {
	ppn, off, err := m.translate(va, mem.AccessExec, false)
	if err != nil {
		return 0, err
	}
	return m.ram.ReadWord(uint32(ppn)*PageSize + off)
}

func (m *MMU) WriteByte(va uint32, v byte) error {
	if mem.InUARTWindow(va) {
		return m.uart.WriteByte(va, v)
	}
	ppn, off, err := m.translate(va, mem.AccessWrite, false)
	if err != nil {
		return err
	}
	return m.ram.WriteByte(uint32(ppn)*PageSize+off, v)
}

func (m *MMU) WriteHalf(va uint32, v uint16) error {
	if mem.InUARTWindow(va) {
		return m.uart.WriteByte(va, byte(v))
	}
	ppn, off, err := m.translate(va, mem.AccessWrite, false)
	if err != nil {
		return err
	}
	return m.ram.WriteHalf(uint32(ppn)*PageSize+off, v)
}

func (m *MMU) WriteWord(va uint32, v uint32) error {
	if mem.InUARTWindow(va) {
		return m.uart.WriteByte(va, byte(v))
	}
	ppn, off, err := m.translate(va, mem.AccessWrite, false)
	if err != nil {
		return err
	}
	return m.ram.WriteWord(uint32(ppn)*PageSize+off, v)
}

func (m *MMU) WriteByteToVirtual(va uint32, v byte) error {
	if mem.InUARTWindow(va) {
		return m.uart.WriteByte(va, v)
	}
	ppn, off, err := m.translate(va, mem.AccessWrite, true)
	if err != nil {
		return err
	}
	return m.ram.WriteByte(uint32(ppn)*PageSize+off, v)
}
