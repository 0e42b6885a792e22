package mem

import "encoding/binary"

// RAM is the flat physical byte store backing either MMU implementation.
// It has no notion of virtual addresses; callers pass already-translated
// physical offsets.
type RAM struct {
	bytes []byte
}

// NewRAM allocates size bytes of zeroed physical memory.
func NewRAM(size uint32) *RAM {
	return &RAM{bytes: make([]byte, size)}
}

// Size reports the total physical RAM size in bytes.
func (r *RAM) Size() uint32 {
	return uint32(len(r.bytes))
}

func (r *RAM) bounds(pa uint32, n uint32) bool {
	return uint64(pa)+uint64(n) <= uint64(len(r.bytes))
}

func (r *RAM) ReadByte(pa uint32) (byte, error) {
	if !r.bounds(pa, 1) {
		return 0, &FaultError{Addr: pa, Kind: AccessRead, Reason: "physical address out of bounds"}
	}
	return r.bytes[pa], nil
}

func (r *RAM) ReadHalf(pa uint32) (uint16, error) {
	if !r.bounds(pa, 2) {
		return 0, &FaultError{Addr: pa, Kind: AccessRead, Reason: "physical address out of bounds"}
	}
	return binary.LittleEndian.Uint16(r.bytes[pa : pa+2]), nil
}

func (r *RAM) ReadWord(pa uint32) (uint32, error) {
	if !r.bounds(pa, 4) {
		return 0, &FaultError{Addr: pa, Kind: AccessRead, Reason: "physical address out of bounds"}
	}
	return binary.LittleEndian.Uint32(r.bytes[pa : pa+4]), nil
}

func (r *RAM) WriteByte(pa uint32, v byte) error {
	if !r.bounds(pa, 1) {
		return &FaultError{Addr: pa, Kind: AccessWrite, Reason: "physical address out of bounds"}
	}
	r.bytes[pa] = v
	return nil
}

func (r *RAM) WriteHalf(pa uint32, v uint16) error {
	if !r.bounds(pa, 2) {
		return &FaultError{Addr: pa, Kind: AccessWrite, Reason: "physical address out of bounds"}
	}
	binary.LittleEndian.PutUint16(r.bytes[pa:pa+2], v)
	return nil
}

func (r *RAM) WriteWord(pa uint32, v uint32) error {
	if !r.bounds(pa, 4) {
		return &FaultError{Addr: pa, Kind: AccessWrite, Reason: "physical address out of bounds"}
	}
	binary.LittleEndian.PutUint32(r.bytes[pa:pa+4], v)
	return nil
}

// Zero clears n bytes starting at pa.
func (r *RAM) Zero(pa, n uint32) error {
	if !r.bounds(pa, n) {
		return &FaultError{Addr: pa, Kind: AccessWrite, Reason: "physical address out of bounds"}
	}
	clear(r.bytes[pa : pa+n])
	return nil
}

// CopyWithin memmoves n bytes from src to dst, used by contiguous-MMU
// compaction to slide a process's block toward address 0 without disturbing
// its contents.
func (r *RAM) CopyWithin(dst, src, n uint32) error {
	if !r.bounds(dst, n) || !r.bounds(src, n) {
		return &FaultError{Addr: src, Kind: AccessWrite, Reason: "physical address out of bounds"}
	}
	copy(r.bytes[dst:dst+n], r.bytes[src:src+n])
	return nil
}

// CopyFrom copies data into physical RAM starting at pa.
func (r *RAM) CopyFrom(pa uint32, data []byte) error {
	if !r.bounds(pa, uint32(len(data))) {
		return &FaultError{Addr: pa, Kind: AccessWrite, Reason: "physical address out of bounds"}
	}
	copy(r.bytes[pa:pa+uint32(len(data))], data)
	return nil
}

// Slice returns a direct view of n bytes at pa, for bulk frame-to-frame
// copies (paged AS fork) and read-only snapshotting.
func (r *RAM) Slice(pa, n uint32) ([]byte, error) {
	if !r.bounds(pa, n) {
		return nil, &FaultError{Addr: pa, Kind: AccessRead, Reason: "physical address out of bounds"}
	}
	return r.bytes[pa : pa+n], nil
}
