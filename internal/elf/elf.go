// Package elf implements the minimal ELF32 little-endian RISC-V parser of
// spec.md §4.3 and §6: header validation, PT_LOAD program-header iteration,
// and backend-specific segment mapping for both the contiguous and paged
// MMUs. debug/elf is deliberately not used (see DESIGN.md): the loader needs
// exact control over zero-fill and permission derivation per mapped page,
// which the stdlib package does not expose at that granularity.
package elf

import (
	"encoding/binary"
	"fmt"
)

const (
	elfMagic0, elfMagic1, elfMagic2, elfMagic3 = 0x7f, 'E', 'L', 'F'

	elfClass32  = 1
	elfDataLSB  = 1
	emRISCV     = 243
	ptLoad      = 1
	ehSize      = 52
	phEntrySize = 32

	flagExec  = 0x1
	flagWrite = 0x2
	flagRead  = 0x4
)

// BadELFError reports a header that fails magic/class/endian/machine
// validation (spec.md §7 BAD_ELF: "EXEC returns -1 and rolls back").
type BadELFError struct {
	Reason string
}

func (e *BadELFError) Error() string {
	return fmt.Sprintf("elf: invalid image: %s", e.Reason)
}

// Segment is one validated PT_LOAD program header, with its file content
// already sliced out of the source buffer.
type Segment struct {
	VAddr    uint32
	FileSize uint32
	MemSize  uint32
	R, W, X  bool
	Data     []byte // len(Data) == FileSize; the remaining MemSize-FileSize is zero-fill
}

// Image is a parsed, validated ELF32 RISC-V executable ready for mapping.
type Image struct {
	Entry    uint32
	Segments []Segment
}

// Parse validates the ELF32/RISC-V header and returns every PT_LOAD segment
// in program-header order (spec.md §4.3, §6).
func Parse(data []byte) (*Image, error) {
	if len(data) < ehSize {
		return nil, &BadELFError{Reason: "file shorter than an ELF32 header"}
	}
	if data[0] != elfMagic0 || data[1] != elfMagic1 || data[2] != elfMagic2 || data[3] != elfMagic3 {
		return nil, &BadELFError{Reason: "bad magic"}
	}
	if data[4] != elfClass32 {
		return nil, &BadELFError{Reason: "not a 32-bit ELF"}
	}
	if data[5] != elfDataLSB {
		return nil, &BadELFError{Reason: "not little-endian"}
	}
	machine := binary.LittleEndian.Uint16(data[18:20])
	if machine != emRISCV {
		return nil, &BadELFError{Reason: "machine is not EM_RISCV"}
	}

	entry := binary.LittleEndian.Uint32(data[24:28])
	phoff := binary.LittleEndian.Uint32(data[28:32])
	phentsize := binary.LittleEndian.Uint16(data[42:44])
	phnum := binary.LittleEndian.Uint16(data[44:46])

	if phentsize != 0 && phentsize != phEntrySize {
		return nil, &BadELFError{Reason: "unexpected program header entry size"}
	}

	img := &Image{Entry: entry}
	for i := uint16(0); i < phnum; i++ {
		off := uint64(phoff) + uint64(i)*uint64(phEntrySize)
		if off+phEntrySize > uint64(len(data)) {
			return nil, &BadELFError{Reason: "program header table runs past end of file"}
		}
		ph := data[off : off+phEntrySize]

		ptype := binary.LittleEndian.Uint32(ph[0:4])
		if ptype != ptLoad {
			continue
		}
		foffset := binary.LittleEndian.Uint32(ph[4:8])
		vaddr := binary.LittleEndian.Uint32(ph[8:12])
		filesz := binary.LittleEndian.Uint32(ph[16:20])
		memsz := binary.LittleEndian.Uint32(ph[20:24])
		flags := binary.LittleEndian.Uint32(ph[24:28])

		if memsz < filesz {
			return nil, &BadELFError{Reason: "segment memsz smaller than filesz"}
		}
		if uint64(foffset)+uint64(filesz) > uint64(len(data)) {
			return nil, &BadELFError{Reason: "segment file range runs past end of file"}
		}

		img.Segments = append(img.Segments, Segment{
			VAddr:    vaddr,
			FileSize: filesz,
			MemSize:  memsz,
			R:        flags&flagRead != 0,
			W:        flags&flagWrite != 0,
			X:        flags&flagExec != 0,
			Data:     data[foffset : foffset+filesz],
		})
	}
	return img, nil
}
