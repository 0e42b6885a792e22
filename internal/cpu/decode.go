package cpu

// Opcode groups, RV32I base + M extension only. Compressed, float and
// privileged-CSR encodings are out of scope (spec.md §1 Non-goals).
const (
	opLUI      = 0x37
	opAUIPC    = 0x17
	opJAL      = 0x6F
	opJALR     = 0x67
	opBRANCH   = 0x63
	opLOAD     = 0x03
	opSTORE    = 0x23
	opOPIMM    = 0x13
	opOP       = 0x33
	opMISCMEM  = 0x0F
	opSYSTEM   = 0x73
	funct7MExt = 0x01
)

// mnemonic is used only for Debug-level trace logging (spec.md §2 component
// B's "classify for trace" — the cosmetic disassembler text itself stays out
// of scope).
type mnemonic string

// Decoded holds the fields extracted from one 32-bit RV32IM instruction word.
type Decoded struct {
	Insn   uint32
	Opcode uint32
	Rd     uint32
	Funct3 uint32
	Rs1    uint32
	Rs2    uint32
	Funct7 uint32
	ImmI   int32
	ImmS   int32
	ImmB   int32
	ImmU   int32
	ImmJ   int32
}

func sext(val uint32, bits int) int32 {
	shift := 32 - bits
	return int32(val<<uint(shift)) >> uint(shift)
}

// decode extracts every field form needs; unused forms for a given opcode
// are simply ignored by the caller.
func decode(insn uint32) Decoded {
	d := Decoded{
		Insn:   insn,
		Opcode: insn & 0x7f,
		Rd:     (insn >> 7) & 0x1f,
		Funct3: (insn >> 12) & 0x7,
		Rs1:    (insn >> 15) & 0x1f,
		Rs2:    (insn >> 20) & 0x1f,
		Funct7: (insn >> 25) & 0x7f,
	}
	d.ImmI = sext(insn>>20, 12)
	d.ImmS = sext(((insn>>25)<<5)|((insn>>7)&0x1f), 12)
	d.ImmB = sext(
		(((insn>>31)&1)<<12)|
			(((insn>>7)&1)<<11)|
			(((insn>>25)&0x3f)<<5)|
			(((insn>>8)&0xf)<<1),
		13)
	d.ImmU = int32(insn & 0xfffff000)
	d.ImmJ = sext(
		(((insn>>31)&1)<<20)|
			(((insn>>12)&0xff)<<12)|
			(((insn>>20)&1)<<11)|
			(((insn>>21)&0x3ff)<<1),
		21)
	return d
}

// Mnemonic returns a short classification string for trace logging only.
func (d Decoded) Mnemonic() string {
	switch d.Opcode {
	case opLUI:
		return "lui"
	case opAUIPC:
		return "auipc"
	case opJAL:
		return "jal"
	case opJALR:
		return "jalr"
	case opBRANCH:
		return [...]string{"beq", "bne", "", "", "blt", "bge", "bltu", "bgeu"}[d.Funct3]
	case opLOAD:
		return [...]string{"lb", "lh", "lw", "", "lbu", "lhu"}[d.Funct3]
	case opSTORE:
		return [...]string{"sb", "sh", "sw"}[d.Funct3]
	case opOPIMM:
		return "op-imm"
	case opOP:
		if d.Funct7 == funct7MExt {
			return [...]string{"mul", "mulh", "mulhsu", "mulhu", "div", "divu", "rem", "remu"}[d.Funct3]
		}
		return "op"
	case opMISCMEM:
		return "fence"
	case opSYSTEM:
		return "system"
	default:
		return "unknown"
	}
}
