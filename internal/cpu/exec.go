package cpu

import "github.com/Ewad245/RISCV32/internal/mem"

// execute dispatches one decoded instruction against the hart's register
// file and memory interface. PC advances by 4 by default; branches/JAL/JALR
// overwrite it explicitly. ECALL/EBREAK leave PC untouched (spec.md §4.1):
// the kernel dispatcher advances past it, and the syscall layer rewinds on
// WAITING transitions.
func (h *Hart) execute(d Decoded) error {
	nextPC := h.PC + 4

	switch d.Opcode {
	case opLUI:
		h.setReg(d.Rd, uint32(d.ImmU))

	case opAUIPC:
		h.setReg(d.Rd, h.PC+uint32(d.ImmU))

	case opJAL:
		h.setReg(d.Rd, h.PC+4)
		nextPC = uint32(int32(h.PC) + d.ImmJ)

	case opJALR:
		target := uint32(int32(h.reg(d.Rs1))+d.ImmI) &^ 1
		h.setReg(d.Rd, h.PC+4)
		nextPC = target

	case opBRANCH:
		taken, err := h.branchTaken(d)
		if err != nil {
			return h.raiseIllegal(d)
		}
		if taken {
			nextPC = uint32(int32(h.PC) + d.ImmB)
		}

	case opLOAD:
		if err := h.execLoad(d); err != nil {
			return h.raiseMemFault(err)
		}

	case opSTORE:
		if err := h.execStore(d); err != nil {
			return h.raiseMemFault(err)
		}

	case opOPIMM:
		if err := h.execOpImm(d); err != nil {
			return h.raiseIllegal(d)
		}

	case opOP:
		if d.Funct7 == funct7MExt {
			h.execMExt(d)
		} else if err := h.execOp(d); err != nil {
			return h.raiseIllegal(d)
		}

	case opMISCMEM:
		// FENCE: single-hart-per-task sequential semantics already hold
		// (spec.md §5), so FENCE is a no-op.

	case opSYSTEM:
		if d.Funct3 == 0 {
			h.pendingEcall = true
			return nil // PC intentionally not advanced; see doc comment above.
		}
		// CSR instructions beyond an ECALL/EBREAK stub are out of scope
		// (spec.md §1 Non-goals: "privileged CSR semantics beyond a
		// stub"). Treat any other SYSTEM funct3 as a no-op that still
		// advances PC, rather than faulting, so kernels that probe CSRs
		// speculatively don't crash user programs outright.

	default:
		return h.raiseIllegal(d)
	}

	h.PC = nextPC
	return nil
}

func (h *Hart) branchTaken(d Decoded) (bool, error) {
	a, b := h.reg(d.Rs1), h.reg(d.Rs2)
	switch d.Funct3 {
	case 0: // BEQ
		return a == b, nil
	case 1: // BNE
		return a != b, nil
	case 4: // BLT
		return int32(a) < int32(b), nil
	case 5: // BGE
		return int32(a) >= int32(b), nil
	case 6: // BLTU
		return a < b, nil
	case 7: // BGEU
		return a >= b, nil
	default:
		return false, &IllegalInstructionError{PC: h.PC, Insn: d.Insn}
	}
}

func (h *Hart) execLoad(d Decoded) error {
	addr := uint32(int32(h.reg(d.Rs1)) + d.ImmI)
	switch d.Funct3 {
	case 0: // LB
		v, err := h.Mem.ReadByte(addr)
		if err != nil {
			return err
		}
		h.setReg(d.Rd, uint32(int32(int8(v))))
	case 1: // LH
		v, err := h.Mem.ReadHalf(addr)
		if err != nil {
			return err
		}
		h.setReg(d.Rd, uint32(int32(int16(v))))
	case 2: // LW
		v, err := h.Mem.ReadWord(addr)
		if err != nil {
			return err
		}
		h.setReg(d.Rd, v)
	case 4: // LBU
		v, err := h.Mem.ReadByte(addr)
		if err != nil {
			return err
		}
		h.setReg(d.Rd, uint32(v))
	case 5: // LHU
		v, err := h.Mem.ReadHalf(addr)
		if err != nil {
			return err
		}
		h.setReg(d.Rd, uint32(v))
	default:
		return &mem.FaultError{Addr: addr, Kind: mem.AccessRead, Reason: "unknown load width"}
	}
	return nil
}

func (h *Hart) execStore(d Decoded) error {
	addr := uint32(int32(h.reg(d.Rs1)) + d.ImmS)
	val := h.reg(d.Rs2)
	switch d.Funct3 {
	case 0: // SB
		return h.Mem.WriteByte(addr, byte(val))
	case 1: // SH
		return h.Mem.WriteHalf(addr, uint16(val))
	case 2: // SW
		return h.Mem.WriteWord(addr, val)
	default:
		return &mem.FaultError{Addr: addr, Kind: mem.AccessWrite, Reason: "unknown store width"}
	}
}

func (h *Hart) execOpImm(d Decoded) error {
	a := h.reg(d.Rs1)
	switch d.Funct3 {
	case 0: // ADDI
		h.setReg(d.Rd, uint32(int32(a)+d.ImmI))
	case 2: // SLTI
		h.setReg(d.Rd, boolToWord(int32(a) < d.ImmI))
	case 3: // SLTIU
		h.setReg(d.Rd, boolToWord(a < uint32(d.ImmI)))
	case 4: // XORI
		h.setReg(d.Rd, a^uint32(d.ImmI))
	case 6: // ORI
		h.setReg(d.Rd, a|uint32(d.ImmI))
	case 7: // ANDI
		h.setReg(d.Rd, a&uint32(d.ImmI))
	case 1: // SLLI
		if d.Funct7 != 0 {
			return &IllegalInstructionError{PC: h.PC, Insn: d.Insn}
		}
		h.setReg(d.Rd, a<<(d.Rs2&0x1f))
	case 5: // SRLI / SRAI
		shamt := d.Rs2 & 0x1f
		if d.Funct7 == 0x20 {
			h.setReg(d.Rd, uint32(int32(a)>>shamt))
		} else if d.Funct7 == 0 {
			h.setReg(d.Rd, a>>shamt)
		} else {
			return &IllegalInstructionError{PC: h.PC, Insn: d.Insn}
		}
	default:
		return &IllegalInstructionError{PC: h.PC, Insn: d.Insn}
	}
	return nil
}

func (h *Hart) execOp(d Decoded) error {
	a, b := h.reg(d.Rs1), h.reg(d.Rs2)
	switch {
	case d.Funct3 == 0 && d.Funct7 == 0x00: // ADD
		h.setReg(d.Rd, a+b)
	case d.Funct3 == 0 && d.Funct7 == 0x20: // SUB
		h.setReg(d.Rd, a-b)
	case d.Funct3 == 1 && d.Funct7 == 0x00: // SLL
		h.setReg(d.Rd, a<<(b&0x1f))
	case d.Funct3 == 2 && d.Funct7 == 0x00: // SLT
		h.setReg(d.Rd, boolToWord(int32(a) < int32(b)))
	case d.Funct3 == 3 && d.Funct7 == 0x00: // SLTU
		h.setReg(d.Rd, boolToWord(a < b))
	case d.Funct3 == 4 && d.Funct7 == 0x00: // XOR
		h.setReg(d.Rd, a^b)
	case d.Funct3 == 5 && d.Funct7 == 0x00: // SRL
		h.setReg(d.Rd, a>>(b&0x1f))
	case d.Funct3 == 5 && d.Funct7 == 0x20: // SRA
		h.setReg(d.Rd, uint32(int32(a)>>(b&0x1f)))
	case d.Funct3 == 6 && d.Funct7 == 0x00: // OR
		h.setReg(d.Rd, a|b)
	case d.Funct3 == 7 && d.Funct7 == 0x00: // AND
		h.setReg(d.Rd, a&b)
	default:
		return &IllegalInstructionError{PC: h.PC, Insn: d.Insn}
	}
	return nil
}

// execMExt implements the RV32M integer multiply/divide extension. Division
// by zero and the signed-overflow case follow the RISC-V spec exactly
// (spec.md §4.1): div-by-zero yields -1 (DIVU: all-ones) and the dividend as
// the remainder; INT_MIN/-1 yields INT_MIN with remainder 0.
func (h *Hart) execMExt(d Decoded) {
	a, b := h.reg(d.Rs1), h.reg(d.Rs2)
	sa, sb := int32(a), int32(b)

	switch d.Funct3 {
	case 0: // MUL
		h.setReg(d.Rd, a*b)
	case 1: // MULH
		h.setReg(d.Rd, uint32((int64(sa)*int64(sb))>>32))
	case 2: // MULHSU
		h.setReg(d.Rd, uint32((int64(sa)*int64(uint64(b)))>>32))
	case 3: // MULHU
		h.setReg(d.Rd, uint32((uint64(a)*uint64(b))>>32))
	case 4: // DIV
		switch {
		case b == 0:
			h.setReg(d.Rd, 0xffffffff)
		case sa == -2147483648 && sb == -1:
			h.setReg(d.Rd, uint32(sa))
		default:
			h.setReg(d.Rd, uint32(sa/sb))
		}
	case 5: // DIVU
		if b == 0 {
			h.setReg(d.Rd, 0xffffffff)
		} else {
			h.setReg(d.Rd, a/b)
		}
	case 6: // REM
		switch {
		case b == 0:
			h.setReg(d.Rd, a)
		case sa == -2147483648 && sb == -1:
			h.setReg(d.Rd, 0)
		default:
			h.setReg(d.Rd, uint32(sa%sb))
		}
	case 7: // REMU
		if b == 0 {
			h.setReg(d.Rd, a)
		} else {
			h.setReg(d.Rd, a%b)
		}
	}
}

func boolToWord(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
