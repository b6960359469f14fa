// Package disasm decodes instruction bytes into display mnemonics. It
// backs the debugger's disassembly pane and the instruction trace hook; the
// CPU never consults it.
package disasm

import (
	"fmt"

	"github.com/dmgcore/dmgcore/dmg/bit"
	"github.com/dmgcore/dmgcore/dmg/memory"
)

// Line is one decoded instruction.
type Line struct {
	Address     uint16
	Instruction string
	Length      int
}

// DisassembleAt decodes the instruction at pc. Reads past 0xFFFF are not
// attempted; an instruction truncated by the end of the address space
// renders with a zero operand.
func DisassembleAt(pc uint16, mmu *memory.MMU) Line {
	opcode := mmu.Read(pc)

	if opcode == 0xCB {
		mnemonic := "CB ??"
		if pc < 0xFFFF {
			mnemonic = cbTemplates[mmu.Read(pc+1)]
		}
		return Line{Address: pc, Instruction: mnemonic, Length: 2}
	}

	length := instructionLengths[opcode]
	template := instructionTemplates[opcode]

	var instruction string
	switch length {
	case 2:
		var n uint8
		if pc < 0xFFFF {
			n = mmu.Read(pc + 1)
		}
		instruction = fmt.Sprintf(template, n)
	case 3:
		var nn uint16
		if pc < 0xFFFE {
			nn = bit.Combine(mmu.Read(pc+2), mmu.Read(pc+1))
		}
		instruction = fmt.Sprintf(template, nn)
	default:
		instruction = template
	}

	return Line{Address: pc, Instruction: instruction, Length: length}
}

// DisassembleRange decodes count consecutive instructions starting at pc.
func DisassembleRange(pc uint16, count int, mmu *memory.MMU) []Line {
	lines := make([]Line, 0, count)
	for i := 0; i < count; i++ {
		line := DisassembleAt(pc, mmu)
		lines = append(lines, line)

		next := uint32(pc) + uint32(line.Length)
		if next > 0xFFFF {
			break
		}
		pc = uint16(next)
	}
	return lines
}

// DisassembleAround decodes a window of instructions surrounding pc:
// up to beforeCount instructions leading into it, the instruction at pc,
// and afterCount following it. Because instructions are variable-length
// there is no way to walk backwards directly; instead, candidate start
// points are tried until one decodes through pc on an instruction
// boundary.
func DisassembleAround(pc uint16, beforeCount, afterCount int, mmu *memory.MMU) []Line {
	start := pc
	// The longest instruction is 3 bytes, so the window can't begin more
	// than 3*beforeCount bytes back.
	for offset := beforeCount * 3; offset > 0; offset-- {
		if uint32(offset) > uint32(pc) {
			continue
		}
		candidate := pc - uint16(offset)
		if p, n := walkTo(candidate, pc, mmu); p == pc && n == beforeCount {
			start = candidate
			break
		}
	}

	count := afterCount + 1
	if start != pc {
		count += beforeCount
	}
	return DisassembleRange(start, count, mmu)
}

// walkTo decodes forward from start until reaching (or stepping over)
// target, returning the final pc and the number of instructions decoded.
func walkTo(start, target uint16, mmu *memory.MMU) (uint16, int) {
	pc := start
	n := 0
	for pc < target {
		pc += uint16(DisassembleAt(pc, mmu).Length)
		n++
	}
	return pc, n
}

// Format renders a line for the debugger pane, marking the current PC.
func Format(line Line, isCurrentPC bool) string {
	prefix := " "
	if isCurrentPC {
		prefix = ">"
	}
	return fmt.Sprintf("%s0x%04X: %s", prefix, line.Address, line.Instruction)
}
