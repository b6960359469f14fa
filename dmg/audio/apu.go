// Package audio implements the APU as a register file: games can program
// the sound registers and read them back with the correct masking, but no
// waveform synthesis happens. Audio output is a host concern layered on
// later; nothing in the core depends on it.
package audio

import (
	"github.com/dmgcore/dmgcore/dmg/addr"
	"github.com/dmgcore/dmgcore/dmg/bit"
)

const nrRegCount = addr.NR52 - addr.NR10 + 1

// readMasks holds the OR-mask applied when reading each NR register:
// write-only and unused bits always read as 1. Index is address - NR10.
// Unused slots (0xFF15, 0xFF1F) read 0xFF outright.
var readMasks = [nrRegCount]uint8{
	addr.NR10 - addr.NR10: 0x80,
	addr.NR11 - addr.NR10: 0x3F,
	addr.NR12 - addr.NR10: 0x00,
	addr.NR13 - addr.NR10: 0xFF,
	addr.NR14 - addr.NR10: 0xBF,
	0xFF15 - addr.NR10:    0xFF,
	addr.NR21 - addr.NR10: 0x3F,
	addr.NR22 - addr.NR10: 0x00,
	addr.NR23 - addr.NR10: 0xFF,
	addr.NR24 - addr.NR10: 0xBF,
	addr.NR30 - addr.NR10: 0x7F,
	addr.NR31 - addr.NR10: 0xFF,
	addr.NR32 - addr.NR10: 0x9F,
	addr.NR33 - addr.NR10: 0xFF,
	addr.NR34 - addr.NR10: 0xBF,
	0xFF1F - addr.NR10:    0xFF,
	addr.NR41 - addr.NR10: 0xFF,
	addr.NR42 - addr.NR10: 0x00,
	addr.NR43 - addr.NR10: 0x00,
	addr.NR44 - addr.NR10: 0xBF,
	addr.NR50 - addr.NR10: 0x00,
	addr.NR51 - addr.NR10: 0x00,
	addr.NR52 - addr.NR10: 0x70,
}

// APU is the sound register file at 0xFF10-0xFF3F.
type APU struct {
	regs    [nrRegCount]uint8
	waveRAM [16]uint8
	enabled bool
}

func New() *APU {
	a := &APU{}
	a.Reset()
	return a
}

// Reset loads the post-boot register values.
func (a *APU) Reset() {
	a.regs = [nrRegCount]uint8{
		addr.NR10 - addr.NR10: 0x80,
		addr.NR11 - addr.NR10: 0xBF,
		addr.NR12 - addr.NR10: 0xF3,
		addr.NR13 - addr.NR10: 0xFF,
		addr.NR14 - addr.NR10: 0xBF,
		addr.NR21 - addr.NR10: 0x3F,
		addr.NR22 - addr.NR10: 0x00,
		addr.NR23 - addr.NR10: 0xFF,
		addr.NR24 - addr.NR10: 0xBF,
		addr.NR30 - addr.NR10: 0x7F,
		addr.NR31 - addr.NR10: 0xFF,
		addr.NR32 - addr.NR10: 0x9F,
		addr.NR33 - addr.NR10: 0xFF,
		addr.NR34 - addr.NR10: 0xBF,
		addr.NR41 - addr.NR10: 0xFF,
		addr.NR42 - addr.NR10: 0x00,
		addr.NR43 - addr.NR10: 0x00,
		addr.NR44 - addr.NR10: 0xBF,
		addr.NR50 - addr.NR10: 0x77,
		addr.NR51 - addr.NR10: 0xF3,
	}
	a.waveRAM = [16]uint8{}
	a.enabled = true
}

// ReadRegister returns the masked value of a sound register or a wave RAM
// byte. The MMU guarantees the address is in 0xFF10-0xFF3F.
func (a *APU) ReadRegister(address uint16) uint8 {
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		return a.waveRAM[address-addr.WaveRAMStart]
	}
	if address > addr.NR52 {
		// 0xFF27-0xFF2F, unused
		return 0xFF
	}
	if address == addr.NR52 {
		// Bit 7 = power, bits 6-4 unused (read 1). Bits 3-0 would report
		// channel activity; with no synthesis no channel ever runs.
		status := uint8(0x70)
		if a.enabled {
			status = bit.Set(7, status)
		}
		return status
	}
	return a.regs[address-addr.NR10] | readMasks[address-addr.NR10]
}

// WriteRegister stores a sound register or wave RAM byte. While the APU is
// powered off, only NR52 and wave RAM accept writes.
func (a *APU) WriteRegister(address uint16, value uint8) {
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		a.waveRAM[address-addr.WaveRAMStart] = value
		return
	}
	if address > addr.NR52 {
		return
	}
	if address == addr.NR52 {
		wasEnabled := a.enabled
		a.enabled = bit.IsSet(7, value)
		if wasEnabled && !a.enabled {
			// Powering off clears every register except NR52 itself.
			for i := range a.regs[:addr.NR52-addr.NR10] {
				a.regs[i] = 0
			}
		}
		return
	}
	if !a.enabled {
		return
	}
	a.regs[address-addr.NR10] = value
}
