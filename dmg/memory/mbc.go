package memory

import "errors"

// Errors returned by LoadSave. A save blob that doesn't fit a mapper's
// declared RAM size is rejected rather than silently truncated or padded.
var (
	ErrSaveTooSmall     = errors.New("save data too small for this cartridge's RAM")
	ErrSaveTooLarge     = errors.New("save data too large for this cartridge's RAM")
	ErrSaveIncompatible = errors.New("save data incompatible with this cartridge")
)

// MBC is the capability every cartridge mapper variant implements: ROM/RAM
// read and write, a reset-to-power-on-state operation, and the save-RAM
// snapshot round trip for battery-backed variants. Out-of-range addresses
// are unreachable by construction -- the MMU performs the region decode
// before reaching a mapper.
type MBC interface {
	Reset()
	Read(addr uint16) uint8
	Write(addr uint16, value uint8)

	// SaveSize reports the exact persisted length, with ok=false when the
	// mapper isn't battery-backed.
	SaveSize() (size int, ok bool)
	LoadSave(data []byte) error
	SnapshotSave() []byte
}

func bankMod(bank, count int) int {
	if count <= 0 {
		return 0
	}
	return bank % count
}

// NoMBC is a ROM-only cartridge: a single fixed 32 KiB (or less) ROM image,
// no banking, no external RAM.
type NoMBC struct {
	rom []uint8
}

func NewNoMBC(romData []uint8) *NoMBC {
	return &NoMBC{rom: romData}
}

func (m *NoMBC) Reset() {}

func (m *NoMBC) Read(addr uint16) uint8 {
	if int(addr) >= len(m.rom) {
		return 0xFF
	}
	return m.rom[addr]
}

func (m *NoMBC) Write(addr uint16, value uint8) {}

func (m *NoMBC) SaveSize() (int, bool)      { return 0, false }
func (m *NoMBC) LoadSave(data []byte) error { return ErrSaveIncompatible }
func (m *NoMBC) SnapshotSave() []byte       { return nil }

// NullMBC stands in for an unrecognized cartridge-type byte: it answers
// 0xFF to every read and ignores every write, per spec.md §4.1 ("unsupported
// types instantiate the null mapper").
type NullMBC struct{}

func NewNullMBC() *NullMBC                        { return &NullMBC{} }
func (m *NullMBC) Reset()                         {}
func (m *NullMBC) Read(addr uint16) uint8         { return 0xFF }
func (m *NullMBC) Write(addr uint16, value uint8) {}
func (m *NullMBC) SaveSize() (int, bool)          { return 0, false }
func (m *NullMBC) LoadSave(data []byte) error     { return ErrSaveIncompatible }
func (m *NullMBC) SnapshotSave() []byte           { return nil }

// MBC1 implements the composite 7-bit bank register (5-bit low + 2-bit
// high) with simple/advanced mode switching, per spec.md §4.1.
type MBC1 struct {
	rom []uint8
	ram []uint8

	lowBank  uint8 // 5 bits
	highBank uint8 // 2 bits
	mode     uint8 // 0 = simple, 1 = advanced

	ramEnabled bool
	hasBattery bool

	romBankCount int
	ramBankCount int
}

func NewMBC1(romData []uint8, hasBattery bool, ramBankCount uint8) *MBC1 {
	romBanks := len(romData) / 0x4000
	if romBanks == 0 {
		romBanks = 1
	}
	return &MBC1{
		rom:          romData,
		ram:          make([]uint8, int(ramBankCount)*0x2000),
		lowBank:      1,
		hasBattery:   hasBattery,
		romBankCount: romBanks,
		ramBankCount: int(ramBankCount),
	}
}

func (m *MBC1) Reset() {
	m.lowBank = 1
	m.highBank = 0
	m.mode = 0
	m.ramEnabled = false
}

// romBank returns the effective bank mapped into 0x4000-0x7FFF.
func (m *MBC1) romBank() int {
	bank := int(m.highBank)<<5 | int(m.lowBank)
	return bankMod(bank, m.romBankCount)
}

// lowRegionBank returns the effective bank mapped into 0x0000-0x3FFF:
// bank 0 in simple mode, or the high bits alone (0x20/0x40/0x60) in
// advanced mode.
func (m *MBC1) lowRegionBank() int {
	if m.mode == 0 {
		return 0
	}
	return bankMod(int(m.highBank)<<5, m.romBankCount)
}

func (m *MBC1) ramBankIndex() int {
	if m.mode == 0 {
		return 0
	}
	return bankMod(int(m.highBank), m.ramBankCount)
}

func (m *MBC1) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		offset := m.lowRegionBank()*0x4000 + int(addr)
		if offset >= len(m.rom) {
			return 0xFF
		}
		return m.rom[offset]
	case addr <= 0x7FFF:
		offset := m.romBank()*0x4000 + int(addr-0x4000)
		if offset >= len(m.rom) {
			return 0xFF
		}
		return m.rom[offset]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || m.ramBankCount == 0 {
			return 0xFF
		}
		offset := m.ramBankIndex()*0x2000 + int(addr-0xA000)
		return m.ram[offset]
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value uint8) {
	switch {
	case addr <= 0x1FFF:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr <= 0x3FFF:
		bank := value & 0x1F
		if bank == 0 {
			bank = 1
		}
		m.lowBank = bank
	case addr <= 0x5FFF:
		m.highBank = value & 0x03
	case addr <= 0x7FFF:
		m.mode = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || m.ramBankCount == 0 {
			return
		}
		offset := m.ramBankIndex()*0x2000 + int(addr-0xA000)
		m.ram[offset] = value
	}
}

func (m *MBC1) SaveSize() (int, bool) {
	if !m.hasBattery {
		return 0, false
	}
	return len(m.ram), true
}

func (m *MBC1) LoadSave(data []byte) error {
	if !m.hasBattery {
		return ErrSaveIncompatible
	}
	if len(data) < len(m.ram) {
		return ErrSaveTooSmall
	}
	if len(data) > len(m.ram) {
		return ErrSaveTooLarge
	}
	copy(m.ram, data)
	return nil
}

func (m *MBC1) SnapshotSave() []byte {
	if !m.hasBattery {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

// MBC2 has a built-in 512x4-bit RAM and a 4-bit ROM bank register selected
// via address bit 8, per spec.md §4.1.
type MBC2 struct {
	rom []uint8
	ram [512]uint8 // low nibble significant only

	romBank    uint8
	ramEnabled bool
	hasBattery bool

	romBankCount int
}

func NewMBC2(romData []uint8) *MBC2 {
	romBanks := len(romData) / 0x4000
	if romBanks == 0 {
		romBanks = 1
	}
	return &MBC2{
		rom:          romData,
		romBank:      1,
		romBankCount: romBanks,
	}
}

// NewMBC2WithBattery is the battery-backed variant (cart type 0x06).
func NewMBC2WithBattery(romData []uint8) *MBC2 {
	m := NewMBC2(romData)
	m.hasBattery = true
	return m
}

func (m *MBC2) Reset() {
	m.romBank = 1
	m.ramEnabled = false
}

func (m *MBC2) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		if int(addr) >= len(m.rom) {
			return 0xFF
		}
		return m.rom[addr]
	case addr <= 0x7FFF:
		bank := bankMod(int(m.romBank), m.romBankCount)
		offset := bank*0x4000 + int(addr-0x4000)
		if offset >= len(m.rom) {
			return 0xFF
		}
		return m.rom[offset]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		return m.ram[addr%512] | 0xF0
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value uint8) {
	switch {
	case addr <= 0x3FFF:
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		m.ram[addr%512] = value & 0x0F
	}
}

func (m *MBC2) SaveSize() (int, bool) {
	if !m.hasBattery {
		return 0, false
	}
	return len(m.ram), true
}

func (m *MBC2) LoadSave(data []byte) error {
	if !m.hasBattery {
		return ErrSaveIncompatible
	}
	if len(data) < len(m.ram) {
		return ErrSaveTooSmall
	}
	if len(data) > len(m.ram) {
		return ErrSaveTooLarge
	}
	copy(m.ram[:], data)
	return nil
}

func (m *MBC2) SnapshotSave() []byte {
	if !m.hasBattery {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram[:])
	return out
}

// mbc3Select is the state of the 0x4000-0x5FFF register on MBC3: either a
// RAM bank, an RTC register, or nothing mapped.
type mbc3Select uint8

const (
	mbc3SelectNone mbc3Select = iota
	mbc3SelectRAM
	mbc3SelectRTC
)

// MBC3 implements the 7-bit ROM bank, RAM-bank/RTC-register selector, and
// RTC latch micro-state described in spec.md §4.1. RTC registers always
// read 0 -- no wall-clock source is wired (see Open Questions in spec.md §9).
type MBC3 struct {
	rom []uint8
	ram []uint8

	romBank uint8

	selectKind mbc3Select
	ramBank    uint8
	rtcReg     uint8

	enabled    bool
	hasBattery bool

	latchState uint8 // tracks the 0-then-1 write sequence on 0x6000-0x7FFF

	romBankCount int
	ramBankCount int
}

func NewMBC3(romData []uint8, ramBankCount uint8) *MBC3 {
	romBanks := len(romData) / 0x4000
	if romBanks == 0 {
		romBanks = 1
	}
	return &MBC3{
		rom:          romData,
		ram:          make([]uint8, int(ramBankCount)*0x2000),
		romBank:      1,
		romBankCount: romBanks,
		ramBankCount: int(ramBankCount),
	}
}

// SetBattery marks this MBC3 instance as battery-backed (cart types 0x0F,
// 0x10, 0x13).
func (m *MBC3) SetBattery(v bool) { m.hasBattery = v }

func (m *MBC3) Reset() {
	m.romBank = 1
	m.selectKind = mbc3SelectNone
	m.ramBank = 0
	m.rtcReg = 0
	m.enabled = false
	m.latchState = 0
}

func (m *MBC3) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		if int(addr) >= len(m.rom) {
			return 0xFF
		}
		return m.rom[addr]
	case addr <= 0x7FFF:
		bank := bankMod(int(m.romBank), m.romBankCount)
		offset := bank*0x4000 + int(addr-0x4000)
		if offset >= len(m.rom) {
			return 0xFF
		}
		return m.rom[offset]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.enabled {
			return 0xFF
		}
		switch m.selectKind {
		case mbc3SelectRAM:
			if m.ramBankCount == 0 {
				return 0xFF
			}
			offset := bankMod(int(m.ramBank), m.ramBankCount)*0x2000 + int(addr-0xA000)
			return m.ram[offset]
		case mbc3SelectRTC:
			return 0x00
		default:
			return 0xFF
		}
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value uint8) {
	switch {
	case addr <= 0x1FFF:
		m.enabled = (value & 0x0F) == 0x0A
	case addr <= 0x3FFF:
		bank := value & 0x7F
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank
	case addr <= 0x5FFF:
		switch {
		case value <= 0x03 && m.ramBankCount > 0:
			m.selectKind = mbc3SelectRAM
			m.ramBank = value
		case value >= 0x08 && value <= 0x0C && m.hasBattery:
			m.selectKind = mbc3SelectRTC
			m.rtcReg = value
		default:
			m.selectKind = mbc3SelectNone
		}
	case addr <= 0x7FFF:
		// The 0-then-1 sequence latches the RTC; registers read 0
		// regardless, so there is nothing to copy on the transition.
		if value == 0 || value == 1 {
			m.latchState = value
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.enabled || m.selectKind != mbc3SelectRAM || m.ramBankCount == 0 {
			return
		}
		offset := bankMod(int(m.ramBank), m.ramBankCount)*0x2000 + int(addr-0xA000)
		m.ram[offset] = value
	}
}

func (m *MBC3) SaveSize() (int, bool) {
	if !m.hasBattery {
		return 0, false
	}
	return len(m.ram), true
}

func (m *MBC3) LoadSave(data []byte) error {
	if !m.hasBattery {
		return ErrSaveIncompatible
	}
	if len(data) < len(m.ram) {
		return ErrSaveTooSmall
	}
	if len(data) > len(m.ram) {
		return ErrSaveTooLarge
	}
	copy(m.ram, data)
	return nil
}

func (m *MBC3) SnapshotSave() []byte {
	if !m.hasBattery {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

// MBC5 implements the 9-bit ROM bank and 4-bit RAM bank described in
// spec.md §4.1. Unlike MBC1/MBC2/MBC3 there is no bank-0 substitution.
type MBC5 struct {
	rom []uint8
	ram []uint8

	romBankLow  uint8
	romBankHigh uint8
	ramBank     uint8

	ramEnabled bool
	hasBattery bool

	romBankCount int
	ramBankCount int
}

func NewMBC5(romData []uint8, hasBattery bool, ramBankCount uint8) *MBC5 {
	romBanks := len(romData) / 0x4000
	if romBanks == 0 {
		romBanks = 1
	}
	return &MBC5{
		rom:          romData,
		ram:          make([]uint8, int(ramBankCount)*0x2000),
		romBankLow:   1,
		hasBattery:   hasBattery,
		romBankCount: romBanks,
		ramBankCount: int(ramBankCount),
	}
}

func (m *MBC5) Reset() {
	m.romBankLow = 1
	m.romBankHigh = 0
	m.ramBank = 0
	m.ramEnabled = false
}

func (m *MBC5) romBank() int {
	bank := int(m.romBankHigh)<<8 | int(m.romBankLow)
	return bankMod(bank, m.romBankCount)
}

func (m *MBC5) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		if int(addr) >= len(m.rom) {
			return 0xFF
		}
		return m.rom[addr]
	case addr <= 0x7FFF:
		offset := m.romBank()*0x4000 + int(addr-0x4000)
		if offset >= len(m.rom) {
			return 0xFF
		}
		return m.rom[offset]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || m.ramBankCount == 0 {
			return 0xFF
		}
		offset := bankMod(int(m.ramBank), m.ramBankCount)*0x2000 + int(addr-0xA000)
		return m.ram[offset]
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value uint8) {
	switch {
	case addr <= 0x1FFF:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr <= 0x2FFF:
		m.romBankLow = value
	case addr <= 0x3FFF:
		m.romBankHigh = value & 0x01
	case addr <= 0x5FFF:
		m.ramBank = value & 0x0F
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || m.ramBankCount == 0 {
			return
		}
		offset := bankMod(int(m.ramBank), m.ramBankCount)*0x2000 + int(addr-0xA000)
		m.ram[offset] = value
	}
}

func (m *MBC5) SaveSize() (int, bool) {
	if !m.hasBattery {
		return 0, false
	}
	return len(m.ram), true
}

func (m *MBC5) LoadSave(data []byte) error {
	if !m.hasBattery {
		return ErrSaveIncompatible
	}
	if len(data) < len(m.ram) {
		return ErrSaveTooSmall
	}
	if len(data) > len(m.ram) {
		return ErrSaveTooLarge
	}
	copy(m.ram, data)
	return nil
}

func (m *MBC5) SnapshotSave() []byte {
	if !m.hasBattery {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}
