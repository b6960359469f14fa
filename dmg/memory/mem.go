package memory

import (
	"fmt"
	"log/slog"

	"github.com/dmgcore/dmgcore/dmg/addr"
	"github.com/dmgcore/dmgcore/dmg/audio"
	"github.com/dmgcore/dmgcore/dmg/bit"
	"github.com/dmgcore/dmgcore/dmg/serial"
	"github.com/dmgcore/dmgcore/dmg/video"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	APU       *audio.APU
	ppu       *video.PPU
	regionMap [256]memRegion

	joypadButtons uint8 // Actual state of buttons A/B/Start/Select, mapped to low bits of P1
	joypadDpad    uint8 // Actual state of d-pad directions, mapped to low bits of P1

	serial SerialPort
	timer  Timer

	bootROM    []byte
	bootMapped bool
}

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		APU:           audio.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
	}
	mmu.ppu = video.New(mmu.RequestInterrupt)
	mmu.serial = serial.NewPort(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(mmu)
	mmu.memory[addr.P1] = 0x30
	mmu.updateJoypadRegister()
	return mmu
}

// Tick advances the timer, serial port and PPU by the T-cycles the CPU just
// consumed. This is the only place the sub-components see time pass, so
// their cycle totals always match the CPU's.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
	m.ppu.Tick(cycles)
}

// PPU exposes the pixel-processing unit, for the emulator façade and
// debug tooling.
func (m *MMU) PPU() *video.PPU {
	return m.ppu
}

// Reset restores the MMU and every component it owns to power-on state.
// Cartridge ROM and cartridge RAM (battery-backed or not) survive, as does
// OAM; everything else returns to its power-on value.
func (m *MMU) Reset() {
	for i := range m.memory {
		m.memory[i] = 0
	}
	m.joypadButtons = 0x0F
	m.joypadDpad = 0x0F
	m.memory[addr.P1] = 0x30
	m.updateJoypadRegister()

	m.ppu.Reset()
	m.serial.Reset()
	m.timer = Timer{TimerInterruptHandler: m.timer.TimerInterruptHandler}
	m.APU = audio.New()
	if m.mbc != nil {
		m.mbc.Reset()
	}
	m.bootMapped = len(m.bootROM) > 0
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart
	mmu.mbc = newMapperFor(cart)
	return mmu
}

// newMapperFor selects and constructs the mapper variant for a cartridge,
// per the cart-type table in spec.md §4.1. An unrecognized type byte logs a
// warning and installs the null mapper, which reads 0xFF everywhere -- the
// emulator still "runs", it just can't see any ROM or RAM.
func newMapperFor(cart *Cartridge) MBC {
	switch cart.mbcType {
	case NoMBCType:
		return NewNoMBC(cart.data)
	case MBC1Type:
		return NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC2Type:
		if cart.hasBattery {
			return NewMBC2WithBattery(cart.data)
		}
		return NewMBC2(cart.data)
	case MBC3Type:
		m := NewMBC3(cart.data, cart.ramBankCount)
		m.SetBattery(cart.hasBattery)
		return m
	case MBC5Type:
		return NewMBC5(cart.data, cart.hasBattery, cart.ramBankCount)
	default:
		slog.Warn("unrecognized cartridge type, installing null mapper", "cart_type", fmt.Sprintf("0x%02X", cart.cartType))
		return NewNullMBC()
	}
}

// WrapWithGenie installs a Game Genie wrapper over the currently loaded
// mapper. genieROM is the cheat device's own small firmware image; slots
// are the parsed cheat codes (see DecodeGenieCode). Once wrapped, the Genie
// is the sole ROM/RAM interface -- there is no unwrap operation.
func (m *MMU) WrapWithGenie(genieROM []byte, slots [3]GenieSlot) {
	m.mbc = NewGenie(genieROM, m.mbc, slots)
}

// LoadBootROM installs an optional boot ROM (up to 256 bytes) that occupies
// 0x0000-0x00FF until a write to the boot-ROM-disable register (0xFF50)
// unmaps it for the rest of the session.
func (m *MMU) LoadBootROM(data []byte) {
	m.bootROM = make([]byte, len(data))
	copy(m.bootROM, data)
	m.bootMapped = len(data) > 0
}

// HasBootROM reports whether a boot ROM is currently mapped at 0x0000-0x00FF.
func (m *MMU) HasBootROM() bool {
	return m.bootMapped
}

// CartInfo returns the read-only cartridge header view.
func (m *MMU) CartInfo() CartInfo {
	return m.cart.Info()
}

// SaveSize reports the exact persisted save length, with ok=false when the
// loaded mapper isn't battery-backed.
func (m *MMU) SaveSize() (int, bool) {
	return m.mbc.SaveSize()
}

// LoadSave restores battery-backed RAM from a snapshot taken via SnapshotSave.
func (m *MMU) LoadSave(data []byte) error {
	return m.mbc.LoadSave(data)
}

// SnapshotSave returns a copy of the current battery-backed RAM contents,
// or nil when the loaded mapper isn't battery-backed.
func (m *MMU) SnapshotSave() []byte {
	return m.mbc.SnapshotSave()
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.Write(addr.IF, newFlags)
}

func (m *MMU) Read(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.bootMapped && address <= 0x00FF {
			if int(address) < len(m.bootROM) {
				return m.bootROM[address]
			}
			return 0xFF
		}
		if m.mbc == nil {
			// No cartridge in: the open bus reads 0xFF. Not worth logging,
			// this is the CPU's steady state until a ROM is loaded.
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.ppu.Read(address)
	case regionWRAM:
		return m.memory[address]
	case regionEcho:
		return m.memory[address-0x2000]
	case regionOAM:
		if address <= addr.OAMEnd {
			return m.ppu.Read(address)
		}
		// Unmapped area 0xFEA0-0xFEFF
		return 0
	case regionIO:
		if address == addr.SB || address == addr.SC {
			return m.serial.Read(address)
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			return m.timer.Read(address)
		}
		if address >= addr.AudioStart && address <= addr.AudioEnd {
			return m.APU.ReadRegister(address)
		}
		if address >= addr.LCDC && address <= addr.WX {
			return m.ppu.Read(address)
		}
		// The upper 3 bits of IF and IE always read as 1. They're unused,
		// but games (and the halt bug check) observe them.
		if address == addr.IF || address == addr.IE {
			return m.memory[address] | 0xE0
		}
		if address >= 0xFF80 {
			// HRAM
			return m.memory[address]
		}
		// Other IO registers
		return m.memory[address]
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		m.ppu.Write(address, value)
	case regionExtRAM:
		if m.mbc == nil {
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.memory[address] = value
	case regionEcho:
		m.memory[address-0x2000] = value
	case regionOAM:
		if address <= addr.OAMEnd {
			m.ppu.Write(address, value)
		}
		// Writes to the unmapped 0xFEA0-0xFEFF area are dropped.
	case regionIO:
		if address == addr.P1 {
			m.writeJoypad(value)
			return
		}
		if address == addr.BootROMDisable {
			m.bootMapped = false
			m.memory[address] = value
			return
		}
		if address == addr.SB || address == addr.SC {
			m.serial.Write(address, value)
			return
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			m.timer.Write(address, value)
			return
		}
		if address >= addr.AudioStart && address <= addr.AudioEnd {
			m.APU.WriteRegister(address, value)
			return
		}
		if address == addr.IF {
			// This goddamn register has its upper 3 bits always set as 1...
			// Beware if you're trying to match halt bug behavior.
			m.memory[address] = value | 0xE0
			return
		}
		if address == addr.DMA {
			// DMA transfer copies 160 bytes from source to OAM. The copy is
			// synchronous: the CPU typically idles in HRAM while it runs, so
			// cycle accuracy during the transfer isn't modeled.
			sourceAddr := uint16(value) << 8
			for i := uint16(0); i < 160; i++ {
				m.ppu.Write(addr.OAMStart+i, m.Read(sourceAddr+i))
			}
			m.ppu.Write(addr.DMA, value)
			return
		}
		if address >= addr.LCDC && address <= addr.WX {
			m.ppu.Write(address, value)
			return
		}
		if address >= 0xFF80 {
			// HRAM
			m.memory[address] = value
			return
		}
		// Other IO registers
		m.memory[address] = value
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

// visibleJoypadNibble computes the low nibble P1 currently exposes, per
// its selection bits.
//
// In real hw, P1 is just a selector (bits 4-5) that controls which set of
// buttons the low bits (0-3) are mapped to:
//   - if bit 4 is 0, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is 0, bits 0-3 are mapped to A, B, Select, Start
//   - if both are 0, hw does an AND of both button sets
//   - if neither is, the lines float high (0x0F)
//
// Note that 1 -> button released, 0 -> button pressed.
func (m *MMU) visibleJoypadNibble() uint8 {
	p1 := m.memory[addr.P1]

	// A button group is selected if the corresponding bit is 0
	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		return m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		return m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		return m.joypadButtons & m.joypadDpad & 0x0F
	default:
		return 0x0F
	}
}

// updateJoypadRegister recomputes P1's visible low nibble and raises the
// joypad interrupt when any selected line transitions high-to-low. A
// pressed button in a group that isn't selected never fires; selecting a
// group that holds a pressed button does. Bits 6-7 always read as 1.
//
// Called whenever P1's selection bits are written or a button changes.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	old := p1 & 0x0F
	result := 0b11000000 | p1&0b00110000 | m.visibleJoypadNibble()

	if old & ^result & 0x0F != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}

	m.memory[addr.P1] = result
}

func (m *MMU) writeJoypad(value uint8) {
	// Only bits 4-5 are writable (selection bits); the visible nibble is
	// kept so the selection change itself can be edge-detected.
	p1 := m.memory[addr.P1]
	m.memory[addr.P1] = p1&0x0F | value&0b00110000
	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}
