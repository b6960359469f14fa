// Package video implements the DMG pixel-processing unit: the four-mode
// scanline state machine, background/window/sprite rendering and the LCD
// register file. The PPU owns its video RAM, OAM and registers; the MMU
// routes the 0x8000-0x9FFF, 0xFE00-0xFE9F and 0xFF40-0xFF4B regions here.
package video

import (
	"fmt"

	"github.com/dmgcore/dmgcore/dmg/addr"
	"github.com/dmgcore/dmgcore/dmg/bit"
)

// Mode is the PPU's current scanline stage, exposed through STAT bits 1-0.
type Mode byte

const (
	ModeHBlank   Mode = 0
	ModeVBlank   Mode = 1
	ModeOAMScan  Mode = 2
	ModeTransfer Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeHBlank:
		return "HBlank"
	case ModeVBlank:
		return "VBlank"
	case ModeOAMScan:
		return "OAMScan"
	case ModeTransfer:
		return "Transfer"
	}
	return fmt.Sprintf("Mode(%d)", byte(m))
}

// Scanline timing, in T-cycles. A line is 456 cycles: OAM scan while the
// dot counter is at or below 80, pixel transfer up to 168, HBlank for the
// rest. 154 lines make a frame; lines 144-153 are VBlank.
const (
	lineCycles    = 456
	oamScanEnd    = 80
	transferEnd   = 168
	visibleLines  = FrameHeight
	linesPerFrame = 154
)

// LCDC bit positions.
const (
	lcdcBGEnable      = 0
	lcdcObjEnable     = 1
	lcdcObjSize       = 2
	lcdcBGTileMap     = 3
	lcdcTileData      = 4
	lcdcWindowEnable  = 5
	lcdcWindowTileMap = 6
	lcdcLCDEnable     = 7
)

// STAT bit positions. Bits 1-0 hold the mode and bit 2 the LY==LYC
// coincidence; both are derived on read and survive any STAT write.
const (
	statCoincidence = 2
	statHBlankIRQ   = 3
	statVBlankIRQ   = 4
	statOAMIRQ      = 5
	statLYCIRQ      = 6
)

const (
	vramSize = 0x2000
	oamSize  = 0xA0
)

// PPU owns video RAM, OAM, the LCD register file and the frame buffer, and
// races the CPU through 154 scanlines per frame. Interrupt requests go out
// through the irq callback, wired to the MMU's IF register.
type PPU struct {
	vram [vramSize]byte
	oam  [oamSize]byte

	lcdc, scy, scx, ly, lyc, bgp, obp0, obp1, wy, wx, dma byte
	stat                                                  byte // writable bits 3-6 only

	mode    Mode
	lineDot int // position within the current scanline, [0, 456)

	// The window keeps its own line counter: it starts the first time LY
	// meets WY with the window enabled, and advances only on lines that
	// actually emitted window pixels.
	windowLine    int
	windowStarted bool

	frame   *FrameBuffer
	bgIndex [FrameWidth]byte // raw 2-bit bg/window indices of the line being drawn

	irq func(addr.Interrupt)
}

// New returns a powered-on PPU. Interrupt requests (VBlank, LCD STAT) are
// delivered through irq.
func New(irq func(addr.Interrupt)) *PPU {
	p := &PPU{
		frame: NewFrameBuffer(),
		irq:   irq,
	}
	p.Reset()
	return p
}

// Reset restores the post-boot register values and clears VRAM and the
// frame buffer. OAM is left as-is, like on real hardware.
func (p *PPU) Reset() {
	p.vram = [vramSize]byte{}
	p.lcdc = 0x91
	p.stat = 0x00
	p.scy = 0x00
	p.scx = 0x00
	p.ly = 0x91
	p.lyc = 0x00
	p.dma = 0xFF
	p.bgp = 0xFC
	p.obp0 = 0x00
	p.obp1 = 0x00
	p.wy = 0x00
	p.wx = 0x00
	p.mode = ModeVBlank
	p.lineDot = 0
	p.windowLine = 0
	p.windowStarted = false
	p.frame.Fill(0)
}

// Frame returns the frame buffer the PPU renders into. It is complete
// (all 144 lines drawn) whenever LY is in the VBlank range.
func (p *PPU) Frame() *FrameBuffer {
	return p.frame
}

// CurrentLine returns LY, for debugger use.
func (p *PPU) CurrentLine() byte {
	return p.ly
}

// CurrentMode returns the PPU's scanline stage, for debugger use.
func (p *PPU) CurrentMode() Mode {
	return p.mode
}

// Tick advances the PPU by the T-cycles one CPU instruction consumed,
// crossing mode and line boundaries as the dot counter passes them. With
// the LCD disabled nothing advances; LY and the dot counter stay at 0.
func (p *PPU) Tick(cycles int) {
	if !bit.IsSet(lcdcLCDEnable, p.lcdc) {
		return
	}

	for cycles > 0 {
		// Consume at most one OAM-scan's worth at a time so no mode
		// boundary is stepped over.
		step := cycles
		if step > oamScanEnd {
			step = oamScanEnd
		}
		p.lineDot += step
		cycles -= step

		if p.lineDot >= lineCycles {
			p.lineDot -= lineCycles
			p.advanceLine()
			continue
		}

		if p.ly >= visibleLines {
			continue
		}

		switch {
		case p.lineDot <= oamScanEnd:
			if p.mode != ModeOAMScan {
				p.setMode(ModeOAMScan)
			}
		case p.lineDot <= transferEnd:
			// Once a line has reached HBlank it stays there; don't flip
			// back when a large step lands in the transfer range.
			if p.mode != ModeTransfer && p.mode != ModeHBlank {
				p.setMode(ModeTransfer)
			}
		default:
			if p.mode != ModeHBlank {
				p.setMode(ModeHBlank)
				p.drawLine()
			}
		}
	}
}

func (p *PPU) advanceLine() {
	p.ly = (p.ly + 1) % linesPerFrame
	p.compareLYC()

	switch p.ly {
	case visibleLines:
		p.setMode(ModeVBlank)
		p.irq(addr.VBlankInterrupt)
	case 0:
		// New frame: the window line counter re-arms.
		p.windowStarted = false
		p.windowLine = 0
	}
}

// setMode records the new scanline stage and raises the LCD STAT interrupt
// when that stage's enable bit is set. Entering Transfer never interrupts.
func (p *PPU) setMode(mode Mode) {
	p.mode = mode

	var enableBit uint8
	switch mode {
	case ModeHBlank:
		enableBit = statHBlankIRQ
	case ModeVBlank:
		enableBit = statVBlankIRQ
	case ModeOAMScan:
		enableBit = statOAMIRQ
	default:
		return
	}
	if bit.IsSet(enableBit, p.stat) {
		p.irq(addr.LCDSTATInterrupt)
	}
}

func (p *PPU) compareLYC() {
	if p.ly == p.lyc && bit.IsSet(statLYCIRQ, p.stat) {
		p.irq(addr.LCDSTATInterrupt)
	}
}

// Read returns a byte from VRAM, OAM or the LCD register file. The MMU
// guarantees the address is in one of those ranges.
func (p *PPU) Read(address uint16) byte {
	switch {
	case address >= 0x8000 && address <= 0x9FFF:
		return p.vram[address-0x8000]
	case address >= addr.OAMStart && address <= addr.OAMEnd:
		return p.oam[address-addr.OAMStart]
	}

	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		v := 0x80 | p.stat&0x78 | byte(p.mode)
		if p.ly == p.lyc {
			v = bit.Set(statCoincidence, v)
		}
		return v
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.ly
	case addr.LYC:
		return p.lyc
	case addr.DMA:
		return p.dma
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	default:
		panic(fmt.Sprintf("video: read of non-PPU address 0x%04X", address))
	}
}

// Write stores a byte into VRAM, OAM or the LCD register file, applying the
// register quirks: LY is read-only, STAT keeps its derived low bits, and
// dropping LCDC bit 7 blanks the frame and rewinds the scanline machine.
func (p *PPU) Write(address uint16, value byte) {
	switch {
	case address >= 0x8000 && address <= 0x9FFF:
		p.vram[address-0x8000] = value
		return
	case address >= addr.OAMStart && address <= addr.OAMEnd:
		p.oam[address-addr.OAMStart] = value
		return
	}

	switch address {
	case addr.LCDC:
		wasEnabled := bit.IsSet(lcdcLCDEnable, p.lcdc)
		p.lcdc = value
		if wasEnabled && !bit.IsSet(lcdcLCDEnable, value) {
			p.disableLCD()
		}
	case addr.STAT:
		p.stat = value & 0x78
	case addr.SCY:
		p.scy = value
	case addr.SCX:
		p.scx = value
	case addr.LY:
		// read-only
	case addr.LYC:
		p.lyc = value
		p.compareLYC()
	case addr.DMA:
		p.dma = value
	case addr.BGP:
		p.bgp = value
	case addr.OBP0:
		p.obp0 = value
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
	case addr.WX:
		p.wx = value
	default:
		panic(fmt.Sprintf("video: write of non-PPU address 0x%04X", address))
	}
}

// disableLCD handles the LCDC bit 7 1->0 transition: mode forced to VBlank,
// LY and the dot counter rewound, the window counter cleared, and a blank
// frame emitted in place of whatever was mid-draw.
func (p *PPU) disableLCD() {
	p.mode = ModeVBlank
	p.ly = 0
	p.lineDot = 0
	p.windowStarted = false
	p.windowLine = 0
	p.frame.Fill(0)
}

// drawLine renders the scanline LY into the frame buffer. Called exactly
// once per visible line, at its HBlank transition.
func (p *PPU) drawLine() {
	if int(p.ly) >= visibleLines {
		return
	}
	for x := 0; x < FrameWidth; x++ {
		p.bgIndex[x] = 0
		p.frame.set(x, int(p.ly), 0)
	}
	p.drawBackgroundLine()
	p.drawSpriteLine()
}

// drawBackgroundLine renders the background and window layers for line LY,
// choosing window vs. background per pixel.
func (p *PPU) drawBackgroundLine() {
	if !bit.IsSet(lcdcBGEnable, p.lcdc) {
		return
	}

	windowEnabled := bit.IsSet(lcdcWindowEnable, p.lcdc)
	if windowEnabled && !p.windowStarted && p.ly == p.wy {
		p.windowStarted = true
		p.windowLine = 0
	}

	windowLeft := int(p.wx) - 7
	windowUsed := false

	for x := 0; x < FrameWidth; x++ {
		useWindow := windowEnabled && p.windowStarted && p.wx <= 166 && x >= windowLeft

		var fullX, fullY byte
		var mapBit uint8
		if useWindow {
			fullX = byte(x - windowLeft)
			fullY = byte(p.windowLine)
			mapBit = lcdcWindowTileMap
			windowUsed = true
		} else {
			fullX = byte(x) + p.scx
			fullY = p.ly + p.scy
			mapBit = lcdcBGTileMap
		}

		mapBase := uint16(addr.TileMap0)
		if bit.IsSet(mapBit, p.lcdc) {
			mapBase = addr.TileMap1
		}
		mapAddr := mapBase + uint16(fullY/8)*32 + uint16(fullX/8)
		tileIndex := p.vram[mapAddr-0x8000]

		lo, hi := p.tileRow(tileIndex, int(fullY%8))
		index := tilePixel(lo, hi, int(fullX%8))

		p.bgIndex[x] = index
		p.frame.set(x, int(p.ly), shadeFor(p.bgp, index))
	}

	if windowUsed {
		p.windowLine++
	}
}

// tileRow fetches the two bit-plane bytes for row y (0-7) of a bg/window
// tile, honoring the LCDC tile-data addressing mode: unsigned from 0x8000,
// or signed with origin 0x9000.
func (p *PPU) tileRow(tileIndex byte, y int) (lo, hi byte) {
	var tileAddr int
	if bit.IsSet(lcdcTileData, p.lcdc) {
		tileAddr = 0x8000 + int(tileIndex)*16
	} else {
		tileAddr = 0x8800 + (int(int8(tileIndex))+128)*16
	}
	offset := tileAddr - 0x8000 + y*2
	return p.vram[offset], p.vram[offset+1]
}

// tilePixel combines the two bit-plane bytes into the 2-bit color index of
// column x (0-7). Bit 7 of each byte is column 0.
func tilePixel(lo, hi byte, x int) byte {
	mask := byte(0x80) >> x
	var index byte
	if lo&mask != 0 {
		index |= 1
	}
	if hi&mask != 0 {
		index |= 2
	}
	return index
}

// shadeFor runs a 2-bit color index through a BGP/OBP palette register.
func shadeFor(palette byte, index byte) byte {
	return (palette >> (2 * index)) & 0x03
}
