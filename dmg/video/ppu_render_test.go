package video

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmgcore/dmgcore/dmg/addr"
)

// identityPalette maps color index i to shade i.
const identityPalette = 0xE4

// loadTile writes an 8x8 tile whose rows are all the given 2-bit index,
// at tile slot n of the 0x8000 tile data area.
func loadTile(p *PPU, n int, index byte) {
	var lo, hi byte
	if index&1 != 0 {
		lo = 0xFF
	}
	if index&2 != 0 {
		hi = 0xFF
	}
	base := uint16(0x8000 + n*16)
	for row := uint16(0); row < 8; row++ {
		p.Write(base+row*2, lo)
		p.Write(base+row*2+1, hi)
	}
}

func renderLine(p *PPU, line byte) {
	p.ly = line
	p.drawLine()
}

func TestBackgroundSolidTile(t *testing.T) {
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x91) // LCD on, bg on, unsigned tile data, map 0x9800
	p.Write(addr.BGP, identityPalette)

	loadTile(p, 1, 3)
	// Tile map row 0, column 0 -> tile 1; rest stays tile 0 (index 0).
	p.Write(addr.TileMap0, 1)

	renderLine(p, 0)

	for x := 0; x < 8; x++ {
		assert.Equal(t, byte(3), p.Frame().At(x, 0), "x=%d", x)
	}
	assert.Equal(t, byte(0), p.Frame().At(8, 0))
}

func TestBackgroundPaletteMapping(t *testing.T) {
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x91)
	// BGP 0b00_01_10_11: index 0 -> 3, 1 -> 2, 2 -> 1, 3 -> 0.
	p.Write(addr.BGP, 0x1B)

	loadTile(p, 0, 0)
	loadTile(p, 1, 3)
	p.Write(addr.TileMap0, 0)
	p.Write(addr.TileMap0+1, 1)

	renderLine(p, 0)

	assert.Equal(t, byte(3), p.Frame().At(0, 0))
	assert.Equal(t, byte(0), p.Frame().At(8, 0))
}

func TestBackgroundScrollWrapsAt256(t *testing.T) {
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x91)
	p.Write(addr.BGP, identityPalette)

	// Put a marker tile at map position (0, 0); scroll so that screen
	// (8, 4) lands on full-plane (248+8, 252+4) = (0, 0) after wrapping.
	loadTile(p, 1, 2)
	p.Write(addr.TileMap0, 1)
	p.Write(addr.SCX, 248)
	p.Write(addr.SCY, 252)

	renderLine(p, 4)

	assert.Equal(t, byte(2), p.Frame().At(8, 4))
	assert.Equal(t, byte(0), p.Frame().At(16, 4))
}

func TestSignedTileAddressing(t *testing.T) {
	p, _ := newTestPPU()
	// LCD+bg on, signed tile data (bit 4 clear), map 0x9800.
	p.Write(addr.LCDC, 0x81)
	p.Write(addr.BGP, identityPalette)

	// In signed mode tile index 0 lives at 0x9000, index -1 at 0x8FF0.
	for row := uint16(0); row < 8; row++ {
		p.Write(0x9000+row*2, 0xFF)   // tile 0 -> index 1
		p.Write(0x8FF0+row*2+1, 0xFF) // tile -1 (0xFF) -> index 2
	}
	p.Write(addr.TileMap0, 0)
	p.Write(addr.TileMap0+1, 0xFF)

	renderLine(p, 0)

	assert.Equal(t, byte(1), p.Frame().At(0, 0))
	assert.Equal(t, byte(2), p.Frame().At(8, 0))
}

func TestAlternateTileMap(t *testing.T) {
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x99) // bit 3: bg map at 0x9C00
	p.Write(addr.BGP, identityPalette)

	loadTile(p, 1, 1)
	p.Write(addr.TileMap1, 1)

	renderLine(p, 0)

	assert.Equal(t, byte(1), p.Frame().At(0, 0))
}

func TestBackgroundDisabledLeavesLineBlank(t *testing.T) {
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x90) // LCD on, bg off
	p.Write(addr.BGP, identityPalette)
	loadTile(p, 0, 3)

	renderLine(p, 0)

	for x := 0; x < FrameWidth; x++ {
		assert.Equal(t, byte(0), p.Frame().At(x, 0))
	}
}

func TestWindowOverridesBackground(t *testing.T) {
	p, _ := newTestPPU()
	// LCD, bg, window enabled; window map 0x9C00, bg map 0x9800.
	p.Write(addr.LCDC, 0x91|1<<lcdcWindowEnable|1<<lcdcWindowTileMap)
	p.Write(addr.BGP, identityPalette)

	loadTile(p, 1, 1) // background
	loadTile(p, 2, 3) // window
	for i := uint16(0); i < 32; i++ {
		p.Write(addr.TileMap0+i, 1)
		p.Write(addr.TileMap1+i, 2)
	}

	p.Write(addr.WY, 0)
	p.Write(addr.WX, 7+80) // window covers the right half

	renderLine(p, 0)

	assert.Equal(t, byte(1), p.Frame().At(79, 0), "left of window: background")
	assert.Equal(t, byte(3), p.Frame().At(80, 0), "window start")
	assert.Equal(t, byte(3), p.Frame().At(159, 0))
}

func TestWindowLineCounterOnlyAdvancesWhenVisible(t *testing.T) {
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x91|1<<lcdcWindowEnable)
	p.Write(addr.BGP, identityPalette)
	p.Write(addr.WY, 10)
	p.Write(addr.WX, 7)

	renderLine(p, 5)
	assert.False(t, p.windowStarted, "window not armed before LY reaches WY")

	renderLine(p, 10)
	assert.True(t, p.windowStarted)
	assert.Equal(t, 1, p.windowLine)

	// WX off-screen: the counter holds even though the window is armed.
	p.Write(addr.WX, 167)
	renderLine(p, 11)
	assert.Equal(t, 1, p.windowLine)

	p.Write(addr.WX, 7)
	renderLine(p, 12)
	assert.Equal(t, 2, p.windowLine)
}

func TestWindowUsesOwnLineCounter(t *testing.T) {
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x91|1<<lcdcWindowEnable)
	p.Write(addr.BGP, identityPalette)

	// Window rows 0 and 1 differ: row 0 of the window shows tile 1, the
	// map row below shows tile 2.
	loadTile(p, 1, 1)
	loadTile(p, 2, 2)
	for i := uint16(0); i < 32; i++ {
		p.Write(addr.TileMap0+i, 1)
		p.Write(addr.TileMap0+32+i, 2)
	}

	p.Write(addr.WY, 100)
	p.Write(addr.WX, 7)

	// Eight lines of window starting at LY=100 consume window rows 0-7,
	// all from the first map row regardless of LY.
	for line := byte(100); line < 108; line++ {
		renderLine(p, line)
		assert.Equal(t, byte(1), p.Frame().At(0, int(line)), "line %d", line)
	}
	renderLine(p, 108)
	assert.Equal(t, byte(2), p.Frame().At(0, 108), "window row 8 comes from the second map row")
}
