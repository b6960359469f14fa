package video

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmgcore/dmgcore/dmg/addr"
)

// writeSprite fills OAM slot n with a raw (Y, X, tile, flags) entry.
func writeSprite(p *PPU, n int, y, x, tile, flags byte) {
	base := addr.OAMStart + uint16(n*4)
	p.Write(base, y)
	p.Write(base+1, x)
	p.Write(base+2, tile)
	p.Write(base+3, flags)
}

// spriteTestPPU returns a PPU with sprites enabled, identity palettes and
// two solid tiles loaded: tile 1 draws index 1, tile 2 draws index 2.
func spriteTestPPU(t *testing.T) *PPU {
	t.Helper()
	p, _ := newTestPPU()
	p.Write(addr.LCDC, 0x91|1<<lcdcObjEnable)
	p.Write(addr.BGP, identityPalette)
	p.Write(addr.OBP0, identityPalette)
	p.Write(addr.OBP1, identityPalette)
	loadTile(p, 1, 1)
	loadTile(p, 2, 2)
	return p
}

func TestSpriteBasicPlacement(t *testing.T) {
	p := spriteTestPPU(t)
	// OAM Y/X carry +16/+8 offsets: (16, 8) is screen (0, 0).
	writeSprite(p, 0, 16, 8, 1, 0)

	renderLine(p, 0)

	for x := 0; x < 8; x++ {
		assert.Equal(t, byte(1), p.Frame().At(x, 0))
	}
	assert.Equal(t, byte(0), p.Frame().At(8, 0))
}

func TestSpriteYRangeSelection(t *testing.T) {
	p := spriteTestPPU(t)
	writeSprite(p, 0, 30, 8, 1, 0) // screen rows 14-21

	renderLine(p, 13)
	assert.Equal(t, byte(0), p.Frame().At(0, 13))
	renderLine(p, 14)
	assert.Equal(t, byte(1), p.Frame().At(0, 14))
	renderLine(p, 21)
	assert.Equal(t, byte(1), p.Frame().At(0, 21))
	renderLine(p, 22)
	assert.Equal(t, byte(0), p.Frame().At(0, 22))
}

func TestSpriteLowerXWins(t *testing.T) {
	p := spriteTestPPU(t)
	// Slot order is reversed on purpose: the sprite at higher OAM index
	// but lower X must win the overlap.
	writeSprite(p, 0, 16, 12, 2, 0)
	writeSprite(p, 1, 16, 8, 1, 0)

	renderLine(p, 0)

	assert.Equal(t, byte(1), p.Frame().At(4, 0), "overlap goes to the lower-X sprite")
	assert.Equal(t, byte(1), p.Frame().At(7, 0))
	assert.Equal(t, byte(2), p.Frame().At(8, 0), "past the winner, the other sprite shows")
	assert.Equal(t, byte(2), p.Frame().At(11, 0))
}

func TestSpriteOAMOrderBreaksXTies(t *testing.T) {
	p := spriteTestPPU(t)
	writeSprite(p, 0, 16, 8, 2, 0)
	writeSprite(p, 1, 16, 8, 1, 0)

	renderLine(p, 0)

	assert.Equal(t, byte(2), p.Frame().At(0, 0), "same X: earlier OAM slot wins")
}

func TestSpriteTenPerLineLimit(t *testing.T) {
	p := spriteTestPPU(t)
	// Eleven sprites on the same line, at X = 8, 16, ... The eleventh
	// (rightmost) must be dropped even though its pixels are free.
	for i := 0; i < 11; i++ {
		writeSprite(p, i, 16, byte(8+i*8), 1, 0)
	}

	renderLine(p, 0)

	assert.Equal(t, byte(1), p.Frame().At(9*8, 0), "tenth sprite drawn")
	assert.Equal(t, byte(0), p.Frame().At(10*8, 0), "eleventh sprite dropped")
}

func TestSpriteTransparencyShowsLowerPriority(t *testing.T) {
	p := spriteTestPPU(t)
	// Tile 3: left half transparent (index 0), right half index 1.
	for row := uint16(0); row < 8; row++ {
		p.Write(0x8000+3*16+row*2, 0x0F)
	}
	writeSprite(p, 0, 16, 8, 3, 0)
	writeSprite(p, 1, 16, 8, 2, 0)

	renderLine(p, 0)

	assert.Equal(t, byte(2), p.Frame().At(0, 0), "transparent columns fall through")
	assert.Equal(t, byte(1), p.Frame().At(4, 0), "opaque columns win")
}

func TestSpriteFlips(t *testing.T) {
	p := spriteTestPPU(t)
	// Tile 4: only the top-left pixel is set.
	p.Write(0x8000+4*16, 0x80)

	writeSprite(p, 0, 16, 8, 4, 0)
	renderLine(p, 0)
	assert.Equal(t, byte(1), p.Frame().At(0, 0))

	writeSprite(p, 0, 16, 8, 4, 1<<attrFlipX)
	renderLine(p, 0)
	assert.Equal(t, byte(1), p.Frame().At(7, 0))

	writeSprite(p, 0, 32, 8, 4, 1<<attrFlipY)
	renderLine(p, 23)
	assert.Equal(t, byte(1), p.Frame().At(0, 23))
}

func TestTallSpritesMaskTileBit(t *testing.T) {
	p := spriteTestPPU(t)
	p.Write(addr.LCDC, p.Read(addr.LCDC)|1<<lcdcObjSize)
	// Tiles 6 and 7 form one 8x16 sprite; a tile index of 7 must still
	// fetch from tile 6 for the top half.
	loadTile(p, 6, 1)
	loadTile(p, 7, 2)
	writeSprite(p, 0, 16, 8, 7, 0)

	renderLine(p, 0)
	assert.Equal(t, byte(1), p.Frame().At(0, 0), "top half from the even tile")
	renderLine(p, 8)
	assert.Equal(t, byte(2), p.Frame().At(0, 8), "bottom half from the odd tile")
}

func TestSpriteBehindBackground(t *testing.T) {
	p := spriteTestPPU(t)
	// Background: tile 1 (index 1) for the first map column, tile 0
	// (index 0) for the second.
	p.Write(addr.TileMap0, 1)
	writeSprite(p, 0, 16, 8, 2, 1<<attrBehindBG)
	writeSprite(p, 1, 16, 16, 2, 1<<attrBehindBG)

	renderLine(p, 0)

	assert.Equal(t, byte(1), p.Frame().At(0, 0), "hidden behind non-zero background")
	assert.Equal(t, byte(2), p.Frame().At(8, 0), "shows over background index 0")
}

func TestSpriteOBP1Selection(t *testing.T) {
	p := spriteTestPPU(t)
	// OBP1 maps index 2 to shade 0b11.
	p.Write(addr.OBP1, 0x30)
	writeSprite(p, 0, 16, 8, 2, 1<<attrPalette)

	renderLine(p, 0)

	assert.Equal(t, byte(3), p.Frame().At(0, 0))
}

func TestSpritesDisabled(t *testing.T) {
	p := spriteTestPPU(t)
	p.Write(addr.LCDC, p.Read(addr.LCDC)&^byte(1<<lcdcObjEnable))
	writeSprite(p, 0, 16, 8, 1, 0)

	renderLine(p, 0)

	assert.Equal(t, byte(0), p.Frame().At(0, 0))
}

func TestDecodeSpriteFlags(t *testing.T) {
	s := decodeSprite([]byte{0x20, 0x30, 0x05, 0xF0}, 7)

	assert.Equal(t, byte(0x20), s.Y)
	assert.Equal(t, byte(0x30), s.X)
	assert.Equal(t, byte(0x05), s.TileIndex)
	assert.Equal(t, 7, s.OAMIndex)
	assert.True(t, s.PaletteOBP1)
	assert.True(t, s.FlipX)
	assert.True(t, s.FlipY)
	assert.True(t, s.BehindBG)
}
