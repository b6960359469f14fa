package video

import (
	"sort"

	"github.com/dmgcore/dmgcore/dmg/bit"
)

// Sprite is one decoded OAM entry. X and Y are the raw OAM values; the
// on-screen position is (X-8, Y-16).
type Sprite struct {
	Y, X      byte
	TileIndex byte
	OAMIndex  int

	PaletteOBP1 bool
	FlipX       bool
	FlipY       bool
	BehindBG    bool
}

// OAM attribute flag bits (byte 3 of each entry).
const (
	attrPalette  = 4
	attrFlipX    = 5
	attrFlipY    = 6
	attrBehindBG = 7
)

func decodeSprite(entry []byte, oamIndex int) Sprite {
	flags := entry[3]
	return Sprite{
		Y:           entry[0],
		X:           entry[1],
		TileIndex:   entry[2],
		OAMIndex:    oamIndex,
		PaletteOBP1: bit.IsSet(attrPalette, flags),
		FlipX:       bit.IsSet(attrFlipX, flags),
		FlipY:       bit.IsSet(attrFlipY, flags),
		BehindBG:    bit.IsSet(attrBehindBG, flags),
	}
}

// collectLineSprites scans OAM in order for sprites whose Y range covers
// line ly, stopping at the hardware limit of 10. X does not matter for
// selection: off-screen sprites still use up slots.
func (p *PPU) collectLineSprites(ly, height int, out []Sprite) []Sprite {
	for i := 0; i < 40 && len(out) < 10; i++ {
		entry := p.oam[i*4 : i*4+4]
		top := int(entry[0]) - 16
		if ly < top || ly >= top+height {
			continue
		}
		out = append(out, decodeSprite(entry, i))
	}
	return out
}

// drawSpriteLine renders the sprites overlapping line LY. Draw priority is
// X ascending with OAM order breaking ties; among overlapping sprites the
// first opaque pixel claims its column, and lower-priority sprites never
// show through it (even when the winner is hidden behind the background).
func (p *PPU) drawSpriteLine() {
	if !bit.IsSet(lcdcObjEnable, p.lcdc) {
		return
	}

	height := 8
	if bit.IsSet(lcdcObjSize, p.lcdc) {
		height = 16
	}

	ly := int(p.ly)
	var buf [10]Sprite
	sprites := p.collectLineSprites(ly, height, buf[:0])
	sort.SliceStable(sprites, func(i, j int) bool {
		return sprites[i].X < sprites[j].X
	})

	var claimed [FrameWidth]bool
	for _, s := range sprites {
		left := int(s.X) - 8
		row := ly - (int(s.Y) - 16)
		if s.FlipY {
			row = height - 1 - row
		}

		tile := s.TileIndex
		if height == 16 {
			tile &= 0xFE
		}
		offset := int(tile)*16 + row*2
		lo, hi := p.vram[offset], p.vram[offset+1]

		palette := p.obp0
		if s.PaletteOBP1 {
			palette = p.obp1
		}

		for col := 0; col < 8; col++ {
			x := left + col
			if x < 0 || x >= FrameWidth {
				continue
			}
			if claimed[x] {
				continue
			}

			tileCol := col
			if s.FlipX {
				tileCol = 7 - col
			}
			index := tilePixel(lo, hi, tileCol)
			if index == 0 {
				continue
			}
			claimed[x] = true

			if s.BehindBG && p.bgIndex[x] != 0 {
				continue
			}
			p.frame.set(x, ly, shadeFor(palette, index))
		}
	}
}
