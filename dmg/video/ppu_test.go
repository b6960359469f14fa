package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmgcore/dmgcore/dmg/addr"
)

// irqRecorder collects interrupt requests so tests can assert on exactly
// what the PPU raised.
type irqRecorder struct {
	raised []addr.Interrupt
}

func (r *irqRecorder) record(i addr.Interrupt) {
	r.raised = append(r.raised, i)
}

func (r *irqRecorder) count(i addr.Interrupt) int {
	n := 0
	for _, got := range r.raised {
		if got == i {
			n++
		}
	}
	return n
}

func newTestPPU() (*PPU, *irqRecorder) {
	rec := &irqRecorder{}
	return New(rec.record), rec
}

// atLine rewinds the PPU to the start of a given visible line, as if the
// frame had just progressed there.
func atLine(p *PPU, line byte) {
	p.ly = line
	p.lineDot = 0
	p.mode = ModeHBlank
}

func TestResetValues(t *testing.T) {
	p, _ := newTestPPU()

	assert.Equal(t, byte(0x91), p.Read(addr.LCDC))
	assert.Equal(t, byte(0xFC), p.Read(addr.BGP))
	assert.Equal(t, byte(0xFF), p.Read(addr.DMA))
	assert.Equal(t, ModeVBlank, p.CurrentMode())

	// STAT reads with bit 7 set and the current mode in bits 1-0.
	stat := p.Read(addr.STAT)
	assert.Equal(t, byte(0x80), stat&0x80)
	assert.Equal(t, byte(ModeVBlank), stat&0x03)
}

func TestModeSequenceAcrossOneLine(t *testing.T) {
	p, _ := newTestPPU()
	atLine(p, 0)

	p.Tick(80)
	assert.Equal(t, ModeOAMScan, p.CurrentMode())

	p.Tick(88)
	assert.Equal(t, ModeTransfer, p.CurrentMode())

	p.Tick(4)
	assert.Equal(t, ModeHBlank, p.CurrentMode())

	// Finish the line: LY advances, next tick re-enters OAM scan.
	p.Tick(456 - 172)
	assert.Equal(t, byte(1), p.Read(addr.LY))
	p.Tick(4)
	assert.Equal(t, ModeOAMScan, p.CurrentMode())
}

func TestVBlankEntryRaisesInterrupt(t *testing.T) {
	p, rec := newTestPPU()
	atLine(p, 143)

	p.Tick(456)

	assert.Equal(t, byte(144), p.Read(addr.LY))
	assert.Equal(t, ModeVBlank, p.CurrentMode())
	assert.Equal(t, 1, rec.count(addr.VBlankInterrupt))
}

func TestVBlankStatInterruptWhenEnabled(t *testing.T) {
	p, rec := newTestPPU()
	atLine(p, 143)
	p.Write(addr.STAT, 1<<statVBlankIRQ)

	p.Tick(456)

	assert.Equal(t, 1, rec.count(addr.LCDSTATInterrupt))
}

func TestStatModeInterrupts(t *testing.T) {
	p, rec := newTestPPU()
	atLine(p, 10)
	p.mode = ModeVBlank // force transitions into every visible mode
	p.Write(addr.STAT, 1<<statOAMIRQ|1<<statHBlankIRQ)

	p.Tick(80) // -> OAMScan
	assert.Equal(t, 1, rec.count(addr.LCDSTATInterrupt))

	p.Tick(88) // -> Transfer, no interrupt for mode 3
	assert.Equal(t, 1, rec.count(addr.LCDSTATInterrupt))

	p.Tick(4) // -> HBlank
	assert.Equal(t, 2, rec.count(addr.LCDSTATInterrupt))
}

func TestLYCCoincidence(t *testing.T) {
	p, rec := newTestPPU()
	atLine(p, 41)
	p.Write(addr.LYC, 42)
	p.Write(addr.STAT, 1<<statLYCIRQ)

	require.Zero(t, p.Read(addr.STAT)&(1<<statCoincidence))

	p.Tick(456)

	assert.Equal(t, byte(42), p.Read(addr.LY))
	assert.NotZero(t, p.Read(addr.STAT)&(1<<statCoincidence))
	assert.Equal(t, 1, rec.count(addr.LCDSTATInterrupt))
}

func TestLYCWriteRechecksCoincidence(t *testing.T) {
	p, rec := newTestPPU()
	atLine(p, 50)
	p.Write(addr.STAT, 1<<statLYCIRQ)

	p.Write(addr.LYC, 50)

	assert.NotZero(t, p.Read(addr.STAT)&(1<<statCoincidence))
	assert.Equal(t, 1, rec.count(addr.LCDSTATInterrupt))
}

func TestLYWritesIgnored(t *testing.T) {
	p, _ := newTestPPU()
	atLine(p, 77)

	p.Write(addr.LY, 0)

	assert.Equal(t, byte(77), p.Read(addr.LY))
}

func TestStatWritePreservesLowBits(t *testing.T) {
	p, _ := newTestPPU()
	atLine(p, 5)
	p.mode = ModeTransfer
	p.Write(addr.LYC, 5)

	p.Write(addr.STAT, 0xFF)

	stat := p.Read(addr.STAT)
	assert.Equal(t, byte(0x78), stat&0x78, "bits 3-6 stored")
	assert.Equal(t, byte(ModeTransfer), stat&0x03, "mode bits derived, not written")
	assert.NotZero(t, stat&(1<<statCoincidence), "coincidence bit derived, not written")
}

func TestDisablingLCDBlanksAndRewinds(t *testing.T) {
	p, _ := newTestPPU()
	atLine(p, 100)
	p.lineDot = 200
	p.windowStarted = true
	p.windowLine = 30
	p.frame.Fill(3)

	p.Write(addr.LCDC, p.Read(addr.LCDC)&^byte(1<<lcdcLCDEnable))

	assert.Equal(t, byte(0), p.Read(addr.LY))
	assert.Equal(t, 0, p.lineDot)
	assert.Equal(t, ModeVBlank, p.CurrentMode())
	assert.False(t, p.windowStarted)
	for _, shade := range p.Frame().Shades() {
		require.Equal(t, byte(0), shade)
	}

	// A disabled LCD does not advance at all.
	p.Tick(10000)
	assert.Equal(t, byte(0), p.Read(addr.LY))
	assert.Equal(t, 0, p.lineDot)
}

func TestVRAMAndOAMReadBack(t *testing.T) {
	p, _ := newTestPPU()

	p.Write(0x8123, 0xAB)
	p.Write(0x9FFF, 0xCD)
	p.Write(addr.OAMStart+17, 0x42)

	assert.Equal(t, byte(0xAB), p.Read(0x8123))
	assert.Equal(t, byte(0xCD), p.Read(0x9FFF))
	assert.Equal(t, byte(0x42), p.Read(addr.OAMStart+17))
}

func TestFullFrameTiming(t *testing.T) {
	p, rec := newTestPPU()
	atLine(p, 0)

	// One frame of cycles walks all 154 lines and ends back at line 0.
	for i := 0; i < 154; i++ {
		p.Tick(456)
	}

	assert.Equal(t, byte(0), p.Read(addr.LY))
	assert.Equal(t, 1, rec.count(addr.VBlankInterrupt))

	for _, shade := range p.Frame().Shades() {
		require.Less(t, shade, byte(4))
	}
}
