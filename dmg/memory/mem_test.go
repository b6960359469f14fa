package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmgcore/dmgcore/dmg/addr"
)

func TestWRAMAndHRAMReadBack(t *testing.T) {
	mmu := New()

	mmu.Write(0xC000, 0x11)
	mmu.Write(0xDFFF, 0x22)
	mmu.Write(0xFF80, 0x33)
	mmu.Write(0xFFFE, 0x44)

	assert.Equal(t, byte(0x11), mmu.Read(0xC000))
	assert.Equal(t, byte(0x22), mmu.Read(0xDFFF))
	assert.Equal(t, byte(0x33), mmu.Read(0xFF80))
	assert.Equal(t, byte(0x44), mmu.Read(0xFFFE))
}

func TestEchoRAMAliasesWRAM(t *testing.T) {
	mmu := New()

	mmu.Write(0xC123, 0x5A)
	assert.Equal(t, byte(0x5A), mmu.Read(0xE123))

	mmu.Write(0xE456, 0xA5)
	assert.Equal(t, byte(0xA5), mmu.Read(0xC456))
}

func TestVRAMAndOAMRouteToPPU(t *testing.T) {
	mmu := New()

	mmu.Write(0x8000, 0x77)
	assert.Equal(t, byte(0x77), mmu.PPU().Read(0x8000))
	assert.Equal(t, byte(0x77), mmu.Read(0x8000))

	mmu.Write(0xFE00, 0x88)
	assert.Equal(t, byte(0x88), mmu.Read(0xFE00))
}

func TestUnmappedRegionReadsZeroAndDropsWrites(t *testing.T) {
	mmu := New()

	mmu.Write(0xFEA0, 0xFF)
	mmu.Write(0xFEFF, 0xFF)

	assert.Equal(t, byte(0), mmu.Read(0xFEA0))
	assert.Equal(t, byte(0), mmu.Read(0xFEFF))
}

func TestInterruptRegistersUpperBitsReadOne(t *testing.T) {
	mmu := New()

	mmu.Write(addr.IF, 0x01)
	mmu.Write(addr.IE, 0x05)

	assert.Equal(t, byte(0xE1), mmu.Read(addr.IF))
	assert.Equal(t, byte(0xE5), mmu.Read(addr.IE))
}

func TestRequestInterruptSetsIFBit(t *testing.T) {
	mmu := New()

	mmu.RequestInterrupt(addr.TimerInterrupt)
	assert.Equal(t, byte(0x04), mmu.Read(addr.IF)&0x1F)

	mmu.RequestInterrupt(addr.JoypadInterrupt)
	assert.Equal(t, byte(0x14), mmu.Read(addr.IF)&0x1F)
}

func TestOAMDMACopies160Bytes(t *testing.T) {
	mmu := New()
	for i := uint16(0); i < 160; i++ {
		mmu.Write(0xC000+i, byte(i))
	}

	mmu.Write(addr.DMA, 0xC0)

	for i := uint16(0); i < 160; i++ {
		require.Equal(t, byte(i), mmu.Read(0xFE00+i), "OAM offset %d", i)
	}
	assert.Equal(t, byte(0xC0), mmu.Read(addr.DMA))
}

func TestBootROMOverlaysLowROM(t *testing.T) {
	mmu := New()
	boot := make([]byte, 16)
	boot[0] = 0xAA

	mmu.LoadBootROM(boot)
	require.True(t, mmu.HasBootROM())

	assert.Equal(t, byte(0xAA), mmu.Read(0x0000))
	assert.Equal(t, byte(0xFF), mmu.Read(0x0010), "past the image but inside the window")

	mmu.Write(addr.BootROMDisable, 0x01)
	assert.False(t, mmu.HasBootROM())
}

func TestJoypadMatrixSelection(t *testing.T) {
	mmu := New()

	// Neither half selected: low nibble floats high.
	mmu.Write(addr.P1, 0x30)
	assert.Equal(t, byte(0xFF), mmu.Read(addr.P1))

	mmu.HandleKeyPress(JoypadA)
	mmu.HandleKeyPress(JoypadRight)

	// Select action buttons (bit 5 low).
	mmu.Write(addr.P1, 0x10)
	assert.Equal(t, byte(0x0E), mmu.Read(addr.P1)&0x0F, "A pressed reads 0 in bit 0")

	// Select directions (bit 4 low).
	mmu.Write(addr.P1, 0x20)
	assert.Equal(t, byte(0x0E), mmu.Read(addr.P1)&0x0F, "Right pressed reads 0 in bit 0")

	mmu.HandleKeyRelease(JoypadRight)
	assert.Equal(t, byte(0x0F), mmu.Read(addr.P1)&0x0F)
}

func TestJoypadPressRaisesInterrupt(t *testing.T) {
	mmu := New()
	mmu.Write(addr.P1, 0x10) // select action buttons

	mmu.HandleKeyPress(JoypadStart)
	assert.Equal(t, byte(0x10), mmu.Read(addr.IF)&0x1F)

	// Releasing (or re-pressing an already-pressed key) is not an edge.
	mmu.Write(addr.IF, 0)
	mmu.HandleKeyRelease(JoypadStart)
	mmu.HandleKeyPress(JoypadStart)
	mmu.HandleKeyPress(JoypadStart)
	assert.Equal(t, byte(0x10), mmu.Read(addr.IF)&0x1F)
}

func TestJoypadInterruptGatedBySelection(t *testing.T) {
	mmu := New()
	mmu.Write(addr.P1, 0x10) // select action buttons
	mmu.Write(addr.IF, 0)

	// A d-pad press is invisible under this selection: no edge, no irq.
	mmu.HandleKeyPress(JoypadRight)
	assert.Equal(t, byte(0x00), mmu.Read(addr.IF)&0x1F)

	// Switching the selector to the d-pad exposes the held Right: edge.
	mmu.Write(addr.P1, 0x20)
	assert.Equal(t, byte(0x10), mmu.Read(addr.IF)&0x1F)

	// With neither group selected the lines float high; nothing fires.
	mmu.Write(addr.IF, 0)
	mmu.Write(addr.P1, 0x30)
	mmu.HandleKeyPress(JoypadB)
	assert.Equal(t, byte(0x00), mmu.Read(addr.IF)&0x1F)
}

func TestSerialTransferThroughMMU(t *testing.T) {
	mmu := New()

	mmu.Write(addr.SB, 'X')
	mmu.Write(addr.SC, 0x81)
	mmu.Tick(4096)

	assert.Equal(t, byte(0xFF), mmu.Read(addr.SB))
	assert.Equal(t, byte(0x08), mmu.Read(addr.IF)&0x1F, "serial interrupt raised")
}

func TestUnknownMapperInstallsNull(t *testing.T) {
	data := make([]byte, MinCartridgeSize)
	data[cartridgeTypeAddress] = 0xFC // camera, unsupported

	mmu := NewWithCartridge(NewCartridgeWithData(data))

	assert.Equal(t, byte(0xFF), mmu.Read(0x0000))
	assert.Equal(t, byte(0xFF), mmu.Read(0x4000))
	assert.Equal(t, byte(0xFF), mmu.Read(0xA000))
}

func TestResetPreservesBatteryRAM(t *testing.T) {
	data := make([]byte, 0x8000)
	data[cartridgeTypeAddress] = 0x03 // MBC1+RAM+BATTERY
	data[ramSizeAddress] = 0x02       // 8 KiB

	mmu := NewWithCartridge(NewCartridgeWithData(data))
	mmu.Write(0x0000, 0x0A) // enable RAM
	mmu.Write(0xA000, 0x5C)
	mmu.Write(0xC000, 0x99)

	mmu.Reset()

	assert.Equal(t, byte(0), mmu.Read(0xC000), "WRAM cleared")
	mmu.Write(0x0000, 0x0A)
	assert.Equal(t, byte(0x5C), mmu.Read(0xA000), "battery RAM survives reset")
}
