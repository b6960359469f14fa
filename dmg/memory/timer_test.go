package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmgcore/dmgcore/dmg/addr"
)

func TestDIVIncrementsEvery256Cycles(t *testing.T) {
	var tm Timer

	tm.Tick(255)
	assert.Equal(t, byte(0), tm.Read(addr.DIV))

	tm.Tick(1)
	assert.Equal(t, byte(1), tm.Read(addr.DIV))

	tm.Tick(256 * 5)
	assert.Equal(t, byte(6), tm.Read(addr.DIV))
}

func TestDIVWriteResetsPrescaler(t *testing.T) {
	var tm Timer

	tm.Tick(1000)
	require.NotZero(t, tm.Read(addr.DIV))

	tm.Write(addr.DIV, 0xAB) // written value is irrelevant

	assert.Equal(t, byte(0), tm.Read(addr.DIV))
	tm.Tick(255)
	assert.Equal(t, byte(0), tm.Read(addr.DIV), "sub-counter reset too")
}

func TestTIMAPeriodSelection(t *testing.T) {
	periods := map[byte]int{
		0x04: 1024,
		0x05: 16,
		0x06: 64,
		0x07: 256,
	}

	for tac, period := range periods {
		var tm Timer
		tm.Write(addr.TAC, tac)

		tm.Tick(period * 3)
		assert.Equal(t, byte(3), tm.Read(addr.TIMA), "TAC=0x%02X", tac)
	}
}

func TestTIMADisabled(t *testing.T) {
	var tm Timer
	tm.Write(addr.TAC, 0x01) // period set but enable bit clear

	tm.Tick(10000)

	assert.Equal(t, byte(0), tm.Read(addr.TIMA))
}

func TestTIMAOverflowReloadsAndInterrupts(t *testing.T) {
	var tm Timer
	fired := 0
	tm.TimerInterruptHandler = func() { fired++ }

	tm.Write(addr.TAC, 0x05) // enabled, /16
	tm.Write(addr.TMA, 0x42)
	tm.Write(addr.TIMA, 0xFF)

	tm.Tick(16)

	assert.Equal(t, byte(0x42), tm.Read(addr.TIMA))
	assert.Equal(t, 1, fired)
}

func TestTMAReloadUsedOnEveryOverflow(t *testing.T) {
	var tm Timer
	fired := 0
	tm.TimerInterruptHandler = func() { fired++ }

	tm.Write(addr.TAC, 0x05)
	tm.Write(addr.TMA, 0xFE)
	tm.Write(addr.TIMA, 0xFE)

	// 0xFE -> 0xFF -> overflow -> 0xFE -> 0xFF
	tm.Tick(16 * 3)

	assert.Equal(t, 1, fired)
	assert.Equal(t, byte(0xFF), tm.Read(addr.TIMA))
}
