package dmg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmulator(t *testing.T) {
	e := New()
	require.NotNil(t, e)
	assert.Equal(t, uint16(0x100), e.GetCPU().GetPC())
	assert.Equal(t, uint64(0), e.GetInstructionCount())
	assert.Equal(t, uint64(0), e.GetFrameCount())
}

func TestStepAdvancesOneInstruction(t *testing.T) {
	e := New()
	startPC := e.GetCPU().GetPC()

	pc, mnemonic, cycles := e.Step()

	assert.Equal(t, startPC, pc)
	assert.NotEmpty(t, mnemonic)
	assert.Greater(t, cycles, 0)
	assert.Equal(t, uint64(1), e.GetInstructionCount())
}

func TestStepFrameAdvancesExactlyOneFrame(t *testing.T) {
	e := New()

	carry, err := e.StepFrame(0)

	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.GetFrameCount())
	assert.GreaterOrEqual(t, carry, 0)
	assert.Less(t, carry, 24) // no single instruction overruns by more than its own cost
}

func TestTraceFuncFiresOnStep(t *testing.T) {
	e := New()

	var calls int
	var lastPC uint16
	e.SetTraceFunc(func(pc uint16, mnemonic string, cycles int) {
		calls++
		lastPC = pc
	})

	pc, _, _ := e.Step()

	assert.Equal(t, 1, calls)
	assert.Equal(t, pc, lastPC)
}

func TestResetRestoresInitialState(t *testing.T) {
	e := New()
	e.Step()
	e.Step()
	require.Equal(t, uint64(2), e.GetInstructionCount())

	e.Reset()

	assert.Equal(t, uint64(0), e.GetInstructionCount())
	assert.Equal(t, uint16(0x100), e.GetCPU().GetPC())
}

func TestLoadBootROMRewindsPC(t *testing.T) {
	e := New()
	assert.False(t, e.GetMMU().HasBootROM())

	boot := make([]byte, 256)
	e.LoadBootROM(boot)

	assert.True(t, e.GetMMU().HasBootROM())
	assert.Equal(t, uint16(0x0000), e.GetCPU().GetPC())
}

func TestDebuggerSingleStep(t *testing.T) {
	e := New()
	e.DebuggerStepInstruction()

	e.RunUntilFrame()
	assert.Equal(t, uint64(1), e.GetInstructionCount())
	assert.Equal(t, DebuggerPaused, e.GetDebuggerState())

	// A second RunUntilFrame call with no new step request does nothing.
	e.RunUntilFrame()
	assert.Equal(t, uint64(1), e.GetInstructionCount())
}

func TestDebuggerPauseStopsExecution(t *testing.T) {
	e := New()
	e.DebuggerPause()

	e.RunUntilFrame()

	assert.Equal(t, uint64(0), e.GetInstructionCount())
	assert.Equal(t, uint64(0), e.GetFrameCount())
}

func TestStepFrameSurfacesFaults(t *testing.T) {
	e := New()
	e.GetMMU().Write(0xC000, 0xD3) // illegal opcode
	e.GetCPU().SetPC(0xC000)

	_, err := e.StepFrame(0)

	require.Error(t, err)
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Contains(t, fault.Reason, "illegal opcode 0xD3")
}

func TestSaveRoundTripWithNoBattery(t *testing.T) {
	e := New()
	_, ok := e.SaveSize()
	assert.False(t, ok)
	assert.Nil(t, e.SnapshotSave())
}

func TestCartInfoOnEmptyCartridge(t *testing.T) {
	e := New()
	info := e.CartInfo()
	assert.Equal(t, "", info.Title)
}
