package dmg

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dmgcore/dmgcore/dmg/cpu"
	"github.com/dmgcore/dmgcore/dmg/disasm"
	"github.com/dmgcore/dmgcore/dmg/memory"
	"github.com/dmgcore/dmgcore/dmg/video"
)

// cyclesPerFrame is the fixed T-cycle budget of one DMG video frame
// (154 scanlines * 456 cycles), per spec.md §6.
const cyclesPerFrame = 70224

// DebuggerState represents the current debugger mode.
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// TraceFunc is invoked after every instruction when a trace hook is
// installed via SetTraceFunc, per spec.md §6.
type TraceFunc func(pc uint16, mnemonic string, cycles int)

// Emulator is the root struct and entry point for running the emulation. It
// owns the CPU, GPU and MMU and drives them one instruction (Step) or one
// frame (StepFrame) at a time.
type Emulator struct {
	cpu *cpu.CPU
	mem *memory.MMU

	trace TraceFunc

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
}

func (e *Emulator) init(mem *memory.MMU) {
	e.cpu = cpu.New(mem)
	e.mem = mem
}

// New creates a new emulator instance with no cartridge loaded.
func New() *Emulator {
	e := &Emulator{}
	e.init(memory.NewWithCartridge(memory.NewCartridge()))
	return e
}

// NewWithFile creates a new emulator instance and loads the ROM at path into
// it.
func NewWithFile(path string) (*Emulator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("loaded ROM data", "size", len(data))

	if len(data) < memory.MinCartridgeSize {
		return nil, fmt.Errorf("%s: %w", path, memory.ErrImageTooShort)
	}

	e := &Emulator{}
	cart := memory.NewCartridgeWithData(data)
	e.init(memory.NewWithCartridge(cart))

	info := cart.Info()
	if !info.ChecksumOK {
		slog.Warn("cartridge header checksum mismatch", "title", info.Title)
	}
	slog.Info("cartridge loaded", "title", info.Title, "mapper", info.MapperType, "rom_kib", info.ROMSizeKiB, "ram_kib", info.RAMSizeKiB)

	return e, nil
}

// LoadBootROM installs an optional boot ROM image that occupies
// 0x0000-0x00FF until a write to the boot-ROM-disable register unmaps it.
// When a boot ROM is installed, the CPU's program counter is rewound to 0
// so boot-ROM code actually executes before cartridge code.
func (e *Emulator) LoadBootROM(data []byte) {
	e.mem.LoadBootROM(data)
	if len(data) > 0 {
		e.cpu.SetPC(0x0000)
	}
}

// LoadGenie wraps the currently loaded cartridge with up to three decoded
// Game Genie cheat codes, per spec.md §4.1.
func (e *Emulator) LoadGenie(genieROM []byte, codes []string) {
	var slots [3]memory.GenieSlot
	for i, code := range codes {
		if i >= 3 {
			break
		}
		slot, ok := memory.DecodeGenieCode(code)
		if !ok {
			slog.Warn("invalid game genie code, skipping", "code", code)
			continue
		}
		slots[i] = slot
	}
	e.mem.WrapWithGenie(genieROM, slots)
}

// SetTraceFunc installs (or clears, when fn is nil) an instruction trace
// hook invoked after every Step.
func (e *Emulator) SetTraceFunc(fn TraceFunc) {
	e.trace = fn
}

// Reset restores the CPU, PPU, MMU, timer and serial state to power-on
// values. The cartridge ROM and any battery-backed RAM survive, so this is
// equivalent to pressing the reset button with the cartridge still in.
func (e *Emulator) Reset() {
	e.mem.Reset()
	e.cpu = cpu.New(e.mem)
	if e.mem.HasBootROM() {
		e.cpu.SetPC(0x0000)
	}
	e.instructionCount = 0
	e.frameCount = 0
}

// Step executes exactly one CPU instruction (or interrupt dispatch, or
// HALT-wait cycle) and returns the PC the instruction started at, its
// disassembled mnemonic and its T-cycle cost. The timer, serial port and
// PPU advance by the same cycle budget through the MMU. If a trace hook is
// installed, it fires after the step.
func (e *Emulator) Step() (pc uint16, mnemonic string, cycles int) {
	pc = e.cpu.GetPC()
	line := disasm.DisassembleAt(pc, e.mem)

	cycles = e.cpu.Exec()
	e.instructionCount++

	if e.trace != nil {
		e.trace(pc, line.Instruction, cycles)
	}

	return pc, line.Instruction, cycles
}

// Fault is a fatal emulation error (illegal opcode, unreachable decode
// branch). Real hardware would freeze; the emulator reports the fault and
// the session cannot continue.
type Fault struct {
	PC     uint16
	Reason string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("emulation fault at 0x%04X: %s", f.PC, f.Reason)
}

// recoverFault converts a panic out of the CPU core into a *Fault, so
// runtime faults cross the façade as errors rather than panics.
func (e *Emulator) recoverFault(err *error) {
	if r := recover(); r != nil {
		*err = &Fault{PC: e.cpu.GetPC(), Reason: fmt.Sprint(r)}
	}
}

// StepFrame advances the emulator by exactly one video frame's worth of
// T-cycles (cyclesPerFrame), carrying over any cycles a prior frame
// overran by. It returns the new carry, to be threaded into the next call
// so cycle accounting never drifts across frame boundaries.
func (e *Emulator) StepFrame(carryCycles int) (nextCarry int, err error) {
	defer e.recoverFault(&err)

	total := -carryCycles
	for total < cyclesPerFrame {
		_, _, cycles := e.Step()
		total += cycles
	}
	e.frameCount++
	if e.frameCount%60 == 0 {
		slog.Debug("frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
	}
	return total - cyclesPerFrame, nil
}

// RunUntilFrame advances the emulator by one frame, honoring the debugger
// state (paused/single-step/single-frame/running).
func (e *Emulator) RunUntilFrame() (err error) {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	switch state {
	case DebuggerPaused:
		return nil

	case DebuggerStep:
		e.debuggerMutex.Lock()
		requested := e.stepRequested
		e.stepRequested = false
		e.debuggerMutex.Unlock()

		if !requested {
			return nil
		}

		defer e.recoverFault(&err)
		oldPC, mnemonic, _ := e.Step()
		slog.Debug("step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "instruction", mnemonic, "new_pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
		e.SetDebuggerState(DebuggerPaused)
		return nil

	case DebuggerStepFrame:
		e.debuggerMutex.Lock()
		requested := e.frameRequested
		e.frameRequested = false
		e.debuggerMutex.Unlock()

		if !requested {
			return nil
		}

		_, err = e.StepFrame(0)
		slog.Debug("frame step completed", "frame", e.frameCount, "instructions", e.instructionCount)
		e.SetDebuggerState(DebuggerPaused)
		return err

	default: // DebuggerRunning
		_, err = e.StepFrame(0)
		return err
	}
}

// GetCurrentFrame returns the frame buffer the PPU renders into, complete
// through the most recent VBlank.
func (e *Emulator) GetCurrentFrame() *video.FrameBuffer {
	return e.mem.PPU().Frame()
}

// HandleKeyPress forwards a joypad key-down event to the MMU.
func (e *Emulator) HandleKeyPress(key memory.JoypadKey) {
	e.mem.HandleKeyPress(key)
}

// HandleKeyRelease forwards a joypad key-up event to the MMU.
func (e *Emulator) HandleKeyRelease(key memory.JoypadKey) {
	e.mem.HandleKeyRelease(key)
}

// GetCPU exposes the underlying CPU, for debugger/introspection use.
func (e *Emulator) GetCPU() *cpu.CPU {
	return e.cpu
}

// CartInfo returns the read-only header view of the loaded cartridge.
func (e *Emulator) CartInfo() memory.CartInfo {
	return e.mem.CartInfo()
}

// SaveSize reports the exact persisted save length, with ok=false when the
// loaded mapper isn't battery-backed.
func (e *Emulator) SaveSize() (int, bool) {
	return e.mem.SaveSize()
}

// LoadSave restores battery-backed RAM from a snapshot taken via
// SnapshotSave.
func (e *Emulator) LoadSave(data []byte) error {
	return e.mem.LoadSave(data)
}

// SnapshotSave returns a copy of the current battery-backed RAM contents, or
// nil when the loaded mapper isn't battery-backed.
func (e *Emulator) SnapshotSave() []byte {
	return e.mem.SnapshotSave()
}

// Debugger control methods.

func (e *Emulator) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("debugger state changed", "state", state)
}

func (e *Emulator) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *Emulator) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("emulator paused")
}

func (e *Emulator) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("emulator resumed")
}

func (e *Emulator) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("step instruction requested")
}

func (e *Emulator) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("step frame requested")
}

func (e *Emulator) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *Emulator) GetFrameCount() uint64 {
	return e.frameCount
}

func (e *Emulator) GetMMU() *memory.MMU {
	return e.mem
}
