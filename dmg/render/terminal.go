package render

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/dmgcore/dmgcore/dmg"
	"github.com/dmgcore/dmgcore/dmg/disasm"
	"github.com/dmgcore/dmgcore/dmg/memory"
	"github.com/dmgcore/dmgcore/dmg/timing"
)

const (
	gameAreaWidth  = 160
	gameAreaHeight = 144

	registerHeight = 7
	disasmHeight   = 9
	minTermWidth   = 100
	minTermHeight  = 35
)

// shadeChars maps a 2-bit shade index (0 lightest) to a terminal glyph.
var shadeChars = []rune{' ', '░', '▓', '█'}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// TerminalRenderer is the tcell-based host front-end: it drives the
// emulator one frame at a time and renders the screen plus a debugger
// side panel (registers, disassembly, recent logs) split-screen style.
type TerminalRenderer struct {
	screen    tcell.Screen
	emulator  *dmg.Emulator
	running   bool
	logBuffer *LogBuffer
}

// NewTerminalRenderer initializes the terminal screen and installs a log
// handler that mirrors slog output into the side panel.
func NewTerminalRenderer(emu *dmg.Emulator) (*TerminalRenderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	logBuffer := NewLogBuffer(100)
	slog.SetDefault(slog.New(NewLogBufferHandler(logBuffer, slog.LevelDebug)))
	slog.Info("terminal renderer initialized")

	return &TerminalRenderer{
		screen:    screen,
		emulator:  emu,
		running:   true,
		logBuffer: logBuffer,
	}, nil
}

func (t *TerminalRenderer) Run() error {
	defer t.screen.Fini()

	t.screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack).Foreground(tcell.ColorWhite))
	t.screen.Clear()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	go t.handleInput()

	var limiter timing.Limiter = timing.NewAdaptiveLimiter()

	for t.running {
		select {
		case <-signals:
			slog.Info("received signal to stop")
			return nil
		default:
		}

		limiter.WaitForNextFrame()
		if err := t.emulator.RunUntilFrame(); err != nil {
			return err
		}
		t.render()
		t.screen.Show()
	}

	return nil
}

func (t *TerminalRenderer) handleInput() {
	for t.running {
		switch ev := t.screen.PollEvent().(type) {
		case *tcell.EventKey:
			switch ev.Key() {
			case tcell.KeyEscape, tcell.KeyCtrlC:
				t.running = false
				return
			case tcell.KeyEnter:
				t.emulator.HandleKeyPress(memory.JoypadStart)
			case tcell.KeyRight:
				t.emulator.HandleKeyPress(memory.JoypadRight)
			case tcell.KeyLeft:
				t.emulator.HandleKeyPress(memory.JoypadLeft)
			case tcell.KeyUp:
				t.emulator.HandleKeyPress(memory.JoypadUp)
			case tcell.KeyDown:
				t.emulator.HandleKeyPress(memory.JoypadDown)
			case tcell.KeyRune:
				switch ev.Rune() {
				case 'a':
					t.emulator.HandleKeyPress(memory.JoypadA)
				case 's':
					t.emulator.HandleKeyPress(memory.JoypadB)
				case 'q':
					t.emulator.HandleKeyPress(memory.JoypadSelect)
				case ' ':
					if t.emulator.GetDebuggerState() == dmg.DebuggerPaused {
						t.emulator.DebuggerResume()
					} else {
						t.emulator.DebuggerPause()
					}
				case 'n':
					t.emulator.DebuggerStepInstruction()
				case 'f':
					t.emulator.DebuggerStepFrame()
				case 'r':
					t.emulator.DebuggerResume()
				case 'p':
					t.emulator.DebuggerPause()
				}
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *TerminalRenderer) render() {
	termWidth, termHeight := t.screen.Size()

	if termWidth < minTermWidth || termHeight < minTermHeight {
		t.screen.Clear()
		style := tcell.StyleDefault.Foreground(tcell.ColorRed)
		msg := fmt.Sprintf("Terminal too small! Need at least %dx%d", minTermWidth, minTermHeight)
		for i, ch := range msg {
			t.screen.SetContent(i, termHeight/2, ch, nil, style)
		}
		return
	}

	t.screen.Clear()
	t.drawBorders(termWidth, termHeight)
	t.drawGameBoy()
	t.drawRegisters(termWidth, termHeight)
	t.drawDisassembly(termWidth, termHeight)
	t.drawLogs(termWidth, termHeight)
}

func (t *TerminalRenderer) drawBorders(termWidth, termHeight int) {
	borderStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	titleStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)

	borderX := min(gameAreaWidth+1, termWidth/2)
	if borderX >= termWidth-10 {
		borderX = termWidth - 10
	}

	for y := 0; y < termHeight; y++ {
		if borderX < termWidth {
			t.screen.SetContent(borderX, y, '│', nil, borderStyle)
		}
	}

	registerEndY := registerHeight + 1
	if registerEndY < termHeight {
		for x := borderX + 1; x < termWidth; x++ {
			t.screen.SetContent(x, registerEndY, '─', nil, borderStyle)
		}
		t.screen.SetContent(borderX, registerEndY, '├', nil, borderStyle)
	}

	disasmEndY := registerEndY + disasmHeight + 1
	if disasmEndY < termHeight {
		for x := borderX + 1; x < termWidth; x++ {
			t.screen.SetContent(x, disasmEndY, '─', nil, borderStyle)
		}
		t.screen.SetContent(borderX, disasmEndY, '├', nil, borderStyle)
	}

	for i, ch := range " Game Boy " {
		t.screen.SetContent(1+i, 0, ch, nil, titleStyle)
	}
	for i, ch := range " CPU Registers " {
		t.screen.SetContent(borderX+2+i, 0, ch, nil, titleStyle)
	}
	if registerEndY+1 < termHeight {
		for i, ch := range " Disassembly " {
			t.screen.SetContent(borderX+2+i, registerEndY+1, ch, nil, titleStyle)
		}
	}
	if disasmEndY+1 < termHeight {
		for i, ch := range " Logs " {
			t.screen.SetContent(borderX+2+i, disasmEndY+1, ch, nil, titleStyle)
		}
	}

	if termHeight > 10 {
		helpStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite)
		help := "Debug: SPACE=pause/resume N=step P=pause R=resume F=step-frame"
		maxWidth := min(len(help), termWidth-2)
		for i, ch := range help[:maxWidth] {
			t.screen.SetContent(1+i, termHeight-1, ch, nil, helpStyle)
		}
	}
}

func (t *TerminalRenderer) drawGameBoy() {
	frame := t.emulator.GetCurrentFrame().Shades()

	for y := 0; y < gameAreaHeight; y++ {
		for x := 0; x < gameAreaWidth; x++ {
			shade := frame[y*gameAreaWidth+x]
			style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
			t.screen.SetContent(x, y+1, shadeChars[shade], nil, style)
		}
	}
}

func (t *TerminalRenderer) drawRegisters(termWidth, termHeight int) {
	cpu := t.emulator.GetCPU()
	startX := gameAreaWidth + 3
	startY := 1

	regStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	debugStatus, debugStyle := debuggerStatus(t.emulator.GetDebuggerState())

	registers := []string{
		fmt.Sprintf("Status: %s", debugStatus),
		fmt.Sprintf("A: 0x%02X  F: 0x%02X [%s]", cpu.GetA(), cpu.GetF(), cpu.GetFlagString()),
		fmt.Sprintf("B: 0x%02X  C: 0x%02X", cpu.GetB(), cpu.GetC()),
		fmt.Sprintf("D: 0x%02X  E: 0x%02X", cpu.GetD(), cpu.GetE()),
		fmt.Sprintf("H: 0x%02X  L: 0x%02X", cpu.GetH(), cpu.GetL()),
		fmt.Sprintf("SP: 0x%04X  PC: 0x%04X", cpu.GetSP(), cpu.GetPC()),
		fmt.Sprintf("Frame: %d  Instr: %d", t.emulator.GetFrameCount(), t.emulator.GetInstructionCount()),
	}

	for i, reg := range registers {
		if startY+i >= registerHeight+1 || startY+i >= termHeight {
			break
		}
		style := regStyle
		if i == 0 {
			style = debugStyle
		}
		x := startX
		for _, ch := range reg {
			if x >= termWidth {
				break
			}
			t.screen.SetContent(x, startY+i, ch, nil, style)
			x++
		}
	}
}

func debuggerStatus(state dmg.DebuggerState) (string, tcell.Style) {
	switch state {
	case dmg.DebuggerPaused:
		return "PAUSED", tcell.StyleDefault.Foreground(tcell.ColorYellow)
	case dmg.DebuggerStep:
		return "STEP", tcell.StyleDefault.Foreground(tcell.ColorBlue)
	case dmg.DebuggerStepFrame:
		return "FRAME", tcell.StyleDefault.Foreground(tcell.ColorRed)
	default:
		return "RUNNING", tcell.StyleDefault.Foreground(tcell.ColorGreen)
	}
}

func (t *TerminalRenderer) drawDisassembly(termWidth, termHeight int) {
	startX := gameAreaWidth + 3
	startY := registerHeight + 3

	cpu := t.emulator.GetCPU()
	mmu := t.emulator.GetMMU()
	currentPC := cpu.GetPC()

	lines := disasm.DisassembleAround(currentPC, 4, 4, mmu)

	disasmStyle := tcell.StyleDefault.Foreground(tcell.ColorGreen)
	currentStyle := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlue)

	maxLines := min(len(lines), disasmHeight)
	for i := 0; i < maxLines; i++ {
		if startY+i >= termHeight {
			break
		}
		line := lines[i]
		isCurrent := line.Address == currentPC
		text := disasm.Format(line, isCurrent)

		style := disasmStyle
		if isCurrent {
			style = currentStyle
		}

		maxWidth := termWidth - startX - 1
		if len(text) > maxWidth && maxWidth > 3 {
			text = text[:maxWidth-3] + "..."
		}

		x := startX
		for _, ch := range text {
			if x >= termWidth {
				break
			}
			t.screen.SetContent(x, startY+i, ch, nil, style)
			x++
		}
	}
}

func (t *TerminalRenderer) drawLogs(termWidth, termHeight int) {
	startX := gameAreaWidth + 3
	startY := registerHeight + 3 + disasmHeight + 1
	available := termHeight - startY
	if available <= 0 {
		return
	}

	logStyle := tcell.StyleDefault.Foreground(tcell.ColorBlue)
	warnStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	errStyle := tcell.StyleDefault.Foreground(tcell.ColorRed)

	for i, entry := range t.logBuffer.GetRecent(available) {
		style := logStyle
		switch entry.Level {
		case slog.LevelWarn:
			style = warnStyle
		case slog.LevelError:
			style = errStyle
		}

		text := FormatLogEntry(entry)
		maxWidth := termWidth - startX - 1
		if len(text) > maxWidth && maxWidth > 3 {
			text = text[:maxWidth-3] + "..."
		}

		x := startX
		for _, ch := range text {
			if x >= termWidth {
				break
			}
			t.screen.SetContent(x, startY+i, ch, nil, style)
			x++
		}
	}
}
