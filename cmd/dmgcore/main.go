package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/dmgcore/dmgcore/dmg"
	"github.com/dmgcore/dmgcore/dmg/render"
	"github.com/dmgcore/dmgcore/dmg/romload"
	"github.com/dmgcore/dmgcore/dmg/savestate"
)

func main() {
	app := cli.NewApp()
	app.Name = "dmgcore"
	app.Usage = "dmgcore [options] <ROM file>"
	app.Description = "A cycle-stepped DMG (original Game Boy) emulation core"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "path to the ROM file (.gb, .gbc, or a .zip/.gz/.7z archive containing one)",
		},
		cli.StringFlag{
			Name:  "bios",
			Usage: "path to an optional boot ROM image to run before cartridge code",
		},
		cli.StringSliceFlag{
			Name:  "genie",
			Usage: "a Game Genie cheat code (ABC-DEF-GHI); may be given up to three times",
		},
		cli.BoolFlag{
			Name:  "headless",
			Usage: "run without the terminal UI",
		},
		cli.IntFlag{
			Name:  "frames",
			Usage: "number of frames to run in headless mode (required with --headless)",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "path to load/persist battery-backed save RAM",
		},
		cli.BoolFlag{
			Name:  "trace",
			Usage: "log every executed instruction (very verbose)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("dmgcore exited with an error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no ROM path provided")
		}
	}

	romData, err := romload.Load(romPath)
	if err != nil {
		return fmt.Errorf("loading ROM: %w", err)
	}

	tmpPath, err := writeTempROM(romData)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	emu, err := dmg.NewWithFile(tmpPath)
	if err != nil {
		return fmt.Errorf("loading cartridge: %w", err)
	}

	if biosPath := c.String("bios"); biosPath != "" {
		boot, err := romload.Load(biosPath)
		if err != nil {
			return fmt.Errorf("loading boot ROM: %w", err)
		}
		emu.LoadBootROM(boot)
	}

	if codes := c.StringSlice("genie"); len(codes) > 0 {
		emu.LoadGenie(nil, codes)
	}

	savePath := c.String("save")
	if savePath != "" {
		if err := loadSaveFile(emu, romData, savePath); err != nil {
			slog.Warn("not loading save file", "path", savePath, "error", err)
		}
	}

	if c.Bool("trace") {
		emu.SetTraceFunc(func(pc uint16, mnemonic string, cycles int) {
			slog.Debug("trace", "pc", fmt.Sprintf("0x%04X", pc), "instr", mnemonic, "cycles", cycles)
		})
	}

	var runErr error
	if c.Bool("headless") {
		runErr = runHeadless(emu, c.Int("frames"))
	} else {
		renderer, err := render.NewTerminalRenderer(emu)
		if err != nil {
			return err
		}
		runErr = renderer.Run()
	}

	if savePath != "" {
		if err := saveSaveFile(emu, romData, savePath); err != nil {
			slog.Error("failed to persist save file", "path", savePath, "error", err)
		}
	}

	return runErr
}

func runHeadless(emu *dmg.Emulator, frames int) error {
	if frames <= 0 {
		return errors.New("headless mode requires --frames with a positive value")
	}

	slog.Info("running headless", "frames", frames)
	for i := 0; i < frames; i++ {
		if err := emu.RunUntilFrame(); err != nil {
			return err
		}
		if (i+1)%60 == 0 {
			slog.Info("frame progress", "completed", i+1, "total", frames)
		}
	}
	slog.Info("headless run completed", "frames", frames, "instructions", emu.GetInstructionCount())

	// Dump the final frame so a headless run still shows where the
	// program ended up visually.
	frame := emu.GetCurrentFrame()
	for _, line := range render.RenderFrameToHalfBlocks(frame.Shades(), 160, 144) {
		fmt.Println(line)
	}
	return nil
}

func loadSaveFile(emu *dmg.Emulator, romData []byte, path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	ram, err := savestate.Unwrap(romData, blob)
	if err != nil {
		return err
	}
	return emu.LoadSave(ram)
}

func saveSaveFile(emu *dmg.Emulator, romData []byte, path string) error {
	ram := emu.SnapshotSave()
	if ram == nil {
		return nil
	}
	return os.WriteFile(path, savestate.Wrap(romData, ram), 0o644)
}

// writeTempROM stages decompressed ROM bytes on disk: NewWithFile reads a
// path rather than an in-memory image, so a romload result that came from
// an archive needs a concrete file to hand it.
func writeTempROM(data []byte) (string, error) {
	f, err := os.CreateTemp("", "dmgcore-rom-*.gb")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
