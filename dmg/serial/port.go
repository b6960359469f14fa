// Package serial implements the link port as seen by a DMG with nothing
// plugged in: bytes shift out on an internal clock and 0xFF shifts in.
package serial

import (
	"log/slog"

	"github.com/dmgcore/dmgcore/dmg/addr"
	"github.com/dmgcore/dmgcore/dmg/bit"
)

// transferCycles is the T-cycle cost of shifting one byte: 8 bits at the
// 8192 Hz internal bit clock, or CPU HZ / 1024.
const transferCycles = 4194304 / 1024

const scStart = 7

// Port is the serial port at SB/SC. A transfer begun by setting SC's start
// bit completes after transferCycles, at which point SB holds 0xFF (no
// peer connected), the start bit clears and the serial interrupt fires.
//
// Outgoing bytes are also handed to a Sink; the default sink batches them
// into text lines on the debug log, which is how Blargg-style test ROMs
// report their results.
type Port struct {
	irqHandler func()
	sink       Sink

	sb, sc     byte
	inTransfer bool
	counter    int
}

// Sink observes every byte the program sends, before the shift-in
// overwrites SB.
type Sink interface {
	SendByte(value byte)
}

type PortOption func(*Port)

// WithSink replaces the default log-line sink.
func WithSink(s Sink) PortOption { return func(p *Port) { p.sink = s } }

// NewPort creates a serial port with no peer attached. irq is called when
// a transfer completes, and should be wired to request the serial
// interrupt.
func NewPort(irq func(), opts ...PortOption) *Port {
	p := &Port{
		irqHandler: irq,
		sink:       &LineLogSink{logger: slog.Default()},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.Reset()
	return p
}

func (p *Port) Reset() {
	p.sb = 0xFF
	p.sc = 0x7E
	p.inTransfer = false
	p.counter = 0
}

func (p *Port) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return p.sb
	case addr.SC:
		return p.sc
	default:
		panic("serial: invalid read address")
	}
}

func (p *Port) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		p.sb = value
	case addr.SC:
		if bit.IsSet(scStart, value) {
			if !p.inTransfer && p.sink != nil {
				p.sink.SendByte(p.sb)
			}
			p.inTransfer = true
		} else {
			p.inTransfer = false
			p.counter = 0
		}
		p.sc = value
	default:
		panic("serial: invalid write address")
	}
}

// Tick advances the port's internal clock by the given T-cycles.
func (p *Port) Tick(cycles int) {
	if !p.inTransfer {
		return
	}
	p.counter += cycles
	if p.counter < transferCycles {
		return
	}

	// The byte is fully shifted out; with no peer, 0xFF shifts in.
	p.sb = 0xFF
	p.sc = bit.Reset(scStart, p.sc)
	p.counter = 0
	p.inTransfer = false
	if p.irqHandler != nil {
		p.irqHandler()
	}
}

// LineLogSink buffers outgoing serial bytes and logs them as text lines.
// Handy for test ROMs that print their verdict over the link port.
type LineLogSink struct {
	logger *slog.Logger
	line   []byte
}

func (s *LineLogSink) SendByte(value byte) {
	if value == 0 || value == '\n' || value == '\r' {
		s.flush()
		return
	}
	s.line = append(s.line, value)
}

func (s *LineLogSink) flush() {
	if len(s.line) == 0 {
		return
	}
	s.logger.Info("serial", "line", string(s.line))
	s.line = s.line[:0]
}
