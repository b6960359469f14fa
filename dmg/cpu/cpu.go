package cpu

import "github.com/dmgcore/dmgcore/dmg/addr"

// Flag is one of the 4 possible flags used in the flag register (high nibble of F).
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

var interruptVectors = [5]uint16{0x40, 0x48, 0x50, 0x58, 0x60}

// Bus is the memory and peripheral surface the CPU executes against.
// *memory.MMU satisfies this directly.
type Bus interface {
	Read(address uint16) uint8
	Write(address uint16, value uint8)
	Tick(cycles int)
}

// CPU emulates the LR35902 core. Exec runs one instruction at a time and
// reports its own total T-cycle cost; no sub-instruction timing is modeled.
type CPU struct {
	bus Bus

	a, b, c, d, e, h, l uint8
	f                   uint8
	sp, pc              uint16

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool
	diPending         bool

	halted  bool
	haltBug bool
	stopped bool

	selfTicked bool

	cycles uint64
}

// New returns a CPU wired to bus, with registers at their post-bootrom
// values and PC at the start of cartridge code (0x100).
func New(bus Bus) *CPU {
	return &CPU{
		bus: bus,
		a:   0x01,
		f:   0xB0,
		c:   0x13,
		e:   0xD8,
		h:   0x01,
		l:   0x4D,
		sp:  0xFFFE,
		pc:  0x100,
	}
}

// GetPC returns the current program counter.
func (c *CPU) GetPC() uint16 {
	return c.pc
}

// SetPC forces the program counter, for boot-ROM entry or debugger jumps.
func (c *CPU) SetPC(pc uint16) {
	c.pc = pc
}

// Register accessors, for debugger/UI introspection.
func (c *CPU) GetA() uint8   { return c.a }
func (c *CPU) GetB() uint8   { return c.b }
func (c *CPU) GetC() uint8   { return c.c }
func (c *CPU) GetD() uint8   { return c.d }
func (c *CPU) GetE() uint8   { return c.e }
func (c *CPU) GetH() uint8   { return c.h }
func (c *CPU) GetL() uint8   { return c.l }
func (c *CPU) GetF() uint8   { return c.f }
func (c *CPU) GetSP() uint16 { return c.sp }

// GetFlagString renders the flag register as the classic "ZNHC" letters,
// upper-case when set and lower-case when clear.
func (c *CPU) GetFlagString() string {
	flag := func(set bool, ch byte) byte {
		if set {
			return ch
		}
		return ch - 'A' + 'a'
	}
	b := []byte{
		flag(c.isSetFlag(zeroFlag), 'Z'),
		flag(c.isSetFlag(subFlag), 'N'),
		flag(c.isSetFlag(halfCarryFlag), 'H'),
		flag(c.isSetFlag(carryFlag), 'C'),
	}
	return string(b)
}

// Exec services a pending interrupt, or otherwise fetches, decodes and runs
// a single instruction, returning the number of T-cycles it took.
func (c *CPU) Exec() int {
	eiWasPending := c.eiPending
	diWasPending := c.diPending
	imeBefore := c.interruptsEnabled

	pending := c.handleInterrupts()
	serviced := pending && imeBefore

	if serviced {
		c.halted = false
		c.stopped = false
		c.applyIMEDelay(eiWasPending, diWasPending)
		c.bus.Tick(20)
		return 20
	}

	if c.halted || c.stopped {
		// A pending interrupt releases the wait state even with IME off.
		if pending {
			c.halted = false
			c.stopped = false
		}
		c.applyIMEDelay(eiWasPending, diWasPending)
		c.tick(4)
		return 4
	}

	c.selfTicked = false
	opcode := Decode(c)
	isCB := c.currentOpcode&0xFF00 == 0xCB00

	if c.haltBug {
		c.haltBug = false
	} else {
		c.pc++
		if isCB {
			c.pc++
		}
	}

	cycles := opcode(c)
	c.cycles += uint64(cycles)

	if !c.selfTicked {
		c.bus.Tick(cycles)
	}

	c.applyIMEDelay(eiWasPending, diWasPending)

	return cycles
}

// applyIMEDelay commits an EI or DI executed one instruction ago. Both
// defer their IME change by a full instruction, so the opcode right after
// either still runs under the old setting. A DI chasing an EI wins.
func (c *CPU) applyIMEDelay(eiWasPending, diWasPending bool) {
	if eiWasPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}
	if diWasPending {
		c.diPending = false
		c.interruptsEnabled = false
	}
}

// handleInterrupts reports whether any enabled interrupt source is pending,
// and actually services (pushes PC, jumps to the vector) the
// highest-priority one only when interrupts are currently enabled. This lets
// a halted CPU be woken by a pending interrupt even while IME is 0.
func (c *CPU) handleInterrupts() bool {
	ifReg := c.bus.Read(addr.IF)
	ieReg := c.bus.Read(addr.IE)
	pending := ifReg & ieReg & 0x1F

	if pending == 0 {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	for i := uint(0); i < 5; i++ {
		if (pending>>i)&1 == 1 {
			c.interruptsEnabled = false
			c.bus.Write(addr.IF, ifReg & ^(uint8(1)<<i))
			c.pushStack(c.pc)
			c.pc = interruptVectors[i]
			c.cycles += 20
			return true
		}
	}

	return false
}

// tick advances the bus by cycles and marks that this instruction already
// accounted for its own timing, so Exec won't tick again afterwards.
func (c *CPU) tick(cycles int) {
	c.selfTicked = true
	c.bus.Tick(cycles)
}

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &= ^uint8(flag)
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

// flagToBit returns 1 if the flag is set, 0 otherwise.
func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}
