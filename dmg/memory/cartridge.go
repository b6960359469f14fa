package memory

import (
	"errors"
	"fmt"
)

// ErrImageTooShort is returned when a cartridge image cannot carry a full
// header. Unlike an unrecognized mapper byte (a warning), this is fatal to
// construction.
var ErrImageTooShort = errors.New("cartridge image shorter than the 0x14E-byte header")

// Header field offsets, per the DMG cartridge header layout.
const (
	entryPointAddress     = 0x0100
	titleAddress          = 0x0134
	titleLength           = 15
	cgbFlagAddress        = 0x0143
	newLicenseCodeAddress = 0x0144
	sgbFlagAddress        = 0x0146
	cartridgeTypeAddress  = 0x0147
	romSizeAddress        = 0x0148
	ramSizeAddress        = 0x0149
	destinationAddress    = 0x014A
	oldLicenseCodeAddress = 0x014B
	versionNumberAddress  = 0x014C
	headerChecksumAddress = 0x014D

	// MinCartridgeSize is the smallest image that carries a full header.
	MinCartridgeSize = 0x014E
)

// MBCType identifies which bank-switching state machine a cartridge needs.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

func (t MBCType) String() string {
	switch t {
	case NoMBCType:
		return "ROM"
	case MBC1Type:
		return "MBC1"
	case MBC2Type:
		return "MBC2"
	case MBC3Type:
		return "MBC3"
	case MBC5Type:
		return "MBC5"
	default:
		return "unknown"
	}
}

// CartInfo is the read-only header view exposed to hosts, per the
// cart_info() entry point.
type CartInfo struct {
	Title           string
	CGBFlag         uint8
	NewLicenseeCode string
	SGBFlag         uint8
	CartridgeType   uint8
	MapperType      MBCType
	ROMSizeKiB      int
	RAMSizeKiB      int
	Region          uint8
	OldLicenseeCode uint8
	Version         uint8
	HeaderChecksum  uint8
	ChecksumOK      bool
	HasBattery      bool
	HasRTC          bool
	HasRumble       bool
}

// Cartridge owns the raw ROM image and the parsed header fields used to
// select and configure a mapper. The ROM bytes are never mutated.
type Cartridge struct {
	data []byte

	title           string
	cgbFlag         uint8
	newLicenseeCode string
	sgbFlag         uint8
	cartType        uint8
	romSizeCode     uint8
	ramSizeCode     uint8
	region          uint8
	oldLicenseeCode uint8
	version         uint8

	mbcType      MBCType
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool
	ramBankCount uint8
	romBankCount uint16
}

// NewCartridge creates an empty, headerless cartridge. Useful as a
// placeholder when no ROM has been loaded yet (power-on with no cart in).
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, MinCartridgeSize),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData parses a raw cartridge image. Images shorter than
// MinCartridgeSize cannot carry a full header; the caller is expected to
// have validated length before calling this (the façade does, per spec §7).
func NewCartridgeWithData(bytes []byte) *Cartridge {
	cart := &Cartridge{
		data: make([]byte, len(bytes)),
	}
	copy(cart.data, bytes)

	if len(bytes) < MinCartridgeSize {
		cart.mbcType = NoMBCType
		return cart
	}

	cart.title = cleanTitle(bytes[titleAddress : titleAddress+titleLength])
	cart.cgbFlag = bytes[cgbFlagAddress]
	cart.newLicenseeCode = string(bytes[newLicenseCodeAddress : newLicenseCodeAddress+2])
	cart.sgbFlag = bytes[sgbFlagAddress]
	cart.cartType = bytes[cartridgeTypeAddress]
	cart.romSizeCode = bytes[romSizeAddress]
	cart.ramSizeCode = bytes[ramSizeAddress]
	cart.region = bytes[destinationAddress]
	cart.oldLicenseeCode = bytes[oldLicenseCodeAddress]
	cart.version = bytes[versionNumberAddress]

	cart.romBankCount = romBankCountFromCode(cart.romSizeCode)
	cart.ramBankCount = ramBankCountFromCode(cart.ramSizeCode)
	cart.mbcType, cart.hasBattery, cart.hasRTC, cart.hasRumble = selectMapper(cart.cartType)

	return cart
}

// romBankCountFromCode decodes byte 0x0148: size = 32 KiB * (1 << value).
// 16 KiB banks, so bank count = 2 * (1 << value).
func romBankCountFromCode(code uint8) uint16 {
	if code > 8 {
		return 2
	}
	return 2 << code
}

// ramBankCountFromCode decodes byte 0x0149 per the table in spec.md §3.
func ramBankCountFromCode(code uint8) uint8 {
	switch code {
	case 0:
		return 0
	case 2:
		return 1 // 8 KiB
	case 3:
		return 4 // 32 KiB
	case 4:
		return 16 // 128 KiB
	case 5:
		return 8 // 64 KiB
	default:
		return 0
	}
}

// selectMapper maps a cartridge-type byte to a mapper variant and its
// feature flags, per the table in spec.md §4.1. Unsupported bytes yield
// MBCUnknownType; the caller installs the null mapper and warns.
func selectMapper(cartType uint8) (mbc MBCType, battery, rtc, rumble bool) {
	switch cartType {
	case 0x00:
		return NoMBCType, false, false, false
	case 0x01:
		return MBC1Type, false, false, false
	case 0x02:
		return MBC1Type, false, false, false
	case 0x03:
		return MBC1Type, true, false, false
	case 0x05:
		return MBC2Type, false, false, false
	case 0x06:
		return MBC2Type, true, false, false
	case 0x0F:
		return MBC3Type, true, true, false
	case 0x10:
		return MBC3Type, true, true, false
	case 0x11:
		return MBC3Type, false, false, false
	case 0x12:
		return MBC3Type, false, false, false
	case 0x13:
		return MBC3Type, true, false, false
	case 0x19:
		return MBC5Type, false, false, false
	case 0x1A:
		return MBC5Type, false, false, false
	case 0x1B:
		return MBC5Type, true, false, false
	case 0x1C:
		return MBC5Type, false, false, true
	case 0x1D:
		return MBC5Type, false, false, true
	case 0x1E:
		return MBC5Type, true, false, true
	default:
		return MBCUnknownType, false, false, false
	}
}

// HeaderChecksum computes the classic 1-byte checksum over ROM bytes
// 0x0134..0x014C, the same algorithm real DMG boot ROMs use to refuse to
// run a corrupted cartridge.
func (c *Cartridge) HeaderChecksum() uint8 {
	return headerChecksum(c.data)
}

func headerChecksum(data []byte) uint8 {
	if len(data) < MinCartridgeSize {
		return 0
	}
	var sum uint8
	for i := titleAddress; i < headerChecksumAddress; i++ {
		sum = sum - data[i] - 1
	}
	return sum
}

// ChecksumOK reports whether the stored checksum byte matches the
// computed one. A mismatch is reported (logged), never fatal.
func (c *Cartridge) ChecksumOK() bool {
	if len(c.data) <= headerChecksumAddress {
		return false
	}
	return c.HeaderChecksum() == c.data[headerChecksumAddress]
}

// Info returns the read-only header view for the host façade.
func (c *Cartridge) Info() CartInfo {
	return CartInfo{
		Title:           c.title,
		CGBFlag:         c.cgbFlag,
		NewLicenseeCode: c.newLicenseeCode,
		SGBFlag:         c.sgbFlag,
		CartridgeType:   c.cartType,
		MapperType:      c.mbcType,
		ROMSizeKiB:      int(c.romBankCount) * 16,
		RAMSizeKiB:      int(c.ramBankCount) * 8,
		Region:          c.region,
		OldLicenseeCode: c.oldLicenseeCode,
		Version:         c.version,
		HeaderChecksum:  c.data[headerChecksumAddress],
		ChecksumOK:      c.ChecksumOK(),
		HasBattery:      c.hasBattery,
		HasRTC:          c.hasRTC,
		HasRumble:       c.hasRumble,
	}
}

func (c *Cartridge) String() string {
	return fmt.Sprintf("%q [%s, rom=%dx16KiB, ram=%dx8KiB, battery=%v]",
		c.title, c.mbcType, c.romBankCount, c.ramBankCount, c.hasBattery)
}
