// Package savestate pairs a battery-backed save-RAM snapshot with the ROM
// it was taken from, so a save blob can't silently be loaded against the
// wrong cartridge.
package savestate

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash"
)

// ErrROMMismatch is returned by Verify when a save's stored ROM hash does
// not match the cartridge it is being loaded into.
var ErrROMMismatch = errors.New("savestate: save data does not match the loaded ROM")

const magic = "DMGSAVE1"

// Metadata is the small header prefixed to a persisted save file, binding
// the RAM payload to the ROM content hash of the cartridge it came from.
type Metadata struct {
	ROMHash uint64
}

// HashROM returns the content hash used to pair a save with its cartridge.
func HashROM(rom []byte) uint64 {
	return xxhash.Sum64(rom)
}

// Wrap prefixes a save-RAM snapshot with a header binding it to rom's hash.
func Wrap(rom []byte, ram []byte) []byte {
	out := make([]byte, len(magic)+8+len(ram))
	copy(out, magic)
	binary.LittleEndian.PutUint64(out[len(magic):], HashROM(rom))
	copy(out[len(magic)+8:], ram)
	return out
}

// Unwrap checks a file produced by Wrap against rom's current hash and
// returns its RAM payload.
func Unwrap(rom []byte, blob []byte) ([]byte, error) {
	if len(blob) < len(magic)+8 {
		return nil, fmt.Errorf("savestate: truncated save file")
	}
	if string(blob[:len(magic)]) != magic {
		return nil, fmt.Errorf("savestate: not a save file")
	}

	stored := binary.LittleEndian.Uint64(blob[len(magic):])
	if stored != HashROM(rom) {
		return nil, ErrROMMismatch
	}

	return blob[len(magic)+8:], nil
}
