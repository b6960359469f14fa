// Package romload loads a ROM (or Game Genie code list) image from disk,
// transparently decompressing the common archive formats distributed
// alongside DMG dumps.
package romload

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bodgit/sevenzip"
)

// Load reads path and, when its extension names a known archive format,
// decompresses the first entry inside it. A bare .gb/.gbc/.bin image (or
// any unrecognized extension) is returned unmodified.
func Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("romload: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("romload: reading %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".gz":
		return decompressGzip(raw)
	case ".zip":
		return decompressZip(raw)
	case ".7z":
		return decompressSevenZip(path, int64(len(raw)))
	default:
		return raw, nil
	}
}

func decompressGzip(raw []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("romload: gzip: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func decompressZip(raw []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("romload: zip: %w", err)
	}
	if len(r.File) == 0 {
		return nil, fmt.Errorf("romload: zip archive is empty")
	}

	entry, err := r.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("romload: zip: %w", err)
	}
	defer entry.Close()
	return io.ReadAll(entry)
}

func decompressSevenZip(path string, size int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("romload: %w", err)
	}
	defer f.Close()

	r, err := sevenzip.NewReader(f, size)
	if err != nil {
		return nil, fmt.Errorf("romload: 7z: %w", err)
	}
	if len(r.File) == 0 {
		return nil, fmt.Errorf("romload: 7z archive is empty")
	}

	entry, err := r.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("romload: 7z: %w", err)
	}
	defer entry.Close()
	return io.ReadAll(entry)
}
