// Package bnd2 implements the BND2 family of structured game-asset bundles:
// a little-endian (PC) or big-endian (console) container where each logical
// asset is split across three parallel data blocks, optionally zlib
// compressed, with metadata in a fixed-width ID block and an optional XML
// resource string table mapping file IDs to human-readable names.
//
// Editing and saving are PC-only; console (big-endian) archives are read
// only, and the older BNDL header is detected and refused rather than
// silently misparsed.
package bnd2

import (
	"sync"

	"github.com/distr1/gamebundle/internal/codec"
	"golang.org/x/xerrors"
)

// Flag bit positions. No reference archive was available to confirm bits
// beyond these two (see DESIGN.md).
const (
	FlagHasResourceStringTable uint32 = 0x1
	FlagCompressed             uint32 = 0x2
)

// PlatformPC is the sentinel platform value for the little-endian PC
// variant, and the value Save always writes. No specific non-PC sentinel
// values were recoverable, so individual console platforms are not named.
// Load does not consult the platform field: it detects endianness from the
// version field instead.
const PlatformPC uint32 = 0

const bundleVersion = 2

// headerLength is the BND2 header size through the flags field:
// magic(4) + version(4) + platform(4) + rstOffset(4) +
// numEntries(4) + idBlockOffset(4) + 3*fileBlockOffsets(12) + flags(4) +
// padding(8) = 48.
const headerLength = 48

const bnd2Magic = "bnd2"
const bndlMagic = "bndl"

// ErrBNDLUnsupported is returned by Load when the older BNDL header is
// detected. BNDL is recognized so callers get a precise diagnosis, not
// treated as a generic bad-magic failure.
var ErrBNDLUnsupported = xerrors.New("bnd2: BNDL archives are not supported (detected, read-rejected)")

// Block is one of an entry's three parallel data regions (main memory,
// graphics memory, physical memory).
type Block struct {
	// UncompressedSize packs an alignment hint in the high nibble (bits
	// 28-31); the effective byte length is UncompressedSize & 0x0FFFFFFF.
	// The full value, hint included, must round-trip unchanged.
	UncompressedSize uint32
	CompressedSize   uint32
	// Data holds the on-disk bytes: compressed if the archive's Compressed
	// flag is set, raw otherwise. Nil when the block is empty.
	Data []byte
}

// EffectiveSize returns the block's uncompressed byte length with the
// alignment hint nibble masked off.
func (b Block) EffectiveSize() uint32 {
	return b.UncompressedSize & 0x0FFFFFFF
}

// Info is an entry's metadata, independent of its block payloads.
type Info struct {
	FileID           uint32
	Checksum         uint32
	Name             string // from the resource string table; may be empty
	TypeName         string // from the resource string table; may be empty
	FileType         uint32
	PointersOffset   uint32
	NumberOfPointers uint16
}

// Entry is one asset: metadata plus its three data blocks.
type Entry struct {
	Info   Info
	Blocks [3]Block
}

// EntryData is the transfer type used by GetBinary and ReplaceEntry: the
// three block payloads (decompressed) plus the pointer fix-up table
// location.
type EntryData struct {
	Blocks           [3][]byte
	PointersOffset   uint32
	NumberOfPointers uint16
}

// blockChecksum computes the CRC32 of an entry's three on-disk block
// payloads concatenated in block order. Load verifies an entry against
// this definition whenever its stored checksum is nonzero; ReplaceEntry
// recomputes it for every entry it touches, so a checksum an entry was
// loaded with and one this module writes are always the same function of
// the same bytes.
func blockChecksum(blocks [3]Block) uint32 {
	var buf []byte
	for _, b := range blocks {
		buf = append(buf, b.Data...)
	}
	return codec.Checksum(buf)
}

// Archive is a loaded BND2 bundle.
type Archive struct {
	mu sync.Mutex

	bigEndian bool
	platform  uint32
	flags     uint32

	idBlockOffset    uint32
	fileBlockOffsets [3]uint32

	entries map[uint32]*Entry

	compressionLevel int
}

// defaultCompressionLevel mirrors zlib.BestCompression without importing
// the zlib package into this file just for the constant.
const defaultCompressionLevel = 9

// SetCompressionLevel overrides the zlib level ReplaceEntry uses for
// compressed archives (1-9). Load defaults it to best compression.
func (a *Archive) SetCompressionLevel(level int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compressionLevel = level
}

// IsCompressed reports whether the archive's Compressed flag is set.
func (a *Archive) IsCompressed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flags&FlagCompressed != 0
}

// HasResourceStringTable reports whether the archive's
// HasResourceStringTable flag is set.
func (a *Archive) HasResourceStringTable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flags&FlagHasResourceStringTable != 0
}

// BigEndian reports whether this archive was loaded as a big-endian
// (console) bundle. Only little-endian (PC) archives can be saved.
func (a *Archive) BigEndian() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bigEndian
}
