// Package big implements the BIG family of flat game-asset archives
// (magic "BIGF" or "BIG4"): a big-endian entry table indexed by lowercased,
// forward-slash normalized paths, each pointing at a contiguous uncompressed
// byte range.
//
// Entry count/offset/size fields are read big-endian, the fourth header
// word is read and discarded, and every lookup key goes through the same
// backslash-to-slash-plus-lowercase normalization on both Load and every
// query.
package big

import (
	"fmt"
	"sort"
	"sync"

	"github.com/distr1/gamebundle/internal/bytecursor"
	"github.com/distr1/gamebundle/internal/codec"
)

// Variant distinguishes the two BIG magic tags. The two are treated
// identically beyond the tag itself.
type Variant string

const (
	VariantBIGF Variant = "BIGF"
	VariantBIG4 Variant = "BIG4"
)

// Entry is one archive entry's location: a contiguous, uncompressed byte
// range in the backing image.
type Entry struct {
	Offset uint32
	Size   uint32
}

// Archive is a loaded BIG container. Entries are immutable: editing BIG
// archives beyond Load is not supported.
type Archive struct {
	mu      sync.Mutex
	variant Variant
	data    []byte
	entries map[string]Entry
}

// Load parses a BIG archive image. data is retained for the Archive's
// lifetime; payloads are sliced and copied from it on demand by GetBinary.
func Load(data []byte) (*Archive, error) {
	c := bytecursor.New(data)
	c.SetBigEndian(false) // magic and totalSize are read as raw/LE; entry fields switch to BE below

	magic, err := c.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("big: reading magic: %w", err)
	}
	var variant Variant
	switch string(magic) {
	case string(VariantBIGF):
		variant = VariantBIGF
	case string(VariantBIG4):
		variant = VariantBIG4
	default:
		return nil, fmt.Errorf("big: unrecognized magic %q", magic)
	}

	if _, err := c.ReadU32(); err != nil { // totalSize, little-endian, unused
		return nil, fmt.Errorf("big: reading total size: %w", err)
	}

	c.SetBigEndian(true)
	numEntries, err := c.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("big: reading entry count: %w", err)
	}
	if _, err := c.ReadU32(); err != nil { // reserved/first-offset, ignored on read
		return nil, fmt.Errorf("big: reading reserved header word: %w", err)
	}

	entries := make(map[string]Entry, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		offset, err := c.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("big: reading entry %d offset: %w", i, err)
		}
		size, err := c.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("big: reading entry %d size: %w", i, err)
		}
		name, err := c.ReadCString()
		if err != nil {
			return nil, fmt.Errorf("big: reading entry %d name: %w", i, err)
		}
		entries[codec.NormalizePath(name)] = Entry{Offset: offset, Size: size}
	}

	return &Archive{
		variant: variant,
		data:    data,
		entries: entries,
	}, nil
}

// Variant reports which BIG magic tag this archive was loaded from.
func (a *Archive) Variant() Variant {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.variant
}

// ListEntries returns every path, sorted for a stable, reproducible
// iteration order (Go map iteration order is randomized, so this sorts
// explicitly).
func (a *Archive) ListEntries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	paths := make([]string, 0, len(a.entries))
	for p := range a.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// GetInfo returns the entry record for path, normalizing it first. A
// missing entry is reported as a zero-value Entry and ok=false, never an
// error.
func (a *Archive) GetInfo(path string) (Entry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[codec.NormalizePath(path)]
	return e, ok
}

// GetBinary returns a freshly-allocated copy of path's declared byte range.
func (a *Archive) GetBinary(path string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[codec.NormalizePath(path)]
	if !ok {
		return nil, false
	}
	out := make([]byte, e.Size)
	copy(out, a.data[e.Offset:e.Offset+e.Size])
	return out, true
}

// GetText returns path's bytes decoded as a string, implemented purely in
// terms of GetBinary (no new on-disk framing).
func (a *Archive) GetText(path string) (string, bool) {
	b, ok := a.GetBinary(path)
	if !ok {
		return "", false
	}
	return string(b), true
}
