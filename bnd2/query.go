package bnd2

import (
	"sort"

	"github.com/distr1/gamebundle/internal/codec"
	"golang.org/x/xerrors"
)

// ListEntries returns every file ID, in ascending order. Entries are
// ordered by ascending fileID on disk, and iteration order must be stable
// across save.
func (a *Archive) ListEntries() []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedIDsLocked()
}

func (a *Archive) sortedIDsLocked() []uint32 {
	ids := make([]uint32, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ListEntriesByFileType groups file IDs by their FileType, each group in
// ascending fileID order.
func (a *Archive) ListEntriesByFileType() map[uint32][]uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint32][]uint32)
	for _, id := range a.sortedIDsLocked() {
		ft := a.entries[id].Info.FileType
		out[ft] = append(out[ft], id)
	}
	return out
}

// GetInfo returns the metadata view for fileID.
func (a *Archive) GetInfo(fileID uint32) (Info, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[fileID]
	if !ok {
		return Info{}, false
	}
	return e.Info, true
}

// GetBlock returns block's decompressed payload for fileID. A missing
// entry or an absent block both report ok=false, never an error, except
// for an inflate/size mismatch, which is an integrity violation and is
// returned as an error.
func (a *Archive) GetBlock(fileID uint32, block int) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[fileID]
	if !ok {
		return nil, false, nil
	}
	return a.decodeBlockLocked(e, block)
}

func (a *Archive) decodeBlockLocked(e *Entry, block int) ([]byte, bool, error) {
	b := e.Blocks[block]
	if b.Data == nil {
		return nil, false, nil
	}
	uncompressedSize := int(b.EffectiveSize())
	if a.flags&FlagCompressed != 0 {
		out, err := codec.Inflate(b.Data, uncompressedSize)
		if err != nil {
			return nil, false, xerrors.Errorf("bnd2: entry %d block %d: %w", e.Info.FileID, block, err)
		}
		return out, true, nil
	}
	out := make([]byte, uncompressedSize)
	copy(out, b.Data[:uncompressedSize])
	return out, true, nil
}

// GetBinary returns the decompressed payload triple plus the pointer
// fix-up metadata for fileID.
func (a *Archive) GetBinary(fileID uint32) (EntryData, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[fileID]
	if !ok {
		return EntryData{}, false, nil
	}
	var data EntryData
	for j := 0; j < 3; j++ {
		payload, present, err := a.decodeBlockLocked(e, j)
		if err != nil {
			return EntryData{}, false, err
		}
		if present {
			data.Blocks[j] = payload
		}
	}
	data.PointersOffset = e.Info.PointersOffset
	data.NumberOfPointers = e.Info.NumberOfPointers
	return data, true, nil
}
