package bnd2

import (
	"context"

	"github.com/distr1/gamebundle/internal/bytecursor"
	"github.com/distr1/gamebundle/internal/rst"
	"golang.org/x/xerrors"
)

// Save is PC-only: only little-endian archives, as loaded from a PC
// bundle or built in memory, can be serialized. It returns the full
// little-endian byte image; writing it to a file is the caller's concern.
//
// ctx is checked between each entry's data block, the only place a large
// Save does meaningful work in a loop; a canceled ctx aborts with ctx.Err()
// instead of finishing the write.
func (a *Archive) Save(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if a.bigEndian {
		return nil, xerrors.New("bnd2: Save is not supported for big-endian (console) archives")
	}

	ids := a.sortedIDsLocked()

	w := bytecursor.NewWriter()
	w.SetBigEndian(false)

	w.WriteBytes([]byte(bnd2Magic))
	w.WriteU32(bundleVersion)
	w.WriteU32(PlatformPC)
	rstOffsetMark := w.RememberPosition()
	w.WriteU32(0) // rstOffset placeholder

	w.WriteU32(uint32(len(ids)))
	idBlockOffsetMark := w.RememberPosition()
	w.WriteU32(0) // idBlockOffset placeholder
	var fileBlockOffsetMarks [3]bytecursor.Mark
	for i := range fileBlockOffsetMarks {
		fileBlockOffsetMarks[i] = w.RememberPosition()
		w.WriteU32(0) // fileBlockOffsets[i] placeholder
	}

	w.WriteU32(a.flags)
	w.Align(16)

	if err := w.PatchU32At(rstOffsetMark, uint32(w.Tell())); err != nil {
		return nil, xerrors.Errorf("bnd2: patching rstOffset: %w", err)
	}
	if a.flags&FlagHasResourceStringTable != 0 {
		resources := make([]rst.Resource, 0, len(ids))
		for _, id := range ids {
			info := a.entries[id].Info
			resources = append(resources, rst.Resource{ID: id, Type: info.TypeName, Name: info.Name})
		}
		w.WriteString(string(rst.Encode(resources)))
	}
	w.Align(16)

	if err := w.PatchU32At(idBlockOffsetMark, uint32(w.Tell())); err != nil {
		return nil, xerrors.Errorf("bnd2: patching idBlockOffset: %w", err)
	}

	blockOffsetMarks := make([][3]bytecursor.Mark, len(ids))
	for idx, id := range ids {
		e := a.entries[id]
		w.WriteU64(uint64(e.Info.FileID))
		w.WriteU64(uint64(e.Info.Checksum))
		for j := 0; j < 3; j++ {
			w.WriteU32(e.Blocks[j].UncompressedSize)
		}
		for j := 0; j < 3; j++ {
			w.WriteU32(e.Blocks[j].CompressedSize)
		}
		for j := 0; j < 3; j++ {
			blockOffsetMarks[idx][j] = w.RememberPosition()
			w.WriteU32(0) // per-block relative offset placeholder
		}
		w.WriteU32(e.Info.PointersOffset)
		w.WriteU32(e.Info.FileType)
		w.WriteU16(e.Info.NumberOfPointers)
		w.WriteU16(0) // padding
	}

	w.Align(128)

	compressed := a.flags&FlagCompressed != 0
	for j := 0; j < 3; j++ {
		blockStart := w.Tell()
		if err := w.PatchU32At(fileBlockOffsetMarks[j], uint32(blockStart)); err != nil {
			return nil, xerrors.Errorf("bnd2: patching fileBlockOffsets[%d]: %w", j, err)
		}

		lastIdx := -1
		for idx, id := range ids {
			if readSizeForSave(a.entries[id].Blocks[j], compressed) > 0 {
				lastIdx = idx
			}
		}

		for idx, id := range ids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			block := a.entries[id].Blocks[j]
			readSize := readSizeForSave(block, compressed)
			if readSize == 0 {
				continue
			}
			if err := w.PatchU32At(blockOffsetMarks[idx][j], uint32(w.Tell()-blockStart)); err != nil {
				return nil, xerrors.Errorf("bnd2: patching entry %d block %d offset: %w", id, j, err)
			}
			w.WriteBytes(block.Data[:readSize])

			if j == 0 {
				w.Align(16)
			} else if idx == lastIdx {
				w.Align(16)
			} else {
				w.Align(128)
			}
		}

		if j < 2 {
			w.Align(128)
		}
	}

	return w.Bytes(), nil
}

func readSizeForSave(b Block, compressed bool) uint32 {
	if compressed {
		return b.CompressedSize
	}
	return b.EffectiveSize()
}
