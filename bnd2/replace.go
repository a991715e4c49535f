package bnd2

import (
	"context"

	"github.com/distr1/gamebundle/internal/codec"
	"golang.org/x/xerrors"
)

// ReplaceEntry replaces fileID's payload blocks and pointer fix-up
// metadata. Any of data.Blocks may be nil/empty to clear that block.
// Blocks are staged into locals and committed only once every block has
// been processed successfully, so a deflate failure on a later block never
// leaves an earlier one half-updated. The entry's checksum is recomputed
// from the staged blocks before committing, so it stays consistent with
// the content Save will later write.
//
// ctx is checked before each block's deflate, the only potentially slow
// step in a replace; a canceled ctx aborts with ctx.Err() and leaves the
// entry untouched.
//
// ReplaceEntry reports false, without an error, if fileID is not already
// present — this core only mutates existing entries.
func (a *Archive) ReplaceEntry(ctx context.Context, fileID uint32, data EntryData) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	e, ok := a.entries[fileID]
	if !ok {
		return false, nil
	}

	compressed := a.flags&FlagCompressed != 0
	var staged [3]Block
	for i := 0; i < 3; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		input := data.Blocks[i]
		oldHint := e.Blocks[i].UncompressedSize & 0xF0000000

		if len(input) == 0 {
			// The alignment hint nibble is cleared, not preserved, when a
			// block becomes empty.
			staged[i] = Block{}
			continue
		}

		if compressed {
			deflated, err := codec.Deflate(input, a.compressionLevel)
			if err != nil {
				return false, xerrors.Errorf("bnd2: replacing entry %d block %d: %w", fileID, i, err)
			}
			staged[i] = Block{
				UncompressedSize: uint32(len(input)) | oldHint,
				CompressedSize:   uint32(len(deflated)),
				Data:             deflated,
			}
		} else {
			owned := append([]byte(nil), input...)
			staged[i] = Block{
				UncompressedSize: uint32(len(input)) | oldHint,
				CompressedSize:   0,
				Data:             owned,
			}
		}
	}

	e.Blocks = staged
	e.Info.Checksum = blockChecksum(staged)
	e.Info.PointersOffset = data.PointersOffset
	e.Info.NumberOfPointers = data.NumberOfPointers
	return true, nil
}
