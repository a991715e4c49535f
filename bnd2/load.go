package bnd2

import (
	"encoding/binary"

	"github.com/distr1/gamebundle/internal/bytecursor"
	"github.com/distr1/gamebundle/internal/rst"
	"golang.org/x/xerrors"
)

// Load parses a BND2 archive image. Block payloads are copied out of data,
// so the Archive does not retain data itself.
func Load(data []byte) (*Archive, error) {
	if len(data) < headerLength {
		return nil, xerrors.Errorf("bnd2: truncated header (%d bytes, want at least %d)", len(data), headerLength)
	}

	magic := string(data[0:4])
	if magic == bndlMagic {
		return nil, ErrBNDLUnsupported
	}
	if magic != bnd2Magic {
		return nil, xerrors.Errorf("bnd2: unrecognized magic %q", magic)
	}

	// The version field is the only header value whose expected content we
	// know ahead of time, so it bootstraps endian detection: try
	// little-endian first, then big-endian, and adopt whichever yields the
	// known version constant.
	versionBytes := data[4:8]
	bigEndian := false
	switch {
	case binary.LittleEndian.Uint32(versionBytes) == bundleVersion:
		bigEndian = false
	case binary.BigEndian.Uint32(versionBytes) == bundleVersion:
		bigEndian = true
	default:
		return nil, xerrors.Errorf("bnd2: unsupported bundle version (neither endianness yields version %d)", bundleVersion)
	}

	c := bytecursor.New(data)
	c.SetBigEndian(bigEndian)
	if _, err := c.Seek(4, bytecursor.SeekStart); err != nil {
		return nil, xerrors.Errorf("bnd2: %w", err)
	}

	version, err := c.ReadU32()
	if err != nil {
		return nil, xerrors.Errorf("bnd2: reading version: %w", err)
	}
	if version != bundleVersion {
		return nil, xerrors.Errorf("bnd2: unsupported bundle version %d", version)
	}

	platform, err := c.ReadU32()
	if err != nil {
		return nil, xerrors.Errorf("bnd2: reading platform: %w", err)
	}
	rstOffset, err := c.ReadU32()
	if err != nil {
		return nil, xerrors.Errorf("bnd2: reading rstOffset: %w", err)
	}
	numEntries, err := c.ReadU32()
	if err != nil {
		return nil, xerrors.Errorf("bnd2: reading numEntries: %w", err)
	}
	idBlockOffset, err := c.ReadU32()
	if err != nil {
		return nil, xerrors.Errorf("bnd2: reading idBlockOffset: %w", err)
	}
	var fileBlockOffsets [3]uint32
	for i := range fileBlockOffsets {
		fileBlockOffsets[i], err = c.ReadU32()
		if err != nil {
			return nil, xerrors.Errorf("bnd2: reading fileBlockOffsets[%d]: %w", i, err)
		}
	}
	flags, err := c.ReadU32()
	if err != nil {
		return nil, xerrors.Errorf("bnd2: reading flags: %w", err)
	}

	a := &Archive{
		bigEndian:        bigEndian,
		platform:         platform,
		flags:            flags,
		idBlockOffset:    idBlockOffset,
		fileBlockOffsets: fileBlockOffsets,
		entries:          make(map[uint32]*Entry, numEntries),
		compressionLevel: defaultCompressionLevel,
	}

	if flags&FlagHasResourceStringTable != 0 {
		rc := c.Copy()
		if _, err := rc.Seek(int64(rstOffset), bytecursor.SeekStart); err != nil {
			return nil, xerrors.Errorf("bnd2: seeking to resource string table: %w", err)
		}
		doc, err := rc.ReadXMLString()
		if err != nil {
			return nil, xerrors.Errorf("bnd2: reading resource string table: %w", err)
		}
		resources, err := rst.Decode([]byte(doc))
		if err != nil {
			return nil, xerrors.Errorf("bnd2: %w", err)
		}
		for _, r := range resources {
			e := a.entries[r.ID]
			if e == nil {
				e = &Entry{Info: Info{FileID: r.ID}}
				a.entries[r.ID] = e
			}
			e.Info.Name = r.Name
			e.Info.TypeName = r.Type
		}
	}

	idc := c.Copy()
	if _, err := idc.Seek(int64(idBlockOffset), bytecursor.SeekStart); err != nil {
		return nil, xerrors.Errorf("bnd2: seeking to ID block: %w", err)
	}

	for i := uint32(0); i < numEntries; i++ {
		fileID64, err := idc.ReadU64()
		if err != nil {
			return nil, xerrors.Errorf("bnd2: reading entry %d fileID: %w", i, err)
		}
		fileID := uint32(fileID64)
		if fileID == 0 {
			return nil, xerrors.Errorf("bnd2: entry %d has a zero file ID", i)
		}

		checksum64, err := idc.ReadU64()
		if err != nil {
			return nil, xerrors.Errorf("bnd2: reading entry %d checksum: %w", i, err)
		}

		var uncompressedSizes, compressedSizes, blockOffsets [3]uint32
		for j := 0; j < 3; j++ {
			uncompressedSizes[j], err = idc.ReadU32()
			if err != nil {
				return nil, xerrors.Errorf("bnd2: reading entry %d uncompressedSize[%d]: %w", i, j, err)
			}
		}
		for j := 0; j < 3; j++ {
			compressedSizes[j], err = idc.ReadU32()
			if err != nil {
				return nil, xerrors.Errorf("bnd2: reading entry %d compressedSize[%d]: %w", i, j, err)
			}
		}
		for j := 0; j < 3; j++ {
			blockOffsets[j], err = idc.ReadU32()
			if err != nil {
				return nil, xerrors.Errorf("bnd2: reading entry %d blockOffset[%d]: %w", i, j, err)
			}
		}

		pointersOffset, err := idc.ReadU32()
		if err != nil {
			return nil, xerrors.Errorf("bnd2: reading entry %d pointersOffset: %w", i, err)
		}
		fileType, err := idc.ReadU32()
		if err != nil {
			return nil, xerrors.Errorf("bnd2: reading entry %d fileType: %w", i, err)
		}
		numberOfPointers, err := idc.ReadU16()
		if err != nil {
			return nil, xerrors.Errorf("bnd2: reading entry %d numberOfPointers: %w", i, err)
		}
		if _, err := idc.ReadU16(); err != nil { // 2 bytes padding
			return nil, xerrors.Errorf("bnd2: reading entry %d padding: %w", i, err)
		}

		e := a.entries[fileID]
		if e == nil {
			e = &Entry{Info: Info{FileID: fileID}}
			a.entries[fileID] = e
		}
		e.Info.Checksum = uint32(checksum64)
		e.Info.FileType = fileType
		e.Info.PointersOffset = pointersOffset
		e.Info.NumberOfPointers = numberOfPointers

		compressed := flags&FlagCompressed != 0
		for j := 0; j < 3; j++ {
			block := Block{
				UncompressedSize: uncompressedSizes[j],
				CompressedSize:   compressedSizes[j],
			}
			readSize := compressedSizes[j]
			if !compressed {
				readSize = uncompressedSizes[j] & 0x0FFFFFFF
			}
			if readSize > 0 {
				bc := c.Copy()
				if _, err := bc.Seek(int64(fileBlockOffsets[j])+int64(blockOffsets[j]), bytecursor.SeekStart); err != nil {
					return nil, xerrors.Errorf("bnd2: seeking entry %d block %d: %w", i, j, err)
				}
				raw, err := bc.ReadBytes(int(readSize))
				if err != nil {
					return nil, xerrors.Errorf("bnd2: reading entry %d block %d: %w", i, j, err)
				}
				block.Data = append([]byte(nil), raw...)
			}
			e.Blocks[j] = block
		}

		// A zero checksum means the archive never populated it; only
		// verify when the on-disk value claims to mean something.
		if e.Info.Checksum != 0 {
			if got := blockChecksum(e.Blocks); got != e.Info.Checksum {
				return nil, xerrors.Errorf("bnd2: entry %d checksum mismatch: stored %#x, computed %#x", fileID, e.Info.Checksum, got)
			}
		}
	}

	return a, nil
}
