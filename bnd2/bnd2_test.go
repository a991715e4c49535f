package bnd2

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"testing"
)

// rawEntry describes one ID-block record for buildBnd2.
type rawEntry struct {
	fileID           uint32
	checksum         uint32
	blocks           [3][]byte // pre-encoded on-disk bytes (already compressed if needed)
	uncompressedSize [3]uint32
	compressedSize   [3]uint32
	pointersOffset   uint32
	fileType         uint32
	numberOfPointers uint16
}

// buildBnd2 constructs a minimal little-endian BND2 image by hand,
// independent of this package's own Save implementation.
func buildBnd2(t *testing.T, flags uint32, rstXML string, entries []rawEntry) []byte {
	t.Helper()
	le := binary.LittleEndian

	var header bytes.Buffer
	header.WriteString("bnd2")
	binary.Write(&header, le, uint32(2))       // version
	binary.Write(&header, le, uint32(0))       // platform = PC
	rstOffsetPos := header.Len()
	binary.Write(&header, le, uint32(0)) // rstOffset placeholder
	binary.Write(&header, le, uint32(len(entries)))
	idBlockOffsetPos := header.Len()
	binary.Write(&header, le, uint32(0)) // idBlockOffset placeholder
	fileBlockOffsetPos := [3]int{}
	for i := 0; i < 3; i++ {
		fileBlockOffsetPos[i] = header.Len()
		binary.Write(&header, le, uint32(0))
	}
	binary.Write(&header, le, flags)
	header.Write(make([]byte, 8)) // padding
	if header.Len() != headerLength {
		t.Fatalf("header length = %d, want %d", header.Len(), headerLength)
	}

	buf := header.Bytes()

	patchU32 := func(pos int, v uint32) {
		le.PutUint32(buf[pos:pos+4], v)
	}

	if rstXML != "" {
		patchU32(rstOffsetPos, uint32(len(buf)))
		buf = append(buf, []byte(rstXML)...)
		buf = append(buf, 0)
	}

	patchU32(idBlockOffsetPos, uint32(len(buf)))
	blockOffsetPatchPos := make([][3]int, len(entries))
	for i, e := range entries {
		var rec bytes.Buffer
		binary.Write(&rec, le, uint64(e.fileID))
		binary.Write(&rec, le, uint64(e.checksum))
		for j := 0; j < 3; j++ {
			binary.Write(&rec, le, e.uncompressedSize[j])
		}
		for j := 0; j < 3; j++ {
			binary.Write(&rec, le, e.compressedSize[j])
		}
		for j := 0; j < 3; j++ {
			blockOffsetPatchPos[i][j] = len(buf) + rec.Len()
			binary.Write(&rec, le, uint32(0))
		}
		binary.Write(&rec, le, e.pointersOffset)
		binary.Write(&rec, le, e.fileType)
		binary.Write(&rec, le, e.numberOfPointers)
		rec.Write(make([]byte, 2))
		buf = append(buf, rec.Bytes()...)
	}

	var fileBlockStarts [3]int
	for j := 0; j < 3; j++ {
		fileBlockStarts[j] = len(buf)
		patchU32(fileBlockOffsetPos[j], uint32(len(buf)))
		for i, e := range entries {
			data := e.blocks[j]
			if len(data) == 0 {
				continue
			}
			relOffset := len(buf) - fileBlockStarts[j]
			le.PutUint32(buf[blockOffsetPatchPos[i][j]:blockOffsetPatchPos[i][j]+4], uint32(relOffset))
			buf = append(buf, data...)
		}
	}

	return buf
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLoadUncompressedBlock(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 16)
	data := buildBnd2(t, 0, "", []rawEntry{{
		fileID:           1,
		blocks:           [3][]byte{payload, nil, nil},
		uncompressedSize: [3]uint32{16, 0, 0},
	}})

	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := a.GetBlock(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("GetBlock: not found")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("GetBlock() = %x, want %x", got, payload)
	}
}

func TestLoadCompressedBlock(t *testing.T) {
	plain := []byte("hello world!")
	compressed := deflate(t, plain)
	data := buildBnd2(t, FlagCompressed, "", []rawEntry{{
		fileID:           1,
		blocks:           [3][]byte{compressed, nil, nil},
		uncompressedSize: [3]uint32{uint32(len(plain)), 0, 0},
		compressedSize:   [3]uint32{uint32(len(compressed)), 0, 0},
	}})

	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := a.GetBlock(1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(got) != "hello world!" {
		t.Fatalf("GetBlock() = %q, %v", got, ok)
	}
}

func TestResourceStringTable(t *testing.T) {
	rstXML := `<ResourceStringTable><Resource id="deadbeef" type="Texture" name="tex/a"/></ResourceStringTable>`
	data := buildBnd2(t, FlagHasResourceStringTable, rstXML, []rawEntry{{
		fileID: 0xDEADBEEF,
	}})

	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	info, ok := a.GetInfo(0xDEADBEEF)
	if !ok {
		t.Fatal("GetInfo: not found")
	}
	if info.Name != "tex/a" || info.TypeName != "Texture" {
		t.Fatalf("GetInfo() = %+v", info)
	}
}

func TestSaveEmitsResourceStringTable(t *testing.T) {
	rstXML := `<ResourceStringTable><Resource id="deadbeef" type="Texture" name="tex/a"/></ResourceStringTable>`
	data := buildBnd2(t, FlagHasResourceStringTable, rstXML, []rawEntry{{
		fileID: 0xDEADBEEF,
	}})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out, []byte(`id="deadbeef"`)) {
		t.Fatalf("Save() output missing id attribute: %s", out)
	}
	if bytes.Contains(out, []byte(` />`)) {
		t.Fatalf("Save() output has a space before self-close: %s", out)
	}
	if !bytes.Contains(out, []byte("\t<Resource")) {
		t.Fatalf("Save() output is not tab-indented: %s", out)
	}
}

func TestAlignmentInvariants(t *testing.T) {
	payload0 := bytes.Repeat([]byte{1}, 5)
	payload1 := bytes.Repeat([]byte{2}, 7)
	data := buildBnd2(t, 0, "", []rawEntry{
		{fileID: 1, blocks: [3][]byte{payload0, payload1, nil}, uncompressedSize: [3]uint32{5, 7, 0}},
		{fileID: 2, blocks: [3][]byte{payload0, nil, nil}, uncompressedSize: [3]uint32{5, 0, 0}},
	})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	out2, err := Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if out2.idBlockOffset%16 != 0 {
		t.Fatalf("idBlockOffset %% 16 = %d, want 0", out2.idBlockOffset%16)
	}
	for i, off := range out2.fileBlockOffsets {
		if off%128 != 0 {
			t.Fatalf("fileBlockOffsets[%d] %% 128 = %d, want 0", i, off%128)
		}
	}
}

func TestRoundTripPreservesAlignmentHintNibble(t *testing.T) {
	payload := bytes.Repeat([]byte{0x7}, 16)
	data := buildBnd2(t, 0, "", []rawEntry{{
		fileID:           1,
		blocks:           [3][]byte{payload, nil, nil},
		uncompressedSize: [3]uint32{0x20000010, 0, 0}, // effective size 0x10, hint nibble 2
	}})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	entryData, ok, err := a.GetBinary(1)
	if err != nil || !ok {
		t.Fatalf("GetBinary: ok=%v err=%v", ok, err)
	}
	if ok, err := a.ReplaceEntry(context.Background(), 1, entryData); err != nil || !ok {
		t.Fatalf("ReplaceEntry: ok=%v err=%v", ok, err)
	}
	out, err := a.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	a2, err := Load(out)
	if err != nil {
		t.Fatal(err)
	}
	info := a2.entries[1]
	if info.Blocks[0].UncompressedSize != 0x20000010 {
		t.Fatalf("UncompressedSize = %#x, want %#x", info.Blocks[0].UncompressedSize, 0x20000010)
	}
}

func TestReplaceEntryUnknownIDFails(t *testing.T) {
	data := buildBnd2(t, 0, "", []rawEntry{{fileID: 1, uncompressedSize: [3]uint32{0, 0, 0}}})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := a.ReplaceEntry(context.Background(), 99, EntryData{})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected ReplaceEntry on unknown ID to fail")
	}
}

func TestBNDLRejected(t *testing.T) {
	data := make([]byte, headerLength)
	copy(data, []byte("bndl"))
	if _, err := Load(data); err != ErrBNDLUnsupported {
		t.Fatalf("Load() err = %v, want ErrBNDLUnsupported", err)
	}
}

func TestZeroFileIDRejected(t *testing.T) {
	data := buildBnd2(t, 0, "", []rawEntry{{fileID: 0}})
	if _, err := Load(data); err == nil {
		t.Fatal("expected error for zero file ID")
	}
}

func TestLoadRejectsChecksumMismatch(t *testing.T) {
	payload := bytes.Repeat([]byte{0x9}, 16)
	data := buildBnd2(t, 0, "", []rawEntry{{
		fileID:           1,
		checksum:         0xdeadbeef, // doesn't match payload's actual CRC32
		blocks:           [3][]byte{payload, nil, nil},
		uncompressedSize: [3]uint32{16, 0, 0},
	}})
	if _, err := Load(data); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestReplaceEntryRecomputesChecksum(t *testing.T) {
	payload := bytes.Repeat([]byte{0x9}, 16)
	data := buildBnd2(t, 0, "", []rawEntry{{
		fileID:           1,
		blocks:           [3][]byte{payload, nil, nil},
		uncompressedSize: [3]uint32{16, 0, 0},
	}})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	replacement := bytes.Repeat([]byte{0xA}, 8)
	if ok, err := a.ReplaceEntry(context.Background(), 1, EntryData{Blocks: [3][]byte{replacement, nil, nil}}); err != nil || !ok {
		t.Fatalf("ReplaceEntry: ok=%v err=%v", ok, err)
	}
	out, err := a.Save(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	a2, err := Load(out) // Load re-verifies the recomputed checksum against the saved bytes
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := a2.GetBlock(1, 0)
	if err != nil || !ok || !bytes.Equal(got, replacement) {
		t.Fatalf("GetBlock() = %x, %v, %v", got, ok, err)
	}
}

func TestSaveRespectsCanceledContext(t *testing.T) {
	data := buildBnd2(t, 0, "", []rawEntry{{fileID: 1}})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Save(ctx); err == nil {
		t.Fatal("expected Save to report the canceled context")
	}
}

func TestReplaceEntryRespectsCanceledContext(t *testing.T) {
	data := buildBnd2(t, 0, "", []rawEntry{{fileID: 1}})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.ReplaceEntry(ctx, 1, EntryData{}); err == nil {
		t.Fatal("expected ReplaceEntry to report the canceled context")
	}
}

func TestListEntriesByFileType(t *testing.T) {
	data := buildBnd2(t, 0, "", []rawEntry{
		{fileID: 3, fileType: 7},
		{fileID: 1, fileType: 7},
		{fileID: 2, fileType: 9},
	})
	a, err := Load(data)
	if err != nil {
		t.Fatal(err)
	}
	grouped := a.ListEntriesByFileType()
	want := []uint32{1, 3}
	got := grouped[7]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("ListEntriesByFileType()[7] = %v, want %v", got, want)
	}
	if len(grouped[9]) != 1 || grouped[9][0] != 2 {
		t.Fatalf("ListEntriesByFileType()[9] = %v, want [2]", grouped[9])
	}
}
