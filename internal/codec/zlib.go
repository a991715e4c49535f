// Package codec wraps the compression, checksum, and path-normalization
// primitives shared by the big and bnd2 packages.
package codec

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zlib"
)

// Inflate decompresses the zlib stream in compressed and returns a buffer of
// exactly uncompressedLen bytes, or an error if the inflated length
// disagrees with uncompressedLen (an integrity violation per the on-disk
// uncompressedSize field).
func Inflate(compressed []byte, uncompressedLen int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("codec: zlib: %w", err)
	}
	defer r.Close()

	out := make([]byte, uncompressedLen)
	n, err := readFull(r, out)
	if err != nil {
		return nil, fmt.Errorf("codec: zlib: %w", err)
	}
	if n != uncompressedLen {
		return nil, fmt.Errorf("codec: inflated length %d does not match declared uncompressed size %d", n, uncompressedLen)
	}
	var extra [1]byte
	if m, _ := readFull(r, extra[:]); m != 0 {
		return nil, fmt.Errorf("codec: inflated length exceeds declared uncompressed size %d", uncompressedLen)
	}
	return out, nil
}

// readFull behaves like io.ReadFull without pulling in the io package just
// for this one call.
func readFull(r interface {
	Read(p []byte) (int, error)
}, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// Deflate compresses src with zlib at the given level (1-9, or
// zlib.BestCompression), returning an owned buffer sized to the actual
// compressed length.
func Deflate(src []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("codec: zlib: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, fmt.Errorf("codec: zlib: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: zlib: %w", err)
	}
	return buf.Bytes(), nil
}
