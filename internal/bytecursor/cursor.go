// Package bytecursor implements a random-access binary reader and writer
// over an owned byte buffer, used by the big and bnd2 packages to decode and
// encode the fixed-width, endian-conditional framing of game bundle files.
//
// Unlike encoding/binary's reflection-based Read/Write, every field is
// decoded by hand (mirroring internal/squashfs's dirHeader.Unmarshal-style
// parsing): bundle formats are hot paths with thousands of fixed-layout
// records, and byte-for-byte control is required anyway to preserve the
// alignment hint nibble and to emit deferred fix-up offsets.
package bytecursor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a read would run past the end of the
// underlying buffer.
var ErrShortBuffer = errors.New("bytecursor: short buffer")

// Mark is an opaque handle to a previously-written position, used to patch
// forward references (e.g. a header field pointing at a section written
// later) without disturbing the cursor's current position.
type Mark int64

// Cursor is a random-access reader/writer over an owned byte slice. The same
// type serves both roles: Load wraps an existing full-file buffer for
// reading, Save starts from an empty Cursor and grows the buffer as bytes
// are appended.
type Cursor struct {
	buf       []byte
	pos       int
	bigEndian bool
}

// New wraps buf for reading. The returned Cursor shares buf; callers that
// need to retain bytes past the lifetime of buf must copy what ReadBytes
// returns, since it is a view into buf.
func New(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// NewWriter returns an empty Cursor that grows its buffer as data is
// written to it.
func NewWriter() *Cursor {
	return &Cursor{}
}

// SetBigEndian sets the persistent endian flag used by all subsequent
// Read/Write u16/u32/u64 calls.
func (c *Cursor) SetBigEndian(big bool) { c.bigEndian = big }

// BigEndian reports the current endian flag.
func (c *Cursor) BigEndian() bool { return c.bigEndian }

// Len returns the size of the underlying buffer.
func (c *Cursor) Len() int { return len(c.buf) }

// Bytes returns the entire underlying buffer. Callers that hand this to a
// writer (e.g. flushing a Save buffer to disk) must not retain it past
// further writes to the Cursor.
func (c *Cursor) Bytes() []byte { return c.buf }

// Tell returns the current position.
func (c *Cursor) Tell() int64 { return int64(c.pos) }

// Seek constants mirror io.Seek* without importing io, since only absolute
// and relative-to-current seeks are needed here.
const (
	SeekStart   = 0
	SeekCurrent = 1
)

// Seek repositions the cursor. from is SeekStart or SeekCurrent.
func (c *Cursor) Seek(pos int64, from int) (int64, error) {
	var target int64
	switch from {
	case SeekStart:
		target = pos
	case SeekCurrent:
		target = int64(c.pos) + pos
	default:
		return 0, fmt.Errorf("bytecursor: invalid whence %d", from)
	}
	if target < 0 {
		return 0, fmt.Errorf("bytecursor: negative position %d", target)
	}
	c.pos = int(target)
	return target, nil
}

// Copy returns an independent cursor (its own position and endian flag)
// sharing the same underlying buffer. Used when a per-entry sub-read must
// not disturb the caller's position, e.g. reading a block's payload from an
// offset relative to a file block start while the ID block cursor keeps
// walking forward.
func (c *Cursor) Copy() *Cursor {
	return &Cursor{buf: c.buf, pos: c.pos, bigEndian: c.bigEndian}
}

func (c *Cursor) require(n int) error {
	if c.pos < 0 || n < 0 || c.pos+n > len(c.buf) {
		return ErrShortBuffer
	}
	return nil
}

// ReadU8 reads a single byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// ReadU16 reads a 16-bit integer honoring the current endian flag.
func (c *Cursor) ReadU16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	b := c.buf[c.pos : c.pos+2]
	c.pos += 2
	if c.bigEndian {
		return binary.BigEndian.Uint16(b), nil
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a 32-bit integer honoring the current endian flag.
func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	b := c.buf[c.pos : c.pos+4]
	c.pos += 4
	if c.bigEndian {
		return binary.BigEndian.Uint32(b), nil
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a 64-bit integer honoring the current endian flag.
func (c *Cursor) ReadU64() (uint64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	b := c.buf[c.pos : c.pos+8]
	c.pos += 8
	if c.bigEndian {
		return binary.BigEndian.Uint64(b), nil
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBytes returns a borrowed view of the next n bytes and advances the
// cursor. Callers that retain the result beyond the next mutation of the
// Cursor's buffer must copy it.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadCString reads bytes up to (and consuming) a NUL terminator and
// returns them as a string. Used for BIG archive entry paths.
func (c *Cursor) ReadCString() (string, error) {
	return c.readNulTerminated()
}

// ReadXMLString reads bytes up to (and consuming) a NUL terminator and
// returns them as UTF-8 text. Used for the BND2 resource string table,
// which is stored as a single NUL-terminated XML document.
func (c *Cursor) ReadXMLString() (string, error) {
	return c.readNulTerminated()
}

func (c *Cursor) readNulTerminated() (string, error) {
	start := c.pos
	for {
		if c.pos >= len(c.buf) {
			return "", ErrShortBuffer
		}
		if c.buf[c.pos] == 0 {
			s := string(c.buf[start:c.pos])
			c.pos++ // consume the NUL
			return s, nil
		}
		c.pos++
	}
}

func (c *Cursor) grow(n int) {
	need := c.pos + n
	if need <= len(c.buf) {
		return
	}
	grown := make([]byte, need)
	copy(grown, c.buf)
	c.buf = grown
}

// WriteU8 appends a single byte.
func (c *Cursor) WriteU8(v uint8) {
	c.grow(1)
	c.buf[c.pos] = v
	c.pos++
}

// WriteU16 appends a 16-bit integer honoring the current endian flag.
func (c *Cursor) WriteU16(v uint16) {
	c.grow(2)
	b := c.buf[c.pos : c.pos+2]
	if c.bigEndian {
		binary.BigEndian.PutUint16(b, v)
	} else {
		binary.LittleEndian.PutUint16(b, v)
	}
	c.pos += 2
}

// WriteU32 appends a 32-bit integer honoring the current endian flag.
func (c *Cursor) WriteU32(v uint32) {
	c.grow(4)
	b := c.buf[c.pos : c.pos+4]
	if c.bigEndian {
		binary.BigEndian.PutUint32(b, v)
	} else {
		binary.LittleEndian.PutUint32(b, v)
	}
	c.pos += 4
}

// WriteU64 appends a 64-bit integer honoring the current endian flag.
func (c *Cursor) WriteU64(v uint64) {
	c.grow(8)
	b := c.buf[c.pos : c.pos+8]
	if c.bigEndian {
		binary.BigEndian.PutUint64(b, v)
	} else {
		binary.LittleEndian.PutUint64(b, v)
	}
	c.pos += 8
}

// WriteBytes appends b verbatim.
func (c *Cursor) WriteBytes(b []byte) {
	c.grow(len(b))
	copy(c.buf[c.pos:], b)
	c.pos += len(b)
}

// WriteString appends s's raw bytes followed by a NUL terminator.
func (c *Cursor) WriteString(s string) {
	c.WriteBytes([]byte(s))
	c.WriteU8(0)
}

// Align pads with zero bytes until the position is a multiple of to.
func (c *Cursor) Align(to int) {
	rem := c.pos % to
	if rem == 0 {
		return
	}
	pad := to - rem
	c.grow(pad)
	for i := 0; i < pad; i++ {
		c.buf[c.pos+i] = 0
	}
	c.pos += pad
}

// RememberPosition returns a handle to the current position, to be patched
// later via PatchU32At once the referenced data has been written.
func (c *Cursor) RememberPosition() Mark {
	return Mark(c.pos)
}

// PatchU32At writes a little-endian u32 at the remembered position without
// disturbing the cursor's current position. Forward references in bundle
// headers (RST offset, per-block data offsets, ID block offset) are always
// little-endian on disk regardless of the archive's general endianness,
// since Save only ever targets the PC (little-endian) platform.
func (c *Cursor) PatchU32At(m Mark, v uint32) error {
	pos := int(m)
	if pos < 0 || pos+4 > len(c.buf) {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(c.buf[pos:pos+4], v)
	return nil
}
