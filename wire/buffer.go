package wire

import "encoding/binary"

// littleEndian is a convenience variable since binary.LittleEndian is
// quite long.
var littleEndian = binary.LittleEndian

// ReadBuffer reads typed values off a received frame. It never fails:
// reading past the end yields zero values and raises the overflow flag,
// which the handlers that decode counted lists check after decoding.
type ReadBuffer struct {
	data []byte
	pos  int
}

// NewReadBuffer wraps a complete frame payload.
func NewReadBuffer(data []byte) *ReadBuffer {
	return &ReadBuffer{data: data}
}

func (b *ReadBuffer) canRead(n int) bool {
	return b.pos+n <= len(b.data)
}

// Overflowed reports whether any read went past the end of the frame.
func (b *ReadBuffer) Overflowed() bool {
	return b.pos > len(b.data)
}

// ReadFlag reads one byte as a boolean.
func (b *ReadBuffer) ReadFlag() bool {
	return b.Read8() != 0x00
}

// Read8 reads an unsigned byte.
func (b *ReadBuffer) Read8() uint8 {
	var v uint8
	if b.canRead(1) {
		v = b.data[b.pos]
	}
	b.pos++
	return v
}

// Read16 reads a little-endian uint16.
func (b *ReadBuffer) Read16() uint16 {
	var v uint16
	if b.canRead(2) {
		v = littleEndian.Uint16(b.data[b.pos:])
	}
	b.pos += 2
	return v
}

// Read16BE reads a big-endian uint16.
func (b *ReadBuffer) Read16BE() uint16 {
	var v uint16
	if b.canRead(2) {
		v = binary.BigEndian.Uint16(b.data[b.pos:])
	}
	b.pos += 2
	return v
}

// Read32 reads a little-endian uint32.
func (b *ReadBuffer) Read32() uint32 {
	var v uint32
	if b.canRead(4) {
		v = littleEndian.Uint32(b.data[b.pos:])
	}
	b.pos += 4
	return v
}

// Read32BE reads a big-endian uint32.
func (b *ReadBuffer) Read32BE() uint32 {
	var v uint32
	if b.canRead(4) {
		v = binary.BigEndian.Uint32(b.data[b.pos:])
	}
	b.pos += 4
	return v
}

// Read64 reads a little-endian uint64.
func (b *ReadBuffer) Read64() uint64 {
	var v uint64
	if b.canRead(8) {
		v = littleEndian.Uint64(b.data[b.pos:])
	}
	b.pos += 8
	return v
}

// ReadString reads a length-prefixed string. The length is a 16-bit LE
// value; 0xFFFF escapes to a 32-bit LE length.
func (b *ReadBuffer) ReadString() string {
	length := int(b.Read16())
	if length == 0xFFFF {
		length = int(b.Read32())
	}

	var s string
	if length > 0 && b.canRead(length) {
		s = string(b.data[b.pos : b.pos+length])
	}
	b.pos += length
	return s
}

// WriteBuffer builds a frame in a fixed region. Writes past the capacity
// are dropped while the position keeps advancing, so the caller observes
// the overflow once at frame finalization instead of checking every write.
type WriteBuffer struct {
	data []byte
	pos  int
}

// NewWriteBuffer wraps a backing region of the final capacity.
func NewWriteBuffer(data []byte) *WriteBuffer {
	return &WriteBuffer{data: data}
}

func (b *WriteBuffer) canWrite(n int) bool {
	return b.pos+n <= len(b.data)
}

// Overflowed reports whether any write was dropped.
func (b *WriteBuffer) Overflowed() bool {
	return b.pos > len(b.data)
}

// Position returns the write cursor.
func (b *WriteBuffer) Position() int {
	return b.pos
}

// Bytes returns the written prefix of the backing region. Invalid after
// an overflow.
func (b *WriteBuffer) Bytes() []byte {
	if b.Overflowed() {
		return nil
	}
	return b.data[:b.pos]
}

// WriteFlag writes a boolean as one byte.
func (b *WriteBuffer) WriteFlag(v bool) {
	if v {
		b.Write8(0x01)
	} else {
		b.Write8(0x00)
	}
}

// Write8 writes an unsigned byte.
func (b *WriteBuffer) Write8(v uint8) {
	if b.canWrite(1) {
		b.data[b.pos] = v
	}
	b.pos++
}

// Write16 writes a little-endian uint16.
func (b *WriteBuffer) Write16(v uint16) {
	if b.canWrite(2) {
		littleEndian.PutUint16(b.data[b.pos:], v)
	}
	b.pos += 2
}

// Write16BE writes a big-endian uint16.
func (b *WriteBuffer) Write16BE(v uint16) {
	if b.canWrite(2) {
		binary.BigEndian.PutUint16(b.data[b.pos:], v)
	}
	b.pos += 2
}

// Write32 writes a little-endian uint32.
func (b *WriteBuffer) Write32(v uint32) {
	if b.canWrite(4) {
		littleEndian.PutUint32(b.data[b.pos:], v)
	}
	b.pos += 4
}

// Write32BE writes a big-endian uint32.
func (b *WriteBuffer) Write32BE(v uint32) {
	if b.canWrite(4) {
		binary.BigEndian.PutUint32(b.data[b.pos:], v)
	}
	b.pos += 4
}

// Write64 writes a little-endian uint64.
func (b *WriteBuffer) Write64(v uint64) {
	if b.canWrite(8) {
		littleEndian.PutUint64(b.data[b.pos:], v)
	}
	b.pos += 8
}

// WriteString writes a length-prefixed string, escaping to the 32-bit
// form when the length does not fit 16 bits.
func (b *WriteBuffer) WriteString(s string) {
	length := len(s)
	if length < 0xFFFF {
		b.Write16(uint16(length))
	} else {
		b.Write16(0xFFFF)
		b.Write32(uint32(length))
	}

	if length > 0 && b.canWrite(length) {
		copy(b.data[b.pos:], s)
	}
	b.pos += length
}

// Rewrite16 patches a 2-byte LE value previously reserved at pos.
func (b *WriteBuffer) Rewrite16(pos int, v uint16) {
	if pos+2 <= b.pos {
		littleEndian.PutUint16(b.data[pos:], v)
	}
}

// Insert32 inserts a 4-byte LE value at pos, shifting subsequent bytes.
// Used once per frame at most, to upgrade a short length prefix to the
// extended form.
func (b *WriteBuffer) Insert32(pos int, v uint32) {
	if pos <= b.pos {
		if b.canWrite(4) {
			copy(b.data[pos+4:b.pos+4], b.data[pos:b.pos])
			littleEndian.PutUint32(b.data[pos:], v)
		}
		b.pos += 4
	}
}
