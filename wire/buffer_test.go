package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteBuffer_Integers(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *WriteBuffer)
		want  []byte
	}{
		{"flag", func(w *WriteBuffer) { w.WriteFlag(true) }, []byte{1}},
		{"u8", func(w *WriteBuffer) { w.Write8(0xAB) }, []byte{0xAB}},
		{"u16le", func(w *WriteBuffer) { w.Write16(0x1234) }, []byte{0x34, 0x12}},
		{"u16be", func(w *WriteBuffer) { w.Write16BE(0x1234) }, []byte{0x12, 0x34}},
		{"u32le", func(w *WriteBuffer) { w.Write32(0x11223344) }, []byte{0x44, 0x33, 0x22, 0x11}},
		{"u32be", func(w *WriteBuffer) { w.Write32BE(0x11223344) }, []byte{0x11, 0x22, 0x33, 0x44}},
		{"u64le", func(w *WriteBuffer) { w.Write64(0x1122334455667788) },
			[]byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriteBuffer(make([]byte, 16))
			tt.write(w)
			if got := w.Bytes(); !bytes.Equal(got, tt.want) {
				t.Errorf("Bytes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadBuffer_Integers(t *testing.T) {
	r := NewReadBuffer([]byte{
		0x01,
		0x34, 0x12,
		0x12, 0x34,
		0x44, 0x33, 0x22, 0x11,
		0x11, 0x22, 0x33, 0x44,
	})
	if !r.ReadFlag() {
		t.Error("ReadFlag() = false")
	}
	if got := r.Read16(); got != 0x1234 {
		t.Errorf("Read16() = %04X", got)
	}
	if got := r.Read16BE(); got != 0x1234 {
		t.Errorf("Read16BE() = %04X", got)
	}
	if got := r.Read32(); got != 0x11223344 {
		t.Errorf("Read32() = %08X", got)
	}
	if got := r.Read32BE(); got != 0x11223344 {
		t.Errorf("Read32BE() = %08X", got)
	}
	if r.Overflowed() {
		t.Error("Overflowed() = true")
	}
}

func TestStringRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		str  string
	}{
		{"empty", ""},
		{"short", "hello"},
		{"below escape", strings.Repeat("a", 0xFFFE)},
		{"at escape", strings.Repeat("b", 0xFFFF)},
		{"above escape", strings.Repeat("c", 0x10001)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWriteBuffer(make([]byte, len(tt.str)+8))
			w.WriteString(tt.str)

			// The extended form is used iff the length needs it.
			extended := len(tt.str) >= 0xFFFF
			wantHeader := 2
			if extended {
				wantHeader = 6
			}
			assert.Equal(t, wantHeader+len(tt.str), w.Position())

			r := NewReadBuffer(w.Bytes())
			assert.Equal(t, tt.str, r.ReadString())
			assert.False(t, r.Overflowed())
		})
	}
}

func TestReadBuffer_PastEndYieldsZeros(t *testing.T) {
	r := NewReadBuffer([]byte{0x01})
	if got := r.Read32(); got != 0 {
		t.Errorf("Read32() = %v, want 0", got)
	}
	if !r.Overflowed() {
		t.Error("Overflowed() = false after short read")
	}
	if got := r.ReadString(); got != "" {
		t.Errorf("ReadString() = %q, want empty", got)
	}
}

func TestWriteBuffer_OverflowIsolation(t *testing.T) {
	w := NewWriteBuffer(make([]byte, 4))
	w.Write32(0xAABBCCDD)
	assert.False(t, w.Overflowed())

	// Further writes are dropped and must not corrupt prior bytes.
	w.Write16(0x1122)
	w.WriteString("overflow")
	assert.True(t, w.Overflowed())
	assert.Equal(t, []byte{0xDD, 0xCC, 0xBB, 0xAA}, w.data[:4])
	assert.Nil(t, w.Bytes())
}

func TestRewrite16(t *testing.T) {
	w := NewWriteBuffer(make([]byte, 8))
	w.Write16(0)
	w.Write8(0x07)
	w.Rewrite16(0, 0x0102)
	assert.Equal(t, []byte{0x02, 0x01, 0x07}, w.Bytes())
}

func TestInsert32(t *testing.T) {
	w := NewWriteBuffer(make([]byte, 16))
	w.Write16(0xFFFF)
	w.Write8(0x0A)
	w.Write8(0x0B)
	w.Insert32(2, 0x11223344)
	assert.Equal(t, []byte{0xFF, 0xFF, 0x44, 0x33, 0x22, 0x11, 0x0A, 0x0B}, w.Bytes())
}
