package proto

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Encodable is a wire type that can serialize itself.
type Encodable interface {
	Encode(e *Encoder) error
}

// Encoder appends big-endian jute primitives to an in-memory buffer. The zero
// value is ready to use. An Encoder is not safe for concurrent use, but
// separate Encoders share nothing.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with room for size bytes.
func NewEncoder(size int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size)}
}

// Bytes returns the encoded bytes.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) WriteUint8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteUint8(1)
		return
	}
	e.WriteUint8(0)
}

func (e *Encoder) WriteInt16(v int16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(v))
}

func (e *Encoder) WriteUint32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteInt32(v int32) { e.WriteUint32(uint32(v)) }

func (e *Encoder) WriteUint64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) WriteInt64(v int64) { e.WriteUint64(uint64(v)) }

// WriteBuffer writes a length-prefixed byte buffer. A nil buffer is written
// with length -1, the jute encoding of a null buffer.
func (e *Encoder) WriteBuffer(b []byte) error {
	if b == nil {
		e.WriteInt32(-1)
		return nil
	}
	if err := e.writeLength(len(b)); err != nil {
		return err
	}
	e.buf = append(e.buf, b...)
	return nil
}

// WriteString writes a length-prefixed string.
func (e *Encoder) WriteString(s string) error {
	if err := e.writeLength(len(s)); err != nil {
		return err
	}
	e.buf = append(e.buf, s...)
	return nil
}

// WriteStrings writes a counted sequence of strings.
func (e *Encoder) WriteStrings(ss []string) error {
	if ss == nil {
		e.WriteInt32(-1)
		return nil
	}
	if err := e.writeLength(len(ss)); err != nil {
		return err
	}
	for _, s := range ss {
		if err := e.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeLength(n int) error {
	if n > math.MaxInt32 {
		return errors.Wrapf(ErrValueTooLarge, "length %d", n)
	}
	e.WriteInt32(int32(n))
	return nil
}

// WriteSlice writes a counted sequence of encodable elements. A nil slice is
// written with count -1.
func WriteSlice[T Encodable](e *Encoder, items []T) error {
	if items == nil {
		e.WriteInt32(-1)
		return nil
	}
	if err := e.writeLength(len(items)); err != nil {
		return err
	}
	for i, item := range items {
		if err := item.Encode(e); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	return nil
}
