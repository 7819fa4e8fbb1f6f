package proto

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Decodable is a wire type that can deserialize itself.
type Decodable interface {
	Decode(d *Decoder) error
}

// Decoder reads big-endian jute primitives from a byte slice it does not own.
// Every read either consumes exactly the bytes it needs or fails with a
// framing error and leaves the offset where it was.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a Decoder reading from buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Offset is the number of bytes consumed so far.
func (d *Decoder) Offset() int { return d.off }

// Remaining is the number of bytes not yet consumed.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// Rest returns the unconsumed bytes without consuming them.
func (d *Decoder) Rest() []byte { return d.buf[d.off:] }

func (d *Decoder) next(n int) ([]byte, error) {
	if n > d.Remaining() {
		return nil, errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, d.off, d.Remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) ReadUint8() (uint8, error) {
	b, err := d.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadUint8()
	return v != 0, err
}

func (d *Decoder) ReadInt16() (int16, error) {
	b, err := d.next(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

// ReadBuffer reads a length-prefixed byte buffer. A negative length decodes to
// an empty (nil) buffer. The result is a copy.
func (d *Decoder) ReadBuffer() ([]byte, error) {
	start := d.off
	n, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	b, err := d.next(int(n))
	if err != nil {
		d.off = start
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// ReadString reads a length-prefixed string and rejects invalid UTF-8.
func (d *Decoder) ReadString() (string, error) {
	start := d.off
	n, err := d.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", nil
	}
	b, err := d.next(int(n))
	if err != nil {
		d.off = start
		return "", err
	}
	if !utf8.Valid(b) {
		d.off = start
		return "", errors.Wrapf(ErrInvalidUTF8, "at offset %d", start)
	}
	return string(b), nil
}

// readCount reads a sequence count. -1 is the jute null sequence and is
// returned as ok=false. Any other negative count, or one that cannot fit in
// the remaining bytes, is a framing error.
func (d *Decoder) readCount() (n int, ok bool, err error) {
	start := d.off
	c, err := d.ReadInt32()
	if err != nil {
		return 0, false, err
	}
	switch {
	case c == -1:
		return 0, false, nil
	case c < 0:
		d.off = start
		return 0, false, errors.Wrapf(ErrNegativeLength, "sequence count %d", c)
	case int(c) > d.Remaining():
		d.off = start
		return 0, false, errors.Wrapf(ErrShortBuffer, "sequence of %d elements with %d bytes left", c, d.Remaining())
	}
	return int(c), true, nil
}

// ReadStrings reads a counted sequence of strings.
func (d *Decoder) ReadStrings() ([]string, error) {
	n, ok, err := d.readCount()
	if err != nil || !ok {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = d.ReadString(); err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
	}
	return out, nil
}

// ReadSlice reads a counted sequence of decodable elements, failing on the
// first element that does not decode.
func ReadSlice[T any, PT interface {
	*T
	Decodable
}](d *Decoder) ([]T, error) {
	n, ok, err := d.readCount()
	if err != nil || !ok {
		return nil, err
	}
	out := make([]T, n)
	for i := range out {
		if err := PT(&out[i]).Decode(d); err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
	}
	return out, nil
}

// DecodeAll decodes v from buf and requires every byte to be consumed.
func DecodeAll(buf []byte, v Decodable) error {
	d := NewDecoder(buf)
	if err := v.Decode(d); err != nil {
		return err
	}
	if d.Remaining() != 0 {
		return errors.Wrapf(ErrTrailingBytes, "%d trailing bytes after %T", d.Remaining(), v)
	}
	return nil
}
