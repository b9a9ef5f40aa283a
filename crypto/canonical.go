package crypto

import (
	"encoding/binary"
	"fmt"
)

// Encoder builds a canonical byte preimage for content hashing: fixed-width
// big-endian integers, length-prefixed byte strings, concatenated in the
// order fields are appended. Two encoders given the same field sequence
// always produce identical bytes, which is the only property the consensus
// hashing formulas in the replica rely on.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes appends a length-prefixed (4-byte big-endian) byte string.
func (e *Encoder) Bytes(b []byte) *Encoder {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	e.buf = append(e.buf, lenBuf[:]...)
	e.buf = append(e.buf, b...)
	return e
}

// Fixed appends b verbatim, with no length prefix. Use only for fields of a
// fixed known width (hashes, public keys) where the prefix would be
// redundant.
func (e *Encoder) Fixed(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// Uint64 appends an 8-byte big-endian integer.
func (e *Encoder) Uint64(v uint64) *Encoder {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// Uint32 appends a 4-byte big-endian integer.
func (e *Encoder) Uint32(v uint32) *Encoder {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
	return e
}

// Byte appends a single byte, typically a variant discriminant.
func (e *Encoder) Byte(v byte) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

// Build returns the accumulated canonical preimage.
func (e *Encoder) Build() []byte {
	return e.buf
}

// Sum256 is a convenience for HashBytes(e.Build()).
func (e *Encoder) Sum256() [32]byte {
	var out [32]byte
	copy(out[:], HashBytes(e.Build()))
	return out
}

// Decoder reads back the fields an Encoder wrote, in the same order they
// were appended. It is the wire layer's deserializer: every canonical
// encoding used for hashing is also used on the wire, so one pair of types
// covers both concerns.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential reads.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining reports how many bytes are left unread.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return fmt.Errorf("canonical decode: need %d bytes, have %d", n, d.Remaining())
	}
	return nil
}

// Bytes reads a length-prefixed byte string.
func (d *Decoder) Bytes() ([]byte, error) {
	if err := d.need(4); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	out := append([]byte(nil), d.buf[d.pos:d.pos+int(n)]...)
	d.pos += int(n)
	return out, nil
}

// Fixed reads exactly n bytes with no length prefix.
func (d *Decoder) Fixed(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	out := append([]byte(nil), d.buf[d.pos:d.pos+n]...)
	d.pos += n
	return out, nil
}

// Uint64 reads an 8-byte big-endian integer.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// Uint32 reads a 4-byte big-endian integer.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

// Byte reads a single byte.
func (d *Decoder) Byte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}
