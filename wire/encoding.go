package wire

import (
	"encoding/binary"
	"fmt"
)

// encoder is the compact little-endian binary encoder mandated by spec §4.1:
// fixed-width little-endian integers, length-prefixed strings and byte blobs.
// It plays the same role as the teacher's BinaryCodec, generalized into a
// reusable cursor so every body type in bodies.go can share one encoding.
type encoder struct {
	buf []byte
}

func newEncoder(sizeHint int) *encoder {
	return &encoder{buf: make([]byte, 0, sizeHint)}
}

func (e *encoder) putUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putBytes(v []byte) {
	e.putUint32(uint32(len(v)))
	e.buf = append(e.buf, v...)
}

func (e *encoder) putString(v string) {
	e.putBytes([]byte(v))
}

func (e *encoder) bytes() []byte {
	return e.buf
}

// decoder reads back what encoder wrote, failing with DeserializationFailedError
// wrapped errors on truncated input rather than panicking.
type decoder struct {
	buf []byte
	pos int
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf}
}

func (d *decoder) uint32() (uint32, error) {
	if len(d.buf)-d.pos < 4 {
		return 0, fmt.Errorf("wire: truncated uint32 at offset %d", d.pos)
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos : d.pos+4])
	d.pos += 4
	return v, nil
}

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if len(d.buf)-d.pos < int(n) {
		return nil, fmt.Errorf("wire: truncated byte blob of length %d at offset %d", n, d.pos)
	}
	v := make([]byte, n)
	copy(v, d.buf[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return v, nil
}

func (d *decoder) stringField() (string, error) {
	b, err := d.bytesField()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) finished() bool {
	return d.pos == len(d.buf)
}
