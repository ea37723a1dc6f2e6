package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encoder appends fixed-order, delimiter-free fields to a payload buffer,
// matching the TLV-like layout the wire protocol uses for multi-field
// payloads.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Uint8 appends a single byte.
func (e *Encoder) Uint8(v uint8) *Encoder {
	e.buf.WriteByte(v)
	return e
}

// Uint16 appends a big-endian u16.
func (e *Encoder) Uint16(v uint16) *Encoder {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
	return e
}

// Uint32 appends a big-endian u32.
func (e *Encoder) Uint32(v uint32) *Encoder {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
	return e
}

// Uint64 appends a big-endian u64.
func (e *Encoder) Uint64(v uint64) *Encoder {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
	return e
}

// String appends a u16 length prefix followed by s's raw bytes.
func (e *Encoder) String(s string) *Encoder {
	e.Uint16(uint16(len(s)))
	e.buf.WriteString(s)
	return e
}

// Raw appends b verbatim, with no length prefix. Used for the trailing
// raw-bytes field of HELLO, PING, PONG, and FILE_CHUNK.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf.Write(b)
	return e
}

// Bytes returns the encoded payload.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// Decoder reads fixed-order fields out of a payload buffer, advancing a
// cursor as it goes. Every accessor returns an error instead of panicking
// if the buffer is exhausted, since untrusted bytes drive this type.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder wraps data for sequential field reads.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

func (d *Decoder) need(n int) error {
	if d.pos+n > len(d.data) {
		return fmt.Errorf("wire: payload too short: need %d more bytes at offset %d, have %d total", n, d.pos, len(d.data))
	}
	return nil
}

// Uint8 reads one byte.
func (d *Decoder) Uint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

// Uint16 reads a big-endian u16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

// Uint32 reads a big-endian u32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

// Uint64 reads a big-endian u64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

// String reads a u16 length prefix followed by that many bytes.
func (d *Decoder) String() (string, error) {
	n, err := d.Uint16()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n)
	return s, nil
}

// Rest returns every remaining byte without advancing past the end,
// consuming the cursor to the buffer's length. Used for the trailing raw
// field of HELLO, PING, PONG, and FILE_CHUNK.
func (d *Decoder) Rest() []byte {
	rest := d.data[d.pos:]
	d.pos = len(d.data)
	return rest
}
