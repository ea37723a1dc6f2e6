// Package wire implements the FSX1 framed binary protocol (component C1):
// a fixed 12-byte header followed by a type-specific payload, and the
// typed request/response structs carried in that payload. Every integer
// on the wire is big-endian; every string field is a u16 length followed
// by raw bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic is the 4-byte "FSX1" constant that opens every frame.
	Magic uint32 = 0x46535831

	// ProtocolVersion is the only version this codec accepts.
	ProtocolVersion uint8 = 1

	// HeaderSize is the fixed size of the frame header in bytes.
	HeaderSize = 12

	// MaxPayloadSize is the largest payload a frame may declare. Exactly
	// this many bytes is legal; one more is a framing error.
	MaxPayloadSize = 16 * 1024 * 1024
)

// Errors returned by ReadFrame. All are fatal to the connection that
// produced them: the caller must close the socket without replying.
var (
	ErrBadMagic         = errors.New("wire: bad magic")
	ErrBadVersion       = errors.New("wire: bad version")
	ErrOversizedPayload = errors.New("wire: oversized payload")
	ErrTruncatedPayload = errors.New("wire: truncated payload")
)

// Header is the 12-byte frame header, decoded into its fields.
type Header struct {
	Magic    uint32
	Version  uint8
	Type     byte
	Length   uint32
	Reserved uint16
}

// ReadFrame reads one frame from r: a header, validated in place, followed
// by its full payload. Any validation failure is one of the Err* sentinels
// above and the connection must be closed without a reply.
func ReadFrame(r io.Reader) (msgType byte, payload []byte, err error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrTruncatedPayload, err)
	}

	magic := binary.BigEndian.Uint32(hdr[0:4])
	if magic != Magic {
		return 0, nil, ErrBadMagic
	}
	version := hdr[4]
	if version != ProtocolVersion {
		return 0, nil, ErrBadVersion
	}
	msgType = hdr[5]
	length := binary.BigEndian.Uint32(hdr[6:10])
	if length > MaxPayloadSize {
		return 0, nil, ErrOversizedPayload
	}

	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrTruncatedPayload, err)
		}
	}
	return msgType, payload, nil
}

// WriteFrame writes one frame: the 12-byte header for msgType and
// len(payload), followed by payload itself.
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return ErrOversizedPayload
	}

	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], Magic)
	hdr[4] = ProtocolVersion
	hdr[5] = msgType
	binary.BigEndian.PutUint32(hdr[6:10], uint32(len(payload)))
	// hdr[10:12] reserved, left zero.

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}
