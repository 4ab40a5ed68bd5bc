package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single encoded packet. Every packet in the protocol
// fits in well under this; anything larger is a corrupt or hostile prefix.
const MaxFrameSize = 1024

// WriteFrame writes one packet as a 4-byte big-endian length prefix followed
// by the tagged payload. The prefix makes the stream safe under coalesced
// writes and partial reads.
func WriteFrame(w io.Writer, p Packet) error {
	raw, err := Encode(p)
	if err != nil {
		return err
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(raw)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadRawFrame reads one length-prefixed payload without decoding it.
// Any error returned here means the stream itself is unusable; a payload
// that later fails Decode can be dropped without losing framing.
func ReadRawFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return raw, nil
}

// ReadFrame reads exactly one length-prefixed packet from r.
func ReadFrame(r io.Reader) (Packet, error) {
	raw, err := ReadRawFrame(r)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}
