// Package wire defines the three packet kinds exchanged between peers and
// their binary encoding. Payloads are msgpack maps behind a one-byte kind
// tag; framing is handled separately in frame.go. The codec is pure: no
// sockets, no goroutines.
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dexterws/netchess/internal/domain"
)

// Kind discriminates packet payloads on the wire.
type Kind byte

const (
	KindStart Kind = 0x01
	KindMove  Kind = 0x02
	KindAck   Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindMove:
		return "move"
	case KindAck:
		return "ack"
	default:
		return fmt.Sprintf("kind(0x%02x)", byte(k))
	}
}

// Packet is one of Start, Move or Ack. Packets are immutable values;
// equality is structural.
type Packet interface {
	Kind() Kind
}

// Start opens the session handshake. The listening side replies with
// ClaimsFirst set, fixing itself as the first color.
type Start struct {
	Name        string `msgpack:"name,omitempty"`
	ClaimsFirst bool   `msgpack:"first"`
}

func (Start) Kind() Kind { return KindStart }

// Move carries one completed ply. Coordinates are wire-normalized 0..7.
// Promotion holds the mover's actual choice, zero when the ply promotes
// nothing.
type Move struct {
	From      domain.Square    `msgpack:"from"`
	To        domain.Square    `msgpack:"to"`
	Promotion domain.PieceKind `msgpack:"promo,omitempty"`
	Forfeit   bool             `msgpack:"forfeit,omitempty"`
	OfferDraw bool             `msgpack:"draw,omitempty"`
}

func (Move) Kind() Kind { return KindMove }

// AsDomain converts the wire move into a candidate for the rules engine.
func (m Move) AsDomain() domain.Move {
	return domain.Move{
		From:      m.From,
		To:        m.To,
		Promotion: m.Promotion,
		Forfeit:   m.Forfeit,
		OfferDraw: m.OfferDraw,
	}
}

// MoveFromDomain builds the wire form of an applied move.
func MoveFromDomain(m domain.Move) Move {
	return Move{
		From:      m.From,
		To:        m.To,
		Promotion: m.Promotion,
		Forfeit:   m.Forfeit,
		OfferDraw: m.OfferDraw,
	}
}

// EndState is the receiver-side end-of-game report carried on an Ack.
type EndState int

const (
	EndNone EndState = iota
	EndCheckmate
	EndDraw
)

// Ack confirms a just-applied remote move. OK false means the move was
// rejected and the sender's peer discarded it.
type Ack struct {
	OK  bool     `msgpack:"ok"`
	End EndState `msgpack:"end,omitempty"`
}

func (Ack) Kind() Kind { return KindAck }

// Errors use the sentinel style shared across the repo.
type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrUnknownPacket reports a frame whose kind tag matches no schema.
	ErrUnknownPacket staticErr = "wire: unknown packet kind"
	// ErrFrameTooLarge reports a length prefix beyond MaxFrameSize.
	ErrFrameTooLarge staticErr = "wire: frame exceeds size limit"
	// ErrEmptyFrame reports a zero-length frame.
	ErrEmptyFrame staticErr = "wire: empty frame"
)

// Encode serializes a packet to its tagged wire form.
func Encode(p Packet) ([]byte, error) {
	body, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", p.Kind(), err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(p.Kind()))
	return append(out, body...), nil
}

// Decode parses a tagged wire form back into a packet value.
func Decode(raw []byte) (Packet, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyFrame
	}
	kind, body := Kind(raw[0]), raw[1:]
	switch kind {
	case KindStart:
		var p Start
		if err := msgpack.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("wire: decode start: %w", err)
		}
		return p, nil
	case KindMove:
		var p Move
		if err := msgpack.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("wire: decode move: %w", err)
		}
		if !p.From.Valid() || !p.To.Valid() {
			return nil, fmt.Errorf("wire: decode move: square out of range")
		}
		return p, nil
	case KindAck:
		var p Ack
		if err := msgpack.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("wire: decode ack: %w", err)
		}
		return p, nil
	default:
		return nil, ErrUnknownPacket
	}
}
