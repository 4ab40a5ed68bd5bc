package domain

import "fmt"

// Color identifies a side of the board. First moves first (white).
type Color int

const (
	First Color = iota
	Second
)

func (c Color) Other() Color {
	if c == First {
		return Second
	}
	return First
}

func (c Color) String() string {
	if c == First {
		return "white"
	}
	return "black"
}

// Square is a board coordinate with file and rank in 0..7.
// File 0 is the a-file, rank 0 is white's back rank.
type Square struct {
	File uint8 `msgpack:"f"`
	Rank uint8 `msgpack:"r"`
}

func (s Square) Valid() bool { return s.File < 8 && s.Rank < 8 }

// UCI returns the algebraic square name, e.g. "e4".
func (s Square) UCI() string {
	return string([]byte{'a' + s.File, '1' + s.Rank})
}

// ParseSquare reads a two-character square name.
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return Square{}, fmt.Errorf("bad square %q", s)
	}
	return Square{File: s[0] - 'a', Rank: s[1] - '1'}, nil
}

// PieceKind names a promotion target. NoPiece means no promotion.
type PieceKind int

const (
	NoPiece PieceKind = iota
	Queen
	Rook
	Bishop
	Knight
)

func (p PieceKind) String() string {
	switch p {
	case Queen:
		return "queen"
	case Rook:
		return "rook"
	case Bishop:
		return "bishop"
	case Knight:
		return "knight"
	default:
		return "none"
	}
}

// UCISuffix is the promotion letter appended to a UCI move, "" for NoPiece.
func (p PieceKind) UCISuffix() string {
	switch p {
	case Queen:
		return "q"
	case Rook:
		return "r"
	case Bishop:
		return "b"
	case Knight:
		return "n"
	default:
		return ""
	}
}

// PieceFromUCI maps a promotion letter back to a kind.
func PieceFromUCI(s string) PieceKind {
	switch s {
	case "q":
		return Queen
	case "r":
		return Rook
	case "b":
		return Bishop
	case "n":
		return Knight
	default:
		return NoPiece
	}
}

// Move is one candidate ply. Promotion is NoPiece unless the mover chose a
// promotion target. Forfeit and OfferDraw ride alongside a move the same way
// they do on the wire.
type Move struct {
	From      Square
	To        Square
	Promotion PieceKind
	Forfeit   bool
	OfferDraw bool
}

func (m Move) UCI() string { return m.From.UCI() + m.To.UCI() + m.Promotion.UCISuffix() }

func (m Move) String() string {
	if m.Forfeit {
		return "forfeit"
	}
	return m.UCI()
}

// DrawKind is the rule that produced a drawn game.
type DrawKind int

const (
	DrawUnknown DrawKind = iota
	Stalemate
	ThreefoldRepetition
	FiftyMoveRule
	InsufficientMaterial
)

func (d DrawKind) String() string {
	switch d {
	case Stalemate:
		return "stalemate"
	case ThreefoldRepetition:
		return "threefold repetition"
	case FiftyMoveRule:
		return "fifty move rule"
	case InsufficientMaterial:
		return "insufficient material"
	default:
		return "draw"
	}
}

// StatusKind is the rules engine's view of the game.
type StatusKind int

const (
	InProgress StatusKind = iota
	AwaitingPromotion
	Checkmate
	Draw
	Resigned
)

// Status is the post-move game state. Mated is meaningful only for
// Checkmate and Resigned (the side that lost); Reason only for Draw.
type Status struct {
	Kind   StatusKind
	Mated  Color
	Reason DrawKind
}

func (s Status) Over() bool {
	return s.Kind == Checkmate || s.Kind == Draw || s.Kind == Resigned
}

func (s Status) String() string {
	switch s.Kind {
	case AwaitingPromotion:
		return "awaiting promotion"
	case Checkmate:
		return fmt.Sprintf("checkmate, %s wins", s.Mated.Other())
	case Resigned:
		return fmt.Sprintf("forfeit, %s wins", s.Mated.Other())
	case Draw:
		return s.Reason.String()
	default:
		return "in progress"
	}
}
