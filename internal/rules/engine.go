// Package rules adapts the chess library to the narrow contract the turn
// coordinator consumes: start a game, list legal moves, apply a candidate,
// complete a promotion, report status. All moves cross the boundary as
// (file,rank) squares; internally everything is pushed as UCI notation.
package rules

import (
	"fmt"

	nchess "github.com/corentings/chess/v2"

	"github.com/dexterws/netchess/internal/domain"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrIllegalMove reports a candidate that matches no legal move. Remote
	// candidates are untrusted, so this is an expected rejection, not a bug.
	ErrIllegalMove staticErr = "rules: illegal move"
	// ErrPromotionPending reports a new candidate while a promotion choice
	// is still outstanding.
	ErrPromotionPending staticErr = "rules: promotion pending"
	// ErrNoPromotionPending reports CompletePromotion with nothing to finish.
	ErrNoPromotionPending staticErr = "rules: no promotion pending"
	// ErrGameOver reports a candidate after the game ended.
	ErrGameOver staticErr = "rules: game is over"
)

// Engine wraps one chess game. Not safe for concurrent use; the coordinator
// is its only caller and runs on the update loop.
type Engine struct {
	game  *nchess.Game
	moves []string

	// pending holds a from/to pair that was legal but needs a promotion
	// piece before it can be pushed.
	pending *domain.Move
}

// NewGame starts from the initial position.
func NewGame() *Engine {
	return &Engine{game: nchess.NewGame()}
}

// NewGameFromFEN starts from an arbitrary position.
func NewGameFromFEN(fen string) (*Engine, error) {
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("rules: parse fen: %w", err)
	}
	return &Engine{game: nchess.NewGame(opt)}, nil
}

// Turn returns the color to move.
func (e *Engine) Turn() domain.Color {
	if e.game.Position().Turn() == nchess.White {
		return domain.First
	}
	return domain.Second
}

// FEN returns the current position.
func (e *Engine) FEN() string { return e.game.FEN() }

// History returns the applied moves in UCI notation, oldest first.
func (e *Engine) History() []string {
	return append([]string(nil), e.moves...)
}

// LegalMoves maps each origin square to the candidate moves available from
// it. Promotion variants collapse into a single candidate per destination;
// the piece choice is supplied later via Apply or CompletePromotion.
func (e *Engine) LegalMoves() map[domain.Square][]domain.Move {
	out := make(map[domain.Square][]domain.Move)
	seen := make(map[string]bool)
	for _, uci := range e.legalUCI() {
		from, to, _ := splitUCI(uci)
		key := from.UCI() + to.UCI()
		if seen[key] {
			continue
		}
		seen[key] = true
		out[from] = append(out[from], domain.Move{From: from, To: to})
	}
	return out
}

// Apply validates and applies one candidate ply.
//
// Returns the post-move status on success. A move that needs a promotion
// piece and does not carry one is held and reported as AwaitingPromotion;
// the position does not change until CompletePromotion. ErrIllegalMove
// leaves the game untouched.
func (e *Engine) Apply(mv domain.Move) (domain.Status, error) {
	if e.pending != nil {
		return e.Status(), ErrPromotionPending
	}
	if e.Status().Over() {
		return e.Status(), ErrGameOver
	}
	if mv.Forfeit {
		e.game.Resign(e.game.Position().Turn())
		return e.Status(), nil
	}
	if !mv.From.Valid() || !mv.To.Valid() {
		return e.Status(), ErrIllegalMove
	}

	matches := e.matchingUCI(mv.From, mv.To)
	if len(matches) == 0 {
		return e.Status(), ErrIllegalMove
	}
	if len(matches[0]) == 5 {
		// Promotion square. Either the candidate carries the piece or the
		// choice is still outstanding.
		if mv.Promotion == domain.NoPiece {
			held := mv
			e.pending = &held
			return e.Status(), nil
		}
		return e.push(mv.UCI())
	}
	return e.push(matches[0])
}

// CompletePromotion finishes a held promotion move with the chosen piece.
func (e *Engine) CompletePromotion(kind domain.PieceKind) (domain.Status, error) {
	if e.pending == nil {
		return e.Status(), ErrNoPromotionPending
	}
	if kind == domain.NoPiece {
		return e.Status(), fmt.Errorf("%w: piece required", ErrIllegalMove)
	}
	mv := *e.pending
	mv.Promotion = kind
	e.pending = nil
	st, err := e.push(mv.UCI())
	if err != nil {
		// Keep waiting; the caller may retry with a different piece.
		e.pending = &mv
	}
	return st, err
}

// Pending returns the move held for a promotion choice, if any.
func (e *Engine) Pending() (domain.Move, bool) {
	if e.pending == nil {
		return domain.Move{}, false
	}
	return *e.pending, true
}

// Status reports the engine's view of the game.
func (e *Engine) Status() domain.Status {
	if e.pending != nil {
		return domain.Status{Kind: domain.AwaitingPromotion}
	}
	switch e.game.Outcome() {
	case nchess.WhiteWon, nchess.BlackWon:
		mated := domain.First
		if e.game.Outcome() == nchess.WhiteWon {
			mated = domain.Second
		}
		kind := domain.Checkmate
		if e.game.Method() == nchess.Resignation {
			kind = domain.Resigned
		}
		return domain.Status{Kind: kind, Mated: mated}
	case nchess.Draw:
		return domain.Status{Kind: domain.Draw, Reason: drawKind(e.game.Method())}
	default:
		return domain.Status{Kind: domain.InProgress}
	}
}

func (e *Engine) push(uci string) (domain.Status, error) {
	if !e.isLegalUCI(uci) {
		return e.Status(), ErrIllegalMove
	}
	if err := e.game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return e.Status(), fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	e.moves = append(e.moves, uci)
	return e.Status(), nil
}

func (e *Engine) legalUCI() []string {
	valid := e.game.ValidMoves()
	out := make([]string, 0, len(valid))
	for i := range valid {
		out = append(out, valid[i].String())
	}
	return out
}

func (e *Engine) matchingUCI(from, to domain.Square) []string {
	prefix := from.UCI() + to.UCI()
	var out []string
	for _, uci := range e.legalUCI() {
		if len(uci) >= 4 && uci[:4] == prefix {
			out = append(out, uci)
		}
	}
	return out
}

func (e *Engine) isLegalUCI(uci string) bool {
	for _, s := range e.legalUCI() {
		if s == uci {
			return true
		}
	}
	return false
}

func splitUCI(uci string) (from, to domain.Square, promo domain.PieceKind) {
	if len(uci) < 4 {
		return
	}
	from, _ = domain.ParseSquare(uci[0:2])
	to, _ = domain.ParseSquare(uci[2:4])
	if len(uci) > 4 {
		promo = domain.PieceFromUCI(uci[4:5])
	}
	return
}

func drawKind(m nchess.Method) domain.DrawKind {
	switch m {
	case nchess.Stalemate:
		return domain.Stalemate
	case nchess.ThreefoldRepetition:
		return domain.ThreefoldRepetition
	case nchess.FiftyMoveRule:
		return domain.FiftyMoveRule
	case nchess.InsufficientMaterial:
		return domain.InsufficientMaterial
	default:
		return domain.DrawUnknown
	}
}
