// Package turn holds the phase state machine that gates whose move is legal
// each tick and reconciles applied moves with the peer. It is the only
// consumer of the peer link during play and never blocks: remote packets are
// taken via TryReceive, one step per tick.
package turn

import (
	"go.uber.org/zap"

	"github.com/dexterws/netchess/internal/domain"
	"github.com/dexterws/netchess/internal/obslog"
	"github.com/dexterws/netchess/internal/rules"
	"github.com/dexterws/netchess/internal/session"
	"github.com/dexterws/netchess/internal/wire"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrNotYourTurn reports local input while the remote side owns the turn.
	ErrNotYourTurn staticErr = "turn: not your turn"
	// ErrBadPhase reports an operation that the current phase does not allow.
	ErrBadPhase staticErr = "turn: operation not allowed in this phase"
	// ErrNotEnded reports a rematch request before the game is over.
	ErrNotEnded staticErr = "turn: game is not over"
)

// Origin records whether a candidate move came from local input or from the
// network.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	if o == OriginRemote {
		return "remote"
	}
	return "local"
}

// PhaseKind names the coordinator's state.
type PhaseKind int

const (
	// PhaseAwaitingInput waits for a candidate move from whichever side owns
	// the current turn.
	PhaseAwaitingInput PhaseKind = iota
	// PhasePendingValidation holds a candidate until the next tick submits
	// it to the rules engine.
	PhasePendingValidation
	// PhaseAwaitingPromotion holds an applied-but-unfinished local move
	// until a promotion piece is chosen.
	PhaseAwaitingPromotion
	// PhaseEnded is terminal until a rematch resets the session.
	PhaseEnded
	// PhaseLinkDown is terminal: the peer connection broke mid-game.
	PhaseLinkDown
)

func (k PhaseKind) String() string {
	switch k {
	case PhasePendingValidation:
		return "pending_validation"
	case PhaseAwaitingPromotion:
		return "awaiting_promotion"
	case PhaseEnded:
		return "ended"
	case PhaseLinkDown:
		return "link_down"
	default:
		return "awaiting_input"
	}
}

// Phase is the coordinator state as a tagged value. Candidate and Origin are
// set for PendingValidation and AwaitingPromotion; Result for Ended; Err for
// LinkDown.
type Phase struct {
	Kind      PhaseKind
	Candidate domain.Move
	Origin    Origin
	Result    domain.Status
	Err       error
}

// Link is the subset of the peer link the coordinator drives during play.
type Link interface {
	Send(wire.Packet) error
	TryReceive() (wire.Packet, bool)
	Down() bool
	Err() error
}

// Coordinator drives one game session. All methods run on the update-loop
// goroutine; nothing here is safe for concurrent use and nothing needs to
// be, the link's queue is the only cross-goroutine boundary.
type Coordinator struct {
	engine  *rules.Engine
	players *session.PlayerSet
	link    Link // nil in LocalOnly sessions

	phase Phase

	// remoteDrawOffer is view-facing: the peer's last move carried a draw
	// offer that local input has not answered.
	remoteDrawOffer bool
}

// New builds a coordinator for one session. link is nil for LocalOnly.
func New(engine *rules.Engine, players *session.PlayerSet, link Link) *Coordinator {
	return &Coordinator{engine: engine, players: players, link: link}
}

// Phase exposes the current phase to the view layer.
func (c *Coordinator) Phase() Phase { return c.phase }

// Engine exposes board state and legal moves for display and input mapping.
// The view must submit moves through SubmitLocal, never apply them itself.
func (c *Coordinator) Engine() *rules.Engine { return c.engine }

// Players returns the session's participant pairing.
func (c *Coordinator) Players() *session.PlayerSet { return c.players }

// RemoteDrawOffer reports an unanswered draw offer from the peer.
func (c *Coordinator) RemoteDrawOffer() bool { return c.remoteDrawOffer }

// OwnsCurrentTurn reports whether local input drives the side to move.
// Always true in LocalOnly sessions.
func (c *Coordinator) OwnsCurrentTurn() bool {
	return c.players.OwnsTurn(c.engine.Turn())
}

// SubmitLocal accepts a candidate move from the local input collaborator.
// Accepted only in AwaitingInput while the local side owns the turn, and
// only if the candidate appears in the engine's legal-move list (forfeits
// skip that check). Validation itself happens on the next Tick.
func (c *Coordinator) SubmitLocal(mv domain.Move) error {
	if c.phase.Kind != PhaseAwaitingInput {
		return ErrBadPhase
	}
	if !c.OwnsCurrentTurn() {
		return ErrNotYourTurn
	}
	if !mv.Forfeit && !c.isListedMove(mv) {
		return rules.ErrIllegalMove
	}
	c.phase = Phase{Kind: PhasePendingValidation, Candidate: mv, Origin: OriginLocal}
	return nil
}

// ChoosePromotion supplies the piece for a local move held in
// AwaitingPromotion and finishes the ply.
func (c *Coordinator) ChoosePromotion(kind domain.PieceKind) error {
	if c.phase.Kind != PhaseAwaitingPromotion {
		return ErrBadPhase
	}
	mover := c.engine.Turn()
	st, err := c.engine.CompletePromotion(kind)
	if err != nil {
		return err
	}
	c.phase.Candidate.Promotion = kind
	return c.finishPly(mover, st)
}

// Rematch leaves a terminal phase with a fresh board and a fresh player set
// (the caller re-runs negotiation for networked sessions).
func (c *Coordinator) Rematch(players *session.PlayerSet) error {
	if c.phase.Kind != PhaseEnded {
		return ErrNotEnded
	}
	c.engine = rules.NewGame()
	c.players = players
	c.phase = Phase{Kind: PhaseAwaitingInput}
	c.remoteDrawOffer = false
	obslog.L().Info("turn_rematch", zap.String("session_id", players.ID))
	return nil
}

// Tick advances the state machine one step. Called once per frame; never
// blocks.
func (c *Coordinator) Tick() error {
	if c.linkFailed() {
		return c.phase.Err
	}
	switch c.phase.Kind {
	case PhaseAwaitingInput:
		c.pollRemote()
		return nil
	case PhasePendingValidation:
		return c.validate()
	default:
		return nil
	}
}

// linkFailed promotes a dead link to the terminal LinkDown phase.
func (c *Coordinator) linkFailed() bool {
	if c.link == nil || !c.link.Down() {
		return false
	}
	if c.phase.Kind == PhaseEnded || c.phase.Kind == PhaseLinkDown {
		return c.phase.Kind == PhaseLinkDown
	}
	c.phase = Phase{Kind: PhaseLinkDown, Err: c.link.Err()}
	obslog.L().Error("turn_link_down", zap.Error(c.phase.Err))
	return true
}

// pollRemote consumes at most one queued packet per tick.
func (c *Coordinator) pollRemote() {
	if c.link == nil {
		return
	}
	pkt, ok := c.link.TryReceive()
	if !ok {
		return
	}
	switch p := pkt.(type) {
	case wire.Move:
		c.onRemoteMove(p)
	case wire.Ack:
		c.onAck(p)
	default:
		obslog.L().Warn("turn_unexpected_packet", zap.String("kind", pkt.Kind().String()))
	}
}

func (c *Coordinator) onRemoteMove(p wire.Move) {
	if c.OwnsCurrentTurn() {
		// The peer moved on our turn: the sessions disagree. Reject rather
		// than desync local state.
		obslog.L().Warn("turn_remote_move_out_of_turn", zap.String("move", p.AsDomain().String()))
		c.sendAck(wire.Ack{OK: false})
		return
	}
	if p.OfferDraw {
		c.remoteDrawOffer = true
		obslog.L().Info("turn_draw_offered")
	}
	c.phase = Phase{Kind: PhasePendingValidation, Candidate: p.AsDomain(), Origin: OriginRemote}
}

// onAck records the peer's confirmation of our last move. The Ack is
// informational: the sender's phase already advanced on its own engine's
// result and never waits for it.
func (c *Coordinator) onAck(p wire.Ack) {
	if !p.OK {
		obslog.L().Warn("turn_peer_rejected_move")
		return
	}
	obslog.L().Debug("turn_peer_ack", zap.Int("end", int(p.End)))
}

// validate submits the held candidate to the rules engine and routes the
// outcome.
func (c *Coordinator) validate() error {
	mover := c.engine.Turn()
	cand, origin := c.phase.Candidate, c.phase.Origin

	st, err := c.engine.Apply(cand)
	if err != nil {
		// Recoverable: discard the candidate. Remote rejections are
		// acknowledged so the peer learns its move did not land.
		obslog.L().Warn("turn_move_rejected",
			zap.String("move", cand.String()),
			zap.String("origin", origin.String()),
			zap.Error(err),
		)
		c.phase = Phase{Kind: PhaseAwaitingInput}
		if origin == OriginRemote {
			c.sendAck(wire.Ack{OK: false})
		}
		return nil
	}

	if st.Kind == domain.AwaitingPromotion {
		if origin == OriginRemote {
			// A conforming peer transmits its promotion choice in the Move
			// packet; fall back to queen only for peers that omit it.
			obslog.L().Warn("turn_remote_promotion_missing")
			st, err = c.engine.CompletePromotion(domain.Queen)
			if err != nil {
				c.phase = Phase{Kind: PhaseAwaitingInput}
				c.sendAck(wire.Ack{OK: false})
				return nil
			}
			c.phase.Candidate.Promotion = domain.Queen
			return c.finishPly(mover, st)
		}
		c.phase = Phase{Kind: PhaseAwaitingPromotion, Candidate: cand, Origin: origin}
		return nil
	}

	return c.finishPly(mover, st)
}

// finishPly relays the applied move and settles the next phase. The side
// whose local participant authored the move broadcasts it; the receiving
// side answers with an acknowledgment. That asymmetry keeps a move from
// echoing back to its sender.
func (c *Coordinator) finishPly(mover domain.Color, st domain.Status) error {
	cand := c.phase.Candidate
	if c.phase.Origin == OriginLocal {
		// Answering with a move declines any outstanding offer.
		c.remoteDrawOffer = false
	}
	if c.link != nil {
		var sendErr error
		if c.players.ByColor(mover).IsLocal {
			sendErr = c.link.Send(wire.MoveFromDomain(cand))
		} else {
			sendErr = c.link.Send(wire.Ack{OK: true, End: endState(st)})
		}
		if sendErr != nil {
			c.phase = Phase{Kind: PhaseLinkDown, Err: sendErr}
			obslog.L().Error("turn_link_down", zap.Error(sendErr))
			return sendErr
		}
	}

	obslog.L().Info("turn_move_applied",
		zap.String("session_id", c.players.ID),
		zap.String("move", cand.String()),
		zap.String("mover", mover.String()),
		zap.String("status", st.String()),
	)

	if st.Over() {
		c.phase = Phase{Kind: PhaseEnded, Result: st}
		return nil
	}
	c.phase = Phase{Kind: PhaseAwaitingInput}
	return nil
}

func (c *Coordinator) sendAck(a wire.Ack) {
	if c.link == nil {
		return
	}
	if err := c.link.Send(a); err != nil {
		c.phase = Phase{Kind: PhaseLinkDown, Err: err}
		obslog.L().Error("turn_link_down", zap.Error(err))
	}
}

func (c *Coordinator) isListedMove(mv domain.Move) bool {
	for _, legal := range c.engine.LegalMoves()[mv.From] {
		if legal.To == mv.To {
			return true
		}
	}
	return false
}

func endState(st domain.Status) wire.EndState {
	switch st.Kind {
	case domain.Checkmate, domain.Resigned:
		return wire.EndCheckmate
	case domain.Draw:
		return wire.EndDraw
	default:
		return wire.EndNone
	}
}
