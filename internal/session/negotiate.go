package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dexterws/netchess/internal/domain"
	"github.com/dexterws/netchess/internal/obslog"
	"github.com/dexterws/netchess/internal/wire"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrNegotiationTimeout reports a handshake that never completed within
	// the configured bound.
	ErrNegotiationTimeout staticErr = "session: negotiation timed out"
)

// Link is the subset of the peer link negotiation needs.
type Link interface {
	Send(wire.Packet) error
	Receive(ctx context.Context) (wire.Packet, error)
}

// Negotiate runs the one-time handshake and produces the session's
// PlayerSet. The hosting side waits for the peer's Start, replies claiming
// the first color, and fixes itself First/local. The joining side sends
// Start first and takes whichever color the reply leaves unclaimed. The
// assignment is fixed by design: the listener is always First.
//
// Re-run on rematch over the same link; socket state is untouched, only the
// logical pairing is rebuilt.
func Negotiate(ctx context.Context, lk Link, mode Mode, localName string) (*PlayerSet, error) {
	if !mode.Networked() {
		return NewLocalPair(localName), nil
	}

	var ps *PlayerSet
	var err error
	switch mode.Kind {
	case Hosting:
		ps, err = negotiateHost(ctx, lk, localName)
	case Joining:
		ps, err = negotiateJoin(ctx, lk, localName)
	default:
		return nil, fmt.Errorf("session: mode %s cannot negotiate", mode.Kind)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrNegotiationTimeout, err)
		}
		return nil, err
	}

	remote, _ := ps.Remote()
	obslog.L().Info("session_negotiated",
		zap.String("session_id", ps.ID),
		zap.String("mode", mode.Kind.String()),
		zap.String("local_color", ps.Local().Color.String()),
		zap.String("remote_name", remote.DisplayName),
	)
	return ps, nil
}

func negotiateHost(ctx context.Context, lk Link, localName string) (*PlayerSet, error) {
	peer, err := waitStart(ctx, lk)
	if err != nil {
		return nil, err
	}
	if err := lk.Send(wire.Start{Name: localName, ClaimsFirst: true}); err != nil {
		return nil, fmt.Errorf("session: send start reply: %w", err)
	}
	return NewNetworkedPair(domain.First, localName, peer.Name), nil
}

func negotiateJoin(ctx context.Context, lk Link, localName string) (*PlayerSet, error) {
	if err := lk.Send(wire.Start{Name: localName}); err != nil {
		return nil, fmt.Errorf("session: send start: %w", err)
	}
	peer, err := waitStart(ctx, lk)
	if err != nil {
		return nil, err
	}
	if peer.ClaimsFirst {
		return NewNetworkedPair(domain.Second, localName, peer.Name), nil
	}
	return NewNetworkedPair(domain.First, localName, peer.Name), nil
}

// waitStart blocks for the peer's Start packet. Leftover play packets can
// still sit in the inbound queue when a rematch handshake begins: the side
// that authored the final move stops polling once the game ends, so the
// peer's closing Ack is only seen here. Anything that is not a Start is
// discarded.
func waitStart(ctx context.Context, lk Link) (wire.Start, error) {
	for {
		pkt, err := lk.Receive(ctx)
		if err != nil {
			return wire.Start{}, fmt.Errorf("session: wait for start: %w", err)
		}
		start, ok := pkt.(wire.Start)
		if !ok {
			obslog.L().Warn("session_handshake_skip", zap.String("kind", pkt.Kind().String()))
			continue
		}
		return start, nil
	}
}
