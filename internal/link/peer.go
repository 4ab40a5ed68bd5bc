// Package link owns one live peer connection: a single TCP stream, a
// background receive loop that decodes frames, and a bounded inbound queue
// decoupling packet arrival from per-tick consumption.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/dexterws/netchess/internal/obslog"
	"github.com/dexterws/netchess/internal/wire"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	// ErrLinkBroken reports a dead connection. Fatal to the session; the
	// caller must not retry.
	ErrLinkBroken staticErr = "link: connection broken"
	// ErrLinkClosed reports use of a link after Close.
	ErrLinkClosed staticErr = "link: closed"
)

// Peer is one side of a live peer-to-peer connection. Send is called only
// from the update-loop goroutine; the receive loop is the sole producer of
// the inbound channel, so the channel is the only cross-goroutine state.
type Peer struct {
	conn    net.Conn
	inbound chan wire.Packet

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	errMu   sync.Mutex
	readErr error
}

// Listen binds addr, waits for exactly one peer to connect, then stops
// listening. The returned Peer already has its receive loop running.
func Listen(ctx context.Context, addr string, queueSize int) (*Peer, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("link: bind %s: %w", addr, err)
	}
	defer ln.Close()

	// Unblock Accept if the caller gives up.
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("link: accept on %s: %w", addr, ctx.Err())
		}
		return nil, fmt.Errorf("link: accept on %s: %w", addr, err)
	}
	obslog.L().Info("link_accepted", zap.String("peer", conn.RemoteAddr().String()))
	return New(conn, queueSize), nil
}

// Dial connects to a hosting peer.
func Dial(ctx context.Context, addr string, queueSize int) (*Peer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("link: dial %s: %w", addr, err)
	}
	obslog.L().Info("link_dialed", zap.String("peer", conn.RemoteAddr().String()))
	return New(conn, queueSize), nil
}

// New wraps an established connection and starts the receive loop.
func New(conn net.Conn, queueSize int) *Peer {
	if queueSize <= 0 {
		queueSize = 32
	}
	p := &Peer{
		conn:    conn,
		inbound: make(chan wire.Packet, queueSize),
		done:    make(chan struct{}),
	}
	p.wg.Add(1)
	go p.receiveLoop()
	return p
}

// receiveLoop reads frames for the link's entire lifetime. A frame that
// fails to decode is dropped and logged; framing stays intact because the
// length prefix was already consumed. A read error ends the loop for good.
func (p *Peer) receiveLoop() {
	defer p.wg.Done()
	for {
		raw, err := wire.ReadRawFrame(p.conn)
		if err != nil {
			p.fail(err)
			return
		}
		pkt, err := wire.Decode(raw)
		if err != nil {
			obslog.L().Warn("link_recv_drop", zap.Int("bytes", len(raw)), zap.Error(err))
			continue
		}
		select {
		case p.inbound <- pkt:
		case <-p.done:
			return
		}
	}
}

func (p *Peer) fail(err error) {
	p.errMu.Lock()
	if p.readErr == nil {
		p.readErr = err
	}
	p.errMu.Unlock()
	p.stopOnce.Do(func() { close(p.done) })
	if !p.closing(err) {
		obslog.L().Warn("link_down", zap.Error(err))
	}
}

// closing reports errors produced by our own Close rather than the peer.
func (p *Peer) closing(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// Send encodes and writes one packet synchronously. A write failure means
// the session is over.
func (p *Peer) Send(pkt wire.Packet) error {
	select {
	case <-p.done:
		return fmt.Errorf("%w: %w", ErrLinkBroken, p.Err())
	default:
	}
	if err := wire.WriteFrame(p.conn, pkt); err != nil {
		p.fail(err)
		return fmt.Errorf("%w: %w", ErrLinkBroken, err)
	}
	return nil
}

// TryReceive pops the oldest queued packet without blocking.
func (p *Peer) TryReceive() (wire.Packet, bool) {
	select {
	case pkt := <-p.inbound:
		return pkt, true
	default:
		return nil, false
	}
}

// Receive blocks until a packet arrives, the link dies, or ctx expires.
// Used only during negotiation; normal play goes through TryReceive.
func (p *Peer) Receive(ctx context.Context) (wire.Packet, error) {
	select {
	case pkt := <-p.inbound:
		return pkt, nil
	case <-p.done:
		// Drain anything queued before the link died.
		select {
		case pkt := <-p.inbound:
			return pkt, nil
		default:
		}
		return nil, fmt.Errorf("%w: %w", ErrLinkBroken, p.Err())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err reports the fatal link error, nil while the link is healthy.
func (p *Peer) Err() error {
	select {
	case <-p.done:
	default:
		return nil
	}
	p.errMu.Lock()
	defer p.errMu.Unlock()
	if p.readErr != nil && !p.closing(p.readErr) {
		return p.readErr
	}
	return ErrLinkClosed
}

// Down reports whether the link has failed or been closed.
func (p *Peer) Down() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Close shuts the connection and joins the receive loop before returning.
func (p *Peer) Close() error {
	p.stopOnce.Do(func() { close(p.done) })
	err := p.conn.Close()
	p.wg.Wait()
	return err
}
