package link

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/dexterws/netchess/internal/domain"
	"github.com/dexterws/netchess/internal/wire"
)

func pipePeers(t *testing.T) (*Peer, *Peer) {
	t.Helper()
	c1, c2 := net.Pipe()
	a := New(c1, 8)
	b := New(c2, 8)
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return a, b
}

func waitReceive(t *testing.T, p *Peer) wire.Packet {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pkt, err := p.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	return pkt
}

func TestSendReceive(t *testing.T) {
	a, b := pipePeers(t)
	want := wire.Move{From: domain.Square{File: 1, Rank: 0}, To: domain.Square{File: 1, Rank: 2}}
	if err := a.Send(want); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := waitReceive(t, b)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mismatch: %#v vs %#v", got, want)
	}
}

func TestReceiveOrderIsFIFO(t *testing.T) {
	a, b := pipePeers(t)
	sent := []wire.Packet{
		wire.Start{Name: "one"},
		wire.Move{From: domain.Square{File: 4, Rank: 1}, To: domain.Square{File: 4, Rank: 3}},
		wire.Ack{OK: true},
	}
	go func() {
		for _, p := range sent {
			_ = a.Send(p)
		}
	}()
	for i, want := range sent {
		got := waitReceive(t, b)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("packet %d out of order: %#v vs %#v", i, got, want)
		}
	}
}

func TestTryReceiveEmpty(t *testing.T) {
	_, b := pipePeers(t)
	if pkt, ok := b.TryReceive(); ok {
		t.Fatalf("expected empty queue, got %#v", pkt)
	}
}

// A frame that fails to decode must be dropped without killing the link:
// the following good frame still arrives.
func TestMalformedFrameIsDropped(t *testing.T) {
	c1, c2 := net.Pipe()
	p := New(c2, 8)
	t.Cleanup(func() { _ = p.Close(); _ = c1.Close() })

	bad := []byte{0x7f, 0x01, 0x02}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(bad)))
	go func() {
		_, _ = c1.Write(hdr[:])
		_, _ = c1.Write(bad)
		_ = wire.WriteFrame(c1, wire.Ack{OK: true})
	}()

	got := waitReceive(t, p)
	if !reflect.DeepEqual(got, wire.Ack{OK: true}) {
		t.Fatalf("expected the good frame, got %#v", got)
	}
	if p.Down() {
		t.Fatalf("link should survive a malformed frame")
	}
}

func TestPeerDisconnectIsFatal(t *testing.T) {
	a, b := pipePeers(t)
	_ = a.Close()

	deadline := time.Now().Add(5 * time.Second)
	for !b.Down() {
		if time.Now().After(deadline) {
			t.Fatalf("link never observed the disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := b.Err(); err == nil {
		t.Fatalf("expected a link error after disconnect")
	}
	if err := b.Send(wire.Ack{OK: true}); !errors.Is(err, ErrLinkBroken) {
		t.Fatalf("expected ErrLinkBroken on send, got %v", err)
	}
}

func TestReceiveContextTimeout(t *testing.T) {
	_, b := pipePeers(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCloseJoinsReceiveLoop(t *testing.T) {
	c1, c2 := net.Pipe()
	p := New(c1, 8)
	done := make(chan struct{})
	go func() {
		_ = p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not return")
	}
	_ = c2.Close()
}

func TestListenDial(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type res struct {
		p   *Peer
		err error
	}
	hostCh := make(chan res, 1)
	go func() {
		p, err := Listen(ctx, addr, 8)
		hostCh <- res{p, err}
	}()

	var client *Peer
	for {
		client, err = Dial(ctx, addr, 8)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("dial never succeeded: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	host := <-hostCh
	if host.err != nil {
		t.Fatalf("Listen: %v", host.err)
	}
	t.Cleanup(func() { _ = host.p.Close(); _ = client.Close() })

	if err := client.Send(wire.Start{Name: "joiner"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := waitReceive(t, host.p)
	if !reflect.DeepEqual(got, wire.Start{Name: "joiner"}) {
		t.Fatalf("unexpected packet: %#v", got)
	}
}
