package session

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dexterws/netchess/internal/domain"
	"github.com/dexterws/netchess/internal/link"
	"github.com/dexterws/netchess/internal/wire"
)

func pipeLinks(t *testing.T) (*link.Peer, *link.Peer) {
	t.Helper()
	c1, c2 := net.Pipe()
	host := link.New(c1, 8)
	client := link.New(c2, 8)
	t.Cleanup(func() { _ = host.Close(); _ = client.Close() })
	return host, client
}

func negotiateBoth(t *testing.T, host, client *link.Peer) (*PlayerSet, *PlayerSet) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type res struct {
		ps  *PlayerSet
		err error
	}
	hostCh := make(chan res, 1)
	go func() {
		ps, err := Negotiate(ctx, host, Mode{Kind: Hosting}, "hoster")
		hostCh <- res{ps, err}
	}()

	clientPS, err := Negotiate(ctx, client, Mode{Kind: Joining}, "joiner")
	if err != nil {
		t.Fatalf("client negotiate: %v", err)
	}
	hr := <-hostCh
	if hr.err != nil {
		t.Fatalf("host negotiate: %v", hr.err)
	}
	return hr.ps, clientPS
}

// The listener is always the first color, for every handshake ordering.
func TestHostIsAlwaysFirstColor(t *testing.T) {
	for i := 0; i < 5; i++ {
		host, client := pipeLinks(t)
		hostPS, clientPS := negotiateBoth(t, host, client)

		if hostPS.Local().Color != domain.First || !hostPS.Local().IsLocal {
			t.Fatalf("host local participant should be first color, got %+v", hostPS.Local())
		}
		if clientPS.Local().Color != domain.Second {
			t.Fatalf("client local participant should be second color, got %+v", clientPS.Local())
		}

		hostRemote, ok := hostPS.Remote()
		if !ok || hostRemote.Color != domain.Second {
			t.Fatalf("host remote participant should be second color, got %+v", hostRemote)
		}
		clientRemote, ok := clientPS.Remote()
		if !ok || clientRemote.Color != domain.First {
			t.Fatalf("client remote participant should be first color, got %+v", clientRemote)
		}
	}
}

func TestNegotiationExchangesNames(t *testing.T) {
	host, client := pipeLinks(t)
	hostPS, clientPS := negotiateBoth(t, host, client)

	if remote, _ := hostPS.Remote(); remote.DisplayName != "joiner" {
		t.Fatalf("host should learn the joiner's name, got %q", remote.DisplayName)
	}
	if remote, _ := clientPS.Remote(); remote.DisplayName != "hoster" {
		t.Fatalf("client should learn the hoster's name, got %q", remote.DisplayName)
	}
}

// Rematch re-runs the handshake over the same sockets and must reproduce the
// same role assignment under a fresh session ID.
func TestRenegotiationIsConsistent(t *testing.T) {
	host, client := pipeLinks(t)
	first, _ := negotiateBoth(t, host, client)
	second, clientSecond := negotiateBoth(t, host, client)

	if first.ID == second.ID {
		t.Fatalf("rematch should mint a fresh session ID")
	}
	if second.Local().Color != domain.First {
		t.Fatalf("host must stay first color after rematch")
	}
	if clientSecond.Local().Color != domain.Second {
		t.Fatalf("client must stay second color after rematch")
	}
}

// A decisive game leaves the final move's Ack queued on the side that
// authored it; the rematch handshake must discard it instead of choking.
func TestNegotiationSkipsStaleAck(t *testing.T) {
	host, client := pipeLinks(t)
	if err := client.Send(wire.Ack{OK: true, End: wire.EndCheckmate}); err != nil {
		t.Fatalf("send stale ack: %v", err)
	}

	hostPS, clientPS := negotiateBoth(t, host, client)
	if hostPS.Local().Color != domain.First {
		t.Fatalf("host should still negotiate first color, got %v", hostPS.Local().Color)
	}
	if clientPS.Local().Color != domain.Second {
		t.Fatalf("client should still negotiate second color, got %v", clientPS.Local().Color)
	}
}

func TestNegotiationTimesOut(t *testing.T) {
	host, _ := pipeLinks(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Negotiate(ctx, host, Mode{Kind: Hosting}, "hoster")
	if !errors.Is(err, ErrNegotiationTimeout) {
		t.Fatalf("expected ErrNegotiationTimeout, got %v", err)
	}
}

func TestLocalOnlySkipsNetwork(t *testing.T) {
	ps, err := Negotiate(context.Background(), nil, Mode{Kind: LocalOnly}, "solo")
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if !ps.ByColor(domain.First).IsLocal || !ps.ByColor(domain.Second).IsLocal {
		t.Fatalf("both participants must be local in LocalOnly mode")
	}
	if _, ok := ps.Remote(); ok {
		t.Fatalf("LocalOnly must not have a remote participant")
	}
	if !ps.OwnsTurn(domain.First) || !ps.OwnsTurn(domain.Second) {
		t.Fatalf("every turn is locally owned in LocalOnly mode")
	}
}
