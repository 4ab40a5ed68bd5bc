// Package session models who is playing: the startup mode, the two
// participants, and the handshake that assigns colors between peers.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/dexterws/netchess/internal/domain"
)

// ModeKind selects how the session is wired at startup. Chosen once,
// immutable.
type ModeKind int

const (
	LocalOnly ModeKind = iota
	Hosting
	Joining
)

func (k ModeKind) String() string {
	switch k {
	case Hosting:
		return "hosting"
	case Joining:
		return "joining"
	default:
		return "local"
	}
}

// Mode is the tagged startup variant. Addr is the bind address for Hosting
// and the remote address for Joining; empty for LocalOnly.
type Mode struct {
	Kind ModeKind
	Addr string
}

func (m Mode) Networked() bool { return m.Kind != LocalOnly }

// Participant is one side of the board. DisplayName is set once during
// negotiation and empty until then.
type Participant struct {
	Color       domain.Color
	DisplayName string
	IsLocal     bool
}

// PlayerSet owns exactly one Participant per color. It is created once by
// negotiation and replaced wholesale on rematch.
type PlayerSet struct {
	ID        string
	CreatedAt time.Time
	first     Participant
	second    Participant
}

func newPlayerSet(first, second Participant) *PlayerSet {
	return &PlayerSet{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		first:     first,
		second:    second,
	}
}

// NewNetworkedPair builds a player set with one local and one remote
// Participant, the local side holding localColor.
func NewNetworkedPair(localColor domain.Color, localName, remoteName string) *PlayerSet {
	local := Participant{Color: localColor, DisplayName: localName, IsLocal: true}
	remote := Participant{Color: localColor.Other(), DisplayName: remoteName}
	if localColor == domain.First {
		return newPlayerSet(local, remote)
	}
	return newPlayerSet(remote, local)
}

// NewLocalPair builds the LocalOnly player set: both sides local, colors
// fixed arbitrarily.
func NewLocalPair(name string) *PlayerSet {
	return newPlayerSet(
		Participant{Color: domain.First, DisplayName: name, IsLocal: true},
		Participant{Color: domain.Second, DisplayName: name, IsLocal: true},
	)
}

// ByColor returns the Participant holding the given color.
func (ps *PlayerSet) ByColor(c domain.Color) Participant {
	if c == domain.First {
		return ps.first
	}
	return ps.second
}

// Local returns the sole local Participant. In LocalOnly sessions both are
// local and the first color is returned.
func (ps *PlayerSet) Local() Participant {
	if ps.first.IsLocal {
		return ps.first
	}
	return ps.second
}

// Remote returns the remote Participant, ok false for LocalOnly sessions.
func (ps *PlayerSet) Remote() (Participant, bool) {
	if !ps.first.IsLocal {
		return ps.first, true
	}
	if !ps.second.IsLocal {
		return ps.second, true
	}
	return Participant{}, false
}

// OwnsTurn reports whether local input drives the given color's turn.
func (ps *PlayerSet) OwnsTurn(c domain.Color) bool {
	return ps.ByColor(c).IsLocal
}
