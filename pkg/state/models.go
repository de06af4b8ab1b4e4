package state

import (
	"time"

	"github.com/google/uuid"
)

// Transport is the slice of the transport layer the state and routing code
// needs. *transport.Connection satisfies it; tests substitute fakes.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Phase tracks how far a connection has come through the registration
// handshake.
type Phase int

const (
	PhaseConnected Phase = iota
	PhaseRegistering
	PhaseRegistered
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnected:
		return "connected"
	case PhaseRegistering:
		return "registering"
	case PhaseRegistered:
		return "registered"
	case PhaseClosed:
		return "closed"
	}
	return "unknown"
}

// Connection is the canonical representation of a single transport-layer
// connection. Identity is empty until the handshake binds one; the transport
// object itself is never tagged.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport Transport
	Identity  string
	Phase     Phase
	CreatedAt time.Time
}

// Group is a named, mutable set of identities. Membership is independent of
// online status.
type Group struct {
	Name    string
	Members map[string]struct{}
}
