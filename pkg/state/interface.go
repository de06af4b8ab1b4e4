package state

import "github.com/google/uuid"

// Manager is the process-wide chat state: the connection registry, the group
// store, and the registrant history. Implementations must serialize every
// mutation against the reads used to build broadcast snapshots; callers
// treat any returned slice or map as a private snapshot.
type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(conn Transport, ipAddr string) (*Connection, error)
	// DeregisterConnection removes the connection and releases its identity,
	// if any. It reports the identity that was released and whether the
	// connection had completed registration. Idempotent.
	DeregisterConnection(connID uuid.UUID) (identity string, registered bool)
	GetConnection(connID uuid.UUID) (*Connection, bool)
	// ConnectionState reads the connection's identity and phase under the
	// manager's lock. Identity and Phase mutate during registration and
	// teardown; concurrent readers must go through here, not the struct.
	ConnectionState(connID uuid.UUID) (identity string, phase Phase, ok bool)
	// Connections snapshots every live connection, registered or not.
	Connections() []*Connection
	ConnectionCountForIP(ipAddr string) int

	// --- Identity Registry ---
	// BindIdentity tags a connection with an identity, making it the one
	// live connection for that identity. Returns ErrIdentityTaken if some
	// other live connection already holds it.
	BindIdentity(connID uuid.UUID, identity string) (*Connection, error)
	LookupIdentity(identity string) (*Connection, bool)
	OnlineIdentities() []string
	RegisteredConnections() []*Connection

	// --- History ---
	// RecordHistory adds the identity to the all-time registrant set and
	// reports whether it was new. The set never shrinks.
	RecordHistory(identity string) bool
	History() []string

	// --- Group Membership ---
	// CreateGroup normalizes the name, creates the group, and auto-joins
	// the creating identity.
	CreateGroup(identity, name string) (string, error)
	JoinGroup(identity, name string) (string, error)
	LeaveGroup(identity, name string) (string, error)
	// RemoveIdentityFromAllGroups removes the identity from every group it
	// belongs to, deleting emptied non-default groups. It returns, per
	// group removed from, the members that survived the same sweep, so
	// departure notices see a consistent view.
	RemoveIdentityFromAllGroups(identity string) map[string][]string
	GroupMembers(name string) ([]string, bool)
	GroupNames() []string
	MembershipSnapshot() map[string][]string
}
