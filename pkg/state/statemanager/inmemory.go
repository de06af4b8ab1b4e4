package statemanager

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wahyupambudi/chat-websocket/pkg/state"
)

// InMemoryManager holds the connection registry, the group store, and the
// registrant history behind a single lock: broadcast snapshots must be
// atomic across all three structures, so they share one mutual-exclusion
// domain.
type InMemoryManager struct {
	mu           sync.RWMutex
	conns        map[uuid.UUID]*state.Connection
	identities   map[string]*state.Connection
	groups       map[string]*state.Group
	history      map[string]struct{}
	defaultGroup string

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger, defaultGroup string) *InMemoryManager {
	m := &InMemoryManager{
		conns:        make(map[uuid.UUID]*state.Connection),
		identities:   make(map[string]*state.Connection),
		groups:       make(map[string]*state.Group),
		history:      make(map[string]struct{}),
		defaultGroup: state.NormalizeGroupName(defaultGroup),
		logger:       logger.With(slog.String("component", "state_manager_inmemory")),
	}
	// The default group exists for the whole process lifetime and is never
	// deleted, even when empty.
	m.groups[m.defaultGroup] = &state.Group{
		Name:    m.defaultGroup,
		Members: make(map[string]struct{}),
	}
	return m
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

// DefaultGroup returns the normalized name of the permanent group.
func (m *InMemoryManager) DefaultGroup() string {
	return m.defaultGroup
}

// --- Connection Lifecycle ---

func (m *InMemoryManager) RegisterConnection(conn state.Transport, ipAddr string) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := conn.ID()
	if existing, exists := m.conns[connID]; exists {
		return existing, nil
	}
	newConn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: conn,
		Phase:     state.PhaseConnected,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = newConn
	m.logger.Debug("connection registered", slog.String("connID", connID.String()))
	return newConn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// already deregistered
		return "", false
	}
	delete(m.conns, connID)

	registered := conn.Phase == state.PhaseRegistered
	if conn.Identity != "" && m.identities[conn.Identity] == conn {
		delete(m.identities, conn.Identity)
		m.logger.Debug("identity released", slog.String("identity", conn.Identity))
	}
	conn.Phase = state.PhaseClosed

	m.logger.Debug("connection deregistered", slog.String("connID", connID.String()))
	return conn.Identity, registered
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) ConnectionState(connID uuid.UUID) (string, state.Phase, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[connID]
	if !ok {
		return "", state.PhaseClosed, false
	}
	return conn.Identity, conn.Phase, true
}

func (m *InMemoryManager) Connections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (m *InMemoryManager) ConnectionCountForIP(ipAddr string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conn := range m.conns {
		if conn.IPAddress == ipAddr {
			count++
		}
	}
	return count
}

// --- Identity Registry ---

func (m *InMemoryManager) BindIdentity(connID uuid.UUID, identity string) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, state.ErrUnknownConnection
	}
	conn.Phase = state.PhaseRegistering

	if holder, taken := m.identities[identity]; taken && holder != conn {
		return nil, state.ErrIdentityTaken
	}

	conn.Identity = identity
	conn.Phase = state.PhaseRegistered
	m.identities[identity] = conn

	m.logger.Debug("identity bound",
		slog.String("connID", connID.String()),
		slog.String("identity", identity),
	)
	return conn, nil
}

func (m *InMemoryManager) LookupIdentity(identity string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.identities[identity]
	return conn, ok
}

func (m *InMemoryManager) OnlineIdentities() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	online := make([]string, 0, len(m.identities))
	for identity := range m.identities {
		online = append(online, identity)
	}
	sort.Strings(online)
	return online
}

func (m *InMemoryManager) RegisteredConnections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.identities))
	for _, conn := range m.identities {
		conns = append(conns, conn)
	}
	return conns
}

// --- History ---

func (m *InMemoryManager) RecordHistory(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.history[identity]; seen {
		return false
	}
	m.history[identity] = struct{}{}
	return true
}

func (m *InMemoryManager) History() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]string, 0, len(m.history))
	for identity := range m.history {
		all = append(all, identity)
	}
	sort.Strings(all)
	return all
}

// --- Group Membership ---

func (m *InMemoryManager) CreateGroup(identity, name string) (string, error) {
	normalized := state.NormalizeGroupName(name)
	if normalized == "" {
		return "", state.ErrInvalidGroupName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[normalized]; exists {
		return normalized, state.ErrGroupExists
	}
	m.groups[normalized] = &state.Group{
		Name:    normalized,
		Members: map[string]struct{}{identity: {}},
	}
	m.logger.Debug("group created", slog.String("group", normalized), slog.String("creator", identity))
	return normalized, nil
}

func (m *InMemoryManager) JoinGroup(identity, name string) (string, error) {
	normalized := state.NormalizeGroupName(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[normalized]
	if !ok {
		return normalized, state.ErrGroupNotFound
	}
	if _, member := group.Members[identity]; member {
		return normalized, state.ErrAlreadyMember
	}
	group.Members[identity] = struct{}{}
	m.logger.Debug("identity joined group", slog.String("identity", identity), slog.String("group", normalized))
	return normalized, nil
}

func (m *InMemoryManager) LeaveGroup(identity, name string) (string, error) {
	normalized := state.NormalizeGroupName(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[normalized]
	if !ok {
		return normalized, state.ErrGroupNotFound
	}
	if _, member := group.Members[identity]; !member {
		return normalized, state.ErrNotMember
	}
	delete(group.Members, identity)
	m.dropIfEmpty(group)
	m.logger.Debug("identity left group", slog.String("identity", identity), slog.String("group", normalized))
	return normalized, nil
}

func (m *InMemoryManager) RemoveIdentityFromAllGroups(identity string) map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := make(map[string][]string)
	for name, group := range m.groups {
		if _, member := group.Members[identity]; !member {
			continue
		}
		delete(group.Members, identity)
		m.dropIfEmpty(group)

		remaining := make([]string, 0, len(group.Members))
		for member := range group.Members {
			remaining = append(remaining, member)
		}
		sort.Strings(remaining)
		removed[name] = remaining
	}
	return removed
}

// dropIfEmpty deletes an emptied group unless it is the default group.
// Callers must hold the write lock.
func (m *InMemoryManager) dropIfEmpty(group *state.Group) {
	if len(group.Members) == 0 && group.Name != m.defaultGroup {
		delete(m.groups, group.Name)
		m.logger.Debug("removed empty group", slog.String("group", group.Name))
	}
}

func (m *InMemoryManager) GroupMembers(name string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group, ok := m.groups[state.NormalizeGroupName(name)]
	if !ok {
		return nil, false
	}
	members := make([]string, 0, len(group.Members))
	for identity := range group.Members {
		members = append(members, identity)
	}
	sort.Strings(members)
	return members, true
}

func (m *InMemoryManager) GroupNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.groups))
	for name := range m.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *InMemoryManager) MembershipSnapshot() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := make(map[string][]string, len(m.groups))
	for name, group := range m.groups {
		members := make([]string, 0, len(group.Members))
		for identity := range group.Members {
			members = append(members, identity)
		}
		sort.Strings(members)
		snapshot[name] = members
	}
	return snapshot
}
