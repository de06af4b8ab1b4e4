// Package lifecycle drives a connection through its phases: the snapshot
// push on accept, the init_user handshake, group commands, and the teardown
// broadcasts when the transport closes.
package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/wahyupambudi/chat-websocket/internal/protocol"
	"github.com/wahyupambudi/chat-websocket/pkg/state"
)

type Lifecycle struct {
	logger       *slog.Logger
	manager      state.Manager
	defaultGroup string
}

func New(logger *slog.Logger, manager state.Manager, defaultGroup string) *Lifecycle {
	return &Lifecycle{
		logger:       logger.With(slog.String("component", "lifecycle")),
		manager:      manager,
		defaultGroup: state.NormalizeGroupName(defaultGroup),
	}
}

// HandleConnect pushes the registrant history and the current group list to
// a freshly accepted connection. Neither requires an identity yet.
func (l *Lifecycle) HandleConnect(conn *state.Connection) {
	conn.Transport.Send(protocol.UserHistory(l.manager.History()))
	conn.Transport.Send(protocol.AvailableGroups(l.manager.GroupNames()))
}

// Register processes the init_user handshake. A duplicate identity is the
// one fatal failure: the competing connection gets an error frame and is
// forcibly closed; the existing registration is untouched.
func (l *Lifecycle) Register(connID uuid.UUID, proposed string) {
	conn, ok := l.manager.GetConnection(connID)
	if !ok {
		return
	}

	identity := strings.TrimSpace(proposed)
	if identity == "" {
		conn.Transport.Send(protocol.Error("identity must not be empty"))
		return
	}
	if current, phase, ok := l.manager.ConnectionState(connID); ok && phase == state.PhaseRegistered {
		conn.Transport.Send(protocol.Error(fmt.Sprintf("already registered as '%s'", current)))
		return
	}

	bound, err := l.manager.BindIdentity(connID, identity)
	if err != nil {
		if errors.Is(err, state.ErrIdentityTaken) {
			conn.Transport.Send(protocol.Error(fmt.Sprintf("identity '%s' is already in use", identity)))
			conn.Transport.Close(state.ErrIdentityTaken)
			l.logger.Info("rejected duplicate identity",
				slog.String("identity", identity),
				slog.String("connID", connID.String()),
			)
			return
		}
		conn.Transport.Send(protocol.Error("registration failed"))
		l.logger.Error("identity bind failed", slog.Any("error", err))
		return
	}

	// History is monotonic; only a first-time identity changes it.
	if l.manager.RecordHistory(identity) {
		l.broadcastToRegistered(protocol.UserHistory(l.manager.History()), nil)
	}

	if _, err := l.manager.JoinGroup(identity, l.defaultGroup); err != nil && !errors.Is(err, state.ErrAlreadyMember) {
		l.logger.Error("default group join failed", slog.String("identity", identity), slog.Any("error", err))
	}

	bound.Transport.Send(protocol.ServerMessage(fmt.Sprintf("You are connected as %s.", identity)))
	l.broadcastToRegistered(protocol.ServerMessage(fmt.Sprintf("%s has joined the chat.", identity)), bound)
	l.broadcastToRegistered(protocol.UserList(l.manager.OnlineIdentities()), nil)
	l.broadcastToRegistered(protocol.GroupMembersUpdate(l.manager.MembershipSnapshot()), nil)

	l.logger.Info("identity registered", slog.String("identity", identity))
}

// HandleDisconnect runs on transport close from any phase. A connection that
// never completed registration leaves no state behind.
func (l *Lifecycle) HandleDisconnect(connID uuid.UUID) {
	identity, registered := l.manager.DeregisterConnection(connID)
	if !registered {
		return
	}

	// One atomic sweep: the surviving-member sets come from the same
	// mutation that removed the identity, so the notices cannot observe a
	// half-updated membership.
	removed := l.manager.RemoveIdentityFromAllGroups(identity)
	names := make([]string, 0, len(removed))
	for name := range removed {
		names = append(names, name)
	}
	sort.Strings(names)

	groupsChanged := false
	for _, name := range names {
		remaining := removed[name]
		if len(remaining) == 0 {
			// emptied: deleted unless it is the default group
			if name != l.defaultGroup {
				groupsChanged = true
			}
			continue
		}
		l.sendToOnlineMembers(remaining, protocol.ServerMessage(fmt.Sprintf("%s left #%s.", identity, name)))
	}

	l.broadcastToRegistered(protocol.ServerMessage(fmt.Sprintf("%s is offline.", identity)), nil)
	l.broadcastToRegistered(protocol.UserList(l.manager.OnlineIdentities()), nil)
	if groupsChanged {
		l.broadcastToRegistered(protocol.AvailableGroups(l.manager.GroupNames()), nil)
	}
	l.broadcastToRegistered(protocol.GroupMembersUpdate(l.manager.MembershipSnapshot()), nil)

	l.logger.Info("identity disconnected", slog.String("identity", identity))
}

// CreateGroup handles the create_group command from a registered connection.
func (l *Lifecycle) CreateGroup(conn *state.Connection, identity, rawName string) {
	name, err := l.manager.CreateGroup(identity, rawName)
	switch {
	case errors.Is(err, state.ErrInvalidGroupName):
		conn.Transport.Send(protocol.Error("group name must not be empty"))
		return
	case errors.Is(err, state.ErrGroupExists):
		conn.Transport.Send(protocol.Error(fmt.Sprintf("group '#%s' already exists", name)))
		return
	case err != nil:
		conn.Transport.Send(protocol.Error("could not create group"))
		l.logger.Error("group create failed", slog.Any("error", err))
		return
	}

	conn.Transport.Send(protocol.ServerMessage(fmt.Sprintf("You created #%s.", name)))
	l.broadcastToRegistered(protocol.ServerMessage(fmt.Sprintf("%s created group #%s.", identity, name)), conn)
	l.broadcastToRegistered(protocol.AvailableGroups(l.manager.GroupNames()), nil)
	l.broadcastToRegistered(protocol.GroupMembersUpdate(l.manager.MembershipSnapshot()), nil)
}

// JoinGroup handles the join_group command.
func (l *Lifecycle) JoinGroup(conn *state.Connection, identity, rawName string) {
	name, err := l.manager.JoinGroup(identity, rawName)
	switch {
	case errors.Is(err, state.ErrGroupNotFound):
		conn.Transport.Send(protocol.Error(fmt.Sprintf("group '#%s' not found", name)))
		return
	case errors.Is(err, state.ErrAlreadyMember):
		conn.Transport.Send(protocol.Error(fmt.Sprintf("you are already a member of '#%s'", name)))
		return
	case err != nil:
		conn.Transport.Send(protocol.Error("could not join group"))
		l.logger.Error("group join failed", slog.Any("error", err))
		return
	}

	members, _ := l.manager.GroupMembers(name)
	l.sendToOnlineMembers(members, protocol.ServerMessage(fmt.Sprintf("%s joined #%s.", identity, name)))
	l.broadcastToRegistered(protocol.GroupMembersUpdate(l.manager.MembershipSnapshot()), nil)
}

// LeaveGroup handles the leave_group command. Leaving the last seat of a
// non-default group deletes the group.
func (l *Lifecycle) LeaveGroup(conn *state.Connection, identity, rawName string) {
	name, err := l.manager.LeaveGroup(identity, rawName)
	switch {
	case errors.Is(err, state.ErrGroupNotFound):
		conn.Transport.Send(protocol.Error(fmt.Sprintf("group '#%s' not found", name)))
		return
	case errors.Is(err, state.ErrNotMember):
		conn.Transport.Send(protocol.Error(fmt.Sprintf("you are not a member of '#%s'", name)))
		return
	case err != nil:
		conn.Transport.Send(protocol.Error("could not leave group"))
		l.logger.Error("group leave failed", slog.Any("error", err))
		return
	}

	conn.Transport.Send(protocol.ServerMessage(fmt.Sprintf("You left #%s.", name)))
	if members, exists := l.manager.GroupMembers(name); exists {
		l.sendToOnlineMembers(members, protocol.ServerMessage(fmt.Sprintf("%s left #%s.", identity, name)))
	} else {
		l.broadcastToRegistered(protocol.AvailableGroups(l.manager.GroupNames()), nil)
	}
	l.broadcastToRegistered(protocol.GroupMembersUpdate(l.manager.MembershipSnapshot()), nil)
}

// broadcastToRegistered delivers a frame to every registered connection,
// optionally skipping one. The recipient set is a snapshot; a connection
// closing mid-loop simply drops that one send.
func (l *Lifecycle) broadcastToRegistered(frame []byte, except *state.Connection) {
	for _, conn := range l.manager.RegisteredConnections() {
		if conn == except {
			continue
		}
		conn.Transport.Send(frame)
	}
}

// sendToOnlineMembers delivers a frame to each listed identity that is
// currently online. Offline members are silently skipped.
func (l *Lifecycle) sendToOnlineMembers(members []string, frame []byte) {
	for _, identity := range members {
		if conn, online := l.manager.LookupIdentity(identity); online {
			conn.Transport.Send(frame)
		}
	}
}
