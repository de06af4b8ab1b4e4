// Package router is the inbound frame entry point: it decodes each frame
// once and fans chat envelopes out to their delivery set. Routing never
// mutates registry or group state, and a failure answers only the sender.
package router

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/wahyupambudi/chat-websocket/internal/lifecycle"
	"github.com/wahyupambudi/chat-websocket/internal/protocol"
	"github.com/wahyupambudi/chat-websocket/pkg/state"
)

type MessageRouter struct {
	logger    *slog.Logger
	manager   state.Manager
	lifecycle *lifecycle.Lifecycle
}

func NewMessageRouter(logger *slog.Logger, manager state.Manager, lc *lifecycle.Lifecycle) *MessageRouter {
	return &MessageRouter{
		logger:    logger.With(slog.String("component", "message_router")),
		manager:   manager,
		lifecycle: lc,
	}
}

// HandleMessage is the transport's message callback. Frames from one
// connection arrive sequentially, so a sender's envelopes are dispatched in
// the order they were sent.
func (r *MessageRouter) HandleMessage(ctx context.Context, connID uuid.UUID, msg []byte) {
	raw := string(msg)
	if strings.HasPrefix(raw, protocol.InitPrefix) {
		r.lifecycle.Register(connID, strings.TrimPrefix(raw, protocol.InitPrefix))
		return
	}

	conn, ok := r.manager.GetConnection(connID)
	if !ok {
		r.logger.Warn("frame from unknown connection", slog.String("connID", connID.String()))
		return
	}

	inbound, err := protocol.Decode(msg)
	if err != nil {
		conn.Transport.Send(protocol.Error("invalid message format"))
		r.logger.Warn("malformed frame", slog.String("connID", connID.String()))
		return
	}
	// Identity and phase mutate during teardown on another goroutine; read
	// them under the manager's lock.
	sender, phase, ok := r.manager.ConnectionState(connID)
	if !ok || phase != state.PhaseRegistered {
		conn.Transport.Send(protocol.Error("register with init_user:<name> first"))
		return
	}

	switch m := inbound.(type) {
	case protocol.ChatMessage:
		r.routeChat(conn, sender, m)
	case protocol.CreateGroup:
		r.lifecycle.CreateGroup(conn, sender, m.GroupName)
	case protocol.JoinGroup:
		r.lifecycle.JoinGroup(conn, sender, m.GroupName)
	case protocol.LeaveGroup:
		r.lifecycle.LeaveGroup(conn, sender, m.GroupName)
	}
}

// routeChat computes the delivery set for one envelope and dispatches.
// The sender field on outbound copies is the registered identity, not
// whatever the client claimed.
func (r *MessageRouter) routeChat(conn *state.Connection, sender string, msg protocol.ChatMessage) {
	switch {
	case msg.Recipient == protocol.BroadcastRecipient:
		r.broadcastAll(conn, sender, msg.Content)
	case strings.HasPrefix(msg.Recipient, protocol.GroupMarker):
		r.multicastGroup(conn, sender, strings.TrimPrefix(msg.Recipient, protocol.GroupMarker), msg.Content)
	default:
		r.sendPrivate(conn, sender, msg.Recipient, msg.Content)
	}
}

// broadcastAll delivers to every registered connection except the sender,
// plus a "self"-tagged echo so the sender's UI renders the message too.
func (r *MessageRouter) broadcastAll(conn *state.Connection, sender, content string) {
	frame := protocol.Chat(sender, protocol.BroadcastRecipient, content)
	for _, target := range r.manager.RegisteredConnections() {
		if target == conn {
			continue
		}
		target.Transport.Send(frame)
	}
	conn.Transport.Send(protocol.Chat(sender, protocol.SelfRecipient, content))
}

// multicastGroup delivers to every currently-online member of the group.
// Offline members keep their membership but are skipped.
func (r *MessageRouter) multicastGroup(conn *state.Connection, sender, rawName, content string) {
	name := state.NormalizeGroupName(rawName)
	members, exists := r.manager.GroupMembers(name)
	if !exists {
		conn.Transport.Send(protocol.Error("group '#" + name + "' not found"))
		return
	}
	if !slices.Contains(members, sender) {
		conn.Transport.Send(protocol.Error("you are not a member of '#" + name + "'"))
		return
	}

	frame := protocol.GroupChat(sender, protocol.GroupMarker+name, content, name)
	echo := protocol.GroupChat(sender, protocol.SelfRecipient, content, name)
	for _, member := range members {
		target, online := r.manager.LookupIdentity(member)
		if !online {
			continue
		}
		if member == sender {
			target.Transport.Send(echo)
			continue
		}
		target.Transport.Send(frame)
	}
}

// sendPrivate delivers one copy to the recipient and a sent-echo back to the
// sender confirming delivery.
func (r *MessageRouter) sendPrivate(conn *state.Connection, sender, recipient, content string) {
	target, online := r.manager.LookupIdentity(recipient)
	if !online {
		conn.Transport.Send(protocol.Error("user '" + recipient + "' not found or offline"))
		return
	}
	target.Transport.Send(protocol.Private(sender, content))
	conn.Transport.Send(protocol.PrivateSentEcho(sender, recipient, content))
}
