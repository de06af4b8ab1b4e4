// Package protocol defines the wire frames exchanged with chat clients.
// Inbound frames are decoded once, at the boundary, into a closed set of
// variants; everything past this package switches on concrete types, never
// on type strings.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// InitPrefix marks the raw (non-JSON) registration handshake:
// "init_user:<identity>".
const InitPrefix = "init_user:"

// BroadcastRecipient addresses every online participant.
const BroadcastRecipient = "all"

// SelfRecipient is the rewritten recipient on the copy echoed back to a
// sender, so its UI can tell its own messages apart.
const SelfRecipient = "self"

// GroupMarker prefixes a group-addressed recipient, as in "#devs".
const GroupMarker = "#"

// ErrMalformedEnvelope covers frames that do not parse as any known shape.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Inbound is the closed set of structured frames a client may send.
type Inbound interface {
	isInbound()
}

type ChatMessage struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

type CreateGroup struct {
	GroupName string `json:"groupName"`
}

type JoinGroup struct {
	GroupName string `json:"groupName"`
}

type LeaveGroup struct {
	GroupName string `json:"groupName"`
}

func (ChatMessage) isInbound() {}
func (CreateGroup) isInbound() {}
func (JoinGroup) isInbound()   {}
func (LeaveGroup) isInbound()  {}

// Decode parses a structured frame into its variant. Any frame that is not
// valid JSON, carries an unknown type, or fails strict decoding yields
// ErrMalformedEnvelope.
func Decode(raw []byte) (Inbound, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrMalformedEnvelope
	}
	kind := gjson.GetBytes(raw, "type")
	if !kind.Exists() {
		return nil, ErrMalformedEnvelope
	}

	switch kind.String() {
	case "chat_message":
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Recipient == "" {
			return nil, ErrMalformedEnvelope
		}
		return msg, nil
	case "create_group":
		var msg CreateGroup
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedEnvelope
		}
		return msg, nil
	case "join_group":
		var msg JoinGroup
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedEnvelope
		}
		return msg, nil
	case "leave_group":
		var msg LeaveGroup
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, ErrMalformedEnvelope
		}
		return msg, nil
	}
	return nil, ErrMalformedEnvelope
}
