package protocol

import "encoding/json"

// Outbound frame constructors. Every server-to-client frame shape lives
// here so routing code never assembles JSON by hand.

type chatFrame struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

type privateFrame struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

type privateEchoFrame struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

type groupFrame struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Group     string `json:"group"`
}

type serverFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type userListFrame struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

type userHistoryFrame struct {
	Type    string   `json:"type"`
	History []string `json:"history"`
}

type availableGroupsFrame struct {
	Type   string   `json:"type"`
	Groups []string `json:"groups"`
}

type groupMembersFrame struct {
	Type    string              `json:"type"`
	Members map[string][]string `json:"members"`
}

func Chat(sender, recipient, content string) []byte {
	return marshal(chatFrame{Type: "chat_message", Sender: sender, Recipient: recipient, Content: content})
}

func Private(sender, content string) []byte {
	return marshal(privateFrame{Type: "private_message", Sender: sender, Content: content})
}

func PrivateSentEcho(sender, recipient, content string) []byte {
	return marshal(privateEchoFrame{Type: "private_message_sent_echo", Sender: sender, Recipient: recipient, Content: content})
}

func GroupChat(sender, recipient, content, group string) []byte {
	return marshal(groupFrame{Type: "group_message", Sender: sender, Recipient: recipient, Content: content, Group: group})
}

func ServerMessage(content string) []byte {
	return marshal(serverFrame{Type: "server_message", Content: content})
}

func Error(message string) []byte {
	return marshal(errorFrame{Type: "error", Message: message})
}

func UserList(users []string) []byte {
	if users == nil {
		users = []string{}
	}
	return marshal(userListFrame{Type: "user_list", Users: users})
}

func UserHistory(history []string) []byte {
	if history == nil {
		history = []string{}
	}
	return marshal(userHistoryFrame{Type: "user_history", History: history})
}

func AvailableGroups(groups []string) []byte {
	if groups == nil {
		groups = []string{}
	}
	return marshal(availableGroupsFrame{Type: "available_groups", Groups: groups})
}

func GroupMembersUpdate(members map[string][]string) []byte {
	if members == nil {
		members = map[string][]string{}
	}
	return marshal(groupMembersFrame{Type: "group_members_update", Members: members})
}

// marshal cannot fail for the frame structs above; they contain only
// strings, slices, and string-keyed maps.
func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
