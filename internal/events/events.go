// Package events defines the closed set of frames sent to websocket clients.
// Every frame carries a "type" tag fixed by its constructor; the transport
// layer marshals these structs as-is.
package events

import "time"

const (
	TypeHistory     = "message_history"
	TypeChatMessage = "chat_message"
)

// HistoryEntry is one replayed message inside a History frame.
type HistoryEntry struct {
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// History is sent once to a connection right after it joins a channel.
type History struct {
	Type     string         `json:"type"`
	Messages []HistoryEntry `json:"messages"`
}

func NewHistory(entries []HistoryEntry) History {
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return History{Type: TypeHistory, Messages: entries}
}

// ChatMessage is the live broadcast frame. IsDM is only set on direct
// channels, so omitempty keeps it off the group wire format.
type ChatMessage struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	IsDM      bool   `json:"is_dm,omitempty"`
}

func NewChatMessage(username, body string, at time.Time, isDM bool) ChatMessage {
	return ChatMessage{
		Type:      TypeChatMessage,
		Message:   body,
		Username:  username,
		Timestamp: at.UTC().Format(time.RFC3339),
		IsDM:      isDM,
	}
}
