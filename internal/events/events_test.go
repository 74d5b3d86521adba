package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChatMessage_WireShape(t *testing.T) {
	req := require.New(t)
	at := time.Date(2025, 3, 9, 12, 30, 0, 0, time.UTC)

	b, err := json.Marshal(NewChatMessage("alice", "hi", at, false))
	req.NoError(err)
	req.JSONEq(`{"type":"chat_message","message":"hi","username":"alice","timestamp":"2025-03-09T12:30:00Z"}`, string(b))

	b, err = json.Marshal(NewChatMessage("alice", "hi", at, true))
	req.NoError(err)
	req.Contains(string(b), `"is_dm":true`)
}

func TestHistory_EmptyMarshalsAsArray(t *testing.T) {
	req := require.New(t)

	b, err := json.Marshal(NewHistory(nil))
	req.NoError(err)
	req.JSONEq(`{"type":"message_history","messages":[]}`, string(b))
}
