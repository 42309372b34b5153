package session

import (
	"encoding/json"

	"github.com/flitsinc/agent-sessions/internal/engine"
)

// Protocol error codes sent to clients as {"error": code}. State is never
// mutated when one of these is emitted.
const (
	ErrInvalidJSON        = "invalid_json"
	ErrEmptyMessage       = "empty_message"
	ErrSessionNotFound    = "session_not_found"
	ErrPendingApprovals   = "pending_approvals"
	ErrNoPendingApprovals = "no_pending_approvals"
	ErrSessionLimit       = "session_limit"
)

const (
	FrameKindMessage   = "message"
	FrameKindApprovals = "approvals"
)

type clientFrame struct {
	Kind           string          `json:"kind"`
	ConversationID string          `json:"conversationId"`
	Message        json.RawMessage `json:"message"`
	MaxTurns       int             `json:"maxTurns"`
	Decisions      []Decision      `json:"decisions"`
}

type Decision struct {
	CallID   string `json:"callId"`
	Decision string `json:"decision"`
}

type errorFrame struct {
	Error string `json:"error"`
}

type streamingFrame struct {
	Type string `json:"type"`
	Data struct {
		ConversationID string `json:"conversationId"`
	} `json:"data"`
}

func newStreamingFrame(conversationID string) []byte {
	f := streamingFrame{Type: "streaming"}
	f.Data.ConversationID = conversationID
	data, _ := json.Marshal(f)
	return data
}

type completeFrame struct {
	Type string `json:"type"`
	Data struct {
		ConversationID string           `json:"conversationId"`
		History        []engine.Message `json:"history"`
		Response       string           `json:"response"`
	} `json:"data"`
}

func newCompleteFrame(conversationID string, history []engine.Message, response string) []byte {
	f := completeFrame{Type: "complete"}
	f.Data.ConversationID = conversationID
	f.Data.History = history
	f.Data.Response = response
	data, _ := json.Marshal(f)
	return data
}

// messageText extracts the user text from a message frame. Anything but a
// JSON string is treated as absent.
func messageText(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return ""
	}
	return text
}
