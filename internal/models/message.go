package models

import "time"

// Message is a single role-tagged entry of a conversation. Messages are never modified once they are
// appended to a Conversation.
type Message struct {
	Role    Role
	Content string
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleSystem is the seed message that instructs the model. Every conversation starts with exactly one.
	RoleSystem Role = "system"
	// RoleUser represents a message typed by the user.
	RoleUser Role = "user"
	// RoleAssistant represents the full accumulated text of one streamed response.
	RoleAssistant Role = "assistant"
)

// EventKind tells which kind of unit a StreamEvent carries.
type EventKind int

const (
	// EventContent carries an incremental fragment of assistant text in Delta.
	EventContent EventKind = iota
	// EventDone is produced for the [DONE] sentinel.
	EventDone
	// EventUnparseable carries a data payload that could not be decoded. It is never fatal.
	EventUnparseable
)

// StreamEvent is one parsed unit of a completions stream.
type StreamEvent struct {
	Kind EventKind

	// Delta would be filled if Kind is EventContent.
	Delta string

	// Raw and Err would be filled if Kind is EventUnparseable.
	Raw string
	Err error
}

// TurnRecord describes one finished pane turn. Records are kept for diagnostics only and are never
// loaded back into a conversation.
type TurnRecord struct {
	ID        string        `json:"id"`
	Pane      string        `json:"pane"`
	Prompt    string        `json:"prompt"`
	Response  string        `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}
