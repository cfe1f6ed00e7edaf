package model

import "time"

// SenderKind identifies who authored a message.
type SenderKind string

const (
	SenderVisitor SenderKind = "visitor"
	SenderAgent   SenderKind = "agent"
	SenderBot     SenderKind = "bot"
)

// MessageKind distinguishes message payloads.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageFile   MessageKind = "file"
	MessageSystem MessageKind = "system"
)

func (k MessageKind) Valid() bool {
	switch k {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// Message is one immutable entry in a conversation transcript.
// Ordering within a conversation is by CreatedAt (insert order).
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderKind     SenderKind  `json:"sender_kind"`
	SenderID       string      `json:"sender_id,omitempty"`
	SenderName     string      `json:"sender_name,omitempty"`
	Body           string      `json:"body"`
	Kind           MessageKind `json:"kind"`
	IsRead         bool        `json:"is_read"`
	ReadAt         *time.Time  `json:"read_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
