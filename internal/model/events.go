package model

import "encoding/json"

// Event is the wire frame for both websocket directions. Type is one of the
// Ev* constants below; Data carries the matching payload struct. Handlers
// dispatch on Type with a switch so the set of events stays closed.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Inbound event types.
const (
	EvJoin               = "join"
	EvSendMessage        = "send-message"
	EvTyping             = "typing"
	EvJoinSite           = "join-site"
	EvJoinConversation   = "join-conversation"
	EvAssignConversation = "assign-conversation"
	EvClaimConversation  = "claim-conversation"
	EvSetDepartment      = "set-department"
	EvSetPriority        = "set-priority"
	EvResolve            = "resolve-conversation"
	EvClose              = "close-conversation"
	EvAddNote            = "add-note"
	EvRate               = "rate"
	EvUpdateStatus       = "update-status"
	EvPing               = "ping"
)

// Outbound event types.
const (
	EvConversationJoined = "conversation-joined"
	EvNewMessage         = "new-message"
	EvAssigned           = "conversation-assigned"
	EvClaimed            = "conversation-claimed"
	EvDepartmentChanged  = "conversation-department-changed"
	EvPriorityChanged    = "conversation-priority-changed"
	EvResolved           = "conversation-resolved"
	EvClosed             = "conversation-closed"
	EvConversationUpdate = "conversation-update"
	EvSLABreach          = "sla-breach"
	EvMessagesRead       = "messages-read"
	EvNoteAdded          = "note-added"
	EvRated              = "conversation-rated"
	EvAgentStatusChanged = "agent-status-changed"
	EvNotification       = "notification"
	EvError              = "error"
	EvPong               = "pong"
)

func NewEvent(eventType string, payload interface{}) *Event {
	if payload == nil {
		return &Event{Type: eventType}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return &Event{Type: eventType}
	}
	return &Event{Type: eventType, Data: data}
}

// --- Inbound payloads ---

type JoinPayload struct {
	SiteKey      string          `json:"site_key"`
	VisitorID    string          `json:"visitor_id"`
	VisitorName  string          `json:"visitor_name,omitempty"`
	VisitorEmail string          `json:"visitor_email,omitempty"`
	CurrentPage  string          `json:"current_page,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

type SendMessagePayload struct {
	ConversationID string      `json:"conversation_id,omitempty"`
	Content        string      `json:"content"`
	SenderName     string      `json:"sender_name,omitempty"`
	Kind           MessageKind `json:"kind,omitempty"`
	FileURL        string      `json:"file_url,omitempty"`
}

type JoinSitePayload struct {
	SiteID string `json:"site_id"`
}

type JoinConversationPayload struct {
	ConversationID string `json:"conversation_id"`
}

type AssignPayload struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id,omitempty"`
}

type SetDepartmentPayload struct {
	ConversationID string `json:"conversation_id"`
	DepartmentID   string `json:"department_id"`
}

type SetPriorityPayload struct {
	ConversationID string `json:"conversation_id"`
	Priority       string `json:"priority"`
}

type ConversationRefPayload struct {
	ConversationID string `json:"conversation_id"`
}

type AddNotePayload struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type RatePayload struct {
	ConversationID string `json:"conversation_id"`
	Score          int    `json:"score"`
	Feedback       string `json:"feedback,omitempty"`
}

type UpdateStatusPayload struct {
	Status string `json:"status"`
}

// --- Outbound payloads ---

type ConversationJoinedPayload struct {
	Conversation   *Conversation `json:"conversation"`
	Messages       []Message     `json:"messages"`
	WelcomeMessage string        `json:"welcome_message,omitempty"`
}

type NewMessagePayload struct {
	Message      *Message      `json:"message"`
	Conversation *Conversation `json:"conversation"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	SenderKind     string `json:"sender_kind"`
	SenderName     string `json:"sender_name,omitempty"`
}

type ConversationEventPayload struct {
	Conversation *Conversation `json:"conversation"`
}

type SLABreachPayload struct {
	ConversationID string `json:"conversation_id"`
	SiteID         string `json:"site_id"`
	Kind           string `json:"kind"` // "first-response" | "resolution"
	Priority       string `json:"priority"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
}

type MessagesReadPayload struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	Count          int    `json:"count"`
}

type NoteAddedPayload struct {
	ConversationID string `json:"conversation_id"`
	Note           Note   `json:"note"`
}

type RatedPayload struct {
	ConversationID string `json:"conversation_id"`
	Score          int    `json:"score"`
}

type AgentStatusPayload struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

type NotificationPayload struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	ConversationID string `json:"conversation_id,omitempty"`
	SiteID         string `json:"site_id,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
