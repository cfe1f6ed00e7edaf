package model

import "time"

// Status enumerates conversation lifecycle states. open and assigned/pending
// are live; resolved and closed are terminal.
type Status string

const (
	StatusOpen     Status = "open"
	StatusAssigned Status = "assigned"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusAssigned, StatusPending, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority selects the SLA targets for a conversation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// SLAStatus tracks one commitment (first response or resolution).
type SLAStatus string

const (
	SLAPending  SLAStatus = "pending"
	SLAMet      SLAStatus = "met"
	SLABreached SLAStatus = "breached"
)

type Note struct {
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Conversation struct {
	ID           string `json:"id"`
	SiteID       string `json:"site_id"`
	VisitorID    string `json:"visitor_id"`
	VisitorName  string `json:"visitor_name,omitempty"`
	VisitorEmail string `json:"visitor_email,omitempty"`

	DepartmentID    *string    `json:"department_id,omitempty"`
	AssignedAgentID *string    `json:"assigned_agent_id,omitempty"`
	AssignedBy      *string    `json:"assigned_by,omitempty"`
	AssignedAt      *time.Time `json:"assigned_at,omitempty"`

	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`

	FirstResponseTarget    time.Duration `json:"first_response_target_seconds"`
	FirstResponseStatus    SLAStatus     `json:"first_response_status"`
	FirstResponseRemaining time.Duration `json:"first_response_remaining_seconds"`
	ResolutionTarget       time.Duration `json:"resolution_target_seconds"`
	ResolutionStatus       SLAStatus     `json:"resolution_status"`
	ResolutionRemaining    time.Duration `json:"resolution_remaining_seconds"`

	FirstResponseAt *time.Time `json:"first_response_at,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`

	Notes          []Note     `json:"notes,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	RatingScore    *int       `json:"rating_score,omitempty"`
	RatingFeedback string     `json:"rating_feedback,omitempty"`
	RatedAt        *time.Time `json:"rated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
