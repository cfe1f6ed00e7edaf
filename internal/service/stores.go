package service

import (
	"context"
	"errors"
	"time"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid site credential")
	ErrAlreadyAssigned   = errors.New("conversation is already assigned")
	ErrCapacityExceeded  = errors.New("agent is at capacity")
	ErrValidation        = errors.New("invalid value")
)

// notFound maps the storage layer's no-rows result onto the service error
// taxonomy and passes everything else through.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Storage interfaces consumed by the services. The pgx repositories satisfy
// them; tests swap in in-memory fakes.

type ConversationStore interface {
	Create(ctx context.Context, c *model.Conversation) (*model.Conversation, error)
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	FindActive(ctx context.Context, siteID, visitorID string) (*model.Conversation, error)
	ListNonTerminal(ctx context.Context) ([]*model.Conversation, error)
	TryClaim(ctx context.Context, id, agentID string, at time.Time) (bool, error)
	Assign(ctx context.Context, id, agentID, assignedBy string, at time.Time) error
	SetDepartment(ctx context.Context, id string, departmentID *string) error
	SetPriority(ctx context.Context, id string, priority model.Priority) error
	SetTargets(ctx context.Context, id string, firstResponse, resolution time.Duration) error
	SetFirstResponseAt(ctx context.Context, id string, at time.Time) (bool, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
	Resolve(ctx context.Context, id string, at time.Time) error
	Close(ctx context.Context, id string, at time.Time) error
	UpdateSLA(ctx context.Context, c *model.Conversation) error
	AddNote(ctx context.Context, id string, note model.Note) error
	SetRating(ctx context.Context, id string, score int, feedback string, at time.Time) (bool, error)
}

type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) (*model.Message, error)
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	MarkVisitorMessagesRead(ctx context.Context, conversationID string, at time.Time) (int64, error)
}

type DepartmentStore interface {
	GetByID(ctx context.Context, id string) (*model.Department, error)
	FirstActiveForSite(ctx context.Context, siteID string) (*model.Department, error)
	IncrementCounters(ctx context.Context, id string, totalDelta, activeDelta int) error
	ApplyResolutionOutcome(ctx context.Context, id string, firstResponseMet, resolutionMet bool, responseSeconds, resolutionSeconds float64) error
	ListMembers(ctx context.Context, departmentID string) ([]model.DepartmentMember, error)
}

type AgentStore interface {
	GetByID(ctx context.Context, id string) (*model.Agent, error)
	TakeConversation(ctx context.Context, id string) error
	ReleaseConversation(ctx context.Context, id string) error
	MarkResolved(ctx context.Context, id string) error
	RecordResponseTime(ctx context.Context, id string, seconds float64) error
	SetStatus(ctx context.Context, id string, status model.AgentStatus) error
}

type FAQStore interface {
	Search(ctx context.Context, siteID, query string, limit int) ([]model.FAQMatch, error)
	IncrementViews(ctx context.Context, id string) error
}

type SiteStore interface {
	GetByKey(ctx context.Context, siteKey string) (*model.Site, error)
}

// Broadcaster is the slice of the hub the services fan events out through.
type Broadcaster interface {
	ToRoom(room string, event *model.Event)
	ToAgents(event *model.Event)
}
