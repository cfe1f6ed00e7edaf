package service

import (
	"context"
	"errors"
	"log"
	"time"

	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/notify"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// LifecycleService owns the conversation state machine:
// open -> assigned -> pending -> resolved, with closed reachable from any
// non-terminal state and resolved/closed terminal.
type LifecycleService struct {
	convs  ConversationStore
	agents AgentStore
	depts  DepartmentStore
	hub    Broadcaster
	bus    notify.Publisher
	now    func() time.Time
}

func NewLifecycleService(convs ConversationStore, agents AgentStore, depts DepartmentStore, hub Broadcaster, bus notify.Publisher) *LifecycleService {
	return &LifecycleService{
		convs:  convs,
		agents: agents,
		depts:  depts,
		hub:    hub,
		bus:    bus,
		now:    time.Now,
	}
}

// FindOrCreate returns the visitor's live conversation, creating one when
// none exists. A new conversation starts open/normal, routed to the site's
// earliest-created active department, with targets for its priority.
func (s *LifecycleService) FindOrCreate(ctx context.Context, site *model.Site, visitorID, visitorName, visitorEmail string) (*model.Conversation, bool, error) {
	conv, err := s.convs.FindActive(ctx, site.ID, visitorID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	var deptID *string
	var dept *model.Department
	dept, err = s.depts.FirstActiveForSite(ctx, site.ID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}
	if dept != nil {
		deptID = &dept.ID
	}

	targets := TargetsFor(model.PriorityNormal, dept)
	conv, err = s.convs.Create(ctx, &model.Conversation{
		SiteID:              site.ID,
		VisitorID:           visitorID,
		VisitorName:         visitorName,
		VisitorEmail:        visitorEmail,
		DepartmentID:        deptID,
		Status:              model.StatusOpen,
		Priority:            model.PriorityNormal,
		FirstResponseTarget: targets.FirstResponse,
		ResolutionTarget:    targets.Resolution,
	})
	if err != nil {
		// Two connections for the same visitor can race here; the partial
		// unique index rejects the loser, which then picks up the winner's row.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			conv, ferr := s.convs.FindActive(ctx, site.ID, visitorID)
			if ferr != nil {
				return nil, false, ferr
			}
			return conv, false, nil
		}
		return nil, false, err
	}

	if dept != nil {
		if err := s.depts.IncrementCounters(ctx, dept.ID, 1, 1); err != nil {
			log.Printf("[Lifecycle] department counter update failed for %s: %v", dept.ID, err)
		}
		if dept.AutoAssignEnabled && dept.AutoAssignStrategy != model.StrategyManual {
			if assigned := s.autoAssignFromDepartment(ctx, conv, dept); assigned != nil {
				conv = assigned
			}
		}
	}
	return conv, true, nil
}

// autoAssignFromDepartment hands a fresh conversation to a department member
// per the department's strategy: least-active picks the lightest current
// load, round-robin rotates by lifetime volume. Only online members with
// spare capacity are considered; when nobody qualifies the conversation
// stays open for a manual claim. Returns nil when no assignment happened.
func (s *LifecycleService) autoAssignFromDepartment(ctx context.Context, conv *model.Conversation, dept *model.Department) *model.Conversation {
	members, err := s.depts.ListMembers(ctx, dept.ID)
	if err != nil {
		log.Printf("[Lifecycle] member lookup failed for department %s: %v", dept.ID, err)
		return nil
	}

	var best *model.Agent
	for _, m := range members {
		agent, err := s.agents.GetByID(ctx, m.AgentID)
		if err != nil || agent.Status != model.AgentOnline || agent.AtCapacity() {
			continue
		}
		switch {
		case best == nil:
			best = agent
		case dept.AutoAssignStrategy == model.StrategyRoundRobin:
			if agent.TotalConversations < best.TotalConversations {
				best = agent
			}
		default:
			if agent.ActiveConversations < best.ActiveConversations {
				best = agent
			}
		}
	}
	if best == nil {
		return nil
	}

	updated, err := s.assignInternal(ctx, conv, best.ID, best.ID, assignOptions{enforceCapacity: true})
	if err != nil {
		log.Printf("[Lifecycle] department auto-assign failed for %s: %v", conv.ID, err)
		return nil
	}
	s.hub.ToRoom(SiteRoom(updated.SiteID), model.NewEvent(model.EvAssigned, model.ConversationEventPayload{Conversation: updated}))
	return updated
}

// FindActiveConversation looks up the visitor's live conversation without
// creating one; ErrNotFound when there is none.
func (s *LifecycleService) FindActiveConversation(ctx context.Context, siteID, visitorID string) (*model.Conversation, error) {
	conv, err := s.convs.FindActive(ctx, siteID, visitorID)
	if err != nil {
		return nil, notFound(err)
	}
	return conv, nil
}

type assignOptions struct {
	// enforceCapacity rejects the assignment when the agent is at their
	// concurrent-conversation limit (claim and auto-assign-on-reply).
	enforceCapacity bool
	// override allows replacing an existing assignee (administrator path,
	// last-writer-wins). Without it the assignment is a compare-and-swap
	// that only lands while the conversation is unassigned.
	override bool
}

// assignInternal is the single assignment path shared by Assign, Claim and
// the router's auto-assign-on-reply, so the guards live in one place.
func (s *LifecycleService) assignInternal(ctx context.Context, conv *model.Conversation, agentID, assignedBy string, opts assignOptions) (*model.Conversation, error) {
	if conv.Status.Terminal() {
		return nil, ErrValidation
	}

	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, notFound(err)
	}
	if opts.enforceCapacity && agent.AtCapacity() {
		return nil, ErrCapacityExceeded
	}

	at := s.now()
	if opts.override {
		prev := conv.AssignedAgentID
		if err := s.convs.Assign(ctx, conv.ID, agentID, assignedBy, at); err != nil {
			return nil, err
		}
		if prev != nil && *prev != agentID {
			if err := s.agents.ReleaseConversation(ctx, *prev); err != nil {
				log.Printf("[Lifecycle] release previous agent %s failed: %v", *prev, err)
			}
		}
		if prev == nil || *prev != agentID {
			if err := s.agents.TakeConversation(ctx, agentID); err != nil {
				log.Printf("[Lifecycle] counter update for agent %s failed: %v", agentID, err)
			}
		}
	} else {
		if conv.AssignedAgentID != nil {
			return nil, ErrAlreadyAssigned
		}
		won, err := s.convs.TryClaim(ctx, conv.ID, agentID, at)
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, ErrAlreadyAssigned
		}
		if err := s.agents.TakeConversation(ctx, agentID); err != nil {
			log.Printf("[Lifecycle] counter update for agent %s failed: %v", agentID, err)
		}
	}

	updated, err := s.convs.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, notFound(err)
	}
	return updated, nil
}

// Assign is the administrator assignment: no guards, an existing assignee
// is replaced and handed their active count back.
func (s *LifecycleService) Assign(ctx context.Context, conversationID, agentID, assignedBy string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}

	updated, err := s.assignInternal(ctx, conv, agentID, assignedBy, assignOptions{override: true})
	if err != nil {
		return nil, err
	}

	s.hub.ToRoom(SiteRoom(updated.SiteID), model.NewEvent(model.EvAssigned, model.ConversationEventPayload{Conversation: updated}))
	s.hub.ToRoom(ConvRoom(updated.ID), model.NewEvent(model.EvAssigned, model.ConversationEventPayload{Conversation: updated}))
	return updated, nil
}

// Claim is agent self-assignment. The losing side of a concurrent claim
// gets ErrAlreadyAssigned; an agent over their limit gets
// ErrCapacityExceeded.
func (s *LifecycleService) Claim(ctx context.Context, conversationID, agentID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}

	updated, err := s.assignInternal(ctx, conv, agentID, agentID, assignOptions{enforceCapacity: true})
	if err != nil {
		return nil, err
	}

	s.hub.ToRoom(SiteRoom(updated.SiteID), model.NewEvent(model.EvClaimed, model.ConversationEventPayload{Conversation: updated}))
	s.hub.ToRoom(ConvRoom(updated.ID), model.NewEvent(model.EvClaimed, model.ConversationEventPayload{Conversation: updated}))
	return updated, nil
}

// autoAssign backs the assign-on-reply policy in the message router. Same
// guards as Claim; the caller decides what a rejection means.
func (s *LifecycleService) autoAssign(ctx context.Context, conv *model.Conversation, agentID string) (*model.Conversation, error) {
	return s.assignInternal(ctx, conv, agentID, agentID, assignOptions{enforceCapacity: true})
}

// SetDepartment moves the conversation, shifts the active counters, and
// recomputes targets immediately when the new department overrides them.
func (s *LifecycleService) SetDepartment(ctx context.Context, conversationID, departmentID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	if conv.Status.Terminal() {
		return nil, ErrValidation
	}

	dept, err := s.depts.GetByID(ctx, departmentID)
	if err != nil {
		return nil, notFound(err)
	}

	if err := s.convs.SetDepartment(ctx, conversationID, &dept.ID); err != nil {
		return nil, err
	}
	if conv.DepartmentID != nil && *conv.DepartmentID != dept.ID {
		if err := s.depts.IncrementCounters(ctx, *conv.DepartmentID, 0, -1); err != nil {
			log.Printf("[Lifecycle] department counter update failed for %s: %v", *conv.DepartmentID, err)
		}
	}
	if conv.DepartmentID == nil || *conv.DepartmentID != dept.ID {
		if err := s.depts.IncrementCounters(ctx, dept.ID, 0, 1); err != nil {
			log.Printf("[Lifecycle] department counter update failed for %s: %v", dept.ID, err)
		}
	}
	conv.DepartmentID = &dept.ID

	targets := TargetsFor(conv.Priority, dept)
	if targets.FirstResponse != conv.FirstResponseTarget || targets.Resolution != conv.ResolutionTarget {
		if err := s.convs.SetTargets(ctx, conversationID, targets.FirstResponse, targets.Resolution); err != nil {
			return nil, err
		}
		conv.FirstResponseTarget = targets.FirstResponse
		conv.ResolutionTarget = targets.Resolution
		if err := s.recompute(ctx, conv); err != nil {
			return nil, err
		}
	}

	s.hub.ToRoom(SiteRoom(conv.SiteID), model.NewEvent(model.EvDepartmentChanged, model.ConversationEventPayload{Conversation: conv}))
	return conv, nil
}

// SetPriority re-derives the targets from the conversation's department (or
// the global defaults) and recomputes on the spot.
func (s *LifecycleService) SetPriority(ctx context.Context, conversationID string, priority model.Priority) (*model.Conversation, error) {
	if !priority.Valid() {
		return nil, ErrValidation
	}

	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	if conv.Status.Terminal() {
		return nil, ErrValidation
	}

	var dept *model.Department
	if conv.DepartmentID != nil {
		dept, err = s.depts.GetByID(ctx, *conv.DepartmentID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	if err := s.convs.SetPriority(ctx, conversationID, priority); err != nil {
		return nil, err
	}
	conv.Priority = priority

	targets := TargetsFor(priority, dept)
	if err := s.convs.SetTargets(ctx, conversationID, targets.FirstResponse, targets.Resolution); err != nil {
		return nil, err
	}
	conv.FirstResponseTarget = targets.FirstResponse
	conv.ResolutionTarget = targets.Resolution

	if err := s.recompute(ctx, conv); err != nil {
		return nil, err
	}

	s.hub.ToRoom(SiteRoom(conv.SiteID), model.NewEvent(model.EvPriorityChanged, model.ConversationEventPayload{Conversation: conv}))
	return conv, nil
}

// Resolve finishes the conversation: final SLA verdicts, department outcome
// tallies, and the assigned agent's counters.
func (s *LifecycleService) Resolve(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	if conv.Status.Terminal() {
		return nil, ErrValidation
	}

	at := s.now()
	if err := s.convs.Resolve(ctx, conversationID, at); err != nil {
		return nil, err
	}
	conv.Status = model.StatusResolved
	conv.ResolvedAt = &at

	if err := s.recompute(ctx, conv); err != nil {
		return nil, err
	}

	if conv.DepartmentID != nil {
		responseSeconds := at.Sub(conv.CreatedAt).Seconds()
		if conv.FirstResponseAt != nil {
			responseSeconds = conv.FirstResponseAt.Sub(conv.CreatedAt).Seconds()
		}
		resolutionSeconds := at.Sub(conv.CreatedAt).Seconds()
		if err := s.depts.ApplyResolutionOutcome(ctx, *conv.DepartmentID,
			conv.FirstResponseStatus == model.SLAMet,
			conv.ResolutionStatus == model.SLAMet,
			responseSeconds, resolutionSeconds); err != nil {
			log.Printf("[Lifecycle] department outcome update failed for %s: %v", *conv.DepartmentID, err)
		}
	}
	if conv.AssignedAgentID != nil {
		if err := s.agents.MarkResolved(ctx, *conv.AssignedAgentID); err != nil {
			log.Printf("[Lifecycle] agent counter update failed for %s: %v", *conv.AssignedAgentID, err)
		}
	}

	event := model.NewEvent(model.EvResolved, model.ConversationEventPayload{Conversation: conv})
	s.hub.ToRoom(SiteRoom(conv.SiteID), event)
	s.hub.ToRoom(ConvRoom(conv.ID), event)
	if err := s.bus.Publish(ctx, notify.KeyConversationResolved, notify.NewEnvelope(model.EvResolved, conv.SiteID, model.ConversationEventPayload{Conversation: conv})); err != nil {
		log.Printf("[Lifecycle] bus publish failed for conversation %s: %v", conv.ID, err)
	}
	return conv, nil
}

// CloseConversation ends the episode without resolution bookkeeping; an
// abandoned conversation can be closed without ever being resolved.
func (s *LifecycleService) CloseConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}
	if conv.Status == model.StatusClosed {
		return nil, ErrValidation
	}

	at := s.now()
	if err := s.convs.Close(ctx, conversationID, at); err != nil {
		return nil, err
	}
	conv.Status = model.StatusClosed
	conv.ClosedAt = &at

	event := model.NewEvent(model.EvClosed, model.ConversationEventPayload{Conversation: conv})
	s.hub.ToRoom(SiteRoom(conv.SiteID), event)
	s.hub.ToRoom(ConvRoom(conv.ID), event)
	return conv, nil
}

func (s *LifecycleService) AddNote(ctx context.Context, conversationID, authorID, text string) (*model.Note, error) {
	if text == "" {
		return nil, ErrValidation
	}
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFound(err)
	}

	note := model.Note{AuthorID: authorID, Text: text, CreatedAt: s.now()}
	if err := s.convs.AddNote(ctx, conversationID, note); err != nil {
		return nil, err
	}

	s.hub.ToRoom(SiteRoom(conv.SiteID), model.NewEvent(model.EvNoteAdded, model.NoteAddedPayload{ConversationID: conversationID, Note: note}))
	return &note, nil
}

// Rate stores the visitor's rating once; a second attempt is rejected.
func (s *LifecycleService) Rate(ctx context.Context, conversationID string, score int, feedback string) error {
	if score < 1 || score > 5 {
		return ErrValidation
	}
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return notFound(err)
	}

	ok, err := s.convs.SetRating(ctx, conversationID, score, feedback, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrValidation
	}

	s.hub.ToRoom(SiteRoom(conv.SiteID), model.NewEvent(model.EvRated, model.RatedPayload{ConversationID: conversationID, Score: score}))
	return nil
}

func (s *LifecycleService) SetAgentStatus(ctx context.Context, agentID string, status model.AgentStatus) error {
	if !status.Valid() {
		return ErrValidation
	}
	if _, err := s.agents.GetByID(ctx, agentID); err != nil {
		return notFound(err)
	}
	if err := s.agents.SetStatus(ctx, agentID, status); err != nil {
		return err
	}
	s.hub.ToAgents(model.NewEvent(model.EvAgentStatusChanged, model.AgentStatusPayload{AgentID: agentID, Status: string(status)}))
	return nil
}

// recompute runs the calculator now, persists when the observable fields
// moved, and tells the site room so countdowns refresh without waiting for
// the next sweep.
func (s *LifecycleService) recompute(ctx context.Context, conv *model.Conversation) error {
	if !CalculateSLA(conv, s.now()).apply(conv) {
		return nil
	}
	if err := s.convs.UpdateSLA(ctx, conv); err != nil {
		return err
	}
	s.hub.ToRoom(SiteRoom(conv.SiteID), model.NewEvent(model.EvConversationUpdate, model.ConversationEventPayload{Conversation: conv}))
	return nil
}
