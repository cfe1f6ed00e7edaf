package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helpdesk-backend/internal/model"
	"helpdesk-backend/internal/notify"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// In-memory store fakes backing the service tests. They mimic the
// repositories' observable behavior, including the conditional updates the
// claim and first-response paths rely on.

type memConvStore struct {
	mu   sync.Mutex
	byID map[string]*model.Conversation
	seq  int
}

func newMemConvStore() *memConvStore {
	return &memConvStore{byID: make(map[string]*model.Conversation)}
}

func cloneConv(c *model.Conversation) *model.Conversation {
	out := *c
	return &out
}

func (s *memConvStore) Create(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.SiteID == c.SiteID && existing.VisitorID == c.VisitorID && !existing.Status.Terminal() {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "idx_conversations_one_active"}
		}
	}
	s.seq++
	out := cloneConv(c)
	out.ID = fmt.Sprintf("conv-%d", s.seq)
	out.CreatedAt = time.Now()
	out.FirstResponseStatus = model.SLAPending
	out.FirstResponseRemaining = out.FirstResponseTarget
	out.ResolutionStatus = model.SLAPending
	out.ResolutionRemaining = out.ResolutionTarget
	s.byID[out.ID] = out
	return cloneConv(out), nil
}

func (s *memConvStore) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneConv(c), nil
}

func (s *memConvStore) FindActive(ctx context.Context, siteID, visitorID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.SiteID == siteID && c.VisitorID == visitorID && !c.Status.Terminal() {
			return cloneConv(c), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memConvStore) ListNonTerminal(ctx context.Context) ([]*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Conversation
	for _, c := range s.byID {
		if !c.Status.Terminal() {
			out = append(out, cloneConv(c))
		}
	}
	return out, nil
}

func (s *memConvStore) TryClaim(ctx context.Context, id, agentID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.AssignedAgentID != nil || c.Status.Terminal() {
		return false, nil
	}
	c.AssignedAgentID = &agentID
	c.AssignedBy = &agentID
	c.AssignedAt = &at
	c.Status = model.StatusAssigned
	return true, nil
}

func (s *memConvStore) Assign(ctx context.Context, id, agentID, assignedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	c.AssignedAgentID = &agentID
	c.AssignedBy = &assignedBy
	c.AssignedAt = &at
	c.Status = model.StatusAssigned
	return nil
}

func (s *memConvStore) SetDepartment(ctx context.Context, id string, departmentID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		c.DepartmentID = departmentID
	}
	return nil
}

func (s *memConvStore) SetPriority(ctx context.Context, id string, priority model.Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		c.Priority = priority
	}
	return nil
}

func (s *memConvStore) SetTargets(ctx context.Context, id string, firstResponse, resolution time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		c.FirstResponseTarget = firstResponse
		c.ResolutionTarget = resolution
	}
	return nil
}

func (s *memConvStore) SetFirstResponseAt(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.FirstResponseAt != nil {
		return false, nil
	}
	t := at
	c.FirstResponseAt = &t
	return true, nil
}

func (s *memConvStore) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		t := at
		c.LastMessageAt = &t
	}
	return nil
}

func (s *memConvStore) Resolve(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		t := at
		c.Status = model.StatusResolved
		c.ResolvedAt = &t
	}
	return nil
}

func (s *memConvStore) Close(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		t := at
		c.Status = model.StatusClosed
		c.ClosedAt = &t
	}
	return nil
}

func (s *memConvStore) UpdateSLA(ctx context.Context, c *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[c.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.FirstResponseStatus = c.FirstResponseStatus
	stored.FirstResponseRemaining = c.FirstResponseRemaining
	stored.ResolutionStatus = c.ResolutionStatus
	stored.ResolutionRemaining = c.ResolutionRemaining
	return nil
}

func (s *memConvStore) AddNote(ctx context.Context, id string, note model.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		c.Notes = append(c.Notes, note)
	}
	return nil
}

func (s *memConvStore) SetRating(ctx context.Context, id string, score int, feedback string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.RatingScore != nil {
		return false, nil
	}
	t := at
	c.RatingScore = &score
	c.RatingFeedback = feedback
	c.RatedAt = &t
	return true, nil
}

type memMsgStore struct {
	mu   sync.Mutex
	msgs []model.Message
	seq  int
}

func newMemMsgStore() *memMsgStore {
	return &memMsgStore{}
}

func (s *memMsgStore) Insert(ctx context.Context, m *model.Message) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	out := *m
	out.ID = fmt.Sprintf("msg-%d", s.seq)
	out.CreatedAt = time.Now()
	s.msgs = append(s.msgs, out)
	return &out, nil
}

func (s *memMsgStore) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMsgStore) MarkVisitorMessagesRead(ctx context.Context, conversationID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for i := range s.msgs {
		m := &s.msgs[i]
		if m.ConversationID == conversationID && m.SenderKind == model.SenderVisitor && !m.IsRead {
			m.IsRead = true
			t := at
			m.ReadAt = &t
			count++
		}
	}
	return count, nil
}

type memAgentStore struct {
	mu   sync.Mutex
	byID map[string]*model.Agent
}

func newMemAgentStore(agents ...*model.Agent) *memAgentStore {
	s := &memAgentStore{byID: make(map[string]*model.Agent)}
	for _, a := range agents {
		s.byID[a.ID] = a
	}
	return s
}

func (s *memAgentStore) GetByID(ctx context.Context, id string) (*model.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *a
	return &out, nil
}

func (s *memAgentStore) TakeConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[id]; ok {
		a.ActiveConversations++
		a.TotalConversations++
	}
	return nil
}

func (s *memAgentStore) ReleaseConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[id]; ok && a.ActiveConversations > 0 {
		a.ActiveConversations--
	}
	return nil
}

func (s *memAgentStore) MarkResolved(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[id]; ok {
		if a.ActiveConversations > 0 {
			a.ActiveConversations--
		}
		a.ResolvedConversations++
	}
	return nil
}

func (s *memAgentStore) RecordResponseTime(ctx context.Context, id string, seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[id]; ok {
		a.AvgResponseSeconds = seconds // samples not modeled in the fake
	}
	return nil
}

func (s *memAgentStore) SetStatus(ctx context.Context, id string, status model.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.byID[id]; ok {
		a.Status = status
	}
	return nil
}

type memDeptStore struct {
	mu      sync.Mutex
	byID    map[string]*model.Department
	members map[string][]model.DepartmentMember
}

func newMemDeptStore(depts ...*model.Department) *memDeptStore {
	s := &memDeptStore{
		byID:    make(map[string]*model.Department),
		members: make(map[string][]model.DepartmentMember),
	}
	for _, d := range depts {
		s.byID[d.ID] = d
	}
	return s
}

func (s *memDeptStore) GetByID(ctx context.Context, id string) (*model.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *d
	return &out, nil
}

func (s *memDeptStore) FirstActiveForSite(ctx context.Context, siteID string) (*model.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.Department
	for _, d := range s.byID {
		if d.SiteID != siteID || !d.IsActive {
			continue
		}
		if best == nil || d.CreatedAt.Before(best.CreatedAt) {
			best = d
		}
	}
	if best == nil {
		return nil, pgx.ErrNoRows
	}
	out := *best
	return &out, nil
}

func (s *memDeptStore) IncrementCounters(ctx context.Context, id string, totalDelta, activeDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.byID[id]; ok {
		d.TotalConversations += totalDelta
		d.ActiveConversations += activeDelta
		if d.ActiveConversations < 0 {
			d.ActiveConversations = 0
		}
	}
	return nil
}

func (s *memDeptStore) ApplyResolutionOutcome(ctx context.Context, id string, firstResponseMet, resolutionMet bool, responseSeconds, resolutionSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if d.ActiveConversations > 0 {
		d.ActiveConversations--
	}
	n := float64(d.ResolvedCount + 1)
	d.AvgResponseSeconds = (d.AvgResponseSeconds*float64(d.ResolvedCount) + responseSeconds) / n
	d.AvgResolutionSeconds = (d.AvgResolutionSeconds*float64(d.ResolvedCount) + resolutionSeconds) / n
	d.ResolvedCount++
	if firstResponseMet {
		d.FirstResponseMet++
	} else {
		d.FirstResponseBreached++
	}
	if resolutionMet {
		d.ResolutionMet++
	} else {
		d.ResolutionBreached++
	}
	return nil
}

func (s *memDeptStore) ListMembers(ctx context.Context, departmentID string) ([]model.DepartmentMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DepartmentMember(nil), s.members[departmentID]...), nil
}

type memFAQStore struct {
	mu      sync.Mutex
	matches []model.FAQMatch
	views   map[string]int
}

func newMemFAQStore(matches ...model.FAQMatch) *memFAQStore {
	return &memFAQStore{matches: matches, views: make(map[string]int)}
}

func (s *memFAQStore) Search(ctx context.Context, siteID, query string, limit int) ([]model.FAQMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.FAQMatch
	for _, m := range s.matches {
		if m.FAQ.SiteID == siteID {
			out = append(out, m)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memFAQStore) IncrementViews(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[id]++
	return nil
}

// fakeHub records fan-outs instead of touching websockets.
type fakeHub struct {
	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	Room string // "" for cross-site agent broadcasts
	Type string
}

func (h *fakeHub) ToRoom(room string, event *model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{Room: room, Type: event.Type})
}

func (h *fakeHub) ToAgents(event *model.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{Type: event.Type})
}

func (h *fakeHub) count(room, eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Room == room && e.Type == eventType {
			n++
		}
	}
	return n
}

func (h *fakeHub) countType(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// fakeBus records published envelopes.
type fakeBus struct {
	mu        sync.Mutex
	published []string // routing keys
}

func (b *fakeBus) Publish(ctx context.Context, key string, env notify.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, key)
	return nil
}

func (b *fakeBus) Close() error { return nil }
