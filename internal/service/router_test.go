package service

import (
	"context"
	"testing"
	"time"

	"helpdesk-backend/internal/model"
)

type routerFixture struct {
	convs     *memConvStore
	msgs      *memMsgStore
	agents    *memAgentStore
	hub       *fakeHub
	lifecycle *LifecycleService
	router    *RouterService
}

func newRouterFixture(agents ...*model.Agent) *routerFixture {
	f := &routerFixture{
		convs:  newMemConvStore(),
		msgs:   newMemMsgStore(),
		agents: newMemAgentStore(agents...),
		hub:    &fakeHub{},
	}
	f.lifecycle = NewLifecycleService(f.convs, f.agents, newMemDeptStore(), f.hub, &fakeBus{})
	f.router = NewRouterService(f.lifecycle, f.convs, f.msgs, f.agents, f.hub, nil, nil)
	return f
}

func TestVisitorMessagesShareOneConversation(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()

	conv1, msg1, err := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "Ada", "", "hello?", model.MessageText)
	if err != nil {
		t.Fatal(err)
	}
	conv2, _, err := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "Ada", "", "anyone there?", model.MessageText)
	if err != nil {
		t.Fatal(err)
	}
	if conv1.ID != conv2.ID {
		t.Fatalf("messages landed in different conversations: %s vs %s", conv1.ID, conv2.ID)
	}
	if msg1.SenderKind != model.SenderVisitor || msg1.IsRead {
		t.Fatalf("visitor message persisted wrong: kind=%s read=%v", msg1.SenderKind, msg1.IsRead)
	}

	transcript, _ := f.msgs.ListByConversation(ctx, conv1.ID, 0)
	if len(transcript) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(transcript))
	}

	// Each message fans out to the conversation room, the site room, and a
	// cross-site agent notification.
	if got := f.hub.count(ConvRoom(conv1.ID), model.EvNewMessage); got != 2 {
		t.Fatalf("conversation room saw %d messages, want 2", got)
	}
	if got := f.hub.count(SiteRoom("site-1"), model.EvNewMessage); got != 2 {
		t.Fatalf("site room saw %d messages, want 2", got)
	}
	if got := f.hub.count("", model.EvNotification); got != 2 {
		t.Fatalf("agents saw %d notifications, want 2", got)
	}
}

func TestVisitorMessageValidation(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()

	if _, _, err := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "", "", "", model.MessageText); err != ErrValidation {
		t.Fatalf("expected ErrValidation for empty body, got %v", err)
	}
	if _, _, err := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "", "", "hi", model.MessageKind("carrier-pigeon")); err != ErrValidation {
		t.Fatalf("expected ErrValidation for bad kind, got %v", err)
	}
}

func TestAgentReplyStampsFirstResponseOnce(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newRouterFixture(&model.Agent{ID: "agent-1", MaxActiveConversations: 5})
	ctx := context.Background()

	conv, _, err := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "", "", "help", model.MessageText)
	if err != nil {
		t.Fatal(err)
	}
	f.convs.mu.Lock()
	f.convs.byID[conv.ID].CreatedAt = created
	f.convs.mu.Unlock()

	f.router.now = func() time.Time { return created.Add(2 * time.Minute) }
	if _, _, err := f.router.AgentMessage(ctx, conv.ID, "agent-1", "Sam", "hi, looking at it", model.MessageText); err != nil {
		t.Fatal(err)
	}

	f.router.now = func() time.Time { return created.Add(10 * time.Minute) }
	if _, _, err := f.router.AgentMessage(ctx, conv.ID, "agent-1", "Sam", "fixed", model.MessageText); err != nil {
		t.Fatal(err)
	}

	stored, _ := f.convs.GetByID(ctx, conv.ID)
	if stored.FirstResponseAt == nil {
		t.Fatal("first response never stamped")
	}
	if got := *stored.FirstResponseAt; !got.Equal(created.Add(2 * time.Minute)) {
		t.Fatalf("first response moved to %s, want the first reply time", got)
	}
	if stored.FirstResponseStatus != model.SLAMet {
		t.Fatalf("first-response status %s, want met", stored.FirstResponseStatus)
	}

	a, _ := f.agents.GetByID(ctx, "agent-1")
	if a.AvgResponseSeconds != (2 * time.Minute).Seconds() {
		t.Fatalf("agent response time %f, want %f", a.AvgResponseSeconds, (2 * time.Minute).Seconds())
	}
}

func TestAgentReplyAutoAssigns(t *testing.T) {
	f := newRouterFixture(&model.Agent{ID: "agent-1", MaxActiveConversations: 5})
	ctx := context.Background()

	conv, _, _ := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "", "", "help", model.MessageText)

	updated, _, err := f.router.AgentMessage(ctx, conv.ID, "agent-1", "Sam", "on it", model.MessageText)
	if err != nil {
		t.Fatal(err)
	}
	if updated.AssignedAgentID == nil || *updated.AssignedAgentID != "agent-1" {
		t.Fatal("reply did not take the conversation")
	}
	if updated.Status != model.StatusAssigned {
		t.Fatalf("status %s, want assigned", updated.Status)
	}
	if got := f.hub.count(SiteRoom("site-1"), model.EvAssigned); got != 1 {
		t.Fatalf("site room saw %d assignment events, want 1", got)
	}

	a, _ := f.agents.GetByID(ctx, "agent-1")
	if a.ActiveConversations != 1 {
		t.Fatalf("agent active count %d, want 1", a.ActiveConversations)
	}
}

func TestAgentAtCapacityStillReplies(t *testing.T) {
	f := newRouterFixture(&model.Agent{ID: "agent-full", MaxActiveConversations: 1, ActiveConversations: 1})
	ctx := context.Background()

	conv, _, _ := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "", "", "help", model.MessageText)

	updated, msg, err := f.router.AgentMessage(ctx, conv.ID, "agent-full", "Sam", "quick answer", model.MessageText)
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || msg.SenderKind != model.SenderAgent {
		t.Fatal("reply was not delivered")
	}
	if updated.AssignedAgentID != nil {
		t.Fatal("capacity guard did not skip the assignment")
	}
	// The reply still counts as the first response.
	if updated.FirstResponseAt == nil {
		t.Fatal("first response not stamped")
	}
}

func TestAgentJoinMarksVisitorMessagesRead(t *testing.T) {
	f := newRouterFixture()
	ctx := context.Background()

	conv, _, _ := f.router.VisitorMessage(ctx, testSite(), "visitor-1", "", "", "first", model.MessageText)
	_, _, _ = f.router.VisitorMessage(ctx, testSite(), "visitor-1", "", "", "second", model.MessageText)

	_, transcript, err := f.router.AgentJoinConversation(ctx, conv.ID, "agent-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(transcript) != 2 {
		t.Fatalf("transcript has %d messages, want 2", len(transcript))
	}
	for _, m := range transcript {
		if !m.IsRead {
			t.Fatalf("message %s still unread after join", m.ID)
		}
	}
	if got := f.hub.count(ConvRoom(conv.ID), model.EvMessagesRead); got != 1 {
		t.Fatalf("read receipt sent %d times, want 1", got)
	}

	// A second join finds nothing unread and stays quiet.
	_, _, _ = f.router.AgentJoinConversation(ctx, conv.ID, "agent-2")
	if got := f.hub.count(ConvRoom(conv.ID), model.EvMessagesRead); got != 1 {
		t.Fatalf("read receipt re-sent with nothing unread")
	}
}
