package service

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"helpdesk-backend/internal/model"
)

func newHubClient(kind ClientKind) *Client {
	return &Client{
		Session: Session{Kind: kind, SiteID: "site-1"},
		Send:    make(chan []byte, 8),
	}
}

func recvType(t *testing.T, c *Client) string {
	t.Helper()
	select {
	case data := <-c.Send:
		var event model.Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return event.Type
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return ""
	}
}

func TestHubRoomDelivery(t *testing.T) {
	hub := NewHub()

	visitor := newHubClient(KindVisitor)
	agent := newHubClient(KindAgent)
	outsider := newHubClient(KindVisitor)
	for _, c := range []*Client{visitor, agent, outsider} {
		hub.Register(c)
	}

	hub.JoinRoom(visitor, ConvRoom("conv-1"))
	hub.JoinRoom(agent, ConvRoom("conv-1"))

	hub.ToRoom(ConvRoom("conv-1"), model.NewEvent(model.EvTyping, nil))

	if got := recvType(t, visitor); got != model.EvTyping {
		t.Fatalf("visitor got %q", got)
	}
	if got := recvType(t, agent); got != model.EvTyping {
		t.Fatalf("agent got %q", got)
	}
	select {
	case data := <-outsider.Send:
		t.Fatalf("outsider received %s", data)
	default:
	}
}

// A join issued immediately after Register must always bind; a connection
// that registers, joins its room, and is broadcast to in quick succession
// may never miss the fan-out.
func TestHubJoinRightAfterRegisterAlwaysBinds(t *testing.T) {
	hub := NewHub()

	for i := 0; i < 2000; i++ {
		room := ConvRoom(fmt.Sprintf("conv-%d", i))
		c := newHubClient(KindVisitor)
		hub.Register(c)
		hub.JoinRoom(c, room)
		hub.ToRoom(room, model.NewEvent(model.EvTyping, nil))
		select {
		case <-c.Send:
		default:
			t.Fatalf("iteration %d: join dropped, client missed the fan-out", i)
		}
		hub.Unregister(c)
	}
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := NewHub()

	c := newHubClient(KindAgent)
	hub.Register(c)

	hub.JoinRoom(c, SiteRoom("site-1"))
	hub.JoinRoom(c, SiteRoom("site-1"))

	hub.ToRoom(SiteRoom("site-1"), model.NewEvent(model.EvConversationUpdate, nil))

	recvType(t, c)
	select {
	case <-c.Send:
		t.Fatal("duplicate delivery after a rejoin")
	default:
	}
}

func TestHubToAgentsSkipsVisitors(t *testing.T) {
	hub := NewHub()

	visitor := newHubClient(KindVisitor)
	agent := newHubClient(KindAgent)
	hub.Register(visitor)
	hub.Register(agent)

	hub.ToAgents(model.NewEvent(model.EvNotification, nil))

	if got := recvType(t, agent); got != model.EvNotification {
		t.Fatalf("agent got %q", got)
	}
	select {
	case <-visitor.Send:
		t.Fatal("visitor received an agent broadcast")
	default:
	}
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	hub := NewHub()

	c := newHubClient(KindVisitor)
	hub.Register(c)
	hub.JoinRoom(c, ConvRoom("conv-1"))

	hub.Unregister(c)
	if hub.OnlineCount() != 0 {
		t.Fatalf("online count %d after unregister", hub.OnlineCount())
	}

	// The Send channel is closed on unregister and the room is gone, so a
	// broadcast has no one to reach and must not panic.
	hub.ToRoom(ConvRoom("conv-1"), model.NewEvent(model.EvTyping, nil))

	if _, open := <-c.Send; open {
		t.Fatal("send channel still open after unregister")
	}

	// A late join must not resurrect the closed connection.
	hub.JoinRoom(c, ConvRoom("conv-1"))
	hub.ToRoom(ConvRoom("conv-1"), model.NewEvent(model.EvTyping, nil))
}

func TestHubFullBufferIsSkipped(t *testing.T) {
	hub := NewHub()

	slow := &Client{Session: Session{Kind: KindAgent}, Send: make(chan []byte)} // no buffer
	fast := newHubClient(KindAgent)
	hub.Register(slow)
	hub.Register(fast)

	room := ConvRoom("conv-1")
	hub.JoinRoom(slow, room)
	hub.JoinRoom(fast, room)

	// Must not block on the unbuffered client.
	done := make(chan struct{})
	go func() {
		hub.ToRoom(room, model.NewEvent(model.EvTyping, nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full send buffer")
	}

	if got := recvType(t, fast); got != model.EvTyping {
		t.Fatalf("fast client got %q", got)
	}
}
