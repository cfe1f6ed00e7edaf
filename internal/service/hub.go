package service

import (
	"encoding/json"
	"log"
	"sync"

	"helpdesk-backend/internal/model"

	"github.com/gofiber/contrib/websocket"
)

// ClientKind distinguishes the two websocket endpoints.
type ClientKind string

const (
	KindVisitor ClientKind = "visitor"
	KindAgent   ClientKind = "agent"
)

// Session is the per-connection state, carried explicitly instead of hanging
// off the transport object. ConversationID is only set for visitors once
// their conversation is known.
type Session struct {
	Kind           ClientKind
	SiteID         string
	VisitorID      string
	AgentID        string
	Name           string
	Email          string
	ConversationID string
}

type Client struct {
	Conn    *websocket.Conn
	Session Session
	Send    chan []byte
}

// Room keys. One room per conversation, one per site (agents observing the
// whole site); agent connections are additionally addressable directly via
// their Send channel.
func ConvRoom(conversationID string) string { return "conv:" + conversationID }
func SiteRoom(siteID string) string         { return "site:" + siteID }

// Hub is the session registry: it maps live connections to broadcast rooms.
// Nothing here is persisted; rejoining after a reconnect is idempotent. All
// mutations happen under one mutex so Register takes effect before it
// returns and a JoinRoom issued right after can never miss the client.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		rooms:   make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] %s connected (total: %d)", client.Session.Kind, total)
}

// Unregister removes the connection from every room and closes its Send
// channel, which ends the write pump. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		for room, members := range h.rooms {
			if members[client] {
				delete(members, client)
				if len(members) == 0 {
					delete(h.rooms, room)
				}
			}
		}
		close(client.Send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	log.Printf("[WS] %s disconnected (total: %d)", client.Session.Kind, total)
}

// JoinRoom adds the client to a room. Joining a room the client is already
// in is a no-op, so reconnect rejoins are cheap.
func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
	}
	members[client] = true
}

func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// ToRoom fans an event out to every member of a room. Clients whose send
// buffer is full are skipped rather than blocking the caller.
func (h *Hub) ToRoom(room string, event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// ToAgents delivers an event to every connected agent, across sites.
func (h *Hub) ToAgents(event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.Session.Kind != KindAgent {
			continue
		}
		select {
		case client.Send <- data:
		default:
		}
	}
}

// ToClient delivers an event to a single connection.
func (h *Hub) ToClient(client *Client, event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
