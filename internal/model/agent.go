package model

import "time"

type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
	AgentBusy    AgentStatus = "busy"
	AgentAway    AgentStatus = "away"
)

func (s AgentStatus) Valid() bool {
	switch s {
	case AgentOnline, AgentOffline, AgentBusy, AgentAway:
		return true
	}
	return false
}

type Agent struct {
	ID     string      `json:"id"`
	SiteID string      `json:"site_id"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Status AgentStatus `json:"status"`

	MaxActiveConversations int `json:"max_active_conversations"`
	ActiveConversations    int `json:"active_conversations"`
	ResolvedConversations  int `json:"resolved_conversations"`
	TotalConversations     int `json:"total_conversations"`

	AvgResponseSeconds float64 `json:"avg_response_seconds"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AtCapacity reports whether the agent cannot take another conversation.
func (a *Agent) AtCapacity() bool {
	return a.MaxActiveConversations > 0 && a.ActiveConversations >= a.MaxActiveConversations
}
