package model

import "time"

type MemberRole string

const (
	RoleManager MemberRole = "manager"
	RoleAgent   MemberRole = "agent"
)

type AssignStrategy string

const (
	StrategyRoundRobin  AssignStrategy = "round-robin"
	StrategyLeastActive AssignStrategy = "least-active"
	StrategyManual      AssignStrategy = "manual"
)

type DepartmentMember struct {
	AgentID  string     `json:"agent_id"`
	Role     MemberRole `json:"role"`
	Position int        `json:"position"`
	AddedAt  time.Time  `json:"added_at"`
}

// SLATargets is one pair of commitments, in whole minutes when serialized
// as a department override.
type SLATargets struct {
	FirstResponse time.Duration `json:"-"`
	Resolution    time.Duration `json:"-"`
}

// SLAOverride is the JSONB shape stored on a department row.
type SLAOverride struct {
	FirstResponseMinutes int `json:"first_response_minutes"`
	ResolutionMinutes    int `json:"resolution_minutes"`
}

type Department struct {
	ID                 string                   `json:"id"`
	SiteID             string                   `json:"site_id"`
	Name               string                   `json:"name"`
	IsActive           bool                     `json:"is_active"`
	AutoAssignEnabled  bool                     `json:"auto_assign_enabled"`
	AutoAssignStrategy AssignStrategy           `json:"auto_assign_strategy"`
	BusinessHours      []byte                   `json:"-"`
	SLAOverrides       map[Priority]SLAOverride `json:"sla_overrides,omitempty"`

	TotalConversations  int `json:"total_conversations"`
	ActiveConversations int `json:"active_conversations"`

	// SLA outcome tallies, bumped at resolution time.
	FirstResponseMet      int     `json:"first_response_met"`
	FirstResponseBreached int     `json:"first_response_breached"`
	ResolutionMet         int     `json:"resolution_met"`
	ResolutionBreached    int     `json:"resolution_breached"`
	ResolvedCount         int     `json:"resolved_count"`
	AvgResponseSeconds    float64 `json:"avg_response_seconds"`
	AvgResolutionSeconds  float64 `json:"avg_resolution_seconds"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetsFor returns the department's override for the given priority, or
// (zero, false) when the department has none.
func (d *Department) TargetsFor(p Priority) (SLATargets, bool) {
	if d == nil || d.SLAOverrides == nil {
		return SLATargets{}, false
	}
	o, ok := d.SLAOverrides[p]
	if !ok {
		return SLATargets{}, false
	}
	return SLATargets{
		FirstResponse: time.Duration(o.FirstResponseMinutes) * time.Minute,
		Resolution:    time.Duration(o.ResolutionMinutes) * time.Minute,
	}, true
}
