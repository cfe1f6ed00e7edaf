package repository

import (
	"context"
	"encoding/json"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DepartmentRepository struct {
	pool *pgxpool.Pool
}

func NewDepartmentRepository(pool *pgxpool.Pool) *DepartmentRepository {
	return &DepartmentRepository{pool: pool}
}

const departmentColumns = `
	id, site_id, name, is_active, auto_assign_enabled, auto_assign_strategy,
	business_hours, sla_overrides,
	total_conversations, active_conversations,
	first_response_met, first_response_breached, resolution_met, resolution_breached,
	resolved_count, avg_response_seconds, avg_resolution_seconds,
	created_at, updated_at`

func scanDepartment(row pgx.Row) (*model.Department, error) {
	d := &model.Department{}
	var overridesRaw []byte
	err := row.Scan(
		&d.ID, &d.SiteID, &d.Name, &d.IsActive, &d.AutoAssignEnabled, &d.AutoAssignStrategy,
		&d.BusinessHours, &overridesRaw,
		&d.TotalConversations, &d.ActiveConversations,
		&d.FirstResponseMet, &d.FirstResponseBreached, &d.ResolutionMet, &d.ResolutionBreached,
		&d.ResolvedCount, &d.AvgResponseSeconds, &d.AvgResolutionSeconds,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(overridesRaw) > 0 {
		_ = json.Unmarshal(overridesRaw, &d.SLAOverrides)
	}
	return d, nil
}

func (r *DepartmentRepository) GetByID(ctx context.Context, id string) (*model.Department, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = $1`, id)
	return scanDepartment(row)
}

// FirstActiveForSite implements the default routing policy: earliest-created
// active department wins. ErrNoRows when the site has none.
func (r *DepartmentRepository) FirstActiveForSite(ctx context.Context, siteID string) (*model.Department, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+departmentColumns+`
		FROM departments
		WHERE site_id = $1 AND is_active = TRUE
		ORDER BY created_at
		LIMIT 1
	`, siteID)
	return scanDepartment(row)
}

func (r *DepartmentRepository) IncrementCounters(ctx context.Context, id string, totalDelta, activeDelta int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE departments
		SET total_conversations = total_conversations + $2,
		    active_conversations = GREATEST(active_conversations + $3, 0),
		    updated_at = NOW()
		WHERE id = $1
	`, id, totalDelta, activeDelta)
	return err
}

// ApplyResolutionOutcome folds one resolved conversation into the
// department tallies. The running averages use the incremental mean over
// resolved_count, computed in a single statement so both sides see the
// pre-update column values.
func (r *DepartmentRepository) ApplyResolutionOutcome(ctx context.Context, id string, firstResponseMet, resolutionMet bool, responseSeconds, resolutionSeconds float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE departments
		SET active_conversations = GREATEST(active_conversations - 1, 0),
		    resolved_count = resolved_count + 1,
		    first_response_met = first_response_met + CASE WHEN $2 THEN 1 ELSE 0 END,
		    first_response_breached = first_response_breached + CASE WHEN $2 THEN 0 ELSE 1 END,
		    resolution_met = resolution_met + CASE WHEN $3 THEN 1 ELSE 0 END,
		    resolution_breached = resolution_breached + CASE WHEN $3 THEN 0 ELSE 1 END,
		    avg_response_seconds = (avg_response_seconds * resolved_count + $4) / (resolved_count + 1),
		    avg_resolution_seconds = (avg_resolution_seconds * resolved_count + $5) / (resolved_count + 1),
		    updated_at = NOW()
		WHERE id = $1
	`, id, firstResponseMet, resolutionMet, responseSeconds, resolutionSeconds)
	return err
}

// ListMembers returns the department's roster in position order. Membership
// is provisioned out of band; the engine only reads it for auto-assignment.
func (r *DepartmentRepository) ListMembers(ctx context.Context, departmentID string) ([]model.DepartmentMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT agent_id, role, position, added_at
		FROM department_members
		WHERE department_id = $1
		ORDER BY position
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.DepartmentMember
	for rows.Next() {
		var m model.DepartmentMember
		if err := rows.Scan(&m.AgentID, &m.Role, &m.Position, &m.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
