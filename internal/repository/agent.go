package repository

import (
	"context"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AgentRepository struct {
	pool *pgxpool.Pool
}

func NewAgentRepository(pool *pgxpool.Pool) *AgentRepository {
	return &AgentRepository{pool: pool}
}

func (r *AgentRepository) GetByID(ctx context.Context, id string) (*model.Agent, error) {
	a := &model.Agent{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, site_id, name, email, status,
		       max_active_conversations, active_conversations, resolved_conversations, total_conversations,
		       avg_response_seconds, created_at, updated_at
		FROM agents WHERE id = $1
	`, id).Scan(
		&a.ID, &a.SiteID, &a.Name, &a.Email, &a.Status,
		&a.MaxActiveConversations, &a.ActiveConversations, &a.ResolvedConversations, &a.TotalConversations,
		&a.AvgResponseSeconds, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// TakeConversation credits a newly assigned conversation to the agent.
func (r *AgentRepository) TakeConversation(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agents
		SET active_conversations = active_conversations + 1,
		    total_conversations = total_conversations + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// ReleaseConversation removes one active conversation, e.g. when an
// administrator reassigns it elsewhere.
func (r *AgentRepository) ReleaseConversation(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agents
		SET active_conversations = GREATEST(active_conversations - 1, 0),
		    updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

func (r *AgentRepository) MarkResolved(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agents
		SET active_conversations = GREATEST(active_conversations - 1, 0),
		    resolved_conversations = resolved_conversations + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, id)
	return err
}

// RecordResponseTime folds one first-response latency into the agent's
// running average.
func (r *AgentRepository) RecordResponseTime(ctx context.Context, id string, seconds float64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agents
		SET avg_response_seconds = (avg_response_seconds * response_samples + $2) / (response_samples + 1),
		    response_samples = response_samples + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, id, seconds)
	return err
}

func (r *AgentRepository) SetStatus(ctx context.Context, id string, status model.AgentStatus) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE agents SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	return err
}
