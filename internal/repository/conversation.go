package repository

import (
	"context"
	"encoding/json"
	"time"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ConversationRepository struct {
	pool *pgxpool.Pool
}

func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

const conversationColumns = `
	id, site_id, visitor_id, visitor_name, visitor_email,
	department_id, assigned_agent_id, assigned_by, assigned_at,
	status, priority,
	first_response_target_seconds, first_response_status, first_response_remaining_seconds,
	resolution_target_seconds, resolution_status, resolution_remaining_seconds,
	first_response_at, last_message_at, resolved_at, closed_at,
	notes, tags, rating_score, rating_feedback, rated_at,
	created_at, updated_at`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	c := &model.Conversation{}
	var notesRaw []byte
	var frTarget, frRemaining, resTarget, resRemaining int64
	var ratingFeedback *string
	err := row.Scan(
		&c.ID, &c.SiteID, &c.VisitorID, &c.VisitorName, &c.VisitorEmail,
		&c.DepartmentID, &c.AssignedAgentID, &c.AssignedBy, &c.AssignedAt,
		&c.Status, &c.Priority,
		&frTarget, &c.FirstResponseStatus, &frRemaining,
		&resTarget, &c.ResolutionStatus, &resRemaining,
		&c.FirstResponseAt, &c.LastMessageAt, &c.ResolvedAt, &c.ClosedAt,
		&notesRaw, &c.Tags, &c.RatingScore, &ratingFeedback, &c.RatedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.FirstResponseTarget = time.Duration(frTarget) * time.Second
	c.FirstResponseRemaining = time.Duration(frRemaining) * time.Second
	c.ResolutionTarget = time.Duration(resTarget) * time.Second
	c.ResolutionRemaining = time.Duration(resRemaining) * time.Second
	if ratingFeedback != nil {
		c.RatingFeedback = *ratingFeedback
	}
	if len(notesRaw) > 0 {
		_ = json.Unmarshal(notesRaw, &c.Notes)
	}
	return c, nil
}

func (r *ConversationRepository) Create(ctx context.Context, c *model.Conversation) (*model.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (
			site_id, visitor_id, visitor_name, visitor_email, department_id,
			status, priority,
			first_response_target_seconds, first_response_remaining_seconds,
			resolution_target_seconds, resolution_remaining_seconds
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $9)
		RETURNING `+conversationColumns,
		c.SiteID, c.VisitorID, c.VisitorName, c.VisitorEmail, c.DepartmentID,
		c.Status, c.Priority,
		int64(c.FirstResponseTarget/time.Second),
		int64(c.ResolutionTarget/time.Second),
	)
	return scanConversation(row)
}

func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*model.Conversation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// FindActive returns the single non-terminal conversation for (site, visitor),
// or pgx.ErrNoRows when the visitor has no open episode.
func (r *ConversationRepository) FindActive(ctx context.Context, siteID, visitorID string) (*model.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE site_id = $1 AND visitor_id = $2 AND status NOT IN ('resolved', 'closed')
	`, siteID, visitorID)
	return scanConversation(row)
}

// ListNonTerminal feeds the SLA sweep.
func (r *ConversationRepository) ListNonTerminal(ctx context.Context) ([]*model.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE status NOT IN ('resolved', 'closed')
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TryClaim is the compare-and-swap behind agent self-assignment: the update
// only lands while no agent holds the conversation, so of two concurrent
// claims exactly one sees rows affected.
func (r *ConversationRepository) TryClaim(ctx context.Context, id, agentID string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET assigned_agent_id = $2, assigned_by = $2, assigned_at = $3,
		    status = 'assigned', updated_at = NOW()
		WHERE id = $1 AND assigned_agent_id IS NULL AND status NOT IN ('resolved', 'closed')
	`, id, agentID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Assign is the unconditional (last-writer-wins) administrator path.
func (r *ConversationRepository) Assign(ctx context.Context, id, agentID, assignedBy string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET assigned_agent_id = $2, assigned_by = $3, assigned_at = $4,
		    status = 'assigned', updated_at = NOW()
		WHERE id = $1
	`, id, agentID, assignedBy, at)
	return err
}

func (r *ConversationRepository) SetDepartment(ctx context.Context, id string, departmentID *string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET department_id = $2, updated_at = NOW() WHERE id = $1
	`, id, departmentID)
	return err
}

func (r *ConversationRepository) SetPriority(ctx context.Context, id string, priority model.Priority) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET priority = $2, updated_at = NOW() WHERE id = $1
	`, id, priority)
	return err
}

func (r *ConversationRepository) SetTargets(ctx context.Context, id string, firstResponse, resolution time.Duration) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET first_response_target_seconds = $2, resolution_target_seconds = $3, updated_at = NOW()
		WHERE id = $1
	`, id, int64(firstResponse/time.Second), int64(resolution/time.Second))
	return err
}

// SetFirstResponseAt stamps the first agent reply exactly once; later calls
// are no-ops because of the IS NULL guard.
func (r *ConversationRepository) SetFirstResponseAt(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations SET first_response_at = $2, updated_at = NOW()
		WHERE id = $1 AND first_response_at IS NULL
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ConversationRepository) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET last_message_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	return err
}

func (r *ConversationRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = 'resolved', resolved_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	return err
}

func (r *ConversationRepository) Close(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET status = 'closed', closed_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	return err
}

func (r *ConversationRepository) UpdateSLA(ctx context.Context, c *model.Conversation) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET first_response_status = $2, first_response_remaining_seconds = $3,
		    resolution_status = $4, resolution_remaining_seconds = $5,
		    updated_at = NOW()
		WHERE id = $1
	`, c.ID,
		c.FirstResponseStatus, int64(c.FirstResponseRemaining/time.Second),
		c.ResolutionStatus, int64(c.ResolutionRemaining/time.Second))
	return err
}

func (r *ConversationRepository) AddNote(ctx context.Context, id string, note model.Note) error {
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE conversations SET notes = notes || $2::jsonb, updated_at = NOW() WHERE id = $1
	`, id, data)
	return err
}

// SetRating stores the visitor rating once; a second rating is rejected by
// the IS NULL guard.
func (r *ConversationRepository) SetRating(ctx context.Context, id string, score int, feedback string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET rating_score = $2, rating_feedback = $3, rated_at = $4, updated_at = NOW()
		WHERE id = $1 AND rating_score IS NULL
	`, id, score, feedback, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
