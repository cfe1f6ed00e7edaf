package repository

import (
	"context"
	"time"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Insert(ctx context.Context, m *model.Message) (*model.Message, error) {
	out := &model.Message{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_kind, sender_id, sender_name, body, kind, is_read, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, conversation_id, sender_kind, sender_id, sender_name, body, kind, is_read, read_at, created_at
	`, m.ConversationID, m.SenderKind, m.SenderID, m.SenderName, m.Body, m.Kind, m.IsRead, m.ReadAt).Scan(
		&out.ID, &out.ConversationID, &out.SenderKind, &out.SenderID, &out.SenderName,
		&out.Body, &out.Kind, &out.IsRead, &out.ReadAt, &out.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListByConversation returns the transcript in display order (oldest first).
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_kind, sender_id, sender_name, body, kind, is_read, read_at, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderKind, &m.SenderID, &m.SenderName,
			&m.Body, &m.Kind, &m.IsRead, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkVisitorMessagesRead flips every unread visitor message in the
// conversation and returns how many were flipped.
func (r *MessageRepository) MarkVisitorMessagesRead(ctx context.Context, conversationID string, at time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET is_read = TRUE, read_at = $2
		WHERE conversation_id = $1 AND sender_kind = 'visitor' AND is_read = FALSE
	`, conversationID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
