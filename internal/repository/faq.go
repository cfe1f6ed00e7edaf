package repository

import (
	"context"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type FAQRepository struct {
	pool *pgxpool.Pool
}

func NewFAQRepository(pool *pgxpool.Pool) *FAQRepository {
	return &FAQRepository{pool: pool}
}

// Search ranks the site's active FAQ entries against the query text using
// Postgres full-text search. The ts_rank value is the relevance score the
// auto-responder thresholds on.
func (r *FAQRepository) Search(ctx context.Context, siteID, query string, limit int) ([]model.FAQMatch, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, site_id, question, answer, is_active, views, created_at, updated_at,
		       ts_rank(search_vector, plainto_tsquery('english', $2)) AS score
		FROM faqs
		WHERE site_id = $1 AND is_active = TRUE
		  AND search_vector @@ plainto_tsquery('english', $2)
		ORDER BY score DESC
		LIMIT $3
	`, siteID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.FAQMatch
	for rows.Next() {
		var m model.FAQMatch
		if err := rows.Scan(&m.FAQ.ID, &m.FAQ.SiteID, &m.FAQ.Question, &m.FAQ.Answer,
			&m.FAQ.IsActive, &m.FAQ.Views, &m.FAQ.CreatedAt, &m.FAQ.UpdatedAt, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *FAQRepository) IncrementViews(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE faqs SET views = views + 1, updated_at = NOW() WHERE id = $1
	`, id)
	return err
}
