package repository

import (
	"context"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type SiteRepository struct {
	pool *pgxpool.Pool
}

func NewSiteRepository(pool *pgxpool.Pool) *SiteRepository {
	return &SiteRepository{pool: pool}
}

func (r *SiteRepository) GetByKey(ctx context.Context, siteKey string) (*model.Site, error) {
	s := &model.Site{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, site_key, name, is_active, welcome_message, widget_settings, created_at, updated_at
		FROM sites WHERE site_key = $1
	`, siteKey).Scan(&s.ID, &s.SiteKey, &s.Name, &s.IsActive, &s.WelcomeMessage, &s.WidgetSettings, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SiteRepository) GetByID(ctx context.Context, id string) (*model.Site, error) {
	s := &model.Site{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, site_key, name, is_active, welcome_message, widget_settings, created_at, updated_at
		FROM sites WHERE id = $1
	`, id).Scan(&s.ID, &s.SiteKey, &s.Name, &s.IsActive, &s.WelcomeMessage, &s.WidgetSettings, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
