package service

import (
	"context"
	"errors"

	"helpdesk-backend/internal/model"

	"github.com/jackc/pgx/v5"
)

// SiteResolver turns a widget's site credential into the site record.
type SiteResolver struct {
	sites SiteStore
}

func NewSiteResolver(sites SiteStore) *SiteResolver {
	return &SiteResolver{sites: sites}
}

// Resolve returns ErrInvalidCredential for unknown keys and for sites that
// have been deactivated.
func (r *SiteResolver) Resolve(ctx context.Context, siteKey string) (*model.Site, error) {
	if siteKey == "" {
		return nil, ErrInvalidCredential
	}
	site, err := r.sites.GetByKey(ctx, siteKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}
	if !site.IsActive {
		return nil, ErrInvalidCredential
	}
	return site, nil
}
