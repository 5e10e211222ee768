package app

import (
	"context"
	"errors"
	"fmt"

	"synkboard/internal/config"
	"synkboard/internal/repo"
)

// ResolveTenantAndConfig picks the active tenant and ensures a tenant +
// config exist in the DB, seeding defaults if missing. It prefers the
// override, then the single tenant in the DB.
func ResolveTenantAndConfig(ctx context.Context, a App, tenantOverride string) (string, *config.Config, error) {
	tenantID := tenantOverride
	if tenantID == "" {
		t, err := a.Repo.SingleTenant(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("tenant not specified; use --tenant")
		}
		tenantID = t.ID
	}

	if _, err := a.Repo.GetTenant(ctx, tenantID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if _, err := a.CreateTenant(ctx, tenantID, tenantID, tenantID); err != nil {
			return "", nil, err
		}
	}

	cfg, err := a.Repo.GetTenantConfig(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(tenantID, tenantID)
		if err := a.Repo.UpsertTenantConfig(ctx, tenantID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed tenant config: %w", err)
		}
	}
	cfg.Tenant.ID = tenantID
	return tenantID, cfg, nil
}
