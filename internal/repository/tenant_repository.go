package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

// TenantRepository reads tenant rows.
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository constructs the repository.
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// ListActive returns active tenants that hold at least one active seat assignment.
func (r *TenantRepository) ListActive(ctx context.Context) ([]models.Tenant, error) {
	query := `SELECT t.id, t.name, t.active, t.created_at FROM tenants t
WHERE t.active = TRUE AND EXISTS (
    SELECT 1 FROM seat_assignments sa WHERE sa.tenant_id = t.id AND sa.status = 'active'
)
ORDER BY t.id`
	var tenants []models.Tenant
	if err := r.db.SelectContext(ctx, &tenants, query); err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return tenants, nil
}

// LayoutExists reports whether the seat layout belongs to the tenant.
func (r *TenantRepository) LayoutExists(ctx context.Context, tenantID, layoutID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM seat_layouts WHERE tenant_id = $1 AND id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, tenantID, layoutID); err != nil {
		return false, fmt.Errorf("check seat layout: %w", err)
	}
	return exists, nil
}
