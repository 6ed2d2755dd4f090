package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

type tenantLister interface {
	ListActive(ctx context.Context) ([]models.Tenant, error)
}

// forEachTenant runs fn once per active tenant. A tenant failure is logged and
// counted; it never stops the remaining tenants. Only listing tenants, or a
// cancelled context, fails the whole run.
func forEachTenant(ctx context.Context, tenants tenantLister, logger *zap.Logger, job string, fn func(ctx context.Context, tenant models.Tenant) error) (processed, failed int, err error) {
	list, err := tenants.ListActive(ctx)
	if err != nil {
		return 0, 0, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to list tenants")
	}
	for _, tenant := range list {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return processed, failed, ctxErr
		}
		processed++
		if err := fn(ctx, tenant); err != nil {
			failed++
			logger.Error("tenant run failed",
				zap.String("job", job),
				zap.String("tenant_id", tenant.ID),
				zap.Error(err),
			)
		}
	}
	return processed, failed, nil
}
