package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/attendance"
	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
)

type notArrivedSweeper interface {
	ListNotArrived(ctx context.Context, tenantID, uptoDate string) ([]models.AttendanceRecord, error)
	ApplyUpdates(ctx context.Context, updates []models.RecordUpdate) (int, error)
}

// FinalizerService confirms absences once a not_arrived record's response window
// and grace period have run out.
type FinalizerService struct {
	tenants tenantLister
	records notArrivedSweeper
	policy  attendance.GracePolicy
	civil   *civiltime.Service
	metrics *MetricsService
	logger  *zap.Logger
}

// NewFinalizerService wires the grace-period finalizer.
func NewFinalizerService(tenants tenantLister, records notArrivedSweeper, policy attendance.GracePolicy, civil *civiltime.Service, metrics *MetricsService, logger *zap.Logger) *FinalizerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Window() <= 0 {
		policy = attendance.DefaultGracePolicy
	}
	return &FinalizerService{tenants: tenants, records: records, policy: policy, civil: civil, metrics: metrics, logger: logger}
}

// FinalizeOverdue moves every not_arrived record past its grace deadline to
// absent_unexcused.
func (s *FinalizerService) FinalizeOverdue(ctx context.Context, now time.Time) (*dto.SweepSummary, error) {
	now = now.In(s.civil.Location())
	today := s.civil.DateOf(now)

	summary := &dto.SweepSummary{At: now}
	processed, failed, err := forEachTenant(ctx, s.tenants, s.logger, "finalize", func(ctx context.Context, tenant models.Tenant) error {
		records, err := s.records.ListNotArrived(ctx, tenant.ID, today)
		if err != nil {
			return err
		}
		summary.Examined += len(records)

		var updates []models.RecordUpdate
		for _, rec := range records {
			ev, due, err := s.policy.Expire(rec, now)
			if err != nil {
				s.logger.Warn("skipping record", zap.String("record_id", rec.ID), zap.Error(err))
				continue
			}
			if !due {
				continue
			}
			next, _, err := attendance.Transition(rec, ev)
			if err != nil {
				s.logger.Warn("skipping record", zap.String("record_id", rec.ID), zap.Error(err))
				continue
			}
			updates = append(updates, models.RecordUpdate{Record: next, ExpectedStatus: rec.Status})
		}
		if len(updates) == 0 {
			return nil
		}
		applied, err := s.records.ApplyUpdates(ctx, updates)
		if err != nil {
			return err
		}
		summary.Updated += applied
		return nil
	})
	summary.Tenants = processed
	summary.FailedTenants = failed
	if err != nil {
		return summary, err
	}

	s.metrics.RecordTransitions(string(attendance.EventGraceExpired), string(models.AttendanceStatusAbsentUnexcused), summary.Updated)
	s.logger.Info("grace finalizer finished",
		zap.String("date", today),
		zap.Int("examined", summary.Examined),
		zap.Int("updated", summary.Updated),
		zap.Int("failed_tenants", summary.FailedTenants),
	)
	return summary, nil
}
