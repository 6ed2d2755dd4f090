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

type scheduledRecordSweeper interface {
	ListScheduledStartingAt(ctx context.Context, tenantID, date, clock string) ([]models.AttendanceRecord, error)
	ApplyUpdates(ctx context.Context, updates []models.RecordUpdate) (int, error)
}

// TransitionService moves scheduled records whose block starts now to
// not_arrived.
type TransitionService struct {
	tenants tenantLister
	records scheduledRecordSweeper
	civil   *civiltime.Service
	metrics *MetricsService
	logger  *zap.Logger
}

// NewTransitionService wires the start-time sweep.
func NewTransitionService(tenants tenantLister, records scheduledRecordSweeper, civil *civiltime.Service, metrics *MetricsService, logger *zap.Logger) *TransitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitionService{tenants: tenants, records: records, civil: civil, metrics: metrics, logger: logger}
}

// MarkNotArrived transitions every scheduled record of today whose expected
// arrival equals the current HH:mm. Each tenant's batch commits atomically; a
// record checked in concurrently is left alone.
func (s *TransitionService) MarkNotArrived(ctx context.Context, now time.Time) (*dto.SweepSummary, error) {
	now = now.In(s.civil.Location())
	date := s.civil.DateOf(now)
	clock := s.civil.ClockString(now)

	summary := &dto.SweepSummary{At: now}
	processed, failed, err := forEachTenant(ctx, s.tenants, s.logger, "start_sweep", func(ctx context.Context, tenant models.Tenant) error {
		records, err := s.records.ListScheduledStartingAt(ctx, tenant.ID, date, clock)
		if err != nil {
			return err
		}
		summary.Examined += len(records)
		if len(records) == 0 {
			return nil
		}

		updates := make([]models.RecordUpdate, 0, len(records))
		for _, rec := range records {
			next, _, err := attendance.Transition(rec, attendance.StartTimeReached{At: now})
			if err != nil {
				s.logger.Warn("skipping record", zap.String("record_id", rec.ID), zap.Error(err))
				continue
			}
			updates = append(updates, models.RecordUpdate{Record: next, ExpectedStatus: rec.Status})
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

	s.metrics.RecordTransitions(string(attendance.EventStartTimeReached), string(models.AttendanceStatusNotArrived), summary.Updated)
	s.logger.Info("start-time sweep finished",
		zap.String("date", date),
		zap.String("clock", clock),
		zap.Int("examined", summary.Examined),
		zap.Int("updated", summary.Updated),
		zap.Int("failed_tenants", summary.FailedTenants),
	)
	return summary, nil
}
