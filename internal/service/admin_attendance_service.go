package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/attendance"
	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

type adminRecordStore interface {
	FindByID(ctx context.Context, tenantID, id string) (*models.AttendanceRecord, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
	ListCheckedIn(ctx context.Context, tenantID, uptoDate string) ([]models.AttendanceRecord, error)
	CompareAndSet(ctx context.Context, rec models.AttendanceRecord, expected models.AttendanceStatus) (bool, error)
}

// AdminAttendanceService serves operator actions on attendance records.
type AdminAttendanceService struct {
	records   adminRecordStore
	policy    attendance.GracePolicy
	civil     *civiltime.Service
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAdminAttendanceService wires the operator service.
func NewAdminAttendanceService(records adminRecordStore, policy attendance.GracePolicy, civil *civiltime.Service, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AdminAttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Window() <= 0 {
		policy = attendance.DefaultGracePolicy
	}
	return &AdminAttendanceService{records: records, policy: policy, civil: civil, metrics: metrics, validator: validate, logger: logger}
}

// List returns the tenant's records for a day, today by default.
func (s *AdminAttendanceService) List(ctx context.Context, tenantID string, query dto.AttendanceListQuery) ([]models.AttendanceRecord, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance query")
	}
	filter := models.AttendanceFilter{TenantID: tenantID, Date: query.Date, StudentID: query.StudentID}
	if filter.Date == "" {
		filter.Date = s.civil.Today()
	}
	if query.Status != "" {
		status := models.AttendanceStatus(query.Status)
		filter.Status = &status
	}
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// ListUnclosed returns checked_in records, dated on or before the given day,
// whose grace deadline has already passed. No sweep closes them.
func (s *AdminAttendanceService) ListUnclosed(ctx context.Context, tenantID string, query dto.UnclosedQuery) ([]models.AttendanceRecord, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance query")
	}
	now := s.civil.Now()
	date := query.Date
	if date == "" {
		date = s.civil.DateOf(now)
	}
	records, err := s.records.ListCheckedIn(ctx, tenantID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	unclosed := make([]models.AttendanceRecord, 0, len(records))
	for _, rec := range records {
		deadline, err := s.policy.Deadline(rec, s.civil.Location())
		if err != nil {
			s.logger.Warn("skipping record", zap.String("record_id", rec.ID), zap.Error(err))
			continue
		}
		if now.After(deadline) {
			unclosed = append(unclosed, rec)
		}
	}
	return unclosed, nil
}

// Excuse marks a record as an excused absence.
func (s *AdminAttendanceService) Excuse(ctx context.Context, tenantID, recordID string, req dto.ExcuseRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid excuse payload")
	}
	return s.apply(ctx, tenantID, recordID, attendance.Excuse{Reason: req.Reason})
}

// Override forces a record into checked_in or checked_out.
func (s *AdminAttendanceService) Override(ctx context.Context, tenantID, recordID string, req dto.OverrideRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	at := s.civil.Now()
	if req.At != nil {
		at = req.At.In(s.civil.Location())
	}
	return s.apply(ctx, tenantID, recordID, attendance.ManualOverride{Target: models.AttendanceStatus(req.Status), At: at})
}

func (s *AdminAttendanceService) apply(ctx context.Context, tenantID, recordID string, ev attendance.Event) (*models.AttendanceRecord, error) {
	current, err := s.records.FindByID(ctx, tenantID, recordID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	next, effect, err := attendance.Transition(*current, ev)
	if err != nil {
		return nil, err
	}
	written, err := s.records.CompareAndSet(ctx, next, current.Status)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance record")
	}
	if !written {
		return nil, appErrors.Clone(appErrors.ErrConflict, "attendance record changed, reload and retry")
	}

	s.metrics.RecordTransitions(string(effect.Event), string(effect.To), 1)
	s.logger.Info("attendance record updated by operator",
		zap.String("tenant_id", tenantID),
		zap.String("record_id", recordID),
		zap.String("event", string(effect.Event)),
		zap.String("from", string(effect.From)),
		zap.String("to", string(effect.To)),
	)
	return &next, nil
}
