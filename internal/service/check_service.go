package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/attendance"
	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

// PIN check outcomes reported to Prometheus.
const (
	PinOutcomeCheckedIn  = "checked_in"
	PinOutcomeCheckedOut = "checked_out"
	PinOutcomeRejected   = "rejected"
	PinOutcomeNoSession  = "no_session"
)

const maxCheckAttempts = 2

type scopeResolver interface {
	ResolveScope(ctx context.Context, token string) (*models.Scope, error)
}

type seatResolver interface {
	FindActiveBySeat(ctx context.Context, tenantID, layoutID string, seatNumber int) (*models.SeatAssignment, error)
	InLayout(ctx context.Context, tenantID, layoutID, studentID string) (bool, error)
}

type pinAuthenticator interface {
	Lookup(ctx context.Context, tenantID, studentID, pin string) (*models.PinCredential, error)
	Verify(ctx context.Context, cred *models.PinCredential, pin string) error
}

type studentReader interface {
	FindByID(ctx context.Context, tenantID, id string) (*models.Student, error)
}

type checkRecordStore interface {
	ListByStudentDate(ctx context.Context, tenantID, studentID, date string) ([]models.AttendanceRecord, error)
	CompareAndSet(ctx context.Context, rec models.AttendanceRecord, expected models.AttendanceStatus) (bool, error)
}

// CheckService applies kiosk PIN entries to the student's attendance for today.
type CheckService struct {
	scopes    scopeResolver
	seats     seatResolver
	pins      pinAuthenticator
	students  studentReader
	records   checkRecordStore
	civil     *civiltime.Service
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCheckService wires the check processor.
func NewCheckService(
	scopes scopeResolver,
	seats seatResolver,
	pins pinAuthenticator,
	students studentReader,
	records checkRecordStore,
	civil *civiltime.Service,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *CheckService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckService{
		scopes:    scopes,
		seats:     seats,
		pins:      pins,
		students:  students,
		records:   records,
		civil:     civil,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// ApplyPinCheck authenticates the PIN within the kiosk's scope, selects the
// record the entry applies to and checks the student in or out.
func (s *CheckService) ApplyPinCheck(ctx context.Context, req dto.PinCheckRequest) (*dto.PinCheckResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid pin check payload")
	}

	scope, err := s.scopes.ResolveScope(ctx, req.ScopeToken)
	if err != nil {
		return nil, err
	}

	student, err := s.authenticate(ctx, scope, req)
	if err != nil {
		if errors.Is(err, appErrors.ErrPinRejected) {
			s.metrics.RecordPinCheck(PinOutcomeRejected)
		}
		return nil, err
	}

	now := s.civil.Now()
	date := s.civil.DateOf(now)
	for attempt := 1; attempt <= maxCheckAttempts; attempt++ {
		records, err := s.records.ListByStudentDate(ctx, scope.TenantID, student.ID, date)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
		}

		target, action, err := attendance.SelectCheckTarget(records, now)
		if err != nil {
			s.metrics.RecordPinCheck(PinOutcomeNoSession)
			return nil, err
		}

		next, effect, err := attendance.Transition(target, attendance.EventFor(action, now, models.CheckMethodPin))
		if err != nil {
			return nil, err
		}

		written, err := s.records.CompareAndSet(ctx, next, target.Status)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
		}
		if !written {
			s.logger.Info("record changed during check, reselecting",
				zap.String("record_id", target.ID),
				zap.Int("attempt", attempt),
			)
			continue
		}

		s.metrics.RecordPinCheck(string(action))
		s.metrics.RecordTransitions(string(effect.Event), string(effect.To), 1)
		s.logger.Info("pin check applied",
			zap.String("tenant_id", scope.TenantID),
			zap.String("student_id", student.ID),
			zap.String("record_id", next.ID),
			zap.String("action", string(action)),
		)
		return &dto.PinCheckResponse{
			Action:  string(action),
			Message: checkMessage(student.FullName, action, next),
			Record:  next,
		}, nil
	}

	return nil, appErrors.Clone(appErrors.ErrConflict, "attendance changed while checking, please try again")
}

// authenticate resolves and verifies the credential the entry refers to. Every
// identification failure surfaces as the same ErrPinRejected.
func (s *CheckService) authenticate(ctx context.Context, scope *models.Scope, req dto.PinCheckRequest) (*models.Student, error) {
	studentID := ""
	if req.SeatNumber != nil {
		assignment, err := s.seats.FindActiveBySeat(ctx, scope.TenantID, scope.LayoutID, *req.SeatNumber)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrPinRejected
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat")
		}
		studentID = assignment.StudentID
	}

	cred, err := s.pins.Lookup(ctx, scope.TenantID, studentID, req.Pin)
	if err != nil {
		return nil, err
	}
	if err := s.pins.Verify(ctx, cred, req.Pin); err != nil {
		return nil, err
	}

	if studentID == "" {
		seated, err := s.seats.InLayout(ctx, scope.TenantID, scope.LayoutID, cred.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load seat")
		}
		if !seated {
			return nil, appErrors.ErrPinRejected
		}
	}

	student, err := s.students.FindByID(ctx, scope.TenantID, cred.StudentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.ErrPinRejected
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func checkMessage(name string, action attendance.CheckAction, rec models.AttendanceRecord) string {
	if action == attendance.ActionCheckedOut {
		if rec.IsEarlyLeave != nil && *rec.IsEarlyLeave && rec.EarlyLeaveMinutes != nil {
			return fmt.Sprintf("%s checked out %d min early", name, *rec.EarlyLeaveMinutes)
		}
		return fmt.Sprintf("%s checked out", name)
	}
	if rec.IsLate && rec.LateMinutes != nil {
		return fmt.Sprintf("%s checked in %d min late", name, *rec.LateMinutes)
	}
	return fmt.Sprintf("%s checked in", name)
}
