package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/attendance"
	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/jobs"
)

var weekdayKeys = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {}, "saturday": {}, "sunday": {},
}

type timetableStore interface {
	FindByStudent(ctx context.Context, tenantID, studentID string) (*models.Timetable, error)
	Save(ctx context.Context, tenantID, studentID string, schedule models.WeeklySchedule) (*models.Timetable, models.WeeklySchedule, error)
}

type jobPublisher interface {
	Enqueue(job jobs.Job) error
}

// ScheduleService edits student timetables and hands each change to the
// propagation queue.
type ScheduleService struct {
	timetables timetableStore
	students   studentChecker
	publisher  jobPublisher
	validator  *validator.Validate
	logger     *zap.Logger
	alignment  time.Duration
}

// NewScheduleService wires the timetable editor. alignment is the start-sweep
// cadence that slot start times are expected to fall on.
func NewScheduleService(timetables timetableStore, students studentChecker, publisher jobPublisher, validate *validator.Validate, logger *zap.Logger, alignment time.Duration) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ScheduleService{
		timetables: timetables,
		students:   students,
		publisher:  publisher,
		validator:  validate,
		logger:     logger,
		alignment:  alignment,
	}
	svc.validator.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return civiltime.ValidClock(fl.Field().String())
	})
	svc.validator.RegisterValidation("slot_type", func(fl validator.FieldLevel) bool {
		return models.SlotType(fl.Field().String()).Valid()
	})
	svc.validator.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, ok := weekdayKeys[fl.Field().String()]
		return ok
	})
	return svc
}

// GetTimetable returns the student's current weekly schedule.
func (s *ScheduleService) GetTimetable(ctx context.Context, tenantID, studentID string) (*models.Timetable, error) {
	tt, err := s.timetables.FindByStudent(ctx, tenantID, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return tt, nil
}

// UpdateTimetable validates and stores a student's weekly schedule. Slots are
// stored sorted by start time. Propagation failures never fail the edit.
func (s *ScheduleService) UpdateTimetable(ctx context.Context, tenantID, studentID string, req dto.UpdateTimetableRequest) (*dto.TimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}

	schedule := make(models.WeeklySchedule, len(req.DailySchedules))
	var warnings []string
	for day, daySchedule := range req.DailySchedules {
		if err := validateSlots(daySchedule.TimeSlots); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid %s schedule", day))
		}
		daySchedule.TimeSlots = attendance.SortSlots(daySchedule.TimeSlots)
		warnings = append(warnings, s.alignmentWarnings(day, daySchedule.TimeSlots)...)
		schedule[day] = daySchedule
	}

	exists, err := s.students.Exists(ctx, tenantID, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	stored, previous, err := s.timetables.Save(ctx, tenantID, studentID, schedule)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save timetable")
	}
	for _, w := range warnings {
		s.logger.Warn("timetable slot not aligned to sweep cadence",
			zap.String("tenant_id", tenantID),
			zap.String("student_id", studentID),
			zap.String("detail", w),
		)
	}

	s.enqueuePropagation(tenantID, studentID, stored, previous)
	return &dto.TimetableResponse{Timetable: *stored, Warnings: warnings}, nil
}

func (s *ScheduleService) enqueuePropagation(tenantID, studentID string, stored *models.Timetable, previous models.WeeklySchedule) {
	if s.publisher == nil {
		return
	}
	before, err := json.Marshal(previous)
	if err != nil {
		s.logger.Error("encode previous timetable", zap.Error(err))
		return
	}
	after, err := json.Marshal(stored.DailySchedules)
	if err != nil {
		s.logger.Error("encode timetable", zap.Error(err))
		return
	}
	change := ScheduleChange{
		TenantID:    tenantID,
		StudentID:   studentID,
		TimetableID: stored.ID,
		Before:      before,
		After:       after,
	}
	if err := s.publisher.Enqueue(jobs.Job{Type: PropagationJobType, Payload: change}); err != nil {
		s.logger.Error("failed to enqueue schedule propagation",
			zap.String("tenant_id", tenantID),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
	}
}

func (s *ScheduleService) alignmentWarnings(day string, slots []models.TimeSlot) []string {
	step := int(s.alignment / time.Minute)
	if step <= 0 {
		return nil
	}
	var warnings []string
	for _, block := range attendance.GroupBlocks(slots) {
		minutes, err := civiltime.ParseClock(block.StartTime)
		if err != nil || minutes%step == 0 {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("%s block starting %s is not on a %d minute boundary and will not be marked not_arrived", day, block.StartTime, step))
	}
	return warnings
}
