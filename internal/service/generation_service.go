package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/attendance"
	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

const defaultBatchLimit = 500

type activeAssignmentLister interface {
	ListActive(ctx context.Context, tenantID string) ([]models.SeatAssignment, error)
	UpdateExpectedSchedule(ctx context.Context, tenantID, timetableID string, ids []string, schedule models.WeeklySchedule) (int, error)
}

type timetableLoader interface {
	FindByIDs(ctx context.Context, tenantID string, ids []string) (map[string]models.Timetable, error)
}

type recordGenerator interface {
	StudentsWithRecords(ctx context.Context, tenantID, date string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, records []models.AttendanceRecord) (int, error)
}

// GenerationConfig tunes the daily generator.
type GenerationConfig struct {
	BatchLimit int
}

// GenerationService materialises each active seat's timetable for a date into
// scheduled attendance records, one per continuous block.
type GenerationService struct {
	tenants     tenantLister
	assignments activeAssignmentLister
	timetables  timetableLoader
	records     recordGenerator
	civil       *civiltime.Service
	metrics     *MetricsService
	logger      *zap.Logger
	config      GenerationConfig
}

// NewGenerationService wires the generator.
func NewGenerationService(
	tenants tenantLister,
	assignments activeAssignmentLister,
	timetables timetableLoader,
	records recordGenerator,
	civil *civiltime.Service,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg GenerationConfig,
) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = defaultBatchLimit
	}
	return &GenerationService{
		tenants:     tenants,
		assignments: assignments,
		timetables:  timetables,
		records:     records,
		civil:       civil,
		metrics:     metrics,
		logger:      logger,
		config:      cfg,
	}
}

// Generate creates the records for date (today when empty). Re-running for the
// same date creates nothing new.
func (s *GenerationService) Generate(ctx context.Context, date string) (*dto.GenerationSummary, error) {
	if date == "" {
		date = s.civil.Today()
	}
	dayOfWeek, err := s.civil.DayOfWeek(date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid date")
	}

	summary := &dto.GenerationSummary{Date: date}
	processed, failed, err := forEachTenant(ctx, s.tenants, s.logger, "generation", func(ctx context.Context, tenant models.Tenant) error {
		return s.generateTenant(ctx, tenant.ID, date, dayOfWeek, summary)
	})
	summary.Tenants = processed
	summary.FailedTenants = failed
	if err != nil {
		return summary, err
	}

	s.metrics.RecordTransitions("generate", string(models.AttendanceStatusScheduled), summary.Created)
	s.logger.Info("daily records generated",
		zap.String("date", date),
		zap.Int("tenants", summary.Tenants),
		zap.Int("failed_tenants", summary.FailedTenants),
		zap.Int("students", summary.Students),
		zap.Int("created", summary.Created),
		zap.Int("skipped", summary.Skipped),
		zap.Int("existing", summary.Existing),
	)
	return summary, nil
}

func (s *GenerationService) generateTenant(ctx context.Context, tenantID, date, dayOfWeek string, summary *dto.GenerationSummary) error {
	assignments, err := s.assignments.ListActive(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return nil
	}
	existing, err := s.records.StudentsWithRecords(ctx, tenantID, date)
	if err != nil {
		return err
	}

	var timetableIDs []string
	for _, a := range assignments {
		if a.TimetableID != nil {
			timetableIDs = append(timetableIDs, *a.TimetableID)
		}
	}
	timetables, err := s.timetables.FindByIDs(ctx, tenantID, timetableIDs)
	if err != nil {
		return err
	}

	s.refreshStaleSchedules(ctx, tenantID, assignments, timetables, summary)

	now := s.civil.Now()
	seen := make(map[string]struct{}, len(assignments))
	var groups [][]models.AttendanceRecord
	for _, a := range assignments {
		if _, dup := seen[a.StudentID]; dup {
			continue
		}
		seen[a.StudentID] = struct{}{}
		summary.Students++

		if _, ok := existing[a.StudentID]; ok {
			summary.Existing++
			continue
		}
		if a.TimetableID == nil {
			summary.Skipped++
			continue
		}
		tt, ok := timetables[*a.TimetableID]
		if !ok {
			summary.Skipped++
			continue
		}
		records, err := buildDayRecords(a, tt.DailySchedules, date, dayOfWeek, now)
		if err != nil {
			summary.Skipped++
			s.logger.Warn("skipping malformed timetable",
				zap.String("tenant_id", tenantID),
				zap.String("student_id", a.StudentID),
				zap.Error(err),
			)
			continue
		}
		if len(records) == 0 {
			summary.Skipped++
			continue
		}
		groups = append(groups, records)
	}

	for _, chunk := range chunkGroups(groups, s.config.BatchLimit) {
		n, err := s.records.InsertBatch(ctx, chunk)
		if err != nil {
			return err
		}
		summary.Created += n
	}
	return nil
}

// refreshStaleSchedules rewrites the cached expected schedule of assignments
// that no longer match their timetable, which happens when a propagation job
// was lost. Failures are logged and left for the next cycle.
func (s *GenerationService) refreshStaleSchedules(ctx context.Context, tenantID string, assignments []models.SeatAssignment, timetables map[string]models.Timetable, summary *dto.GenerationSummary) {
	stale := map[string][]string{}
	for _, a := range assignments {
		if a.TimetableID == nil {
			continue
		}
		tt, ok := timetables[*a.TimetableID]
		if !ok || sameSchedule(a.ExpectedSchedule, tt.DailySchedules) {
			continue
		}
		stale[tt.ID] = append(stale[tt.ID], a.ID)
	}

	for timetableID, ids := range stale {
		for start := 0; start < len(ids); start += s.config.BatchLimit {
			end := start + s.config.BatchLimit
			if end > len(ids) {
				end = len(ids)
			}
			n, err := s.assignments.UpdateExpectedSchedule(ctx, tenantID, timetableID, ids[start:end], timetables[timetableID].DailySchedules)
			if err != nil {
				s.logger.Warn("failed to refresh stale expected schedules",
					zap.String("tenant_id", tenantID),
					zap.String("timetable_id", timetableID),
					zap.Error(err),
				)
				break
			}
			summary.Refreshed += n
		}
	}
	if summary.Refreshed > 0 {
		s.logger.Info("refreshed stale expected schedules", zap.String("tenant_id", tenantID), zap.Int("assignments", summary.Refreshed))
	}
}

func sameSchedule(cached, current models.WeeklySchedule) bool {
	if len(cached) == 0 && len(current) == 0 {
		return true
	}
	a, errA := json.Marshal(cached)
	b, errB := json.Marshal(current)
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// buildDayRecords turns one student's day into scheduled records. An inactive or
// empty day yields none.
func buildDayRecords(a models.SeatAssignment, schedule models.WeeklySchedule, date, dayOfWeek string, now time.Time) ([]models.AttendanceRecord, error) {
	day, ok := schedule.Day(dayOfWeek)
	if !ok || !day.IsActive || len(day.TimeSlots) == 0 {
		return nil, nil
	}
	if err := validateSlots(day.TimeSlots); err != nil {
		return nil, err
	}

	blocks := attendance.GroupBlocks(attendance.SortSlots(day.TimeSlots))
	records := make([]models.AttendanceRecord, 0, len(blocks))
	for i, block := range blocks {
		records = append(records, models.AttendanceRecord{
			ID:                    uuid.NewString(),
			TenantID:              a.TenantID,
			StudentID:             a.StudentID,
			SeatID:                a.SeatID,
			SeatNumber:            a.SeatNumber,
			Date:                  date,
			DayOfWeek:             dayOfWeek,
			ExpectedArrivalTime:   block.StartTime,
			ExpectedDepartureTime: block.EndTime,
			Status:                models.AttendanceStatusScheduled,
			SessionNumber:         i + 1,
			IsLatestSession:       i == len(blocks)-1,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
	}
	return records, nil
}

// validateSlots checks clock format and ordering of each slot.
func validateSlots(slots []models.TimeSlot) error {
	for i, slot := range slots {
		start, err := civiltime.ParseClock(slot.StartTime)
		if err != nil {
			return fmt.Errorf("slot %d start: %w", i, err)
		}
		end, err := civiltime.ParseClock(slot.EndTime)
		if err != nil {
			return fmt.Errorf("slot %d end: %w", i, err)
		}
		if start >= end {
			return fmt.Errorf("slot %d: start %s is not before end %s", i, slot.StartTime, slot.EndTime)
		}
		if !slot.Type.Valid() {
			return fmt.Errorf("slot %d: unknown type %q", i, slot.Type)
		}
	}
	return nil
}

// chunkGroups packs per-student record groups into chunks of at most limit rows
// without splitting a group. A group larger than limit gets a chunk of its own.
func chunkGroups(groups [][]models.AttendanceRecord, limit int) [][]models.AttendanceRecord {
	var (
		chunks  [][]models.AttendanceRecord
		current []models.AttendanceRecord
	)
	for _, group := range groups {
		if len(current) > 0 && len(current)+len(group) > limit {
			chunks = append(chunks, current)
			current = nil
		}
		current = append(current, group...)
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
