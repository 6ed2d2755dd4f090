package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/jobs"
)

// PropagationJobType identifies schedule propagation jobs on the queue.
const PropagationJobType = "schedule_propagation"

// Propagation outcomes reported to Prometheus.
const (
	PropagationOutcomeUnchanged  = "unchanged"
	PropagationOutcomeApplied    = "applied"
	PropagationOutcomeFailed     = "failed"
	PropagationOutcomeDeadLetter = "dead_letter"
)

// ScheduleChange describes one timetable edit. Before and After are the
// serialized weekly schedules around the edit.
type ScheduleChange struct {
	TenantID    string          `json:"tenantId"`
	StudentID   string          `json:"studentId"`
	TimetableID string          `json:"timetableId"`
	Before      json.RawMessage `json:"before"`
	After       json.RawMessage `json:"after"`
}

type expectedScheduleStore interface {
	ListActiveByTimetable(ctx context.Context, tenantID, studentID, timetableID string) ([]models.SeatAssignment, error)
	UpdateExpectedSchedule(ctx context.Context, tenantID, timetableID string, ids []string, schedule models.WeeklySchedule) (int, error)
}

// PropagationService copies an edited timetable onto the expected schedule
// cached by the student's active seat assignments.
type PropagationService struct {
	assignments expectedScheduleStore
	metrics     *MetricsService
	logger      *zap.Logger
	batchLimit  int
}

// NewPropagationService wires the propagator.
func NewPropagationService(assignments expectedScheduleStore, metrics *MetricsService, logger *zap.Logger, batchLimit int) *PropagationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	return &PropagationService{assignments: assignments, metrics: metrics, logger: logger, batchLimit: batchLimit}
}

// HandleJob is the queue handler for PropagationJobType jobs.
func (s *PropagationService) HandleJob(ctx context.Context, job jobs.Job) error {
	change, ok := job.Payload.(ScheduleChange)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	return s.Propagate(ctx, change)
}

// DeadLetter records a change that exhausted its retries.
func (s *PropagationService) DeadLetter(job jobs.Job, err error) {
	s.metrics.RecordPropagation(PropagationOutcomeDeadLetter)
	fields := []zap.Field{zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err)}
	if change, ok := job.Payload.(ScheduleChange); ok {
		fields = append(fields, zap.String("tenant_id", change.TenantID), zap.String("student_id", change.StudentID))
	}
	s.logger.Error("schedule propagation abandoned", fields...)
}

// Propagate applies change. Identical before and after payloads are a no-op.
func (s *PropagationService) Propagate(ctx context.Context, change ScheduleChange) error {
	before, err := canonicalJSON(change.Before)
	if err != nil {
		return fmt.Errorf("canonicalise previous schedule: %w", err)
	}
	after, err := canonicalJSON(change.After)
	if err != nil {
		return fmt.Errorf("canonicalise new schedule: %w", err)
	}
	if bytes.Equal(before, after) {
		s.metrics.RecordPropagation(PropagationOutcomeUnchanged)
		return nil
	}

	var schedule models.WeeklySchedule
	if err := json.Unmarshal(change.After, &schedule); err != nil {
		return fmt.Errorf("decode new schedule: %w", err)
	}

	assignments, err := s.assignments.ListActiveByTimetable(ctx, change.TenantID, change.StudentID, change.TimetableID)
	if err != nil {
		s.metrics.RecordPropagation(PropagationOutcomeFailed)
		return fmt.Errorf("list assignments: %w", err)
	}
	if len(assignments) == 0 {
		s.metrics.RecordPropagation(PropagationOutcomeApplied)
		return nil
	}
	if len(assignments) > s.batchLimit {
		s.logger.Warn("schedule propagation exceeds batch limit",
			zap.String("tenant_id", change.TenantID),
			zap.String("student_id", change.StudentID),
			zap.Int("assignments", len(assignments)),
			zap.Int("batch_limit", s.batchLimit),
		)
	}

	ids := make([]string, len(assignments))
	for i, a := range assignments {
		ids[i] = a.ID
	}
	updated := 0
	for start := 0; start < len(ids); start += s.batchLimit {
		end := start + s.batchLimit
		if end > len(ids) {
			end = len(ids)
		}
		n, err := s.assignments.UpdateExpectedSchedule(ctx, change.TenantID, change.TimetableID, ids[start:end], schedule)
		if err != nil {
			s.metrics.RecordPropagation(PropagationOutcomeFailed)
			s.logger.Error("schedule propagation failed",
				zap.String("tenant_id", change.TenantID),
				zap.String("student_id", change.StudentID),
				zap.Error(err),
			)
			return fmt.Errorf("update expected schedule: %w", err)
		}
		updated += n
	}

	s.metrics.RecordPropagation(PropagationOutcomeApplied)
	s.logger.Info("schedule propagated",
		zap.String("tenant_id", change.TenantID),
		zap.String("student_id", change.StudentID),
		zap.Int("assignments", updated),
	)
	return nil
}

// canonicalJSON re-encodes a JSON document so that key order and whitespace do
// not affect comparison. Empty input is treated as null.
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
