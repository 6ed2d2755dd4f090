package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyhall-attendance/internal/models"
	"github.com/noah-isme/studyhall-attendance/pkg/jobs"
)

type assignmentScheduleStub struct {
	assignments []models.SeatAssignment
	batches     [][]string
	updateErr   error
	lastLinked  string
}

func (s *assignmentScheduleStub) ListActiveByTimetable(context.Context, string, string, string) ([]models.SeatAssignment, error) {
	return s.assignments, nil
}

func (s *assignmentScheduleStub) UpdateExpectedSchedule(_ context.Context, _, timetableID string, ids []string, _ models.WeeklySchedule) (int, error) {
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	s.lastLinked = timetableID
	s.batches = append(s.batches, append([]string(nil), ids...))
	return len(ids), nil
}

func TestPropagationServiceSkipsEquivalentPayloads(t *testing.T) {
	stub := &assignmentScheduleStub{assignments: []models.SeatAssignment{{ID: "a1"}}}
	svc := NewPropagationService(stub, nil, nil, 0)

	err := svc.Propagate(context.Background(), ScheduleChange{
		TenantID: "t1", StudentID: "s1", TimetableID: "tt1",
		Before: json.RawMessage(`{"monday": {"timeSlots": [], "isActive": true}}`),
		After:  json.RawMessage(`{"monday":{"isActive":true,"timeSlots":[]}}`),
	})
	require.NoError(t, err)
	assert.Empty(t, stub.batches)
}

func TestPropagationServiceWritesInBatches(t *testing.T) {
	var assignments []models.SeatAssignment
	for i := 0; i < 5; i++ {
		assignments = append(assignments, models.SeatAssignment{ID: fmt.Sprintf("a%d", i)})
	}
	stub := &assignmentScheduleStub{assignments: assignments}
	svc := NewPropagationService(stub, nil, nil, 2)

	after, err := json.Marshal(canonicalMonday())
	require.NoError(t, err)
	err = svc.Propagate(context.Background(), ScheduleChange{TenantID: "t1", StudentID: "s1", TimetableID: "tt1", Before: nil, After: after})
	require.NoError(t, err)
	require.Len(t, stub.batches, 3)
	assert.Equal(t, []string{"a4"}, stub.batches[2])
	assert.Equal(t, "tt1", stub.lastLinked)
}

func TestPropagationServiceHandleJobSurfacesFailures(t *testing.T) {
	stub := &assignmentScheduleStub{assignments: []models.SeatAssignment{{ID: "a1"}}, updateErr: errors.New("lock timeout")}
	svc := NewPropagationService(stub, nil, nil, 0)

	change := ScheduleChange{TenantID: "t1", StudentID: "s1", TimetableID: "tt1", After: json.RawMessage(`{}`)}
	err := svc.HandleJob(context.Background(), jobs.Job{ID: "j1", Type: PropagationJobType, Payload: change})
	assert.Error(t, err)

	err = svc.HandleJob(context.Background(), jobs.Job{ID: "j2", Type: PropagationJobType, Payload: "garbage"})
	assert.Error(t, err)
}

func TestCanonicalJSONTreatsEmptyAsNull(t *testing.T) {
	a, err := canonicalJSON(nil)
	require.NoError(t, err)
	b, err := canonicalJSON(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = canonicalJSON(json.RawMessage("{"))
	assert.Error(t, err)
}
