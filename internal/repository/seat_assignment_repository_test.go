package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyhall-attendance/internal/models"
)

func TestSeatAssignmentRepositoryFindActiveBySeat(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSeatAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "tenant_id", "layout_id", "seat_id", "seat_number", "student_id", "timetable_id", "status", "expected_schedule", "updated_at"}).
		AddRow("a1", "t1", "l1", "seat-7", 7, "s1", "tt1", "active", nil, time.Now())
	mock.ExpectQuery(`FROM seat_assignments WHERE tenant_id = \$1 AND layout_id = \$2 AND seat_number = \$3 AND status = 'active'`).
		WithArgs("t1", "l1", 7).
		WillReturnRows(rows)

	assignment, err := repo.FindActiveBySeat(context.Background(), "t1", "l1", 7)
	require.NoError(t, err)
	assert.Equal(t, "s1", assignment.StudentID)
	require.NotNil(t, assignment.TimetableID)
	assert.Equal(t, "tt1", *assignment.TimetableID)
	assert.Nil(t, assignment.ExpectedSchedule)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatAssignmentRepositoryUpdateExpectedSchedule(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSeatAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE seat_assignments SET expected_schedule = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := repo.UpdateExpectedSchedule(context.Background(), "t1", "tt1", []string{"a1", "a2"}, models.WeeklySchedule{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatAssignmentRepositoryUpdateNothing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSeatAssignmentRepository(db)

	n, err := repo.UpdateExpectedSchedule(context.Background(), "t1", "tt1", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
