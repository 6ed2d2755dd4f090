package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

type lockStub struct {
	held     map[string]bool
	err      error
	released []string
}

func (l *lockStub) Acquire(_ context.Context, name string, _ time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held[name] {
		return nil, appErrors.ErrLockHeld
	}
	return func(context.Context) error {
		l.released = append(l.released, name)
		return nil
	}, nil
}

type generationStub struct {
	dates []string
}

func (g *generationStub) Generate(_ context.Context, date string) (*dto.GenerationSummary, error) {
	g.dates = append(g.dates, date)
	return &dto.GenerationSummary{Date: date, Created: 4}, nil
}

type sweepStub struct {
	at  time.Time
	err error
}

func (s *sweepStub) MarkNotArrived(_ context.Context, now time.Time) (*dto.SweepSummary, error) {
	s.at = now
	return &dto.SweepSummary{At: now}, s.err
}

func (s *sweepStub) FinalizeOverdue(_ context.Context, now time.Time) (*dto.SweepSummary, error) {
	s.at = now
	if s.err != nil {
		return nil, s.err
	}
	return &dto.SweepSummary{At: now}, nil
}

func TestJobRunnerRunsUnderLock(t *testing.T) {
	civil, _ := newCivil("00:05")
	gen := &generationStub{}
	sweep := &sweepStub{}
	locks := &lockStub{}
	runner := NewJobRunner(gen, sweep, sweep, locks, civil, nil, nil, nil, JobRunnerConfig{})

	resp, err := runner.Run(context.Background(), JobGeneration, dto.RunJobRequest{Date: "2026-10-19"})
	require.NoError(t, err)
	assert.Equal(t, JobGeneration, resp.Job)
	summary, ok := resp.Summary.(*dto.GenerationSummary)
	require.True(t, ok)
	assert.Equal(t, 4, summary.Created)
	assert.Equal(t, []string{"2026-10-19"}, gen.dates)
	assert.Equal(t, []string{JobGeneration}, locks.released)

	_, err = runner.Run(context.Background(), JobStartSweep, dto.RunJobRequest{})
	require.NoError(t, err)
	assert.True(t, sweep.at.Equal(kstAt("00:05")))
	assert.Equal(t, "start_sweep:2026-10-19T00:05", locks.released[1])

	at := kstAt("12:40")
	_, err = runner.Run(context.Background(), JobFinalize, dto.RunJobRequest{At: &at})
	require.NoError(t, err)
	assert.True(t, sweep.at.Equal(at))
}

func TestJobRunnerRejectsUnknownJobs(t *testing.T) {
	civil, _ := newCivil("00:05")
	runner := NewJobRunner(&generationStub{}, &sweepStub{}, &sweepStub{}, &lockStub{}, civil, nil, nil, nil, JobRunnerConfig{})

	_, err := runner.Run(context.Background(), "reindex", dto.RunJobRequest{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = runner.Run(context.Background(), JobGeneration, dto.RunJobRequest{Date: "tomorrow"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestJobRunnerLockOutcomes(t *testing.T) {
	civil, _ := newCivil("00:05")
	gen := &generationStub{}
	runner := NewJobRunner(gen, &sweepStub{}, &sweepStub{}, &lockStub{held: map[string]bool{JobGeneration: true}}, civil, nil, nil, nil, JobRunnerConfig{})

	_, err := runner.Run(context.Background(), JobGeneration, dto.RunJobRequest{})
	assert.ErrorIs(t, err, appErrors.ErrLockHeld)
	assert.Empty(t, gen.dates)

	runner = NewJobRunner(gen, &sweepStub{}, &sweepStub{}, &lockStub{err: errors.New("redis down")}, civil, nil, nil, nil, JobRunnerConfig{})
	_, err = runner.Run(context.Background(), JobGeneration, dto.RunJobRequest{})
	assert.ErrorIs(t, err, appErrors.ErrServiceUnavailable)
}

func TestJobRunnerSurfacesJobErrors(t *testing.T) {
	civil, _ := newCivil("12:40")
	sweep := &sweepStub{err: appErrors.Clone(appErrors.ErrServiceUnavailable, "tenants unavailable")}
	locks := &lockStub{}
	runner := NewJobRunner(&generationStub{}, sweep, sweep, locks, civil, nil, nil, nil, JobRunnerConfig{})

	_, err := runner.Run(context.Background(), JobFinalize, dto.RunJobRequest{})
	assert.ErrorIs(t, err, appErrors.ErrServiceUnavailable)
	assert.Equal(t, []string{JobFinalize}, locks.released)
}

func TestJobRunnerLocksStartSweepPerInstant(t *testing.T) {
	civil, _ := newCivil("06:40")
	sweep := &sweepStub{}
	locks := &lockStub{held: map[string]bool{"start_sweep:2026-10-19T06:40": true}}
	runner := NewJobRunner(&generationStub{}, sweep, sweep, locks, civil, nil, nil, nil, JobRunnerConfig{})

	_, err := runner.Run(context.Background(), JobStartSweep, dto.RunJobRequest{})
	assert.ErrorIs(t, err, appErrors.ErrLockHeld)

	boundary := kstAt("06:30")
	_, err = runner.Run(context.Background(), JobStartSweep, dto.RunJobRequest{At: &boundary})
	require.NoError(t, err)
	assert.True(t, sweep.at.Equal(boundary))
	assert.Equal(t, []string{"start_sweep:2026-10-19T06:30"}, locks.released)
}
