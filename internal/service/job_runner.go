package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/logger"
)

// Job names accepted by JobRunner.
const (
	JobGeneration = "generation"
	JobStartSweep = "start_sweep"
	JobFinalize   = "finalize"
)

type generationRunner interface {
	Generate(ctx context.Context, date string) (*dto.GenerationSummary, error)
}

type startSweepRunner interface {
	MarkNotArrived(ctx context.Context, now time.Time) (*dto.SweepSummary, error)
}

type finalizeRunner interface {
	FinalizeOverdue(ctx context.Context, now time.Time) (*dto.SweepSummary, error)
}

type jobLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// JobRunnerConfig bounds each run.
type JobRunnerConfig struct {
	Timeout time.Duration
	LockTTL time.Duration
}

// JobRunner executes the time-driven jobs under a distributed lock and a timeout.
// Both the scheduler and the on-demand admin endpoint go through it.
type JobRunner struct {
	generation generationRunner
	startSweep startSweepRunner
	finalize   finalizeRunner
	locks      jobLocker
	civil      *civiltime.Service
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	config     JobRunnerConfig
}

// NewJobRunner wires the job runner.
func NewJobRunner(
	generation generationRunner,
	startSweep startSweepRunner,
	finalize finalizeRunner,
	locks jobLocker,
	civil *civiltime.Service,
	metrics *MetricsService,
	validate *validator.Validate,
	log *zap.Logger,
	cfg JobRunnerConfig,
) *JobRunner {
	if validate == nil {
		validate = validator.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Timeout
	}
	return &JobRunner{
		generation: generation,
		startSweep: startSweep,
		finalize:   finalize,
		locks:      locks,
		civil:      civil,
		metrics:    metrics,
		validator:  validate,
		logger:     log,
		config:     cfg,
	}
}

// Run executes job once. ErrLockHeld is returned when another replica is
// already running it.
func (r *JobRunner) Run(ctx context.Context, job string, req dto.RunJobRequest) (*dto.JobRunResponse, error) {
	if err := r.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid job request")
	}
	switch job {
	case JobGeneration, JobStartSweep, JobFinalize:
	default:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "unknown job "+job)
	}

	at := r.civil.Now()
	if req.At != nil {
		at = req.At.In(r.civil.Location())
	}

	log := logger.ForJob(r.logger, job, uuid.NewString())
	release, err := r.locks.Acquire(ctx, lockName(job, at), r.config.LockTTL)
	if err != nil {
		if errors.Is(err, appErrors.ErrLockHeld) {
			r.metrics.ObserveJobRun(job, JobOutcomeSkipped, 0)
			log.Info("job skipped, lock held elsewhere")
			return nil, err
		}
		r.metrics.ObserveJobRun(job, JobOutcomeFailure, 0)
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "failed to acquire job lock")
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			log.Warn("failed to release job lock", zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	start := time.Now()
	log.Info("job started")
	var summary interface{}
	switch job {
	case JobGeneration:
		summary, err = r.generation.Generate(runCtx, req.Date)
	case JobStartSweep:
		summary, err = r.startSweep.MarkNotArrived(runCtx, at)
	case JobFinalize:
		summary, err = r.finalize.FinalizeOverdue(runCtx, at)
	}
	duration := time.Since(start)

	if err != nil {
		r.metrics.ObserveJobRun(job, JobOutcomeFailure, duration)
		log.Error("job failed", zap.Duration("duration", duration), zap.Error(err))
		return nil, err
	}
	r.metrics.ObserveJobRun(job, JobOutcomeSuccess, duration)
	log.Info("job finished", zap.Duration("duration", duration))
	return &dto.JobRunResponse{Job: job, Summary: summary}, nil
}

// lockName scopes start sweeps to their minute so a sweep for one instant never
// blocks the sweep of another.
func lockName(job string, at time.Time) string {
	if job == JobStartSweep {
		return job + ":" + at.Format(civiltime.DateLayout+"T"+civiltime.ClockLayout)
	}
	return job
}
