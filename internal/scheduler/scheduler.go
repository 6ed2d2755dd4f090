// Package scheduler drives the time-based attendance jobs off the civil clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studyhall-attendance/internal/dto"
	"github.com/noah-isme/studyhall-attendance/internal/service"
	"github.com/noah-isme/studyhall-attendance/pkg/civiltime"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
)

type jobRunner interface {
	Run(ctx context.Context, job string, req dto.RunJobRequest) (*dto.JobRunResponse, error)
}

// Config sets the cadence of the scheduled jobs. Clock values are HH:mm in the
// civil timezone.
type Config struct {
	GenerationTime   string
	OperatingStart   string
	OperatingEnd     string
	StartInterval    time.Duration
	FinalizeInterval time.Duration
	// Tick is how often the generation and start-sweep loop looks at the clock.
	Tick time.Duration
}

type boundary struct {
	date   string
	minute int
}

// Scheduler runs daily generation, the start sweep on every interval boundary
// inside operating hours, and the finalizer on a fixed interval. Boundaries of a
// day are only swept once that day's generation has completed.
type Scheduler struct {
	runner jobRunner
	civil  *civiltime.Service
	logger *zap.Logger
	cfg    Config

	generationMinute int
	openMinute       int
	closeMinute      int
	step             int

	lastGeneration string
	cursor         boundary

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New validates cfg and builds a scheduler.
func New(runner jobRunner, civil *civiltime.Service, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 15 * time.Second
	}
	if cfg.FinalizeInterval <= 0 {
		cfg.FinalizeInterval = 10 * time.Minute
	}
	if cfg.StartInterval < time.Minute {
		return nil, fmt.Errorf("start interval must be at least a minute, got %s", cfg.StartInterval)
	}

	generation, err := civiltime.ParseClock(cfg.GenerationTime)
	if err != nil {
		return nil, fmt.Errorf("generation time: %w", err)
	}
	open, err := civiltime.ParseClock(cfg.OperatingStart)
	if err != nil {
		return nil, fmt.Errorf("operating start: %w", err)
	}
	closing, err := civiltime.ParseClock(cfg.OperatingEnd)
	if err != nil {
		return nil, fmt.Errorf("operating end: %w", err)
	}

	s := &Scheduler{
		runner:           runner,
		civil:            civil,
		logger:           logger,
		cfg:              cfg,
		generationMinute: generation,
		openMinute:       open,
		closeMinute:      closing,
		step:             int(cfg.StartInterval / time.Minute),
		stopChan:         make(chan struct{}),
	}
	if _, ok := s.firstBoundary(civil.Today(), 0); !ok {
		return nil, fmt.Errorf("no %s boundary between %s and %s", cfg.StartInterval, cfg.OperatingStart, cfg.OperatingEnd)
	}
	s.cursor = s.startOfDay(civil.Today())
	return s, nil
}

// Start launches the loops. Start-sweep boundaries already passed today are
// swept as soon as today's records exist, so nothing is left scheduled after a
// restart or a late generation.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting attendance scheduler",
		zap.String("generation_time", s.cfg.GenerationTime),
		zap.Duration("start_interval", s.cfg.StartInterval),
		zap.Duration("finalize_interval", s.cfg.FinalizeInterval),
	)

	s.wg.Add(2)
	go s.loop(ctx, "daily", s.cfg.Tick, s.tick)
	go s.loop(ctx, "finalize", s.cfg.FinalizeInterval, s.runFinalize)
}

// Stop ends the loops and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping attendance scheduler")
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, fn func(context.Context)) {
	defer s.wg.Done()

	fn(ctx)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-s.stopChan:
			s.logger.Debug("scheduler loop stopped", zap.String("loop", name))
			return
		case <-ctx.Done():
			s.logger.Debug("scheduler loop cancelled", zap.String("loop", name))
			return
		}
	}
}

// tick runs generation and the start sweeps from one goroutine so the sweeps
// always observe the latest generation state.
func (s *Scheduler) tick(ctx context.Context) {
	s.runDueGeneration(ctx)
	s.runDueStartSweeps(ctx)
}

// runDueGeneration generates today's records once the generation time has
// passed and this process has not seen a completed run for today. A run held
// by another replica is retried, since its records may not be written yet;
// generation is idempotent so the retry is a no-op once they are.
func (s *Scheduler) runDueGeneration(ctx context.Context) {
	now := s.civil.Now()
	today := s.civil.DateOf(now)
	if s.lastGeneration == today {
		return
	}
	current, err := civiltime.ParseClock(s.civil.ClockString(now))
	if err != nil || current < s.generationMinute {
		return
	}
	if err := s.run(ctx, service.JobGeneration, dto.RunJobRequest{Date: today}); err == nil {
		s.lastGeneration = today
	}
}

// runDueStartSweeps sweeps every boundary up to now. The cursor waits on a day
// until its records are generated, and a failed run leaves it in place so the
// boundary is retried on the next tick. A boundary locked by another replica is
// being swept there and counts as handled.
func (s *Scheduler) runDueStartSweeps(ctx context.Context) {
	now := s.civil.Now()
	if s.lastGeneration != "" && s.cursor.date < s.lastGeneration {
		s.logger.Warn("start sweep cursor behind generated day, skipping ungenerated boundaries",
			zap.String("cursor_date", s.cursor.date), zap.String("generated", s.lastGeneration))
		s.cursor = s.startOfDay(s.lastGeneration)
	}
	for ctx.Err() == nil {
		if s.cursor.date != s.lastGeneration {
			return
		}
		at, err := s.civil.At(s.cursor.date, civiltime.FormatClock(s.cursor.minute))
		if err != nil {
			s.logger.Error("invalid start sweep cursor", zap.String("date", s.cursor.date), zap.Error(err))
			return
		}
		if at.After(now) {
			return
		}
		if err := s.run(ctx, service.JobStartSweep, dto.RunJobRequest{At: &at}); err != nil && !errors.Is(err, appErrors.ErrLockHeld) {
			return
		}
		s.cursor = s.advance(s.cursor)
	}
}

func (s *Scheduler) runFinalize(ctx context.Context) {
	_ = s.run(ctx, service.JobFinalize, dto.RunJobRequest{})
}

func (s *Scheduler) run(ctx context.Context, job string, req dto.RunJobRequest) error {
	resp, err := s.runner.Run(ctx, job, req)
	if errors.Is(err, appErrors.ErrLockHeld) {
		s.logger.Debug("scheduled job skipped, lock held", zap.String("job", job))
		return err
	}
	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", job), zap.Error(err))
		return err
	}
	s.logger.Info("scheduled job completed", zap.String("job", job), zap.Any("summary", resp.Summary))
	return nil
}

func (s *Scheduler) firstBoundary(date string, from int) (boundary, bool) {
	m := from
	if m < s.openMinute {
		m = s.openMinute
	}
	if rem := m % s.step; rem != 0 {
		m += s.step - rem
	}
	if m > s.closeMinute {
		return boundary{}, false
	}
	return boundary{date: date, minute: m}, true
}

func (s *Scheduler) startOfDay(date string) boundary {
	b, _ := s.firstBoundary(date, 0)
	return b
}

func (s *Scheduler) advance(b boundary) boundary {
	if next, ok := s.firstBoundary(b.date, b.minute+1); ok {
		return next
	}
	day, err := time.ParseInLocation(civiltime.DateLayout, b.date, s.civil.Location())
	if err != nil {
		return s.startOfDay(s.civil.Today())
	}
	return s.startOfDay(day.AddDate(0, 0, 1).Format(civiltime.DateLayout))
}
