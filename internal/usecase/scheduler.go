package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

// Names of the recurring jobs.
const (
	JobPipeline  = "pipeline"
	JobScraping  = "scraping"
	JobTransform = "transform"
)

var (
	// ErrJobRunning is returned by a manual trigger while the same job runs.
	ErrJobRunning = errors.New("job is already running")
	// ErrUnknownJob is returned for a name outside the known job set.
	ErrUnknownJob = errors.New("unknown job")
)

// RunReport is what a triggered job produced.
type RunReport struct {
	Name      string                    `json:"name"`
	Jobs      []domain.Job              `json:"jobs"`
	Published []domain.RewrittenArticle `json:"published,omitempty"`
}

// Scheduler wires the cron driver with the pipeline entry points. Every job
// name has a run lock: a scheduled fire that finds its job running is
// skipped, a manual trigger gets ErrJobRunning.
type Scheduler struct {
	driver      ports.Scheduler
	pipeline    *Pipeline
	expressions map[string]string
	locks       map[string]*sync.Mutex
	background  sync.WaitGroup
	logger      *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring jobs. expressions
// maps job names to their default cron expressions.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, expressions map[string]string, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	locks := map[string]*sync.Mutex{}
	for _, name := range []string{JobPipeline, JobScraping, JobTransform} {
		locks[name] = &sync.Mutex{}
	}
	return &Scheduler{
		driver:      driver,
		pipeline:    pipeline,
		expressions: expressions,
		locks:       locks,
		logger:      log,
	}
}

// StartJob schedules name with its configured expression, replacing any
// previous entry, and makes sure the driver is running.
func (s *Scheduler) StartJob(name string) error {
	if _, ok := s.locks[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	expr := s.expressions[name]
	if expr == "" {
		return fmt.Errorf("no cron expression configured for %s", name)
	}

	if err := s.driver.Schedule(name, expr, func() { s.runScheduled(name) }); err != nil {
		return err
	}
	s.driver.Start()
	s.logger.Info("job scheduled", "job", name, "expression", expr)
	return nil
}

// StartAll schedules every job that has an expression.
func (s *Scheduler) StartAll() error {
	var errs []error
	for _, name := range s.names() {
		if s.expressions[name] == "" {
			continue
		}
		if err := s.StartJob(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopJob removes the schedule for name. An in-flight run is not cancelled.
func (s *Scheduler) StopJob(name string) (bool, error) {
	if _, ok := s.locks[name]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	removed := s.driver.Unschedule(name)
	if removed {
		s.logger.Info("job unscheduled", "job", name)
	}
	return removed, nil
}

// StopAll removes every schedule.
func (s *Scheduler) StopAll() {
	s.driver.UnscheduleAll()
	s.logger.Info("all jobs unscheduled")
}

// Status lists the active schedules.
func (s *Scheduler) Status() []ports.ScheduledEntry {
	return s.driver.Entries()
}

// Trigger runs name now and waits for it. Once started the run ignores
// cancellation of ctx; its values are kept.
func (s *Scheduler) Trigger(ctx context.Context, name string) (RunReport, error) {
	lock, ok := s.locks[name]
	if !ok {
		return RunReport{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !lock.TryLock() {
		return RunReport{}, fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	defer lock.Unlock()
	return s.run(context.WithoutCancel(ctx), name)
}

// TriggerAsync starts name in the background. The run lock is taken before
// returning so overlapping requests still see ErrJobRunning.
func (s *Scheduler) TriggerAsync(name string) error {
	lock, ok := s.locks[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !lock.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer lock.Unlock()
		if _, err := s.run(context.Background(), name); err != nil {
			s.logger.Error("triggered job failed", "job", name, "error", err)
		}
	}()
	return nil
}

// Shutdown stops the driver and waits for scheduled and background-triggered
// runs until ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	stopErr := s.driver.Stop(ctx)

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return stopErr
	case <-ctx.Done():
		return errors.Join(stopErr, fmt.Errorf("waiting for triggered runs: %w", ctx.Err()))
	}
}

func (s *Scheduler) runScheduled(name string) {
	lock := s.locks[name]
	if !lock.TryLock() {
		s.logger.Warn("skipping scheduled run, previous run still active", "job", name)
		return
	}
	defer lock.Unlock()

	if _, err := s.run(context.Background(), name); err != nil {
		s.logger.Error("scheduled job failed", "job", name, "error", err)
	}
}

func (s *Scheduler) run(ctx context.Context, name string) (RunReport, error) {
	report := RunReport{Name: name}
	s.logger.Info("job run started", "job", name)

	switch name {
	case JobPipeline:
		result, err := s.pipeline.RunFullPipeline(ctx)
		report.Jobs = append(report.Jobs, result.Scrape)
		if result.Transform != nil {
			report.Jobs = append(report.Jobs, *result.Transform)
		}
		report.Published = result.Published
		return report, err
	case JobScraping:
		job, err := s.pipeline.RunScrapeJob(ctx)
		report.Jobs = append(report.Jobs, job)
		return report, err
	case JobTransform:
		job, err := s.pipeline.RunTransformJob(ctx)
		report.Jobs = append(report.Jobs, job)
		return report, err
	default:
		return report, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.locks))
	for name := range s.locks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
