// Package jobs runs the periodic alert check, priority recompute and
// memory reconciliation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/patrickmn/go-cache"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/memory"
	"github.com/becomeliminal/nim-assistant/notify"
	"github.com/becomeliminal/nim-assistant/priority"
)

// Job names.
const (
	JobAlerts    = "alerts"
	JobRecompute = "recompute"
	JobReconcile = "reconcile"
)

// AlertChecker finds overdue and stuck tasks.
type AlertChecker interface {
	CheckAll(ctx context.Context) (*priority.Report, error)
}

// Recomputer rescores every task.
type Recomputer interface {
	RecomputeAll(ctx context.Context) (*priority.RecomputeResult, error)
}

// Reconciler indexes durable memories missing from the index.
type Reconciler interface {
	Reconcile(ctx context.Context, limit int) (*memory.ReconcileResult, error)
}

// Config schedules the jobs. An empty cron expression disables a job.
type Config struct {
	AlertCron     string
	RecomputeCron string
	ReconcileCron string

	// ReconcileBatch bounds memories indexed per run.
	ReconcileBatch int

	// Timeout bounds one run of any job.
	Timeout time.Duration

	// RepeatAfter suppresses re-notifying the same alert at the same
	// severity within the window.
	RepeatAfter time.Duration
}

// DefaultConfig holds the defaults.
var DefaultConfig = Config{
	AlertCron:      "*/15 * * * *",
	RecomputeCron:  "0 * * * *",
	ReconcileCron:  "*/10 * * * *",
	ReconcileBatch: 100,
	Timeout:        2 * time.Minute,
	RepeatAfter:    6 * time.Hour,
}

// Deps are the services the jobs drive. A nil dependency disables its
// job.
type Deps struct {
	Alerts    AlertChecker
	Recompute Recomputer
	Reconcile Reconciler
	Notifier  notify.Notifier
}

// Scheduler owns the gocron scheduler and the job bodies.
type Scheduler struct {
	cfg       Config
	deps      Deps
	scheduler gocron.Scheduler
	seen      *cache.Cache
	logger    *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New registers every enabled job. Jobs run in singleton mode, so a slow
// run delays the next one instead of overlapping it.
func New(cfg Config, deps Deps, opts ...Option) (*Scheduler, error) {
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = DefaultConfig.ReconcileBatch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	if cfg.RepeatAfter <= 0 {
		cfg.RepeatAfter = DefaultConfig.RepeatAfter
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLog()
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	s := &Scheduler{
		cfg:       cfg,
		deps:      deps,
		scheduler: sched,
		seen:      cache.New(cfg.RepeatAfter, cfg.RepeatAfter),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "jobs")

	type entry struct {
		name    string
		expr    string
		enabled bool
		run     func(context.Context) error
	}
	for _, e := range []entry{
		{JobAlerts, cfg.AlertCron, deps.Alerts != nil, s.RunAlerts},
		{JobRecompute, cfg.RecomputeCron, deps.Recompute != nil, s.RunRecompute},
		{JobReconcile, cfg.ReconcileCron, deps.Reconcile != nil, s.RunReconcile},
	} {
		if e.expr == "" || !e.enabled {
			continue
		}
		if _, err := sched.NewJob(
			gocron.CronJob(e.expr, false),
			gocron.NewTask(s.wrap(e.name, e.run)),
			gocron.WithName(e.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			sched.Shutdown()
			return nil, fmt.Errorf("schedule %s job: %w", e.name, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		start := time.Now()
		if err := run(ctx); err != nil {
			s.logger.Warn("job failed", "job", name, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
			return
		}
		s.logger.Debug("job finished", "job", name, "elapsed_ms", time.Since(start).Milliseconds())
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("scheduler started", "jobs", len(s.scheduler.Jobs()))
}

// Stop waits for running jobs and stops the scheduler.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// NextRuns returns the next run time of each scheduled job.
func (s *Scheduler) NextRuns() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, j := range s.scheduler.Jobs() {
		if next, err := j.NextRun(); err == nil {
			out[j.Name()] = next
		}
	}
	return out
}

// RunAlerts checks alerts and notifies the ones not sent recently at the
// same severity.
func (s *Scheduler) RunAlerts(ctx context.Context) error {
	if s.deps.Alerts == nil {
		return nil
	}
	report, err := s.deps.Alerts.CheckAll(ctx)
	if err != nil {
		return fmt.Errorf("check alerts: %w", err)
	}

	var fresh []core.Alert
	for _, a := range report.All() {
		key := fmt.Sprintf("%s:%s:%s", a.Kind, a.TaskID, a.Severity)
		if err := s.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			continue
		}
		fresh = append(fresh, a)
	}
	s.logger.Info("alerts checked",
		"overdue", report.OverdueCount,
		"stuck", report.StuckCount,
		"newly_overdue", report.Transitioned,
		"notified", len(fresh))
	if len(fresh) == 0 {
		return nil
	}
	if err := s.deps.Notifier.Notify(ctx, fresh); err != nil {
		// Forget the keys so the next run retries.
		for _, a := range fresh {
			s.seen.Delete(fmt.Sprintf("%s:%s:%s", a.Kind, a.TaskID, a.Severity))
		}
		return fmt.Errorf("notify alerts: %w", err)
	}
	return nil
}

// RunRecompute rescores every task.
func (s *Scheduler) RunRecompute(ctx context.Context) error {
	if s.deps.Recompute == nil {
		return nil
	}
	res, err := s.deps.Recompute.RecomputeAll(ctx)
	if err != nil {
		return fmt.Errorf("recompute priorities: %w", err)
	}
	s.logger.Info("priorities recomputed", "updated", res.Updated, "failed", len(res.Failures))
	if batch := res.Err(); batch != nil {
		return batch
	}
	return nil
}

// RunReconcile indexes one batch of unindexed memories.
func (s *Scheduler) RunReconcile(ctx context.Context) error {
	if s.deps.Reconcile == nil {
		return nil
	}
	res, err := s.deps.Reconcile.Reconcile(ctx, s.cfg.ReconcileBatch)
	if err != nil {
		return fmt.Errorf("reconcile memories: %w", err)
	}
	if res.Indexed > 0 || len(res.Failures) > 0 {
		s.logger.Info("memories reconciled", "indexed", res.Indexed, "failed", len(res.Failures))
	}
	if len(res.Failures) > 0 {
		return &core.BatchError{Op: "reconcile", Succeeded: res.Indexed, Failures: res.Failures}
	}
	return nil
}

// RunAll runs every enabled job once and joins their errors.
func (s *Scheduler) RunAll(ctx context.Context) error {
	var errs []error
	for _, name := range []string{JobAlerts, JobRecompute, JobReconcile} {
		var err error
		switch name {
		case JobAlerts:
			err = s.RunAlerts(ctx)
		case JobRecompute:
			err = s.RunRecompute(ctx)
		case JobReconcile:
			err = s.RunReconcile(ctx)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
