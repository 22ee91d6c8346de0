// Package priority scores tasks and raises severity-tiered alerts for
// overdue and stalled work.
package priority

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-assistant/core"
	"github.com/becomeliminal/nim-assistant/metrics"
	"github.com/becomeliminal/nim-assistant/store"
)

// Engine computes priorities and alerts over the task store.
type Engine struct {
	tasks    store.TaskStore
	memories store.MemoryStore
	cfg      *Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records priority writes and alert gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the evaluation clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. memories may be nil, in which case no
// importance signal is applied.
func New(tasks store.TaskStore, memories store.MemoryStore, cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig
	}
	e := &Engine{
		tasks:    tasks,
		memories: memories,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "priority")
	return e
}

// Config returns the engine configuration.
func (e *Engine) Config() *Config {
	return e.cfg
}

// RecomputeResult is the outcome of a bulk recompute. Tasks holds every
// task that was written, in input order, with its new score.
type RecomputeResult struct {
	Updated  int                `json:"updated_count"`
	Tasks    []*core.Task       `json:"tasks"`
	Failures []core.ItemFailure `json:"failures,omitempty"`
}

// Err returns a BatchError when any write failed.
func (r *RecomputeResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &core.BatchError{Op: "recompute priorities", Succeeded: r.Updated, Failures: r.Failures}
}

// RecomputeAll recomputes every stored task.
func (e *Engine) RecomputeAll(ctx context.Context) (*RecomputeResult, error) {
	tasks, err := e.tasks.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, core.NewDependencyError(core.DepStore, "list tasks", err)
	}
	return e.Recompute(ctx, tasks)
}

// Recompute scores each task and writes priority_score and last_updated
// back. Writes are independent; a failed write is collected and the
// rest still run.
func (e *Engine) Recompute(ctx context.Context, tasks []*core.Task) (*RecomputeResult, error) {
	now := e.now().UTC()
	importance := e.importance(ctx, tasks)

	type outcome struct {
		task *core.Task
		err  error
	}
	outcomes := make([]outcome, len(tasks))

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(e.fanout())
	for i, t := range tasks {
		g.Go(func() error {
			score := Score(Input{Status: t.Status, DueAt: t.DueAt, Importance: importance[t.ID]}, now, e.cfg.Weights)
			if err := ctx.Err(); err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			if err := e.tasks.SetPriority(gctx, t.ID, score, now); err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			updated := *t
			updated.PriorityScore = score
			updated.UpdatedAt = now
			outcomes[i] = outcome{task: &updated}
			return nil
		})
	}
	_ = g.Wait()

	res := &RecomputeResult{Tasks: make([]*core.Task, 0, len(tasks))}
	for i, o := range outcomes {
		if o.err != nil {
			e.metrics.PriorityWrite(metrics.Error)
			e.logger.Warn("priority write failed", "task_id", tasks[i].ID, "error", o.err)
			res.Failures = append(res.Failures, core.ItemFailure{ID: tasks[i].ID, Reason: o.err.Error()})
			continue
		}
		e.metrics.PriorityWrite(metrics.OK)
		res.Updated++
		res.Tasks = append(res.Tasks, o.task)
	}
	e.logger.Info("priorities recomputed", "updated", res.Updated, "failed", len(res.Failures))
	return res, nil
}

// importance looks up the inherited importance signal. A lookup failure
// scores every task without it.
func (e *Engine) importance(ctx context.Context, tasks []*core.Task) map[string]float64 {
	if e.memories == nil || len(tasks) == 0 {
		return nil
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	weights, err := e.memories.MaxImportanceByEntity(ctx, ids)
	if err != nil {
		e.logger.Warn("importance lookup failed, scoring without it", "error", err)
		return nil
	}
	return weights
}

func (e *Engine) fanout() int {
	if e.cfg.Fanout <= 0 {
		return 1
	}
	return e.cfg.Fanout
}

// OverdueResult is the outcome of an overdue check.
type OverdueResult struct {
	// Transitioned counts tasks newly flagged overdue by this call.
	Transitioned int                `json:"transitioned"`
	Alerts       []core.Alert       `json:"alerts"`
	Failures     []core.ItemFailure `json:"failures,omitempty"`
}

// CheckOverdue flags active tasks whose due date is strictly before now
// and returns one alert per overdue task. Tasks that stopped being
// overdue are unflagged. Re-running without task changes transitions
// nothing.
func (e *Engine) CheckOverdue(ctx context.Context) (*OverdueResult, error) {
	now := e.now().UTC()
	tasks, err := e.tasks.ListTasks(ctx, store.TaskFilter{})
	if err != nil {
		return nil, core.NewDependencyError(core.DepStore, "list tasks", err)
	}

	res := &OverdueResult{Alerts: []core.Alert{}}
	for _, t := range tasks {
		overdue := t.IsOverdue(now)
		if overdue {
			elapsed := now.Sub(*t.DueAt)
			res.Alerts = append(res.Alerts, core.Alert{
				TaskID:   t.ID,
				Title:    t.Title,
				Kind:     core.AlertOverdue,
				Severity: e.cfg.Thresholds.OverdueSeverity(elapsed),
				Elapsed:  elapsed,
				DueAt:    t.DueAt,
			})
		}
		if overdue == t.Overdue {
			continue
		}
		changed, err := e.tasks.SetOverdue(ctx, t.ID, overdue, now)
		if err != nil {
			e.logger.Warn("overdue flag write failed", "task_id", t.ID, "error", err)
			res.Failures = append(res.Failures, core.ItemFailure{ID: t.ID, Reason: err.Error()})
			continue
		}
		if changed && overdue {
			res.Transitioned++
		}
	}
	sortAlerts(res.Alerts)
	if res.Transitioned > 0 {
		e.logger.Info("tasks flagged overdue", "transitioned", res.Transitioned)
	}
	return res, nil
}

// CheckStuck returns active tasks with no activity for longer than the
// stall threshold.
func (e *Engine) CheckStuck(ctx context.Context) ([]core.Alert, error) {
	now := e.now().UTC()
	tasks, err := e.tasks.ListTasks(ctx, store.TaskFilter{Statuses: []core.TaskStatus{core.StatusOpen, core.StatusInProgress}})
	if err != nil {
		return nil, core.NewDependencyError(core.DepStore, "list tasks", err)
	}
	alerts := []core.Alert{}
	for _, t := range tasks {
		if !t.Status.Active() {
			continue
		}
		stalled := now.Sub(t.ActivityAt)
		if stalled <= e.cfg.Thresholds.StallAfter {
			continue
		}
		alerts = append(alerts, core.Alert{
			TaskID:   t.ID,
			Title:    t.Title,
			Kind:     core.AlertStuck,
			Severity: e.cfg.Thresholds.StallSeverity(stalled),
			Elapsed:  stalled,
			DueAt:    t.DueAt,
		})
	}
	sortAlerts(alerts)
	return alerts, nil
}

// Report is the union of overdue and stuck findings.
type Report struct {
	OverdueCount int          `json:"overdue_count"`
	StuckCount   int          `json:"stuck_count"`
	Overdue      []core.Alert `json:"overdue_tasks"`
	Stuck        []core.Alert `json:"stuck_tasks"`
	Transitioned int          `json:"transitioned"`
}

// All returns both lists as one slice, most severe first.
func (r *Report) All() []core.Alert {
	all := make([]core.Alert, 0, len(r.Overdue)+len(r.Stuck))
	all = append(all, r.Overdue...)
	all = append(all, r.Stuck...)
	sortAlerts(all)
	return all
}

// CheckAll runs overdue and stuck detection. A task both overdue and
// stuck appears in both lists.
func (e *Engine) CheckAll(ctx context.Context) (*Report, error) {
	var (
		overdue *OverdueResult
		stuck   []core.Alert
		mu      sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.CheckOverdue(gctx)
		mu.Lock()
		overdue = res
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		res, err := e.CheckStuck(gctx)
		mu.Lock()
		stuck = res
		mu.Unlock()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		OverdueCount: len(overdue.Alerts),
		StuckCount:   len(stuck),
		Overdue:      overdue.Alerts,
		Stuck:        stuck,
		Transitioned: overdue.Transitioned,
	}
	e.metrics.SetAlerts(report.All())
	return report, nil
}

func sortAlerts(alerts []core.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		if a.Elapsed != b.Elapsed {
			return a.Elapsed > b.Elapsed
		}
		return a.TaskID < b.TaskID
	})
}

// NextAction picks the highest-scoring non-done task. Ties go to the
// earliest due date (tasks without one last), then the most recently
// updated, then the lowest ID. It returns nil when no task qualifies.
func (e *Engine) NextAction(ctx context.Context) (*core.Task, error) {
	tasks, err := e.tasks.ListTasks(ctx, store.TaskFilter{
		Statuses: []core.TaskStatus{core.StatusOpen, core.StatusInProgress, core.StatusBlocked},
	})
	if err != nil {
		return nil, core.NewDependencyError(core.DepStore, "list tasks", err)
	}
	var best *core.Task
	for _, t := range tasks {
		if t.Status == core.StatusDone {
			continue
		}
		if best == nil || ranksAbove(t, best) {
			best = t
		}
	}
	return best, nil
}

func ranksAbove(a, b *core.Task) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	switch {
	case a.DueAt != nil && b.DueAt == nil:
		return true
	case a.DueAt == nil && b.DueAt != nil:
		return false
	case a.DueAt != nil && !a.DueAt.Equal(*b.DueAt):
		return a.DueAt.Before(*b.DueAt)
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID < b.ID
}

// Suggestion is one proposed deadline.
type Suggestion struct {
	TaskID string    `json:"task_id"`
	DueAt  time.Time `json:"due_at"`
	Reason string    `json:"reason"`
}

// SuggestResult is the outcome of SuggestDeadlines.
type SuggestResult struct {
	Updated     int                `json:"updated_count"`
	Suggestions []Suggestion       `json:"suggestions"`
	Failures    []core.ItemFailure `json:"failures,omitempty"`
}

// Err returns a BatchError when any suggestion failed.
func (r *SuggestResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &core.BatchError{Op: "suggest deadlines", Succeeded: r.Updated, Failures: r.Failures}
}

// SuggestDeadlines proposes and writes a due date for every non-done
// task lacking one. A task that gained a due date concurrently is left
// alone.
func (e *Engine) SuggestDeadlines(ctx context.Context) (*SuggestResult, error) {
	now := e.now().UTC()
	tasks, err := e.tasks.ListTasks(ctx, store.TaskFilter{
		Statuses:   []core.TaskStatus{core.StatusOpen, core.StatusInProgress, core.StatusBlocked},
		WithoutDue: true,
	})
	if err != nil {
		return nil, core.NewDependencyError(core.DepStore, "list tasks", err)
	}

	type outcome struct {
		suggestion *Suggestion
		err        error
	}
	outcomes := make([]outcome, len(tasks))

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(e.fanout())
	for i, t := range tasks {
		if t.DueAt != nil || t.Status == core.StatusDone {
			continue
		}
		g.Go(func() error {
			due, reason := SuggestDeadline(t, now, e.cfg.DeadlineHour)
			written, err := e.tasks.SuggestDue(gctx, t.ID, due, now)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return nil
			}
			if written {
				outcomes[i] = outcome{suggestion: &Suggestion{TaskID: t.ID, DueAt: due, Reason: reason}}
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &SuggestResult{Suggestions: []Suggestion{}}
	for i, o := range outcomes {
		switch {
		case o.err != nil:
			e.logger.Warn("deadline suggestion failed", "task_id", tasks[i].ID, "error", o.err)
			res.Failures = append(res.Failures, core.ItemFailure{ID: tasks[i].ID, Reason: o.err.Error()})
		case o.suggestion != nil:
			res.Updated++
			res.Suggestions = append(res.Suggestions, *o.suggestion)
		}
	}
	e.logger.Info("deadlines suggested", "updated", res.Updated, "failed", len(res.Failures))
	return res, nil
}
