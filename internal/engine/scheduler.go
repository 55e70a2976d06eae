package engine

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/JaimeStill/renewal/internal/evaluator"
	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/lifecycle"
)

// errStale aborts an update whose precondition no longer holds.
var errStale = errors.New("stale")

type candidate struct {
	workflowID  uuid.UUID
	stepID      string
	index       int
	priority    int
	scheduledAt time.Time
}

func compareCandidates(a, b candidate) int {
	if c := cmp.Compare(b.priority, a.priority); c != 0 {
		return c
	}
	if c := a.scheduledAt.Compare(b.scheduledAt); c != 0 {
		return c
	}
	if c := bytes.Compare(a.workflowID[:], b.workflowID[:]); c != 0 {
		return c
	}
	return cmp.Compare(a.index, b.index)
}

// Tick runs one scheduling pass: expiry and re-scoring, then evaluation of
// every due step and submission of the ready ones in priority order until
// the worker pool is full. Executions continue after Tick returns.
func (e *Engine) Tick(ctx context.Context) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := time.Now()
	defer func() {
		e.metrics.ticks.Inc()
		e.metrics.tickDuration.Observe(time.Since(start).Seconds())
	}()

	now := e.clock.Now()

	if n, err := e.Expire(ctx, now); err != nil {
		return fmt.Errorf("expire: %w", err)
	} else if n > 0 {
		e.logger.InfoContext(ctx, "workflows expired", "count", n)
	}

	if _, err := e.Rescore(ctx, now); err != nil {
		return fmt.Errorf("rescore: %w", err)
	}

	open, err := e.store.Open(ctx)
	if err != nil {
		return fmt.Errorf("load open workflows: %w", err)
	}
	e.metrics.open.Set(float64(len(open)))

	candidates := e.collect(ctx, open, now)

	submitted := 0
	for i, c := range candidates {
		if !e.sem.TryAcquire(1) {
			e.logger.InfoContext(ctx, "worker pool saturated", "deferred", len(candidates)-i)
			break
		}

		w, s, err := e.claim(ctx, c.workflowID, c.stepID, now, false)
		if err != nil {
			e.sem.Release(1)
			if !expectedClaimError(err) {
				e.logger.WarnContext(ctx, "step claim failed",
					"workflow_id", c.workflowID,
					"step_id", c.stepID,
					"error", err,
				)
			}
			continue
		}

		e.submit(ctx, w, s)
		submitted++
	}

	e.logger.DebugContext(ctx, "tick complete",
		"open", len(open),
		"candidates", len(candidates),
		"submitted", submitted,
	)
	return nil
}

func (e *Engine) collect(ctx context.Context, open []*workflows.Workflow, now time.Time) []candidate {
	var out []candidate

	for _, w := range open {
		if !w.Dispatchable() {
			continue
		}

		snap := evaluator.Snapshot{Workflow: w, Now: now}
		for i := range w.Steps {
			s := &w.Steps[i]
			if !s.Due(now) {
				continue
			}

			r, err := e.evaluator.IsReady(snap, s)
			if err != nil {
				e.logger.WarnContext(ctx, "step condition unresolved",
					"workflow_id", w.ID,
					"step_id", s.ID,
					"error", err,
				)
			}
			if r != evaluator.Ready {
				continue
			}

			out = append(out, candidate{
				workflowID:  w.ID,
				stepID:      s.ID,
				index:       i,
				priority:    w.Priority,
				scheduledAt: s.ScheduledAt,
			})
		}
	}

	slices.SortFunc(out, compareCandidates)
	return out
}

// claim moves a step from pending to active under the workflow's
// serialization. Readiness is re-checked against the latest state, so at
// most one claim for a step can succeed. force ignores the scheduled instant.
func (e *Engine) claim(
	ctx context.Context,
	id uuid.UUID,
	stepID string,
	now time.Time,
	force bool,
) (*workflows.Workflow, *workflows.Step, error) {
	w, err := e.store.Update(ctx, id, func(w *workflows.Workflow) error {
		if !w.Dispatchable() {
			return fmt.Errorf("%w: workflow is %s", workflows.ErrInvalidTransition, w.Status)
		}

		s := w.Step(stepID)
		if s == nil {
			return fmt.Errorf("%w: %s", workflows.ErrStepNotFound, stepID)
		}
		if s.Status != workflows.StepPending {
			return fmt.Errorf("%w: step %s is %s", workflows.ErrStepNotReady, stepID, s.Status)
		}
		if !force && s.ScheduledAt.After(now) {
			return fmt.Errorf("%w: step %s scheduled for %s", workflows.ErrStepNotReady, stepID, s.ScheduledAt.Format(time.RFC3339))
		}

		r, err := e.evaluator.IsReady(evaluator.Snapshot{Workflow: w, Now: now}, s)
		if err != nil {
			return fmt.Errorf("%w: %w", workflows.ErrStepNotReady, err)
		}
		if r != evaluator.Ready {
			return fmt.Errorf("%w: step %s is %s", workflows.ErrStepNotReady, stepID, r)
		}

		if err := w.Activate(now); err != nil {
			return err
		}

		s.Status = workflows.StepActive
		s.StartedAt = &now
		w.UpdatedAt = now
		return nil
	})
	if err != nil {
		if errors.Is(err, workflows.ErrTerminal) {
			return nil, nil, fmt.Errorf("%w: %w", workflows.ErrInvalidTransition, err)
		}
		return nil, nil, err
	}

	return w, w.Step(stepID), nil
}

func expectedClaimError(err error) bool {
	return errors.Is(err, workflows.ErrStepNotReady) ||
		errors.Is(err, workflows.ErrInvalidTransition) ||
		errors.Is(err, workflows.ErrNotFound)
}

// submit runs a claimed step on its own goroutine. The caller holds a
// semaphore slot that is released when the result has been applied.
func (e *Engine) submit(ctx context.Context, w *workflows.Workflow, s *workflows.Step) {
	e.metrics.dispatched.WithLabelValues(string(s.Kind)).Inc()
	e.metrics.inFlight.Inc()
	e.inflight.Add(1)

	go func() {
		defer e.inflight.Done()
		defer e.sem.Release(1)
		defer e.metrics.inFlight.Dec()

		e.execute(context.WithoutCancel(ctx), w, s)
	}()
}

func (e *Engine) execute(ctx context.Context, w *workflows.Workflow, s *workflows.Step) Outcome {
	ctx, cancel := context.WithTimeout(ctx, e.stepTimeout())
	defer cancel()

	e.logger.InfoContext(ctx, "step dispatched",
		"workflow_id", w.ID,
		"step_id", s.ID,
		"kind", s.Kind,
		"attempt", s.RetryCount+1,
	)

	r := e.executor.Execute(ctx, w, s)
	return e.apply(ctx, w.ID, s, r)
}

func (e *Engine) apply(ctx context.Context, id uuid.UUID, s *workflows.Step, r Result) Outcome {
	now := e.clock.Now()

	var outcome Outcome
	var updated *workflows.Step
	w, err := e.store.Update(ctx, id, func(w *workflows.Workflow) error {
		o, err := Apply(w, s.ID, r, now)
		if err != nil {
			return err
		}
		if o == OutcomeDiscarded {
			return errStale
		}
		outcome = o
		return nil
	})

	switch {
	case err == nil:
		updated = w.Step(s.ID)
	case errors.Is(err, errStale), errors.Is(err, workflows.ErrTerminal):
		outcome = OutcomeDiscarded
	default:
		outcome = OutcomeDiscarded
		e.logger.ErrorContext(ctx, "apply step result failed",
			"workflow_id", id,
			"step_id", s.ID,
			"error", err,
		)
	}

	e.metrics.executions.WithLabelValues(string(s.Kind), outcome.String()).Inc()

	attrs := []any{"workflow_id", id, "step_id", s.ID, "kind", s.Kind, "outcome", outcome.String()}
	switch outcome {
	case OutcomeCompleted:
		e.logger.InfoContext(ctx, "step completed", attrs...)
	case OutcomeRetrying:
		e.logger.WarnContext(ctx, "step failed, retrying",
			append(attrs,
				"retry_count", updated.RetryCount,
				"scheduled_at", updated.ScheduledAt,
				"error", r.Err,
			)...,
		)
	case OutcomeFailed:
		e.logger.ErrorContext(ctx, "step failed permanently",
			append(attrs, "retry_count", updated.RetryCount, "error", r.Err)...,
		)
	default:
		e.logger.InfoContext(ctx, "step result discarded", attrs...)
	}

	return outcome
}

// ForceExecute runs a pending step immediately, ignoring its scheduled
// instant. Dependencies and conditions still apply. The updated workflow
// is returned after the result has been applied.
func (e *Engine) ForceExecute(ctx context.Context, id uuid.UUID, stepID string) (*workflows.Workflow, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	w, s, err := e.claim(ctx, id, stepID, e.clock.Now(), true)
	if err != nil {
		e.sem.Release(1)
		return nil, err
	}

	e.metrics.dispatched.WithLabelValues(string(s.Kind)).Inc()
	e.metrics.inFlight.Inc()
	e.inflight.Add(1)

	func() {
		defer e.inflight.Done()
		defer e.sem.Release(1)
		defer e.metrics.inFlight.Dec()

		e.execute(context.WithoutCancel(ctx), w, s)
	}()

	e.logger.InfoContext(ctx, "step force executed", "workflow_id", id, "step_id", stepID)
	return e.store.Find(ctx, id)
}

// Recover returns steps left active by an interrupted process to pending so
// they are dispatched again. It returns the number of steps reset.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	open, err := e.store.Open(ctx)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now()
	total := 0

	for _, w := range open {
		if !hasActiveStep(w) {
			continue
		}

		n := 0
		_, err := e.store.Update(ctx, w.ID, func(w *workflows.Workflow) error {
			n = 0
			for i := range w.Steps {
				s := &w.Steps[i]
				if s.Status != workflows.StepActive {
					continue
				}
				s.Status = workflows.StepPending
				s.StartedAt = nil
				n++
			}
			if n == 0 {
				return errStale
			}
			w.UpdatedAt = now
			return nil
		})
		if err != nil {
			if errors.Is(err, errStale) || errors.Is(err, workflows.ErrTerminal) {
				continue
			}
			return total, fmt.Errorf("recover workflow %s: %w", w.ID, err)
		}

		total += n
		e.logger.InfoContext(ctx, "orphaned steps recovered", "workflow_id", w.ID, "count", n)
	}

	return total, nil
}

func hasActiveStep(w *workflows.Workflow) bool {
	return slices.ContainsFunc(w.Steps, func(s workflows.Step) bool {
		return s.Status == workflows.StepActive
	})
}

// Start schedules Tick on the configured interval once all startup hooks
// have completed, after recovering orphaned steps. A tick that is still
// running when the next one is due causes that one to be skipped.
// On shutdown the schedule stops and in-flight executions are drained.
func (e *Engine) Start(lc *lifecycle.Coordinator) error {
	e.logger.Info("starting scheduler",
		"interval", e.cfg.TickInterval,
		"workers", e.cfg.Workers,
	)

	logger := cronLogger{logger: e.logger}
	e.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)

	_, err := e.cron.AddFunc("@every "+e.cfg.TickInterval, func() {
		if err := e.Tick(lc.Context()); err != nil {
			e.logger.Error("tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}

	go func() {
		if err := lc.WaitForStartup(); err != nil {
			e.logger.Error("scheduler not started", "error", err)
			return
		}
		if lc.Context().Err() != nil {
			return
		}

		n, err := e.Recover(lc.Context())
		if err != nil {
			e.logger.Error("step recovery failed", "error", err)
		} else if n > 0 {
			e.logger.Info("recovered orphaned steps", "count", n)
		}

		e.cron.Start()
		e.logger.Info("scheduler started")
	}()

	lc.OnShutdown("scheduler", func(ctx context.Context) error {
		e.logger.Info("stopping scheduler")

		select {
		case <-e.cron.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		e.Drain()

		e.logger.Info("scheduler stopped")
		return nil
	})

	return nil
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
