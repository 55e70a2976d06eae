package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JaimeStill/renewal/internal/planner"
	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/pagination"
)

// CreateCommand requests a workflow for one subject.
type CreateCommand struct {
	SubjectID              string               `json:"subject_id"`
	Deadline               time.Time            `json:"deadline"`
	Prediction             workflows.Prediction `json:"prediction"`
	RelatedEntityIDs       map[string]string    `json:"related_entity_ids,omitempty"`
	PersonalizationContext map[string]any       `json:"personalization_context,omitempty"`
}

// CreateWorkflow plans and registers a workflow for cmd.SubjectID. An open
// workflow for the same subject is cancelled first.
func (e *Engine) CreateWorkflow(ctx context.Context, cmd CreateCommand) (*workflows.Workflow, error) {
	now := e.clock.Now()

	w, err := e.planner.Generate(planner.Request{
		SubjectID:              cmd.SubjectID,
		Deadline:               cmd.Deadline,
		Prediction:             cmd.Prediction,
		RelatedEntityIDs:       cmd.RelatedEntityIDs,
		PersonalizationContext: cmd.PersonalizationContext,
		Now:                    now,
	})
	if err != nil {
		return nil, err
	}

	if err := e.supersede(ctx, cmd.SubjectID, w.ID); err != nil {
		return nil, err
	}

	if err := e.store.Create(ctx, w); err != nil {
		return nil, err
	}

	e.metrics.transitions.WithLabelValues(string(w.Status)).Inc()
	e.logger.InfoContext(ctx, "workflow created",
		"workflow_id", w.ID,
		"subject_id", w.SubjectID,
		"class", w.Class.String(),
		"priority", w.Priority,
		"steps", len(w.Steps),
	)

	return w, nil
}

func (e *Engine) supersede(ctx context.Context, subjectID string, by uuid.UUID) error {
	prior, err := e.store.FindOpen(ctx, subjectID)
	if errors.Is(err, workflows.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = e.transition(ctx, prior.ID, func(w *workflows.Workflow, now time.Time) error {
		return w.Cancel(now)
	})
	if err != nil && !errors.Is(err, workflows.ErrInvalidTransition) {
		return fmt.Errorf("supersede workflow %s: %w", prior.ID, err)
	}

	e.logger.InfoContext(ctx, "workflow superseded",
		"workflow_id", prior.ID,
		"subject_id", subjectID,
		"superseded_by", by,
	)
	return nil
}

// Find returns a workflow snapshot by id.
func (e *Engine) Find(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	return e.store.Find(ctx, id)
}

// List returns a page of workflows ordered by priority.
func (e *Engine) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters workflows.Filters,
) (*pagination.PageResult[workflows.Workflow], error) {
	return e.store.List(ctx, page, filters)
}

// Status reports step progress from one consistent snapshot.
func (e *Engine) Status(ctx context.Context, id uuid.UUID) (*workflows.Progress, error) {
	w, err := e.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	p := w.Progress()
	return &p, nil
}

// Pause suspends dispatch for an active workflow.
func (e *Engine) Pause(ctx context.Context, id uuid.UUID, reason string) (*workflows.Workflow, error) {
	return e.transition(ctx, id, func(w *workflows.Workflow, now time.Time) error {
		return w.Pause(reason, now)
	})
}

// Resume returns a paused workflow to active.
func (e *Engine) Resume(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	return e.transition(ctx, id, func(w *workflows.Workflow, now time.Time) error {
		return w.Resume(now)
	})
}

// Cancel terminates a workflow and every open step. Results of steps still
// in flight are discarded when they arrive.
func (e *Engine) Cancel(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	return e.transition(ctx, id, func(w *workflows.Workflow, now time.Time) error {
		return w.Cancel(now)
	})
}

// MarkCompleted records that the host considers the renewal done.
func (e *Engine) MarkCompleted(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	return e.transition(ctx, id, func(w *workflows.Workflow, now time.Time) error {
		return w.Complete(now)
	})
}

// RecordSignal stores a behavioural signal that conditions read on later ticks.
func (e *Engine) RecordSignal(ctx context.Context, id uuid.UUID, signal workflows.Signal) (*workflows.Workflow, error) {
	if !signal.Valid() {
		return nil, fmt.Errorf("%w: unknown signal %q", workflows.ErrInvalidCommand, signal)
	}
	return e.transition(ctx, id, func(w *workflows.Workflow, now time.Time) error {
		w.RecordSignal(signal, now)
		return nil
	})
}

// Expire moves every open workflow older than the configured maximum
// duration to expired and returns how many were expired.
func (e *Engine) Expire(ctx context.Context, now time.Time) (int, error) {
	maxAge := e.cfg.MaxDurationValue()
	if maxAge <= 0 {
		return 0, nil
	}

	return e.sweep(ctx, func(w *workflows.Workflow) bool {
		return w.Expired(now, maxAge)
	}, func(w *workflows.Workflow, _ time.Time) error {
		if !w.Expired(now, maxAge) {
			return errStale
		}
		return w.Expire(now)
	})
}

// Rescore raises the priority of open workflows as their deadlines approach
// and returns how many changed.
func (e *Engine) Rescore(ctx context.Context, now time.Time) (int, error) {
	return e.sweep(ctx, func(w *workflows.Workflow) bool {
		return planner.Rescore(w, now) != w.Priority
	}, func(w *workflows.Workflow, _ time.Time) error {
		p := planner.Rescore(w, now)
		if p == w.Priority {
			return errStale
		}
		w.Priority = p
		w.UpdatedAt = now
		return nil
	})
}

// sweep applies fn to every open workflow selected by match, in parallel up
// to the worker count.
func (e *Engine) sweep(
	ctx context.Context,
	match func(*workflows.Workflow) bool,
	fn func(*workflows.Workflow, time.Time) error,
) (int, error) {
	open, err := e.store.Open(ctx)
	if err != nil {
		return 0, err
	}

	results := make([]bool, len(open))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, w := range open {
		if !match(w) {
			continue
		}
		g.Go(func() error {
			_, err := e.transition(ctx, w.ID, fn)
			switch {
			case err == nil:
				results[i] = true
			case errors.Is(err, errStale), errors.Is(err, workflows.ErrInvalidTransition):
			default:
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n, nil
}

// transition runs fn under the workflow's serialization, records status
// changes, and archives workflows that reached a terminal state.
func (e *Engine) transition(
	ctx context.Context,
	id uuid.UUID,
	fn func(w *workflows.Workflow, now time.Time) error,
) (*workflows.Workflow, error) {
	now := e.clock.Now()

	var from workflows.Status
	w, err := e.store.Update(ctx, id, func(w *workflows.Workflow) error {
		from = w.Status
		return fn(w, now)
	})
	if err != nil {
		if errors.Is(err, workflows.ErrTerminal) {
			return nil, fmt.Errorf("%w: %w", workflows.ErrInvalidTransition, err)
		}
		return nil, err
	}

	if w.Status != from {
		e.metrics.transitions.WithLabelValues(string(w.Status)).Inc()
		e.logger.InfoContext(ctx, "workflow transitioned",
			"workflow_id", w.ID,
			"from", from,
			"to", w.Status,
		)
	}

	if w.Status.Terminal() {
		e.archive(ctx, w)
	}

	return w, nil
}

func (e *Engine) archive(ctx context.Context, w *workflows.Workflow) {
	if err := e.archiver.Archive(context.WithoutCancel(ctx), w); err != nil {
		e.logger.WarnContext(ctx, "workflow archive failed",
			"workflow_id", w.ID,
			"error", err,
		)
	}
}
