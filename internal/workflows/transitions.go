package workflows

import (
	"fmt"
	"time"
)

// Activate moves a pending workflow to active. Active workflows are left unchanged.
func (w *Workflow) Activate(now time.Time) error {
	switch w.Status {
	case StatusActive:
		return nil
	case StatusPending:
		w.Status = StatusActive
		w.UpdatedAt = now
		return nil
	}
	return invalidTransition(w.Status, StatusActive)
}

// Pause suspends dispatch of an active workflow. Pending steps keep their
// schedule and are re-evaluated after Resume.
func (w *Workflow) Pause(reason string, now time.Time) error {
	if w.Status != StatusActive {
		return invalidTransition(w.Status, StatusPaused)
	}
	w.Status = StatusPaused
	w.PauseReason = reason
	w.UpdatedAt = now
	return nil
}

// Resume returns a paused workflow to active.
func (w *Workflow) Resume(now time.Time) error {
	if w.Status != StatusPaused {
		return invalidTransition(w.Status, StatusActive)
	}
	w.Status = StatusActive
	w.PauseReason = ""
	w.UpdatedAt = now
	return nil
}

// Cancel terminates the workflow and cancels every non-terminal step,
// including steps currently in flight.
func (w *Workflow) Cancel(now time.Time) error {
	return w.finish(StatusCancelled, now)
}

// Complete marks the workflow completed as declared by the host. Remaining
// open steps are cancelled.
func (w *Workflow) Complete(now time.Time) error {
	return w.finish(StatusCompleted, now)
}

// Expire terminates a workflow that outlived its maximum duration.
func (w *Workflow) Expire(now time.Time) error {
	return w.finish(StatusExpired, now)
}

// Expired reports whether the workflow is older than maxAge at now.
func (w *Workflow) Expired(now time.Time, maxAge time.Duration) bool {
	return maxAge > 0 && now.Sub(w.CreatedAt) > maxAge
}

func (w *Workflow) finish(to Status, now time.Time) error {
	if w.Status.Terminal() {
		return invalidTransition(w.Status, to)
	}

	for i := range w.Steps {
		s := &w.Steps[i]
		if s.Status.Terminal() {
			continue
		}
		s.Status = StepCancelled
		if s.LastError == "" {
			s.LastError = fmt.Sprintf("workflow %s", to)
		}
	}

	w.Status = to
	w.UpdatedAt = now
	w.CompletedAt = &now
	return nil
}

func invalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
