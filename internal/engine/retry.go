package engine

import (
	"fmt"
	"time"

	"github.com/JaimeStill/renewal/internal/workflows"
)

// Backoff bounds.
const (
	BaseBackoff = 60 * time.Second
	MaxBackoff  = time.Hour
)

// Backoff returns the delay before the next attempt of a step that has
// failed retryCount times: min(BaseBackoff * 2^retryCount, MaxBackoff).
func Backoff(retryCount int) time.Duration {
	d := BaseBackoff
	for range max(retryCount, 0) {
		d *= 2
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	return d
}

// Result is the outcome of one step execution.
type Result struct {
	Output map[string]any
	Err    error
}

// Outcome describes how Apply changed a step.
type Outcome int

const (
	// OutcomeDiscarded means the result arrived for a step that was no longer
	// in flight, or for a terminal workflow, and was dropped.
	OutcomeDiscarded Outcome = iota
	// OutcomeCompleted means the step completed.
	OutcomeCompleted
	// OutcomeRetrying means the step failed and was rescheduled.
	OutcomeRetrying
	// OutcomeFailed means the step exhausted its retries and was cancelled.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeRetrying:
		return "retrying"
	case OutcomeFailed:
		return "failed"
	}
	return "discarded"
}

// Apply folds an execution result into w. It performs no I/O and is the
// only place step results change workflow state.
func Apply(w *workflows.Workflow, stepID string, r Result, now time.Time) (Outcome, error) {
	if w.Status.Terminal() {
		return OutcomeDiscarded, nil
	}

	s := w.Step(stepID)
	if s == nil {
		return OutcomeDiscarded, fmt.Errorf("%w: %s", workflows.ErrStepNotFound, stepID)
	}
	if s.Status != workflows.StepActive {
		return OutcomeDiscarded, nil
	}

	w.UpdatedAt = now

	if r.Err == nil {
		s.Status = workflows.StepCompleted
		s.Output = r.Output
		s.LastError = ""
		s.CompletedAt = &now
		return OutcomeCompleted, nil
	}

	s.RetryCount++
	if s.RetryCount < s.MaxRetries {
		s.Status = workflows.StepPending
		s.ScheduledAt = now.Add(Backoff(s.RetryCount))
		s.LastError = r.Err.Error()
		return OutcomeRetrying, nil
	}

	s.Status = workflows.StepCancelled
	s.LastError = fmt.Errorf("%w after %d attempts: %w", ErrPermanentStepFailure, s.RetryCount, r.Err).Error()
	s.CompletedAt = &now
	return OutcomeFailed, nil
}
