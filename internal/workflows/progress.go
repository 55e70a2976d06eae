package workflows

import (
	"time"

	"github.com/google/uuid"
)

// StepRef identifies a step and when it is next eligible.
type StepRef struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	ScheduledAt time.Time `json:"scheduled_at"`
	DueAt       time.Time `json:"due_at"`
}

// Progress summarises a workflow's steps from a single snapshot.
type Progress struct {
	WorkflowID uuid.UUID `json:"workflow_id"`
	SubjectID  string    `json:"subject_id"`
	Status     Status    `json:"status"`
	Priority   int       `json:"priority"`
	Total      int       `json:"total"`
	Pending    int       `json:"pending"`
	Active     int       `json:"active"`
	Completed  int       `json:"completed"`
	Cancelled  int       `json:"cancelled"`
	Retrying   int       `json:"retrying"`
	NextDue    *StepRef  `json:"next_due,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Progress computes step counts and the earliest pending step.
// Ties on scheduled time resolve to plan order.
func (w *Workflow) Progress() Progress {
	p := Progress{
		WorkflowID: w.ID,
		SubjectID:  w.SubjectID,
		Status:     w.Status,
		Priority:   w.Priority,
		Total:      len(w.Steps),
		UpdatedAt:  w.UpdatedAt,
	}

	for i := range w.Steps {
		s := &w.Steps[i]
		switch s.Status {
		case StepPending:
			p.Pending++
			if s.RetryCount > 0 {
				p.Retrying++
			}
			if p.NextDue == nil || s.ScheduledAt.Before(p.NextDue.ScheduledAt) {
				p.NextDue = &StepRef{
					ID:          s.ID,
					Kind:        s.Kind,
					ScheduledAt: s.ScheduledAt,
					DueAt:       s.DueAt,
				}
			}
		case StepActive:
			p.Active++
		case StepCompleted:
			p.Completed++
		case StepCancelled:
			p.Cancelled++
		}
	}

	return p
}
