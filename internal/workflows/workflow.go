// Package workflows implements the renewal workflow aggregate: its types,
// state machine, progress reporting, and the stores that hold open workflows
// and their history.
package workflows

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a workflow.
type Status string

// Workflow statuses. Completed, Cancelled and Expired are terminal.
const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal reports whether s is an absorbing state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusPaused, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Class identifies the renewal template chosen from the predicted success
// probability. It is fixed at creation.
type Class int

// Workflow classes, ordered from most to least likely to renew.
const (
	ClassHighConfidence Class = iota + 1
	ClassModerate
	ClassAtRisk
	ClassCritical
)

func (c Class) String() string {
	switch c {
	case ClassHighConfidence:
		return "high_confidence"
	case ClassModerate:
		return "moderate"
	case ClassAtRisk:
		return "at_risk"
	case ClassCritical:
		return "critical"
	}
	return "unknown"
}

// Signal is a behavioural fact about the subject recorded by the host
// application, such as a reply to a renewal notice.
type Signal string

// Signals read by the default condition registry.
const (
	SignalResponseReceived  Signal = "response_received"
	SignalInterestConfirmed Signal = "interest_confirmed"
	SignalInterestDeclined  Signal = "interest_declined"
	SignalRenewed           Signal = "renewed"
	SignalDocumentsSigned   Signal = "documents_signed"
)

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool {
	switch s {
	case SignalResponseReceived, SignalInterestConfirmed, SignalInterestDeclined, SignalRenewed, SignalDocumentsSigned:
		return true
	}
	return false
}

// Risk flags with planning significance.
const (
	FlagLowQualityProperty = "low_quality_property"
)

// Prediction is the externally computed renewal outlook for a subject.
type Prediction struct {
	SuccessProbability float64        `json:"success_probability"`
	RiskFlags          []string       `json:"risk_flags,omitempty"`
	RecommendedTerms   map[string]any `json:"recommended_terms,omitempty"`
}

// Workflow is the aggregate root for one subject's renewal engagement.
// It owns its steps exclusively.
type Workflow struct {
	ID                     uuid.UUID            `json:"id"`
	SubjectID              string               `json:"subject_id"`
	RelatedEntityIDs       map[string]string    `json:"related_entity_ids,omitempty"`
	Class                  Class                `json:"class"`
	Status                 Status               `json:"status"`
	Priority               int                  `json:"priority"`
	SuccessProbability     float64              `json:"success_probability"`
	RiskFlags              []string             `json:"risk_flags,omitempty"`
	MonetaryValue          float64              `json:"monetary_value"`
	Deadline               time.Time            `json:"deadline"`
	PersonalizationContext map[string]any       `json:"personalization_context,omitempty"`
	Signals                map[Signal]time.Time `json:"signals,omitempty"`
	PauseReason            string               `json:"pause_reason,omitempty"`
	Steps                  []Step               `json:"steps"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
	CompletedAt            *time.Time           `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the workflow. Opaque parameter and context
// values are copied by reference.
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.RelatedEntityIDs = maps.Clone(w.RelatedEntityIDs)
	c.RiskFlags = slices.Clone(w.RiskFlags)
	c.PersonalizationContext = maps.Clone(w.PersonalizationContext)
	c.Signals = maps.Clone(w.Signals)
	c.CompletedAt = clonePtr(w.CompletedAt)

	c.Steps = make([]Step, len(w.Steps))
	for i := range w.Steps {
		c.Steps[i] = w.Steps[i].Clone()
	}
	return &c
}

// Step returns a pointer to the step with the given id, or nil.
func (w *Workflow) Step(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}

// Dispatchable reports whether the scheduler may start steps of w.
func (w *Workflow) Dispatchable() bool {
	return w.Status == StatusPending || w.Status == StatusActive
}

// HasSignal reports whether the host has recorded s for this workflow.
func (w *Workflow) HasSignal(s Signal) bool {
	_, ok := w.Signals[s]
	return ok
}

// HasRiskFlag reports whether the prediction carried flag.
func (w *Workflow) HasRiskFlag(flag string) bool {
	return slices.Contains(w.RiskFlags, flag)
}

// RecordSignal stores s at the given instant. The first observation wins.
func (w *Workflow) RecordSignal(s Signal, at time.Time) {
	if w.Signals == nil {
		w.Signals = make(map[Signal]time.Time)
	}
	if _, ok := w.Signals[s]; ok {
		return
	}
	w.Signals[s] = at
	w.UpdatedAt = at
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
