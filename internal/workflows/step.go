package workflows

import (
	"maps"
	"slices"
	"time"
)

// DefaultMaxRetries is the number of failed attempts after which a step is cancelled.
const DefaultMaxRetries = 3

// Kind is the closed set of step types the engine can execute.
type Kind string

// Step kinds.
const (
	KindNotifyEmail        Kind = "notify_email"
	KindNotifySMS          Kind = "notify_sms"
	KindGenerateDocument   Kind = "generate_document"
	KindRequestSignature   Kind = "request_signature"
	KindSendSurvey         Kind = "send_survey"
	KindScheduleInspection Kind = "schedule_inspection"
	KindRunAnalysis        Kind = "run_analysis"
	KindRequestReview      Kind = "request_review"
	KindAutomatedDecision  Kind = "automated_decision"
)

// Kinds lists every step kind.
var Kinds = []Kind{
	KindNotifyEmail,
	KindNotifySMS,
	KindGenerateDocument,
	KindRequestSignature,
	KindSendSurvey,
	KindScheduleInspection,
	KindRunAnalysis,
	KindRequestReview,
	KindAutomatedDecision,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds, k)
}

// StepStatus is the step-local state, independent of the workflow status.
type StepStatus string

// Step statuses. Active means dispatched and in flight.
const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepCancelled StepStatus = "cancelled"
)

// Terminal reports whether the step can no longer change.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepCancelled
}

// Step is one independently schedulable unit of work.
// DueAt is the planned instant and never moves; ScheduledAt is the next
// instant the step is eligible and only moves forward through retry backoff.
type Step struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Status       StepStatus     `json:"status"`
	DueAt        time.Time      `json:"due_at"`
	ScheduledAt  time.Time      `json:"scheduled_at"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Conditions   []string       `json:"conditions,omitempty"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	LastError    string         `json:"last_error,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Clone returns a copy of the step with independent slices and maps.
func (s Step) Clone() Step {
	s.Parameters = maps.Clone(s.Parameters)
	s.Output = maps.Clone(s.Output)
	s.Dependencies = slices.Clone(s.Dependencies)
	s.Conditions = slices.Clone(s.Conditions)
	s.StartedAt = clonePtr(s.StartedAt)
	s.CompletedAt = clonePtr(s.CompletedAt)
	return s
}

// Due reports whether the step is pending and its scheduled instant has passed.
func (s *Step) Due(now time.Time) bool {
	return s.Status == StepPending && !s.ScheduledAt.After(now)
}
