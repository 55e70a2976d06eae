package evaluator

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JaimeStill/renewal/internal/workflows"
)

// Condition names understood by the default registry.
const (
	LowSuccessProbability    = "lowSuccessProbability"
	QualityRiskFlagged       = "qualityRiskFlagged"
	NoResponseReceived       = "noResponseReceived"
	WorkflowNotCompleted     = "workflowNotCompleted"
	SubjectInterestConfirmed = "subjectInterestConfirmed"
	NotRenewedYet            = "notRenewedYet"
	DocumentsNotSigned       = "documentsNotSigned"
)

// LowProbabilityThreshold is the success probability at or below which
// engagement surveys are sent.
const LowProbabilityThreshold = 0.7

// Snapshot is the read-only view a predicate is evaluated against.
type Snapshot struct {
	Workflow *workflows.Workflow
	Now      time.Time
}

// Predicate is a named, side-effect free condition.
type Predicate func(Snapshot) bool

// Registry resolves condition names to predicates. It is safe for
// concurrent use; hosts register custom predicates before the engine starts.
type Registry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{predicates: make(map[string]Predicate)}
}

// DefaultRegistry creates a registry holding the renewal conditions.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(LowSuccessProbability, func(s Snapshot) bool {
		return s.Workflow.SuccessProbability <= LowProbabilityThreshold
	})
	r.Register(QualityRiskFlagged, func(s Snapshot) bool {
		return s.Workflow.HasRiskFlag(workflows.FlagLowQualityProperty)
	})
	r.Register(NoResponseReceived, func(s Snapshot) bool {
		return !s.Workflow.HasSignal(workflows.SignalResponseReceived)
	})
	r.Register(WorkflowNotCompleted, func(s Snapshot) bool {
		return !s.Workflow.Status.Terminal()
	})
	r.Register(SubjectInterestConfirmed, func(s Snapshot) bool {
		return s.Workflow.HasSignal(workflows.SignalInterestConfirmed) &&
			!s.Workflow.HasSignal(workflows.SignalInterestDeclined)
	})
	r.Register(NotRenewedYet, func(s Snapshot) bool {
		return !s.Workflow.HasSignal(workflows.SignalRenewed)
	})
	r.Register(DocumentsNotSigned, func(s Snapshot) bool {
		return !s.Workflow.HasSignal(workflows.SignalDocumentsSigned)
	})

	return r
}

// Register adds or replaces the predicate for name.
func (r *Registry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[name] = p
}

// Lookup returns the predicate registered for name.
func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.predicates[name]
	return p, ok
}

// Names returns the registered condition names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.predicates))
	for name := range r.predicates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate returns ErrUnknownCondition naming the first unregistered condition.
func (r *Registry) Validate(names []string) error {
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCondition, name)
		}
	}
	return nil
}
