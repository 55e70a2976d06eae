// Package evaluator decides whether a workflow step may run now, based on
// its dependency edges and its named conditions.
package evaluator

import (
	"errors"
	"fmt"

	"github.com/JaimeStill/renewal/internal/workflows"
)

// ErrUnknownCondition indicates a step references a condition name that is
// not registered.
var ErrUnknownCondition = errors.New("unknown condition")

// Readiness is the evaluation outcome for a step.
type Readiness int

const (
	// Ready steps may be dispatched.
	Ready Readiness = iota
	// Blocked steps wait on a dependency that has not completed.
	Blocked
	// Skip steps have a false condition this tick. Skip is not permanent.
	Skip
)

func (r Readiness) String() string {
	switch r {
	case Ready:
		return "ready"
	case Blocked:
		return "blocked"
	case Skip:
		return "skip"
	}
	return "unknown"
}

// Evaluator resolves readiness against a condition registry.
type Evaluator struct {
	registry *Registry
}

// New creates an Evaluator backed by registry.
func New(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Registry returns the registry conditions are resolved against.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// IsReady evaluates step within the snapshot's workflow. Dependencies are
// checked before conditions, so a blocked step never has its conditions
// consulted. An unknown condition yields Skip together with an error
// wrapping ErrUnknownCondition; callers log it and carry on.
func (e *Evaluator) IsReady(s Snapshot, step *workflows.Step) (Readiness, error) {
	for _, dep := range step.Dependencies {
		d := s.Workflow.Step(dep)
		if d == nil || d.Status != workflows.StepCompleted {
			return Blocked, nil
		}
	}

	for _, name := range step.Conditions {
		p, ok := e.registry.Lookup(name)
		if !ok {
			return Skip, fmt.Errorf("%w: step %s references %q", ErrUnknownCondition, step.ID, name)
		}
		if !p(s) {
			return Skip, nil
		}
	}

	return Ready, nil
}
