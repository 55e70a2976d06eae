// Package planner turns a renewal prediction into an ordered, time-phased
// workflow plan using a static template library.
package planner

import "errors"

// Sentinel errors for plan generation. Both are configuration errors and are
// returned synchronously to the caller creating the workflow.
var (
	ErrMissingTemplate = errors.New("missing workflow template")
	ErrInvalidTemplate = errors.New("invalid workflow template")
)
