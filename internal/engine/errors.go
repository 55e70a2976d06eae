package engine

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/renewal/internal/evaluator"
	"github.com/JaimeStill/renewal/internal/planner"
	"github.com/JaimeStill/renewal/internal/workflows"
)

var (
	// ErrTransientStepFailure wraps a collaborator error that will be retried.
	ErrTransientStepFailure = errors.New("transient step failure")
	// ErrPermanentStepFailure marks a step cancelled after exhausting its retries.
	ErrPermanentStepFailure = errors.New("permanent step failure")
	// ErrMissingParameter indicates a step lacks a parameter its handler requires.
	ErrMissingParameter = errors.New("missing step parameter")
	// ErrUndelivered indicates a notification was accepted but not delivered.
	ErrUndelivered = errors.New("notification not delivered")
)

// MapHTTPStatus maps engine and workflow errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, planner.ErrMissingTemplate),
		errors.Is(err, planner.ErrInvalidTemplate),
		errors.Is(err, evaluator.ErrUnknownCondition):
		return http.StatusInternalServerError
	case errors.Is(err, ErrTransientStepFailure), errors.Is(err, ErrPermanentStepFailure):
		return http.StatusBadGateway
	}
	return workflows.MapHTTPStatus(err)
}
