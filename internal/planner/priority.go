package planner

import (
	"time"

	"github.com/JaimeStill/renewal/internal/workflows"
)

const (
	basePriority = 5
	minPriority  = 1
	maxPriority  = 10

	day = 24 * time.Hour
)

// ClassFor maps a success probability onto a workflow class.
func ClassFor(probability float64) workflows.Class {
	switch {
	case probability >= 0.8:
		return workflows.ClassHighConfidence
	case probability >= 0.6:
		return workflows.ClassModerate
	case probability >= 0.4:
		return workflows.ClassAtRisk
	default:
		return workflows.ClassCritical
	}
}

// Priority scores a workflow from 1 (least urgent) to 10. Lower renewal
// probability, higher monetary value and a closer deadline all raise it.
func Priority(probability, monetaryValue float64, deadline, now time.Time) int {
	p := basePriority

	switch {
	case probability < 0.2:
		p += 4
	case probability < 0.4:
		p += 3
	case probability < 0.6:
		p += 2
	case probability < 0.8:
		p += 1
	}

	switch {
	case monetaryValue >= 6000:
		p += 2
	case monetaryValue >= 3000:
		p += 1
	}

	remaining := deadline.Sub(now)
	switch {
	case remaining <= 30*day:
		p += 3
	case remaining <= 60*day:
		p += 2
	case remaining <= 90*day:
		p += 1
	}

	return max(minPriority, min(maxPriority, p))
}

// Rescore recomputes a workflow's priority at now. Priority never drops
// while a workflow is open, so scheduling preference only ever rises as the
// deadline approaches.
func Rescore(w *workflows.Workflow, now time.Time) int {
	return max(w.Priority, Priority(w.SuccessProbability, w.MonetaryValue, w.Deadline, now))
}
