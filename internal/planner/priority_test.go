package planner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JaimeStill/renewal/internal/planner"
	"github.com/JaimeStill/renewal/internal/workflows"
)

func TestClassFor(t *testing.T) {
	tests := []struct {
		p    float64
		want workflows.Class
	}{
		{1, workflows.ClassHighConfidence},
		{0.8, workflows.ClassHighConfidence},
		{0.79, workflows.ClassModerate},
		{0.6, workflows.ClassModerate},
		{0.59, workflows.ClassAtRisk},
		{0.4, workflows.ClassAtRisk},
		{0.39, workflows.ClassCritical},
		{0, workflows.ClassCritical},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, planner.ClassFor(tt.p), "p=%.2f", tt.p)
	}
}

func TestPriority(t *testing.T) {
	days := func(n int) time.Time { return now.AddDate(0, 0, n) }

	tests := []struct {
		name     string
		p        float64
		monetary float64
		deadline time.Time
		want     int
	}{
		{"baseline", 0.9, 0, days(180), 5},
		{"probability below 0.8", 0.7, 0, days(180), 6},
		{"probability below 0.6", 0.5, 0, days(180), 7},
		{"probability below 0.4", 0.3, 0, days(180), 8},
		{"probability below 0.2", 0.1, 0, days(180), 9},
		{"monetary 3000", 0.9, 3000, days(180), 6},
		{"monetary 6000", 0.9, 6000, days(180), 7},
		{"deadline 90 days", 0.9, 0, days(90), 6},
		{"deadline 60 days", 0.9, 0, days(60), 7},
		{"deadline 30 days", 0.9, 0, days(30), 8},
		{"deadline passed", 0.9, 0, days(-5), 8},
		{"clamped", 0.05, 9000, days(10), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, planner.Priority(tt.p, tt.monetary, tt.deadline, now))
		})
	}
}

func TestRescoreNeverLowers(t *testing.T) {
	w := &workflows.Workflow{
		Priority:           9,
		SuccessProbability: 0.9,
		Deadline:           now.AddDate(0, 0, 200),
	}
	assert.Equal(t, 9, planner.Rescore(w, now))

	w.Priority = 5
	assert.Equal(t, 8, planner.Rescore(w, now.AddDate(0, 0, 175)))
}
