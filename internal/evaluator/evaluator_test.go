package evaluator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/renewal/internal/evaluator"
	"github.com/JaimeStill/renewal/internal/workflows"
)

var now = time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

func workflow(probability float64, steps ...workflows.Step) *workflows.Workflow {
	return &workflows.Workflow{
		SubjectID:          "tenant-1",
		Status:             workflows.StatusActive,
		SuccessProbability: probability,
		Steps:              steps,
	}
}

func TestIsReady(t *testing.T) {
	e := evaluator.New(evaluator.DefaultRegistry())

	tests := []struct {
		name   string
		w      *workflows.Workflow
		step   workflows.Step
		want   evaluator.Readiness
		errors bool
	}{
		{
			name: "no edges",
			w:    workflow(0.9),
			step: workflows.Step{ID: "analysis"},
			want: evaluator.Ready,
		},
		{
			name: "dependency completed",
			w:    workflow(0.9, workflows.Step{ID: "document", Status: workflows.StepCompleted}),
			step: workflows.Step{ID: "signature", Dependencies: []string{"document"}},
			want: evaluator.Ready,
		},
		{
			name: "dependency active",
			w:    workflow(0.9, workflows.Step{ID: "document", Status: workflows.StepActive}),
			step: workflows.Step{ID: "signature", Dependencies: []string{"document"}},
			want: evaluator.Blocked,
		},
		{
			name: "dependency cancelled",
			w:    workflow(0.9, workflows.Step{ID: "document", Status: workflows.StepCancelled}),
			step: workflows.Step{ID: "signature", Dependencies: []string{"document"}},
			want: evaluator.Blocked,
		},
		{
			name: "missing dependency",
			w:    workflow(0.9),
			step: workflows.Step{ID: "signature", Dependencies: []string{"document"}},
			want: evaluator.Blocked,
		},
		{
			name: "false condition",
			w:    workflow(0.9),
			step: workflows.Step{ID: "survey", Conditions: []string{evaluator.LowSuccessProbability}},
			want: evaluator.Skip,
		},
		{
			name: "threshold is inclusive",
			w:    workflow(0.7),
			step: workflows.Step{ID: "survey", Conditions: []string{evaluator.LowSuccessProbability}},
			want: evaluator.Ready,
		},
		{
			name: "blocked before conditions",
			w:    workflow(0.9),
			step: workflows.Step{ID: "x", Dependencies: []string{"missing"}, Conditions: []string{"nope"}},
			want: evaluator.Blocked,
		},
		{
			name:   "unknown condition",
			w:      workflow(0.5),
			step:   workflows.Step{ID: "x", Conditions: []string{"nope"}},
			want:   evaluator.Skip,
			errors: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.IsReady(evaluator.Snapshot{Workflow: tt.w, Now: now}, &tt.step)
			assert.Equal(t, tt.want, got)
			if tt.errors {
				require.ErrorIs(t, err, evaluator.ErrUnknownCondition)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDefaultConditions(t *testing.T) {
	r := evaluator.DefaultRegistry()

	eval := func(name string, w *workflows.Workflow) bool {
		t.Helper()
		p, ok := r.Lookup(name)
		require.True(t, ok, name)
		return p(evaluator.Snapshot{Workflow: w, Now: now})
	}

	w := workflow(0.5)
	assert.True(t, eval(evaluator.NoResponseReceived, w))
	assert.True(t, eval(evaluator.WorkflowNotCompleted, w))
	assert.False(t, eval(evaluator.SubjectInterestConfirmed, w))
	assert.True(t, eval(evaluator.NotRenewedYet, w))
	assert.True(t, eval(evaluator.DocumentsNotSigned, w))
	assert.False(t, eval(evaluator.QualityRiskFlagged, w))

	w.RiskFlags = []string{workflows.FlagLowQualityProperty}
	w.RecordSignal(workflows.SignalResponseReceived, now)
	w.RecordSignal(workflows.SignalInterestConfirmed, now)
	w.RecordSignal(workflows.SignalRenewed, now)
	w.RecordSignal(workflows.SignalDocumentsSigned, now)

	assert.True(t, eval(evaluator.QualityRiskFlagged, w))
	assert.False(t, eval(evaluator.NoResponseReceived, w))
	assert.True(t, eval(evaluator.SubjectInterestConfirmed, w))
	assert.False(t, eval(evaluator.NotRenewedYet, w))
	assert.False(t, eval(evaluator.DocumentsNotSigned, w))

	w.RecordSignal(workflows.SignalInterestDeclined, now)
	assert.False(t, eval(evaluator.SubjectInterestConfirmed, w), "a decline overrides confirmed interest")

	w.Status = workflows.StatusCompleted
	assert.False(t, eval(evaluator.WorkflowNotCompleted, w))
}

func TestRegistry(t *testing.T) {
	r := evaluator.NewRegistry()
	assert.Empty(t, r.Names())

	r.Register("holidaySeason", func(s evaluator.Snapshot) bool {
		return s.Now.Month() == time.December
	})
	r.Register("always", func(evaluator.Snapshot) bool { return true })

	assert.Equal(t, []string{"always", "holidaySeason"}, r.Names())
	require.NoError(t, r.Validate([]string{"always", "holidaySeason"}))
	require.ErrorIs(t, r.Validate([]string{"always", "missing"}), evaluator.ErrUnknownCondition)

	e := evaluator.New(r)
	got, err := e.IsReady(evaluator.Snapshot{Workflow: workflow(0.5), Now: now}, &workflows.Step{Conditions: []string{"holidaySeason"}})
	require.NoError(t, err)
	assert.Equal(t, evaluator.Skip, got)
	assert.Same(t, r, e.Registry())

	assert.Len(t, evaluator.DefaultRegistry().Names(), 7)
}
