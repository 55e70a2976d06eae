package engine_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/renewal/internal/engine"
	"github.com/JaimeStill/renewal/internal/planner"
	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/clock"
	"github.com/JaimeStill/renewal/pkg/pagination"
)

const day = 24 * time.Hour

func TestHighConfidenceRenewal(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	w := h.create(t, "tenant-1", 0.85, 120)
	assert.Equal(t, workflows.StatusPending, w.Status)

	h.tick(t)

	w = h.find(t, w.ID)
	assert.Equal(t, workflows.StatusActive, w.Status)
	assert.Equal(t, workflows.StepCompleted, w.Step(planner.StepAnalysis).Status)
	assert.Equal(t, "renewal_baseline", w.Step(planner.StepAnalysis).Output["analysis_type"])
	assert.Equal(t, workflows.StepPending, w.Step(planner.NoticeStepID(90)).Status)
	assert.Equal(t, 0, h.rec.count("email"))

	h.clock.Advance(30 * day)
	h.tick(t)

	w = h.find(t, w.ID)
	assert.Equal(t, workflows.StepCompleted, w.Step(planner.NoticeStepID(90)).Status)
	assert.Equal(t, workflows.StepPending, w.Step(planner.StepDocument).Status, "document waits for interest")
	assert.Equal(t, workflows.StepPending, w.Step(planner.StepSignature).Status)
	assert.Equal(t, 1, h.rec.count("email"))

	_, err := h.engine.RecordSignal(ctx, w.ID, workflows.SignalInterestConfirmed)
	require.NoError(t, err)

	h.tick(t)
	assert.Equal(t, 1, h.rec.count("documents"))
	assert.Equal(t, 0, h.rec.count("signatures"), "signature becomes ready on the next tick")

	h.tick(t)
	assert.Equal(t, 1, h.rec.count("signatures"))

	w = h.find(t, w.ID)
	sig := w.Step(planner.StepSignature)
	assert.Equal(t, workflows.StepCompleted, sig.Status)
	assert.Equal(t, "env-1", sig.Output["envelope_id"])

	_, err = h.engine.RecordSignal(ctx, w.ID, workflows.SignalResponseReceived)
	require.NoError(t, err)

	h.clock.Advance(30 * day)
	h.tick(t)

	w = h.find(t, w.ID)
	notice := w.Step(planner.NoticeStepID(60))
	assert.Equal(t, workflows.StepPending, notice.Status, "follow-up skipped once the subject responded")
	assert.Equal(t, 1, h.rec.count("email"))
}

func TestThreeFailuresCancelStep(t *testing.T) {
	h := newHarness(t, nil)
	h.rec.fail("analysis", -1)

	w := h.create(t, "tenant-1", 0.85, 120)

	h.tick(t)
	s := h.find(t, w.ID).Step(planner.StepAnalysis)
	assert.Equal(t, workflows.StepPending, s.Status)
	assert.Equal(t, 1, s.RetryCount)
	assert.Equal(t, epoch.Add(120*time.Second), s.ScheduledAt)
	assert.Equal(t, epoch, s.DueAt, "planned instant never moves")
	assert.Contains(t, s.LastError, "analysis unavailable")

	h.clock.Advance(60 * time.Second)
	h.tick(t)
	assert.Equal(t, 1, h.rec.count("analysis"), "backoff not yet elapsed")

	h.clock.Advance(60 * time.Second)
	h.tick(t)
	s = h.find(t, w.ID).Step(planner.StepAnalysis)
	assert.Equal(t, 2, s.RetryCount)
	assert.Equal(t, h.clock.Now().Add(240*time.Second), s.ScheduledAt)

	h.clock.Advance(240 * time.Second)
	h.tick(t)

	w = h.find(t, w.ID)
	s = w.Step(planner.StepAnalysis)
	assert.Equal(t, workflows.StepCancelled, s.Status)
	assert.Equal(t, 3, s.RetryCount)
	assert.Contains(t, s.LastError, engine.ErrPermanentStepFailure.Error())
	assert.Equal(t, workflows.StatusActive, w.Status, "step failure does not fail the workflow")
	assert.Equal(t, 3, h.rec.count("analysis"))

	h.clock.Advance(60 * day)
	h.tick(t)

	w = h.find(t, w.ID)
	assert.Equal(t, workflows.StepPending, w.Step(planner.NoticeStepID(90)).Status, "dependent stays blocked")
	assert.Equal(t, workflows.StepCompleted, w.Step(planner.NoticeStepID(60)).Status, "follow-ups have no hard dependency")
}

func TestRetryThenSucceed(t *testing.T) {
	h := newHarness(t, nil)
	h.rec.fail("analysis", 2)

	w := h.create(t, "tenant-1", 0.85, 120)

	for range 3 {
		h.tick(t)
		h.clock.Advance(engine.MaxBackoff)
	}

	s := h.find(t, w.ID).Step(planner.StepAnalysis)
	assert.Equal(t, workflows.StepCompleted, s.Status)
	assert.Equal(t, 2, s.RetryCount)
	assert.Empty(t, s.LastError)
	assert.Equal(t, 3, h.rec.count("analysis"))
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	w := h.create(t, "tenant-1", 0.85, 120)

	_, err := h.engine.Pause(ctx, w.ID, "early")
	require.ErrorIs(t, err, workflows.ErrInvalidTransition, "pending workflows cannot pause")

	h.tick(t)

	paused, err := h.engine.Pause(ctx, w.ID, "tenant on vacation")
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusPaused, paused.Status)
	assert.Equal(t, "tenant on vacation", paused.PauseReason)

	h.clock.Advance(30 * day)
	h.tick(t)
	assert.Equal(t, 0, h.rec.count("email"))

	_, err = h.engine.Pause(ctx, w.ID, "again")
	require.ErrorIs(t, err, workflows.ErrInvalidTransition)

	resumed, err := h.engine.Resume(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusActive, resumed.Status)
	assert.Empty(t, resumed.PauseReason)

	_, err = h.engine.Resume(ctx, w.ID)
	require.ErrorIs(t, err, workflows.ErrInvalidTransition)

	h.tick(t)
	assert.Equal(t, 1, h.rec.count("email"))
}

func TestIdempotentDispatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	release := h.rec.block("analysis")
	w := h.create(t, "tenant-1", 0.85, 120)

	require.NoError(t, h.engine.Tick(ctx))
	require.NoError(t, h.engine.Tick(ctx))
	require.NoError(t, h.engine.Tick(ctx))

	assert.Equal(t, workflows.StepActive, h.find(t, w.ID).Step(planner.StepAnalysis).Status)

	release()
	h.engine.Drain()

	assert.Equal(t, 1, h.rec.count("analysis"))
	assert.Equal(t, workflows.StepCompleted, h.find(t, w.ID).Step(planner.StepAnalysis).Status)
}

func TestCancelDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	release := h.rec.block("analysis")
	w := h.create(t, "tenant-1", 0.85, 120)

	require.NoError(t, h.engine.Tick(ctx))

	cancelled, err := h.engine.Cancel(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusCancelled, cancelled.Status)

	release()
	h.engine.Drain()

	w = h.find(t, w.ID)
	assert.Equal(t, workflows.StatusCancelled, w.Status)
	for _, s := range w.Steps {
		assert.Equal(t, workflows.StepCancelled, s.Status, s.ID)
	}
	assert.Nil(t, w.Step(planner.StepAnalysis).Output)
}

func TestBackPressureDispatchesByPriority(t *testing.T) {
	h := newHarness(t, &engine.Config{Workers: 1})
	ctx := context.Background()

	release := h.rec.block("analysis")
	low := h.create(t, "tenant-low", 0.85, 120)
	high := h.create(t, "tenant-high", 0.1, 120)
	require.Greater(t, high.Priority, low.Priority)

	require.NoError(t, h.engine.Tick(ctx))

	assert.Equal(t, workflows.StepActive, h.find(t, high.ID).Step(planner.StepAnalysis).Status)
	assert.Equal(t, workflows.StepPending, h.find(t, low.ID).Step(planner.StepAnalysis).Status)
	assert.Equal(t, 0, h.rec.count("email"), "saturated pool defers remaining work")

	release()
	h.engine.Drain()

	// one step per tick: the high priority survey and notices drain first
	for range 8 {
		h.tick(t)
	}

	assert.Equal(t, workflows.StepCompleted, h.find(t, low.ID).Step(planner.StepAnalysis).Status)
}

func TestExpiry(t *testing.T) {
	h := newHarness(t, &engine.Config{MaxDuration: "720h"})

	w := h.create(t, "tenant-1", 0.85, 120)
	h.tick(t)

	h.clock.Advance(31 * day)
	h.tick(t)

	w = h.find(t, w.ID)
	assert.Equal(t, workflows.StatusExpired, w.Status)
	require.NotNil(t, w.CompletedAt)
	assert.Equal(t, 0, h.rec.count("email"))
	for _, s := range w.Steps {
		assert.True(t, s.Status.Terminal(), s.ID)
	}

	_, err := h.engine.Resume(context.Background(), w.ID)
	require.ErrorIs(t, err, workflows.ErrInvalidTransition)
}

func TestRescoreRaisesPriority(t *testing.T) {
	h := newHarness(t, nil)

	w := h.create(t, "tenant-1", 0.85, 120)
	require.Equal(t, 5, w.Priority)

	h.clock.Advance(31 * day)
	h.tick(t)
	assert.Equal(t, 6, h.find(t, w.ID).Priority)

	h.clock.Advance(60 * day)
	h.tick(t)
	assert.Equal(t, 8, h.find(t, w.ID).Priority)
}

func TestRecoverResetsOrphanedSteps(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	started := epoch.Add(-time.Minute)
	w := &workflows.Workflow{
		ID:        uuid.New(),
		SubjectID: "tenant-1",
		Status:    workflows.StatusActive,
		Priority:  5,
		Deadline:  epoch.Add(90 * day),
		Steps: []workflows.Step{
			{ID: "a", Kind: workflows.KindRunAnalysis, Status: workflows.StepActive, StartedAt: &started, MaxRetries: 3,
				Parameters: map[string]any{"analysis_type": "baseline"}},
			{ID: "b", Kind: workflows.KindRunAnalysis, Status: workflows.StepCompleted, MaxRetries: 3},
		},
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
	require.NoError(t, h.store.Create(ctx, w))

	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := h.find(t, w.ID)
	assert.Equal(t, workflows.StepPending, got.Step("a").Status)
	assert.Nil(t, got.Step("a").StartedAt)
	assert.Equal(t, workflows.StepCompleted, got.Step("b").Status)

	n, err = h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.tick(t)
	assert.Equal(t, workflows.StepCompleted, h.find(t, w.ID).Step("a").Status)
}

func TestDependencySoundness(t *testing.T) {
	for seed := range uint64(5) {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			h := newHarness(t, &engine.Config{Workers: 3})
			h.rec.randomFailures(0.3, seed)
			ctx := context.Background()

			rng := rand.New(rand.NewPCG(seed, 42))
			w := randomDAG(rng, 24)
			require.NoError(t, h.store.Create(ctx, w))

			for range 120 {
				require.NoError(t, h.engine.Tick(ctx))
				assertSound(t, h.find(t, w.ID))

				h.engine.Drain()
				assertSound(t, h.find(t, w.ID))

				h.clock.Advance(30 * time.Minute)
			}

			final := h.find(t, w.ID)
			for _, s := range final.Steps {
				if s.Status != workflows.StepPending {
					continue
				}
				blocked := false
				for _, d := range s.Dependencies {
					if final.Step(d).Status != workflows.StepCompleted {
						blocked = true
					}
				}
				assert.True(t, blocked, "step %s pending without a blocking dependency", s.ID)
			}
		})
	}
}

func randomDAG(rng *rand.Rand, n int) *workflows.Workflow {
	steps := make([]workflows.Step, n)
	for i := range steps {
		at := epoch.Add(time.Duration(rng.IntN(300)) * time.Minute)

		var deps []string
		for j := range i {
			if rng.Float64() < 0.15 {
				deps = append(deps, fmt.Sprintf("s%d", j))
			}
		}

		steps[i] = workflows.Step{
			ID:           fmt.Sprintf("s%d", i),
			Kind:         workflows.KindNotifyEmail,
			Status:       workflows.StepPending,
			DueAt:        at,
			ScheduledAt:  at,
			Parameters:   map[string]any{"template_id": "t"},
			Dependencies: deps,
			MaxRetries:   workflows.DefaultMaxRetries,
		}
	}

	return &workflows.Workflow{
		ID:        uuid.New(),
		SubjectID: "dag",
		Status:    workflows.StatusPending,
		Priority:  5,
		Deadline:  epoch.Add(365 * day),
		Steps:     steps,
		CreatedAt: epoch,
		UpdatedAt: epoch,
	}
}

func assertSound(t *testing.T, w *workflows.Workflow) {
	t.Helper()
	for _, s := range w.Steps {
		if s.Status != workflows.StepActive && s.Status != workflows.StepCompleted {
			continue
		}
		for _, d := range s.Dependencies {
			assert.Equal(t, workflows.StepCompleted, w.Step(d).Status,
				"step %s is %s while dependency %s is not completed", s.ID, s.Status, d)
		}
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()

	cfg := &engine.Config{}
	require.NoError(t, cfg.Finalize(nil))

	rec := newRecorder()
	e, err := engine.New(cfg, engine.Deps{
		Store:         workflows.NewMemoryStore(pagination.DefaultConfig()),
		Collaborators: rec.set(),
		Clock:         clock.NewFake(epoch),
		Logger:        discard(),
		Metrics:       engine.NewMetrics(reg),
	})
	require.NoError(t, err)

	_, err = e.CreateWorkflow(context.Background(), engine.CreateCommand{
		SubjectID:  "tenant-1",
		Deadline:   epoch.AddDate(0, 0, 120),
		Prediction: workflows.Prediction{SuccessProbability: 0.9},
	})
	require.NoError(t, err)

	require.NoError(t, e.Tick(context.Background()))
	e.Drain()

	n, err := testutil.GatherAndCount(reg,
		"renewal_scheduler_ticks_total",
		"renewal_engine_step_executions_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUnknownConditionSkipsStepOnly(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	broken := h.create(t, "tenant-1", 0.85, 120)
	healthy := h.create(t, "tenant-2", 0.85, 120)

	_, err := h.store.Update(ctx, broken.ID, func(w *workflows.Workflow) error {
		w.Step(planner.StepAnalysis).Conditions = []string{"unregistered"}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.engine.Tick(ctx))
	h.engine.Drain()

	assert.Equal(t, workflows.StepPending, h.find(t, broken.ID).Step(planner.StepAnalysis).Status)
	assert.Equal(t, workflows.StepCompleted, h.find(t, healthy.ID).Step(planner.StepAnalysis).Status)
	assert.Equal(t, 1, h.rec.count("analysis"), "only the healthy workflow reaches the collaborator")
}
