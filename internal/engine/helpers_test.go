package engine_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/renewal/internal/collaborators"
	"github.com/JaimeStill/renewal/internal/engine"
	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/clock"
	"github.com/JaimeStill/renewal/pkg/pagination"
)

var epoch = time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a fake collaborator set. Each service is identified by name:
// email, sms, documents, signatures, surveys, inspections, analysis,
// reviews, decisions.
type recorder struct {
	mu          sync.Mutex
	calls       map[string]int
	failures    map[string]int
	gates       map[string]chan struct{}
	undelivered bool
	failRate    float64
	rng         *rand.Rand
}

func newRecorder() *recorder {
	return &recorder{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		gates:    make(map[string]chan struct{}),
	}
}

// fail makes the next n calls to name fail. A negative n fails every call.
func (r *recorder) fail(name string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[name] = n
}

// block holds calls to name until the returned release func is called.
func (r *recorder) block(name string) (release func()) {
	gate := make(chan struct{})
	r.mu.Lock()
	r.gates[name] = gate
	r.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (r *recorder) randomFailures(rate float64, seed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failRate = rate
	r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *recorder) hit(ctx context.Context, name string) error {
	r.mu.Lock()
	r.calls[name]++
	gate := r.gates[name]

	failing := false
	switch n := r.failures[name]; {
	case n < 0:
		failing = true
	case n > 0:
		failing = true
		r.failures[name] = n - 1
	}
	if r.rng != nil && r.rng.Float64() < r.failRate {
		failing = true
	}
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if failing {
		return fmt.Errorf("%s unavailable", name)
	}
	return nil
}

func (r *recorder) set() collaborators.Set {
	return collaborators.Set{
		Notifications: notifier{r},
		Documents:     documenter{r},
		Signatures:    signer{r},
		Surveys:       surveyor{r},
		Inspections:   inspector{r},
		Analysis:      analyst{r},
		Reviews:       reviewer{r},
		Decisions:     decider{r},
	}
}

type notifier struct{ r *recorder }

func (n notifier) Send(ctx context.Context, ch collaborators.Channel, _ string, _ map[string]any) (collaborators.Delivery, error) {
	if err := n.r.hit(ctx, string(ch)); err != nil {
		return collaborators.Delivery{}, err
	}
	n.r.mu.Lock()
	delivered := !n.r.undelivered
	n.r.mu.Unlock()
	return collaborators.Delivery{Delivered: delivered, ProviderMessageID: uuid.NewString()}, nil
}

type documenter struct{ r *recorder }

func (d documenter) Generate(ctx context.Context, docTypes []string, _, _ map[string]any) ([]collaborators.DocRef, error) {
	if err := d.r.hit(ctx, "documents"); err != nil {
		return nil, err
	}
	refs := make([]collaborators.DocRef, len(docTypes))
	for i, t := range docTypes {
		refs[i] = collaborators.DocRef{ID: "doc-" + t, Type: t}
	}
	return refs, nil
}

type signer struct{ r *recorder }

func (s signer) Request(ctx context.Context, docs []collaborators.DocRef, _ []string, _ []int) (collaborators.Envelope, error) {
	if err := s.r.hit(ctx, "signatures"); err != nil {
		return collaborators.Envelope{}, err
	}
	return collaborators.Envelope{EnvelopeID: fmt.Sprintf("env-%d", len(docs))}, nil
}

type surveyor struct{ r *recorder }

func (s surveyor) Send(ctx context.Context, _ string, _ []collaborators.Channel, _ map[string]any) (collaborators.SurveyDelivery, error) {
	return collaborators.SurveyDelivery{SurveyURL: "https://survey.test"}, s.r.hit(ctx, "surveys")
}

type inspector struct{ r *recorder }

func (i inspector) Schedule(ctx context.Context, _ string, _ map[string]any) (collaborators.Inspection, error) {
	return collaborators.Inspection{InspectionID: "insp-1"}, i.r.hit(ctx, "inspections")
}

type analyst struct{ r *recorder }

func (a analyst) Run(ctx context.Context, analysisType string, _ map[string]any) (map[string]any, error) {
	if err := a.r.hit(ctx, "analysis"); err != nil {
		return nil, err
	}
	return map[string]any{"analysis_type": analysisType}, nil
}

type reviewer struct{ r *recorder }

func (v reviewer) Request(ctx context.Context, _ string, _ map[string]any) (collaborators.Review, error) {
	return collaborators.Review{ReviewID: "rev-1"}, v.r.hit(ctx, "reviews")
}

type decider struct{ r *recorder }

func (d decider) Decide(ctx context.Context, _ string, _ map[string]any) (collaborators.Decision, error) {
	return collaborators.Decision{Outcome: "approve"}, d.r.hit(ctx, "decisions")
}

type harness struct {
	engine *engine.Engine
	clock  *clock.Fake
	store  workflows.Store
	rec    *recorder
}

func newHarness(t *testing.T, cfg *engine.Config) *harness {
	t.Helper()

	if cfg == nil {
		cfg = &engine.Config{}
	}
	require.NoError(t, cfg.Finalize(nil))

	h := &harness{
		clock: clock.NewFake(epoch),
		store: workflows.NewMemoryStore(pagination.DefaultConfig()),
		rec:   newRecorder(),
	}

	e, err := engine.New(cfg, engine.Deps{
		Store:         h.store,
		Collaborators: h.rec.set(),
		Clock:         h.clock,
		Logger:        discard(),
	})
	require.NoError(t, err)
	h.engine = e

	return h
}

// tick runs one scheduling pass and waits for every submitted execution.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Tick(context.Background()))
	h.engine.Drain()
}

func (h *harness) create(t *testing.T, subject string, probability float64, deadlineDays int) *workflows.Workflow {
	t.Helper()
	w, err := h.engine.CreateWorkflow(context.Background(), engine.CreateCommand{
		SubjectID:  subject,
		Deadline:   h.clock.Now().AddDate(0, 0, deadlineDays),
		Prediction: workflows.Prediction{SuccessProbability: probability},
	})
	require.NoError(t, err)
	return w
}

func (h *harness) find(t *testing.T, id uuid.UUID) *workflows.Workflow {
	t.Helper()
	w, err := h.engine.Find(context.Background(), id)
	require.NoError(t, err)
	return w
}
