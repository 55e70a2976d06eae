// Package engine drives renewal workflows: it generates plans, dispatches
// due steps to collaborators on a recurring tick, applies their results with
// retry and backoff, and exposes the lifecycle operations hosts and
// operators use.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/JaimeStill/renewal/internal/collaborators"
	"github.com/JaimeStill/renewal/internal/evaluator"
	"github.com/JaimeStill/renewal/internal/planner"
	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/clock"
	"github.com/JaimeStill/renewal/pkg/pagination"
)

// System defines the public contract for workflow orchestration.
type System interface {
	Handler(pagination pagination.Config) *Handler

	CreateWorkflow(ctx context.Context, cmd CreateCommand) (*workflows.Workflow, error)
	Find(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error)
	List(
		ctx context.Context,
		page pagination.PageRequest,
		filters workflows.Filters,
	) (*pagination.PageResult[workflows.Workflow], error)
	Status(ctx context.Context, id uuid.UUID) (*workflows.Progress, error)

	Pause(ctx context.Context, id uuid.UUID, reason string) (*workflows.Workflow, error)
	Resume(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error)
	Cancel(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error)
	RecordSignal(ctx context.Context, id uuid.UUID, signal workflows.Signal) (*workflows.Workflow, error)
	ForceExecute(ctx context.Context, id uuid.UUID, stepID string) (*workflows.Workflow, error)
}

// Deps are the collaborators an Engine is assembled from. Store and
// Collaborators are required; the rest fall back to defaults.
type Deps struct {
	Store         workflows.Store
	Collaborators collaborators.Set
	Planner       *planner.Planner
	Evaluator     *evaluator.Evaluator
	Clock         clock.Clock
	Logger        *slog.Logger
	Metrics       *Metrics
	Archiver      Archiver
}

// Engine is the scheduler, executor and lifecycle manager for workflows.
type Engine struct {
	cfg       *Config
	store     workflows.Store
	planner   *planner.Planner
	evaluator *evaluator.Evaluator
	executor  *Executor
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *Metrics
	archiver  Archiver

	sem      *semaphore.Weighted
	inflight sync.WaitGroup
	tickMu   sync.Mutex
	cron     *cron.Cron
}

// New assembles an Engine. The configuration must already be finalized.
func New(cfg *Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("engine requires a workflow store")
	}

	executor, err := NewExecutor(deps.Collaborators)
	if err != nil {
		return nil, err
	}

	if deps.Evaluator == nil {
		deps.Evaluator = evaluator.New(evaluator.DefaultRegistry())
	}
	if deps.Planner == nil {
		lib, err := planner.DefaultLibrary()
		if err != nil {
			return nil, err
		}
		deps.Planner = planner.New(lib, deps.Evaluator.Registry(), cfg.MaxRetries)
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if deps.Archiver == nil {
		deps.Archiver = nopArchiver{}
	}

	return &Engine{
		cfg:       cfg,
		store:     deps.Store,
		planner:   deps.Planner,
		evaluator: deps.Evaluator,
		executor:  executor,
		clock:     deps.Clock,
		logger:    deps.Logger.With("system", "engine"),
		metrics:   deps.Metrics,
		archiver:  deps.Archiver,
		sem:       semaphore.NewWeighted(int64(cfg.Workers)),
	}, nil
}

// Handler returns the HTTP handler for the administrative surface.
func (e *Engine) Handler(pagination pagination.Config) *Handler {
	return NewHandler(e, e.logger, pagination)
}

// Drain blocks until every in-flight execution has applied its result.
func (e *Engine) Drain() {
	e.inflight.Wait()
}

func (e *Engine) stepTimeout() time.Duration {
	if d := e.cfg.StepTimeoutDuration(); d > 0 {
		return d
	}
	return 2 * time.Minute
}
