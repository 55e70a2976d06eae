package api

import (
	"fmt"

	"github.com/JaimeStill/renewal/internal/collaborators"
	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/internal/engine"
	"github.com/JaimeStill/renewal/internal/evaluator"
	"github.com/JaimeStill/renewal/internal/planner"
)

// Domain holds the systems that comprise the API.
type Domain struct {
	Engine *engine.Engine
}

// NewDomain assembles the workflow engine from the API runtime: the store
// selected by configuration, the template library, resilient collaborators,
// metrics and, when blob storage is configured, the terminal archive.
func NewDomain(cfg *config.Config, runtime *Runtime) (*Domain, error) {
	eval := evaluator.New(evaluator.DefaultRegistry())

	lib, err := loadLibrary(cfg.Engine.TemplatesFile)
	if err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Store: runtime.Store,
		Collaborators: collaborators.Resilient(
			collaborators.DryRun(runtime.Logger),
			&cfg.Resilience,
			runtime.Logger,
		),
		Planner:   planner.New(lib, eval.Registry(), cfg.Engine.MaxRetries),
		Evaluator: eval,
		Logger:    runtime.Logger,
		Metrics:   engine.NewMetrics(runtime.Metrics),
	}

	if runtime.Archive != nil {
		deps.Archiver = engine.NewBlobArchiver(runtime.Archive, runtime.Logger)
	}

	e, err := engine.New(&cfg.Engine, deps)
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	return &Domain{Engine: e}, nil
}

func loadLibrary(path string) (*planner.Library, error) {
	if path == "" {
		return planner.DefaultLibrary()
	}
	lib, err := planner.LoadLibrary(path)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return lib, nil
}
