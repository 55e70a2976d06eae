package api

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/internal/engine"
	"github.com/JaimeStill/renewal/internal/infrastructure"
	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/internal/workflows/postgres"
	"github.com/JaimeStill/renewal/pkg/lifecycle"
	"github.com/JaimeStill/renewal/pkg/pagination"
	"github.com/JaimeStill/renewal/pkg/storage"
)

// Runtime is the part of the infrastructure the API module builds on, with
// the workflow store already selected. Archive is nil when blob storage is
// not configured.
type Runtime struct {
	Lifecycle  *lifecycle.Coordinator
	Logger     *slog.Logger
	Metrics    *prometheus.Registry
	Store      workflows.Store
	Archive    storage.System
	Pagination pagination.Config
}

// NewRuntime scopes the logger to the module and opens the configured store.
func NewRuntime(cfg *config.Config, infra *infrastructure.Infrastructure) (*Runtime, error) {
	logger := infra.Logger.With("module", "api")

	var store workflows.Store
	switch cfg.Engine.Store {
	case engine.StorePostgres:
		if infra.Database == nil {
			return nil, fmt.Errorf("postgres store requires a database")
		}
		store = postgres.New(infra.Database.Connection(), logger, cfg.API.Pagination)
	default:
		store = workflows.NewMemoryStore(cfg.API.Pagination)
	}

	return &Runtime{
		Lifecycle:  infra.Lifecycle,
		Logger:     logger,
		Metrics:    infra.Metrics,
		Store:      store,
		Archive:    infra.Storage,
		Pagination: cfg.API.Pagination,
	}, nil
}
