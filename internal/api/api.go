// Package api assembles the API module with the workflow engine and route registration.
package api

import (
	"net/http"

	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/internal/infrastructure"
	"github.com/JaimeStill/renewal/pkg/lifecycle"
	"github.com/JaimeStill/renewal/pkg/middleware"
	"github.com/JaimeStill/renewal/pkg/module"
)

// API is the mounted HTTP module together with the domain it serves.
type API struct {
	Module *module.Module
	Domain *Domain
}

// New creates the API module with all domain handlers and middleware.
func New(cfg *config.Config, infra *infrastructure.Infrastructure) (*API, error) {
	runtime, err := NewRuntime(cfg, infra)
	if err != nil {
		return nil, err
	}

	domain, err := NewDomain(cfg, runtime)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m, err := module.New(cfg.API.BasePath, mux)
	if err != nil {
		return nil, err
	}
	m.Use(
		middleware.RequestID,
		middleware.Recover(runtime.Logger),
		middleware.Logger(runtime.Logger),
		middleware.Metrics(runtime.Metrics, "renewal"),
		middleware.CORS(&cfg.API.CORS),
	)

	return &API{Module: m, Domain: domain}, nil
}

// Start schedules the engine. Infrastructure must be started first so the
// engine's startup wait covers the database and storage hooks.
func (a *API) Start(lc *lifecycle.Coordinator) error {
	return a.Domain.Engine.Start(lc)
}
