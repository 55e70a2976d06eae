package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JaimeStill/renewal/internal/api"
	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/internal/infrastructure"
	"github.com/JaimeStill/renewal/pkg/handlers"
	"github.com/JaimeStill/renewal/pkg/lifecycle"
	"github.com/JaimeStill/renewal/pkg/module"
)

type Modules struct {
	API *api.API
}

func NewModules(infra *infrastructure.Infrastructure, cfg *config.Config) (*Modules, error) {
	apiModule, err := api.New(cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Modules{
		API: apiModule,
	}, nil
}

func (m *Modules) Mount(router *module.Router) error {
	return router.Mount(m.API.Module)
}

func (m *Modules) Start(lc *lifecycle.Coordinator) error {
	return m.API.Start(lc)
}

func buildRouter(infra *infrastructure.Infrastructure) *module.Router {
	router := module.NewRouter()
	router.HandleNative("GET /healthz", liveness)
	router.HandleNative("GET /readyz", readiness(infra.Lifecycle))
	router.HandleNative("GET /metrics", promhttp.HandlerFor(infra.Metrics, promhttp.HandlerOpts{}).ServeHTTP)
	return router
}

func liveness(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports 503 with the failed startup hooks until every hook
// has succeeded.
func readiness(lc *lifecycle.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lc.Ready() {
			handlers.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}

		failures := make(map[string]string)
		for name, err := range lc.Failures() {
			failures[name] = err.Error()
		}
		handlers.RespondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":   "not ready",
			"failures": failures,
		})
	}
}
