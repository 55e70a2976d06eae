package api

import (
	"net/http"

	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	groups := []routes.Group{
		domain.Engine.Handler(runtime.Pagination).Routes(),
	}

	if runtime.Archive != nil {
		groups = append(groups, newArchiveHandler(runtime.Archive, runtime.Logger).routes())
	}

	routes.Register(mux, groups...)
}
