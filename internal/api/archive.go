package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/internal/engine"
	"github.com/JaimeStill/renewal/pkg/handlers"
	"github.com/JaimeStill/renewal/pkg/routes"
	"github.com/JaimeStill/renewal/pkg/storage"
)

// archivedWorkflow is one entry of a subject's archive listing.
type archivedWorkflow struct {
	ID uuid.UUID `json:"id"`
	storage.Item
}

type archiveHandler struct {
	store  storage.System
	logger *slog.Logger
}

func newArchiveHandler(store storage.System, logger *slog.Logger) *archiveHandler {
	return &archiveHandler{
		store:  store,
		logger: logger.With("handler", "archive"),
	}
}

func (h *archiveHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/archive",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{subject}", Handler: h.list},
		},
		Children: []routes.Group{
			{
				Prefix:     "/{subject}",
				Middleware: []func(http.Handler) http.Handler{immutable},
				Routes: []routes.Route{
					{Method: "GET", Pattern: "/{id}", Handler: h.find},
				},
			},
		},
	}
}

// immutable marks successful archive reads cacheable. A workflow is
// archived once, after it reaches a terminal status.
func immutable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&cacheWriter{ResponseWriter: w}, r)
	})
}

type cacheWriter struct {
	http.ResponseWriter
	wrote bool
}

func (c *cacheWriter) WriteHeader(status int) {
	if !c.wrote && status == http.StatusOK {
		c.Header().Set("Cache-Control", "private, max-age=86400, immutable")
	}
	c.wrote = true
	c.ResponseWriter.WriteHeader(status)
}

func (c *cacheWriter) Write(b []byte) (int, error) {
	if !c.wrote {
		c.WriteHeader(http.StatusOK)
	}
	return c.ResponseWriter.Write(b)
}

func (h *archiveHandler) list(w http.ResponseWriter, r *http.Request) {
	prefix := engine.ArchivePrefix(r.PathValue("subject"))

	items, err := h.store.List(r.Context(), prefix)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	out := make([]archivedWorkflow, 0, len(items))
	for _, item := range items {
		name := strings.TrimSuffix(strings.TrimPrefix(item.Key, prefix), ".json")
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		out = append(out, archivedWorkflow{ID: id, Item: item})
	}

	handlers.RespondJSON(w, http.StatusOK, out)
}

func (h *archiveHandler) find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid workflow id"))
		return
	}

	doc, err := h.store.Get(r.Context(), engine.ArchiveKey(r.PathValue("subject"), id))
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}
