package module

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Router sends each request to the mounted module with the longest matching
// prefix. Requests no module claims go to a native ServeMux.
type Router struct {
	modules []*Module
	native  *http.ServeMux
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{native: http.NewServeMux()}
}

// HandleNative registers pattern on the fallback mux.
func (r *Router) HandleNative(pattern string, handler http.HandlerFunc) {
	r.native.HandleFunc(pattern, handler)
}

// Mount adds m. Mounting two modules at the same prefix is an error.
func (r *Router) Mount(m *Module) error {
	if slices.ContainsFunc(r.modules, func(o *Module) bool { return o.prefix == m.prefix }) {
		return fmt.Errorf("module prefix %s already mounted", m.prefix)
	}

	r.modules = append(r.modules, m)
	slices.SortFunc(r.modules, func(a, b *Module) int {
		return len(b.prefix) - len(a.prefix)
	})
	return nil
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
		req.URL.Path = path
		req.URL.RawPath = strings.TrimSuffix(req.URL.RawPath, "/")
	}

	for _, m := range r.modules {
		if m.matches(path) {
			m.ServeHTTP(w, req)
			return
		}
	}

	r.native.ServeHTTP(w, req)
}
