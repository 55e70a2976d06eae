// Package routes declares HTTP route tables and registers them on a ServeMux.
package routes

import (
	"net/http"
	"slices"
)

// Route is one method and pattern. An empty Method matches every method.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
}

// Group shares a path prefix and middleware across its routes. Children
// extend the prefix and run inside the parent's middleware.
type Group struct {
	Prefix     string
	Middleware []func(http.Handler) http.Handler
	Routes     []Route
	Children   []Group
}

// Register adds every route in groups to mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, g := range groups {
		g.register(mux, "", nil)
	}
}

func (g Group) register(mux *http.ServeMux, prefix string, outer []func(http.Handler) http.Handler) {
	prefix += g.Prefix
	wrap := append(slices.Clip(outer), g.Middleware...)

	for _, r := range g.Routes {
		var h http.Handler = r.Handler
		for _, mw := range slices.Backward(wrap) {
			h = mw(h)
		}
		mux.Handle(pattern(r.Method, prefix+r.Pattern), h)
	}

	for _, child := range g.Children {
		child.register(mux, prefix, wrap)
	}
}

func pattern(method, path string) string {
	if method == "" {
		return path
	}
	return method + " " + path
}
