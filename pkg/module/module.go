// Package module mounts self-contained HTTP sub-trees, each with its own
// middleware chain, under path prefixes of a Router.
package module

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/JaimeStill/renewal/pkg/middleware"
)

// Module serves every path below its prefix. Handlers see request paths
// with the prefix removed.
type Module struct {
	prefix string
	inner  http.Handler
	chain  middleware.Chain

	once    sync.Once
	handler http.Handler
}

// New validates prefix and wraps inner. A prefix starts with a slash, does
// not end with one and may have several segments ("/api", "/api/v1").
func New(prefix string, inner http.Handler) (*Module, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	return &Module{prefix: prefix, inner: inner}, nil
}

// Prefix returns the mount prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use appends mw to the chain. It has no effect once the module has served
// a request.
func (m *Module) Use(mw ...func(http.Handler) http.Handler) {
	m.chain = append(m.chain, mw...)
}

// ServeHTTP strips the prefix and dispatches through the middleware chain.
func (m *Module) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	m.once.Do(func() { m.handler = m.chain.Then(m.inner) })
	m.handler.ServeHTTP(w, stripPrefix(req, m.prefix))
}

func (m *Module) matches(path string) bool {
	return path == m.prefix || strings.HasPrefix(path, m.prefix+"/")
}

func stripPrefix(req *http.Request, prefix string) *http.Request {
	path := strings.TrimPrefix(req.URL.Path, prefix)
	if path == "" {
		path = "/"
	}

	r := new(http.Request)
	*r = *req
	r.URL = new(url.URL)
	*r.URL = *req.URL
	r.URL.Path = path

	if raw := req.URL.RawPath; raw != "" {
		r.URL.RawPath = strings.TrimPrefix(raw, prefix)
		if r.URL.RawPath == "" {
			r.URL.RawPath = "/"
		}
	}
	return r
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "" || prefix == "/":
		return fmt.Errorf("module prefix must name a path: %q", prefix)
	case !strings.HasPrefix(prefix, "/"):
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case strings.HasSuffix(prefix, "/"):
		return fmt.Errorf("module prefix must not end with /: %s", prefix)
	case strings.Contains(prefix, "//"):
		return fmt.Errorf("module prefix has an empty segment: %s", prefix)
	}
	return nil
}
