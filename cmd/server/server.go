package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/internal/infrastructure"
)

// Server owns the process: shared infrastructure, the engine module and
// the HTTP listener, started in that order and stopped in reverse.
type Server struct {
	infra   *infrastructure.Infrastructure
	modules *Modules
	http    *httpServer
	log     *slog.Logger
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("infrastructure: %w", err)
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}

	router := buildRouter(infra)
	if err := modules.Mount(router); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	log := infra.Logger.With("system", "server")
	log.Info("initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"env", cfg.Env(),
		"store", cfg.Engine.Store,
		"archive", cfg.Storage.Enabled(),
	)

	return &Server{
		infra:   infra,
		modules: modules,
		http:    newHTTPServer(&cfg.Server, router, infra.Logger),
		log:     log,
	}, nil
}

func (s *Server) Start() error {
	lc := s.infra.Lifecycle

	steps := []struct {
		name  string
		start func() error
	}{
		{"infrastructure", s.infra.Start},
		{"modules", func() error { return s.modules.Start(lc) }},
		{"http", func() error { return s.http.Start(lc) }},
	}
	for _, step := range steps {
		if err := step.start(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	go func() {
		if err := lc.WaitForStartup(); err != nil {
			s.log.Error("startup incomplete", "error", err)
			return
		}
		s.log.Info("ready")
	}()
	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down", "timeout", timeout)
	if err := s.infra.Lifecycle.Shutdown(timeout); err != nil {
		return err
	}
	s.log.Info("stopped")
	return nil
}
