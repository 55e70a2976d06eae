// Package database opens the Postgres pool used by the persistent workflow
// store and ties its verification and teardown to the process lifecycle.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/renewal/pkg/lifecycle"
)

// System owns a connection pool.
type System interface {
	Connection() *sql.DB
	// Start verifies connectivity at startup and closes the pool at shutdown.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn        *sql.DB
	logger      *slog.Logger
	connTimeout time.Duration
	name        string
}

// New configures a pool for cfg. sql.Open does not dial; the first
// connection is made by the startup ping.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:        db,
		logger:      logger.With("system", "database", "host", cfg.Host, "database", cfg.Name),
		connTimeout: cfg.ConnTimeoutDuration(),
		name:        cfg.Name,
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("database", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.connTimeout)
		defer cancel()

		start := time.Now()
		if err := d.conn.PingContext(ctx); err != nil {
			d.logger.Error("ping failed", "error", err)
			return fmt.Errorf("ping %s: %w", d.name, err)
		}

		d.logger.Info("connected", "latency", time.Since(start))
		return nil
	})

	lc.OnShutdown("database", func(context.Context) error {
		stats := d.conn.Stats()
		d.logger.Info("closing pool", "open", stats.OpenConnections, "in_use", stats.InUse)
		return d.conn.Close()
	})

	return nil
}
