// Command migrate applies the workflow store schema.
//
//	migrate [-dsn URL] up|down|version
//	migrate [-dsn URL] steps N
//	migrate [-dsn URL] force V
//
// Without -dsn the connection comes from RENEWAL_DB_DSN, then from the
// database section of the service config.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"

	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/internal/workflows/postgres"
)

const envDSN = "RENEWAL_DB_DSN"

func main() {
	dsn := flag.String("dsn", "", "postgres:// connection URL")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: migrate [-dsn URL] up|down|version|steps N|force V")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	url, err := resolveDSN(*dsn)
	if err != nil {
		log.Fatal(err)
	}

	m, err := postgres.NewMigrator(url)
	if err != nil {
		log.Fatalf("prepare migrations: %v", err)
	}
	defer m.Close()

	if err := run(m, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func resolveDSN(flagged string) (string, error) {
	if flagged != "" {
		return flagged, nil
	}
	if v := os.Getenv(envDSN); v != "" {
		return v, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if !cfg.UsesDatabase() {
		return "", fmt.Errorf("engine.store is %q; pass -dsn or set %s", cfg.Engine.Store, envDSN)
	}
	return cfg.Database.URL(), nil
}

func run(m *migrate.Migrate, args []string) error {
	cmd := args[0]

	switch cmd {
	case "up":
		return report(m.Up(), "schema is up to date")
	case "down":
		return report(m.Down(), "schema reverted")
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("version %d (dirty: %t)\n", v, dirty)
		return nil
	case "steps", "force":
		if len(args) != 2 {
			return fmt.Errorf("%s requires one integer argument", cmd)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if cmd == "force" {
			if err := m.Force(n); err != nil {
				return err
			}
			fmt.Printf("forced version %d\n", n)
			return nil
		}
		return report(m.Steps(n), fmt.Sprintf("applied %d steps", n))
	}

	return fmt.Errorf("unknown command %q", cmd)
}

func report(err error, done string) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	fmt.Println(done)
	return nil
}
