package infrastructure_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/JaimeStill/renewal/internal/config"
	"github.com/JaimeStill/renewal/internal/engine"
	"github.com/JaimeStill/renewal/internal/infrastructure"
)

const azuriteConnString = "DefaultEndpointsProtocol=http;AccountName=devstoreaccount1;AccountKey=Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw==;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1;"

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return cfg
}

func TestNewMemory(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Lifecycle == nil {
		t.Error("Lifecycle is nil")
	}
	if infra.Logger == nil {
		t.Error("Logger is nil")
	}
	if infra.Metrics == nil {
		t.Error("Metrics is nil")
	}
	if infra.Database != nil {
		t.Error("Database should be nil for the memory store")
	}
	if infra.Storage != nil {
		t.Error("Storage should be nil without a connection string")
	}

	if err := infra.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := infra.Lifecycle.WaitForStartup(); err != nil {
		t.Fatalf("WaitForStartup() error = %v", err)
	}
	if !infra.Lifecycle.Ready() {
		t.Error("memory configuration should be ready with no startup hooks")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	cfg := &config.Config{LogLevel: "warn"}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if infra.Logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("info should be filtered at warn level")
	}
	if !infra.Logger.Enabled(ctx, slog.LevelWarn) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestNewMetricsRegistry(t *testing.T) {
	infra, err := infrastructure.New(validConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	families, err := infra.Metrics.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "go_goroutines" {
			found = true
		}
	}
	if !found {
		t.Error("go collector not registered")
	}
}

func TestNewPostgres(t *testing.T) {
	cfg := &config.Config{Engine: engine.Config{Store: engine.StorePostgres}}
	cfg.Database.Name = "renewal"
	cfg.Database.User = "renewal"
	cfg.Storage.ConnectionString = azuriteConnString
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if infra.Database == nil {
		t.Fatal("Database is nil")
	}
	if infra.Storage == nil {
		t.Error("Storage is nil")
	}

	conn := infra.Database.Connection()
	if conn == nil {
		t.Fatal("Database.Connection() returned nil")
	}
	defer conn.Close()

	families, err := infra.Metrics.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "go_sql_max_open_connections" {
			found = true
		}
	}
	if !found {
		t.Error("database pool collector not registered")
	}
}

func TestNewInvalidStorageConfig(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.ConnectionString = "not-a-connection-string"

	_, err := infrastructure.New(cfg)
	if err == nil {
		t.Fatal("expected error for invalid storage connection string")
	}
}
