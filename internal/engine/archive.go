package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/storage"
)

// Archiver persists terminal workflows outside the store.
type Archiver interface {
	Archive(ctx context.Context, w *workflows.Workflow) error
}

// ArchiveKey returns the key a subject's terminal workflow is written to.
func ArchiveKey(subjectID string, id uuid.UUID) string {
	return storage.Key("workflows", subjectID, id.String()+".json")
}

// ArchivePrefix returns the key prefix shared by a subject's archived workflows.
func ArchivePrefix(subjectID string) string {
	return storage.Key("workflows", subjectID) + "/"
}

type blobArchiver struct {
	store  storage.System
	logger *slog.Logger
}

// NewBlobArchiver writes terminal workflows as JSON documents to blob storage.
func NewBlobArchiver(store storage.System, logger *slog.Logger) Archiver {
	return &blobArchiver{
		store:  store,
		logger: logger.With("system", "archive"),
	}
}

func (a *blobArchiver) Archive(ctx context.Context, w *workflows.Workflow) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("encode workflow %s: %w", w.ID, err)
	}

	key := ArchiveKey(w.SubjectID, w.ID)
	meta := map[string]string{
		"status": string(w.Status),
		"class":  fmt.Sprint(w.Class),
	}
	if err := a.store.Put(ctx, key, data, meta); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "workflow archived", "workflow_id", w.ID, "key", key)
	return nil
}

type nopArchiver struct{}

func (nopArchiver) Archive(context.Context, *workflows.Workflow) error { return nil }
