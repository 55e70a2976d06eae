// Package postgres implements workflows.Store over PostgreSQL. Each workflow
// is one row holding its JSON document; updates lock the row for the
// duration of the transaction so concurrent claims on one workflow serialize.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/pagination"
	"github.com/JaimeStill/renewal/pkg/query"
	"github.com/JaimeStill/renewal/pkg/repository"
)

type store struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a Postgres-backed workflow store.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) workflows.Store {
	return &store{
		db:         db,
		logger:     logger.With("system", "workflow-store"),
		pagination: pagination,
	}
}

func (s *store) Create(ctx context.Context, w *workflows.Workflow) error {
	if w.Status.Terminal() {
		return fmt.Errorf("%w: cannot create a %s workflow", workflows.ErrInvalidCommand, w.Status)
	}

	doc, err := encode(w)
	if err != nil {
		return err
	}

	q := `
		INSERT INTO workflows(id, subject_id, class, status, priority, deadline, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = repository.WithTx(ctx, s.db, func(tx *sql.Tx) (struct{}, error) {
		_, err := tx.ExecContext(ctx, q,
			w.ID,
			w.SubjectID,
			int(w.Class),
			string(w.Status),
			w.Priority,
			w.Deadline,
			doc,
			w.CreatedAt,
			w.UpdatedAt,
		)
		return struct{}{}, err
	})
	if err != nil {
		return storeErrors.Map(err)
	}

	return nil
}

func (s *store) Find(ctx context.Context, id uuid.UUID) (*workflows.Workflow, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)

	w, err := repository.Get(ctx, s.db, q, args, scanWorkflow)
	if err != nil {
		return nil, storeErrors.Map(err)
	}
	return w, nil
}

func (s *store) FindOpen(ctx context.Context, subjectID string) (*workflows.Workflow, error) {
	q, args := query.
		NewBuilder(projection).
		WhereEquals("SubjectID", subjectID).
		WhereIn("Status", openStatuses).
		BuildSingleOrNull()

	w, err := repository.Get(ctx, s.db, q, args, scanWorkflow)
	if err != nil {
		return nil, storeErrors.Map(err)
	}
	return w, nil
}

func (s *store) Update(ctx context.Context, id uuid.UUID, fn workflows.UpdateFunc) (*workflows.Workflow, error) {
	q, args := query.NewBuilder(projection).BuildSingle("ID", id)
	q = repository.ForUpdate(q)

	update := `
		UPDATE workflows
		SET status = $2, priority = $3, document = $4, updated_at = $5, completed_at = $6
		WHERE id = $1`

	w, err := repository.WithTx(ctx, s.db, func(tx *sql.Tx) (*workflows.Workflow, error) {
		w, err := repository.Get(ctx, tx, q, args, scanWorkflow)
		if err != nil {
			return nil, err
		}

		if w.Status.Terminal() {
			return nil, workflows.ErrTerminal
		}

		if err := fn(w); err != nil {
			return nil, err
		}

		doc, err := encode(w)
		if err != nil {
			return nil, err
		}

		if err := repository.ExecOne(ctx, tx, update,
			w.ID,
			string(w.Status),
			w.Priority,
			doc,
			w.UpdatedAt,
			w.CompletedAt,
		); err != nil {
			return nil, err
		}

		return w, nil
	})

	if err != nil {
		return nil, storeErrors.Map(err)
	}

	if w.Status.Terminal() {
		s.logger.Debug("workflow moved to history", "workflow_id", w.ID, "status", w.Status)
	}

	return w, nil
}

func (s *store) Open(ctx context.Context) ([]*workflows.Workflow, error) {
	q, args := query.
		NewBuilder(projection, defaultSort...).
		WhereIn("Status", openStatuses).
		Build()

	ws, err := repository.Select(ctx, s.db, q, args, scanWorkflow)
	if err != nil {
		return nil, fmt.Errorf("query open workflows: %w", err)
	}
	return ws, nil
}

func (s *store) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters workflows.Filters,
) (*pagination.PageResult[workflows.Workflow], error) {
	page.Normalize(s.pagination)

	qb := applyFilters(query.NewBuilder(projection, defaultSort...), filters)

	countSQL, countArgs := qb.BuildCount()
	total, err := repository.Count(ctx, s.db, countSQL, countArgs)
	if err != nil {
		return nil, fmt.Errorf("count workflows: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	ws, err := repository.Select(ctx, s.db, pageSQL, pageArgs, scanWorkflow)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}

	data := make([]workflows.Workflow, len(ws))
	for i, w := range ws {
		data[i] = *w
	}

	result := pagination.NewPageResult(data, total, page.Page, page.PageSize)
	return &result, nil
}
