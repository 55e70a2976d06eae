package workflows

import (
	"context"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/pkg/pagination"
)

// UpdateFunc mutates a private copy of a workflow. Returning an error
// discards the copy and leaves the stored workflow unchanged.
type UpdateFunc func(w *Workflow) error

// Store holds open workflows and the history of terminal ones.
// Updates to a single workflow are serialized; different workflows may be
// updated in parallel. All returned workflows are snapshots owned by the caller.
type Store interface {
	// Create registers a new workflow. Returns ErrDuplicate if the id exists
	// or the subject already has an open workflow.
	Create(ctx context.Context, w *Workflow) error
	// Find returns the workflow from the open set or history.
	Find(ctx context.Context, id uuid.UUID) (*Workflow, error)
	// FindOpen returns the subject's non-terminal workflow or ErrNotFound.
	FindOpen(ctx context.Context, subjectID string) (*Workflow, error)
	// Update applies fn under the workflow's serialization and returns the
	// stored result. Terminal workflows are rejected with ErrTerminal; a
	// workflow that fn moves into a terminal state is moved to history.
	Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*Workflow, error)
	// Open returns snapshots of every non-terminal workflow.
	Open(ctx context.Context) ([]*Workflow, error)
	// List returns a page of workflows ordered by descending priority, then creation time.
	List(ctx context.Context, page pagination.PageRequest, filters Filters) (*pagination.PageResult[Workflow], error)
}

// Filters narrows List results. Nil fields are ignored.
type Filters struct {
	Status      *Status `json:"status,omitempty"`
	SubjectID   *string `json:"subject_id,omitempty"`
	MinPriority *int    `json:"min_priority,omitempty"`
}

// Match reports whether w satisfies every set filter.
func (f Filters) Match(w *Workflow) bool {
	if f.Status != nil && w.Status != *f.Status {
		return false
	}
	if f.SubjectID != nil && w.SubjectID != *f.SubjectID {
		return false
	}
	if f.MinPriority != nil && w.Priority < *f.MinPriority {
		return false
	}
	return true
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := Status(values.Get("status")); s.Valid() {
		f.Status = &s
	}

	if sid := values.Get("subject_id"); sid != "" {
		f.SubjectID = &sid
	}

	if mp := values.Get("min_priority"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil {
			f.MinPriority = &v
		}
	}

	return f
}
