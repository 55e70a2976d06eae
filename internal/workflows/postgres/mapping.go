package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/query"
	"github.com/JaimeStill/renewal/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "workflows", "w").
	Project("id", "ID").
	Project("subject_id", "SubjectID").
	Project("status", "Status").
	Project("priority", "Priority").
	Project("created_at", "CreatedAt").
	Project("document", "Document")

var storeErrors = repository.Errors{
	NotFound:  workflows.ErrNotFound,
	Duplicate: workflows.ErrDuplicate,
}

var defaultSort = []query.SortField{
	{Field: "Priority", Descending: true},
	{Field: "CreatedAt"},
	{Field: "ID"},
}

var openStatuses = []any{
	string(workflows.StatusPending),
	string(workflows.StatusActive),
	string(workflows.StatusPaused),
}

func applyFilters(b *query.Builder, f workflows.Filters) *query.Builder {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	return b.
		WhereEquals("Status", status).
		WhereEquals("SubjectID", f.SubjectID).
		WhereAtLeast("Priority", f.MinPriority)
}

// The scalar columns mirror fields of the JSON document and exist for
// indexing and filtering; the document is authoritative.
func scanWorkflow(s repository.Scanner) (*workflows.Workflow, error) {
	var (
		id        uuid.UUID
		subjectID string
		status    string
		priority  int
		createdAt time.Time
		doc       []byte
	)

	if err := s.Scan(&id, &subjectID, &status, &priority, &createdAt, &doc); err != nil {
		return nil, err
	}

	var w workflows.Workflow
	if err := json.Unmarshal(doc, &w); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", id, err)
	}
	return &w, nil
}

func encode(w *workflows.Workflow) ([]byte, error) {
	doc, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode workflow %s: %w", w.ID, err)
	}
	return doc, nil
}
