package workflows

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/JaimeStill/renewal/pkg/pagination"
)

type entry struct {
	mu sync.Mutex
	wf *Workflow
}

type memory struct {
	mu       sync.RWMutex
	open     map[uuid.UUID]*entry
	subjects map[string]uuid.UUID
	history  map[uuid.UUID]*Workflow
	paging   pagination.Config
}

// NewMemoryStore creates an in-process Store. The map lock only guards
// membership; each open workflow has its own mutex, and updates swap in a
// modified copy so readers never observe a partial change. List pages
// are normalized against paging.
func NewMemoryStore(paging pagination.Config) Store {
	return &memory{
		open:     make(map[uuid.UUID]*entry),
		subjects: make(map[string]uuid.UUID),
		history:  make(map[uuid.UUID]*Workflow),
		paging:   paging,
	}
}

func (m *memory) Create(ctx context.Context, w *Workflow) error {
	if w.Status.Terminal() {
		return fmt.Errorf("%w: cannot create a %s workflow", ErrInvalidCommand, w.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.open[w.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.history[w.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := m.subjects[w.SubjectID]; ok {
		return fmt.Errorf("%w: subject %s has an open workflow", ErrDuplicate, w.SubjectID)
	}

	m.open[w.ID] = &entry{wf: w.Clone()}
	m.subjects[w.SubjectID] = w.ID
	return nil
}

func (m *memory) Find(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	m.mu.RLock()
	e, ok := m.open[id]
	h, inHistory := m.history[id]
	m.mu.RUnlock()

	if inHistory {
		return h.Clone(), nil
	}
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wf.Clone(), nil
}

func (m *memory) FindOpen(ctx context.Context, subjectID string) (*Workflow, error) {
	m.mu.RLock()
	id, ok := m.subjects[subjectID]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	w, err := m.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Status.Terminal() {
		return nil, ErrNotFound
	}
	return w, nil
}

func (m *memory) Update(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*Workflow, error) {
	m.mu.RLock()
	e, ok := m.open[id]
	_, inHistory := m.history[id]
	m.mu.RUnlock()

	if inHistory {
		return nil, ErrTerminal
	}
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// the entry may have moved to history while waiting for the lock
	if e.wf.Status.Terminal() {
		return nil, ErrTerminal
	}

	next := e.wf.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	e.wf = next

	if next.Status.Terminal() {
		m.retire(next)
	}

	return next.Clone(), nil
}

func (m *memory) retire(w *Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.open, w.ID)
	if m.subjects[w.SubjectID] == w.ID {
		delete(m.subjects, w.SubjectID)
	}
	m.history[w.ID] = w.Clone()
}

func (m *memory) Open(ctx context.Context) ([]*Workflow, error) {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.open))
	for _, e := range m.open {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	result := make([]*Workflow, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.wf.Status.Terminal() {
			result = append(result, e.wf.Clone())
		}
		e.mu.Unlock()
	}

	sortWorkflows(result)
	return result, nil
}

func (m *memory) List(
	ctx context.Context,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Workflow], error) {
	page.Normalize(m.paging)

	open, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	all := open
	for _, h := range m.history {
		all = append(all, h.Clone())
	}
	m.mu.RUnlock()

	matched := make([]Workflow, 0, len(all))
	for _, w := range all {
		if filters.Match(w) {
			matched = append(matched, *w)
		}
	}

	slices.SortFunc(matched, func(a, b Workflow) int {
		return compareWorkflows(&a, &b)
	})

	result := pagination.Slice(matched, page)
	return &result, nil
}

func sortWorkflows(ws []*Workflow) {
	slices.SortFunc(ws, compareWorkflows)
}

func compareWorkflows(a, b *Workflow) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return bytes.Compare(a.ID[:], b.ID[:])
}
