package workflows_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/renewal/internal/workflows"
	"github.com/JaimeStill/renewal/pkg/pagination"
)

func TestMemoryCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := workflows.NewMemoryStore(pagination.DefaultConfig())

	w := sample(workflows.StatusPending)
	require.NoError(t, store.Create(ctx, w))

	got, err := store.Find(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w, got)

	got.Steps[0].Status = workflows.StepPending
	again, err := store.Find(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflows.StepCompleted, again.Steps[0].Status, "snapshots are owned by the caller")

	open, err := store.FindOpen(ctx, w.SubjectID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, open.ID)

	_, err = store.Find(ctx, uuid.New())
	require.ErrorIs(t, err, workflows.ErrNotFound)

	_, err = store.FindOpen(ctx, "tenant-2")
	require.ErrorIs(t, err, workflows.ErrNotFound)
}

func TestMemoryCreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := workflows.NewMemoryStore(pagination.DefaultConfig())

	w := sample(workflows.StatusPending)
	require.NoError(t, store.Create(ctx, w))
	require.ErrorIs(t, store.Create(ctx, w), workflows.ErrDuplicate)

	other := sample(workflows.StatusPending)
	require.ErrorIs(t, store.Create(ctx, other), workflows.ErrDuplicate, "one open workflow per subject")

	require.ErrorIs(t, store.Create(ctx, sample(workflows.StatusCancelled)), workflows.ErrInvalidCommand)
}

func TestMemoryUpdate(t *testing.T) {
	ctx := context.Background()
	store := workflows.NewMemoryStore(pagination.DefaultConfig())

	w := sample(workflows.StatusPending)
	require.NoError(t, store.Create(ctx, w))

	got, err := store.Update(ctx, w.ID, func(w *workflows.Workflow) error {
		return w.Activate(epoch)
	})
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusActive, got.Status)

	stale := errors.New("stale")
	_, err = store.Update(ctx, w.ID, func(w *workflows.Workflow) error {
		w.Priority = 10
		return stale
	})
	require.ErrorIs(t, err, stale)

	got, err = store.Find(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Priority, "failed updates are discarded")

	_, err = store.Update(ctx, uuid.New(), func(*workflows.Workflow) error { return nil })
	require.ErrorIs(t, err, workflows.ErrNotFound)
}

func TestMemoryTerminalMovesToHistory(t *testing.T) {
	ctx := context.Background()
	store := workflows.NewMemoryStore(pagination.DefaultConfig())

	w := sample(workflows.StatusActive)
	require.NoError(t, store.Create(ctx, w))

	_, err := store.Update(ctx, w.ID, func(w *workflows.Workflow) error {
		return w.Cancel(epoch)
	})
	require.NoError(t, err)

	open, err := store.Open(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = store.FindOpen(ctx, w.SubjectID)
	require.ErrorIs(t, err, workflows.ErrNotFound)

	got, err := store.Find(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflows.StatusCancelled, got.Status)

	_, err = store.Update(ctx, w.ID, func(*workflows.Workflow) error { return nil })
	require.ErrorIs(t, err, workflows.ErrTerminal)

	next := sample(workflows.StatusPending)
	require.NoError(t, store.Create(ctx, next), "subject is free once its workflow is terminal")
}

func TestMemoryConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	store := workflows.NewMemoryStore(pagination.DefaultConfig())

	w := sample(workflows.StatusActive)
	require.NoError(t, store.Create(ctx, w))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)

	for range 32 {
		wg.Go(func() {
			_, err := store.Update(ctx, w.ID, func(w *workflows.Workflow) error {
				s := w.Step("sms-14")
				if s.Status != workflows.StepPending {
					return workflows.ErrStepNotReady
				}
				s.Status = workflows.StepActive
				return nil
			})
			if err == nil {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	store := workflows.NewMemoryStore(pagination.DefaultConfig())

	subjects := []struct {
		id       string
		priority int
		status   workflows.Status
	}{
		{"tenant-a", 3, workflows.StatusPending},
		{"tenant-b", 9, workflows.StatusActive},
		{"tenant-c", 6, workflows.StatusActive},
		{"tenant-d", 7, workflows.StatusActive},
	}

	for i, s := range subjects {
		w := sample(s.status)
		w.SubjectID = s.id
		w.Priority = s.priority
		w.CreatedAt = epoch.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Create(ctx, w))

		if s.id == "tenant-d" {
			_, err := store.Update(ctx, w.ID, func(w *workflows.Workflow) error { return w.Complete(epoch) })
			require.NoError(t, err)
		}
	}

	page, err := store.List(ctx, pagination.PageRequest{Page: 1, PageSize: 2}, workflows.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "tenant-b", page.Data[0].SubjectID)
	assert.Equal(t, "tenant-d", page.Data[1].SubjectID, "history is listed alongside open workflows")

	active := workflows.StatusActive
	minPriority := 5
	page, err = store.List(ctx, pagination.PageRequest{Page: 1, PageSize: 10}, workflows.Filters{
		Status:      &active,
		MinPriority: &minPriority,
	})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "tenant-b", page.Data[0].SubjectID)
	assert.Equal(t, "tenant-c", page.Data[1].SubjectID)

	page, err = store.List(ctx, pagination.PageRequest{Page: 3, PageSize: 2}, workflows.Filters{})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
}

func TestMemoryListUsesConfiguredPaging(t *testing.T) {
	ctx := context.Background()
	store := workflows.NewMemoryStore(pagination.Config{DefaultPageSize: 2, MaxPageSize: 3})

	for i := range 5 {
		w := sample(workflows.StatusActive)
		w.SubjectID = fmt.Sprintf("tenant-%d", i)
		require.NoError(t, store.Create(ctx, w))
	}

	tests := []struct {
		name     string
		req      pagination.PageRequest
		pageSize int
		count    int
	}{
		{"unset uses default", pagination.PageRequest{}, 2, 2},
		{"oversized is capped", pagination.PageRequest{Page: 1, PageSize: 50}, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := store.List(ctx, tt.req, workflows.Filters{})
			require.NoError(t, err)
			assert.Equal(t, tt.pageSize, page.PageSize)
			assert.Len(t, page.Data, tt.count)
			assert.Equal(t, 5, page.Total)
		})
	}
}
