package lumen

import (
	"context"
	"fmt"
	"sort"
)

// TaskService owns task CRUD on top of the document store.
type TaskService struct {
	store  Store
	clock  Clock
	idgen  IDGenerator
	logger Logger
}

func NewTaskService(store Store, clock Clock, idgen IDGenerator, logger Logger) *TaskService {
	return &TaskService{store: store, clock: clock, idgen: idgen, logger: logger}
}

// Create persists a new task, filling defaults: active status, the default
// branch, and an order index past the end of the current list.
func (s *TaskService) Create(ctx context.Context, t *Task) (*Task, error) {
	now := s.clock.Now()
	if t.ID == "" {
		t.ID = s.idgen.New()
	}
	t.Rev = ""
	t.CreatedAt = now
	t.UpdatedAt = now
	t.DeletedAt = nil
	if t.Status == "" {
		t.Status = TaskActive
	}
	if t.BranchID == "" {
		t.BranchID = DefaultBranchID
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Attachments == nil {
		t.Attachments = []string{}
	}
	if t.OrderIndex == 0 {
		idx, err := s.nextOrderIndex(ctx, t.BranchID)
		if err != nil {
			return nil, err
		}
		t.OrderIndex = idx
	}

	stored, err := s.store.Upsert(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	s.logger.Debug("task created", "id", t.ID)
	return stored.(*Task), nil
}

// Get returns the task, or (nil, nil) when it is unknown or tombstoned.
func (s *TaskService) Get(ctx context.Context, id string) (*Task, error) {
	doc, err := getLive(ctx, s.store, id)
	if err != nil || doc == nil {
		return nil, err
	}
	t, ok := doc.(*Task)
	if !ok {
		return nil, nil
	}
	return t, nil
}

// List returns live tasks matching the filter, ordered by their manual
// position (order index, then id for a stable tie-break).
func (s *TaskService) List(ctx context.Context, f Filter) ([]*Task, error) {
	f.Type = DocTask
	docs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	tasks := make([]*Task, 0, len(docs))
	for _, d := range docs {
		tasks = append(tasks, d.(*Task))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].OrderIndex != tasks[j].OrderIndex {
			return tasks[i].OrderIndex < tasks[j].OrderIndex
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// Update writes the task back. The task's Rev must be the one read; a stale
// revision fails with ErrConflict and the caller must re-read and retry.
func (s *TaskService) Update(ctx context.Context, t *Task) (*Task, error) {
	if t.BranchID == "" {
		t.BranchID = DefaultBranchID
	}
	t.UpdatedAt = s.clock.Now()
	stored, err := s.store.Upsert(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", t.ID, err)
	}
	return stored.(*Task), nil
}

// SetStatus transitions the task to the given status.
// Returns (nil, nil) when the task is unknown.
func (s *TaskService) SetStatus(ctx context.Context, id string, status TaskStatus) (*Task, error) {
	t, err := s.Get(ctx, id)
	if err != nil || t == nil {
		return nil, err
	}
	t.Status = status
	return s.Update(ctx, t)
}

// Delete tombstones the task. Returns false when the id is unknown.
func (s *TaskService) Delete(ctx context.Context, id string) (bool, error) {
	return softDelete(ctx, s.store, s.clock, id)
}

// Restore clears the tombstone of a soft-deleted task.
// Returns (nil, nil) when the id is unknown.
func (s *TaskService) Restore(ctx context.Context, id string) (*Task, error) {
	doc, err := restore(ctx, s.store, s.clock, id)
	if err != nil || doc == nil {
		return nil, err
	}
	return doc.(*Task), nil
}

// nextOrderIndex returns an index past every task in the branch, leaving the
// usual gap so later inserts between neighbors stay cheap.
func (s *TaskService) nextOrderIndex(ctx context.Context, branchID string) (int64, error) {
	tasks, err := s.List(ctx, Filter{BranchID: branchID})
	if err != nil {
		return 0, err
	}
	var max int64
	for _, t := range tasks {
		if t.OrderIndex > max {
			max = t.OrderIndex
		}
	}
	return max + OrderIndexSpacing, nil
}

// getLive fetches a document, treating unknown and tombstoned alike.
func getLive(ctx context.Context, store Store, id string) (Document, error) {
	doc, err := store.Get(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if doc.Tombstoned() {
		return nil, nil
	}
	return doc, nil
}

// softDelete tombstones a document, bumping UpdatedAt so the deletion wins
// last-writer-wins merges against earlier edits on other replicas.
func softDelete(ctx context.Context, store Store, clock Clock, id string) (bool, error) {
	err := store.SoftDelete(ctx, id, clock.Now())
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("deleting %s: %w", id, err)
	}
	return true, nil
}

// restore clears a tombstone through a revision-checked write.
func restore(ctx context.Context, store Store, clock Clock, id string) (Document, error) {
	doc, err := store.Get(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !doc.Tombstoned() {
		return doc, nil
	}
	m := doc.DocMeta()
	m.DeletedAt = nil
	m.UpdatedAt = clock.Now()
	stored, err := store.Upsert(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("restoring %s: %w", id, err)
	}
	return stored, nil
}
