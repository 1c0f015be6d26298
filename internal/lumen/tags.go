package lumen

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// TagService owns tag CRUD and enforces the rules the store does not:
// case-insensitive name uniqueness and cascading removal from tasks.
type TagService struct {
	store  Store
	clock  Clock
	idgen  IDGenerator
	logger Logger
}

func NewTagService(store Store, clock Clock, idgen IDGenerator, logger Logger) *TagService {
	return &TagService{store: store, clock: clock, idgen: idgen, logger: logger}
}

// TagCascade reports the outcome of a tag deletion's best-effort cascade.
type TagCascade struct {
	TasksUpdated int
	TaskFailures int
}

// Create persists a new tag. Names are unique case-insensitively among live
// tags; tombstoned tags never block a name.
func (s *TagService) Create(ctx context.Context, name, color string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name must not be empty")
	}
	if err := s.checkNameFree(ctx, name, ""); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := &Tag{
		Meta:  Meta{ID: s.idgen.New(), CreatedAt: now, UpdatedAt: now},
		Name:  name,
		Color: color,
	}
	stored, err := s.store.Upsert(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("creating tag: %w", err)
	}
	return stored.(*Tag), nil
}

// Get returns the tag, or (nil, nil) when it is unknown or tombstoned.
func (s *TagService) Get(ctx context.Context, id string) (*Tag, error) {
	doc, err := getLive(ctx, s.store, id)
	if err != nil || doc == nil {
		return nil, err
	}
	t, ok := doc.(*Tag)
	if !ok {
		return nil, nil
	}
	return t, nil
}

// List returns live tags ordered by sort order, then name.
func (s *TagService) List(ctx context.Context) ([]*Tag, error) {
	docs, err := s.store.List(ctx, Filter{Type: DocTag})
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	tags := make([]*Tag, 0, len(docs))
	for _, d := range docs {
		tags = append(tags, d.(*Tag))
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].SortOrder != tags[j].SortOrder {
			return tags[i].SortOrder < tags[j].SortOrder
		}
		return strings.ToLower(tags[i].Name) < strings.ToLower(tags[j].Name)
	})
	return tags, nil
}

// Update writes the tag back, re-checking name uniqueness against other tags.
func (s *TagService) Update(ctx context.Context, t *Tag) (*Tag, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, fmt.Errorf("tag name must not be empty")
	}
	if err := s.checkNameFree(ctx, t.Name, t.ID); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.clock.Now()
	stored, err := s.store.Upsert(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("updating tag %s: %w", t.ID, err)
	}
	return stored.(*Tag), nil
}

// Delete tombstones the tag and removes its id from every live task that
// carries it. The cascade is best-effort: individual task failures are
// counted and logged, never fatal to the deletion itself.
func (s *TagService) Delete(ctx context.Context, id string) (*TagCascade, error) {
	ok, err := softDelete(ctx, s.store, s.clock, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	docs, err := s.store.List(ctx, Filter{Type: DocTask})
	if err != nil {
		return nil, fmt.Errorf("listing tasks for tag cascade: %w", err)
	}

	cascade := &TagCascade{}
	for _, d := range docs {
		task := d.(*Task)
		trimmed := removeString(task.Tags, id)
		if len(trimmed) == len(task.Tags) {
			continue
		}
		task.Tags = trimmed
		task.UpdatedAt = s.clock.Now()
		if _, err := s.store.Upsert(ctx, task); err != nil {
			s.logger.Warn("tag cascade: task update failed", "task", task.ID, "tag", id, "error", err)
			cascade.TaskFailures++
			continue
		}
		cascade.TasksUpdated++
	}

	s.logger.Info("tag deleted", "id", id, "tasks_updated", cascade.TasksUpdated, "failures", cascade.TaskFailures)
	return cascade, nil
}

func (s *TagService) checkNameFree(ctx context.Context, name, selfID string) error {
	docs, err := s.store.List(ctx, Filter{Type: DocTag, NameLower: strings.ToLower(name)})
	if err != nil {
		return fmt.Errorf("checking tag name: %w", err)
	}
	for _, d := range docs {
		if d.DocID() != selfID {
			return fmt.Errorf("tag %q already exists", name)
		}
	}
	return nil
}

func removeString(xs []string, x string) []string {
	out := xs[:0:0]
	for _, v := range xs {
		if v != x {
			out = append(out, v)
		}
	}
	return out
}
