package lumen

import (
	"context"
	"fmt"
	"strings"
)

// BranchService owns branch CRUD. The default branch is always present and
// can be neither deleted nor renamed.
type BranchService struct {
	store  Store
	clock  Clock
	idgen  IDGenerator
	logger Logger
}

func NewBranchService(store Store, clock Clock, idgen IDGenerator, logger Logger) *BranchService {
	return &BranchService{store: store, clock: clock, idgen: idgen, logger: logger}
}

// EnsureDefault creates the default branch if the store does not hold it.
// Safe to call on every startup.
func (s *BranchService) EnsureDefault(ctx context.Context) error {
	doc, err := s.store.Get(ctx, DefaultBranchID)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("checking default branch: %w", err)
	}
	if doc != nil && !doc.Tombstoned() {
		return nil
	}

	now := s.clock.Now()
	b := &Branch{
		Meta: Meta{ID: DefaultBranchID, CreatedAt: now, UpdatedAt: now},
		Name: "Main",
	}
	if doc != nil {
		// A synced tombstone must not keep the default branch dead.
		b.Rev = doc.DocRev()
		b.CreatedAt = doc.DocMeta().CreatedAt
	}
	if _, err := s.store.Upsert(ctx, b); err != nil {
		return fmt.Errorf("creating default branch: %w", err)
	}
	return nil
}

// Create persists a new branch with a case-insensitively unique name.
func (s *BranchService) Create(ctx context.Context, name string) (*Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("branch name must not be empty")
	}
	if err := s.checkNameFree(ctx, name, ""); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	b := &Branch{
		Meta: Meta{ID: s.idgen.New(), CreatedAt: now, UpdatedAt: now},
		Name: name,
	}
	stored, err := s.store.Upsert(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("creating branch: %w", err)
	}
	return stored.(*Branch), nil
}

// Get returns the branch, or (nil, nil) when it is unknown or tombstoned.
func (s *BranchService) Get(ctx context.Context, id string) (*Branch, error) {
	doc, err := getLive(ctx, s.store, id)
	if err != nil || doc == nil {
		return nil, err
	}
	b, ok := doc.(*Branch)
	if !ok {
		return nil, nil
	}
	return b, nil
}

// List returns live branches.
func (s *BranchService) List(ctx context.Context) ([]*Branch, error) {
	docs, err := s.store.List(ctx, Filter{Type: DocBranch})
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	branches := make([]*Branch, 0, len(docs))
	for _, d := range docs {
		branches = append(branches, d.(*Branch))
	}
	return branches, nil
}

// Rename changes a branch's name. The default branch keeps its name.
func (s *BranchService) Rename(ctx context.Context, id, name string) (*Branch, error) {
	if id == DefaultBranchID {
		return nil, fmt.Errorf("the default branch cannot be renamed")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("branch name must not be empty")
	}
	b, err := s.Get(ctx, id)
	if err != nil || b == nil {
		return nil, err
	}
	if err := s.checkNameFree(ctx, name, id); err != nil {
		return nil, err
	}
	b.Name = name
	b.UpdatedAt = s.clock.Now()
	stored, err := s.store.Upsert(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("renaming branch %s: %w", id, err)
	}
	return stored.(*Branch), nil
}

// Delete tombstones the branch, re-homes its live tasks to the default
// branch (best-effort, like the tag cascade), and re-points the active
// branch setting when it referenced the deleted branch.
func (s *BranchService) Delete(ctx context.Context, id string) (bool, error) {
	if id == DefaultBranchID {
		return false, fmt.Errorf("the default branch cannot be deleted")
	}
	ok, err := softDelete(ctx, s.store, s.clock, id)
	if err != nil || !ok {
		return ok, err
	}

	docs, err := s.store.List(ctx, Filter{Type: DocTask, BranchID: id})
	if err != nil {
		return true, fmt.Errorf("listing tasks of deleted branch: %w", err)
	}
	for _, d := range docs {
		task := d.(*Task)
		task.BranchID = DefaultBranchID
		task.UpdatedAt = s.clock.Now()
		if _, err := s.store.Upsert(ctx, task); err != nil {
			s.logger.Warn("branch delete: task re-home failed", "task", task.ID, "error", err)
		}
	}

	if err := s.fallbackActiveBranch(ctx, id); err != nil {
		s.logger.Warn("branch delete: active branch fallback failed", "branch", id, "error", err)
	}
	return true, nil
}

// fallbackActiveBranch resets Settings.ActiveBranch to the default branch
// when it points at the deleted branch.
func (s *BranchService) fallbackActiveBranch(ctx context.Context, deletedID string) error {
	doc, err := s.store.Get(ctx, SettingsID)
	if err != nil {
		if IsNotFound(err) {
			return nil // no settings yet, nothing points anywhere
		}
		return err
	}
	settings, ok := doc.(*Settings)
	if !ok || settings.ActiveBranch != deletedID {
		return nil
	}
	settings.ActiveBranch = DefaultBranchID
	settings.UpdatedAt = s.clock.Now()
	_, err = s.store.Upsert(ctx, settings)
	return err
}

func (s *BranchService) checkNameFree(ctx context.Context, name, selfID string) error {
	docs, err := s.store.List(ctx, Filter{Type: DocBranch, NameLower: strings.ToLower(name)})
	if err != nil {
		return fmt.Errorf("checking branch name: %w", err)
	}
	for _, d := range docs {
		if d.DocID() != selfID {
			return fmt.Errorf("branch %q already exists", name)
		}
	}
	return nil
}
