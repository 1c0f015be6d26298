package lumen

import (
	"context"
	"fmt"
	"time"
)

// SettingsService owns the settings singleton. Reads go through a TTL cache
// since settings are polled far more often than they change.
type SettingsService struct {
	store  Store
	clock  Clock
	logger Logger
	cache  *CachedLoader[*Settings]
}

func NewSettingsService(store Store, clock Clock, logger Logger, cacheTTL time.Duration) *SettingsService {
	s := &SettingsService{store: store, clock: clock, logger: logger}
	s.cache = NewCachedLoader(cacheTTL, clock, s.fetch)
	return s
}

// Get returns the settings, materializing defaults when the store holds
// none yet. Defaults are not persisted on read, so a fresh replica's first
// pull never races its own defaults against remote settings.
func (s *SettingsService) Get(ctx context.Context) (*Settings, error) {
	return s.cache.Get(ctx)
}

// Save writes the settings back under the singleton id. The Rev must be the
// one read (empty for the materialized default).
func (s *SettingsService) Save(ctx context.Context, settings *Settings) (*Settings, error) {
	settings.ID = SettingsID
	now := s.clock.Now()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now
	stored, err := s.store.Upsert(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("saving settings: %w", err)
	}
	s.cache.Clear()
	return stored.(*Settings), nil
}

// Invalidate drops the cached settings. Called when sync changes local data.
func (s *SettingsService) Invalidate() { s.cache.Clear() }

func (s *SettingsService) fetch(ctx context.Context) (*Settings, error) {
	doc, err := s.store.Get(ctx, SettingsID)
	if err != nil {
		if IsNotFound(err) {
			return s.defaults(), nil
		}
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	settings, ok := doc.(*Settings)
	if !ok || settings.Tombstoned() {
		return s.defaults(), nil
	}
	return settings, nil
}

func (s *SettingsService) defaults() *Settings {
	return &Settings{
		Meta:         Meta{ID: SettingsID},
		Theme:        "system",
		ActiveBranch: DefaultBranchID,
	}
}
