package lumen

import (
	"context"
	"fmt"
	"time"
)

// MaintenanceService performs the explicit hard-deletion passes: purging
// tombstones that are old enough that every replica has long since seen them.
type MaintenanceService struct {
	store  Store
	clock  Clock
	logger Logger
}

func NewMaintenanceService(store Store, clock Clock, logger Logger) *MaintenanceService {
	return &MaintenanceService{store: store, clock: clock, logger: logger}
}

// PurgeTombstones hard-deletes every document whose tombstone is older than
// the retention window. The default branch and the settings singleton are
// never purged. Returns the number of documents removed.
func (s *MaintenanceService) PurgeTombstones(ctx context.Context, retention time.Duration) (int, error) {
	docs, err := s.store.List(ctx, Filter{IncludeDeleted: true})
	if err != nil {
		return 0, fmt.Errorf("listing documents for purge: %w", err)
	}

	cutoff := s.clock.Now().Add(-retention)
	var ids []string
	for _, d := range docs {
		m := d.DocMeta()
		if m.DeletedAt == nil || m.DeletedAt.After(cutoff) {
			continue
		}
		if m.ID == DefaultBranchID || m.ID == SettingsID {
			continue
		}
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.store.HardDelete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("purging tombstones: %w", err)
	}
	s.logger.Info("tombstones purged", "count", n, "cutoff", cutoff)
	return n, nil
}
