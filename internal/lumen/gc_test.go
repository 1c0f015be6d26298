package lumen_test

import (
	"context"
	"testing"
	"time"

	"lumen-go/internal/lumen"
	"lumen-go/internal/testutil"
)

func TestMaintenanceService_PurgeTombstones(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	idgen := testutil.NewStubIDGenerator()
	logger := lumen.NewNopLogger()
	tasks := lumen.NewTaskService(store, clock, idgen, logger)
	branches := lumen.NewBranchService(store, clock, idgen, logger)
	maint := lumen.NewMaintenanceService(store, clock, logger)

	if err := branches.EnsureDefault(ctx); err != nil {
		t.Fatalf("EnsureDefault() error = %v", err)
	}

	old, err := tasks.Create(ctx, &lumen.Task{Content: "old"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	recent, err := tasks.Create(ctx, &lumen.Task{Content: "recent"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	live, err := tasks.Create(ctx, &lumen.Task{Content: "live"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Tombstone one task long ago and one just now.
	if _, err := tasks.Delete(ctx, old.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	clock.Advance(60 * 24 * time.Hour)
	if _, err := tasks.Delete(ctx, recent.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	purged, err := maint.PurgeTombstones(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeTombstones() error = %v", err)
	}
	if purged != 1 {
		t.Errorf("purged %d documents, want 1", purged)
	}

	// The old tombstone is gone for good, the recent one is retained.
	if _, err := store.Get(ctx, old.ID); !lumen.IsNotFound(err) {
		t.Errorf("old tombstone still present, Get error = %v", err)
	}
	if doc, err := store.Get(ctx, recent.ID); err != nil || !doc.Tombstoned() {
		t.Errorf("recent tombstone purged early: doc=%v err=%v", doc, err)
	}
	if got, err := tasks.Get(ctx, live.ID); err != nil || got == nil {
		t.Errorf("live task touched by purge: got=%v err=%v", got, err)
	}

	t.Run("nothing to purge", func(t *testing.T) {
		n, err := maint.PurgeTombstones(ctx, 30*24*time.Hour)
		if err != nil {
			t.Fatalf("PurgeTombstones() error = %v", err)
		}
		if n != 0 {
			t.Errorf("purged %d documents, want 0", n)
		}
	})
}
