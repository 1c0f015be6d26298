package database_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"lumen-go/internal/database"
	"lumen-go/internal/lumen"
)

func newStore(t *testing.T) *database.SQLiteStore {
	t.Helper()
	store, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTask(id, content string, at time.Time) *lumen.Task {
	return &lumen.Task{
		Meta:     lumen.Meta{ID: id, CreatedAt: at, UpdatedAt: at},
		Status:   lumen.TaskActive,
		Content:  content,
		BranchID: lumen.DefaultBranchID,
		Tags:     []string{},
	}
}

func TestSQLiteStore_Upsert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	t.Run("assigns a revision on insert", func(t *testing.T) {
		store := newStore(t)
		stored, err := store.Upsert(ctx, newTask("t1", "buy milk", now))
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if stored.DocRev() == "" {
			t.Error("stored document has no revision")
		}
	})

	t.Run("matching revision updates", func(t *testing.T) {
		store := newStore(t)
		stored, err := store.Upsert(ctx, newTask("t1", "buy milk", now))
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		task := stored.(*lumen.Task)
		task.Content = "buy milk and eggs"
		updated, err := store.Upsert(ctx, task)
		if err != nil {
			t.Fatalf("second Upsert() error = %v", err)
		}
		if updated.DocRev() == "" || updated.DocRev() == stored.DocRev() {
			t.Error("update did not assign a fresh revision")
		}

		got, err := store.Get(ctx, "t1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.(*lumen.Task).Content != "buy milk and eggs" {
			t.Errorf("Content = %q, want updated", got.(*lumen.Task).Content)
		}
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Upsert(ctx, newTask("t1", "buy milk", now)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		stale := newTask("t1", "from yesterday", now)
		stale.Rev = "stale-revision"
		_, err := store.Upsert(ctx, stale)
		if !lumen.IsConflict(err) {
			t.Fatalf("Upsert() error = %v, want conflict", err)
		}

		var conflict *lumen.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("error %v does not carry ConflictError detail", err)
		}
		if conflict.ID != "t1" || conflict.Given != "stale-revision" {
			t.Errorf("conflict detail = %+v", conflict)
		}
	})

	t.Run("empty revision against existing row conflicts", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Upsert(ctx, newTask("t1", "buy milk", now)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if _, err := store.Upsert(ctx, newTask("t1", "recreated", now)); !lumen.IsConflict(err) {
			t.Errorf("Upsert() error = %v, want conflict", err)
		}
	})
}

func TestSQLiteStore_Put(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newStore(t)

	// Put writes verbatim: the revision survives and no check applies.
	task := newTask("t1", "from remote", now)
	task.Rev = "remote-revision"
	if err := store.Put(ctx, task); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DocRev() != "remote-revision" {
		t.Errorf("Rev = %q, want the put revision kept verbatim", got.DocRev())
	}

	// Overwriting with a different revision also succeeds.
	task.Rev = "newer-remote-revision"
	task.Content = "overwritten"
	if err := store.Put(ctx, task); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}
	got, err = store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.(*lumen.Task).Content != "overwritten" {
		t.Errorf("Content = %q, want overwritten", got.(*lumen.Task).Content)
	}
}

func TestSQLiteStore_Get(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	_, err := store.Get(ctx, "missing")
	if !lumen.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want not found", err)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newStore(t)

	a := newTask("a", "scheduled", now)
	a.Scheduled.Date = "2026-03-10"
	b := newTask("b", "done", now)
	b.Status = lumen.TaskDone
	c := newTask("c", "other branch", now)
	c.BranchID = "work"
	for _, task := range []*lumen.Task{a, b, c} {
		if _, err := store.Upsert(ctx, task); err != nil {
			t.Fatalf("Upsert(%s) error = %v", task.ID, err)
		}
	}
	if _, err := store.Upsert(ctx, &lumen.Tag{
		Meta: lumen.Meta{ID: "tag-1", CreatedAt: now, UpdatedAt: now},
		Name: "Errands",
	}); err != nil {
		t.Fatalf("Upsert(tag) error = %v", err)
	}
	if err := store.SoftDelete(ctx, "c", now.Add(time.Minute)); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	t.Run("by type", func(t *testing.T) {
		docs, err := store.List(ctx, lumen.Filter{Type: lumen.DocTag})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 1 || docs[0].DocID() != "tag-1" {
			t.Errorf("List(tag) = %v", docs)
		}
	})

	t.Run("by status", func(t *testing.T) {
		docs, err := store.List(ctx, lumen.Filter{Type: lumen.DocTask, Status: lumen.TaskDone})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 1 || docs[0].DocID() != "b" {
			t.Errorf("List(done) = %v", docs)
		}
	})

	t.Run("by scheduled date", func(t *testing.T) {
		docs, err := store.List(ctx, lumen.Filter{ScheduledDate: "2026-03-10"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 1 || docs[0].DocID() != "a" {
			t.Errorf("List(date) = %v", docs)
		}
	})

	t.Run("by case-folded name", func(t *testing.T) {
		docs, err := store.List(ctx, lumen.Filter{Type: lumen.DocTag, NameLower: "errands"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 1 {
			t.Errorf("List(name_lower) found %d documents, want 1", len(docs))
		}
	})

	t.Run("excludes tombstones by default", func(t *testing.T) {
		docs, err := store.List(ctx, lumen.Filter{Type: lumen.DocTask})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 2 {
			t.Errorf("List() has %d live tasks, want 2", len(docs))
		}
	})

	t.Run("includes tombstones on request", func(t *testing.T) {
		docs, err := store.List(ctx, lumen.Filter{Type: lumen.DocTask, IncludeDeleted: true})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 3 {
			t.Errorf("List() has %d tasks with tombstones, want 3", len(docs))
		}
	})

	t.Run("updated since", func(t *testing.T) {
		since := now.Add(30 * time.Second)
		docs, err := store.List(ctx, lumen.Filter{IncludeDeleted: true, UpdatedSince: &since})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(docs) != 1 || docs[0].DocID() != "c" {
			t.Errorf("List(updated since) = %v, want only the late tombstone", docs)
		}
	})
}

func TestSQLiteStore_SoftDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newStore(t)

	stored, err := store.Upsert(ctx, newTask("t1", "buy milk", now))
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	deleteAt := now.Add(time.Hour)
	if err := store.SoftDelete(ctx, "t1", deleteAt); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	m := got.DocMeta()
	if m.DeletedAt == nil || !m.DeletedAt.Equal(deleteAt) {
		t.Errorf("DeletedAt = %v, want %v", m.DeletedAt, deleteAt)
	}
	if !m.UpdatedAt.Equal(deleteAt) {
		t.Errorf("UpdatedAt = %v, want bumped to deletion time", m.UpdatedAt)
	}
	if m.Rev == stored.DocRev() {
		t.Error("tombstone kept the old revision")
	}

	if err := store.SoftDelete(ctx, "missing", deleteAt); !lumen.IsNotFound(err) {
		t.Errorf("SoftDelete(missing) error = %v, want not found", err)
	}
}

func TestSQLiteStore_HardDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newStore(t)

	for _, id := range []string{"t1", "t2", "t3"} {
		if _, err := store.Upsert(ctx, newTask(id, "x", now)); err != nil {
			t.Fatalf("Upsert(%s) error = %v", id, err)
		}
	}

	n, err := store.HardDelete(ctx, []string{"t1", "t3", "missing"})
	if err != nil {
		t.Fatalf("HardDelete() error = %v", err)
	}
	if n != 2 {
		t.Errorf("HardDelete() = %d, want 2", n)
	}

	if _, err := store.Get(ctx, "t1"); !lumen.IsNotFound(err) {
		t.Errorf("t1 still present after hard delete")
	}
	if _, err := store.Get(ctx, "t2"); err != nil {
		t.Errorf("t2 lost by hard delete of other ids: %v", err)
	}

	n, err = store.HardDelete(ctx, nil)
	if err != nil || n != 0 {
		t.Errorf("HardDelete(nil) = (%d, %v), want (0, nil)", n, err)
	}
}

func TestSQLiteStore_All(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newStore(t)

	if _, err := store.Upsert(ctx, newTask("t1", "buy milk", now)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := store.Upsert(ctx, &lumen.Branch{
		Meta: lumen.Meta{ID: lumen.DefaultBranchID, CreatedAt: now, UpdatedAt: now},
		Name: "Main",
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.SoftDelete(ctx, "t1", now.Add(time.Minute)); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	cols, err := store.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(cols.Tasks) != 1 || !cols.Tasks[0].Tombstoned() {
		t.Errorf("All() tasks = %+v, want the tombstone included", cols.Tasks)
	}
	if len(cols.Branches) != 1 {
		t.Errorf("All() branches = %+v", cols.Branches)
	}
	if cols.Tags == nil || cols.Files == nil || cols.Settings == nil {
		t.Error("All() left empty collections nil")
	}
}

func TestSQLiteStore_Blobs(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := newStore(t)

	if _, err := store.Upsert(ctx, &lumen.FileDoc{
		Meta: lumen.Meta{ID: "f1", CreatedAt: now, UpdatedAt: now},
		Name: "shot.png",
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	payload := []byte{0x89, 'P', 'N', 'G', 0x00}
	if err := store.PutBlob(ctx, "f1", payload); err != nil {
		t.Fatalf("PutBlob() error = %v", err)
	}
	got, err := store.GetBlob(ctx, "f1")
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("GetBlob() = %v, want original bytes", got)
	}

	// Replacing the payload upserts in place.
	if err := store.PutBlob(ctx, "f1", []byte("v2")); err != nil {
		t.Fatalf("second PutBlob() error = %v", err)
	}
	got, err = store.GetBlob(ctx, "f1")
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("GetBlob() = %q, want v2", got)
	}

	// Hard-deleting the record cascades to the blob.
	if _, err := store.HardDelete(ctx, []string{"f1"}); err != nil {
		t.Fatalf("HardDelete() error = %v", err)
	}
	if _, err := store.GetBlob(ctx, "f1"); !lumen.IsNotFound(err) {
		t.Errorf("GetBlob() after cascade error = %v, want not found", err)
	}
}
