package lumen_test

import (
	"context"
	"testing"

	"lumen-go/internal/lumen"
	"lumen-go/internal/testutil"
)

func newTaskService(t *testing.T) (*lumen.TaskService, *testutil.StubClock) {
	t.Helper()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	return lumen.NewTaskService(store, clock, testutil.NewStubIDGenerator(), lumen.NewNopLogger()), clock
}

func TestTaskService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("fills defaults", func(t *testing.T) {
		svc, clock := newTaskService(t)

		created, err := svc.Create(ctx, &lumen.Task{Content: "buy milk"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if created.ID == "" {
			t.Error("created task has no id")
		}
		if created.Rev == "" {
			t.Error("created task has no revision")
		}
		if created.Status != lumen.TaskActive {
			t.Errorf("Status = %q, want active", created.Status)
		}
		if created.BranchID != lumen.DefaultBranchID {
			t.Errorf("BranchID = %q, want default branch", created.BranchID)
		}
		if created.OrderIndex != lumen.OrderIndexSpacing {
			t.Errorf("OrderIndex = %d, want %d", created.OrderIndex, lumen.OrderIndexSpacing)
		}
		if created.Tags == nil || created.Attachments == nil {
			t.Error("slices not initialized")
		}
		if !created.CreatedAt.Equal(clock.Now()) {
			t.Errorf("CreatedAt = %v, want clock time", created.CreatedAt)
		}
	})

	t.Run("spaces order indexes", func(t *testing.T) {
		svc, _ := newTaskService(t)

		first, err := svc.Create(ctx, &lumen.Task{Content: "one"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		second, err := svc.Create(ctx, &lumen.Task{Content: "two"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if second.OrderIndex != first.OrderIndex+lumen.OrderIndexSpacing {
			t.Errorf("OrderIndex gap = %d, want %d", second.OrderIndex-first.OrderIndex, lumen.OrderIndexSpacing)
		}
	})
}

func TestTaskService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns live task", func(t *testing.T) {
		svc, _ := newTaskService(t)
		created, err := svc.Create(ctx, &lumen.Task{Content: "buy milk"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := svc.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got == nil || got.Content != "buy milk" {
			t.Errorf("Get() = %+v, want the created task", got)
		}
	})

	t.Run("returns nil for unknown id", func(t *testing.T) {
		svc, _ := newTaskService(t)
		got, err := svc.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %+v, want nil", got)
		}
	})

	t.Run("returns nil for deleted task", func(t *testing.T) {
		svc, _ := newTaskService(t)
		created, err := svc.Create(ctx, &lumen.Task{Content: "buy milk"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := svc.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		got, err := svc.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get() = %+v, want nil for tombstoned task", got)
		}
	})
}

func TestTaskService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("bumps revision and timestamp", func(t *testing.T) {
		svc, clock := newTaskService(t)
		created, err := svc.Create(ctx, &lumen.Task{Content: "buy milk"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		clock.Advance(1)
		created.Content = "buy milk and eggs"
		updated, err := svc.Update(ctx, created)
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		if updated.Rev == "" || updated.Rev == created.Rev {
			t.Errorf("Rev = %q, want a fresh revision", updated.Rev)
		}
		if !updated.UpdatedAt.After(updated.CreatedAt) {
			t.Errorf("UpdatedAt = %v, want after CreatedAt", updated.UpdatedAt)
		}
	})

	t.Run("stale revision conflicts", func(t *testing.T) {
		svc, _ := newTaskService(t)
		created, err := svc.Create(ctx, &lumen.Task{Content: "buy milk"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		stale := *created
		if _, err := svc.Update(ctx, created); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		_, err = svc.Update(ctx, &stale)
		if !lumen.IsConflict(err) {
			t.Errorf("Update() with stale rev error = %v, want conflict", err)
		}
	})
}

func TestTaskService_SetStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService(t)

	created, err := svc.Create(ctx, &lumen.Task{Content: "buy milk"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	done, err := svc.SetStatus(ctx, created.ID, lumen.TaskDone)
	if err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if done.Status != lumen.TaskDone {
		t.Errorf("Status = %q, want done", done.Status)
	}

	missing, err := svc.SetStatus(ctx, "missing", lumen.TaskDone)
	if err != nil || missing != nil {
		t.Errorf("SetStatus(missing) = (%+v, %v), want (nil, nil)", missing, err)
	}
}

func TestTaskService_DeleteAndRestore(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTaskService(t)

	created, err := svc.Create(ctx, &lumen.Task{Content: "buy milk"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	clock.Advance(1)
	deleted, err := svc.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Fatal("Delete() = false, want true")
	}

	// Deleted tasks disappear from listings.
	tasks, err := svc.List(ctx, lumen.Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("List() has %d tasks after delete, want 0", len(tasks))
	}

	clock.Advance(1)
	restored, err := svc.Restore(ctx, created.ID)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored == nil || restored.Tombstoned() {
		t.Fatalf("Restore() = %+v, want live task", restored)
	}
	if restored.Content != "buy milk" {
		t.Errorf("restored Content = %q, want original", restored.Content)
	}

	if got, err := svc.Get(ctx, created.ID); err != nil || got == nil {
		t.Errorf("Get() after restore = (%+v, %v), want live task", got, err)
	}
}

func TestTaskService_List(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskService(t)

	mk := func(content, date string, status lumen.TaskStatus) {
		t.Helper()
		created, err := svc.Create(ctx, &lumen.Task{Content: content, Scheduled: lumen.Schedule{Date: date}})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", content, err)
		}
		if status != lumen.TaskActive {
			if _, err := svc.SetStatus(ctx, created.ID, status); err != nil {
				t.Fatalf("SetStatus(%s) error = %v", content, err)
			}
		}
	}
	mk("a", "2026-03-10", lumen.TaskActive)
	mk("b", "2026-03-10", lumen.TaskDone)
	mk("c", "2026-03-11", lumen.TaskActive)
	mk("d", "", lumen.TaskActive)

	t.Run("by date", func(t *testing.T) {
		tasks, err := svc.List(ctx, lumen.Filter{ScheduledDate: "2026-03-10"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(tasks) != 2 {
			t.Errorf("List(date) has %d tasks, want 2", len(tasks))
		}
	})

	t.Run("by status", func(t *testing.T) {
		tasks, err := svc.List(ctx, lumen.Filter{Status: lumen.TaskDone})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(tasks) != 1 || tasks[0].Content != "b" {
			t.Errorf("List(done) = %+v, want only task b", tasks)
		}
	})

	t.Run("unfiltered returns all live", func(t *testing.T) {
		tasks, err := svc.List(ctx, lumen.Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(tasks) != 4 {
			t.Errorf("List() has %d tasks, want 4", len(tasks))
		}
	})

	t.Run("ordered by manual position", func(t *testing.T) {
		svc, _ := newTaskService(t)

		first, err := svc.Create(ctx, &lumen.Task{Content: "one"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := svc.Create(ctx, &lumen.Task{Content: "two"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		third, err := svc.Create(ctx, &lumen.Task{Content: "three"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		// Drag the newest task to the front of the list.
		third.OrderIndex = first.OrderIndex / 2
		if _, err := svc.Update(ctx, third); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		tasks, err := svc.List(ctx, lumen.Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		var contents []string
		for _, task := range tasks {
			contents = append(contents, task.Content)
		}
		want := []string{"three", "one", "two"}
		for i := range want {
			if contents[i] != want[i] {
				t.Fatalf("List() order = %v, want %v", contents, want)
			}
		}
	})
}
