package lumen_test

import (
	"context"
	"testing"

	"lumen-go/internal/lumen"
	"lumen-go/internal/testutil"
)

func TestDayService_Days(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	clock := testutil.FixedClock()
	idgen := testutil.NewStubIDGenerator()
	logger := lumen.NewNopLogger()
	tasks := lumen.NewTaskService(store, clock, idgen, logger)
	days := lumen.NewDayService(store, clock, logger, 0)

	mk := func(content, date string, status lumen.TaskStatus, tags ...string) *lumen.Task {
		t.Helper()
		created, err := tasks.Create(ctx, &lumen.Task{
			Content:   content,
			Scheduled: lumen.Schedule{Date: date},
			Tags:      tags,
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", content, err)
		}
		if status != lumen.TaskActive {
			if _, err := tasks.SetStatus(ctx, created.ID, status); err != nil {
				t.Fatalf("SetStatus(%s) error = %v", content, err)
			}
		}
		return created
	}

	mk("a", "2026-03-10", lumen.TaskActive, "tag-x")
	mk("b", "2026-03-10", lumen.TaskDone, "tag-x", "tag-y")
	mk("c", "2026-03-10", lumen.TaskDiscarded)
	mk("d", "2026-03-12", lumen.TaskActive)
	mk("e", "", lumen.TaskActive)
	doomed := mk("f", "2026-03-12", lumen.TaskActive)
	if _, err := tasks.Delete(ctx, doomed.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	days.Invalidate()

	got, err := days.Days(ctx)
	if err != nil {
		t.Fatalf("Days() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("Days() has %d entries, want 2 (unscheduled and deleted excluded)", len(got))
	}

	first := got[0]
	if first.Date != "2026-03-10" {
		t.Errorf("days not sorted by date: first = %s", first.Date)
	}
	if first.ActiveCount != 1 || first.DoneCount != 1 {
		t.Errorf("counts = %d active, %d done, want 1 and 1 (discarded excluded)", first.ActiveCount, first.DoneCount)
	}
	if len(first.TaskIDs) != 3 {
		t.Errorf("TaskIDs has %d entries, want 3", len(first.TaskIDs))
	}
	if len(first.TagIDs) != 2 {
		t.Errorf("TagIDs = %v, want deduplicated pair", first.TagIDs)
	}

	second := got[1]
	if second.Date != "2026-03-12" || second.ActiveCount != 1 {
		t.Errorf("second day = %+v", second)
	}
}
