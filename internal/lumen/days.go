package lumen

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Day is the per-date aggregate the calendar views render.
type Day struct {
	Date        string
	ActiveCount int
	DoneCount   int
	TagIDs      []string
	TaskIDs     []string
}

// DayService groups scheduled tasks by date and recomputes per-day counters
// and deduplicated tag lists. Results are cached with a TTL since the UI
// polls them aggressively.
type DayService struct {
	store  Store
	logger Logger
	cache  *CachedLoader[[]Day]
}

func NewDayService(store Store, clock Clock, logger Logger, cacheTTL time.Duration) *DayService {
	s := &DayService{store: store, logger: logger}
	s.cache = NewCachedLoader(cacheTTL, clock, s.build)
	return s
}

// Days returns the aggregates for every date that has at least one live
// scheduled task, sorted by date.
func (s *DayService) Days(ctx context.Context) ([]Day, error) {
	return s.cache.Get(ctx)
}

// Invalidate drops the cached aggregates. Called when sync changes local data.
func (s *DayService) Invalidate() { s.cache.Clear() }

func (s *DayService) build(ctx context.Context) ([]Day, error) {
	docs, err := s.store.List(ctx, Filter{Type: DocTask})
	if err != nil {
		return nil, fmt.Errorf("listing tasks for day aggregation: %w", err)
	}

	byDate := make(map[string]*Day)
	tagSets := make(map[string]map[string]bool)
	for _, d := range docs {
		task := d.(*Task)
		date := task.Scheduled.Date
		if date == "" {
			continue
		}
		day := byDate[date]
		if day == nil {
			day = &Day{Date: date}
			byDate[date] = day
			tagSets[date] = make(map[string]bool)
		}
		switch task.Status {
		case TaskActive:
			day.ActiveCount++
		case TaskDone:
			day.DoneCount++
		}
		day.TaskIDs = append(day.TaskIDs, task.ID)
		for _, tag := range task.Tags {
			tagSets[date][tag] = true
		}
	}

	days := make([]Day, 0, len(byDate))
	for date, day := range byDate {
		for tag := range tagSets[date] {
			day.TagIDs = append(day.TagIDs, tag)
		}
		sort.Strings(day.TagIDs)
		sort.Strings(day.TaskIDs)
		days = append(days, *day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}
