package lumen

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SyncStatus is the sync engine's externally visible state.
type SyncStatus string

const (
	SyncInactive SyncStatus = "inactive"
	SyncIdle     SyncStatus = "idle"
	SyncSyncing  SyncStatus = "syncing"
	SyncError    SyncStatus = "error"
)

// StatusFunc receives status transitions: the new status and the one before.
type StatusFunc func(current, previous SyncStatus)

// Syncer reconciles the local document store against the remote snapshot.
// All cycles (scheduled ticks, force syncs, watcher nudges) are serialized
// through a FIFO mutex, so no two pull/push cycles ever overlap and a pull
// can never read the remote mid-push.
type Syncer struct {
	store     Store
	remote    RemoteStore
	clock     Clock
	logger    Logger
	mutex     *Mutex
	scheduler *IntervalScheduler

	mu         sync.Mutex
	status     SyncStatus
	lastPushed string // hash last known to be written remotely
	statusObs  []StatusFunc
	dataObs    []func()
}

// NewSyncer creates a sync engine pulling/pushing every interval once
// activated.
func NewSyncer(store Store, remote RemoteStore, clock Clock, logger Logger, interval time.Duration) *Syncer {
	s := &Syncer{
		store:  store,
		remote: remote,
		clock:  clock,
		logger: logger,
		mutex:  NewMutex(),
		status: SyncInactive,
	}
	s.scheduler = NewIntervalScheduler(interval, s.tick)
	return s
}

// Subscribe registers an observer for status transitions.
func (s *Syncer) Subscribe(fn StatusFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusObs = append(s.statusObs, fn)
}

// SubscribeData registers an observer fired after a pull that changed local
// data, so presentation layers can invalidate caches without polling.
func (s *Syncer) SubscribeData(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataObs = append(s.dataObs, fn)
}

// Status returns the current sync status.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Activate starts periodic syncing and performs one initial pull. A failing
// initial pull leaves the engine active in the error state; the next tick
// retries. Calling Activate on an active engine is a no-op.
func (s *Syncer) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.status != SyncInactive {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.setStatus(SyncIdle)
	if err := s.scheduler.Start(); err != nil {
		s.setStatus(SyncInactive)
		return fmt.Errorf("starting sync scheduler: %w", err)
	}
	return s.Pull(ctx)
}

// Deactivate stops the scheduler. An in-flight cycle finishes on its own but
// leaves the status inactive.
func (s *Syncer) Deactivate() {
	s.scheduler.Stop()
	s.setStatus(SyncInactive)
}

// ForceSync runs a full pull-then-push cycle outside the schedule, queueing
// behind any running cycle.
func (s *Syncer) ForceSync(ctx context.Context) error {
	return s.cycle(ctx, true)
}

// Pull runs a pull-only cycle (remote to local).
func (s *Syncer) Pull(ctx context.Context) error {
	return s.cycle(ctx, false)
}

// IsSyncing reports whether a scheduled tick is currently running.
func (s *Syncer) IsSyncing() bool { return s.scheduler.IsProcessing() }

func (s *Syncer) tick() {
	// Errors are already logged and reflected in the status; the next tick
	// retries unconditionally since remote failures are transient local I/O.
	_ = s.ForceSync(context.Background())
}

func (s *Syncer) cycle(ctx context.Context, push bool) error {
	return s.mutex.RunExclusive(ctx, func() error {
		s.setStatus(SyncSyncing)

		changed, err := s.pull(ctx)
		if err == nil && push {
			err = s.push(ctx)
		}
		if err != nil {
			s.finishCycle(SyncError)
			s.logger.Error("sync failed", "error", err)
			return fmt.Errorf("sync: %w", err)
		}

		s.finishCycle(SyncIdle)
		if changed {
			s.notifyData()
		}
		return nil
	})
}

// finishCycle records the cycle outcome. When Deactivate lands while the
// cycle is still running it has already moved the status off syncing, and the
// engine must stay inactive rather than resurface as idle or error.
func (s *Syncer) finishCycle(next SyncStatus) {
	s.mu.Lock()
	prev := s.status
	if prev != SyncSyncing {
		s.mu.Unlock()
		return
	}
	s.status = next
	obs := make([]StatusFunc, len(s.statusObs))
	copy(obs, s.statusObs)
	s.mu.Unlock()

	for _, fn := range obs {
		fn(next, prev)
	}
}

// pull merges the remote snapshot into the local store with per-document
// last-writer-wins. Reports whether local data changed.
func (s *Syncer) pull(ctx context.Context) (bool, error) {
	remote, err := s.remote.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("loading remote snapshot: %w", err)
	}
	if remote == nil {
		// First run: nothing to merge, the next push seeds the remote.
		return false, nil
	}

	cols, err := s.store.All(ctx)
	if err != nil {
		return false, fmt.Errorf("reading local documents: %w", err)
	}
	local := BuildSnapshot(cols, s.clock.Now())
	if local.Meta.Hash == remote.Meta.Hash {
		// Content-equal: the remote already holds exactly this state.
		s.mu.Lock()
		s.lastPushed = local.Meta.Hash
		s.mu.Unlock()
		return false, nil
	}

	_, tasks := mergeByID(cols.Tasks, remote.Docs.Tasks)
	_, tags := mergeByID(cols.Tags, remote.Docs.Tags)
	_, branches := mergeByID(cols.Branches, remote.Docs.Branches)
	_, files := mergeByID(cols.Files, remote.Docs.Files)
	_, settings := mergeByID(cols.Settings, remote.Docs.Settings)

	applied := 0
	for i := range tasks {
		if err := s.store.Put(ctx, &tasks[i]); err != nil {
			return applied > 0, fmt.Errorf("applying task %s: %w", tasks[i].ID, err)
		}
		applied++
	}
	for i := range tags {
		if err := s.store.Put(ctx, &tags[i]); err != nil {
			return applied > 0, fmt.Errorf("applying tag %s: %w", tags[i].ID, err)
		}
		applied++
	}
	for i := range branches {
		if branches[i].ID == DefaultBranchID && branches[i].Tombstoned() {
			// The default branch must stay resolvable on every replica.
			continue
		}
		if err := s.store.Put(ctx, &branches[i]); err != nil {
			return applied > 0, fmt.Errorf("applying branch %s: %w", branches[i].ID, err)
		}
		applied++
	}
	for i := range files {
		if err := s.store.Put(ctx, &files[i]); err != nil {
			return applied > 0, fmt.Errorf("applying file %s: %w", files[i].ID, err)
		}
		applied++
	}
	for i := range settings {
		if err := s.store.Put(ctx, &settings[i]); err != nil {
			return applied > 0, fmt.Errorf("applying settings: %w", err)
		}
		applied++
	}

	if applied > 0 {
		s.logger.Info("pull applied remote documents", "count", applied)
	}
	return applied > 0, nil
}

// push writes the local snapshot to the remote unless the remote is already
// known to hold this exact content.
func (s *Syncer) push(ctx context.Context) error {
	cols, err := s.store.All(ctx)
	if err != nil {
		return fmt.Errorf("reading local documents: %w", err)
	}
	snap := BuildSnapshot(cols, s.clock.Now())

	s.mu.Lock()
	last := s.lastPushed
	s.mu.Unlock()
	if snap.Meta.Hash == last {
		return nil
	}

	if err := s.remote.Save(ctx, snap); err != nil {
		return fmt.Errorf("saving remote snapshot: %w", err)
	}

	s.mu.Lock()
	s.lastPushed = snap.Meta.Hash
	s.mu.Unlock()
	s.logger.Info("pushed snapshot", "hash", snap.Meta.Hash[:12], "remote", s.remote.Describe())
	return nil
}

func (s *Syncer) setStatus(next SyncStatus) {
	s.mu.Lock()
	prev := s.status
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.status = next
	obs := make([]StatusFunc, len(s.statusObs))
	copy(obs, s.statusObs)
	s.mu.Unlock()

	for _, fn := range obs {
		fn(next, prev)
	}
}

func (s *Syncer) notifyData() {
	s.mu.Lock()
	obs := make([]func(), len(s.dataObs))
	copy(obs, s.dataObs)
	s.mu.Unlock()

	for _, fn := range obs {
		fn()
	}
}
