package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"lumen-go/internal/lumen"
)

const watchDebounce = 500 * time.Millisecond

// RemoteWatcher observes the remote snapshot directory and triggers a pull
// when another replica rewrites the snapshot file. Events are debounced so a
// burst of writes (temp file create, write, rename) results in a single pull.
// Pulls triggered by our own pushes are harmless: the hashes match and the
// cycle is a no-op.
type RemoteWatcher struct {
	dir    string
	syncer *lumen.Syncer
	logger lumen.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRemoteWatcher creates a watcher for the given remote directory.
func NewRemoteWatcher(dir string, syncer *lumen.Syncer, logger lumen.Logger) *RemoteWatcher {
	return &RemoteWatcher{dir: dir, syncer: syncer, logger: logger}
}

// Start begins watching. The directory must exist; create it (or run a first
// sync, which creates it) before starting the watcher.
func (w *RemoteWatcher) Start(ctx context.Context) error {
	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("watching remote directory %s: %w", w.dir, err)
	}

	w.watcher = fw
	w.done = make(chan struct{})
	go w.loop(ctx)

	w.logger.Info("watching remote directory", "dir", w.dir)
	return nil
}

// Stop shuts the watcher down. Safe to call on a watcher that never started.
func (w *RemoteWatcher) Stop() {
	if w.watcher == nil {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.watcher = nil
}

func (w *RemoteWatcher) loop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !snapshotEvent(ev) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := w.syncer.Pull(ctx); err != nil {
				w.logger.Warn("watcher-triggered pull failed", "error", err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("remote watcher error", "error", err)

		case <-w.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// snapshotEvent reports whether the event concerns a snapshot file landing in
// place. Renames matter because atomic writers publish via rename.
func snapshotEvent(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(ev.Name)
	return name == "snapshot.json" || name == "snapshot.json.age"
}
