package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"lumen-go/internal/config"
	"lumen-go/internal/database"
	"lumen-go/internal/encryption"
	"lumen-go/internal/lumen"
	"lumen-go/internal/remote"
)

// App wires configuration, storage, services and the sync engine together.
// Construction fails hard if local storage cannot be opened; everything else
// degrades (a missing remote just means sync reports errors until fixed).
type App struct {
	Config *config.Config

	Tasks       *lumen.TaskService
	Tags        *lumen.TagService
	Branches    *lumen.BranchService
	Files       *lumen.FileService
	Settings    *lumen.SettingsService
	Days        *lumen.DayService
	Maintenance *lumen.MaintenanceService
	Syncer      *lumen.Syncer

	store     lumen.Store
	watcher   *RemoteWatcher
	logger    *slog.Logger
	logCloser io.Closer
}

// NewApp builds the full application from a config. The local store is opened
// and migrated, the default branch is ensured, and cache invalidation is wired
// to sync data events. Sync itself is not activated here; call ActivateSync.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, logCloser, err := newLogger(cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	log := &slogAdapter{l: logger}

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("opening document store: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		store.Close()
		logCloser.Close()
		return nil, fmt.Errorf("setting up encryption: %w", err)
	}

	clock := lumen.RealClock{}
	idgen := lumen.UUIDGenerator{}

	rem, err := remote.NewRemoteFromConfig(cfg.Remote, enc, clock, log)
	if err != nil {
		store.Close()
		logCloser.Close()
		return nil, fmt.Errorf("setting up remote: %w", err)
	}

	cacheTTL := cfg.Sync.CacheTTLOrDefault()

	a := &App{
		Config:      cfg,
		Tasks:       lumen.NewTaskService(store, clock, idgen, log),
		Tags:        lumen.NewTagService(store, clock, idgen, log),
		Branches:    lumen.NewBranchService(store, clock, idgen, log),
		Files:       lumen.NewFileService(store, clock, idgen, log),
		Settings:    lumen.NewSettingsService(store, clock, log, cacheTTL),
		Days:        lumen.NewDayService(store, clock, log, cacheTTL),
		Maintenance: lumen.NewMaintenanceService(store, clock, log),
		Syncer:      lumen.NewSyncer(store, rem, clock, log, cfg.Sync.IntervalOrDefault()),
		store:       store,
		logger:      logger,
		logCloser:   logCloser,
	}

	if err := a.Branches.EnsureDefault(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensuring default branch: %w", err)
	}

	// Pulled data can invalidate any aggregate; drop both caches on change.
	a.Syncer.SubscribeData(func() {
		a.Settings.Invalidate()
		a.Days.Invalidate()
	})

	if cfg.Remote.Type == "filesystem" && cfg.Remote.Root != "" && cfg.Sync.WatchRemote {
		a.watcher = NewRemoteWatcher(cfg.Remote.Root, a.Syncer, log)
	}

	return a, nil
}

// ActivateSync starts the sync engine and, when configured, the remote
// directory watcher. A watcher failure is logged and does not block sync.
func (a *App) ActivateSync(ctx context.Context) error {
	if err := a.Syncer.Activate(ctx); err != nil {
		return err
	}
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Warn("remote watcher unavailable", "error", err)
		}
	}
	return nil
}

// DeactivateSync stops the watcher and the sync scheduler.
func (a *App) DeactivateSync() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.Syncer.Deactivate()
}

// Logger exposes the structured logger for command-level logging.
func (a *App) Logger() *slog.Logger { return a.logger }

// Close stops sync and releases the store and log file.
func (a *App) Close() error {
	a.DeactivateSync()
	if err := a.store.Close(); err != nil {
		a.logCloser.Close()
		return fmt.Errorf("closing store: %w", err)
	}
	return a.logCloser.Close()
}
