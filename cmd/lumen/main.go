package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lumen-go/internal/app"
	"lumen-go/internal/config"
	"lumen-go/internal/encryption"
	"lumen-go/internal/lumen"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and builds the application. The caller must defer
// a.Close().
func newApp(ctx context.Context) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Local-first task planner with snapshot sync",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s (%s)\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Remote:      %s (%s)\n", cfg.Remote.Type, cfg.Remote.Root)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Sync:        auto=%v interval=%s watch=%v\n",
			cfg.Sync.Auto, cfg.Sync.IntervalOrDefault(), cfg.Sync.WatchRemote)
		return nil
	},
}

var configRemoteCmd = &cobra.Command{
	Use:   "remote DIR",
	Short: "Point sync at a remote snapshot directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		root, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		if err := config.SetRemoteRoot(defaults["config_path"], cfg, root); err != nil {
			return err
		}

		fmt.Printf("Remote set to %s\n", root)
		return nil
	},
}

var configEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "Set up age encryption for the remote snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		identityPath := cfg.Encryption.IdentityPath
		if identityPath == "" {
			identityPath = filepath.Join(cfg.BaseDir, "identity.age")
		}

		enc := encryption.NewAgeEncryptor(identityPath)
		if err := enc.Setup(); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}

		cfg.Encryption.Type = "age"
		cfg.Encryption.IdentityPath = identityPath
		if err := config.SetEncryption(defaults["config_path"], cfg); err != nil {
			return err
		}

		fmt.Printf("Identity written to %s\n", identityPath)
		fmt.Println("Copy this file to other replicas to let them read the snapshot.")
		return nil
	},
}

// task command
var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add CONTENT",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		branch, _ := cmd.Flags().GetString("branch")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t := &lumen.Task{
			Content:   args[0],
			Scheduled: lumen.Schedule{Date: date},
			BranchID:  branch,
		}
		created, err := a.Tasks.Create(ctx, t)
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}

		fmt.Printf("Added task %s\n", created.ID)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		branch, _ := cmd.Flags().GetString("branch")
		status, _ := cmd.Flags().GetString("status")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tasks, err := a.Tasks.List(ctx, lumen.Filter{
			Status:        lumen.TaskStatus(status),
			ScheduledDate: date,
			BranchID:      branch,
		})
		if err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks found.")
			return nil
		}

		for _, t := range tasks {
			marker := " "
			switch t.Status {
			case lumen.TaskDone:
				marker = "x"
			case lumen.TaskDiscarded:
				marker = "-"
			}
			scheduled := t.Scheduled.Date
			if scheduled == "" {
				scheduled = "unscheduled"
			}
			fmt.Printf("[%s] %s  %s  %s\n", marker, shortID(t.ID), scheduled, firstLine(t.Content))
		}
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done ID",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE:  setStatusRun(lumen.TaskDone),
}

var taskDiscardCmd = &cobra.Command{
	Use:   "discard ID",
	Short: "Discard a task",
	Args:  cobra.ExactArgs(1),
	RunE:  setStatusRun(lumen.TaskDiscarded),
}

var taskActivateCmd = &cobra.Command{
	Use:   "activate ID",
	Short: "Reactivate a done or discarded task",
	Args:  cobra.ExactArgs(1),
	RunE:  setStatusRun(lumen.TaskActive),
}

func setStatusRun(status lumen.TaskStatus) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.Tasks.SetStatus(ctx, args[0], status)
		if err != nil {
			return err
		}
		if t == nil {
			fmt.Println("Task not found.")
			return nil
		}
		fmt.Printf("Task %s is now %s\n", shortID(t.ID), t.Status)
		return nil
	}
}

var taskRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Tasks.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Println("Task not found.")
			return nil
		}
		fmt.Println("Task deleted.")
		return nil
	},
}

var taskRestoreCmd = &cobra.Command{
	Use:   "restore ID",
	Short: "Restore a deleted task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := a.Tasks.Restore(ctx, args[0])
		if err != nil {
			return err
		}
		if t == nil {
			fmt.Println("No deleted task with that id.")
			return nil
		}
		fmt.Printf("Restored task %s\n", shortID(t.ID))
		return nil
	},
}

// tag command
var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tag, err := a.Tags.Create(ctx, args[0], color)
		if err != nil {
			return err
		}
		fmt.Printf("Added tag %s (%s)\n", tag.Name, shortID(tag.ID))
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tags, err := a.Tags.List(ctx)
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			fmt.Println("No tags.")
			return nil
		}
		for _, tag := range tags {
			fmt.Printf("%s  %-20s %s\n", shortID(tag.ID), tag.Name, tag.Color)
		}
		return nil
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a tag and remove it from all tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		cascade, err := a.Tags.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if cascade == nil {
			fmt.Println("Tag not found.")
			return nil
		}
		fmt.Printf("Tag deleted, removed from %d task(s)", cascade.TasksUpdated)
		if cascade.TaskFailures > 0 {
			fmt.Printf(", %d task(s) could not be updated", cascade.TaskFailures)
		}
		fmt.Println()
		return nil
	},
}

// branch command
var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage branches",
}

var branchAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Branches.Create(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Added branch %s (%s)\n", b.Name, shortID(b.ID))
		return nil
	},
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		branches, err := a.Branches.List(ctx)
		if err != nil {
			return err
		}
		for _, b := range branches {
			fmt.Printf("%s  %s\n", shortID(b.ID), b.Name)
		}
		return nil
	},
}

var branchRenameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Branches.Rename(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if b == nil {
			fmt.Println("Branch not found.")
			return nil
		}
		fmt.Printf("Branch renamed to %s\n", b.Name)
		return nil
	},
}

var branchRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete a branch, moving its tasks to main",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Branches.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Println("Branch not found.")
			return nil
		}
		fmt.Println("Branch deleted.")
		return nil
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage attachments",
}

var fileAddCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Store a file as an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mimeType, _ := cmd.Flags().GetString("mime")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		payload, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		f, err := a.Files.Add(ctx, filepath.Base(args[0]), mimeType, payload)
		if err != nil {
			return err
		}
		fmt.Printf("Stored %s as attachment://%s\n", f.Name, f.ID)
		return nil
	},
}

var fileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attachments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		files, err := a.Files.List(ctx)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No attachments.")
			return nil
		}
		for _, f := range files {
			fmt.Printf("%s  %8d  %-24s %s\n", shortID(f.ID), f.Size, f.MimeType, f.Name)
		}
		return nil
	},
}

var fileRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Delete an attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Files.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			fmt.Println("Attachment not found.")
			return nil
		}
		fmt.Println("Attachment deleted.")
		return nil
	},
}

var fileSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Report attachments no task references",
	RunE: func(cmd *cobra.Command, args []string) error {
		purge, _ := cmd.Flags().GetBool("purge")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Files.SweepOrphans(ctx, purge)
		if err != nil {
			return err
		}

		fmt.Printf("Scanned %d attachment(s), %d orphaned\n", report.Scanned, report.Orphaned)
		for _, id := range report.IDs {
			fmt.Printf("  %s\n", id)
		}
		if purge {
			fmt.Printf("Purged %d record(s)\n", report.Purged)
		}
		return nil
	},
}

// day command
var dayCmd = &cobra.Command{
	Use:   "days",
	Short: "Show per-day task summaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		days, err := a.Days.Days(ctx)
		if err != nil {
			return err
		}
		if len(days) == 0 {
			fmt.Println("No scheduled tasks.")
			return nil
		}
		for _, d := range days {
			fmt.Printf("%s  %d active, %d done, %d tag(s)\n",
				d.Date, d.ActiveCount, d.DoneCount, len(d.TagIDs))
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the remote snapshot",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run one pull-and-push cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Syncer.ForceSync(ctx); err != nil {
			return err
		}
		fmt.Println("Sync complete.")
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync configuration and remote state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Status: %s\n", a.Syncer.Status())
		fmt.Printf("Remote: %s (%s)\n", a.Config.Remote.Type, a.Config.Remote.Root)
		fmt.Printf("Auto:   %v, every %s\n", a.Config.Sync.Auto, a.Config.Sync.IntervalOrDefault())
		return nil
	},
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync continuously until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.Syncer.Subscribe(func(current, previous lumen.SyncStatus) {
			fmt.Printf("%s  %s -> %s\n", time.Now().Format("15:04:05"), previous, current)
		})

		if err := a.ActivateSync(ctx); err != nil {
			return fmt.Errorf("activating sync: %w", err)
		}

		fmt.Printf("Syncing every %s, Ctrl-C to stop.\n", a.Config.Sync.IntervalOrDefault())
		<-ctx.Done()
		return nil
	},
}

// gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Purge old tombstones",
	RunE: func(cmd *cobra.Command, args []string) error {
		retention, _ := cmd.Flags().GetDuration("retention")

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		purged, err := a.Maintenance.PurgeTombstones(ctx, retention)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d tombstone(s) older than %s\n", purged, retention)
		return nil
	},
}

// shortID abbreviates an id for display. Synced documents can carry ids of
// any shape, so anything shorter than the usual UUID prefix prints whole.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configRemoteCmd)
	configCmd.AddCommand(configEncryptCmd)

	taskCmd.AddCommand(taskAddCmd)
	taskAddCmd.Flags().StringP("date", "d", "", "Schedule on date (YYYY-MM-DD)")
	taskAddCmd.Flags().StringP("branch", "b", "", "Branch id (default: main)")
	taskCmd.AddCommand(taskListCmd)
	taskListCmd.Flags().StringP("date", "d", "", "Only tasks scheduled on date")
	taskListCmd.Flags().StringP("branch", "b", "", "Only tasks in branch")
	taskListCmd.Flags().StringP("status", "s", "", "Only tasks with status (active|done|discarded)")
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskDiscardCmd)
	taskCmd.AddCommand(taskActivateCmd)
	taskCmd.AddCommand(taskRmCmd)
	taskCmd.AddCommand(taskRestoreCmd)

	tagCmd.AddCommand(tagAddCmd)
	tagAddCmd.Flags().StringP("color", "c", "", "Display color, e.g. #ff8800")
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagRmCmd)

	branchCmd.AddCommand(branchAddCmd)
	branchCmd.AddCommand(branchListCmd)
	branchCmd.AddCommand(branchRenameCmd)
	branchCmd.AddCommand(branchRmCmd)

	fileCmd.AddCommand(fileAddCmd)
	fileAddCmd.Flags().StringP("mime", "m", "application/octet-stream", "MIME type")
	fileCmd.AddCommand(fileListCmd)
	fileCmd.AddCommand(fileRmCmd)
	fileCmd.AddCommand(fileSweepCmd)
	fileSweepCmd.Flags().Bool("purge", false, "Hard-delete orphaned records")

	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncWatchCmd)

	gcCmd.Flags().Duration("retention", 30*24*time.Hour, "Keep tombstones younger than this")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(dayCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(gcCmd)
}
