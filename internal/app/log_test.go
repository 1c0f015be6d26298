package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLumenHandler(t *testing.T) {
	t.Run("formats tab-separated records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(&lumenHandler{w: &buf})

		logger.Info("sync complete", "count", 3)

		line := strings.TrimRight(buf.String(), "\n")
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			t.Fatalf("record has %d fields, want 4: %q", len(fields), line)
		}
		if fields[1] != "INFO" {
			t.Errorf("level field = %q", fields[1])
		}
		if fields[2] != "sync complete" {
			t.Errorf("message field = %q", fields[2])
		}
		if fields[3] != "count=3" {
			t.Errorf("attr field = %q", fields[3])
		}
	})

	t.Run("carries pre-set attrs", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(&lumenHandler{w: &buf}).With("component", "syncer")

		logger.Warn("remote unavailable")

		if !strings.Contains(buf.String(), "component=syncer") {
			t.Errorf("record missing pre-set attr: %q", buf.String())
		}
	})

	t.Run("one line per record", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(&lumenHandler{w: &buf})

		logger.Info("first")
		logger.Error("second", "error", "boom")

		lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		if len(lines) != 2 {
			t.Errorf("wrote %d lines, want 2", len(lines))
		}
	})
}
