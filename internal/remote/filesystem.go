package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lumen-go/internal/encryption"
	"lumen-go/internal/lumen"
)

const (
	snapshotName          = "snapshot.json"
	encryptedSnapshotName = "snapshot.json.age"
)

// FilesystemRemote persists the snapshot as a single file in a configured
// directory, typically one synced by an external mechanism (network mount,
// Dropbox-style folder). Saves are atomic: the snapshot is written to a temp
// file in the same directory and renamed into place, so readers never see a
// partial write. With an encryptor configured the file is age ciphertext;
// otherwise it is indented, human-diffable JSON.
type FilesystemRemote struct {
	root   string
	enc    encryption.Encryptor
	clock  lumen.Clock
	logger lumen.Logger
}

// NewFilesystemRemote creates a remote store rooted at the given directory.
// The directory is created lazily on first save.
func NewFilesystemRemote(root string, enc encryption.Encryptor, clock lumen.Clock, logger lumen.Logger) *FilesystemRemote {
	return &FilesystemRemote{root: root, enc: enc, clock: clock, logger: logger}
}

func (r *FilesystemRemote) snapshotPath() string {
	if r.enc != nil {
		return filepath.Join(r.root, encryptedSnapshotName)
	}
	return filepath.Join(r.root, snapshotName)
}

// Load reads the remote snapshot. Returns (nil, nil) when no snapshot file
// exists yet. A file that cannot be parsed or fails structural validation is
// logged and replaced by a safe empty default, so sync proceeds as if the
// remote were empty; only I/O failures are returned as errors.
func (r *FilesystemRemote) Load(ctx context.Context) (*lumen.Snapshot, error) {
	data, err := os.ReadFile(r.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading remote snapshot: %w", errors.Join(lumen.ErrStorageUnavailable, err))
	}

	if r.enc != nil {
		var plain bytes.Buffer
		if err := r.enc.Decrypt(bytes.NewReader(data), &plain); err != nil {
			r.logger.Warn("remote snapshot failed to decrypt, treating remote as empty", "error", err)
			return lumen.EmptySnapshot(r.clock.Now()), nil
		}
		data = plain.Bytes()
	}

	var snap lumen.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Warn("remote snapshot is not valid JSON, treating remote as empty", "error", err)
		return lumen.EmptySnapshot(r.clock.Now()), nil
	}
	if err := snap.Validate(); err != nil {
		r.logger.Warn("remote snapshot failed validation, treating remote as empty", "error", err)
		return lumen.EmptySnapshot(r.clock.Now()), nil
	}
	return &snap, nil
}

// Save writes the snapshot atomically, creating the remote directory if
// absent. Any failure here is fatal and propagated: there is no silent
// fallback on save.
func (r *FilesystemRemote) Save(ctx context.Context, snap *lumen.Snapshot) error {
	if err := os.MkdirAll(r.root, 0755); err != nil {
		return fmt.Errorf("creating remote directory: %w", errors.Join(lumen.ErrStorageUnavailable, err))
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if r.enc != nil {
		var sealed bytes.Buffer
		if err := r.enc.Encrypt(bytes.NewReader(data), &sealed); err != nil {
			return fmt.Errorf("encrypting snapshot: %w", err)
		}
		data = sealed.Bytes()
	}

	return r.writeFileAtomic(r.snapshotPath(), data)
}

// ValidateSetup verifies that the remote directory is accessible.
func (r *FilesystemRemote) ValidateSetup() error {
	info, err := os.Stat(r.root)
	if err != nil {
		return fmt.Errorf("remote root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("remote root is not a directory: %s", r.root)
	}
	return nil
}

// Describe identifies the remote location for logs and status output.
func (r *FilesystemRemote) Describe() string { return r.root }

// writeFileAtomic writes data to destPath using a temp file and rename so a
// crash mid-write never leaves a partially-written snapshot.
func (r *FilesystemRemote) writeFileAtomic(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", errors.Join(lumen.ErrStorageUnavailable, err))
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write snapshot: %w", errors.Join(lumen.ErrStorageUnavailable, err))
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", errors.Join(lumen.ErrStorageUnavailable, err))
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", errors.Join(lumen.ErrStorageUnavailable, err))
	}

	success = true
	return nil
}

// Compile-time check that FilesystemRemote implements lumen.RemoteStore interface
var _ lumen.RemoteStore = (*FilesystemRemote)(nil)
