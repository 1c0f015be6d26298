package lumen

import "context"

// RemoteStore persists exactly one snapshot in an externally-mounted
// location shared between replicas.
//
// Load returns (nil, nil) when no snapshot has been written yet. A snapshot
// that fails structural validation is replaced by a safe empty default so
// sync can proceed as if the remote were empty; only I/O failures are
// returned as errors. Save must be atomic: a crash mid-write may never leave
// a partially-written snapshot visible to readers.
type RemoteStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error

	// ValidateSetup verifies that the remote location is accessible.
	ValidateSetup() error

	// Describe identifies the remote location for logs and status output.
	Describe() string
}
