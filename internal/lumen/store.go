package lumen

import (
	"context"
	"time"
)

// Filter narrows a List call. The zero value matches every live document.
// String fields match exactly when non-empty; indexed fields are served
// without a full scan by the SQLite implementation.
type Filter struct {
	Type           DocType
	Status         TaskStatus
	ScheduledDate  string // YYYY-MM-DD
	BranchID       string
	NameLower      string // case-folded name, for uniqueness checks
	IncludeDeleted bool
	UpdatedSince   *time.Time
}

// Store is durable, indexed storage of typed documents.
//
// Get returns (nil, ErrNotFound) for unknown ids. Upsert enforces optimistic
// concurrency: when the document already exists, the caller-supplied revision
// must match the stored one or the write fails with ErrConflict. Every
// successful Upsert assigns a fresh revision and returns the stored document.
//
// Put writes a document verbatim, revision included, bypassing the revision
// check. It exists for the sync engine, which applies documents that already
// won a last-writer-wins merge; ordinary callers use Upsert.
type Store interface {
	Get(ctx context.Context, id string) (Document, error)
	List(ctx context.Context, f Filter) ([]Document, error)
	Upsert(ctx context.Context, doc Document) (Document, error)
	Put(ctx context.Context, doc Document) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	HardDelete(ctx context.Context, ids []string) (int, error)

	// All returns every document, tombstones included, grouped by type.
	// This is the snapshot builder's view of the store.
	All(ctx context.Context) (*Collections, error)

	// Blob operations for file payloads, keyed by the owning record id.
	PutBlob(ctx context.Context, id string, payload []byte) error
	GetBlob(ctx context.Context, id string) ([]byte, error)

	Close() error
}
