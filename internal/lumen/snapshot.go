package lumen

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// SnapshotMeta describes a snapshot: when it was built and the combined
// content hash of its document collections.
type SnapshotMeta struct {
	UpdatedAt time.Time `json:"updatedAt"`
	Hash      string    `json:"hash"`
}

// Snapshot is the full exported state exchanged with the remote store.
// It is ephemeral: built on demand, never the canonical local representation.
type Snapshot struct {
	Docs Collections  `json:"docs"`
	Meta SnapshotMeta `json:"meta"`
}

// Validate checks structural integrity of a snapshot loaded from an external
// file. A snapshot that fails validation must not be merged.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is nil")
	}
	if s.Docs.Tasks == nil || s.Docs.Tags == nil || s.Docs.Branches == nil ||
		s.Docs.Files == nil || s.Docs.Settings == nil {
		return fmt.Errorf("snapshot is missing document collections")
	}
	if s.Meta.Hash == "" {
		return fmt.Errorf("snapshot has no content hash")
	}
	return nil
}

// EmptySnapshot returns a structurally valid snapshot with no documents.
// It is the safe default substituted for a corrupt remote file.
func EmptySnapshot(now time.Time) *Snapshot {
	cols := Collections{
		Tasks:    []Task{},
		Tags:     []Tag{},
		Branches: []Branch{},
		Files:    []FileDoc{},
		Settings: []Settings{},
	}
	return BuildSnapshot(&cols, now)
}

// BuildSnapshot derives a canonical snapshot from the given document set.
// Collections are sorted by id so two stores holding the same documents
// produce byte-identical snapshots regardless of iteration order.
func BuildSnapshot(cols *Collections, now time.Time) *Snapshot {
	sorted := Collections{
		Tasks:    sortByID(cols.Tasks),
		Tags:     sortByID(cols.Tags),
		Branches: sortByID(cols.Branches),
		Files:    sortByID(cols.Files),
		Settings: sortByID(cols.Settings),
	}
	return &Snapshot{
		Docs: sorted,
		Meta: SnapshotMeta{
			UpdatedAt: now.UTC(),
			Hash:      hashCollections(&sorted),
		},
	}
}

// docContent is the minimal constraint for hashing and merging: every
// document value exposes id, revision and modification time through its
// embedded Meta.
type docContent interface {
	DocID() string
	DocRev() string
	DocUpdatedAt() time.Time
	Tombstoned() bool
}

func sortByID[T docContent](docs []T) []T {
	out := make([]T, len(docs))
	copy(out, docs)
	sort.Slice(out, func(i, j int) bool { return out[i].DocID() < out[j].DocID() })
	return out
}

// hashCollections combines one digest per collection, in a fixed order, into
// the snapshot content hash. Binary payloads never appear in Collections, so
// they are excluded by construction. The hash changes exactly when persisted
// content changes: every successful mutation assigns a fresh revision, and
// revisions are part of the serialized documents.
func hashCollections(cols *Collections) string {
	h := sha256.New()
	writeCollectionHash(h, "tasks", cols.Tasks)
	writeCollectionHash(h, "tags", cols.Tags)
	writeCollectionHash(h, "branches", cols.Branches)
	writeCollectionHash(h, "files", cols.Files)
	writeCollectionHash(h, "settings", cols.Settings)
	return hex.EncodeToString(h.Sum(nil))
}

func writeCollectionHash[T docContent](dst io.Writer, name string, docs []T) {
	h := sha256.New()
	for _, d := range sortByID(docs) {
		// encoding/json marshals struct fields in declaration order, so the
		// serialization is deterministic for a given document value.
		b, err := json.Marshal(d)
		if err != nil {
			// Documents are plain data structs; marshaling cannot fail.
			panic(fmt.Sprintf("marshal %s document %s: %v", name, d.DocID(), err))
		}
		h.Write([]byte(d.DocID()))
		h.Write(b)
	}
	dst.Write([]byte(name))
	dst.Write(h.Sum(nil))
}

// mergeByID reconciles one collection pair with last-writer-wins semantics.
// For every id present on either side the version with the greater UpdatedAt
// wins; tombstones are compared the same way, so a later deletion beats an
// earlier edit and vice versa. Equal timestamps are broken by lexicographic
// revision comparison, then in favor of the remote copy, so both replicas
// converge on the same winner.
//
// The returned fromRemote slice holds the remote documents that won over a
// differing (or absent) local version; applying exactly those to the local
// store completes a pull.
func mergeByID[T docContent](local, remote []T) (merged []T, fromRemote []T) {
	byID := make(map[string]T, len(local))
	for _, d := range local {
		byID[d.DocID()] = d
	}

	for _, r := range remote {
		l, ok := byID[r.DocID()]
		if !ok {
			byID[r.DocID()] = r
			fromRemote = append(fromRemote, r)
			continue
		}
		if !remoteWins(l, r) {
			continue
		}
		byID[r.DocID()] = r
		if l.DocRev() != r.DocRev() {
			fromRemote = append(fromRemote, r)
		}
	}

	merged = make([]T, 0, len(byID))
	for _, d := range byID {
		merged = append(merged, d)
	}
	return sortByID(merged), fromRemote
}

func remoteWins[T docContent](local, remote T) bool {
	lt, rt := local.DocUpdatedAt(), remote.DocUpdatedAt()
	if !lt.Equal(rt) {
		return rt.After(lt)
	}
	if local.DocRev() != remote.DocRev() {
		return remote.DocRev() > local.DocRev()
	}
	return true
}
