package lumen

import (
	"context"
	"fmt"
	"regexp"
)

// attachmentRef matches the markdown attachment syntax the editor embeds in
// task content, e.g. ![shot](attachment://<file-id>).
var attachmentRef = regexp.MustCompile(`\(attachment://([A-Za-z0-9-]+)\)`)

// FileService owns attachment records and their binary payloads. Payloads
// are stored as blobs keyed by the record id and never travel in snapshots.
type FileService struct {
	store  Store
	clock  Clock
	idgen  IDGenerator
	logger Logger
}

func NewFileService(store Store, clock Clock, idgen IDGenerator, logger Logger) *FileService {
	return &FileService{store: store, clock: clock, idgen: idgen, logger: logger}
}

// OrphanReport summarizes an orphan sweep.
type OrphanReport struct {
	Scanned  int
	Orphaned int
	Purged   int
	IDs      []string
}

// Add stores a new file record together with its payload.
func (s *FileService) Add(ctx context.Context, name, mimeType string, payload []byte) (*FileDoc, error) {
	now := s.clock.Now()
	f := &FileDoc{
		Meta:     Meta{ID: s.idgen.New(), CreatedAt: now, UpdatedAt: now},
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(payload)),
	}
	stored, err := s.store.Upsert(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("creating file record: %w", err)
	}
	if err := s.store.PutBlob(ctx, f.ID, payload); err != nil {
		return nil, fmt.Errorf("storing file payload: %w", err)
	}
	return stored.(*FileDoc), nil
}

// Get returns the file record, or (nil, nil) when unknown or tombstoned.
func (s *FileService) Get(ctx context.Context, id string) (*FileDoc, error) {
	doc, err := getLive(ctx, s.store, id)
	if err != nil || doc == nil {
		return nil, err
	}
	f, ok := doc.(*FileDoc)
	if !ok {
		return nil, nil
	}
	return f, nil
}

// List returns live file records.
func (s *FileService) List(ctx context.Context) ([]*FileDoc, error) {
	docs, err := s.store.List(ctx, Filter{Type: DocFile})
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	files := make([]*FileDoc, 0, len(docs))
	for _, d := range docs {
		files = append(files, d.(*FileDoc))
	}
	return files, nil
}

// Load returns the binary payload of a file record.
func (s *FileService) Load(ctx context.Context, id string) ([]byte, error) {
	payload, err := s.store.GetBlob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading file payload %s: %w", id, err)
	}
	return payload, nil
}

// Delete tombstones the file record. The payload stays until a purge so a
// restore or late sync never finds a record without its bytes.
func (s *FileService) Delete(ctx context.Context, id string) (bool, error) {
	return softDelete(ctx, s.store, s.clock, id)
}

// SweepOrphans soft-deletes every live file referenced by no live task,
// looking at both the explicit attachment lists and attachment links inside
// markdown content. With purge set, orphans and previously tombstoned file
// records are hard-deleted together with their payloads.
func (s *FileService) SweepOrphans(ctx context.Context, purge bool) (*OrphanReport, error) {
	tasks, err := s.store.List(ctx, Filter{Type: DocTask})
	if err != nil {
		return nil, fmt.Errorf("listing tasks for orphan sweep: %w", err)
	}

	referenced := make(map[string]bool)
	for _, d := range tasks {
		task := d.(*Task)
		for _, id := range task.Attachments {
			referenced[id] = true
		}
		for _, m := range attachmentRef.FindAllStringSubmatch(task.Content, -1) {
			referenced[m[1]] = true
		}
	}

	files, err := s.store.List(ctx, Filter{Type: DocFile, IncludeDeleted: purge})
	if err != nil {
		return nil, fmt.Errorf("listing files for orphan sweep: %w", err)
	}

	report := &OrphanReport{Scanned: len(files)}
	var purgeIDs []string
	for _, d := range files {
		f := d.(*FileDoc)
		if referenced[f.ID] && !f.Tombstoned() {
			continue
		}
		if !f.Tombstoned() {
			if _, err := softDelete(ctx, s.store, s.clock, f.ID); err != nil {
				return nil, err
			}
			report.Orphaned++
			report.IDs = append(report.IDs, f.ID)
		}
		if purge {
			purgeIDs = append(purgeIDs, f.ID)
		}
	}

	if len(purgeIDs) > 0 {
		n, err := s.store.HardDelete(ctx, purgeIDs)
		if err != nil {
			return nil, fmt.Errorf("purging orphaned files: %w", err)
		}
		report.Purged = n
	}

	s.logger.Info("orphan sweep complete", "scanned", report.Scanned, "orphaned", report.Orphaned, "purged", report.Purged)
	return report, nil
}
