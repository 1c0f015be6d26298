package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lumen-go/internal/database/migrations"
	"lumen-go/internal/lumen"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements lumen.Store on a single heterogeneous documents
// table: one row per document with a type discriminator, the indexed filter
// columns, and the full document serialized as JSON in the body column.
// File payloads live in a separate blobs table keyed by the record id.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) a document store at path and brings the
// schema to the latest version. path can be ":memory:" for tests.
func Open(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating document store: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured
// SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// ioErr tags a driver failure as a storage-unavailable condition while
// keeping the cause visible.
func ioErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(lumen.ErrStorageUnavailable, err))
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (lumen.Document, error) {
	var docType, body string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_type, body FROM documents WHERE id = ?`, id,
	).Scan(&docType, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %s: %w", id, lumen.ErrNotFound)
		}
		return nil, ioErr("get document", err)
	}
	return decodeDocument(lumen.DocType(docType), body)
}

func (s *SQLiteStore) List(ctx context.Context, f lumen.Filter) ([]lumen.Document, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "doc_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ScheduledDate != "" {
		where = append(where, "scheduled_date = ?")
		args = append(args, f.ScheduledDate)
	}
	if f.BranchID != "" {
		where = append(where, "branch_id = ?")
		args = append(args, f.BranchID)
	}
	if f.NameLower != "" {
		where = append(where, "name_lower = ?")
		args = append(args, f.NameLower)
	}
	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if f.UpdatedSince != nil {
		where = append(where, "updated_at > ?")
		args = append(args, f.UpdatedSince.UTC())
	}

	query := `SELECT doc_type, body FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ioErr("list documents", err)
	}
	defer rows.Close()

	var docs []lumen.Document
	for rows.Next() {
		var docType, body string
		if err := rows.Scan(&docType, &body); err != nil {
			return nil, ioErr("scan document", err)
		}
		doc, err := decodeDocument(lumen.DocType(docType), body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("list documents", err)
	}
	return docs, nil
}

// Upsert writes a document under optimistic concurrency: when the row
// already exists, the supplied revision must match the stored one. On
// success the document carries a fresh revision.
func (s *SQLiteStore) Upsert(ctx context.Context, doc lumen.Document) (lumen.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ioErr("starting transaction", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT rev FROM documents WHERE id = ?`, doc.DocID(),
	).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// New document, nothing to check.
	case err != nil:
		return nil, ioErr("reading current revision", err)
	case current != doc.DocRev():
		return nil, &lumen.ConflictError{ID: doc.DocID(), Given: doc.DocRev(), Current: current}
	}

	doc.DocMeta().Rev = uuid.New().String()
	if err := writeDocument(ctx, tx, doc); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, ioErr("committing upsert", err)
	}
	return doc, nil
}

// Put writes a document verbatim, revision included. Used by sync to apply
// merge winners.
func (s *SQLiteStore) Put(ctx context.Context, doc lumen.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("starting transaction", err)
	}
	defer tx.Rollback()

	if err := writeDocument(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return ioErr("committing put", err)
	}
	return nil
}

// SoftDelete tombstones the document, bumping updated_at alongside
// deleted_at so the deletion participates in last-writer-wins merges.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ioErr("starting transaction", err)
	}
	defer tx.Rollback()

	var docType, body string
	err = tx.QueryRowContext(ctx,
		`SELECT doc_type, body FROM documents WHERE id = ?`, id,
	).Scan(&docType, &body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("soft delete %s: %w", id, lumen.ErrNotFound)
		}
		return ioErr("reading document", err)
	}

	doc, err := decodeDocument(lumen.DocType(docType), body)
	if err != nil {
		return err
	}
	m := doc.DocMeta()
	deletedAt := at
	m.DeletedAt = &deletedAt
	m.UpdatedAt = at
	m.Rev = uuid.New().String()

	if err := writeDocument(ctx, tx, doc); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return ioErr("committing soft delete", err)
	}
	return nil
}

// HardDelete removes documents and their blobs for good.
func (s *SQLiteStore) HardDelete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, ioErr("hard delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ioErr("hard delete", err)
	}
	return int(n), nil
}

// All returns every document, tombstones included, grouped by type.
func (s *SQLiteStore) All(ctx context.Context) (*lumen.Collections, error) {
	docs, err := s.List(ctx, lumen.Filter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}

	cols := &lumen.Collections{
		Tasks:    []lumen.Task{},
		Tags:     []lumen.Tag{},
		Branches: []lumen.Branch{},
		Files:    []lumen.FileDoc{},
		Settings: []lumen.Settings{},
	}
	for _, d := range docs {
		switch v := d.(type) {
		case *lumen.Task:
			cols.Tasks = append(cols.Tasks, *v)
		case *lumen.Tag:
			cols.Tags = append(cols.Tags, *v)
		case *lumen.Branch:
			cols.Branches = append(cols.Branches, *v)
		case *lumen.FileDoc:
			cols.Files = append(cols.Files, *v)
		case *lumen.Settings:
			cols.Settings = append(cols.Settings, *v)
		}
	}
	return cols, nil
}

func (s *SQLiteStore) PutBlob(ctx context.Context, id string, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (document_id, payload) VALUES (?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET payload = excluded.payload`,
		id, payload)
	if err != nil {
		return ioErr("storing blob", err)
	}
	return nil
}

func (s *SQLiteStore) GetBlob(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM blobs WHERE document_id = ?`, id,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob %s: %w", id, lumen.ErrNotFound)
		}
		return nil, ioErr("loading blob", err)
	}
	return payload, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// writeDocument serializes the document and upserts its row, refreshing the
// indexed filter columns alongside the body.
func writeDocument(ctx context.Context, tx *sql.Tx, doc lumen.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", doc.DocID(), err)
	}

	m := doc.DocMeta()
	var deletedAt sql.NullTime
	if m.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: m.DeletedAt.UTC(), Valid: true}
	}

	var status, scheduledDate, branchID, nameLower sql.NullString
	switch v := doc.(type) {
	case *lumen.Task:
		status = sql.NullString{String: string(v.Status), Valid: true}
		if v.Scheduled.Date != "" {
			scheduledDate = sql.NullString{String: v.Scheduled.Date, Valid: true}
		}
		branchID = sql.NullString{String: v.BranchID, Valid: true}
	case *lumen.Tag:
		nameLower = sql.NullString{String: strings.ToLower(v.Name), Valid: true}
	case *lumen.Branch:
		nameLower = sql.NullString{String: strings.ToLower(v.Name), Valid: true}
	case *lumen.FileDoc:
		nameLower = sql.NullString{String: strings.ToLower(v.Name), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, doc_type, rev, created_at, updated_at, deleted_at,
		                        status, scheduled_date, branch_id, name_lower, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   doc_type = excluded.doc_type,
		   rev = excluded.rev,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at,
		   deleted_at = excluded.deleted_at,
		   status = excluded.status,
		   scheduled_date = excluded.scheduled_date,
		   branch_id = excluded.branch_id,
		   name_lower = excluded.name_lower,
		   body = excluded.body`,
		m.ID, string(doc.DocType()), m.Rev, m.CreatedAt.UTC(), m.UpdatedAt.UTC(), deletedAt,
		status, scheduledDate, branchID, nameLower, string(body))
	if err != nil {
		return ioErr("writing document", err)
	}
	return nil
}

// decodeDocument unmarshals a row's body into the concrete type named by the
// discriminator.
func decodeDocument(docType lumen.DocType, body string) (lumen.Document, error) {
	var doc lumen.Document
	switch docType {
	case lumen.DocTask:
		doc = &lumen.Task{}
	case lumen.DocTag:
		doc = &lumen.Tag{}
	case lumen.DocBranch:
		doc = &lumen.Branch{}
	case lumen.DocFile:
		doc = &lumen.FileDoc{}
	case lumen.DocSettings:
		doc = &lumen.Settings{}
	default:
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
	if err := json.Unmarshal([]byte(body), doc); err != nil {
		return nil, fmt.Errorf("unmarshaling %s document: %w", docType, err)
	}
	return doc, nil
}

// Compile-time check that SQLiteStore implements lumen.Store interface
var _ lumen.Store = (*SQLiteStore)(nil)
