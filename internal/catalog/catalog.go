// Package catalog persists the per-URL document record that drives the
// processing pipeline.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"github.com/agenthands/lineage/internal/core/model"
)

// Catalog is the SQLite backed document table.
type Catalog struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the catalog at path. ":memory:" gives a private
// in-memory catalog that lives as long as the Catalog.
func Open(path string) (*Catalog, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating catalog directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	// A single connection serializes writers and keeps :memory: alive.
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db, now: time.Now}
	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			url TEXT PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			date_added TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			extracted_text TEXT,
			metadata TEXT,
			merged TEXT,
			last_error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// ValidURL accepts absolute http(s) URLs only.
func ValidURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Add registers url as pending. Adding a known URL is a no-op; added reports
// whether a row was inserted.
func (c *Catalog) Add(ctx context.Context, rawURL string) (added bool, err error) {
	if !ValidURL(rawURL) {
		return false, fmt.Errorf("invalid url %q", rawURL)
	}
	doc := model.NewSourceDocument(rawURL, c.now().UTC())
	res, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents (url, id, date_added, source, status, retry_count, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, '{}', ?, ?)`,
		doc.URL, doc.ID, ts(doc.DateAdded), doc.Source, string(doc.Status), ts(doc.CreatedAt), ts(doc.UpdatedAt))
	if err != nil {
		return false, fmt.Errorf("adding %s: %w", rawURL, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const selectColumns = `url, id, date_added, source, status, retry_count,
	COALESCE(extracted_text, ''), COALESCE(metadata, '{}'), COALESCE(merged, ''),
	COALESCE(last_error, ''), created_at, updated_at`

// Get returns the document for url or model.ErrNotFound.
func (c *Catalog) Get(ctx context.Context, rawURL string) (model.SourceDocument, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents WHERE url = ?`, strings.TrimSpace(rawURL))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SourceDocument{}, fmt.Errorf("%s: %w", rawURL, model.ErrNotFound)
	}
	return doc, err
}

// List returns documents in insertion order, filtered by status when any
// are given.
func (c *Catalog) List(ctx context.Context, statuses ...model.Status) ([]model.SourceDocument, error) {
	query := `SELECT ` + selectColumns + ` FROM documents`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, s := range statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		query += ` WHERE status IN (` + strings.Join(marks, ",") + `)`
	}
	query += ` ORDER BY date_added, url`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []model.SourceDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Counts returns the number of documents per status.
func (c *Catalog) Counts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()

	out := map[model.Status]int{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[model.Status(s)] = n
	}
	return out, rows.Err()
}

// Save writes the mutable part of doc: status, retry count, text, metadata,
// merged record and last error.
func (c *Catalog) Save(ctx context.Context, doc model.SourceDocument) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	var merged any
	if doc.Merged != nil {
		b, err := json.Marshal(doc.Merged)
		if err != nil {
			return fmt.Errorf("encoding merged record: %w", err)
		}
		merged = string(b)
	}

	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, retry_count = ?, extracted_text = ?, metadata = ?,
		 merged = ?, last_error = ?, updated_at = ? WHERE url = ?`,
		string(doc.Status), doc.RetryCount, nullable(doc.Text), string(meta),
		merged, nullable(doc.LastError), ts(c.now().UTC()), doc.URL)
	if err != nil {
		return fmt.Errorf("saving %s: %w", doc.URL, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", doc.URL, model.ErrNotFound)
	}
	return nil
}

// Reset forces url back to pending regardless of its current status.
func (c *Catalog) Reset(ctx context.Context, rawURL string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, retry_count = 0, last_error = NULL, merged = NULL, updated_at = ? WHERE url = ?`,
		string(model.StatusPending), ts(c.now().UTC()), strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("resetting %s: %w", rawURL, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", rawURL, model.ErrNotFound)
	}
	return nil
}

// ResetAll forces every document back to pending and returns how many rows changed.
func (c *Catalog) ResetAll(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, retry_count = 0, last_error = NULL, merged = NULL, updated_at = ?`,
		string(model.StatusPending), ts(c.now().UTC()))
	if err != nil {
		return 0, fmt.Errorf("resetting documents: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// urlFile is the obituary_urls.json layout: {"urls": [{"url": ..., "status": ...}]}.
// A bare JSON array of URL strings is accepted too.
type urlFile struct {
	URLs []json.RawMessage `json:"urls"`
}

type urlEntry struct {
	URL           string         `json:"url"`
	Status        string         `json:"status"`
	ExtractedText string         `json:"extracted_text"`
	Metadata      model.Metadata `json:"metadata"`
}

// ImportJSON adds every URL in the file. Entries already imported keep
// their status so a re-import does not repeat work.
func (c *Catalog) ImportJSON(ctx context.Context, path string) (added int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read url file '%s': %w", path, err)
	}

	var raw []json.RawMessage
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return 0, fmt.Errorf("failed to parse url file: %w", err)
		}
	} else {
		var f urlFile
		if err := json.Unmarshal(data, &f); err != nil {
			return 0, fmt.Errorf("failed to parse url file: %w", err)
		}
		raw = f.URLs
	}

	for _, item := range raw {
		var entry urlEntry
		var bare string
		if err := json.Unmarshal(item, &bare); err == nil {
			entry.URL = bare
		} else if err := json.Unmarshal(item, &entry); err != nil {
			return added, fmt.Errorf("failed to parse url entry: %w", err)
		}

		ok, err := c.Add(ctx, entry.URL)
		if err != nil {
			return added, err
		}
		if !ok {
			continue
		}
		added++

		status, known := model.ParseStatus(entry.Status)
		if entry.Status == "completed" {
			status, known = model.StatusImported, true
		}
		if (known && status != model.StatusPending) || entry.ExtractedText != "" {
			if !known {
				status = model.StatusPending
			}
			if err := c.UpdateStatus(ctx, entry.URL, status, entry.ExtractedText, &entry.Metadata, ""); err != nil {
				return added, err
			}
		}
	}
	return added, nil
}

// ExportYAML writes every document as a YAML list.
func (c *Catalog) ExportYAML(ctx context.Context, w io.Writer) error {
	docs, err := c.List(ctx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"documents": docs}); err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return enc.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (model.SourceDocument, error) {
	var (
		doc                         model.SourceDocument
		status, meta, merged        string
		dateAdded, created, updated string
	)
	err := s.Scan(&doc.URL, &doc.ID, &dateAdded, &doc.Source, &status, &doc.RetryCount,
		&doc.Text, &meta, &merged, &doc.LastError, &created, &updated)
	if err != nil {
		return doc, err
	}
	doc.Status = model.Status(status)
	doc.DateAdded = parseTS(dateAdded)
	doc.CreatedAt = parseTS(created)
	doc.UpdatedAt = parseTS(updated)
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return doc, fmt.Errorf("decoding metadata of %s: %w", doc.URL, err)
		}
	}
	if merged != "" {
		var m model.MergedRecord
		if err := json.Unmarshal([]byte(merged), &m); err != nil {
			return doc, fmt.Errorf("decoding merged record of %s: %w", doc.URL, err)
		}
		doc.Merged = &m
	}
	return doc, nil
}

func ts(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTS(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
