// Package catalog records merged documents in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("record not found")

// Record is one merged document. FileURL is the slash separated location
// of the document inside the output store, e.g. pdf/<uuid>.pdf.
type Record struct {
	ID           string    `json:"id" yaml:"id"`
	DocumentName string    `json:"document_name" yaml:"document_name"`
	FileURL      string    `json:"file_url" yaml:"file_url"`
	Pages        int       `json:"pages" yaml:"pages"`
	Bytes        int64     `json:"bytes" yaml:"bytes"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
}

// Store manages the records database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the database at path and its schema. The path
// ":memory:" keeps everything in memory.
func NewStore(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			document_name TEXT NOT NULL,
			file_url TEXT NOT NULL,
			pages INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, r Record) error {
	if r.ID == "" {
		return errors.New("record without id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, document_name, file_url, pages, bytes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.DocumentName, r.FileURL, r.Pages, r.Bytes, r.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("inserting record %s: %w", r.ID, err)
	}
	return nil
}

// List returns every record, oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_name, file_url, pages, bytes, created_at FROM records ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_name, file_url, pages, bytes, created_at FROM records WHERE id = ?`, id)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Delete removes the record with id and reports ErrNotFound when there is
// none.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(sc scanner) (Record, error) {
	var r Record
	var created string
	if err := sc.Scan(&r.ID, &r.DocumentName, &r.FileURL, &r.Pages, &r.Bytes, &created); err != nil {
		return Record{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: bad created_at %q: %w", r.ID, created, err)
	}
	r.CreatedAt = t
	return r, nil
}
