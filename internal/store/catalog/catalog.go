package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Entry records one ingested file.
type Entry struct {
	Collection string    `json:"collection"`
	Path       string    `json:"path"`
	SHA256     string    `json:"sha256"`
	Chunks     int       `json:"chunks"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// Catalog is the SQLite ledger of files already inserted into a collection.
type Catalog struct {
	db *sql.DB
}

// Open creates or opens the ledger at path.
func Open(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging catalog: %w", err)
	}

	return newCatalog(db)
}

// OpenMemory opens a private in-memory ledger.
func OpenMemory() (*Catalog, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory catalog: %w", err)
	}
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	return newCatalog(db)
}

func newCatalog(db *sql.DB) (*Catalog, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Catalog{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS ingested_files (
    collection TEXT NOT NULL,
    sha256 TEXT NOT NULL,
    path TEXT NOT NULL,
    chunks INTEGER NOT NULL DEFAULT 0,
    ingested_at TEXT NOT NULL,
    PRIMARY KEY (collection, sha256)
);

CREATE INDEX IF NOT EXISTS idx_ingested_path ON ingested_files(collection, path);
`

// Has reports whether content with digest sha was already ingested into collection.
func (c *Catalog) Has(ctx context.Context, collection, sha string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM ingested_files WHERE collection = ? AND sha256 = ?`,
		collection, sha,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query catalog: %w", err)
	}
	return n > 0, nil
}

// Record stores or refreshes an entry.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO ingested_files (collection, sha256, path, chunks, ingested_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection, sha256) DO UPDATE SET path = excluded.path, chunks = excluded.chunks, ingested_at = excluded.ingested_at`,
		e.Collection, e.SHA256, e.Path, e.Chunks, e.IngestedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Path, err)
	}
	return nil
}

// List returns the entries of collection, oldest first.
func (c *Catalog) List(ctx context.Context, collection string) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT collection, sha256, path, chunks, ingested_at FROM ingested_files
		 WHERE collection = ? ORDER BY ingested_at, path`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.Collection, &e.SHA256, &e.Path, &e.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		e.IngestedAt, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Clear forgets every entry of collection and returns how many were removed.
func (c *Catalog) Clear(ctx context.Context, collection string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM ingested_files WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("clear catalog: %w", err)
	}
	return res.RowsAffected()
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
