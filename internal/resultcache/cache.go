// Package resultcache memoizes evaluated constants in a SQLite database.
//
// Rows are keyed by the fixture path, a digest of its text and the
// expression name, so editing a fixture invalidates everything evaluated
// from it and identical files at two paths keep separate rows. Values are
// stored both rendered and as exported JSON.
package resultcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrMiss is returned by Get when nothing is cached for the key.
var ErrMiss = errors.New("not cached")

const driverName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS results (
	fixture      TEXT    NOT NULL,
	name         TEXT    NOT NULL,
	source       TEXT    NOT NULL,
	text         TEXT    NOT NULL,
	json         BLOB,
	failed       INTEGER NOT NULL DEFAULT 0,
	session      TEXT    NOT NULL,
	instructions INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (source, fixture, name)
);
CREATE INDEX IF NOT EXISTS results_source ON results (source);
`

// Entry is one cached evaluation.
type Entry struct {
	// Fixture is the digest returned by Key.
	Fixture string
	Name    string
	// Source is the path the fixture was loaded from.
	Source string
	// Text is the rendered value, or the error text when Failed is set.
	Text   string
	JSON   []byte
	Failed bool
	// Session is the interpreter session that produced the value.
	Session      uuid.UUID
	Instructions int
	CreatedAt    time.Time
}

// Cache is a handle on a result database. It is safe for concurrent use.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

// Key digests fixture text.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening result cache %s: %w", path, err)
	}
	// a single writer keeps SQLite from reporting SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening result cache %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating result cache schema: %w", err)
	}
	return &Cache{db: db, now: time.Now}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Get returns the entry cached for name in the fixture loaded from source
// with digest key.
func (c *Cache) Get(ctx context.Context, source, key, name string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT text, json, failed, session, instructions, created_at
		FROM results WHERE source = ? AND fixture = ? AND name = ?`, source, key, name)

	e := &Entry{Fixture: key, Name: name, Source: source}
	var session string
	var created int64
	err := row.Scan(&e.Text, &e.JSON, &e.Failed, &session, &e.Instructions, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading cached %s: %w", name, err)
	}
	if e.Session, err = uuid.Parse(session); err != nil {
		return nil, fmt.Errorf("cached %s has a bad session id: %w", name, err)
	}
	e.CreatedAt = time.Unix(0, created).UTC()
	return e, nil
}

const insert = `
	INSERT OR REPLACE INTO results
		(source, fixture, name, text, json, failed, session, instructions, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Put stores entries in one transaction. A zero CreatedAt is set to now.
func (c *Cache) Put(ctx context.Context, entries ...*Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storing results: %w", err)
	}
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = c.now().UTC()
		}
		_, err := tx.ExecContext(ctx, insert,
			e.Source, e.Fixture, e.Name, e.Text, e.JSON, e.Failed,
			e.Session.String(), e.Instructions, e.CreatedAt.UnixNano())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("storing %s: %w", e.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storing results: %w", err)
	}
	return nil
}

// Prune deletes the entries of source that were evaluated from any
// version other than key, and reports how many went.
func (c *Cache) Prune(ctx context.Context, source, key string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM results WHERE source = ? AND fixture <> ?`, source, key)
	if err != nil {
		return 0, fmt.Errorf("pruning %s: %w", source, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats counts the cached entries and the distinct fixture versions.
func (c *Cache) Stats(ctx context.Context) (entries, fixtures int, err error) {
	err = c.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT fixture) FROM results`).Scan(&entries, &fixtures)
	if err != nil {
		return 0, 0, fmt.Errorf("reading cache stats: %w", err)
	}
	return entries, fixtures, nil
}
