// Package sqlite implements ports.TripletStore on SQLite.
// Uses ncruces/go-sqlite3/driver which provides a database/sql interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aretw0/netviz/pkg/domain"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// schema holds one row per fact. The primary key is the fact key, and the two extra
// indexes cover lookups by predicate/object and by object/subject.
const schema = `
CREATE TABLE IF NOT EXISTS facts (
    subject TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object TEXT NOT NULL,
    body TEXT NOT NULL,
    PRIMARY KEY (subject, predicate, object)
);

CREATE INDEX IF NOT EXISTS idx_facts_pos ON facts(predicate, object);
CREATE INDEX IF NOT EXISTS idx_facts_os ON facts(object, subject);
`

// Store is the SQLite-backed triplet store.
type Store struct {
	db *sql.DB
}

// New creates an in-memory store.
func New() (*Store, error) {
	return NewWithDSN(":memory:")
}

// NewWithDSN creates a store with a specific data source name.
// Use ":memory:" for in-memory or a file path for persistent storage.
func NewWithDSN(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put upserts the facts in one transaction.
func (s *Store) Put(ctx context.Context, facts ...domain.Fact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facts (subject, predicate, object, body) VALUES (?, ?, ?, ?)
		ON CONFLICT (subject, predicate, object) DO UPDATE SET body = excluded.body`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range facts {
		body, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal fact: %w", err)
		}
		k := f.Key()
		if _, err := stmt.ExecContext(ctx, k.Subject, k.Predicate, k.Object, string(body)); err != nil {
			return fmt.Errorf("insert fact: %w", err)
		}
	}
	return tx.Commit()
}

// Delete removes the facts in one transaction.
func (s *Store) Delete(ctx context.Context, facts ...domain.Fact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, f := range facts {
		k := f.Key()
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM facts WHERE subject = ? AND predicate = ? AND object = ?`,
			k.Subject, k.Predicate, k.Object); err != nil {
			return fmt.Errorf("delete fact: %w", err)
		}
	}
	return tx.Commit()
}

// Get selects the facts matching every non-empty pattern field.
func (s *Store) Get(ctx context.Context, pattern domain.Pattern) ([]domain.Fact, error) {
	var where []string
	var args []any
	if pattern.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, pattern.Subject)
	}
	if pattern.Predicate != "" {
		where = append(where, "predicate = ?")
		args = append(args, pattern.Predicate)
	}
	if pattern.Object != "" {
		where = append(where, "object = ?")
		args = append(args, pattern.Object)
	}

	query := "SELECT body FROM facts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var out []domain.Fact
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		var f domain.Fact
		if err := json.Unmarshal([]byte(body), &f); err != nil {
			return nil, fmt.Errorf("decode fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
