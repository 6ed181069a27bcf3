package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"

	_ "github.com/mattn/go-sqlite3"
)

const assetTableSchema = `
	CREATE TABLE IF NOT EXISTS assets (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL
	);
`

// sqliteResolver resolves names from the assets table of a SQLite database.
type sqliteResolver struct {
	db *sql.DB
}

var _ Resolver = &sqliteResolver{}

// NewSQLiteResolver creates a Resolver reading the assets table of an open database.
// The caller keeps ownership of db.
//
// Parameters:
//   - db: the database holding an assets(name, data) table
//
// Returns:
//   - Resolver: the database resolver
func NewSQLiteResolver(db *sql.DB) Resolver {
	return &sqliteResolver{db: db}
}

// OpenAssetStore opens (creating if needed) a SQLite asset store and ensures the assets table exists.
//
// Parameters:
//   - path: the database file path, ":memory:" for a private in-memory store
//
// Returns:
//   - *sql.DB: the open database
//   - error: error if the database cannot be opened or initialized
func OpenAssetStore(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset store: %w", err)
	}
	// an in-memory database lives per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(assetTableSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup asset store: %w", err)
	}
	return db, nil
}

func (r *sqliteResolver) Resolve(name string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow("SELECT data FROM assets WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", name, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", name, err)
	}
	return data, nil
}

// StoreFiles writes a file set into the assets table in one transaction, replacing entries
// with the same name.
//
// Parameters:
//   - ctx: the context for the transaction
//   - db: a database opened with OpenAssetStore
//   - files: the files keyed by name
//
// Returns:
//   - error: error if any write fails; nothing is stored in that case
func StoreFiles(ctx context.Context, db *sql.DB, files map[string][]byte) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO assets (name, data) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range slices.Sorted(maps.Keys(files)) {
		if _, err := stmt.ExecContext(ctx, name, files[name]); err != nil {
			return fmt.Errorf("failed to store %q: %w", name, err)
		}
	}
	return tx.Commit()
}
