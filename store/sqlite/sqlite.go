// Package sqlite is the single-node persistent store. It uses the pure Go
// modernc.org/sqlite driver, so no cgo is needed.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	"github.com/warriorguo/flowexec/store"
	"github.com/warriorguo/flowexec/store/sqlstore"
	_ "modernc.org/sqlite"
)

var dialect = sqlstore.Dialect{
	Name: "sqlite",
	Schema: `
		CREATE TABLE IF NOT EXISTS flowexec_store (
			prefix TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (prefix, key)
		);`,
	GetSQL: `SELECT value FROM flowexec_store WHERE prefix = ? AND key = ?`,
	SetSQL: `
		INSERT INTO flowexec_store (prefix, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (prefix, key)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
	RemoveSQL: `DELETE FROM flowexec_store WHERE prefix = ? AND key = ?`,
	ListSQL:   `SELECT key FROM flowexec_store WHERE prefix = ? ORDER BY key`,
}

// NewSQLiteStore opens (or creates) the database file at path.
func NewSQLiteStore(path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open sqlite %s", path)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	s, err := sqlstore.New(context.Background(), db, dialect, true)
	if err != nil {
		db.Close()
		return nil, errors.Trace(err)
	}
	return s, nil
}
