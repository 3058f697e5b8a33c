// Package sqlstore implements store.Store over database/sql. The postgres
// and sqlite packages only differ by the Dialect they pass in.
package sqlstore

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	"github.com/warriorguo/flowexec/store"
)

var (
	_ store.Store = &Store{}
)

const tableName = "flowexec_store"

type Dialect struct {
	Name      string
	Schema    string
	GetSQL    string
	SetSQL    string
	RemoveSQL string
	ListSQL   string
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	ownDB   bool
}

// New wraps db and creates the table when missing. ownDB makes Close close db.
func New(ctx context.Context, db *sql.DB, dialect Dialect, ownDB bool) (*Store, error) {
	if db == nil {
		return nil, errors.BadRequestf("%s: db cannot be nil", dialect.Name)
	}
	s := &Store{db: db, dialect: dialect, ownDB: ownDB}
	if _, err := db.ExecContext(ctx, dialect.Schema); err != nil {
		return nil, errors.Annotatef(err, "%s: failed to create table %s", dialect.Name, tableName)
	}
	return s, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.GetSQL, prefix, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "%s: get prefix=%s, key=%s", s.dialect.Name, prefix, key)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, prefix, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.SetSQL, prefix, key, value); err != nil {
		return errors.Annotatef(err, "%s: set prefix=%s, key=%s", s.dialect.Name, prefix, key)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, prefix, key string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.RemoveSQL, prefix, key); err != nil {
		return errors.Annotatef(err, "%s: remove prefix=%s, key=%s", s.dialect.Name, prefix, key)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	rows, err := s.db.QueryContext(ctx, s.dialect.ListSQL, prefix)
	if err != nil {
		return errors.Annotatef(err, "%s: list prefix=%s", s.dialect.Name, prefix)
	}
	// keys are collected first so the iterator may call back into the store
	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return errors.Annotatef(err, "%s: scan key", s.dialect.Name)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return errors.Annotatef(err, "%s: iterate rows", s.dialect.Name)
	}
	rows.Close()

	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.ownDB && s.db != nil {
		return s.db.Close()
	}
	return nil
}
