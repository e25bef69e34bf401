// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package participant

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/lib/sqlitepool"
)

// Schema creates the participant tables.
const Schema = `
CREATE TABLE IF NOT EXISTS participants (
	user_id TEXT PRIMARY KEY,
	context TEXT NOT NULL,
	state   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS participant_variables (
	user_id TEXT NOT NULL REFERENCES participants(user_id) ON DELETE CASCADE,
	name    TEXT NOT NULL,
	value   BLOB NOT NULL,
	PRIMARY KEY (user_id, name)
);
`

// SQLiteRepository is the Repository backed by a sqlitepool.Pool
// opened with Schema.
type SQLiteRepository struct {
	pool *sqlitepool.Pool
}

func NewSQLiteRepository(pool *sqlitepool.Pool) *SQLiteRepository {
	return &SQLiteRepository{pool: pool}
}

func (r *SQLiteRepository) Get(ctx context.Context, id ref.UserID) (Record, error) {
	record := Record{ID: id}
	present := false
	err := r.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT context, state FROM participants WHERE user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					record.Context = stmt.ColumnText(0)
					record.State = State(stmt.ColumnText(1))
					present = true
					return nil
				},
			})
	})
	if err != nil {
		return Record{}, fmt.Errorf("participant: get %s: %w", id, err)
	}
	if !present {
		return Record{}, ErrNotFound
	}
	return record, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, record Record) error {
	err := r.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO participants (user_id, context, state) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{record.ID.String(), record.Context, string(record.State)}})
	})
	if err != nil {
		return fmt.Errorf("participant: insert %s: %w", record.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateParticipant(ctx context.Context, record Record) error {
	err := r.pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn,
			`UPDATE participants SET context = ?, state = ? WHERE user_id = ?`,
			&sqlitex.ExecOptions{Args: []any{record.Context, string(record.State), record.ID.String()}}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("participant: update %s: %w", record.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Variables(ctx context.Context, id ref.UserID) (map[string][]byte, error) {
	variables := make(map[string][]byte)
	err := r.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT name, value FROM participant_variables WHERE user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					variables[stmt.ColumnText(0)] = columnBlob(stmt, 1)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("participant: variables of %s: %w", id, err)
	}
	return variables, nil
}

func (r *SQLiteRepository) Variable(ctx context.Context, id ref.UserID, name string) ([]byte, error) {
	var value []byte
	present := false
	err := r.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT value FROM participant_variables WHERE user_id = ? AND name = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id.String(), name},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					value = columnBlob(stmt, 0)
					present = true
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("participant: variable %q of %s: %w", name, id, err)
	}
	if !present {
		return nil, ErrNotFound
	}
	return value, nil
}

func (r *SQLiteRepository) SetVariable(ctx context.Context, id ref.UserID, name string, value []byte) error {
	err := r.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO participant_variables (user_id, name, value) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, name) DO UPDATE SET value = excluded.value`,
			&sqlitex.ExecOptions{Args: []any{id.String(), name, value}})
	})
	if err != nil {
		return fmt.Errorf("participant: set variable %q of %s: %w", name, id, err)
	}
	return nil
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	value := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, value)
	return value
}
