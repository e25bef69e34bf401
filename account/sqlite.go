// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/lib/sqlitepool"
)

// Schema creates the accounts table. Pass it (alone or concatenated
// with other stores' schemas) as sqlitepool.Config.Schema.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id      TEXT PRIMARY KEY,
	homeserver   TEXT NOT NULL,
	access_token TEXT NOT NULL,
	device_id    TEXT NOT NULL DEFAULT '',
	next_batch   TEXT NOT NULL DEFAULT '',
	filter_id    TEXT NOT NULL DEFAULT '',
	autojoin     INTEGER NOT NULL DEFAULT 1,
	enabled      INTEGER NOT NULL DEFAULT 1
);
`

const selectColumns = `user_id, homeserver, access_token, device_id, next_batch, filter_id, autojoin, enabled`

// SQLiteStore is the Store backed by a sqlitepool.Pool.
type SQLiteStore struct {
	pool *sqlitepool.Pool
}

// NewSQLiteStore returns a store using pool. The pool must have been
// opened with Schema applied.
func NewSQLiteStore(pool *sqlitepool.Pool) *SQLiteStore {
	return &SQLiteStore{pool: pool}
}

// Get returns the account for userID or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, userID ref.UserID) (Account, error) {
	var (
		found   Account
		present bool
		scanErr error
	)
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+selectColumns+` FROM accounts WHERE user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{userID.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found, scanErr = scanAccount(stmt)
					present = true
					return scanErr
				},
			})
	})
	if err != nil {
		return Account{}, fmt.Errorf("account: get %s: %w", userID, err)
	}
	if !present {
		return Account{}, ErrNotFound
	}
	return found, nil
}

// Insert stores a new account.
func (s *SQLiteStore) Insert(ctx context.Context, account Account) error {
	if account.UserID.IsZero() {
		return fmt.Errorf("account: insert with empty user ID")
	}
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO accounts (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{
				Args: []any{
					account.UserID.String(),
					account.Homeserver,
					account.AccessToken,
					account.DeviceID,
					account.NextBatch,
					account.FilterID,
					boolInt(account.AutoJoin),
					boolInt(account.Enabled),
				},
			})
	})
	if err != nil {
		return fmt.Errorf("account: insert %s: %w", account.UserID, err)
	}
	return nil
}

// Update writes the named fields. Duplicate fields are written once.
// Calling Update with no fields is a no-op.
func (s *SQLiteStore) Update(ctx context.Context, account Account, fields ...Field) error {
	if len(fields) == 0 {
		return nil
	}
	fields = slices.Clone(fields)
	slices.Sort(fields)
	fields = slices.Compact(fields)

	assignments := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, field := range fields {
		value, err := field.value(account)
		if err != nil {
			return err
		}
		assignments = append(assignments, field.String()+" = ?")
		args = append(args, value)
	}
	args = append(args, account.UserID.String())

	query := `UPDATE accounts SET ` + strings.Join(assignments, ", ") + ` WHERE user_id = ?`
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
			return err
		}
		if conn.Changes() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("account: update %s: %w", account.UserID, err)
	}
	return nil
}

// Delete removes the account for userID.
func (s *SQLiteStore) Delete(ctx context.Context, userID ref.UserID) error {
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `DELETE FROM accounts WHERE user_id = ?`,
			&sqlitex.ExecOptions{Args: []any{userID.String()}})
	})
	if err != nil {
		return fmt.Errorf("account: delete %s: %w", userID, err)
	}
	return nil
}

// All yields every account ordered by user ID. Rows are read in one
// query before the first yield, so the loop body may call back into
// the store.
func (s *SQLiteStore) All(ctx context.Context) iter.Seq2[Account, error] {
	return func(yield func(Account, error) bool) {
		var accounts []Account
		err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
			return sqlitex.Execute(conn,
				`SELECT `+selectColumns+` FROM accounts ORDER BY user_id`,
				&sqlitex.ExecOptions{
					ResultFunc: func(stmt *sqlite.Stmt) error {
						account, err := scanAccount(stmt)
						if err != nil {
							return err
						}
						accounts = append(accounts, account)
						return nil
					},
				})
		})
		if err != nil {
			yield(Account{}, fmt.Errorf("account: listing: %w", err))
			return
		}
		for _, account := range accounts {
			if !yield(account, nil) {
				return
			}
		}
	}
}

func scanAccount(stmt *sqlite.Stmt) (Account, error) {
	userID, err := ref.ParseUserID(stmt.ColumnText(0))
	if err != nil {
		return Account{}, fmt.Errorf("stored user ID: %w", err)
	}
	return Account{
		UserID:      userID,
		Homeserver:  stmt.ColumnText(1),
		AccessToken: stmt.ColumnText(2),
		DeviceID:    stmt.ColumnText(3),
		NextBatch:   stmt.ColumnText(4),
		FilterID:    stmt.ColumnText(5),
		AutoJoin:    stmt.ColumnInt64(6) != 0,
		Enabled:     stmt.ColumnInt64(7) != 0,
	}, nil
}
