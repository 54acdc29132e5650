// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DataAccess runs the common statements of the entity T on a database.
type DataAccess[T any] struct {
	table  *Table
	db     *DB
	logger zerolog.Logger
}

// NewDataAccess returns the data access object of T on db.
func NewDataAccess[T any](db *DB, opts ...TableOption) (*DataAccess[T], error) {
	if db == nil {
		return nil, fmt.Errorf("%w: no database", ErrConfiguration)
	}
	table, err := TableOf[T](opts...)
	if err != nil {
		return nil, err
	}
	return &DataAccess[T]{
		table:  table,
		db:     db,
		logger: db.logger.With().Str("entity", table.Entity().Name()).Logger(),
	}, nil
}

// Open returns the data access object of T on the connection T declares.
// When T declares several connections, name selects one of them.
func Open[T any](cfg *Config, name ...string) (*DataAccess[T], error) {
	entity, err := EntityOf[T]()
	if err != nil {
		return nil, err
	}
	conn, err := connectionOf(entity, name...)
	if err != nil {
		return nil, err
	}
	db, err := cfg.DB(conn)
	if err != nil {
		return nil, err
	}
	return NewDataAccess[T](db, cfg.TableOptions()...)
}

// connectionOf picks the connection of entity.
func connectionOf(entity *Entity, name ...string) (string, error) {
	conns := entity.Connections()
	if len(conns) == 0 {
		return "", fmt.Errorf("%w: %s declares no connection", ErrConfiguration, entity.Name())
	}
	if len(name) > 1 {
		return "", fmt.Errorf("%w: more than one connection name given for %s", ErrConfiguration, entity.Name())
	}
	if len(name) == 1 {
		for _, c := range conns {
			if strings.EqualFold(c, name[0]) {
				return c, nil
			}
		}
		return "", fmt.Errorf("%w: %s does not declare connection %q", ErrConfiguration, entity.Name(), name[0])
	}
	if len(conns) > 1 {
		return "", fmt.Errorf("%w: %s declares connections %s, name one of them", ErrConfiguration, entity.Name(), strings.Join(conns, ", "))
	}
	return conns[0], nil
}

// Table returns the statement builder of T.
func (da *DataAccess[T]) Table() *Table {
	return da.table
}

// DB returns the database statements are run on.
func (da *DataAccess[T]) DB() *DB {
	return da.db
}

// Query returns the rows q selects. Finding nothing is not an error.
func (da *DataAccess[T]) Query(ctx context.Context, q Select) ([]T, error) {
	stmt, err := da.table.Select(q)
	if err != nil {
		return nil, err
	}
	var rows []T
	err = da.db.Query(ctx, stmt).GetAll(&rows)
	if errors.Is(err, ErrNoRows) {
		return []T{}, nil
	}
	return rows, err
}

// Find returns the rows matching where, or every row when where is nil, in
// the given order.
func (da *DataAccess[T]) Find(ctx context.Context, where *Expr, order ...Order) ([]T, error) {
	return da.Query(ctx, Select{Where: where, OrderBy: order})
}

// First returns the first row matching where in the given order. It returns
// [ErrNoRows] when no row matches.
func (da *DataAccess[T]) First(ctx context.Context, where *Expr, order ...Order) (T, error) {
	var row T
	q := Select{Where: where, OrderBy: order}
	// TOP is SQL Server syntax. Elsewhere only the first row is read.
	if da.db.mssql {
		q.Top = 1
	}
	stmt, err := da.table.Select(q)
	if err != nil {
		return row, err
	}
	err = da.db.Query(ctx, stmt).Get(&row)
	return row, err
}

// Count returns the number of rows matching where.
func (da *DataAccess[T]) Count(ctx context.Context, where *Expr) (int64, error) {
	stmt, err := da.table.Count(Select{Where: where})
	if err != nil {
		return 0, err
	}
	// The count column is unnamed on SQL Server.
	result := map[string]int64{}
	if err := da.db.Query(ctx, stmt).Get(result); err != nil {
		return 0, err
	}
	for _, n := range result {
		return n, nil
	}
	return 0, fmt.Errorf("internal error: count returned no column")
}

func (da *DataAccess[T]) exec(ctx context.Context, stmt *Statement, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	var outcome Outcome
	if err := da.db.Query(ctx, stmt).Get(&outcome); err != nil {
		return 0, err
	}
	if outcome.Result() == nil {
		return 0, nil
	}
	return outcome.Result().RowsAffected()
}

// Insert inserts the values of set, a member-init over T. It returns the
// number of rows affected.
func (da *DataAccess[T]) Insert(ctx context.Context, set *Expr) (int64, error) {
	stmt, err := da.table.Insert(set)
	return da.exec(ctx, stmt, err)
}

// InsertEntity inserts row.
func (da *DataAccess[T]) InsertEntity(ctx context.Context, row T) (int64, error) {
	stmt, err := da.table.InsertEntity(row)
	return da.exec(ctx, stmt, err)
}

// Update assigns the values of set to the rows matching where. It returns
// the number of rows affected.
func (da *DataAccess[T]) Update(ctx context.Context, set, where *Expr) (int64, error) {
	stmt, err := da.table.Update(set, where)
	return da.exec(ctx, stmt, err)
}

// Upsert updates the rows matching where, inserting the values of set when
// none matches.
func (da *DataAccess[T]) Upsert(ctx context.Context, set, where *Expr) (int64, error) {
	stmt, err := da.table.Upsert(set, where)
	return da.exec(ctx, stmt, err)
}

// Delete deletes the rows matching where. It returns the number of rows
// affected.
func (da *DataAccess[T]) Delete(ctx context.Context, where *Expr) (int64, error) {
	stmt, err := da.table.Delete(where)
	return da.exec(ctx, stmt, err)
}

// Transact runs f in a transaction, committing when f succeeds and rolling
// back otherwise.
func (da *DataAccess[T]) Transact(ctx context.Context, f func(context.Context, *TX) error) (err error) {
	tx, err := da.db.Begin(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			err = tx.Commit()
			return
		}
		if rerr := tx.Rollback(); rerr != nil {
			da.logger.Warn().Err(rerr).Msg("cannot roll back transaction")
		}
	}()
	return f(ctx, tx)
}

func (da *DataAccess[T]) bulk(ctx context.Context, op string, build func(any) (*Statement, error), rows []T) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := build(rows)
	if err != nil {
		return 0, err
	}
	var affected int64
	err = da.Transact(ctx, func(ctx context.Context, tx *TX) error {
		var outcome Outcome
		if err := tx.Query(ctx, stmt).Get(&outcome); err != nil {
			return err
		}
		if outcome.Result() != nil {
			affected, _ = outcome.Result().RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cannot bulk %s %d rows: %w", op, len(rows), err)
	}
	da.logger.Debug().Str("op", op).Int("rows", len(rows)).Int64("affected", affected).Msg("bulk statement done")
	return affected, nil
}

// BulkInsert inserts rows in a single statement.
func (da *DataAccess[T]) BulkInsert(ctx context.Context, rows []T) (int64, error) {
	return da.bulk(ctx, "insert", da.table.BulkInsert, rows)
}

// BulkUpdate updates the rows whose keys match an element of rows.
func (da *DataAccess[T]) BulkUpdate(ctx context.Context, rows []T) (int64, error) {
	return da.bulk(ctx, "update", da.table.BulkUpdate, rows)
}

// BulkUpsert updates the rows whose keys match an element of rows and
// inserts the others.
func (da *DataAccess[T]) BulkUpsert(ctx context.Context, rows []T) (int64, error) {
	return da.bulk(ctx, "upsert", da.table.BulkUpsert, rows)
}

// BulkDelete deletes the rows whose keys match an element of rows.
func (da *DataAccess[T]) BulkDelete(ctx context.Context, rows []T) (int64, error) {
	return da.bulk(ctx, "delete", da.table.BulkDelete, rows)
}
