// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync/atomic"

	sq "github.com/Masterminds/squirrel"
	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/rs/zerolog"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// DB runs statements on a database. Statements are prepared on first use
// and kept in a bounded cache.
type DB struct {
	sqldb  *sql.DB
	cache  *statementCache
	mssql  bool
	logger zerolog.Logger
}

// DBOption configures a [DB].
type DBOption func(*DB)

// WithLogger sets the logger statements are logged to at debug level. The
// default logger discards everything.
func WithLogger(logger zerolog.Logger) DBOption {
	return func(db *DB) {
		db.logger = logger
	}
}

// WithStatementCacheSize sets the number of prepared statements kept.
func WithStatementCacheSize(n int) DBOption {
	return func(db *DB) {
		db.cache = newStatementCache(n)
	}
}

// WithSQLServer overrides whether parameters are converted for SQL Server.
// By default they are when the driver of the database is the SQL Server one.
func WithSQLServer(on bool) DBOption {
	return func(db *DB) {
		db.mssql = on
	}
}

// NewDB creates a new [DB] from a [sql.DB].
func NewDB(sqldb *sql.DB, opts ...DBOption) *DB {
	if sqldb == nil {
		return nil
	}
	_, isMSSQL := sqldb.Driver().(*mssql.Driver)
	db := &DB{
		sqldb:  sqldb,
		mssql:  isMSSQL,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.cache == nil {
		db.cache = newStatementCache(DefaultStatementCacheSize)
	}
	return db
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Close closes the cached prepared statements and the database.
func (db *DB) Close() error {
	db.cache.purge()
	return db.sqldb.Close()
}

// runner is what statements are run through: a database, a transaction or a
// prepared statement.
type runner interface {
	sq.ExecerContext
	sq.QueryerContext
}

// preparedRunner runs a prepared statement, ignoring the query text it is
// given since that is the text the statement was prepared with.
type preparedRunner struct {
	stmt *sql.Stmt
}

func (r preparedRunner) ExecContext(ctx context.Context, _ string, args ...any) (sql.Result, error) {
	return r.stmt.ExecContext(ctx, args...)
}

func (r preparedRunner) QueryContext(ctx context.Context, _ string, args ...any) (*sql.Rows, error) {
	return r.stmt.QueryContext(ctx, args...)
}

// Query is a statement bound to a database or transaction. It runs when
// one of its methods is called and is meant to be run once.
type Query struct {
	run  func(context.Context) (*sql.Rows, sql.Result, error)
	ctx  context.Context
	err  error
	stmt *Statement
}

// prime renders s and returns the query that runs it through r.
func prime(ctx context.Context, logger zerolog.Logger, s *Statement, forMSSQL bool, r func(context.Context, string) (runner, error)) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if s == nil {
		return &Query{ctx: ctx, err: fmt.Errorf("cannot run nil statement")}
	}
	text, args, err := s.render(forMSSQL)
	if err != nil {
		return &Query{ctx: ctx, err: err}
	}
	rendered := sq.Expr(text, args...)

	run := func(innerCtx context.Context) (rows *sql.Rows, result sql.Result, err error) {
		rn, err := r(innerCtx, text)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug().Str("sql", text).Strs("params", s.ParamNames()).Msg("running statement")
		if s.query {
			rows, err = sq.QueryContextWith(innerCtx, rn, rendered)
		} else {
			result, err = sq.ExecContextWith(innerCtx, rn, rendered)
		}
		if err != nil {
			logger.Debug().Err(err).Str("sql", text).Msg("statement failed")
		}
		return rows, result, err
	}
	return &Query{stmt: s, run: run, ctx: ctx}
}

// Query binds s to the database. The statement is prepared, or taken from
// the cache, when the query runs.
func (db *DB) Query(ctx context.Context, s *Statement) *Query {
	return prime(ctx, db.logger, s, db.mssql, func(ctx context.Context, text string) (runner, error) {
		sqlstmt, err := db.cache.prepare(ctx, db.sqldb, text)
		if err != nil {
			return nil, err
		}
		return preparedRunner{stmt: sqlstmt}, nil
	})
}

// Run runs the query and discards any rows.
func (q *Query) Run() error {
	return q.Get()
}

// splitOutcome removes a leading *Outcome from outputs.
func splitOutcome(outputs []any) (*Outcome, []any) {
	if len(outputs) > 0 {
		if oc, ok := outputs[0].(*Outcome); ok {
			return oc, outputs[1:]
		}
	}
	return nil, outputs
}

// Get runs the query and scans the first row into outputs, which are
// pointers to structs or maps with string keys. With several outputs each
// gets the columns of one table, split at the split-on columns of the
// statement. Get returns [ErrNoRows] when outputs are given and no row
// comes back.
//
// A leading *[Outcome] is filled with the result of the execution.
func (q *Query) Get(outputs ...any) error {
	if q.err != nil {
		return q.err
	}
	outcome, outputs := splitOutcome(outputs)
	if len(outputs) > 0 && !q.stmt.query {
		return fmt.Errorf("cannot get results: output variables provided but statement returns no rows")
	}

	iter := q.Iter()
	if outcome != nil {
		if err := iter.Get(outcome); err != nil {
			iter.Close()
			return err
		}
	}
	switch {
	case !iter.Next():
		if err := iter.Close(); err != nil {
			return err
		}
		if len(outputs) > 0 {
			return ErrNoRows
		}
		return nil
	case len(outputs) > 0:
		if err := iter.Get(outputs...); err != nil {
			iter.Close()
			return err
		}
	}
	return iter.Close()
}

// Iter runs the query and returns an [Iterator] over its rows. The iterator
// must be closed.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}
	rows, result, err := q.run(q.ctx)
	if err != nil {
		return &Iterator{stmt: q.stmt, err: err}
	}
	iter := &Iterator{stmt: q.stmt, rows: rows, result: result}
	if rows != nil {
		if iter.cols, err = rows.Columns(); err != nil {
			rows.Close()
			iter.rows, iter.err = nil, err
		}
	}
	return iter
}

// Iterator walks the rows of a query.
type Iterator struct {
	stmt   *Statement
	rows   *sql.Rows
	cols   []string
	result sql.Result
	err    error
	// moved is set once Next or Close is called.
	moved bool
}

// Next advances to the next row. It returns false when there are no more
// rows or an error occurred, which [Iterator.Close] reports.
func (iter *Iterator) Next() bool {
	iter.moved = true
	return iter.err == nil && iter.rows != nil && iter.rows.Next()
}

// Get scans the current row into outputs, as [Query.Get] does.
//
// Before the first [Iterator.Next] the only thing Get accepts is a
// *[Outcome], filled with the result of the execution.
func (iter *Iterator) Get(outputs ...any) error {
	if iter.err != nil {
		return iter.err
	}
	if err := iter.scan(outputs); err != nil {
		return fmt.Errorf("cannot get result: %w", err)
	}
	return nil
}

func (iter *Iterator) scan(outputs []any) error {
	if !iter.moved {
		if oc, rest := splitOutcome(outputs); oc != nil && len(rest) == 0 {
			oc.result = iter.result
			return nil
		}
		return fmt.Errorf("cannot call Get before Next unless getting outcome")
	}
	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}
	dest, onSuccess, err := typeinfo.Default().ScanArgs(iter.cols, iter.stmt.splitOn, outputs)
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(dest...); err != nil {
		return err
	}
	onSuccess()
	return nil
}

// Close releases the rows and returns the first error met while iterating.
// Closing again returns the same error.
func (iter *Iterator) Close() error {
	iter.moved = true
	if iter.rows != nil {
		rows := iter.rows
		iter.rows = nil
		err := rows.Close()
		if err == nil {
			err = rows.Err()
		}
		if iter.err == nil {
			iter.err = err
		}
	}
	return iter.err
}

// Outcome receives the [sql.Result] of an execution when passed as the
// first output of [Query.Get], [Query.GetAll] or [Iterator.Get].
type Outcome struct {
	result sql.Result
}

// Result returns the result of the execution, or nil for queries.
func (o *Outcome) Result() sql.Result {
	return o.result
}

// sliceOutput appends scanned rows to a slice of structs, of pointers to
// structs or of maps.
type sliceOutput struct {
	ptr   reflect.Value
	slice reflect.Value
	elem  reflect.Type
}

func newSliceOutput(arg any) (*sliceOutput, error) {
	ptr := reflect.ValueOf(arg)
	switch {
	case ptr.Kind() != reflect.Pointer:
		return nil, fmt.Errorf("need pointer to slice, got %s", ptr.Kind())
	case ptr.IsNil():
		return nil, fmt.Errorf("need pointer to slice, got nil")
	case ptr.Elem().Kind() != reflect.Slice:
		return nil, fmt.Errorf("need pointer to slice, got pointer to %s", ptr.Elem().Kind())
	}
	out := &sliceOutput{ptr: ptr, slice: ptr.Elem(), elem: ptr.Elem().Type().Elem()}
	switch {
	case out.elem.Kind() == reflect.Struct, out.elem.Kind() == reflect.Map:
	case out.elem.Kind() == reflect.Pointer && out.elem.Elem().Kind() == reflect.Struct:
	default:
		return nil, fmt.Errorf("need slice of structs/maps, got %s", out.elem)
	}
	return out, nil
}

// next returns a fresh output for one row.
func (o *sliceOutput) next() reflect.Value {
	switch o.elem.Kind() {
	case reflect.Map:
		return reflect.MakeMap(o.elem)
	case reflect.Pointer:
		return reflect.New(o.elem.Elem())
	}
	return reflect.New(o.elem)
}

func (o *sliceOutput) add(v reflect.Value) {
	if o.elem.Kind() == reflect.Struct {
		v = v.Elem()
	}
	o.slice = reflect.Append(o.slice, v)
}

// GetAll runs the query and appends every row to the slices pointed to by
// sliceArgs, one slice per table as with [Query.Get]. A leading *[Outcome]
// is reset. GetAll returns [ErrNoRows] when a query returns no row.
func (q *Query) GetAll(sliceArgs ...any) error {
	if q.err != nil {
		return q.err
	}
	outcome, sliceArgs := splitOutcome(sliceArgs)
	if outcome != nil {
		outcome.result = nil
	}
	if len(sliceArgs) > 0 && !q.stmt.query {
		return fmt.Errorf("cannot get results: output variables provided but statement returns no rows")
	}
	outs := make([]*sliceOutput, len(sliceArgs))
	for i, arg := range sliceArgs {
		out, err := newSliceOutput(arg)
		if err != nil {
			return err
		}
		outs[i] = out
	}

	iter := q.Iter()
	found := false
	for iter.Next() {
		found = true
		row := make([]reflect.Value, len(outs))
		args := make([]any, len(outs))
		for i, out := range outs {
			row[i] = out.next()
			args[i] = row[i].Interface()
		}
		if err := iter.Get(args...); err != nil {
			iter.Close()
			return err
		}
		for i, out := range outs {
			out.add(row[i])
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if !found && q.stmt.query {
		return ErrNoRows
	}
	for _, out := range outs {
		out.ptr.Elem().Set(out.slice)
	}
	return nil
}

// TX is a transaction. It ends with [TX.Commit] or [TX.Rollback], after
// which its queries fail with [ErrTXDone].
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  atomic.Bool
}

// TXOptions are the options of [DB.Begin]. A zero Isolation uses the
// default level of the driver.
type TXOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var txopts *sql.TxOptions
	if opts != nil {
		txopts = &sql.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly}
	}
	sqltx, err := db.sqldb.BeginTx(ctx, txopts)
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// end runs f unless the transaction has already ended.
func (tx *TX) end(f func() error) error {
	if !tx.done.CompareAndSwap(false, true) {
		return ErrTXDone
	}
	return f()
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	return tx.end(tx.sqltx.Commit)
}

// Rollback rolls the transaction back.
func (tx *TX) Rollback() error {
	return tx.end(tx.sqltx.Rollback)
}

// Query binds s to the transaction. A statement already prepared on the
// database is reused through the transaction instead of being prepared
// again.
func (tx *TX) Query(ctx context.Context, s *Statement) *Query {
	if tx.done.Load() {
		if ctx == nil {
			ctx = context.Background()
		}
		return &Query{ctx: ctx, err: ErrTXDone}
	}
	return prime(ctx, tx.db.logger, s, tx.db.mssql, func(ctx context.Context, text string) (runner, error) {
		if sqlstmt, ok := tx.db.cache.lookup(text); ok {
			// database/sql closes the transaction statement when tx ends.
			return preparedRunner{stmt: tx.sqltx.StmtContext(ctx, sqlstmt)}, nil
		}
		return tx.sqltx, nil
	})
}
