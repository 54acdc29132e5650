// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"context"
	"database/sql"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStatementCacheSize is the number of prepared statements kept per
// database unless configured otherwise.
const DefaultStatementCacheSize = 128

// statementCache keeps the driver prepared statements of a database, keyed
// by rendered SQL. The least recently used statements are closed once the
// cache is full. It is safe for concurrent use.
type statementCache struct {
	stmts *lru.Cache[string, *sql.Stmt]
}

func newStatementCache(size int) *statementCache {
	if size <= 0 {
		size = DefaultStatementCacheSize
	}
	stmts, err := lru.NewWithEvict[string, *sql.Stmt](size, func(_ string, stmt *sql.Stmt) {
		stmt.Close()
	})
	if err != nil {
		panic(fmt.Sprintf("internal error: cannot create statement cache: %s", err))
	}
	return &statementCache{stmts: stmts}
}

// prepareSubstrate is an object that queries can be prepared on, e.g. a sql.DB
// or sql.Conn. It is used in prepare.
type prepareSubstrate interface {
	PrepareContext(context.Context, string) (*sql.Stmt, error)
}

// prepare returns the prepared statement of query, preparing it on ps if it
// is not cached. ps must belong to the database the cache belongs to.
func (sc *statementCache) prepare(ctx context.Context, ps prepareSubstrate, query string) (*sql.Stmt, error) {
	if stmt, ok := sc.stmts.Get(query); ok {
		return stmt, nil
	}
	stmt, err := ps.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	// Check if a statement has been inserted by someone else since we last
	// checked.
	if found, _ := sc.stmts.ContainsOrAdd(query, stmt); found {
		if other, ok := sc.stmts.Get(query); ok {
			stmt.Close()
			return other, nil
		}
		sc.stmts.Add(query, stmt)
	}
	return stmt, nil
}

// lookup returns the prepared statement of query if it is cached.
func (sc *statementCache) lookup(query string) (*sql.Stmt, bool) {
	return sc.stmts.Get(query)
}

func (sc *statementCache) len() int {
	return sc.stmts.Len()
}

// purge closes and forgets every cached statement.
func (sc *statementCache) purge() {
	sc.stmts.Purge()
}
