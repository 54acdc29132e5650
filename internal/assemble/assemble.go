// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package assemble builds complete SQL Server statements out of the
// fragments rendered by package expr.
package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/canonical/sqlexpr/internal/expr"
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// Statement is a complete SQL statement along with the parameters it
// references.
type Statement struct {
	SQL    string
	Params *expr.Params
	// SplitOn holds the columns where the rows of each joined table start,
	// for statements that select from several tables.
	SplitOn []string
	// Query is true for statements that return rows.
	Query bool
}

// Options control the statements generated.
type Options struct {
	// NoLock adds WITH (NOLOCK) hints to the tables read by SELECT
	// statements.
	NoLock bool
	// MaxStringLength is the length of string parameters of columns that
	// declare none. Zero means expr.DefaultStringLength.
	MaxStringLength int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{NoLock: true, MaxStringLength: expr.DefaultStringLength}
}

func (o Options) params() *expr.Params {
	p := expr.NewParams()
	if o.MaxStringLength != 0 {
		p.MaxStringLength = o.MaxStringLength
	}
	return p
}

// Join joins a table to the query.
type Join struct {
	Entity *typeinfo.Info
	Alias  string
	// On is a lambda over the table joined to and the joined table.
	On   *expr.Lambda
	Left bool
	// From is the position of the table joined to, the root table being 0.
	From int
}

// Order is an ORDER BY item.
type Order struct {
	By   *expr.Lambda
	Desc bool
}

// Select describes a SELECT statement. Lambdas range over the root table
// followed by the joined tables, in order.
type Select struct {
	// Top limits the number of rows returned when positive.
	Top   int
	Alias string
	// Columns is the projection. All mapped columns are selected when both
	// Columns and Aggregates are nil.
	Columns *expr.Lambda
	// Aggregates is an aggregate projection over a group.
	Aggregates *expr.Lambda
	Joins      []Join
	Where      *expr.Lambda
	GroupBy    *expr.Lambda
	OrderBy    []Order
}

// query holds the tables of a SELECT statement.
type query struct {
	infos   []*typeinfo.Info
	aliases []string
}

func newQuery(info *typeinfo.Info, q *Select) (*query, error) {
	qt := &query{
		infos:   []*typeinfo.Info{info},
		aliases: []string{q.Alias},
	}
	for _, j := range q.Joins {
		if j.Entity == nil {
			return nil, fmt.Errorf("%w: join without an entity", expr.ErrConfiguration)
		}
		qt.infos = append(qt.infos, j.Entity)
		qt.aliases = append(qt.aliases, j.Alias)
	}
	return qt, nil
}

func (qt *query) bind(l *expr.Lambda) (*expr.Lambda, error) {
	return l.Bind(qt.infos...)
}

// from renders the FROM clause and joins.
func (qt *query) from(b *strings.Builder, joins []Join, opts Options) error {
	b.WriteString(" FROM ")
	writeTable(b, qt.infos[0], qt.aliases[0], opts.NoLock)
	for i, j := range joins {
		if j.From < 0 || j.From > i {
			return fmt.Errorf("%w: join of %s refers to table %d, which is not joined before it", expr.ErrShape, j.Entity.Name, j.From)
		}
		if j.On == nil {
			return fmt.Errorf("%w: join of %s has no condition", expr.ErrShape, j.Entity.Name)
		}
		on, err := j.On.Bind(qt.infos[j.From], j.Entity)
		if err != nil {
			return err
		}
		cond, err := expr.JoinCondition(on, []string{qt.aliases[j.From], j.Alias})
		if err != nil {
			return err
		}
		kind := expr.InnerJoin
		if j.Left {
			kind = expr.LeftJoin
		}
		b.WriteString(" ")
		b.WriteString(expr.Join(kind, j.Entity.QualifiedTable(), j.Alias, cond, opts.NoLock))
	}
	return nil
}

// where renders the WHERE clause of a bound condition, if any.
func (qt *query) where(b *strings.Builder, l *expr.Lambda, params *expr.Params) error {
	if l == nil {
		return nil
	}
	bound, err := qt.bind(l)
	if err != nil {
		return err
	}
	cond, err := expr.Translate(bound, qt.aliases, params)
	if err != nil {
		return err
	}
	b.WriteString(" WHERE ")
	b.WriteString(cond)
	return nil
}

func writeTable(b *strings.Builder, info *typeinfo.Info, alias string, noLock bool) {
	b.WriteString(info.QualifiedTable())
	if alias != "" {
		b.WriteString(" ")
		b.WriteString(alias)
	}
	if noLock {
		b.WriteString(" WITH (NOLOCK)")
	}
}

// BuildSelect assembles a SELECT statement over info.
func BuildSelect(info *typeinfo.Info, q Select, opts Options) (stmt *Statement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot assemble select: %w", err)
		}
	}()

	qt, err := newQuery(info, &q)
	if err != nil {
		return nil, err
	}
	params := opts.params()
	projection, err := qt.projection(&q)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if q.Top > 0 {
		b.WriteString("TOP (" + strconv.Itoa(q.Top) + ") ")
	}
	b.WriteString(projection.Columns)
	if err := qt.from(&b, q.Joins, opts); err != nil {
		return nil, err
	}
	if err := qt.where(&b, q.Where, params); err != nil {
		return nil, err
	}
	if q.GroupBy != nil {
		bound, err := qt.bind(q.GroupBy)
		if err != nil {
			return nil, err
		}
		group, err := expr.GroupBy(bound, qt.aliases)
		if err != nil {
			return nil, err
		}
		b.WriteString(" GROUP BY " + group)
	}
	if len(q.OrderBy) > 0 {
		items := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			bound, err := qt.bind(o.By)
			if err != nil {
				return nil, err
			}
			item, err := expr.OrderBy(bound, qt.aliases, o.Desc)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		b.WriteString(" ORDER BY " + strings.Join(items, ", "))
	}
	b.WriteString(";")

	return &Statement{
		SQL:     b.String(),
		Params:  params,
		SplitOn: projection.SplitOn,
		Query:   true,
	}, nil
}

func (qt *query) projection(q *Select) (*expr.Projection, error) {
	switch {
	case q.Columns != nil && q.Aggregates != nil:
		return nil, fmt.Errorf("%w: cannot select both columns and aggregates", expr.ErrShape)
	case q.Aggregates != nil:
		bound, err := q.Aggregates.BindGroup(qt.infos...)
		if err != nil {
			return nil, err
		}
		cols, err := expr.Aggregates(bound, qt.aliases)
		if err != nil {
			return nil, err
		}
		return &expr.Projection{Columns: cols}, nil
	case q.Columns != nil:
		bound, err := qt.bind(q.Columns)
		if err != nil {
			return nil, err
		}
		return expr.SelectList(bound, qt.aliases)
	}
	params := make([]*expr.Param, len(qt.infos))
	for i, info := range qt.infos {
		params[i] = expr.NewParam("t"+strconv.Itoa(i), info)
	}
	return expr.AllColumns(params, qt.aliases)
}

// BuildCount assembles a SELECT COUNT(*) statement. Only the alias, joins
// and condition of q are used.
func BuildCount(info *typeinfo.Info, q Select, opts Options) (stmt *Statement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot assemble count: %w", err)
		}
	}()

	qt, err := newQuery(info, &q)
	if err != nil {
		return nil, err
	}
	params := opts.params()
	var b strings.Builder
	b.WriteString("SELECT COUNT(*)")
	if err := qt.from(&b, q.Joins, opts); err != nil {
		return nil, err
	}
	if err := qt.where(&b, q.Where, params); err != nil {
		return nil, err
	}
	b.WriteString(";")
	return &Statement{SQL: b.String(), Params: params, Query: true}, nil
}
