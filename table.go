// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"fmt"

	"github.com/canonical/sqlexpr/internal/assemble"
	"github.com/canonical/sqlexpr/internal/expr"
)

// Table builds the statements of one entity.
type Table struct {
	entity *Entity
	opts   assemble.Options
}

// TableOption configures a [Table].
type TableOption func(*assemble.Options)

// WithNoLock sets whether SELECT statements read tables WITH (NOLOCK). It is
// on by default.
func WithNoLock(noLock bool) TableOption {
	return func(o *assemble.Options) {
		o.NoLock = noLock
	}
}

// WithMaxStringLength sets the length given to string parameters of columns
// that declare none.
func WithMaxStringLength(n int) TableOption {
	return func(o *assemble.Options) {
		o.MaxStringLength = n
	}
}

// NewTable returns the statement builder of entity.
func NewTable(entity *Entity, opts ...TableOption) *Table {
	t := &Table{entity: entity, opts: assemble.DefaultOptions()}
	for _, opt := range opts {
		opt(&t.opts)
	}
	return t
}

// TableOf returns the statement builder of the struct type T.
func TableOf[T any](opts ...TableOption) (*Table, error) {
	e, err := EntityOf[T]()
	if err != nil {
		return nil, err
	}
	return NewTable(e, opts...), nil
}

// Entity returns the entity of the table.
func (t *Table) Entity() *Entity {
	return t.entity
}

// Join joins a table to a [Select].
type Join struct {
	Entity *Entity
	// Alias qualifies the columns of the joined table.
	Alias string
	// On is a lambda over the table joined to and the joined table.
	On   *Expr
	Left bool
	// From is the position of the table joined to. The root table is 0 and
	// joined tables follow in order.
	From int
}

// Order is an ORDER BY item.
type Order struct {
	By   *Expr
	Desc bool
}

// Asc orders by the members selected by by, ascending.
func Asc(by *Expr) Order {
	return Order{By: by}
}

// Desc orders by the members selected by by, descending.
func Desc(by *Expr) Order {
	return Order{By: by, Desc: true}
}

// Select describes a query. Lambdas range over the root table followed by
// the joined tables.
type Select struct {
	// Top limits the number of rows when positive.
	Top int
	// Alias qualifies the columns of the root table.
	Alias string
	// Columns is a projection such as x => new { x.Id, Name = x.FirstName }.
	// All mapped columns are selected when Columns and Aggregates are nil.
	Columns *Expr
	// Aggregates is a projection over a group such as
	// g => new { Total = g.Count(), Oldest = g.Max(x => x.Age) }.
	Aggregates *Expr
	Joins      []Join
	Where      *Expr
	GroupBy    *Expr
	OrderBy    []Order
}

func (t *Table) query(q Select) (assemble.Select, error) {
	aq := assemble.Select{
		Top:        q.Top,
		Alias:      q.Alias,
		Columns:    q.Columns.get(),
		Aggregates: q.Aggregates.get(),
		Where:      q.Where.get(),
		GroupBy:    q.GroupBy.get(),
	}
	for _, j := range q.Joins {
		if j.Entity == nil {
			return assemble.Select{}, fmt.Errorf("%w: join without an entity", ErrConfiguration)
		}
		aq.Joins = append(aq.Joins, assemble.Join{
			Entity: j.Entity.info,
			Alias:  j.Alias,
			On:     j.On.get(),
			Left:   j.Left,
			From:   j.From,
		})
	}
	for _, o := range q.OrderBy {
		if o.By == nil {
			return assemble.Select{}, fmt.Errorf("%w: order without an expression", ErrShape)
		}
		aq.OrderBy = append(aq.OrderBy, assemble.Order{By: o.By.get(), Desc: o.Desc})
	}
	return aq, nil
}

func statement(s *assemble.Statement, err error) (*Statement, error) {
	if err != nil {
		return nil, err
	}
	return &Statement{sql: s.SQL, params: s.Params, splitOn: s.SplitOn, query: s.Query}, nil
}

// Select builds a SELECT statement.
func (t *Table) Select(q Select) (*Statement, error) {
	aq, err := t.query(q)
	if err != nil {
		return nil, err
	}
	return statement(assemble.BuildSelect(t.entity.info, aq, t.opts))
}

// Count builds a SELECT COUNT(*) statement over the rows q selects.
func (t *Table) Count(q Select) (*Statement, error) {
	aq, err := t.query(q)
	if err != nil {
		return nil, err
	}
	return statement(assemble.BuildCount(t.entity.info, aq, t.opts))
}

// Insert builds an INSERT statement from a member-init such as
// x => new Member { FirstName = $name, Age = 30 }.
func (t *Table) Insert(set *Expr) (*Statement, error) {
	if set == nil {
		return nil, fmt.Errorf("cannot assemble insert: %w: no values", ErrShape)
	}
	return statement(assemble.BuildInsert(t.entity.info, set.get(), t.opts))
}

// InsertEntity builds an INSERT statement storing every mapped member of v.
// Zero members tagged omitempty are left to their column default.
func (t *Table) InsertEntity(v any) (*Statement, error) {
	return statement(assemble.BuildInsertEntity(t.entity.info, v, t.opts))
}

// Update builds an UPDATE statement of the rows matching where.
func (t *Table) Update(set, where *Expr) (*Statement, error) {
	if set == nil {
		return nil, fmt.Errorf("cannot assemble update: %w: no values", ErrShape)
	}
	return statement(assemble.BuildUpdate(t.entity.info, set.get(), where.get(), t.opts))
}

// Upsert builds an UPDATE of the rows matching where, followed by an INSERT
// of the assigned columns when no row matched.
func (t *Table) Upsert(set, where *Expr) (*Statement, error) {
	if set == nil {
		return nil, fmt.Errorf("cannot assemble upsert: %w: no values", ErrShape)
	}
	return statement(assemble.BuildUpsert(t.entity.info, set.get(), where.get(), t.opts))
}

// Delete builds a DELETE statement of the rows matching where.
func (t *Table) Delete(where *Expr) (*Statement, error) {
	return statement(assemble.BuildDelete(t.entity.info, where.get(), t.opts))
}

// BulkInsert builds an INSERT of rows, a slice of the entity struct, passed
// as a single table-valued parameter.
func (t *Table) BulkInsert(rows any) (*Statement, error) {
	return statement(assemble.BuildBulkInsert(t.entity.info, rows, t.opts))
}

// BulkUpdate builds an UPDATE of the rows whose keys match an element of
// rows.
func (t *Table) BulkUpdate(rows any) (*Statement, error) {
	return statement(assemble.BuildBulkUpdate(t.entity.info, rows, t.opts))
}

// BulkUpsert builds a bulk update followed by an INSERT of the elements of
// rows that matched no row.
func (t *Table) BulkUpsert(rows any) (*Statement, error) {
	return statement(assemble.BuildBulkUpsert(t.entity.info, rows, t.opts))
}

// BulkDelete builds a DELETE of the rows whose keys match an element of
// rows.
func (t *Table) BulkDelete(rows any) (*Statement, error) {
	return statement(assemble.BuildBulkDelete(t.entity.info, rows, t.opts))
}

// Params is an ordered table of named parameter values. Sharing one between
// several calls to [Table.Condition] keeps their parameter names distinct.
type Params = expr.Params

// NewParams returns an empty parameter table.
func NewParams() *Params {
	return expr.NewParams()
}

// Condition renders where as a search condition over the table, with its
// columns qualified by alias when one is given. Values are bound into params.
func (t *Table) Condition(where *Expr, alias string, params *Params) (string, error) {
	if where == nil {
		return "", fmt.Errorf("cannot translate condition: %w: no expression", ErrShape)
	}
	l, err := where.get().Bind(t.entity.info)
	if err != nil {
		return "", fmt.Errorf("cannot translate condition: %w", err)
	}
	cond, err := expr.Translate(l, []string{alias}, params)
	if err != nil {
		return "", fmt.Errorf("cannot translate condition: %w", err)
	}
	return cond, nil
}
