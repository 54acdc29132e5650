// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package assemble

import (
	"fmt"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"

	"github.com/canonical/sqlexpr/internal/expr"
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// TVPParam is the name of the table-valued parameter of bulk statements.
const TVPParam = "tvp"

// bulk holds what the bulk statements of an entity have in common.
type bulk struct {
	info   *typeinfo.Info
	table  string
	fields []typeinfo.Field
	keys   []typeinfo.Field
	params *expr.Params
}

func newBulk(info *typeinfo.Info, rows any, needKeys bool, opts Options) (*bulk, error) {
	if info.TVPType == "" {
		return nil, fmt.Errorf("%w: %s declares no table-valued parameter type", expr.ErrConfiguration, info.Name)
	}
	b := &bulk{
		info:   info,
		table:  info.QualifiedTable(),
		fields: info.MappedFields(),
		keys:   info.KeyFields(),
		params: opts.params(),
	}
	if needKeys && len(b.keys) == 0 {
		return nil, fmt.Errorf("%w: %s declares no key columns", expr.ErrConfiguration, info.Name)
	}
	value, err := info.TVPRows(rows)
	if err != nil {
		return nil, err
	}
	if err := b.params.Set(TVPParam, mssql.TVP{TypeName: info.TVPType, Value: value}); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *bulk) columns(prefix string, fields []typeinfo.Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = prefix + "[" + f.Column + "]"
	}
	return strings.Join(cols, ", ")
}

// keyMatch renders the condition matching table rows to TVP rows.
func (b *bulk) keyMatch() string {
	terms := make([]string, len(b.keys))
	for i, k := range b.keys {
		terms[i] = "t.[" + k.Column + "] = tvp.[" + k.Column + "]"
	}
	return strings.Join(terms, " AND ")
}

func (b *bulk) values() []typeinfo.Field {
	var fields []typeinfo.Field
	for _, f := range b.fields {
		if !f.Key {
			fields = append(fields, f)
		}
	}
	return fields
}

func (b *bulk) insert() string {
	return "INSERT INTO " + b.table + "(" + b.columns("", b.fields) + ") SELECT " +
		b.columns("tvp.", b.fields) + " FROM @" + TVPParam + " tvp"
}

func (b *bulk) update() (string, error) {
	values := b.values()
	if len(values) == 0 {
		return "", fmt.Errorf("%w: %s has no columns to update besides its keys", expr.ErrConfiguration, b.info.Name)
	}
	set := make([]string, len(values))
	for i, f := range values {
		set[i] = "t.[" + f.Column + "] = tvp.[" + f.Column + "]"
	}
	return "UPDATE t SET " + strings.Join(set, ", ") + " FROM " + b.table +
		" t INNER JOIN @" + TVPParam + " tvp ON " + b.keyMatch() + ";", nil
}

// BuildBulkInsert assembles an INSERT of every row of rows, a slice of the
// entity struct, passed as one table-valued parameter.
func BuildBulkInsert(info *typeinfo.Info, rows any, opts Options) (*Statement, error) {
	b, err := newBulk(info, rows, false, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble bulk insert: %w", err)
	}
	return &Statement{SQL: b.insert() + ";", Params: b.params}, nil
}

// BuildBulkUpdate assembles an UPDATE of the table rows whose keys match a
// row of rows.
func BuildBulkUpdate(info *typeinfo.Info, rows any, opts Options) (*Statement, error) {
	b, err := newBulk(info, rows, true, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble bulk update: %w", err)
	}
	sql, err := b.update()
	if err != nil {
		return nil, fmt.Errorf("cannot assemble bulk update: %w", err)
	}
	return &Statement{SQL: sql, Params: b.params}, nil
}

// BuildBulkUpsert assembles a bulk update followed by an INSERT of the rows
// whose keys match no table row.
func BuildBulkUpsert(info *typeinfo.Info, rows any, opts Options) (*Statement, error) {
	b, err := newBulk(info, rows, true, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble bulk upsert: %w", err)
	}
	sql, err := b.update()
	if err != nil {
		return nil, fmt.Errorf("cannot assemble bulk upsert: %w", err)
	}
	sql += " " + b.insert() + " WHERE NOT EXISTS (SELECT 1 FROM " + b.table + " t WHERE " + b.keyMatch() + ");"
	return &Statement{SQL: sql, Params: b.params}, nil
}

// BuildBulkDelete assembles a DELETE of the table rows whose keys match a
// row of rows.
func BuildBulkDelete(info *typeinfo.Info, rows any, opts Options) (*Statement, error) {
	b, err := newBulk(info, rows, true, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble bulk delete: %w", err)
	}
	sql := "DELETE t FROM " + b.table + " t INNER JOIN @" + TVPParam + " tvp ON " + b.keyMatch() + ";"
	return &Statement{SQL: sql, Params: b.params}, nil
}
