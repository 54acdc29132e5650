// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package assemble

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/canonical/sqlexpr/internal/expr"
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// BuildInsert assembles an INSERT statement from a member-init lambda.
func BuildInsert(info *typeinfo.Info, set *expr.Lambda, opts Options) (stmt *Statement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot assemble insert: %w", err)
		}
	}()

	bound, err := set.Bind(info)
	if err != nil {
		return nil, err
	}
	params := opts.params()
	list, err := expr.ColumnList(bound, params)
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: insertSQL(info, list), Params: params}, nil
}

func insertSQL(info *typeinfo.Info, list []expr.Assignment) string {
	cols, vals := expr.RenderColumns(list)
	return "INSERT INTO " + info.QualifiedTable() + "(" + cols + ") VALUES (" + vals + ");"
}

// EntityInit returns a lambda assigning every mapped member of v, a value
// of the entity struct or, for entities without one, a map keyed by member
// name. Zero members marked omitempty are left out.
func EntityInit(info *typeinfo.Info, v any) (*expr.Lambda, error) {
	var get func(f typeinfo.Field) (any, bool)
	switch rv := reflect.ValueOf(v); {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		get = func(f typeinfo.Field) (any, bool) {
			mv := rv.MapIndex(reflect.ValueOf(f.Name).Convert(rv.Type().Key()))
			if !mv.IsValid() {
				return nil, false
			}
			return mv.Interface(), true
		}
	default:
		for rv.Kind() == reflect.Pointer && !rv.IsNil() {
			rv = rv.Elem()
		}
		if !rv.IsValid() || info.Type == nil || rv.Type() != info.Type {
			return nil, fmt.Errorf("%w: need %s value, got %T", expr.ErrShape, info.Name, v)
		}
		get = func(f typeinfo.Field) (any, bool) {
			fv := rv.Field(f.Index)
			if f.OmitEmpty && fv.IsZero() {
				return nil, false
			}
			return fv.Interface(), true
		}
	}

	var bindings []expr.Binding
	for _, f := range info.MappedFields() {
		if value, ok := get(f); ok {
			bindings = append(bindings, expr.Assign(f.Name, expr.Const(value)))
		}
	}
	return expr.NewLambda(expr.New(info, bindings...), expr.NewParam("x", info)), nil
}

// BuildInsertEntity assembles an INSERT statement storing v.
func BuildInsertEntity(info *typeinfo.Info, v any, opts Options) (*Statement, error) {
	set, err := EntityInit(info, v)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble insert: %w", err)
	}
	return BuildInsert(info, set, opts)
}

// update renders "UPDATE ... WHERE ...;" and returns the assignments of its
// SET clause.
func update(info *typeinfo.Info, set, where *expr.Lambda, params *expr.Params) (string, []expr.Assignment, error) {
	if where == nil {
		return "", nil, fmt.Errorf("%w: update of %s has no condition", expr.ErrShape, info.Name)
	}
	bound, err := set.Bind(info)
	if err != nil {
		return "", nil, err
	}
	list, err := expr.SetList(bound, params)
	if err != nil {
		return "", nil, err
	}
	bound, err = where.Bind(info)
	if err != nil {
		return "", nil, err
	}
	cond, err := expr.Translate(bound, nil, params)
	if err != nil {
		return "", nil, err
	}
	return "UPDATE " + info.QualifiedTable() + " SET " + expr.RenderSet(list) + " WHERE " + cond + ";", list, nil
}

// BuildUpdate assembles an UPDATE statement of the rows matching where.
func BuildUpdate(info *typeinfo.Info, set, where *expr.Lambda, opts Options) (stmt *Statement, err error) {
	params := opts.params()
	sql, _, err := update(info, set, where, params)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble update: %w", err)
	}
	return &Statement{SQL: sql, Params: params}, nil
}

// BuildUpsert assembles an UPDATE of the rows matching where followed by an
// INSERT of the same columns when no row was updated.
func BuildUpsert(info *typeinfo.Info, set, where *expr.Lambda, opts Options) (stmt *Statement, err error) {
	params := opts.params()
	sql, list, err := update(info, set, where, params)
	if err != nil {
		return nil, fmt.Errorf("cannot assemble upsert: %w", err)
	}
	sql += " IF @@rowcount = 0 BEGIN " + insertSQL(info, list) + " END"
	return &Statement{SQL: sql, Params: params}, nil
}

// BuildDelete assembles a DELETE statement of the rows matching where.
func BuildDelete(info *typeinfo.Info, where *expr.Lambda, opts Options) (stmt *Statement, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot assemble delete: %w", err)
		}
	}()

	if where == nil {
		return nil, fmt.Errorf("%w: delete from %s has no condition", expr.ErrShape, info.Name)
	}
	bound, err := where.Bind(info)
	if err != nil {
		return nil, err
	}
	params := opts.params()
	cond, err := expr.Translate(bound, nil, params)
	if err != nil {
		return nil, err
	}
	return &Statement{SQL: "DELETE FROM " + info.QualifiedTable() + " WHERE " + cond + ";", Params: params}, nil
}

var assignmentRegexp = regexp.MustCompile(`(\[[^\]]+\]) = (@\w+|\{=\w+\}|NULL)`)

// ScanAssignments extracts the column and placeholder pairs of the SET
// clause of an UPDATE statement.
func ScanAssignments(sql string) []expr.Assignment {
	start := strings.Index(sql, " SET ")
	if start < 0 {
		return nil
	}
	set := sql[start+len(" SET "):]
	if end := strings.Index(set, " WHERE "); end >= 0 {
		set = set[:end]
	}
	var list []expr.Assignment
	for _, m := range assignmentRegexp.FindAllStringSubmatch(set, -1) {
		list = append(list, expr.Assignment{Column: m[1], Placeholder: m[2]})
	}
	return list
}
