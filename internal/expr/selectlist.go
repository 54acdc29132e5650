// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
)

// Projection is a rendered SELECT column list.
type Projection struct {
	// Columns is the comma separated column list.
	Columns string
	// SplitOn holds, for every table after the first, the result column
	// where that table's columns start. It is empty for single table
	// projections.
	SplitOn []string
}

// SelectList renders a projection lambda as a SELECT column list. The body
// may be a member-init or anonymous projection, a single member access, or
// a parameter standing for all mapped columns of its table. Excluded members
// are skipped. Every table of a multi-table lambda must contribute a column.
func SelectList(l *Lambda, aliases []string) (*Projection, error) {
	sb := &selectBuilder{
		aliases: BuildAliasMap(l.Params, aliases),
		params:  l.Params,
		first:   make([]string, len(l.Params)),
	}
	if err := sb.projection(l.Body); err != nil {
		return nil, err
	}
	if len(sb.columns) == 0 {
		return nil, shapeError("projection %s selects no columns", l.Body)
	}

	p := &Projection{Columns: joinComma(sb.columns)}
	if len(l.Params) > 1 {
		for i, name := range sb.first {
			if name == "" {
				return nil, fmt.Errorf("%w: no column of %q is selected", ErrCoverage, l.Params[i].Name)
			}
		}
		p.SplitOn = sb.first[1:]
	}
	return p, nil
}

// AllColumns renders every mapped column of the given tables, in order,
// along with the split-on columns of the tables after the first.
func AllColumns(params []*Param, aliases []string) (*Projection, error) {
	sb := &selectBuilder{
		aliases: BuildAliasMap(params, aliases),
		params:  params,
		first:   make([]string, len(params)),
	}
	for _, p := range params {
		if err := sb.projection(p); err != nil {
			return nil, err
		}
	}
	p := &Projection{Columns: joinComma(sb.columns)}
	if len(params) > 1 {
		for i, name := range sb.first {
			if name == "" {
				return nil, fmt.Errorf("%w: %q has no mapped columns", ErrCoverage, params[i].Name)
			}
		}
		p.SplitOn = sb.first[1:]
	}
	return p, nil
}

type selectBuilder struct {
	aliases AliasMap
	params  []*Param
	columns []string
	// first holds the output name of the first column selected from each
	// table.
	first []string
}

func (sb *selectBuilder) projection(n Node) error {
	switch n := unwrap(n).(type) {
	case *Init:
		for _, b := range n.Bindings {
			if b.Kind != AssignBinding && b.Kind != MemberBinding {
				return shapeError("unsupported binding %s in projection", b)
			}
			if err := sb.column(b.Value, b.Member); err != nil {
				return err
			}
		}
		return nil
	case *Member:
		return sb.column(n, n.Name)
	case *Param:
		if n.Info == nil {
			return shapeError("parameter %q is not bound to an entity", n.Name)
		}
		for _, f := range n.Info.MappedFields() {
			if err := sb.column(n.Field(f.Name), f.Name); err != nil {
				return err
			}
		}
		return nil
	}
	return shapeError("expression %s is not a projection", n)
}

// column adds "<alias>.[<column>]" to the list, aliased AS [name] when the
// column name differs from name.
func (sb *selectBuilder) column(value Node, name string) error {
	m, p, ok := columnMember(value)
	if !ok {
		return shapeError("projected expression %s is not a member access", value)
	}
	if p.Info != nil {
		if f, ok := p.Info.Field(m.Name); ok && f.Excluded {
			return nil
		}
	}
	ref, f, _, err := columnRef(m, sb.aliases)
	if err != nil {
		return err
	}
	output := f.Column
	if f.Column != name {
		ref += " AS [" + name + "]"
		output = name
	}
	sb.columns = append(sb.columns, ref)
	for i, param := range sb.params {
		if param == p && sb.first[i] == "" {
			sb.first[i] = output
		}
	}
	return nil
}

func joinComma(list []string) string {
	var b sqlBuilder
	b.writeCommaSeparatedList(list)
	return b.getSQL()
}
