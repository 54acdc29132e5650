// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// unwrap strips conversions from n.
func unwrap(n Node) Node {
	for {
		c, ok := n.(*Convert)
		if !ok {
			return n
		}
		n = c.Operand
	}
}

// columnMember returns n as a member access on a table parameter, seeing
// through conversions. ok is false for any other shape.
func columnMember(n Node) (m *Member, p *Param, ok bool) {
	m, ok = unwrap(n).(*Member)
	if !ok {
		return nil, nil, false
	}
	p, ok = m.Operand.(*Param)
	if !ok {
		return nil, nil, false
	}
	return m, p, true
}

// ResolveColumn returns the column descriptor of a member access on a table
// parameter. Unknown and excluded members are mapping errors.
func ResolveColumn(m *Member, p *Param) (typeinfo.Field, error) {
	if p.Info == nil {
		return typeinfo.Field{}, shapeError("parameter %q is not bound to an entity", p.Name)
	}
	f, ok := p.Info.Field(m.Name)
	if !ok {
		return typeinfo.Field{}, mappingError(m, p.Info.Name, "no such member")
	}
	if f.Excluded {
		return typeinfo.Field{}, mappingError(m, p.Info.Name, "member is excluded from mapping")
	}
	return f, nil
}

// columnRef resolves n to a qualified column reference.
func columnRef(n Node, aliases AliasMap) (string, typeinfo.Field, *Member, error) {
	m, p, ok := columnMember(n)
	if !ok {
		return "", typeinfo.Field{}, nil, shapeError("expression %s is not a member access", n)
	}
	f, err := ResolveColumn(m, p)
	if err != nil {
		return "", typeinfo.Field{}, nil, err
	}
	ref, err := aliases.qualify(p.Name, f.Column)
	if err != nil {
		return "", typeinfo.Field{}, nil, err
	}
	return ref, f, m, nil
}

// placeholder returns the SQL placeholder of a bound parameter. Numeric
// columns are substituted inline, others are bound by the provider.
func placeholder(name string, f typeinfo.Field) string {
	if f.IsNumeric() {
		return "{=" + name + "}"
	}
	return "@" + name
}
