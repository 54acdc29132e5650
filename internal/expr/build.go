// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// NewParam returns a table parameter over the given entity.
func NewParam(name string, info *typeinfo.Info) *Param {
	return &Param{Name: name, Info: info}
}

// Field returns an access to the named member of the parameter.
func (p *Param) Field(name string) *Member {
	return &Member{Operand: p, Name: name}
}

// Field returns an access to the named member of m.
func (m *Member) Field(name string) *Member {
	return &Member{Operand: m, Name: name}
}

// NewLambda returns a lambda over params.
func NewLambda(body Node, params ...*Param) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// Const returns a constant node.
func Const(v any) *Constant {
	return &Constant{Value: v}
}

func Eq(l, r Node) *Binary { return &Binary{Op: OpEqual, Left: l, Right: r} }
func Ne(l, r Node) *Binary { return &Binary{Op: OpNotEqual, Left: l, Right: r} }
func Lt(l, r Node) *Binary { return &Binary{Op: OpLess, Left: l, Right: r} }
func Le(l, r Node) *Binary { return &Binary{Op: OpLessEqual, Left: l, Right: r} }
func Gt(l, r Node) *Binary { return &Binary{Op: OpGreater, Left: l, Right: r} }
func Ge(l, r Node) *Binary { return &Binary{Op: OpGreaterEqual, Left: l, Right: r} }

// And combines conditions left to right.
func And(first Node, rest ...Node) Node {
	return fold(OpAnd, first, rest)
}

// Or combines conditions left to right.
func Or(first Node, rest ...Node) Node {
	return fold(OpOr, first, rest)
}

func fold(op Op, first Node, rest []Node) Node {
	n := first
	for _, r := range rest {
		n = &Binary{Op: op, Left: n, Right: r}
	}
	return n
}

// NotOf negates a condition.
func NotOf(n Node) *Negation {
	return &Negation{Operand: n}
}

// CallOf returns a method call on receiver.
func CallOf(receiver Node, method string, args ...Node) *Call {
	return &Call{Receiver: receiver, Method: method, Args: args}
}

// ConvertTo returns a conversion of n to t.
func ConvertTo(n Node, t reflect.Type) *Convert {
	return &Convert{Operand: n, Type: t}
}

// New returns a member-init of the given entity.
func New(entity *typeinfo.Info, bindings ...Binding) *Init {
	return &Init{TypeName: entity.Name, Entity: entity, Bindings: bindings}
}

// Anon returns an anonymous projection.
func Anon(bindings ...Binding) *Init {
	return &Init{Bindings: bindings}
}

// Assign binds member to value.
func Assign(member string, value Node) Binding {
	return Binding{Member: member, Value: value, Kind: AssignBinding}
}

// Select binds a member access to its own name in an anonymous projection.
func Select(m *Member) Binding {
	return Binding{Member: m.Name, Value: m, Kind: MemberBinding}
}
