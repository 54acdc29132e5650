// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// A Node is an element of an expression tree. Trees are read only once built.
type Node interface {
	// String returns a representation of the node for debugging and testing
	// purposes.
	String() string

	// node is a marker method.
	node()
}

// Param is a lambda parameter. Each parameter stands for one table.
type Param struct {
	Name string
	// Info is the metadata of the entity the parameter ranges over. It is
	// nil until the lambda is bound, and for grouping parameters.
	Info *typeinfo.Info
}

func (p *Param) String() string {
	return p.Name
}

func (p *Param) node() {}

// Lambda is a function literal over one or more table parameters.
type Lambda struct {
	Params []*Param
	Body   Node
}

func (l *Lambda) String() string {
	if len(l.Params) == 1 {
		return l.Params[0].Name + " => " + l.Body.String()
	}
	names := make([]string, len(l.Params))
	for i, p := range l.Params {
		names[i] = p.Name
	}
	return "(" + strings.Join(names, ", ") + ") => " + l.Body.String()
}

func (l *Lambda) node() {}

// Member is a field or property access on its operand.
type Member struct {
	Operand Node
	Name    string
}

func (m *Member) String() string {
	return m.Operand.String() + "." + m.Name
}

func (m *Member) node() {}

// Op is a binary operator.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAnd
	OpOr
)

var opStrings = [...]string{"==", "!=", "<", "<=", ">", ">=", "&&", "||"}
var opSQL = [...]string{"=", "<>", "<", "<=", ">", ">=", "AND", "OR"}

func (op Op) String() string {
	return opStrings[op]
}

// SQL returns the SQL spelling of the operator.
func (op Op) SQL() string {
	return opSQL[op]
}

// IsLogical reports whether op is AND or OR.
func (op Op) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// Binary is a comparison or logical operation.
type Binary struct {
	Op          Op
	Left, Right Node
}

func (b *Binary) String() string {
	return "(" + b.Left.String() + " " + b.Op.String() + " " + b.Right.String() + ")"
}

func (b *Binary) node() {}

// Negation negates a condition.
type Negation struct {
	Operand Node
}

func (n *Negation) String() string {
	return "!" + n.Operand.String()
}

func (n *Negation) node() {}

// Convert is a type conversion. Translators see through it.
type Convert struct {
	Operand Node
	Type    reflect.Type
}

func (c *Convert) String() string {
	return c.Type.String() + "(" + c.Operand.String() + ")"
}

func (c *Convert) node() {}

// Call is a method call. Receiver is nil for calls with no receiver.
type Call struct {
	Receiver Node
	Method   string
	Args     []Node
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	call := c.Method + "(" + strings.Join(args, ", ") + ")"
	if c.Receiver == nil {
		return call
	}
	return c.Receiver.String() + "." + call
}

func (c *Call) node() {}

// Constant is a literal or captured value.
type Constant struct {
	Value any
}

func (c *Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", c.Value)
}

func (c *Constant) node() {}

// BindingKind distinguishes the member bindings of an Init.
type BindingKind int

const (
	// AssignBinding binds a member to a value: Name = value.
	AssignBinding BindingKind = iota
	// MemberBinding binds a member to itself in an anonymous projection.
	MemberBinding
	// ListBinding initializes a collection member with elements:
	// Tags = { "a", "b" }.
	ListBinding
)

// Binding is a member binding of an Init.
type Binding struct {
	Member string
	Value  Node
	Kind   BindingKind
}

func (b Binding) String() string {
	if b.Kind == MemberBinding {
		return b.Value.String()
	}
	return b.Member + " = " + b.Value.String()
}

// Collection is a collection initializer: { a, b }.
type Collection struct {
	Elements []Node
}

func (c *Collection) String() string {
	elems := make([]string, len(c.Elements))
	for i, e := range c.Elements {
		elems[i] = e.String()
	}
	if len(elems) == 0 {
		return "{ }"
	}
	return "{ " + strings.Join(elems, ", ") + " }"
}

func (c *Collection) node() {}

// Init is a member-init (new Entity { ... }) or, when TypeName is empty, an
// anonymous projection (new { ... }).
type Init struct {
	// TypeName is the entity name written in the expression.
	TypeName string
	// Entity is the metadata of the constructed entity, set when the lambda
	// is bound.
	Entity   *typeinfo.Info
	Bindings []Binding
}

// Anonymous reports whether the Init constructs an anonymous value.
func (i *Init) Anonymous() bool {
	return i.TypeName == "" && i.Entity == nil
}

func (i *Init) String() string {
	bindings := make([]string, len(i.Bindings))
	for n, b := range i.Bindings {
		bindings[n] = b.String()
	}
	name := i.TypeName
	if name == "" && i.Entity != nil {
		name = i.Entity.Name
	}
	if name != "" {
		name += " "
	}
	return "new " + name + "{ " + strings.Join(bindings, ", ") + " }"
}

func (i *Init) node() {}
