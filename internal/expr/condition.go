// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"reflect"
)

// Translate renders the body of a boolean lambda as a search condition.
// Values are bound into params, which may already hold bindings from earlier
// translations. Logical operations are always fully parenthesized.
//
// A nil params is allowed for conditions without collection Contains calls;
// their bindings are then discarded.
func Translate(l *Lambda, aliases []string, params *Params) (string, error) {
	ct := &conditionTranslator{
		aliases: BuildAliasMap(l.Params, aliases),
		params:  params,
	}
	if params == nil {
		ct.params = NewParams()
		ct.scratch = true
	}
	if err := ct.condition(l.Body); err != nil {
		return "", err
	}
	return ct.b.getSQL(), nil
}

type conditionTranslator struct {
	b       sqlBuilder
	aliases AliasMap
	params  *Params
	// scratch is set when the caller supplied no parameter table.
	scratch bool
}

func (ct *conditionTranslator) condition(n Node) error {
	switch n := n.(type) {
	case *Binary:
		if n.Op.IsLogical() {
			ct.b.write("(")
			if err := ct.condition(n.Left); err != nil {
				return err
			}
			ct.b.write(") ", n.Op.SQL(), " (")
			if err := ct.condition(n.Right); err != nil {
				return err
			}
			ct.b.write(")")
			return nil
		}
		return ct.comparison(n.Op, n.Left, n.Right)
	case *Negation:
		ct.b.write("NOT (")
		if err := ct.condition(n.Operand); err != nil {
			return err
		}
		ct.b.write(")")
		return nil
	case *Call:
		return ct.call(n)
	case *Member, *Convert:
		// A boolean member on its own tests for true.
		if m, p, ok := columnMember(n); ok {
			f, err := ResolveColumn(m, p)
			if err != nil {
				return err
			}
			if isBool(f.Type) {
				return ct.comparison(OpEqual, n, Const(true))
			}
		}
	}
	return shapeError("expression %s is not a condition", n)
}

// comparison renders "<column> <op> <placeholder>". The left operand must
// be a member access, possibly converted or the receiver of a CompareTo
// call whose argument then replaces the right operand.
func (ct *conditionTranslator) comparison(op Op, left, right Node) error {
	if call, ok := unwrap(left).(*Call); ok && call.Method == "CompareTo" {
		if len(call.Args) != 1 {
			return shapeError("CompareTo takes one argument, got %d", len(call.Args))
		}
		left, right = call.Receiver, call.Args[0]
	}

	m, _, ok := columnMember(left)
	if !ok {
		return shapeError("left expression must be a member access, got %s", left)
	}
	ref, field, _, err := columnRef(m, ct.aliases)
	if err != nil {
		return err
	}
	value, err := ct.value(right)
	if err != nil {
		return err
	}

	name := ct.params.Bind(m.Name, value, field)
	if value == nil {
		switch op {
		case OpEqual:
			ct.b.write(ref, " IS NULL")
		case OpNotEqual:
			ct.b.write(ref, " IS NOT NULL")
		default:
			return shapeError("cannot compare %s with null using %s", m, op)
		}
		return nil
	}
	ct.b.write(ref, " ", op.SQL(), " ", placeholder(name, field))
	return nil
}

func isBool(t reflect.Type) bool {
	if t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Bool
}

func (ct *conditionTranslator) value(n Node) (any, error) {
	if !isReducible(n) {
		return nil, shapeError("right expression must be reducible to a value, got %s", n)
	}
	return Eval(n)
}

func (ct *conditionTranslator) call(c *Call) error {
	switch c.Method {
	case "Equals":
		if len(c.Args) != 1 {
			return shapeError("Equals takes one argument, got %d", len(c.Args))
		}
		return ct.comparison(OpEqual, c.Receiver, c.Args[0])
	case "Contains":
		if len(c.Args) != 1 {
			return shapeError("Contains takes one argument, got %d", len(c.Args))
		}
		if _, _, ok := columnMember(c.Receiver); ok {
			return ct.like(c, "'%' + ", " + '%'")
		}
		return ct.in(c.Receiver, c.Args[0])
	case "StartsWith":
		return ct.like(c, "", " + '%'")
	case "EndsWith":
		return ct.like(c, "'%' + ", "")
	}
	return shapeError("unsupported method %s in condition", c.Method)
}

// like renders a string member matched against a pattern built around the
// bound argument.
func (ct *conditionTranslator) like(c *Call, prefix, suffix string) error {
	if len(c.Args) != 1 {
		return shapeError("%s takes one argument, got %d", c.Method, len(c.Args))
	}
	m, _, ok := columnMember(c.Receiver)
	if !ok {
		return shapeError("%s must be called on a member access, got %s", c.Method, c.Receiver)
	}
	ref, field, _, err := columnRef(m, ct.aliases)
	if err != nil {
		return err
	}
	value, err := ct.value(c.Args[0])
	if err != nil {
		return err
	}
	if value == nil {
		return shapeError("cannot match %s against null", m)
	}
	name := ct.params.Bind(m.Name, value, field)
	ct.b.write(ref, " LIKE ", prefix, placeholder(name, field), suffix)
	return nil
}

// in renders a collection Contains as an OR chain of equality checks, one
// bound parameter per element.
func (ct *conditionTranslator) in(collection Node, arg Node) error {
	if ct.scratch {
		return shapeError("collection Contains requires a parameter table")
	}
	m, _, ok := columnMember(arg)
	if !ok {
		return shapeError("Contains argument must be a member access, got %s", arg)
	}
	ref, field, _, err := columnRef(m, ct.aliases)
	if err != nil {
		return err
	}
	if !isReducible(collection) {
		return shapeError("Contains must be called on a collection value, got %s", collection)
	}
	v, err := eval(collection)
	if err != nil {
		return err
	}
	v = indirect(v)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return shapeError("Contains must be called on a collection value, got %s", collection)
	}
	if v.Len() == 0 {
		// Nothing is contained in an empty collection.
		ct.b.write("1 = 0")
		return nil
	}

	var terms []string
	for i := 0; i < v.Len(); i++ {
		value := normalize(v.Index(i))
		name := ct.params.Bind(m.Name, value, field)
		if value == nil {
			terms = append(terms, ref+" IS NULL")
			continue
		}
		terms = append(terms, ref+" = "+placeholder(name, field))
	}
	ct.b.writeSeparatedList(terms, " OR ", func(_ int, s string) string { return s })
	return nil
}
