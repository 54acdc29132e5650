// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// Assignment pairs a bracket quoted column with the placeholder of the value
// assigned to it.
type Assignment struct {
	Column      string
	Placeholder string
}

// SetList binds the values of a member-init lambda and returns its
// assignments, for an UPDATE SET clause.
func SetList(l *Lambda, params *Params) ([]Assignment, error) {
	return assignments(l, params)
}

// ColumnList binds the values of a member-init lambda and returns its
// assignments, for an INSERT column and value list.
func ColumnList(l *Lambda, params *Params) ([]Assignment, error) {
	return assignments(l, params)
}

func assignments(l *Lambda, params *Params) ([]Assignment, error) {
	init, ok := unwrap(l.Body).(*Init)
	if !ok || init.Anonymous() {
		return nil, shapeError("expected member-init expression, got %s", l.Body)
	}
	if init.Entity == nil {
		return nil, shapeError("entity %q of %s is not bound", init.TypeName, init)
	}
	if len(init.Bindings) == 0 {
		return nil, shapeError("member-init %s assigns no members", init)
	}

	var list []Assignment
	for _, b := range init.Bindings {
		if b.Kind != AssignBinding {
			return nil, shapeError("binding %s of %s is not an assignment", b, init)
		}
		m := &Member{Operand: &Param{Name: init.Entity.Name, Info: init.Entity}, Name: b.Member}
		f, err := ResolveColumn(m, m.Operand.(*Param))
		if err != nil {
			return nil, err
		}
		if !isReducible(b.Value) {
			return nil, shapeError("value of %s is not reducible to a constant, field or property chain", b.Member)
		}
		value, err := Eval(b.Value)
		if err != nil {
			return nil, err
		}
		name := params.Bind(b.Member, value, f)
		ph := placeholder(name, f)
		if value == nil {
			ph = "NULL"
		}
		list = append(list, Assignment{Column: "[" + f.Column + "]", Placeholder: ph})
	}
	return list, nil
}

// RenderSet renders assignments as "[c] = p, ...".
func RenderSet(list []Assignment) string {
	var b sqlBuilder
	for i, a := range list {
		if i != 0 {
			b.write(", ")
		}
		b.write(a.Column, " = ", a.Placeholder)
	}
	return b.getSQL()
}

// RenderColumns renders assignments as a column list and the matching value
// list, without parentheses.
func RenderColumns(list []Assignment) (columns string, values string) {
	cols := make([]string, len(list))
	vals := make([]string, len(list))
	for i, a := range list {
		cols[i] = a.Column
		vals[i] = a.Placeholder
	}
	return joinComma(cols), joinComma(vals)
}
