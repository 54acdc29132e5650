// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// Aggregates renders an aggregate projection over a group. The body of l is
// a member-init whose bindings call Count, Select, Max, Min, Sum or Avg on
// the group parameter. Aggregate arguments are lambdas over the joined
// tables; the position of the table parameter they use picks its alias from
// aliases.
func Aggregates(l *Lambda, aliases []string) (string, error) {
	init, ok := unwrap(l.Body).(*Init)
	if !ok {
		return "", shapeError("expected member-init expression, got %s", l.Body)
	}

	var items []string
	for _, b := range init.Bindings {
		if b.Kind != AssignBinding {
			return "", shapeError("binding %s of %s is not an assignment", b, init)
		}
		call, ok := unwrap(b.Value).(*Call)
		if !ok {
			return "", shapeError("value of %s is not an aggregate call", b.Member)
		}
		item, err := aggregate(call, aliases)
		if err != nil {
			return "", err
		}
		items = append(items, item+" AS ["+b.Member+"]")
	}
	if len(items) == 0 {
		return "", shapeError("aggregate projection %s selects nothing", init)
	}
	return joinComma(items), nil
}

func aggregate(c *Call, aliases []string) (string, error) {
	if c.Method == "Count" {
		if len(c.Args) != 0 {
			return "", shapeError("Count takes no argument, got %d", len(c.Args))
		}
		return "COUNT(*)", nil
	}
	if len(c.Args) != 1 {
		return "", shapeError("%s takes one argument, got %d", c.Method, len(c.Args))
	}
	ref, err := aggregateColumn(c.Args[0], aliases)
	if err != nil {
		return "", err
	}
	switch c.Method {
	case "Select":
		return ref, nil
	case "Max":
		return "MAX(" + ref + ")", nil
	case "Min":
		return "MIN(" + ref + ")", nil
	case "Sum":
		return "SUM(" + ref + ")", nil
	case "Avg":
		return "AVG(CAST(" + ref + " AS DECIMAL))", nil
	}
	return "", shapeError("unsupported aggregate %s", c.Method)
}

// aggregateColumn resolves the column of an aggregate argument, a lambda
// over the joined tables. The alias is chosen by the position of the table
// parameter the lambda uses.
func aggregateColumn(arg Node, aliases []string) (string, error) {
	l, ok := arg.(*Lambda)
	if !ok {
		return "", shapeError("aggregate argument %s is not a lambda", arg)
	}
	m, p, ok := columnMember(l.Body)
	if !ok {
		return "", shapeError("aggregate argument %s is not a member access", arg)
	}
	for _, param := range l.Params {
		if param == p {
			ref, _, _, err := columnRef(m, BuildAliasMap(l.Params, aliases))
			return ref, err
		}
	}
	return "", shapeError("aggregate argument %s uses an unknown parameter", arg)
}
