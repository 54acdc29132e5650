// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// JoinKind is the kind of a JOIN clause.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

func (k JoinKind) String() string {
	if k == LeftJoin {
		return "LEFT JOIN"
	}
	return "INNER JOIN"
}

// JoinCondition renders a lambda over two tables as an ON condition. Both
// sides of every comparison must be columns, so nothing is parameterized.
func JoinCondition(l *Lambda, aliases []string) (string, error) {
	if len(l.Params) != 2 {
		return "", shapeError("join condition must take two table parameters, got %d", len(l.Params))
	}
	jt := &joinTranslator{aliases: BuildAliasMap(l.Params, aliases)}
	if err := jt.condition(l.Body); err != nil {
		return "", err
	}
	return jt.b.getSQL(), nil
}

// Join renders a JOIN clause for table, given as its qualified name, with an
// optional alias. The alias is written bare in table position.
func Join(kind JoinKind, table string, alias string, condition string, noLock bool) string {
	var b sqlBuilder
	b.write(kind.String(), " ", table)
	if alias != "" {
		b.write(" ", alias)
	}
	if noLock {
		b.write(" WITH (NOLOCK)")
	}
	b.write(" ON ", condition)
	return b.getSQL()
}

type joinTranslator struct {
	b       sqlBuilder
	aliases AliasMap
}

func (jt *joinTranslator) condition(n Node) error {
	b, ok := n.(*Binary)
	if !ok {
		if c, ok := n.(*Call); ok && c.Method == "Equals" && len(c.Args) == 1 {
			b = Eq(c.Receiver, c.Args[0])
		} else {
			return shapeError("expression %s is not a join condition", n)
		}
	}
	if b.Op.IsLogical() {
		jt.b.write("(")
		if err := jt.condition(b.Left); err != nil {
			return err
		}
		jt.b.write(") ", b.Op.SQL(), " (")
		if err := jt.condition(b.Right); err != nil {
			return err
		}
		jt.b.write(")")
		return nil
	}
	left, _, _, err := columnRef(b.Left, jt.aliases)
	if err != nil {
		return err
	}
	right, _, _, err := columnRef(b.Right, jt.aliases)
	if err != nil {
		return err
	}
	jt.b.write(left, " ", b.Op.SQL(), " ", right)
	return nil
}
