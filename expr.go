// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"github.com/canonical/sqlexpr/internal/expr"
)

// M holds the values of the $name inputs of an expression.
//
//	where := sqlexpr.MustParse("x => x.LastName == $name && x.Age > $age", sqlexpr.M{"name": "Smith", "age": 30})
//
// Inputs may be followed by member accesses, which are resolved against
// struct fields, string keyed map entries and methods taking no arguments.
type M map[string]any

// Expr is a parsed lambda expression. Its parameters are bound to the tables
// of a statement, by position, when the statement is built.
type Expr struct {
	lambda *expr.Lambda
}

// Parse parses a lambda expression such as
//
//	(m, o) => m.Id == o.MemberId && o.Total > $min
//
// Input references are resolved from args. When several maps are given, later
// ones take precedence.
func Parse(src string, args ...M) (*Expr, error) {
	var merged map[string]any
	for _, m := range args {
		if merged == nil {
			merged = make(map[string]any, len(m))
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	l, err := expr.NewParser().Parse(src, merged)
	if err != nil {
		return nil, err
	}
	return &Expr{lambda: l}, nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(src string, args ...M) *Expr {
	e, err := Parse(src, args...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string {
	return e.lambda.String()
}

func (e *Expr) get() *expr.Lambda {
	if e == nil {
		return nil
	}
	return e.lambda
}
