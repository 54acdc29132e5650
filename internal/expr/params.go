// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"strconv"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// DefaultStringLength is the length given to string parameters whose column
// declares no length.
const DefaultStringLength = 4000

// DbString is a string parameter value annotated with the SQL Server string
// type of its column.
type DbString struct {
	Value         string
	IsAnsi        bool
	IsFixedLength bool
	Length        int
}

func (s DbString) String() string {
	return fmt.Sprintf("DbString[%q ansi=%t fixed=%t length=%d]", s.Value, s.IsAnsi, s.IsFixedLength, s.Length)
}

// Params is an ordered table of named parameter values. A table may be
// shared by several translations so that their parameter names do not clash.
// It is not safe for concurrent use.
type Params struct {
	// MaxStringLength is the length given to string values of columns that
	// declare none.
	MaxStringLength int

	names  []string
	values map[string]any
}

// NewParams returns an empty parameter table.
func NewParams() *Params {
	return &Params{
		MaxStringLength: DefaultStringLength,
		values:          map[string]any{},
	}
}

// Bind adds value to the table under the first unused name of the form
// member_0, member_1, ... and returns that name. Non-null values of columns
// that declare a SQL string type are stored as a DbString.
func (p *Params) Bind(member string, value any, field typeinfo.Field) string {
	name := p.nextName(member)
	if s, ok := value.(string); ok && field.IsString() {
		value = DbString{
			Value:         s,
			IsAnsi:        field.IsAnsi(),
			IsFixedLength: field.IsFixedLength(),
			Length:        field.StringLength(p.maxStringLength()),
		}
	}
	p.add(name, value)
	return name
}

// Set adds value under name as is. It fails if name is already bound.
func (p *Params) Set(name string, value any) error {
	if _, ok := p.values[name]; ok {
		return fmt.Errorf("parameter %q already bound", name)
	}
	p.add(name, value)
	return nil
}

func (p *Params) add(name string, value any) {
	if p.values == nil {
		p.values = map[string]any{}
	}
	p.names = append(p.names, name)
	p.values[name] = value
}

func (p *Params) nextName(member string) string {
	for i := 0; ; i++ {
		name := member + "_" + strconv.Itoa(i)
		if _, ok := p.values[name]; !ok {
			return name
		}
	}
}

func (p *Params) maxStringLength() int {
	if p.MaxStringLength == 0 {
		return DefaultStringLength
	}
	return p.MaxStringLength
}

// Len returns the number of bound parameters.
func (p *Params) Len() int {
	return len(p.names)
}

// Names returns the parameter names in binding order.
func (p *Params) Names() []string {
	return append([]string(nil), p.names...)
}

// Value returns the value bound to name.
func (p *Params) Value(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Each calls f for every parameter in binding order.
func (p *Params) Each(f func(name string, value any)) {
	for _, name := range p.names {
		f(name, p.values[name])
	}
}

func (p *Params) String() string {
	s := "Params["
	for i, name := range p.names {
		if i != 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", name, p.values[name])
	}
	return s + "]"
}
