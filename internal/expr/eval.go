// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"reflect"

	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// Eval reduces a node to a Go value. Only constants, member chains rooted at
// a constant and conversions of those can be reduced. Member chains resolve
// struct fields, map keys and methods that take no arguments.
func Eval(n Node) (any, error) {
	v, err := eval(n)
	if err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func eval(n Node) (reflect.Value, error) {
	switch n := n.(type) {
	case *Constant:
		return reflect.ValueOf(n.Value), nil
	case *Member:
		operand, err := eval(n.Operand)
		if err != nil {
			return reflect.Value{}, err
		}
		return member(operand, n.Name)
	case *Convert:
		v, err := eval(n.Operand)
		if err != nil {
			return reflect.Value{}, err
		}
		v = indirect(v)
		if !v.IsValid() {
			return v, nil
		}
		if n.Type == decimalType {
			return toDecimal(v)
		}
		if !v.Type().ConvertibleTo(n.Type) {
			return reflect.Value{}, shapeError("cannot convert %s to %s", v.Type(), n.Type)
		}
		return v.Convert(n.Type), nil
	}
	return reflect.Value{}, shapeError("expression %s is not reducible to a value", n)
}

// member resolves a field, map key or method named name on v.
func member(v reflect.Value, name string) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("cannot get member %q of null", name)
	}
	if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return m.Call(nil)[0], nil
	}
	v = indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("cannot get member %q of null", name)
	}
	switch v.Kind() {
	case reflect.Struct:
		if sf, ok := v.Type().FieldByName(name); ok && sf.IsExported() {
			return v.FieldByIndex(sf.Index), nil
		}
		if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
			return m.Call(nil)[0], nil
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			key := reflect.ValueOf(name).Convert(v.Type().Key())
			if mv := v.MapIndex(key); mv.IsValid() {
				return mv, nil
			}
			return reflect.Value{}, fmt.Errorf("map has no key %q", name)
		}
	}
	return reflect.Value{}, fmt.Errorf("type %s has no member %q", v.Type(), name)
}

// indirect follows pointers and interfaces, returning the invalid value for
// nil.
func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// normalize turns nil pointers, nil interfaces and NULL valuers into nil, and
// dereferences other pointers.
func normalize(v reflect.Value) any {
	v = indirect(v)
	if !v.IsValid() {
		return nil
	}
	i := v.Interface()
	if valuer, ok := i.(driver.Valuer); ok {
		if dv, err := valuer.Value(); err == nil && dv == nil {
			return nil
		}
	}
	return i
}

// isReducible reports whether n references no table parameter.
func isReducible(n Node) bool {
	switch n := n.(type) {
	case *Constant:
		return true
	case *Member:
		return isReducible(n.Operand)
	case *Convert:
		return isReducible(n.Operand)
	}
	return false
}

// toDecimal converts numbers and numeric strings to a decimal.
func toDecimal(v reflect.Value) (reflect.Value, error) {
	var d decimal.Decimal
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		d = decimal.NewFromInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(v.Uint()), 0)
	case reflect.Float32, reflect.Float64:
		d = decimal.NewFromFloat(v.Float())
	case reflect.String:
		var err error
		if d, err = decimal.NewFromString(v.String()); err != nil {
			return reflect.Value{}, shapeError("cannot convert %q to decimal", v.String())
		}
	default:
		if v.Type() != decimalType {
			return reflect.Value{}, shapeError("cannot convert %s to decimal", v.Type())
		}
		return v, nil
	}
	return reflect.ValueOf(d), nil
}
