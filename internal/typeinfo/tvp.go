// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
)

// TVPRows copies rows, a slice of the entity struct or of pointers to it, into
// a slice of row structs holding only the mapped members in declaration
// order. The result is the value of a table-valued parameter whose table type
// declares the mapped columns in the same order.
func (i *Info) TVPRows(rows any) (any, error) {
	if i.Type == nil {
		return nil, fmt.Errorf("cannot build table-valued rows for %s: entity has no struct type", i.Name)
	}
	rowType, err := i.tvpRowType()
	if err != nil {
		return nil, err
	}

	v := reflect.ValueOf(rows)
	if v.Kind() != reflect.Slice {
		return nil, fmt.Errorf("cannot build table-valued rows for %s: need slice, got %T", i.Name, rows)
	}
	elem := v.Type().Elem()
	ptr := elem.Kind() == reflect.Pointer
	if ptr {
		elem = elem.Elem()
	}
	if elem != i.Type {
		return nil, fmt.Errorf("cannot build table-valued rows for %s: need slice of %s, got %T", i.Name, i.Name, rows)
	}

	fields := i.MappedFields()
	out := reflect.MakeSlice(reflect.SliceOf(rowType), v.Len(), v.Len())
	for n := 0; n < v.Len(); n++ {
		src := v.Index(n)
		if ptr {
			if src.IsNil() {
				return nil, fmt.Errorf("cannot build table-valued rows for %s: nil row at index %d", i.Name, n)
			}
			src = src.Elem()
		}
		dst := out.Index(n)
		for j, f := range fields {
			dst.Field(j).Set(src.Field(f.Index))
		}
	}
	return out.Interface(), nil
}

// tvpRowType builds, once, the struct type used for table-valued rows.
func (i *Info) tvpRowType() (reflect.Type, error) {
	i.tvpOnce.Do(func() {
		fields := i.MappedFields()
		if len(fields) == 0 {
			i.tvpErr = fmt.Errorf("cannot build table-valued rows for %s: no mapped fields", i.Name)
			return
		}
		sfs := make([]reflect.StructField, 0, len(fields))
		for _, f := range fields {
			sfs = append(sfs, reflect.StructField{Name: f.Name, Type: f.Type})
		}
		i.tvpType = reflect.StructOf(sfs)
	})
	return i.tvpType, i.tvpErr
}
