// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// ScanProxy is a shim for scanning query results into values that cannot
// hold NULL directly.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
	key      reflect.Value
}

// OnSuccess copies the scanned value into its destination, zeroing it if
// NULL was scanned.
func (sp ScanProxy) OnSuccess() {
	if sp.key.IsValid() {
		sp.original.SetMapIndex(sp.key, sp.scan)
		return
	}
	var val reflect.Value
	if !sp.scan.IsNil() {
		val = sp.scan.Elem()
	} else {
		val = reflect.Zero(sp.original.Type())
	}
	sp.original.Set(val)
}

// SplitColumns partitions result columns between outputs. The first group
// starts at the first column and every following group starts at the next
// column named in splitOn, compared case insensitively.
func SplitColumns(columns []string, splitOn []string) ([][]string, error) {
	groups := [][]string{}
	start := 0
	for _, split := range splitOn {
		found := -1
		for i := start + 1; i < len(columns); i++ {
			if strings.EqualFold(columns[i], split) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("split-on column %q not found in results", split)
		}
		groups = append(groups, columns[start:found])
		start = found
	}
	return append(groups, columns[start:]), nil
}

// ScanArgs returns the pointers to pass to rows.Scan for the given result
// columns and output arguments, along with a function to run once the scan
// succeeds. Outputs are pointers to structs or maps with string keys. With
// more than one output, columns are split between them at the splitOn
// columns.
func (c *Cache) ScanArgs(columns []string, splitOn []string, outputs []any) ([]any, func(), error) {
	if len(outputs) == 0 {
		return nil, nil, fmt.Errorf("no output arguments provided")
	}
	groups := [][]string{columns}
	if len(outputs) > 1 {
		if len(splitOn) != len(outputs)-1 {
			return nil, nil, fmt.Errorf("have %d outputs but results split into %d groups", len(outputs), len(splitOn)+1)
		}
		var err error
		groups, err = SplitColumns(columns, splitOn)
		if err != nil {
			return nil, nil, err
		}
	}

	var ptrs []any
	var proxies []ScanProxy
	for n, out := range outputs {
		v := reflect.ValueOf(out)
		switch {
		case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
			if v.IsNil() {
				return nil, nil, fmt.Errorf("need map or pointer to struct, got nil map")
			}
			for _, col := range groups[n] {
				scanVal := reflect.New(v.Type().Elem()).Elem()
				ptrs = append(ptrs, scanVal.Addr().Interface())
				proxies = append(proxies, ScanProxy{original: v, scan: scanVal, key: reflect.ValueOf(col).Convert(v.Type().Key())})
			}
		case v.Kind() == reflect.Pointer && !v.IsNil() && v.Elem().Kind() == reflect.Struct:
			s := v.Elem()
			info, err := c.TypeInfo(s.Type())
			if err != nil {
				return nil, nil, err
			}
			for _, col := range groups[n] {
				f, ok := info.Field(col)
				if !ok || f.Excluded {
					f, ok = info.FieldByColumn(col)
				}
				if !ok || f.Excluded {
					return nil, nil, fmt.Errorf("cannot scan column %q: no member of %s matches it", col, info.Name)
				}
				ptr, proxy, err := scanTarget(s.Field(f.Index))
				if err != nil {
					return nil, nil, err
				}
				ptrs = append(ptrs, ptr)
				if proxy != nil {
					proxies = append(proxies, *proxy)
				}
			}
		default:
			return nil, nil, fmt.Errorf("need map or pointer to struct, got %T", out)
		}
	}

	onSuccess := func() {
		for _, sp := range proxies {
			sp.OnSuccess()
		}
	}
	return ptrs, onSuccess, nil
}

// scanTarget returns a pointer for rows.Scan into val. rows.Scan fails when
// scanning NULL into a type that cannot be nil, so types that are not
// pointers and do not implement sql.Scanner are scanned through a proxy.
func scanTarget(val reflect.Value) (any, *ScanProxy, error) {
	if !val.CanSet() {
		return nil, nil, fmt.Errorf("internal error: cannot set field of type %s", val.Type())
	}
	pt := reflect.PointerTo(val.Type())
	if val.Type().Kind() != reflect.Pointer && !pt.Implements(scannerInterface) {
		scanVal := reflect.New(pt).Elem()
		return scanVal.Addr().Interface(), &ScanProxy{original: val, scan: scanVal}, nil
	}
	return val.Addr().Interface(), nil, nil
}
