// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// AliasMap maps lambda parameter names to the bracket quoted alias used to
// qualify their columns. An empty alias means no qualifier.
type AliasMap map[string]string

// BuildAliasMap pairs params with aliases by position. Parameters past the
// end of aliases, and empty aliases, get no qualifier.
func BuildAliasMap(params []*Param, aliases []string) AliasMap {
	m := make(AliasMap, len(params))
	for i, p := range params {
		if i >= len(aliases) || aliases[i] == "" {
			m[p.Name] = ""
			continue
		}
		m[p.Name] = "[" + aliases[i] + "]"
	}
	return m
}

// qualify returns the column reference for column of the table bound to
// param.
func (m AliasMap) qualify(param string, column string) (string, error) {
	alias, ok := m[param]
	if !ok {
		return "", shapeError("parameter %q has no alias entry", param)
	}
	if alias == "" {
		return "[" + column + "]", nil
	}
	return alias + ".[" + column + "]", nil
}
