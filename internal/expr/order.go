// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// OrderBy renders the members selected by l as ORDER BY items. The body may
// be a single member access or an anonymous projection of several.
func OrderBy(l *Lambda, aliases []string, desc bool) (string, error) {
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	refs, err := columnRefs(l, aliases)
	if err != nil {
		return "", err
	}
	for i := range refs {
		refs[i] += dir
	}
	return joinComma(refs), nil
}

// GroupBy renders the members selected by l as a GROUP BY column list.
func GroupBy(l *Lambda, aliases []string) (string, error) {
	refs, err := columnRefs(l, aliases)
	if err != nil {
		return "", err
	}
	return joinComma(refs), nil
}

func columnRefs(l *Lambda, aliases []string) ([]string, error) {
	am := BuildAliasMap(l.Params, aliases)
	var members []Node
	switch body := unwrap(l.Body).(type) {
	case *Init:
		for _, b := range body.Bindings {
			members = append(members, b.Value)
		}
	default:
		members = append(members, body)
	}

	refs := make([]string, 0, len(members))
	for _, n := range members {
		ref, _, _, err := columnRef(n, am)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
