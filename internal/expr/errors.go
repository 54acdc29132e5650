// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrShape is returned when an expression does not have the shape the
	// translator expects.
	ErrShape = errors.New("unsupported expression")
	// ErrMapping is returned when a member that is excluded from mapping,
	// or unknown to its entity, is used where a column is required.
	ErrMapping = errors.New("member cannot be mapped")
	// ErrCoverage is returned when a multi-table projection omits a joined
	// table.
	ErrCoverage = errors.New("selected columns must cover all joined tables")
	// ErrConfiguration is returned for missing or ambiguous entity
	// configuration.
	ErrConfiguration = errors.New("invalid configuration")
)

func shapeError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrShape}, args...)...)
}

func mappingError(m *Member, entity string, reason string) error {
	return fmt.Errorf("%w: cannot map member %q of %s: %s", ErrMapping, m.Name, entity, reason)
}
