// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"database/sql"

	"github.com/canonical/sqlexpr/internal/expr"
)

var (
	// ErrShape is returned for expressions that do not have the shape a
	// statement needs, such as a comparison whose left side is not a
	// member access.
	ErrShape = expr.ErrShape
	// ErrMapping is returned when a member excluded from mapping, or unknown
	// to its entity, is used where a column is required.
	ErrMapping = expr.ErrMapping
	// ErrCoverage is returned when a projection over joined tables selects
	// nothing from one of them.
	ErrCoverage = expr.ErrCoverage
	// ErrConfiguration is returned for missing or ambiguous connection,
	// key or table-valued parameter declarations.
	ErrConfiguration = expr.ErrConfiguration

	ErrNoRows = sql.ErrNoRows
	ErrTXDone = sql.ErrTxDone
)
