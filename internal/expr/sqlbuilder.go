// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"bytes"
)

// sqlBuilder is used to generate a SQL fragment piece by piece.
type sqlBuilder struct {
	buf bytes.Buffer
}

// write writes the SQL to the sqlBuilder.
func (b *sqlBuilder) write(sql ...string) {
	for _, s := range sql {
		b.buf.WriteString(s)
	}
}

// writeSeparatedList writes out the provided list, using the writer to
// render each element, with sep between elements.
func (b *sqlBuilder) writeSeparatedList(list []string, sep string, writer func(i int, s string) string) {
	for i, s := range list {
		if i != 0 {
			b.buf.WriteString(sep)
		}
		b.buf.WriteString(writer(i, s))
	}
}

// writeCommaSeparatedList writes out the provided list as is, separated by
// commas.
func (b *sqlBuilder) writeCommaSeparatedList(list []string) {
	b.writeSeparatedList(list, ", ", func(_ int, s string) string {
		return s
	})
}

// getSQL returns the generated SQL string.
func (b *sqlBuilder) getSQL() string {
	return b.buf.String()
}
