// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/canonical/sqlexpr/internal/expr"
	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// DbString is the value of a string parameter bound to a column declaring a
// SQL Server string type.
type DbString = expr.DbString

// Statement is a complete SQL statement and the parameter values it
// references. Statements are built by a [Table] and run on a [DB] or [TX].
//
// Numeric values are written into the statement text as {=name}
// placeholders, which are replaced by literals when the statement is
// rendered. Other values are bound as @name parameters.
type Statement struct {
	sql     string
	params  *expr.Params
	splitOn []string
	query   bool
}

var _ sq.Sqlizer = (*Statement)(nil)

// SQL returns the statement text with its placeholders.
func (s *Statement) SQL() string {
	return s.sql
}

// Param returns the value bound to the named parameter.
func (s *Statement) Param(name string) (any, bool) {
	return s.params.Value(name)
}

// ParamNames returns the names of the bound parameters in binding order.
func (s *Statement) ParamNames() []string {
	return s.params.Names()
}

// SplitOn returns the columns where the rows of each joined table start.
func (s *Statement) SplitOn() []string {
	return append([]string(nil), s.splitOn...)
}

// ReturnsRows reports whether the statement is a query.
func (s *Statement) ReturnsRows() bool {
	return s.query
}

func (s *Statement) String() string {
	return s.sql
}

// ToSql renders the statement for SQL Server.
func (s *Statement) ToSql() (string, []any, error) {
	return s.render(true)
}

// Render renders the statement for a driver other than SQL Server. String
// and identifier values are passed in their plain form.
func (s *Statement) Render() (string, []any, error) {
	return s.render(false)
}

// render substitutes the {=name} placeholders and collects the @name
// parameters referenced by the text, in order of first appearance, as
// named arguments.
func (s *Statement) render(forMSSQL bool) (string, []any, error) {
	var b strings.Builder
	var args []any
	seen := map[string]bool{}
	text := s.sql
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == '\'':
			// String literals are copied through.
			j := i + 1
			for j < len(text) {
				if text[j] == '\'' {
					if j+1 < len(text) && text[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			if j >= len(text) {
				return "", nil, fmt.Errorf("cannot render statement: unterminated string literal")
			}
			b.WriteString(text[i : j+1])
			i = j + 1
		case c == '@' && i+1 < len(text) && text[i+1] == '@':
			j := i + 2
			for j < len(text) && isParamChar(text[j]) {
				j++
			}
			b.WriteString(text[i:j])
			i = j
		case c == '@':
			j := i + 1
			for j < len(text) && isParamChar(text[j]) {
				j++
			}
			name := text[i+1 : j]
			b.WriteString(text[i:j])
			i = j
			value, ok := s.params.Value(name)
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			args = append(args, sql.Named(name, driverValue(value, forMSSQL)))
		case c == '{' && strings.HasPrefix(text[i:], "{="):
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return "", nil, fmt.Errorf("cannot render statement: unterminated placeholder")
			}
			name := text[i+2 : i+end]
			value, ok := s.params.Value(name)
			if !ok {
				return "", nil, fmt.Errorf("cannot render statement: parameter %q is not bound", name)
			}
			lit, err := literal(value)
			if err != nil {
				return "", nil, fmt.Errorf("cannot render statement: parameter %q: %w", name, err)
			}
			b.WriteString(lit)
			i += end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), args, nil
}

func isParamChar(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// literal formats a numeric value as a SQL literal.
func literal(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case decimal.Decimal:
		return v.String(), nil
	}
	return "", fmt.Errorf("cannot write %T value as a numeric literal", v)
}

// driverValue converts a bound value for the driver. SQL Server gets string
// values typed after their column and unique identifiers in its byte order.
func driverValue(v any, forMSSQL bool) any {
	switch v := v.(type) {
	case expr.DbString:
		if !forMSSQL {
			return v.Value
		}
		switch {
		case v.IsAnsi && (v.Length == typeinfo.MaxLength || v.Length > 8000):
			return mssql.VarCharMax(v.Value)
		case v.IsAnsi:
			return mssql.VarChar(v.Value)
		case v.Length == typeinfo.MaxLength || v.Length > 4000:
			return mssql.NVarCharMax(v.Value)
		}
		return v.Value
	case uuid.UUID:
		if forMSSQL {
			return mssql.UniqueIdentifier(v)
		}
		return v.String()
	}
	return v
}
