// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// MaxLength is the declared length of an nvarchar(max) or varchar(max)
// column.
const MaxLength = -1

// Field is the column descriptor of a single entity member.
type Field struct {
	// Type is the Go type of the member.
	Type reflect.Type

	// Name is the member name. For struct backed entities this is the Go
	// field name.
	Name string

	// Index of the field in the struct, or -1 for entities declared in a
	// schema file.
	Index int

	// Column is the resolved SQL column name.
	Column string

	// SQLType is the lower case SQL type name declared for the member, if
	// any.
	SQLType string

	// Length is the declared length of the SQL type. Zero when no length
	// was declared, MaxLength for "max".
	Length int

	// MaxLength is the string length constraint of the member.
	MaxLength int

	// Key is true for members that identify a row.
	Key bool

	// Excluded is true for members that must not be mapped to a column.
	Excluded bool

	// OmitEmpty is true when zero values are skipped on insert.
	OmitEmpty bool
}

// IsNumeric reports whether values of the field are rendered inline rather
// than as bound parameters.
func (f Field) IsNumeric() bool {
	t := f.Type
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == decimalType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// IsString reports whether the field declares a SQL string type.
func (f Field) IsString() bool {
	switch f.SQLType {
	case "varchar", "char", "nvarchar", "nchar":
		return true
	}
	return false
}

// IsAnsi reports whether the declared string type is an ANSI type.
func (f Field) IsAnsi() bool {
	return f.SQLType == "varchar" || f.SQLType == "char"
}

// IsFixedLength reports whether the declared string type has a fixed length.
func (f Field) IsFixedLength() bool {
	return f.SQLType == "char" || f.SQLType == "nchar"
}

// StringLength returns the length used when binding a string value of this
// field. The declared type length wins over the length constraint, and def
// is used when neither is set.
func (f Field) StringLength(def int) int {
	switch {
	case f.Length != 0:
		return f.Length
	case f.MaxLength > 0:
		return f.MaxLength
	}
	return def
}

// Info is the metadata of an entity: its table, connections and the column
// descriptors of its members.
type Info struct {
	// Type is the struct type of the entity. It is nil for entities loaded
	// from a schema file.
	Type reflect.Type

	// Name is the entity name.
	Name string

	// Table is the bare table name, defaulting to the entity name.
	Table string

	// Schema is the optional database schema of the table.
	Schema string

	// Connections lists the named connections the entity may be used with.
	Connections []string

	// TVPType is the user defined table type used by bulk operations.
	TVPType string

	// Fields holds every member in declaration order.
	Fields []Field

	byName   map[string]int
	byColumn map[string]int

	tvpOnce sync.Once
	tvpType reflect.Type
	tvpErr  error
}

// index builds the member and column lookups. It must be called once all
// fields have been added.
func (i *Info) index() {
	i.byName = make(map[string]int, len(i.Fields))
	i.byColumn = make(map[string]int, len(i.Fields))
	for n, f := range i.Fields {
		i.byName[f.Name] = n
		if !f.Excluded {
			i.byColumn[strings.ToLower(f.Column)] = n
		}
	}
}

// Field returns the descriptor of the named member.
func (i *Info) Field(name string) (Field, bool) {
	n, ok := i.byName[name]
	if !ok {
		return Field{}, false
	}
	return i.Fields[n], true
}

// FieldByColumn returns the descriptor of the member mapped to column. The
// lookup is case insensitive, as column names are in SQL Server.
func (i *Info) FieldByColumn(column string) (Field, bool) {
	n, ok := i.byColumn[strings.ToLower(column)]
	if !ok {
		return Field{}, false
	}
	return i.Fields[n], true
}

// MappedFields returns the fields that are not excluded from mapping.
func (i *Info) MappedFields() []Field {
	var fields []Field
	for _, f := range i.Fields {
		if !f.Excluded {
			fields = append(fields, f)
		}
	}
	return fields
}

// KeyFields returns the mapped fields marked as keys.
func (i *Info) KeyFields() []Field {
	var fields []Field
	for _, f := range i.Fields {
		if f.Key && !f.Excluded {
			fields = append(fields, f)
		}
	}
	return fields
}

// QualifiedTable returns the bracket quoted, optionally schema qualified,
// table name.
func (i *Info) QualifiedTable() string {
	if i.Schema == "" {
		return "[" + i.Table + "]"
	}
	return "[" + i.Schema + "].[" + i.Table + "]"
}

func (i *Info) String() string {
	return i.Name
}
