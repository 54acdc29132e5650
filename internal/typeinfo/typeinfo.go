// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Cache holds the entity metadata generated for struct types. Each type is
// reflected once and reused thereafter. A Cache is safe for concurrent use.
type Cache struct {
	mutex sync.RWMutex
	infos map[reflect.Type]*Info
}

// NewCache returns an empty metadata cache.
func NewCache() *Cache {
	return &Cache{infos: make(map[reflect.Type]*Info)}
}

var defaultCache = NewCache()

// Default returns the process wide metadata cache.
func Default() *Cache {
	return defaultCache
}

// GetTypeInfo returns the Info of the type of value from the default cache.
func GetTypeInfo(value any) (*Info, error) {
	return defaultCache.Of(value)
}

// Of returns the Info of the type of value, which must be a struct or a
// pointer to one.
func (c *Cache) Of(value any) (*Info, error) {
	if value == (any)(nil) {
		return nil, fmt.Errorf("cannot reflect nil value")
	}
	return c.TypeInfo(reflect.TypeOf(value))
}

// TypeInfo returns the Info of t, generating and caching it as required.
func (c *Cache) TypeInfo(t reflect.Type) (*Info, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	c.mutex.RLock()
	info, found := c.infos[t]
	c.mutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	// Another caller may have generated the same type in the meantime.
	if existing, ok := c.infos[t]; ok {
		return existing, nil
	}
	c.infos[t] = info
	return info, nil
}

// generate produces the entity metadata of a struct type from its tags.
func generate(t reflect.Type) (*Info, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot reflect %s: need struct, got %s", t, t.Kind())
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("cannot reflect anonymous struct")
	}

	info := &Info{
		Type:  t,
		Name:  t.Name(),
		Table: t.Name(),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Name == "_" {
			if err := parseEntityTags(info, field.Tag); err != nil {
				return nil, fmt.Errorf("cannot reflect %s: %w", t.Name(), err)
			}
			continue
		}
		if !field.IsExported() || field.Anonymous {
			continue
		}
		f, err := parseField(field)
		if err != nil {
			return nil, fmt.Errorf("cannot reflect %s: field %s: %w", t.Name(), field.Name, err)
		}
		f.Index = i
		info.Fields = append(info.Fields, f)
	}

	if err := checkColumns(info); err != nil {
		return nil, err
	}
	info.index()
	return info, nil
}

// parseEntityTags reads the entity level tags carried by a blank field.
func parseEntityTags(info *Info, tag reflect.StructTag) error {
	if table, ok := tag.Lookup("table"); ok {
		if !validColNameRx.MatchString(table) {
			return fmt.Errorf("invalid table name %q", table)
		}
		info.Table = table
	}
	info.Schema = tag.Get("schema")
	info.TVPType = tag.Get("tvp")
	if conn := tag.Get("conn"); conn != "" {
		for _, name := range strings.Split(conn, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				return fmt.Errorf("empty connection name in 'conn' tag")
			}
			info.Connections = append(info.Connections, name)
		}
	}
	return nil
}

// parseField builds the column descriptor of a struct field from its "db",
// "dbtype" and "maxlen" tags.
func parseField(field reflect.StructField) (Field, error) {
	f := Field{
		Type:   field.Type,
		Name:   field.Name,
		Column: field.Name,
	}

	tag := field.Tag.Get("db")
	if tag == "-" {
		f.Excluded = true
		return f, nil
	}
	if tag != "" {
		column, key, omitEmpty, err := parseTag(tag)
		if err != nil {
			return Field{}, err
		}
		if column != "" {
			f.Column = column
		}
		f.Key = key
		f.OmitEmpty = omitEmpty
	}

	if dbtype, ok := field.Tag.Lookup("dbtype"); ok {
		sqlType, length, err := ParseSQLType(dbtype)
		if err != nil {
			return Field{}, err
		}
		f.SQLType = sqlType
		f.Length = length
	}

	if maxlen, ok := field.Tag.Lookup("maxlen"); ok {
		n, err := strconv.Atoi(maxlen)
		if err != nil || n <= 0 {
			return Field{}, fmt.Errorf("invalid 'maxlen' tag %q", maxlen)
		}
		f.MaxLength = n
	}
	return f, nil
}

// This expression should be aligned with the identifiers accepted by the
// expression parser.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses a "db" tag and returns the column name, which may be empty,
// and whether the "key" and "omitempty" options are present.
func parseTag(tag string) (column string, key bool, omitEmpty bool, err error) {
	options := strings.Split(tag, ",")
	column = options[0]
	if column != "" && !validColNameRx.MatchString(column) {
		return "", false, false, fmt.Errorf("invalid column name %q in 'db' tag", column)
	}
	for _, option := range options[1:] {
		switch strings.ToLower(strings.TrimSpace(option)) {
		case "key":
			key = true
		case "omitempty":
			omitEmpty = true
		default:
			return "", false, false, fmt.Errorf("unexpected option %q in 'db' tag", option)
		}
	}
	return column, key, omitEmpty, nil
}

var sqlTypeRx = regexp.MustCompile(`^\s*([a-zA-Z]+)\s*(?:\(\s*([0-9]+|[mM][aA][xX])\s*\))?\s*$`)

// ParseSQLType parses a SQL type declaration such as "varchar(20)" or
// "nvarchar(max)". The type name is returned in lower case.
func ParseSQLType(s string) (string, int, error) {
	m := sqlTypeRx.FindStringSubmatch(s)
	if m == nil {
		return "", 0, fmt.Errorf("invalid SQL type %q", s)
	}
	name := strings.ToLower(m[1])
	if m[2] == "" {
		return name, 0, nil
	}
	if strings.EqualFold(m[2], "max") {
		return name, MaxLength, nil
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return "", 0, fmt.Errorf("invalid length in SQL type %q", s)
	}
	return name, n, nil
}

// checkColumns verifies that no two mapped members share a column.
func checkColumns(info *Info) error {
	seen := make(map[string]string, len(info.Fields))
	for _, f := range info.Fields {
		if f.Excluded {
			continue
		}
		col := strings.ToLower(f.Column)
		if other, ok := seen[col]; ok {
			return fmt.Errorf("cannot reflect %s: fields %s and %s both map to column %q", info.Name, other, f.Name, f.Column)
		}
		seen[col] = f.Name
	}
	return nil
}
