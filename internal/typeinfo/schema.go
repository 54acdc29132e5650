// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
)

// schemaFile is the document layout of an entity schema file:
//
//	entities:
//	  - name: Member
//	    schema: dbo
//	    connections: [Main]
//	    tvp: dbo.MemberType
//	    fields:
//	      - name: Id
//	        kind: int
//	        key: true
//	      - name: FirstName
//	        column: first_name
//	        type: varchar(20)
type schemaFile struct {
	Entities []schemaEntity `yaml:"entities"`
}

type schemaEntity struct {
	Name        string        `yaml:"name"`
	Table       string        `yaml:"table"`
	Schema      string        `yaml:"schema"`
	Connections []string      `yaml:"connections"`
	TVP         string        `yaml:"tvp"`
	Fields      []schemaField `yaml:"fields"`
}

type schemaField struct {
	Name      string `yaml:"name"`
	Column    string `yaml:"column"`
	Kind      string `yaml:"kind"`
	Type      string `yaml:"type"`
	MaxLen    int    `yaml:"maxlen"`
	Key       bool   `yaml:"key"`
	Excluded  bool   `yaml:"excluded"`
	OmitEmpty bool   `yaml:"omitempty"`
}

// kinds maps the member kinds accepted in schema files to Go types.
var kinds = map[string]reflect.Type{
	"bool":    reflect.TypeOf(false),
	"int":     reflect.TypeOf(int(0)),
	"int8":    reflect.TypeOf(int8(0)),
	"int16":   reflect.TypeOf(int16(0)),
	"int32":   reflect.TypeOf(int32(0)),
	"int64":   reflect.TypeOf(int64(0)),
	"uint8":   reflect.TypeOf(uint8(0)),
	"uint16":  reflect.TypeOf(uint16(0)),
	"uint32":  reflect.TypeOf(uint32(0)),
	"uint64":  reflect.TypeOf(uint64(0)),
	"float32": reflect.TypeOf(float32(0)),
	"float64": reflect.TypeOf(float64(0)),
	"decimal": decimalType,
	"string":  reflect.TypeOf(""),
	"bytes":   reflect.TypeOf([]byte(nil)),
	"time":    reflect.TypeOf(time.Time{}),
	"uuid":    reflect.TypeOf(uuid.UUID{}),
}

// KindType returns the Go type of a schema member kind.
func KindType(kind string) (reflect.Type, bool) {
	t, ok := kinds[strings.ToLower(kind)]
	return t, ok
}

// LoadSchema parses a YAML entity schema and returns the declared entities
// in file order. Entities loaded this way carry no struct type.
func LoadSchema(data []byte) ([]*Info, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cannot load schema: %w", err)
	}

	var infos []*Info
	names := map[string]bool{}
	for _, e := range file.Entities {
		info, err := schemaInfo(e)
		if err != nil {
			return nil, fmt.Errorf("cannot load schema: %w", err)
		}
		if names[info.Name] {
			return nil, fmt.Errorf("cannot load schema: entity %q declared more than once", info.Name)
		}
		names[info.Name] = true
		infos = append(infos, info)
	}
	return infos, nil
}

func schemaInfo(e schemaEntity) (*Info, error) {
	if !validColNameRx.MatchString(e.Name) {
		return nil, fmt.Errorf("invalid entity name %q", e.Name)
	}
	info := &Info{
		Name:        e.Name,
		Table:       e.Table,
		Schema:      e.Schema,
		Connections: e.Connections,
		TVPType:     e.TVP,
	}
	if info.Table == "" {
		info.Table = e.Name
	}

	for _, sf := range e.Fields {
		if !validColNameRx.MatchString(sf.Name) {
			return nil, fmt.Errorf("entity %s: invalid field name %q", e.Name, sf.Name)
		}
		kind := sf.Kind
		if kind == "" {
			kind = "string"
		}
		t, ok := KindType(kind)
		if !ok {
			return nil, fmt.Errorf("entity %s: field %s: unknown kind %q", e.Name, sf.Name, sf.Kind)
		}
		f := Field{
			Type:      t,
			Name:      sf.Name,
			Index:     -1,
			Column:    sf.Name,
			MaxLength: sf.MaxLen,
			Key:       sf.Key,
			Excluded:  sf.Excluded,
			OmitEmpty: sf.OmitEmpty,
		}
		if sf.Column != "" {
			if !validColNameRx.MatchString(sf.Column) {
				return nil, fmt.Errorf("entity %s: field %s: invalid column name %q", e.Name, sf.Name, sf.Column)
			}
			f.Column = sf.Column
		}
		if sf.Type != "" {
			sqlType, length, err := ParseSQLType(sf.Type)
			if err != nil {
				return nil, fmt.Errorf("entity %s: field %s: %w", e.Name, sf.Name, err)
			}
			f.SQLType = sqlType
			f.Length = length
		}
		if _, dup := info.Field(sf.Name); dup {
			return nil, fmt.Errorf("entity %s: field %s declared more than once", e.Name, sf.Name)
		}
		info.Fields = append(info.Fields, f)
		info.index()
	}

	if err := checkColumns(info); err != nil {
		return nil, err
	}
	info.index()
	return info, nil
}
