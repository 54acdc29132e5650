// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package sqlexpr

import (
	"fmt"
	"os"
	"reflect"

	"github.com/canonical/sqlexpr/internal/typeinfo"
)

// Entity is the table mapping of a Go type or of a schema file entry.
//
// Struct entities are described by tags. Entity level settings go on a blank
// field:
//
//	type Member struct {
//		_         struct{} `table:"Member" schema:"dbo" conn:"Main" tvp:"dbo.MemberType"`
//		Id        int      `db:"Id,key"`
//		FirstName string   `db:"first_name" dbtype:"varchar(20)"`
//		Notes     string   `db:"-"`
//	}
type Entity struct {
	info *typeinfo.Info
}

// EntityOf returns the entity of the struct type T.
func EntityOf[T any]() (*Entity, error) {
	info, err := typeinfo.Default().TypeInfo(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	return &Entity{info: info}, nil
}

// EntityFor returns the entity of the type of sample, a struct or a pointer
// to one.
func EntityFor(sample any) (*Entity, error) {
	info, err := typeinfo.GetTypeInfo(sample)
	if err != nil {
		return nil, err
	}
	return &Entity{info: info}, nil
}

// LoadSchema reads entities from a YAML schema document, keyed by name.
func LoadSchema(data []byte) (map[string]*Entity, error) {
	infos, err := typeinfo.LoadSchema(data)
	if err != nil {
		return nil, err
	}
	entities := make(map[string]*Entity, len(infos))
	for _, info := range infos {
		if _, ok := entities[info.Name]; ok {
			return nil, fmt.Errorf("cannot load schema: entity %q declared twice", info.Name)
		}
		entities[info.Name] = &Entity{info: info}
	}
	return entities, nil
}

// LoadSchemaFile reads entities from a YAML schema file.
func LoadSchemaFile(path string) (map[string]*Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load schema: %w", err)
	}
	return LoadSchema(data)
}

// Name returns the entity name.
func (e *Entity) Name() string {
	return e.info.Name
}

// Table returns the bracket quoted table name, schema qualified when the
// entity declares a schema.
func (e *Entity) Table() string {
	return e.info.QualifiedTable()
}

// Connections returns the names of the connections the entity declares.
func (e *Entity) Connections() []string {
	return append([]string(nil), e.info.Connections...)
}

// Columns returns the mapped columns of the entity, in declaration order.
func (e *Entity) Columns() []string {
	fields := e.info.MappedFields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	return cols
}

func (e *Entity) String() string {
	return e.info.Name
}
