// Package schema defines the static per-table configuration that drives the
// sync engine. A Schema is loaded once at startup (from YAML or built in
// code) and treated as immutable afterwards; every component that needs to
// know which tables exist, which fields they carry, or whether a table uses
// soft deletes reads it from here instead of special-casing table names.
package schema

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// Reserved field names with engine-level semantics.
const (
	FieldID        = "id"
	FieldOwnerID   = "ownerId"
	FieldIsPublic  = "isPublic"
	FieldStateID   = "stateId"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Lifecycle markers for tables that declare a stateId field.
const (
	StateActive  = "ACTIVE"
	StateDeleted = "DELETED"
)

// FieldType enumerates the value types a field may declare.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeBool   FieldType = "bool"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeTime   FieldType = "time"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeBool, TypeInt, TypeFloat, TypeTime:
		return true
	}
	return false
}

// Field describes a single column of a table.
type Field struct {
	Type     FieldType `yaml:"type"`
	Required bool      `yaml:"required"`
	Indexed  bool      `yaml:"indexed"`

	// Default is applied when the field is absent on create/save.
	// A nil Default means the field has no declared default.
	Default any `yaml:"default"`
}

// Table is the definition of one named table.
type Table struct {
	name   string
	fields map[string]Field
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Field returns the definition of a named field.
func (t *Table) Field(name string) (Field, bool) {
	f, ok := t.fields[name]
	return f, ok
}

// Has reports whether the table declares the named field.
func (t *Table) Has(name string) bool {
	_, ok := t.fields[name]
	return ok
}

// HasState reports whether the table uses soft deletes (declares stateId).
func (t *Table) HasState() bool { return t.Has(FieldStateID) }

// HasOwner reports whether records of this table carry an ownerId.
func (t *Table) HasOwner() bool { return t.Has(FieldOwnerID) }

// HasPublic reports whether records of this table may be publicly mirrored.
func (t *Table) HasPublic() bool { return t.Has(FieldIsPublic) }

// FieldNames returns the declared field names in sorted order.
func (t *Table) FieldNames() []string {
	names := make([]string, 0, len(t.fields))
	for name := range t.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schema is an immutable set of table definitions.
type Schema struct {
	tables map[string]*Table
	names  []string
}

// Tables returns all table names in sorted order.
func (s *Schema) Tables() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Table looks up a table definition by name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Has reports whether the schema defines the named table.
func (s *Schema) Has(name string) bool {
	_, ok := s.tables[name]
	return ok
}

// tableSpec is the YAML shape of a table definition.
type tableSpec struct {
	Fields map[string]Field `yaml:"fields"`
}

// fileSpec is the YAML shape of a schema file.
type fileSpec struct {
	Tables map[string]tableSpec `yaml:"tables"`
}

// Table and field names become SQL identifiers and URL path segments, so
// they are restricted to a safe character set.
var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// New builds a Schema from a map of table name to field definitions.
func New(tables map[string]map[string]Field) (*Schema, error) {
	s := &Schema{tables: make(map[string]*Table, len(tables))}
	for name, fields := range tables {
		if !identRe.MatchString(name) {
			return nil, fmt.Errorf("schema: invalid table name %q", name)
		}
		if _, ok := fields[FieldID]; !ok {
			return nil, fmt.Errorf("schema: table %q does not declare an %q field", name, FieldID)
		}
		t := &Table{name: name, fields: make(map[string]Field, len(fields))}
		for fname, f := range fields {
			if !identRe.MatchString(fname) {
				return nil, fmt.Errorf("schema: table %q: invalid field name %q", name, fname)
			}
			if f.Type == "" {
				f.Type = TypeString
			}
			if !f.Type.valid() {
				return nil, fmt.Errorf("schema: table %q: field %q has unknown type %q", name, fname, f.Type)
			}
			t.fields[fname] = f
		}
		s.tables[name] = t
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s, nil
}

// Load parses a YAML schema document.
func Load(r io.Reader) (*Schema, error) {
	var spec fileSpec
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	if len(spec.Tables) == 0 {
		return nil, fmt.Errorf("schema: no tables defined")
	}
	tables := make(map[string]map[string]Field, len(spec.Tables))
	for name, ts := range spec.Tables {
		tables[name] = ts.Fields
	}
	return New(tables)
}

// LoadFile parses a YAML schema file from disk.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Default returns the built-in schema: a single "books" table with soft
// deletes, ownership, and public mirroring enabled.
func Default() *Schema {
	s, err := New(map[string]map[string]Field{
		"books": {
			FieldID:        {Type: TypeString, Indexed: true},
			"title":        {Type: TypeString, Required: true},
			"coverImage":   {Type: TypeString},
			"content":      {Type: TypeString},
			FieldOwnerID:   {Type: TypeString, Indexed: true},
			FieldIsPublic:  {Type: TypeBool, Default: false},
			FieldCreatedAt: {Type: TypeTime, Indexed: true, Required: true},
			FieldUpdatedAt: {Type: TypeTime, Indexed: true, Required: true},
			FieldStateID:   {Type: TypeString, Indexed: true, Default: StateActive},
		},
	})
	if err != nil {
		panic(err) // built-in schema is always valid
	}
	return s
}

