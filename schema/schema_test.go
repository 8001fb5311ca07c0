package schema

import (
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name   string
		tables map[string]map[string]Field
		ok     bool
	}{
		{
			name: "valid",
			tables: map[string]map[string]Field{
				"books": {"id": {Type: TypeString}, "title": {Type: TypeString}},
			},
			ok: true,
		},
		{
			name: "missing id field",
			tables: map[string]map[string]Field{
				"books": {"title": {Type: TypeString}},
			},
		},
		{
			name: "bad table name",
			tables: map[string]map[string]Field{
				"books; drop": {"id": {}},
			},
		},
		{
			name: "bad field name",
			tables: map[string]map[string]Field{
				"books": {"id": {}, "bad name": {}},
			},
		},
		{
			name: "unknown field type",
			tables: map[string]map[string]Field{
				"books": {"id": {Type: "blob"}},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.tables)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestFieldTypeDefaultsToString(t *testing.T) {
	s, err := New(map[string]map[string]Field{
		"books": {"id": {}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	tbl, _ := s.Table("books")
	f, _ := tbl.Field("id")
	if f.Type != TypeString {
		t.Errorf("expected untyped field to default to string, got %q", f.Type)
	}
}

func TestTableCapabilities(t *testing.T) {
	s := Default()
	tbl, ok := s.Table("books")
	if !ok {
		t.Fatal("default schema should define books")
	}
	if !tbl.HasState() || !tbl.HasOwner() || !tbl.HasPublic() {
		t.Error("books should declare stateId, ownerId and isPublic")
	}

	plain, err := New(map[string]map[string]Field{"notes": {"id": {}}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	nt, _ := plain.Table("notes")
	if nt.HasState() || nt.HasOwner() || nt.HasPublic() {
		t.Error("bare table should declare none of the reserved capabilities")
	}
}

func TestTablesSortedAndCopied(t *testing.T) {
	s, err := New(map[string]map[string]Field{
		"zebra": {"id": {}},
		"alpha": {"id": {}},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	names := s.Tables()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zebra" {
		t.Fatalf("expected sorted names, got %v", names)
	}
	names[0] = "mutated"
	if s.Tables()[0] != "alpha" {
		t.Error("Tables must return a copy")
	}
}

func TestLoadYAML(t *testing.T) {
	doc := `
tables:
  books:
    fields:
      id:
        type: string
        indexed: true
      title:
        type: string
        required: true
      isPublic:
        type: bool
        default: false
      createdAt:
        type: time
`
	s, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tbl, ok := s.Table("books")
	if !ok {
		t.Fatal("books table missing")
	}
	f, _ := tbl.Field("title")
	if !f.Required {
		t.Error("required flag lost in YAML load")
	}
	f, _ = tbl.Field("createdAt")
	if f.Type != TypeTime {
		t.Errorf("expected time type, got %q", f.Type)
	}
}

func TestLoadRejectsUnknownKeysAndEmptyDocs(t *testing.T) {
	_, err := Load(strings.NewReader("tables: {}"))
	if err == nil {
		t.Error("expected error for a schema without tables")
	}

	_, err = Load(strings.NewReader(`
tables:
  books:
    fields:
      id: {type: string}
    typo_section: {}
`))
	if err == nil {
		t.Error("expected error for unknown keys")
	}
}
