package tag

import (
	"reflect"
	"testing"
)

func TestParseField(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		tag  string
		want Field
	}{
		{"", Field{}},
		{"-", Field{Skip: true}},
		{"title", Field{Name: "title"}},
		{",facet", Field{Facet: &yes}},
		{"year,facet,sort", Field{Name: "year", Facet: &yes, Sort: &yes}},
		{",index=false", Field{Index: &no}},
		{",facet=false,optional", Field{Facet: &no, Optional: true}},
		{",flatten", Field{Flatten: true}},
		{"addr,object", Field{Name: "addr", Object: true}},
		{",object_array", Field{ObjectArray: true}},
		{",default_sorting_field", Field{DefaultSort: true}},
		{",type=string*,locale=ko", Field{Type: "string*", Locale: "ko"}},
		{"vec,num_dim=384", Field{Name: "vec", NumDim: 384}},
		{",infix", Field{Infix: &yes}},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			got, err := ParseField(tt.tag)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseField(%q) = %+v, want %+v", tt.tag, got, tt.want)
			}
		})
	}
}

func TestParseField_Errors(t *testing.T) {
	for _, tag := range []string{
		",bogus",
		",facet=maybe",
		",num_dim=abc",
		",num_dim=0",
		",type=",
		",flatten,object",
		",object,object_array",
	} {
		t.Run(tag, func(t *testing.T) {
			if _, err := ParseField(tag); err == nil {
				t.Errorf("ParseField(%q): expected error", tag)
			}
		})
	}
}

func TestField_IsOptional(t *testing.T) {
	f, _ := ParseField(",index=false")
	if !f.IsOptional() {
		t.Error("unindexed field must be optional")
	}
	f, _ = ParseField(",facet")
	if f.IsOptional() {
		t.Error("faceted field is not optional")
	}
}

func TestParseStruct(t *testing.T) {
	got, err := ParseStruct("name=books,rename_all=camelCase,nested,symbols=+#,separators=-")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Struct{
		Name:       "books",
		RenameAll:  CamelCase,
		Nested:     true,
		Symbols:    []string{"+", "#"},
		Separators: []string{"-"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseStruct = %+v, want %+v", got, want)
	}

	if _, err := ParseStruct("rename_all=Title Case"); err == nil {
		t.Error("expected error for unknown rule")
	}
	if _, err := ParseStruct("colour=red"); err == nil {
		t.Error("expected error for unknown option")
	}
}

func TestRule_Apply(t *testing.T) {
	tests := []struct {
		rule  Rule
		ident string
		want  string
	}{
		{SnakeCase, "Field0", "field0"},
		{SnakeCase, "AuthorID", "author_id"},
		{SnakeCase, "ID", "id"},
		{CamelCase, "PublishedYear", "publishedYear"},
		{PascalCase, "published_year", "PublishedYear"},
		{Lowercase, "PublishedYear", "publishedyear"},
		{Uppercase, "PublishedYear", "PUBLISHEDYEAR"},
		{ScreamingSnakeCase, "PublishedYear", "PUBLISHED_YEAR"},
		{KebabCase, "PublishedYear", "published-year"},
		{ScreamingKebabCase, "PublishedYear", "PUBLISHED-YEAR"},
	}
	for _, tt := range tests {
		t.Run(string(tt.rule)+"/"+tt.ident, func(t *testing.T) {
			if got := tt.rule.Apply(tt.ident); got != tt.want {
				t.Errorf("%s.Apply(%q) = %q, want %q", tt.rule, tt.ident, got, tt.want)
			}
		})
	}
}

func TestCollectionName(t *testing.T) {
	if got := CollectionName("BookReview"); got != "book_review" {
		t.Errorf("got %q", got)
	}
	if got := CollectionName("Page[main.Book]"); got != "page" {
		t.Errorf("got %q", got)
	}
}
