package tag

import (
	"fmt"
	"strings"

	"github.com/stoewer/go-strcase"
)

// Rule converts Go identifiers into wire names.
type Rule string

// Supported rename rules.
const (
	Lowercase          Rule = "lowercase"
	Uppercase          Rule = "UPPERCASE"
	PascalCase         Rule = "PascalCase"
	CamelCase          Rule = "camelCase"
	SnakeCase          Rule = "snake_case"
	ScreamingSnakeCase Rule = "SCREAMING_SNAKE_CASE"
	KebabCase          Rule = "kebab-case"
	ScreamingKebabCase Rule = "SCREAMING-KEBAB-CASE"
)

// ParseRule validates a rename rule name.
func ParseRule(s string) (Rule, error) {
	switch r := Rule(s); r {
	case Lowercase, Uppercase, PascalCase, CamelCase, SnakeCase,
		ScreamingSnakeCase, KebabCase, ScreamingKebabCase:
		return r, nil
	case "":
		return SnakeCase, nil
	}
	return "", fmt.Errorf("unknown rename rule %q", s)
}

// Apply converts ident.
func (r Rule) Apply(ident string) string {
	switch r {
	case Lowercase:
		return strings.ToLower(ident)
	case Uppercase:
		return strings.ToUpper(ident)
	case PascalCase:
		return strcase.UpperCamelCase(ident)
	case CamelCase:
		return strcase.LowerCamelCase(ident)
	case ScreamingSnakeCase:
		return strcase.UpperSnakeCase(ident)
	case KebabCase:
		return strcase.KebabCase(ident)
	case ScreamingKebabCase:
		return strcase.UpperKebabCase(ident)
	default:
		return strcase.SnakeCase(ident)
	}
}

// CollectionName derives a collection name from a type name. Type
// arguments of instantiated generic types are dropped.
func CollectionName(typeName string) string {
	if i := strings.IndexByte(typeName, '['); i >= 0 {
		typeName = typeName[:i]
	}
	return strcase.SnakeCase(typeName)
}
