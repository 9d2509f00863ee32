package templates

import (
	"errors"
	"fmt"
	"go/token"
)

// Schema describes the reactive structs to generate.
type Schema struct {
	Package string   `toml:"package"`
	Imports []string `toml:"imports"`
	Structs []Struct `toml:"struct"`
}

// Struct is one generated type.
type Struct struct {
	Name   string  `toml:"name"`
	Doc    string  `toml:"doc"`
	Fields []Field `toml:"field"`
}

// Field is a reactive field backed by an observer.Ref.
type Field struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// Validate checks that every name is an exported Go identifier and that no
// struct declares a field twice.
func (s *Schema) Validate() error {
	if !token.IsIdentifier(s.Package) {
		return fmt.Errorf("invalid package name %q", s.Package)
	}
	if len(s.Structs) == 0 {
		return errors.New("schema declares no structs")
	}
	seen := map[string]bool{}
	for _, st := range s.Structs {
		if !token.IsIdentifier(st.Name) || !token.IsExported(st.Name) {
			return fmt.Errorf("struct name %q must be an exported identifier", st.Name)
		}
		if seen[st.Name] {
			return fmt.Errorf("struct %q declared twice", st.Name)
		}
		seen[st.Name] = true

		fields := map[string]bool{}
		for _, f := range st.Fields {
			if !token.IsIdentifier(f.Name) || !token.IsExported(f.Name) {
				return fmt.Errorf("%s: field name %q must be an exported identifier", st.Name, f.Name)
			}
			if f.Type == "" {
				return fmt.Errorf("%s.%s: missing type", st.Name, f.Name)
			}
			if fields[f.Name] {
				return fmt.Errorf("%s.%s: declared twice", st.Name, f.Name)
			}
			fields[f.Name] = true
		}
	}
	return nil
}
