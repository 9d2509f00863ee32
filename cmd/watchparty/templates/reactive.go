// Package templates renders typed reactive structs on top of observer.Ref.
package templates

import (
	"fmt"
	"go/format"
	"io"

	qt "github.com/valyala/quicktemplate"
)

const observerImport = "github.com/delaneyj/watchparty/observer"

// StreamReactive writes the unformatted source for schema to qw.
func StreamReactive(qw *qt.Writer, schema *Schema) {
	w := qw.N()
	w.S("// Code generated by watchparty gen. DO NOT EDIT.\n\n")
	w.S("package ")
	w.S(schema.Package)
	w.S("\n\nimport (\n")
	for _, imp := range schema.Imports {
		w.S("\t")
		w.Q(imp)
		w.S("\n")
	}
	w.S("\t")
	w.Q(observerImport)
	w.S("\n)\n")

	for _, st := range schema.Structs {
		streamStruct(qw, st)
	}
}

func streamStruct(qw *qt.Writer, st Struct) {
	w := qw.N()
	w.S("\n")
	if st.Doc != "" {
		w.S("// ")
		w.S(st.Doc)
		w.S("\n")
	} else {
		w.S("// ")
		w.S(st.Name)
		w.S(" is a reactive record. Reads inside a watcher are tracked.\n")
	}
	w.S("type ")
	w.S(st.Name)
	w.S(" struct {\n")
	for _, f := range st.Fields {
		w.S("\t")
		w.S(refField(f))
		w.S(" *observer.Ref[")
		w.S(f.Type)
		w.S("]\n")
	}
	w.S("}\n\n")

	w.S("func New")
	w.S(st.Name)
	w.S("(sys *observer.System")
	if len(st.Fields) > 0 {
		w.S(", ")
		w.S(params(st.Fields))
	}
	w.S(") *")
	w.S(st.Name)
	w.S(" {\n\treturn &")
	w.S(st.Name)
	w.S("{\n")
	for _, f := range st.Fields {
		w.S("\t\t")
		w.S(refField(f))
		w.S(": observer.NewRef(sys, ")
		w.S(lowerFirst(f.Name))
		w.S("_),\n")
	}
	w.S("\t}\n}\n")

	for _, f := range st.Fields {
		streamAccessors(qw, st, f)
	}
}

func streamAccessors(qw *qt.Writer, st Struct, f Field) {
	w := qw.N()
	recv := "(x *" + st.Name + ") "

	w.S("\nfunc ")
	w.S(recv)
	w.S(f.Name)
	w.S("() ")
	w.S(f.Type)
	w.S(" {\n\treturn x.")
	w.S(refField(f))
	w.S(".Get()\n}\n")

	w.S("\nfunc ")
	w.S(recv)
	w.S("Set")
	w.S(f.Name)
	w.S("(v ")
	w.S(f.Type)
	w.S(") {\n\tx.")
	w.S(refField(f))
	w.S(".Set(v)\n}\n")

	w.S("\nfunc ")
	w.S(recv)
	w.S(f.Name)
	w.S("Ref() *observer.Ref[")
	w.S(f.Type)
	w.S("] {\n\treturn x.")
	w.S(refField(f))
	w.S("\n}\n")
}

// WriteReactive writes the unformatted source for schema to w.
func WriteReactive(w io.Writer, schema *Schema) {
	qw := qt.AcquireWriter(w)
	StreamReactive(qw, schema)
	qt.ReleaseWriter(qw)
}

// Reactive returns the unformatted source for schema.
func Reactive(schema *Schema) string {
	bb := qt.AcquireByteBuffer()
	WriteReactive(bb, schema)
	s := string(bb.B)
	qt.ReleaseByteBuffer(bb)
	return s
}

// Gen validates schema and returns gofmt'ed source.
func Gen(schema *Schema) ([]byte, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	src := Reactive(schema)
	out, err := format.Source([]byte(src))
	if err != nil {
		return nil, fmt.Errorf("formatting generated code: %w", err)
	}
	return out, nil
}
