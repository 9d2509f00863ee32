package templates

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// refField is the unexported struct field holding the ref of f. The suffix
// keeps names like "Type" from turning into keywords.
func refField(f Field) string {
	return lowerFirst(f.Name) + "Ref"
}

func params(fields []Field) string {
	var sb strings.Builder
	for i, f := range fields {
		sb.WriteString(lowerFirst(f.Name))
		sb.WriteString("_ ")
		sb.WriteString(f.Type)
		if i < len(fields)-1 {
			sb.WriteString(", ")
		}
	}
	return sb.String()
}
