package tracker

import (
	"regexp"
	"strings"

	"github.com/phobologic/phpconsistent/internal/typecheck"
)

var (
	firstWordRe = regexp.MustCompile(`\w+`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

// ReturnType derives the observed type of a raw return literal.
// String literals always start with a quote in a trace; everything else is
// classified by its first word.
func ReturnType(literal string) string {
	literal = strings.TrimSpace(literal)
	if strings.HasPrefix(literal, "'") || strings.HasPrefix(literal, `"`) {
		return "string"
	}
	word := firstWordRe.FindString(literal)
	switch {
	case strings.EqualFold(word, "NULL"):
		return "null"
	case word == "class":
		if class, ok := typecheck.ClassName(literal); ok {
			return "class " + class
		}
		return "unknown"
	case strings.EqualFold(word, "TRUE"), strings.EqualFold(word, "FALSE"):
		return "bool"
	case word == "array":
		return "array"
	case digitsRe.MatchString(word):
		return "int"
	}
	return "unknown"
}
