// Package docblock parses the type tags of PHP doc comments.
package docblock

import (
	"regexp"
	"strings"

	"github.com/phobologic/phpconsistent/internal/model"
)

// Tag names recognized in a doc comment.
const (
	TagParam  = "param"
	TagReturn = "return"
	TagIgnore = "phpconsistent-ignore"
)

var (
	tagRe   = regexp.MustCompile(`^@([\w-]+)(?:\s+(.*))?$`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Entry is one tag of a doc comment, in source order.
type Entry struct {
	Tag  string
	Type string
	Name string
}

// Parse returns the param, return and ignore tags of a doc comment.
// Other tags and free text are skipped.
func Parse(doc string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "/**")
		line = strings.TrimSuffix(line, "*/")
		line = strings.TrimSpace(strings.TrimLeft(line, "*"))

		m := tagRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rest := spaceRe.Split(strings.TrimSpace(m[2]), -1)

		switch m[1] {
		case TagParam:
			e := Entry{Tag: TagParam}
			if len(rest) > 0 && rest[0] != "" {
				e.Type = rest[0]
			}
			if len(rest) > 1 && isVariable(rest[1]) {
				e.Name = rest[1]
			}
			if e.Type == "" {
				continue
			}
			entries = append(entries, e)
		case TagReturn:
			if len(rest) == 0 || rest[0] == "" {
				continue
			}
			entries = append(entries, Entry{Tag: TagReturn, Type: rest[0]})
		case TagIgnore:
			entries = append(entries, Entry{Tag: TagIgnore})
		}
	}
	return entries
}

var variableRe = regexp.MustCompile(`^(?:\.\.\.)?&?\$?\w+$`)

func isVariable(s string) bool {
	return variableRe.MatchString(s)
}

// Signature combines the parsed tags with the parameter names of the
// callable's definition. The first @return wins.
func Signature(entries []Entry, defined []string) model.Signature {
	sig := model.Signature{DefinedParams: defined}
	for _, e := range entries {
		switch e.Tag {
		case TagIgnore:
			sig.Suppressed = true
		case TagParam:
			sig.Params = append(sig.Params, model.Param{Name: variableName(e.Name), Type: model.TypeExpression(e.Type)})
		case TagReturn:
			if !sig.HasReturn {
				sig.Return = model.TypeExpression(e.Type)
				sig.HasReturn = true
			}
		}
	}
	return sig
}

// variableName normalizes a documented parameter name to "$name".
func variableName(name string) string {
	name = strings.TrimPrefix(name, "...")
	name = strings.TrimPrefix(name, "&")
	if name == "" || strings.HasPrefix(name, "$") {
		return name
	}
	return "$" + name
}
