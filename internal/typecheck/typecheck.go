// Package typecheck compares observed trace types against declared docblock types.
package typecheck

import (
	"regexp"
	"strings"

	"github.com/phobologic/phpconsistent/internal/model"
)

// Unverifiable is the token a trace uses for values whose type it could not record.
const Unverifiable = "???"

var (
	classRe = regexp.MustCompile(`^class\s+\\?([\w\\]+)`)
	wordRe  = regexp.MustCompile(`\w+`)
)

// widening maps an observed scalar type to the broader declared types it satisfies.
var widening = map[string]map[string]struct{}{
	"float": set("double", "number", "float"),
	"int":   set("int", "integer", "long", "number", "float"),
	"long":  set("int", "integer", "long", "number", "float"),
	"bool":  set("boolean"),
}

func set(names ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}

// HierarchyResolver exposes the class hierarchy of instance-typed values.
type HierarchyResolver interface {
	HierarchyOf(class string) (model.Hierarchy, bool)
}

// Comparator decides whether an observed type satisfies a declared type expression.
// The zero value compares without null leniency and without class expansion.
type Comparator struct {
	IgnoreNull bool
	Hierarchy  HierarchyResolver
}

// Matches reports whether observed is compatible with declared.
func (c *Comparator) Matches(observed string, declared model.TypeExpression) bool {
	observed = strings.TrimSpace(observed)
	if observed == Unverifiable {
		return true
	}

	candidates := declared.Candidates()
	for _, d := range candidates {
		if d == model.Mixed {
			return true
		}
	}

	class, isClass := ClassName(observed)
	var observedSet []string
	if isClass {
		for _, d := range candidates {
			if d == "object" {
				return true
			}
		}
		observedSet = c.expand(class)
	} else {
		observedSet = []string{Normalize(observed)}
	}

	for _, o := range observedSet {
		if o == "null" && c.IgnoreNull {
			return true
		}
		for _, d := range candidates {
			if isClass {
				if sameClass(o, d) {
					return true
				}
				continue
			}
			if o == d {
				return true
			}
			if _, ok := widening[o][d]; ok {
				return true
			}
		}
	}
	return false
}

func (c *Comparator) expand(class string) []string {
	out := []string{class}
	if c.Hierarchy == nil {
		return out
	}
	h, ok := c.Hierarchy.HierarchyOf(class)
	if !ok {
		return out
	}
	out = append(out, h.Implements...)
	return append(out, h.Ancestors...)
}

// sameClass compares an observed fully qualified class name with a declared
// one. PHP class names are case-insensitive; a declared name without a
// namespace matches on the short name.
func sameClass(observed, declared string) bool {
	declared = strings.TrimPrefix(declared, `\`)
	if strings.EqualFold(observed, declared) {
		return true
	}
	if strings.Contains(declared, `\`) {
		return false
	}
	if i := strings.LastIndex(observed, `\`); i >= 0 {
		return strings.EqualFold(observed[i+1:], declared)
	}
	return false
}

// ClassName extracts the class from an instance marker such as "class App\User".
func ClassName(token string) (string, bool) {
	m := classRe.FindStringSubmatch(strings.TrimSpace(token))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Normalize reduces an observed parameter token like "string(5)" or
// "class Foo { ... }" to a comparable type name.
func Normalize(token string) string {
	token = strings.TrimSpace(token)
	if token == Unverifiable {
		return token
	}
	if class, ok := ClassName(token); ok {
		return "class " + class
	}
	if w := wordRe.FindString(token); w != "" {
		return w
	}
	return token
}
