// Package parse extracts declarations from PHP source files using tree-sitter.
package parse

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/phpconsistent/internal/lang"
	"github.com/phobologic/phpconsistent/internal/model"
)

var captureKinds = map[string]model.DeclKind{
	"definition.class":     model.Class,
	"definition.interface": model.Interface,
	"definition.trait":     model.Trait,
	"definition.function":  model.Function,
	"definition.method":    model.Method,
}

type namespaceSpan struct {
	name       string
	start, end uint32
	braced     bool
}

type defMatch struct {
	kind model.DeclKind
	name *sitter.Node
	node *sitter.Node
}

// Declarations parses a source file and returns its classes, interfaces,
// traits, functions and methods with fully qualified names.
// The parser must be created for the correct language.
// filePath is used only for Declaration.File.
func Declarations(parser *sitter.Parser, query *sitter.Query, source []byte, filePath string) []model.Declaration {
	if len(source) == 0 {
		return nil
	}

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var (
		namespaces []namespaceSpan
		useNodes   []*sitter.Node
		defs       []defMatch
	)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var nameNode, defNode *sitter.Node
		var captureName string
		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			switch {
			case cname == "name":
				nameNode = c.Node
			case cname == "reference.use":
				useNodes = append(useNodes, c.Node)
			default:
				captureName = cname
				defNode = c.Node
			}
		}
		if nameNode == nil || defNode == nil {
			continue
		}

		if captureName == "definition.namespace" {
			namespaces = append(namespaces, namespaceSpan{
				name:   lang.NodeText(nameNode, source),
				start:  defNode.StartByte(),
				end:    defNode.EndByte(),
				braced: lang.ChildOfType(defNode, "compound_statement") != nil,
			})
			continue
		}
		if kind, ok := captureKinds[captureName]; ok {
			defs = append(defs, defMatch{kind: kind, name: nameNode, node: defNode})
		}
	}

	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].start < namespaces[j].start })
	imports := collectImports(useNodes, source)

	var decls []model.Declaration
	for _, d := range defs {
		ns := namespaceAt(namespaces, d.node.StartByte())
		decl := model.Declaration{
			Kind:      d.kind,
			Namespace: ns,
			File:      filePath,
			Line:      int(d.name.StartPoint().Row) + 1,
			Doc:       lang.PHPDocComment(d.node, source),
		}
		name := lang.NodeText(d.name, source)

		switch d.kind {
		case model.Method:
			owner := lang.PHPEnclosingClassLike(d.node)
			if owner == nil {
				continue
			}
			ownerName := lang.ChildOfType(owner, "name")
			if ownerName == nil {
				continue
			}
			decl.Name = name
			decl.Class = qualify(ns, lang.NodeText(ownerName, source))
			decl.Params = lang.PHPParameterNames(d.node, source)
		case model.Function:
			decl.Name = qualify(ns, name)
			decl.Params = lang.PHPParameterNames(d.node, source)
		case model.Class:
			decl.Name = qualify(ns, name)
			decl.Extends = resolveAll(lang.PHPTypeNames(lang.ChildOfType(d.node, "base_clause"), source), ns, imports)
			decl.Implements = resolveAll(lang.PHPTypeNames(lang.ChildOfType(d.node, "class_interface_clause"), source), ns, imports)
			decl.Traits = resolveAll(lang.PHPTraitUses(d.node, source), ns, imports)
		case model.Interface:
			decl.Name = qualify(ns, name)
			decl.Extends = resolveAll(lang.PHPTypeNames(lang.ChildOfType(d.node, "base_clause"), source), ns, imports)
		case model.Trait:
			decl.Name = qualify(ns, name)
			decl.Traits = resolveAll(lang.PHPTraitUses(d.node, source), ns, imports)
		}
		decls = append(decls, decl)
	}

	return decls
}

// namespaceAt returns the namespace in effect at a byte offset: the braced
// namespace containing it, or the last statement-form namespace before it.
func namespaceAt(spans []namespaceSpan, offset uint32) string {
	current := ""
	for _, s := range spans {
		if s.start > offset {
			break
		}
		if s.braced {
			if offset < s.end {
				return s.name
			}
			continue
		}
		current = s.name
	}
	return current
}

// collectImports maps lower-cased aliases to fully qualified names from
// "use A\B\C;" and "use A\B\C as D;" statements.
func collectImports(nodes []*sitter.Node, source []byte) map[string]string {
	imports := make(map[string]string)
	for _, decl := range nodes {
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			clause := decl.NamedChild(i)
			if clause.Type() != "namespace_use_clause" {
				continue
			}
			var target, alias string
			for j := 0; j < int(clause.NamedChildCount()); j++ {
				child := clause.NamedChild(j)
				switch child.Type() {
				case "qualified_name", "name":
					if target == "" {
						target = lang.NodeText(child, source)
					} else {
						alias = lang.NodeText(child, source)
					}
				case "namespace_aliasing_clause":
					if n := lang.ChildOfType(child, "name"); n != nil {
						alias = lang.NodeText(n, source)
					}
				}
			}
			if target == "" {
				continue
			}
			target = strings.TrimPrefix(target, `\`)
			if alias == "" {
				alias = shortName(target)
			}
			imports[strings.ToLower(alias)] = target
		}
	}
	return imports
}

func resolveAll(names []string, ns string, imports map[string]string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, ResolveName(n, ns, imports))
	}
	return out
}

// ResolveName qualifies a class name as written in source against the
// current namespace and imports.
func ResolveName(name, ns string, imports map[string]string) string {
	if strings.HasPrefix(name, `\`) {
		return name[1:]
	}
	if strings.HasPrefix(strings.ToLower(name), `namespace\`) {
		return qualify(ns, name[len(`namespace\`):])
	}
	first, rest, nested := strings.Cut(name, `\`)
	if target, ok := imports[strings.ToLower(first)]; ok {
		if nested {
			return target + `\` + rest
		}
		return target
	}
	return qualify(ns, name)
}

func qualify(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + `\` + name
}

func shortName(name string) string {
	if i := strings.LastIndex(name, `\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
