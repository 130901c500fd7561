package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"
)

func init() {
	Languages["php"] = &Language{
		Name:       "php",
		Extensions: []string{".php", ".inc", ".phtml"},
		lang:       php.GetLanguage(),
	}
}

// PHPDocComment returns the doc comment ("/** ... */") directly preceding a
// declaration node, or "".
func PHPDocComment(node *sitter.Node, source []byte) string {
	prev := node.PrevNamedSibling()
	if prev == nil || prev.Type() != "comment" {
		return ""
	}
	text := NodeText(prev, source)
	if !strings.HasPrefix(text, "/**") {
		return ""
	}
	return text
}

// PHPParameterNames returns the "$name" of each formal parameter of a
// function or method declaration, in order.
func PHPParameterNames(node *sitter.Node, source []byte) []string {
	params := ChildOfType(node, "formal_parameters")
	if params == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "simple_parameter", "variadic_parameter", "property_promotion_parameter":
			if v := ChildOfType(p, "variable_name"); v != nil {
				names = append(names, NodeText(v, source))
			}
		}
	}
	return names
}

// PHPEnclosingClassLike returns the class, interface or trait declaration
// that owns a method declaration.
func PHPEnclosingClassLike(node *sitter.Node) *sitter.Node {
	for current := node.Parent(); current != nil; current = current.Parent() {
		switch current.Type() {
		case "class_declaration", "interface_declaration", "trait_declaration":
			return current
		case "function_definition", "program":
			return nil
		}
	}
	return nil
}

// PHPTypeNames returns the class names listed in a clause node such as
// base_clause or class_interface_clause, as written in source.
func PHPTypeNames(clause *sitter.Node, source []byte) []string {
	if clause == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "name", "qualified_name":
			names = append(names, NodeText(child, source))
		}
	}
	return names
}

// PHPTraitUses returns the trait names of the "use" statements in the body of
// a class or trait declaration, as written in source.
func PHPTraitUses(node *sitter.Node, source []byte) []string {
	body := ChildOfType(node, "declaration_list")
	if body == nil {
		return nil
	}
	var names []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if child := body.NamedChild(i); child.Type() == "use_declaration" {
			names = append(names, PHPTypeNames(child, source)...)
		}
	}
	return names
}
