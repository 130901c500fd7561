// Package graph builds the class inheritance graph of a PHP code base.
package graph

import (
	"sort"
	"strings"

	"github.com/phobologic/phpconsistent/internal/model"
)

// Edge is a single inheritance relation: Child extends or implements Parent.
type Edge struct {
	Child     string
	Parent    string
	Interface bool
}

type node struct {
	name       string
	kind       model.DeclKind
	extends    []string
	implements []string
}

// Key normalizes a class name for lookups. PHP class names are
// case-insensitive and may be written with a leading backslash.
func Key(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, `\`))
}

func index(decls []model.Declaration) map[string]*node {
	nodes := make(map[string]*node)
	for i := range decls {
		d := &decls[i]
		switch d.Kind {
		case model.Class, model.Interface, model.Trait:
		default:
			continue
		}
		k := Key(d.Name)
		if _, dup := nodes[k]; dup {
			continue // first declaration wins
		}
		nodes[k] = &node{name: d.Name, kind: d.Kind, extends: d.Extends, implements: d.Implements}
	}
	return nodes
}

// BuildEdges returns the direct inheritance edges, sorted for deterministic output.
func BuildEdges(decls []model.Declaration) []Edge {
	nodes := index(decls)
	var edges []Edge
	for _, n := range nodes {
		for _, p := range n.extends {
			edges = append(edges, Edge{Child: n.name, Parent: p, Interface: n.kind == model.Interface})
		}
		for _, p := range n.implements {
			edges = append(edges, Edge{Child: n.name, Parent: p, Interface: true})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Child != edges[j].Child {
			return edges[i].Child < edges[j].Child
		}
		return edges[i].Parent < edges[j].Parent
	})
	return edges
}

// Hierarchies computes, for every class and interface, its transitive
// ancestors (nearest first) and every interface it implements, including
// interfaces inherited from ancestors and parent interfaces. Keys are
// normalized with Key. Cycles in malformed code are cut.
func Hierarchies(decls []model.Declaration) map[string]model.Hierarchy {
	nodes := index(decls)
	out := make(map[string]model.Hierarchy, len(nodes))
	for k, n := range nodes {
		if n.kind == model.Trait {
			continue
		}
		out[k] = hierarchyOf(n, nodes)
	}
	return out
}

func hierarchyOf(start *node, nodes map[string]*node) model.Hierarchy {
	var h model.Hierarchy
	seenIface := make(map[string]struct{})

	addInterfaces := func(names []string) {
		queue := append([]string(nil), names...)
		for len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]
			k := Key(name)
			if _, dup := seenIface[k]; dup {
				continue
			}
			seenIface[k] = struct{}{}
			h.Implements = append(h.Implements, displayName(name, nodes))
			if n, ok := nodes[k]; ok {
				queue = append(queue, n.extends...)
			}
		}
	}

	if start.kind == model.Interface {
		seenIface[Key(start.name)] = struct{}{}
		addInterfaces(start.extends)
		return h
	}

	visited := map[string]struct{}{Key(start.name): {}}
	addInterfaces(start.implements)
	current := start
	for len(current.extends) > 0 {
		parent := current.extends[0]
		k := Key(parent)
		if _, loop := visited[k]; loop {
			break
		}
		visited[k] = struct{}{}
		h.Ancestors = append(h.Ancestors, displayName(parent, nodes))
		next, ok := nodes[k]
		if !ok {
			break
		}
		addInterfaces(next.implements)
		current = next
	}
	return h
}

// displayName prefers the spelling used at the declaration site.
func displayName(name string, nodes map[string]*node) string {
	if n, ok := nodes[Key(name)]; ok {
		return n.name
	}
	return strings.TrimPrefix(name, `\`)
}
