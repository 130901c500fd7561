// Package resolver answers signature and class hierarchy lookups for trace
// targets from an index of parsed PHP declarations.
package resolver

import (
	"sort"
	"strings"

	"github.com/phobologic/phpconsistent/internal/docblock"
	"github.com/phobologic/phpconsistent/internal/graph"
	"github.com/phobologic/phpconsistent/internal/model"
)

// Index is an immutable lookup table over declarations. It is safe for
// concurrent use once built.
type Index struct {
	functions   map[string]*model.Declaration
	methods     map[string]map[string]*model.Declaration
	hierarchies map[string]model.Hierarchy
	traits      map[string][]string
	edges       []graph.Edge
	callables   []model.Declaration
}

// NewIndex builds an index from declarations. When a name is declared more
// than once the first declaration wins.
func NewIndex(decls []model.Declaration) *Index {
	ix := &Index{
		functions:   make(map[string]*model.Declaration),
		methods:     make(map[string]map[string]*model.Declaration),
		hierarchies: graph.Hierarchies(decls),
		traits:      make(map[string][]string),
		edges:       graph.BuildEdges(decls),
	}
	owned := make([]model.Declaration, len(decls))
	copy(owned, decls)

	for i := range owned {
		d := &owned[i]
		switch d.Kind {
		case model.Class, model.Trait:
			k := graph.Key(d.Name)
			if _, dup := ix.traits[k]; !dup && len(d.Traits) > 0 {
				ix.traits[k] = d.Traits
			}
		case model.Function:
			k := graph.Key(d.Name)
			if _, dup := ix.functions[k]; !dup {
				ix.functions[k] = d
				ix.callables = append(ix.callables, *d)
			}
		case model.Method:
			ck := graph.Key(d.Class)
			if ix.methods[ck] == nil {
				ix.methods[ck] = make(map[string]*model.Declaration)
			}
			mk := strings.ToLower(d.Name)
			if _, dup := ix.methods[ck][mk]; !dup {
				ix.methods[ck][mk] = d
				ix.callables = append(ix.callables, *d)
			}
		}
	}

	sort.SliceStable(ix.callables, func(i, j int) bool {
		return TargetID(ix.callables[i]) < TargetID(ix.callables[j])
	})
	return ix
}

// Classes returns the number of indexed classes and interfaces.
func (ix *Index) Classes() int {
	return len(ix.hierarchies)
}

// Edges returns the direct inheritance relations of the indexed classes.
func (ix *Index) Edges() []graph.Edge {
	out := make([]graph.Edge, len(ix.edges))
	copy(out, ix.edges)
	return out
}

// Len returns the number of indexed functions and methods.
func (ix *Index) Len() int {
	return len(ix.callables)
}

// Callables returns the indexed functions and methods ordered by target id.
func (ix *Index) Callables() []model.Declaration {
	out := make([]model.Declaration, len(ix.callables))
	copy(out, ix.callables)
	return out
}

// Lookup finds the declaration that defines a target id. Methods not
// declared on the named class are looked up in the traits it uses, then
// along its ancestors (and their traits), then on its interfaces.
func (ix *Index) Lookup(targetID string) (model.Declaration, bool) {
	if unresolvable(targetID) {
		return model.Declaration{}, false
	}
	t := model.ParseTarget(targetID)
	if !t.IsMethod() {
		d, ok := ix.functions[graph.Key(t.Function)]
		if !ok {
			return model.Declaration{}, false
		}
		return *d, true
	}

	mk := strings.ToLower(t.Function)
	classKey := graph.Key(t.Class)
	if d, ok := ix.methodOf(classKey, mk, nil); ok {
		return *d, true
	}
	h := ix.hierarchies[classKey]
	for _, ancestor := range h.Ancestors {
		if d, ok := ix.methodOf(graph.Key(ancestor), mk, nil); ok {
			return *d, true
		}
	}
	// Abstract methods documented only on an interface.
	for _, iface := range h.Implements {
		if d, ok := ix.methods[graph.Key(iface)][mk]; ok {
			return *d, true
		}
	}
	return model.Declaration{}, false
}

// methodOf finds a method declared on a class or trait, or on the traits it
// uses, recursively. seen guards against trait cycles.
func (ix *Index) methodOf(classKey, method string, seen map[string]bool) (*model.Declaration, bool) {
	if d, ok := ix.methods[classKey][method]; ok {
		return d, true
	}
	uses := ix.traits[classKey]
	if len(uses) == 0 {
		return nil, false
	}
	if seen == nil {
		seen = make(map[string]bool)
	}
	seen[classKey] = true
	for _, trait := range uses {
		tk := graph.Key(trait)
		if seen[tk] {
			continue
		}
		if d, ok := ix.methodOf(tk, method, seen); ok {
			return d, true
		}
	}
	return nil, false
}

// Resolve returns the declared signature of a target id. Targets without a
// source declaration (built-ins, closures, "{main}", includes) report false.
func (ix *Index) Resolve(targetID string) (model.Signature, bool) {
	d, ok := ix.Lookup(targetID)
	if !ok {
		return model.Signature{}, false
	}
	return docblock.Signature(docblock.Parse(d.Doc), d.Params), true
}

// HierarchyOf returns the ancestors and implemented interfaces of a class.
func (ix *Index) HierarchyOf(class string) (model.Hierarchy, bool) {
	h, ok := ix.hierarchies[graph.Key(class)]
	return h, ok
}

func unresolvable(targetID string) bool {
	switch {
	case targetID == "", strings.HasPrefix(targetID, "{"):
		return true
	case strings.Contains(targetID, "{closure"):
		return true
	}
	switch strings.ToLower(targetID) {
	case "include", "include_once", "require", "require_once", "eval":
		return true
	}
	return false
}

// TargetID returns the trace-style target id of a function or method declaration.
func TargetID(d model.Declaration) string {
	if d.Kind == model.Method {
		return d.Class + "->" + d.Name
	}
	return d.Name
}
