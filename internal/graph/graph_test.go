package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/phpconsistent/internal/model"
)

func class(name string, extends string, implements ...string) model.Declaration {
	d := model.Declaration{Kind: model.Class, Name: name, Implements: implements}
	if extends != "" {
		d.Extends = []string{extends}
	}
	return d
}

func iface(name string, extends ...string) model.Declaration {
	return model.Declaration{Kind: model.Interface, Name: name, Extends: extends}
}

func TestHierarchiesTransitive(t *testing.T) {
	t.Parallel()

	decls := []model.Declaration{
		iface("Countable"),
		iface(`App\Store`, "Countable"),
		class(`App\Base`, "", `App\Store`),
		class(`App\Middle`, `App\Base`),
		class(`App\Leaf`, `App\Middle`, "Stringable"),
	}

	h := Hierarchies(decls)

	leaf, ok := h[`app\leaf`]
	if !ok {
		t.Fatalf("leaf hierarchy missing: %v", h)
	}
	if diff := cmp.Diff([]string{`App\Middle`, `App\Base`}, leaf.Ancestors); diff != "" {
		t.Errorf("ancestors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Stringable", `App\Store`, "Countable"}, leaf.Implements); diff != "" {
		t.Errorf("implements mismatch (-want +got):\n%s", diff)
	}

	store := h[`app\store`]
	if len(store.Ancestors) != 0 {
		t.Errorf("interface ancestors = %v", store.Ancestors)
	}
	if diff := cmp.Diff([]string{"Countable"}, store.Implements); diff != "" {
		t.Errorf("interface parents mismatch (-want +got):\n%s", diff)
	}
}

func TestHierarchiesUnknownParent(t *testing.T) {
	t.Parallel()

	h := Hierarchies([]model.Declaration{class("MyError", `\RuntimeException`)})
	got := h["myerror"]
	if diff := cmp.Diff([]string{"RuntimeException"}, got.Ancestors); diff != "" {
		t.Errorf("ancestors mismatch (-want +got):\n%s", diff)
	}
}

func TestHierarchiesCycle(t *testing.T) {
	t.Parallel()

	decls := []model.Declaration{
		class("A", "B"),
		class("B", "A"),
		iface("I", "J"),
		iface("J", "I"),
	}

	h := Hierarchies(decls)
	if diff := cmp.Diff([]string{"B"}, h["a"].Ancestors); diff != "" {
		t.Errorf("A ancestors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"J"}, h["i"].Implements); diff != "" {
		t.Errorf("I parents mismatch (-want +got):\n%s", diff)
	}
}

func TestHierarchiesSkipsTraitsAndFunctions(t *testing.T) {
	t.Parallel()

	decls := []model.Declaration{
		{Kind: model.Trait, Name: "Greets"},
		{Kind: model.Function, Name: "helper"},
		{Kind: model.Method, Name: "run", Class: "Job"},
	}
	if h := Hierarchies(decls); len(h) != 0 {
		t.Errorf("expected no hierarchies, got %v", h)
	}
}

func TestHierarchiesFirstDeclarationWins(t *testing.T) {
	t.Parallel()

	decls := []model.Declaration{
		class("Dup", "First"),
		class("dup", "Second"),
	}
	if diff := cmp.Diff([]string{"First"}, Hierarchies(decls)["dup"].Ancestors); diff != "" {
		t.Errorf("ancestors mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildEdges(t *testing.T) {
	t.Parallel()

	decls := []model.Declaration{
		class("Child", "Parent", "Iface"),
		iface("Iface", "Base"),
	}
	want := []Edge{
		{Child: "Child", Parent: "Iface", Interface: true},
		{Child: "Child", Parent: "Parent"},
		{Child: "Iface", Parent: "Base", Interface: true},
	}
	if diff := cmp.Diff(want, BuildEdges(decls)); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	if got := Key(`\App\Foo`); got != `app\foo` {
		t.Errorf("Key = %q", got)
	}
}
