package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/phpconsistent/internal/model"
)

const addDoc = `/**
 * Adds an item.
 *
 * @param string $sku
 * @param int|null $qty
 * @return bool
 */`

func sampleIndex() *Index {
	return NewIndex([]model.Declaration{
		{Kind: model.Interface, Name: `App\Contracts\Cart`},
		{Kind: model.Method, Name: "clear", Class: `App\Contracts\Cart`, Doc: "/** @return void */"},
		{Kind: model.Class, Name: `App\BaseCart`, Implements: []string{`App\Contracts\Cart`}},
		{Kind: model.Method, Name: "add", Class: `App\BaseCart`, Doc: addDoc, Params: []string{"$sku", "$qty"}},
		{Kind: model.Class, Name: `App\Cart`, Extends: []string{`App\BaseCart`}},
		{Kind: model.Method, Name: "total", Class: `App\Cart`, Doc: "/** @return float */"},
		{Kind: model.Function, Name: `App\format_price`, Doc: "/** @param float $p\n * @return string */", Params: []string{"$p"}},
		{Kind: model.Function, Name: `App\format_price`, Doc: "/** @return int */"},
	})
}

func TestResolveMethod(t *testing.T) {
	t.Parallel()
	ix := sampleIndex()

	sig, ok := ix.Resolve(`App\Cart->total`)
	if !ok {
		t.Fatal("total not resolved")
	}
	if !sig.HasReturn || sig.Return != "float" {
		t.Errorf("return = %q (has=%v)", sig.Return, sig.HasReturn)
	}
}

func TestResolveInherited(t *testing.T) {
	t.Parallel()
	ix := sampleIndex()

	sig, ok := ix.Resolve(`App\Cart->add`)
	if !ok {
		t.Fatal("inherited add not resolved")
	}
	want := []model.Param{{Name: "$sku", Type: "string"}, {Name: "$qty", Type: "int|null"}}
	if diff := cmp.Diff(want, sig.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"$sku", "$qty"}, sig.DefinedParams); diff != "" {
		t.Errorf("defined params mismatch (-want +got):\n%s", diff)
	}

	if _, ok := ix.Resolve(`App\Cart->clear`); !ok {
		t.Error("interface method not resolved through implemented interface")
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	t.Parallel()
	ix := sampleIndex()

	for _, id := range []string{`app\cart->TOTAL`, `\App\Cart::total`, `APP\FORMAT_PRICE`} {
		if _, ok := ix.Resolve(id); !ok {
			t.Errorf("Resolve(%q) failed", id)
		}
	}
}

func TestResolveFirstDeclarationWins(t *testing.T) {
	t.Parallel()

	sig, ok := sampleIndex().Resolve(`App\format_price`)
	if !ok {
		t.Fatal("function not resolved")
	}
	if sig.Return != "string" {
		t.Errorf("return = %q, want string", sig.Return)
	}
}

func TestResolveUnresolvable(t *testing.T) {
	t.Parallel()
	ix := sampleIndex()

	for _, id := range []string{"", "{main}", "strlen", "require_once", "App\\{closure:/app/x.php:3-5}", `App\Missing->add`} {
		if _, ok := ix.Resolve(id); ok {
			t.Errorf("Resolve(%q) unexpectedly succeeded", id)
		}
	}
}

func TestHierarchyOf(t *testing.T) {
	t.Parallel()
	ix := sampleIndex()

	h, ok := ix.HierarchyOf(`\app\cart`)
	if !ok {
		t.Fatal("hierarchy missing")
	}
	if diff := cmp.Diff([]string{`App\BaseCart`}, h.Ancestors); diff != "" {
		t.Errorf("ancestors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{`App\Contracts\Cart`}, h.Implements); diff != "" {
		t.Errorf("implements mismatch (-want +got):\n%s", diff)
	}
	if _, ok := ix.HierarchyOf("Nope"); ok {
		t.Error("unknown class reported a hierarchy")
	}
}

func TestCallables(t *testing.T) {
	t.Parallel()
	ix := sampleIndex()

	var ids []string
	for _, d := range ix.Callables() {
		ids = append(ids, TargetID(d))
	}
	want := []string{
		`App\BaseCart->add`,
		`App\Cart->total`,
		`App\Contracts\Cart->clear`,
		`App\format_price`,
	}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("callables mismatch (-want +got):\n%s", diff)
	}
	if ix.Len() != 4 {
		t.Errorf("Len = %d, want 4", ix.Len())
	}
	if ix.Classes() != 3 {
		t.Errorf("Classes = %d, want 3", ix.Classes())
	}
}

func TestEdges(t *testing.T) {
	t.Parallel()

	edges := sampleIndex().Edges()
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges, got %v", edges)
	}
	if edges[0].Child != `App\BaseCart` || !edges[0].Interface {
		t.Errorf("edge 0 = %+v", edges[0])
	}
	if edges[1].Child != `App\Cart` || edges[1].Parent != `App\BaseCart` || edges[1].Interface {
		t.Errorf("edge 1 = %+v", edges[1])
	}
}

func TestResolveTraitMethod(t *testing.T) {
	t.Parallel()
	ix := NewIndex([]model.Declaration{
		{Kind: model.Trait, Name: `App\Counts`, Traits: []string{`App\Bumps`}},
		{Kind: model.Method, Name: "reset", Class: `App\Counts`, Doc: "/** @return void */"},
		{Kind: model.Trait, Name: `App\Bumps`, Traits: []string{`App\Counts`}},
		{Kind: model.Method, Name: "bump", Class: `App\Bumps`, Doc: "/** @param int $n */", Params: []string{"$n"}},
		{Kind: model.Class, Name: `App\Base`, Traits: []string{`App\Counts`}},
		{Kind: model.Method, Name: "reset", Class: `App\Base`, Doc: "/** @return bool */"},
		{Kind: model.Class, Name: `App\Cart`, Extends: []string{`App\Base`}, Traits: []string{`App\Counts`}},
	})

	sig, ok := ix.Resolve(`App\Cart->bump`)
	if !ok {
		t.Fatal("method of a nested trait not resolved")
	}
	if diff := cmp.Diff([]model.Param{{Name: "$n", Type: "int"}}, sig.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	// The class's own trait wins over the ancestor's method.
	sig, ok = ix.Resolve(`App\Cart->reset`)
	if !ok || sig.Return != "void" {
		t.Errorf("reset = %+v, %v; want trait return void", sig, ok)
	}

	// Ancestors' traits are searched too, and cycles end.
	if _, ok := ix.Resolve(`App\Base->bump`); !ok {
		t.Error("ancestor trait method not resolved")
	}
	if _, ok := ix.Resolve(`App\Cart->missing`); ok {
		t.Error("missing method resolved")
	}
}
