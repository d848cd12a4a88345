package symbolgraph_test

import (
	"errors"
	"reflect"
	"testing"

	"portforge/internal/facts"
	"portforge/internal/services"
	"portforge/internal/symbolgraph"
)

func record(name, file string, line int, deps ...string) facts.Record {
	return facts.Record{
		Name:         name,
		Kind:         facts.KindFunction,
		File:         file,
		Line:         line,
		Dependencies: deps,
	}
}

func TestBuildLinearChainOrder(t *testing.T) {
	g, err := symbolgraph.Build([]facts.Record{
		record("c", "main.c", 30, "b"),
		record("a", "main.c", 10),
		record("b", "main.c", 20, "a"),
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	want := []string{"a", "b", "c"}
	if got := g.Order(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: got %v want %v", got, want)
	}
	if got := g.Dependencies("c"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("unexpected dependencies of c: %v", got)
	}
	if got := g.Dependents("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("unexpected dependents of a: %v", got)
	}
}

func TestBuildCollapsesCycle(t *testing.T) {
	g, err := symbolgraph.Build([]facts.Record{
		record("parse_expr", "parse.c", 10, "parse_term"),
		record("parse_term", "parse.c", 50, "parse_expr"),
		record("lex", "lex.c", 5),
		record("eval", "eval.c", 8, "parse_expr"),
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if g.Len() != 3 {
		t.Fatalf("expected 3 units, got %d", g.Len())
	}

	unit, ok := g.Unit("cycle:parse_expr")
	if !ok {
		t.Fatalf("expected cycle unit, have order %v", g.Order())
	}
	if !unit.IsCycle() {
		t.Fatal("expected unit to report as cycle")
	}
	if got := unit.Names(); !reflect.DeepEqual(got, []string{"parse_expr", "parse_term"}) {
		t.Fatalf("unexpected cycle members: %v", got)
	}

	if got := g.Dependencies("eval"); !reflect.DeepEqual(got, []string{"cycle:parse_expr"}) {
		t.Fatalf("expected eval to depend on the cycle unit, got %v", got)
	}

	order := g.Order()
	if order[len(order)-1] != "eval" {
		t.Fatalf("expected eval last, got %v", order)
	}
}

func TestBuildSelfCycleStaysSingleUnit(t *testing.T) {
	g, err := symbolgraph.Build([]facts.Record{
		record("recurse", "a.c", 1, "recurse"),
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	unit, ok := g.Unit("recurse")
	if !ok {
		t.Fatalf("expected single unit, have %v", g.Order())
	}
	if unit.IsCycle() {
		t.Fatal("self-recursive symbol must not become a cycle unit")
	}
	if deps := g.Dependencies("recurse"); len(deps) != 0 {
		t.Fatalf("expected no dependencies, got %v", deps)
	}
}

func TestBuildRejectsDanglingDependency(t *testing.T) {
	_, err := symbolgraph.Build([]facts.Record{
		record("a", "a.c", 1, "ghost"),
	})
	if err == nil {
		t.Fatal("expected error for dangling dependency")
	}
	if !errors.Is(err, services.ErrMalformedGraph) {
		t.Fatalf("expected malformed graph marker, got %v", err)
	}
}

func TestBuildRejectsDuplicateSymbol(t *testing.T) {
	_, err := symbolgraph.Build([]facts.Record{
		record("a", "a.c", 1),
		record("a", "b.c", 2),
	})
	if !errors.Is(err, services.ErrMalformedGraph) {
		t.Fatalf("expected malformed graph marker, got %v", err)
	}
}

func TestOrderIsDeterministicAcrossInputPermutations(t *testing.T) {
	records := []facts.Record{
		record("d", "z.c", 4, "b", "c"),
		record("c", "m.c", 3, "a"),
		record("b", "m.c", 2, "a"),
		record("a", "a.c", 1),
	}

	first, err := symbolgraph.Build(records)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	permuted := []facts.Record{records[2], records[0], records[3], records[1]}
	second, err := symbolgraph.Build(permuted)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if !reflect.DeepEqual(first.Order(), second.Order()) {
		t.Fatalf("order differs across permutations: %v vs %v", first.Order(), second.Order())
	}

	// b and c both become ready after a; the tie breaks by source position.
	want := []string{"a", "b", "c", "d"}
	if got := first.Order(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: got %v want %v", got, want)
	}
}

func TestTransitiveDependents(t *testing.T) {
	g, err := symbolgraph.Build([]facts.Record{
		record("a", "a.c", 1),
		record("b", "b.c", 1, "a"),
		record("c", "c.c", 1, "b"),
		record("d", "d.c", 1, "a"),
		record("e", "e.c", 1),
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	if got := g.TransitiveDependents("a"); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Fatalf("unexpected transitive dependents: got %v (order %v)", got, g.Order())
	}
	if got := g.TransitiveDependents("e"); len(got) != 0 {
		t.Fatalf("expected no dependents for e, got %v", got)
	}
}

func TestCycleKindPrefersFunction(t *testing.T) {
	g, err := symbolgraph.Build([]facts.Record{
		{Name: "node", Kind: facts.KindStruct, File: "t.h", Line: 1, Dependencies: []string{"walk"}},
		{Name: "walk", Kind: facts.KindFunction, File: "t.c", Line: 9, Dependencies: []string{"node"}},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	unit, ok := g.Unit("cycle:node")
	if !ok {
		t.Fatalf("expected cycle unit, have %v", g.Order())
	}
	if unit.Kind() != facts.KindFunction {
		t.Fatalf("expected function kind for mixed cycle, got %q", unit.Kind())
	}
}
