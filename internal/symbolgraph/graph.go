package symbolgraph

import (
	"fmt"
	"sort"

	"portforge/internal/facts"
	"portforge/internal/services"
)

// Graph is the condensed, acyclic processing-unit graph over a set of symbol
// records. All accessors return data in the graph's deterministic order.
type Graph struct {
	units      map[string]*Unit
	deps       map[string][]string
	dependents map[string][]string
	order      []string
}

// Build condenses symbol records into a unit graph. Every dependency must
// name a record in the input; a dependency on an undefined symbol makes the
// graph malformed.
func Build(records []facts.Record) (*Graph, error) {
	if len(records) == 0 {
		return &Graph{
			units:      map[string]*Unit{},
			deps:       map[string][]string{},
			dependents: map[string][]string{},
		}, nil
	}

	byName := make(map[string]facts.Record, len(records))
	for _, record := range records {
		if _, dup := byName[record.Name]; dup {
			return nil, fmt.Errorf("%w: symbol %q defined twice", services.ErrMalformedGraph, record.Name)
		}
		byName[record.Name] = record
	}

	adjacency := make(map[string][]string, len(records))
	for _, record := range records {
		deps := make([]string, 0, len(record.Dependencies))
		for _, dep := range record.Dependencies {
			if dep == record.Name {
				continue
			}
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("%w: symbol %q depends on undefined symbol %q", services.ErrMalformedGraph, record.Name, dep)
			}
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		adjacency[record.Name] = deps
	}

	sorted := make([]facts.Record, len(records))
	copy(sorted, records)
	sortBySource(sorted)
	names := make([]string, len(sorted))
	for i, record := range sorted {
		names[i] = record.Name
	}

	g := &Graph{
		units:      make(map[string]*Unit),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}

	unitOf := make(map[string]string, len(records))
	for _, component := range stronglyConnected(names, adjacency) {
		members := make([]facts.Record, len(component))
		for i, name := range component {
			members[i] = byName[name]
		}
		unit := newUnit(members)
		g.units[unit.ID] = unit
		for _, member := range unit.Symbols {
			unitOf[member.Name] = unit.ID
		}
	}

	for id, unit := range g.units {
		depSet := map[string]struct{}{}
		for _, member := range unit.Symbols {
			for _, dep := range adjacency[member.Name] {
				target := unitOf[dep]
				if target == id {
					continue
				}
				depSet[target] = struct{}{}
			}
		}
		deps := make([]string, 0, len(depSet))
		for target := range depSet {
			deps = append(deps, target)
		}
		sort.Strings(deps)
		g.deps[id] = deps
		for _, target := range deps {
			g.dependents[target] = append(g.dependents[target], id)
		}
	}
	for id := range g.dependents {
		sort.Strings(g.dependents[id])
	}

	g.order = g.topologicalOrder()
	return g, nil
}

// topologicalOrder produces a total order over unit IDs: dependencies before
// dependents, ties broken by source position of the unit's first member.
func (g *Graph) topologicalOrder() []string {
	indegree := make(map[string]int, len(g.units))
	for id := range g.units {
		indegree[id] = len(g.deps[id])
	}

	var ready []*Unit
	for id, unit := range g.units {
		if indegree[id] == 0 {
			ready = append(ready, unit)
		}
	}
	sortReady := func() {
		sort.Slice(ready, func(i, j int) bool {
			return ready[i].sortKey().less(ready[j].sortKey())
		})
	}
	sortReady()

	order := make([]string, 0, len(g.units))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next.ID)
		for _, dependent := range g.dependents[next.ID] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, g.units[dependent])
			}
		}
		sortReady()
	}
	return order
}

// Len returns the number of processing units.
func (g *Graph) Len() int {
	return len(g.units)
}

// Order returns unit IDs in dependency order.
func (g *Graph) Order() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Unit looks up a unit by ID.
func (g *Graph) Unit(id string) (*Unit, bool) {
	unit, ok := g.units[id]
	return unit, ok
}

// Units returns all units in dependency order.
func (g *Graph) Units() []*Unit {
	out := make([]*Unit, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.units[id])
	}
	return out
}

// Dependencies returns the unit IDs the given unit depends on.
func (g *Graph) Dependencies(id string) []string {
	out := make([]string, len(g.deps[id]))
	copy(out, g.deps[id])
	return out
}

// Dependents returns the unit IDs that directly depend on the given unit.
func (g *Graph) Dependents(id string) []string {
	out := make([]string, len(g.dependents[id]))
	copy(out, g.dependents[id])
	return out
}

// TransitiveDependents returns every unit downstream of the given unit,
// sorted by the graph's dependency order.
func (g *Graph) TransitiveDependents(id string) []string {
	seen := map[string]struct{}{}
	queue := append([]string(nil), g.dependents[id]...)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		queue = append(queue, g.dependents[next]...)
	}

	out := make([]string, 0, len(seen))
	for _, candidate := range g.order {
		if _, ok := seen[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

// UnitForSymbol returns the unit containing the named symbol.
func (g *Graph) UnitForSymbol(name string) (*Unit, bool) {
	for _, unit := range g.units {
		for _, member := range unit.Symbols {
			if member.Name == name {
				return unit, true
			}
		}
	}
	return nil, false
}
