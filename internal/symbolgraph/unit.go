package symbolgraph

import (
	"sort"

	"portforge/internal/facts"
)

// CycleIDPrefix marks unit IDs that name a collapsed cycle.
const CycleIDPrefix = "cycle:"

// Unit is one schedulable porting step: either a single symbol or a collapsed
// cycle of mutually dependent symbols. Symbols inside a unit are ordered by
// source position.
type Unit struct {
	ID      string
	Symbols []facts.Record
}

// IsCycle reports whether the unit holds more than one symbol.
func (u *Unit) IsCycle() bool {
	return len(u.Symbols) > 1
}

// Names returns the member symbol names in source order.
func (u *Unit) Names() []string {
	names := make([]string, len(u.Symbols))
	for i, sym := range u.Symbols {
		names[i] = sym.Name
	}
	return names
}

// Kind returns the dominant kind of the unit. A cycle that contains any
// function member is treated as a function unit so it gets a differential
// test; pure type cycles stay type units.
func (u *Unit) Kind() facts.Kind {
	kind := u.Symbols[0].Kind
	for _, sym := range u.Symbols {
		if !sym.Kind.IsType() {
			return sym.Kind
		}
	}
	return kind
}

// sourceKey orders symbols by (file, line, name).
type sourceKey struct {
	file string
	line int
	name string
}

func keyOf(record facts.Record) sourceKey {
	return sourceKey{file: record.File, line: record.Line, name: record.Name}
}

func (a sourceKey) less(b sourceKey) bool {
	if a.file != b.file {
		return a.file < b.file
	}
	if a.line != b.line {
		return a.line < b.line
	}
	return a.name < b.name
}

func sortBySource(records []facts.Record) {
	sort.Slice(records, func(i, j int) bool {
		return keyOf(records[i]).less(keyOf(records[j]))
	})
}

func newUnit(members []facts.Record) *Unit {
	sortBySource(members)
	unit := &Unit{Symbols: members}
	if len(members) > 1 {
		unit.ID = CycleIDPrefix + members[0].Name
	} else {
		unit.ID = members[0].Name
	}
	return unit
}

// sortKey is the unit's position for deterministic ordering: the source key
// of its first member.
func (u *Unit) sortKey() sourceKey {
	return keyOf(u.Symbols[0])
}
