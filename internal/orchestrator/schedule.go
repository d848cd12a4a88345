package orchestrator

import (
	"sort"

	"portforge/internal/checkpoint"
	"portforge/internal/symbolgraph"
)

type unitState int

const (
	statePending unitState = iota
	stateRunning
	stateVerified
	stateFailed
	stateBlocked
)

// schedule tracks dispatch state for every unit in topological order.
// Units become ready once all their dependencies are verified. A terminal
// failure blocks every transitive dependent without dispatching it.
type schedule struct {
	graph     *symbolgraph.Graph
	state     map[string]unitState
	remaining map[string]int
	topoIndex map[string]int
	ready     []string
	blockedBy map[string]string
}

func newSchedule(graph *symbolgraph.Graph, records []*checkpoint.Record, maxAttempts int) *schedule {
	s := &schedule{
		graph:     graph,
		state:     make(map[string]unitState, graph.Len()),
		remaining: make(map[string]int, graph.Len()),
		topoIndex: make(map[string]int, graph.Len()),
		blockedBy: make(map[string]string),
	}
	for i, id := range graph.Order() {
		s.topoIndex[id] = i
		s.state[id] = statePending
		s.remaining[id] = len(graph.Dependencies(id))
	}

	prior := make(map[string]*checkpoint.Record, len(records))
	for _, record := range records {
		if _, ok := s.state[record.UnitID]; ok {
			prior[record.UnitID] = record
		}
	}

	// Seed results from a previous run in topological order so dependency
	// counts settle before readiness is evaluated. A failed unit with
	// defect budget left stays pending and is redispatched.
	for _, id := range s.graph.Order() {
		record := prior[id]
		if record == nil {
			continue
		}
		switch record.Status {
		case checkpoint.StatusVerified:
			s.markVerified(id)
		case checkpoint.StatusFailed:
			if s.state[id] == statePending && record.Attempt >= maxAttempts {
				s.state[id] = stateFailed
				s.blockDependents(id)
			}
		}
	}
	s.refreshReady()
	return s
}

// next pops the ready unit with the smallest topological index. Entries
// that were blocked or failed after being queued are discarded.
func (s *schedule) next() (string, bool) {
	for len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		if s.state[id] != statePending {
			continue
		}
		s.state[id] = stateRunning
		return id, true
	}
	return "", false
}

func (s *schedule) markVerified(id string) {
	if s.state[id] == stateVerified {
		return
	}
	s.state[id] = stateVerified
	changed := false
	for _, dep := range s.graph.Dependents(id) {
		s.remaining[dep]--
		if s.remaining[dep] == 0 && s.state[dep] == statePending {
			s.ready = append(s.ready, dep)
			changed = true
		}
	}
	if changed {
		s.sortReady()
	}
}

func (s *schedule) markFailed(id string) []string {
	s.state[id] = stateFailed
	return s.blockDependents(id)
}

// blockDependents marks every transitive dependent that has not already
// reached a terminal state. It returns the newly blocked unit IDs.
func (s *schedule) blockDependents(rootID string) []string {
	var blocked []string
	for _, dep := range s.graph.TransitiveDependents(rootID) {
		switch s.state[dep] {
		case statePending:
			s.state[dep] = stateBlocked
			s.blockedBy[dep] = rootID
			blocked = append(blocked, dep)
		}
	}
	return blocked
}

func (s *schedule) refreshReady() {
	for id, st := range s.state {
		if st == statePending && s.remaining[id] == 0 && !s.queued(id) {
			s.ready = append(s.ready, id)
		}
	}
	s.sortReady()
}

func (s *schedule) sortReady() {
	sort.Slice(s.ready, func(i, j int) bool {
		return s.topoIndex[s.ready[i]] < s.topoIndex[s.ready[j]]
	})
}

func (s *schedule) queued(id string) bool {
	for _, queued := range s.ready {
		if queued == id {
			return true
		}
	}
	return false
}

// verifiedDeps returns the symbol names of the unit's verified dependencies,
// sorted, for inclusion in generation prompts.
func (s *schedule) verifiedDeps(id string) []string {
	var names []string
	for _, dep := range s.graph.Dependencies(id) {
		if s.state[dep] != stateVerified {
			continue
		}
		if unit, ok := s.graph.Unit(dep); ok {
			names = append(names, unit.Names()...)
		}
	}
	sort.Strings(names)
	return names
}

func (s *schedule) count(st unitState) int {
	n := 0
	for _, current := range s.state {
		if current == st {
			n++
		}
	}
	return n
}
