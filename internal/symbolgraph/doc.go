// Package symbolgraph builds a dependency graph over extracted C symbols and
// condenses it into processing units. Mutually recursive symbols collapse
// into a single cycle unit; the resulting unit graph is acyclic and carries a
// deterministic topological order so repeated runs over the same facts visit
// units identically.
package symbolgraph
