package generate

import (
	"context"

	"portforge/internal/artifact"
	"portforge/internal/symbolgraph"
)

// Phase names one step of the generation sequence.
type Phase string

const (
	PhaseBindings       Phase = "bindings"
	PhaseTest           Phase = "test"
	PhaseImplementation Phase = "implementation"
)

// Request asks a collaborator for the artifact set of one unit.
type Request struct {
	Unit *symbolgraph.Unit
	// Attempt is 1-based; attempts after the first carry Feedback from the
	// previous failure.
	Attempt  int
	Feedback string
	// VerifiedDeps lists the unit IDs of already-ported dependencies so the
	// collaborator knows which Rust symbols it may call.
	VerifiedDeps []string
}

// Collaborator turns a request into a complete artifact set.
type Collaborator interface {
	Generate(ctx context.Context, req Request) (artifact.Set, error)
}
