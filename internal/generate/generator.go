package generate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"portforge/internal/artifact"
	"portforge/internal/config"
	"portforge/internal/facts"
	"portforge/internal/logging"
	"portforge/internal/services"
	"portforge/internal/symbolgraph"
)

// PhaseCompleter is the collaborator transport used by the Generator. The
// HTTP client satisfies it; tests substitute a stub.
type PhaseCompleter interface {
	CompleteFiles(ctx context.Context, systemPrompt, userPrompt string) ([]GeneratedFile, error)
}

// Generator drives the phase sequence for a unit and assembles the resulting
// artifact set. Type units produce bindings only; function units additionally
// get a differential fuzz test and a full implementation.
type Generator struct {
	cfg    *config.Config
	client PhaseCompleter
	logger *slog.Logger
}

// NewGenerator constructs a Generator.
func NewGenerator(cfg *config.Config, client PhaseCompleter, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Generator{cfg: cfg, client: client, logger: logger}
}

// Generate implements Collaborator.
func (g *Generator) Generate(ctx context.Context, req Request) (artifact.Set, error) {
	if req.Unit == nil || len(req.Unit.Symbols) == 0 {
		return artifact.Set{}, services.Wrap(services.ErrGenerationIncomplete, "generation", "request", "empty unit", nil)
	}

	phases := []Phase{PhaseBindings}
	if !req.Unit.Kind().IsType() {
		phases = append(phases, PhaseTest, PhaseImplementation)
	}

	paths, err := g.unitPaths(req.Unit.Symbols[0])
	if err != nil {
		return artifact.Set{}, err
	}

	merged := map[string]GeneratedFile{}
	for _, phase := range phases {
		logger := logging.WithContext(services.WithPhase(ctx, string(phase)), g.logger)
		logger.Debug("requesting generation phase",
			logging.String(logging.FieldUnitID, req.Unit.ID),
			logging.Int("attempt", req.Attempt))

		files, err := g.client.CompleteFiles(ctx, systemPrompt(phase), userPrompt(promptInput{
			unit:         req.Unit,
			phase:        phase,
			feedback:     req.Feedback,
			verifiedDeps: req.VerifiedDeps,
			srcPath:      paths.src,
			ffiPath:      paths.ffi,
			fuzzPath:     paths.fuzz,
		}))
		if err != nil {
			if ctx.Err() != nil {
				return artifact.Set{}, ctx.Err()
			}
			return artifact.Set{}, services.Wrap(services.ErrRunner, "generation", string(phase), "collaborator request failed", err)
		}

		for _, file := range files {
			cleaned, err := sanitizeResponsePath(file.Path)
			if err != nil {
				return artifact.Set{}, services.Wrap(services.ErrGenerationIncomplete, "generation", string(phase), err.Error(), nil)
			}
			file.Path = cleaned
			merged[cleaned] = file
		}

		if err := checkPhaseComplete(phase, req.Unit, paths, merged); err != nil {
			return artifact.Set{}, err
		}
	}

	set := artifact.Set{UnitID: req.Unit.ID}
	for _, rel := range sortedKeys(merged) {
		file := merged[rel]
		set.Files = append(set.Files, artifact.File{
			Path:     filepath.Join(g.cfg.Paths.WorkspaceDir, filepath.FromSlash(rel)),
			Contents: []byte(file.Contents),
		})
	}
	return set, nil
}

type unitPaths struct {
	src, ffi, fuzz string
}

func (g *Generator) unitPaths(first facts.Record) (unitPaths, error) {
	src, err := g.workspaceRel(g.cfg.RustSrcPathForFile(first.File))
	if err != nil {
		return unitPaths{}, err
	}
	ffi, err := g.workspaceRel(g.cfg.RustFFIPath())
	if err != nil {
		return unitPaths{}, err
	}
	fuzz, err := g.workspaceRel(g.cfg.FuzzTargetPathForSymbol(first.Name))
	if err != nil {
		return unitPaths{}, err
	}
	return unitPaths{src: src, ffi: ffi, fuzz: fuzz}, nil
}

func (g *Generator) workspaceRel(abs string) (string, error) {
	rel, err := filepath.Rel(g.cfg.Paths.WorkspaceDir, abs)
	if err != nil {
		return "", fmt.Errorf("resolve workspace path %q: %w", abs, err)
	}
	return filepath.ToSlash(rel), nil
}

// sanitizeResponsePath validates a collaborator-supplied path and normalizes
// it to a slash-separated workspace-relative form.
func sanitizeResponsePath(path string) (string, error) {
	cleaned := filepath.ToSlash(filepath.Clean(strings.TrimSpace(path)))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("empty file path in response")
	}
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("file path %q escapes the workspace", path)
	}
	return cleaned, nil
}

func checkPhaseComplete(phase Phase, unit *symbolgraph.Unit, paths unitPaths, merged map[string]GeneratedFile) error {
	requireSymbols := func(rel, label string) error {
		file, ok := merged[rel]
		if !ok {
			return services.Wrap(services.ErrGenerationIncomplete, "generation", string(phase),
				fmt.Sprintf("%s %s missing from response", label, rel), nil)
		}
		if strings.TrimSpace(file.Contents) == "" {
			return services.Wrap(services.ErrGenerationIncomplete, "generation", string(phase),
				fmt.Sprintf("%s %s is empty", label, rel), nil)
		}
		for _, name := range unit.Names() {
			if !strings.Contains(file.Contents, name) {
				return services.Wrap(services.ErrGenerationIncomplete, "generation", string(phase),
					fmt.Sprintf("symbol %q not found in %s", name, rel), nil)
			}
		}
		return nil
	}

	switch phase {
	case PhaseBindings:
		if err := requireSymbols(paths.src, "rust source"); err != nil {
			return err
		}
		return requireSymbols(paths.ffi, "ffi bindings")
	case PhaseTest:
		return requireSymbols(paths.fuzz, "fuzz test")
	default:
		if err := requireSymbols(paths.src, "rust source"); err != nil {
			return err
		}
		if strings.Contains(merged[paths.src].Contents, "unimplemented!(") {
			return services.Wrap(services.ErrGenerationIncomplete, "generation", string(phase),
				fmt.Sprintf("implementation in %s still contains unimplemented!()", paths.src), nil)
		}
		return nil
	}
}

func sortedKeys(m map[string]GeneratedFile) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
