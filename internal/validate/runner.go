package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"portforge/internal/config"
	"portforge/internal/logging"
	"portforge/internal/services"
	"portforge/internal/symbolgraph"
)

// Runner validates artifact sets with cargo and cargo-fuzz.
type Runner struct {
	cfg    *config.Config
	exec   Executor
	logger *slog.Logger
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithExecutor overrides the command executor (useful for tests).
func WithExecutor(executor Executor) RunnerOption {
	return func(r *Runner) {
		if executor != nil {
			r.exec = executor
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner constructs a Runner for the configured workspace.
func NewRunner(cfg *config.Config, opts ...RunnerOption) *Runner {
	runner := &Runner{
		cfg:    cfg,
		exec:   NewExecutor(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Validate judges the currently applied artifact set for a unit. Type units
// pass once the project compiles; function units additionally build and run
// their differential fuzz target.
func (r *Runner) Validate(ctx context.Context, unit *symbolgraph.Unit) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)

	result, err := r.compileProject(ctx)
	if err != nil || result.Verdict != VerdictPass {
		return result, err
	}
	if unit.Kind().IsType() {
		logger.Debug("type unit verified by compilation",
			logging.String(logging.FieldUnitID, unit.ID))
		return Result{Verdict: VerdictPass}, nil
	}

	target := "fuzz_" + unit.Symbols[0].Name
	result, err = r.buildFuzzTarget(ctx, target)
	if err != nil || result.Verdict != VerdictPass {
		return result, err
	}
	return r.runFuzzTarget(ctx, target)
}

func (r *Runner) compileProject(ctx context.Context) (Result, error) {
	timeout := time.Duration(r.cfg.Validation.CompileTimeoutSeconds) * time.Second
	res, err := r.exec.Run(ctx, r.cfg.RustRootPath(), timeout, r.cfg.Validation.CargoBinary, "build")
	if err != nil {
		return runnerResult("compile", err), ctxErr(ctx)
	}
	if res.TimedOut {
		return Result{
			Verdict: VerdictRunnerError,
			Detail:  fmt.Sprintf("cargo build exceeded %s", timeout),
		}, nil
	}
	if res.ExitCode != 0 {
		return Result{
			Verdict: VerdictCompileFailure,
			Detail:  compilerExcerpt(res.Stderr),
		}, nil
	}
	return Result{Verdict: VerdictPass}, nil
}

func (r *Runner) buildFuzzTarget(ctx context.Context, target string) (Result, error) {
	timeout := time.Duration(r.cfg.Validation.FuzzBuildSeconds) * time.Second
	res, err := r.exec.Run(ctx, r.cfg.RustRootPath(), timeout, r.cfg.Validation.CargoBinary, "fuzz", "build", target)
	if err != nil {
		return runnerResult("fuzz build", err), ctxErr(ctx)
	}
	if res.TimedOut {
		return Result{
			Verdict: VerdictRunnerError,
			Detail:  fmt.Sprintf("cargo fuzz build %s exceeded %s", target, timeout),
		}, nil
	}
	if res.ExitCode != 0 {
		return Result{
			Verdict: VerdictCompileFailure,
			Detail:  compilerExcerpt(res.Stderr),
		}, nil
	}
	return Result{Verdict: VerdictPass}, nil
}

func (r *Runner) runFuzzTarget(ctx context.Context, target string) (Result, error) {
	budget := time.Duration(r.cfg.Validation.FuzzRunSeconds) * time.Second
	// The process gets slack beyond the fuzzing budget so libfuzzer can shut
	// down cleanly; only a hung process trips the hard timeout.
	hardTimeout := budget + 30*time.Second
	res, err := r.exec.Run(ctx, r.cfg.RustRootPath(), hardTimeout, r.cfg.Validation.CargoBinary,
		"fuzz", "run", target, "--", fmt.Sprintf("-max_total_time=%d", int(budget.Seconds())))
	if err != nil {
		return runnerResult("fuzz run", err), ctxErr(ctx)
	}
	if res.TimedOut {
		return Result{
			Verdict: VerdictRunnerError,
			Detail:  fmt.Sprintf("cargo fuzz run %s hung past %s", target, hardTimeout),
		}, nil
	}
	if res.ExitCode != 0 {
		return Result{
			Verdict: VerdictBehavioralMismatch,
			Detail:  mismatchExcerpt(res.Stdout, res.Stderr),
		}, nil
	}
	return Result{Verdict: VerdictPass}, nil
}

func runnerResult(step string, err error) Result {
	detail := fmt.Sprintf("%s: %v", step, err)
	if errors.Is(err, exec.ErrNotFound) {
		detail = fmt.Sprintf("%s: cargo binary not found: %v", step, err)
	}
	return Result{Verdict: VerdictRunnerError, Detail: detail}
}

func ctxErr(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// ToError maps a non-passing result onto the error taxonomy.
func ToError(result Result) error {
	switch result.Verdict {
	case VerdictPass:
		return nil
	case VerdictCompileFailure:
		return services.Wrap(services.ErrCompile, "validation", "compile", result.Detail, nil)
	case VerdictBehavioralMismatch:
		return services.Wrap(services.ErrBehavior, "validation", "differential", result.Detail, nil)
	default:
		return services.Wrap(services.ErrRunner, "validation", "runner", result.Detail, nil)
	}
}

const excerptLimit = 4000

// compilerExcerpt keeps the tail of compiler output, where rustc puts the
// error summary.
func compilerExcerpt(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if trimmed == "" {
		return "compilation failed with no diagnostic output"
	}
	if len(trimmed) > excerptLimit {
		trimmed = "..." + trimmed[len(trimmed)-excerptLimit:]
	}
	return trimmed
}

// mismatchExcerpt keeps the crash report libfuzzer prints on divergence.
func mismatchExcerpt(stdout, stderr string) string {
	combined := strings.TrimSpace(stderr)
	if combined == "" {
		combined = strings.TrimSpace(stdout)
	}
	if combined == "" {
		return "differential test failed with no diagnostic output"
	}
	if idx := strings.Index(combined, "panicked at"); idx > 0 {
		combined = combined[idx:]
	}
	if len(combined) > excerptLimit {
		combined = combined[:excerptLimit] + "..."
	}
	return combined
}
