package task_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"portforge/internal/artifact"
	"portforge/internal/checkpoint"
	"portforge/internal/config"
	"portforge/internal/facts"
	"portforge/internal/generate"
	"portforge/internal/services"
	"portforge/internal/symbolgraph"
	"portforge/internal/task"
	"portforge/internal/validate"
)

type fakeCollaborator struct {
	dir       string
	requests  []generate.Request
	err       error
	errBudget int
}

func (f *fakeCollaborator) Generate(ctx context.Context, req generate.Request) (artifact.Set, error) {
	f.requests = append(f.requests, req)
	if f.err != nil && (f.errBudget == 0 || len(f.requests) <= f.errBudget) {
		return artifact.Set{}, f.err
	}
	return artifact.Set{
		UnitID: req.Unit.ID,
		Files: []artifact.File{
			{Path: filepath.Join(f.dir, "rust", "src", "out.rs"), Contents: []byte("attempt")},
		},
	}, nil
}

type fakeValidator struct {
	results []validate.Result
	calls   int
}

func (f *fakeValidator) Validate(ctx context.Context, unit *symbolgraph.Unit) (validate.Result, error) {
	if f.calls >= len(f.results) {
		return validate.Result{Verdict: validate.VerdictPass}, nil
	}
	result := f.results[f.calls]
	f.calls++
	return result, nil
}

func newUnit(t *testing.T) *symbolgraph.Unit {
	t.Helper()
	g, err := symbolgraph.Build([]facts.Record{
		{Name: "ZopfliInitHash", Kind: facts.KindFunction, File: "src/hash.c", Line: 30},
	})
	if err != nil {
		t.Fatal(err)
	}
	unit, _ := g.Unit("ZopfliInitHash")
	return unit
}

func newStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.OpenPath(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func retrySettings() config.Retry {
	return config.Retry{
		MaxAttempts:      3,
		MaxInfraAttempts: 2,
		BackoffInitialMS: 1,
		BackoffMaxMS:     10,
		BackoffFactor:    2.0,
	}
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newTask(t *testing.T, store *checkpoint.Store, collab generate.Collaborator, validator task.Validator, retry config.Retry) *task.Task {
	t.Helper()
	return task.New(task.Options{
		Unit:         newUnit(t),
		Store:        store,
		Collaborator: collab,
		Validator:    validator,
		Retry:        retry,
		RunID:        "run-test",
		Sleep:        noSleep,
	})
}

func TestRunVerifiesOnFirstAttempt(t *testing.T) {
	store := newStore(t)
	dir := t.TempDir()
	collab := &fakeCollaborator{dir: dir}
	validator := &fakeValidator{}

	tk := newTask(t, store, collab, validator, retrySettings())
	outcome, err := tk.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusVerified {
		t.Fatalf("unexpected status: %q", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("unexpected attempts: %d", outcome.Attempts)
	}

	record, err := store.Get(context.Background(), "ZopfliInitHash")
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != checkpoint.StatusVerified || record.Fingerprint == "" {
		t.Fatalf("unexpected persisted record: %+v", record)
	}

	applied, err := os.ReadFile(filepath.Join(dir, "rust", "src", "out.rs"))
	if err != nil {
		t.Fatalf("expected applied artifact: %v", err)
	}
	if string(applied) != "attempt" {
		t.Fatalf("unexpected artifact contents: %q", applied)
	}
}

func TestRunRetriesDefectWithFeedback(t *testing.T) {
	store := newStore(t)
	dir := t.TempDir()
	collab := &fakeCollaborator{dir: dir}
	validator := &fakeValidator{results: []validate.Result{
		{Verdict: validate.VerdictCompileFailure, Detail: "error[E0308]: mismatched types"},
	}}

	tk := newTask(t, store, collab, validator, retrySettings())
	outcome, err := tk.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusVerified {
		t.Fatalf("unexpected status: %q (%s)", outcome.Status, outcome.Detail)
	}
	if outcome.Attempts != 2 {
		t.Fatalf("unexpected attempts: %d", outcome.Attempts)
	}
	if len(collab.requests) != 2 {
		t.Fatalf("expected 2 generation requests, got %d", len(collab.requests))
	}
	if collab.requests[0].Feedback != "" {
		t.Fatal("first attempt must not carry feedback")
	}
	if !strings.Contains(collab.requests[1].Feedback, "E0308") {
		t.Fatalf("second attempt must carry compiler feedback, got %q", collab.requests[1].Feedback)
	}
	if !strings.Contains(collab.requests[1].Feedback, "failed to compile") {
		t.Fatalf("feedback must name the failure class, got %q", collab.requests[1].Feedback)
	}
}

func TestRunFailsTerminallyWhenBudgetExhausted(t *testing.T) {
	store := newStore(t)
	dir := t.TempDir()
	collab := &fakeCollaborator{dir: dir}
	validator := &fakeValidator{results: []validate.Result{
		{Verdict: validate.VerdictBehavioralMismatch, Detail: "mismatch 1"},
		{Verdict: validate.VerdictBehavioralMismatch, Detail: "mismatch 2"},
		{Verdict: validate.VerdictBehavioralMismatch, Detail: "mismatch 3"},
	}}

	tk := newTask(t, store, collab, validator, retrySettings())
	outcome, err := tk.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusFailed {
		t.Fatalf("unexpected status: %q", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("unexpected attempts: %d", outcome.Attempts)
	}
	if outcome.Verdict != validate.VerdictBehavioralMismatch {
		t.Fatalf("unexpected verdict: %q", outcome.Verdict)
	}

	// A failed validation must not leave the artifact in the workspace.
	if _, err := os.Stat(filepath.Join(dir, "rust", "src", "out.rs")); !os.IsNotExist(err) {
		t.Fatalf("expected workspace restored, stat err: %v", err)
	}
}

func TestRunInfraRetryDoesNotConsumeAttempts(t *testing.T) {
	store := newStore(t)
	dir := t.TempDir()
	collab := &fakeCollaborator{dir: dir}
	validator := &fakeValidator{results: []validate.Result{
		{Verdict: validate.VerdictRunnerError, Detail: "cargo hung"},
	}}

	tk := newTask(t, store, collab, validator, retrySettings())
	outcome, err := tk.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusVerified {
		t.Fatalf("unexpected status: %q (%s)", outcome.Status, outcome.Detail)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("runner errors must not consume defect attempts, got %d", outcome.Attempts)
	}
	if outcome.InfraRetries != 1 {
		t.Fatalf("unexpected infra retries: %d", outcome.InfraRetries)
	}
}

func TestRunInfraBudgetExhaustionFailsUnit(t *testing.T) {
	store := newStore(t)
	collab := &fakeCollaborator{
		dir: t.TempDir(),
		err: services.Wrap(services.ErrRunner, "generation", "bindings", "collaborator request failed",
			errors.New("connection refused")),
	}

	tk := newTask(t, store, collab, &fakeValidator{}, retrySettings())
	outcome, err := tk.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusFailed {
		t.Fatalf("unexpected status: %q", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("infra failure must not burn the defect budget, got %d attempts", outcome.Attempts)
	}
	// Initial call plus the infra retry budget.
	if len(collab.requests) != 3 {
		t.Fatalf("unexpected generation calls: %d", len(collab.requests))
	}
}

func TestRunSkipsAlreadyVerifiedUnit(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.Upsert(ctx, &checkpoint.Record{
		UnitID:  "ZopfliInitHash",
		Status:  checkpoint.StatusVerified,
		Attempt: 2,
		Verdict: "pass",
	}); err != nil {
		t.Fatal(err)
	}

	collab := &fakeCollaborator{dir: t.TempDir()}
	tk := newTask(t, store, collab, &fakeValidator{}, retrySettings())
	outcome, err := tk.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusVerified || outcome.Attempts != 2 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(collab.requests) != 0 {
		t.Fatal("verified unit must not trigger generation")
	}
}

func TestRunResumesFailedUnitFromRecordedAttempt(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.Upsert(ctx, &checkpoint.Record{
		UnitID:   "ZopfliInitHash",
		Status:   checkpoint.StatusFailed,
		Attempt:  1,
		Verdict:  string(validate.VerdictCompileFailure),
		Feedback: "fix the pointer arithmetic",
	}); err != nil {
		t.Fatal(err)
	}

	collab := &fakeCollaborator{dir: t.TempDir()}
	tk := newTask(t, store, collab, &fakeValidator{}, retrySettings())
	outcome, err := tk.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusVerified {
		t.Fatalf("unexpected status: %q (%s)", outcome.Status, outcome.Detail)
	}
	if outcome.Attempts != 2 {
		t.Fatalf("resumed unit must continue from the recorded attempt, got %d", outcome.Attempts)
	}
	if len(collab.requests) != 1 {
		t.Fatalf("unexpected generation calls: %d", len(collab.requests))
	}
	if collab.requests[0].Attempt != 2 {
		t.Fatalf("unexpected request attempt: %d", collab.requests[0].Attempt)
	}
	if collab.requests[0].Feedback != "fix the pointer arithmetic" {
		t.Fatalf("resumed attempt must carry the stored feedback, got %q", collab.requests[0].Feedback)
	}
}

func TestRunKeepsFailedUnitTerminalWithoutBudget(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	if err := store.Upsert(ctx, &checkpoint.Record{
		UnitID:       "ZopfliInitHash",
		Status:       checkpoint.StatusFailed,
		Attempt:      3,
		Verdict:      string(validate.VerdictBehavioralMismatch),
		ErrorMessage: "output mismatch on fuzz corpus",
	}); err != nil {
		t.Fatal(err)
	}

	collab := &fakeCollaborator{dir: t.TempDir()}
	tk := newTask(t, store, collab, &fakeValidator{}, retrySettings())
	outcome, err := tk.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if outcome.Status != checkpoint.StatusFailed || outcome.Attempts != 3 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if len(collab.requests) != 0 {
		t.Fatal("exhausted unit must not trigger generation")
	}
}

func TestRunStopsAtCheckpointBoundaryOnCancel(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	collab := &fakeCollaborator{dir: t.TempDir()}
	tk := newTask(t, store, collab, &fakeValidator{}, retrySettings())
	_, err := tk.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(collab.requests) != 0 {
		t.Fatal("canceled run must not dispatch generation")
	}
}

func TestBackoffIsDeterministicAndBounded(t *testing.T) {
	backoff := task.BackoffFromConfig(config.Retry{
		BackoffInitialMS: 200,
		BackoffMaxMS:     60000,
		BackoffFactor:    2.0,
	})

	first := backoff.Delay("unit-a", 1)
	second := backoff.Delay("unit-a", 1)
	if first != second {
		t.Fatalf("same seed and attempt must yield the same delay: %v vs %v", first, second)
	}
	if other := backoff.Delay("unit-b", 1); other == first {
		t.Log("different seeds produced equal delays; extremely unlikely but not fatal")
	}

	for attempt := 1; attempt <= 20; attempt++ {
		d := backoff.Delay("unit-a", attempt)
		if d < 0 || d > 90*time.Second {
			t.Fatalf("delay out of bounds at attempt %d: %v", attempt, d)
		}
	}
}
