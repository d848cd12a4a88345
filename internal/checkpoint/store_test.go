package checkpoint_test

import (
	"context"
	"path/filepath"
	"testing"

	"portforge/internal/checkpoint"
)

func openStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	store, err := checkpoint.OpenPath(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertInsertsAndUpdates(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	record := &checkpoint.Record{
		UnitID:  "ZopfliInitHash",
		Status:  checkpoint.StatusGenerating,
		Attempt: 1,
		RunID:   "run-1",
	}
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	record.Status = checkpoint.StatusVerified
	record.Verdict = "pass"
	record.Fingerprint = "abc123"
	if err := store.Upsert(ctx, record); err != nil {
		t.Fatalf("second Upsert returned error: %v", err)
	}

	got, err := store.Get(ctx, "ZopfliInitHash")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected record")
	}
	if got.Status != checkpoint.StatusVerified {
		t.Fatalf("unexpected status: %q", got.Status)
	}
	if got.Attempt != 1 || got.Fingerprint != "abc123" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openStore(t)

	got, err := store.Get(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil record, got %+v", got)
	}
}

func TestUpsertRejectsUnknownStatus(t *testing.T) {
	store := openStore(t)

	err := store.Upsert(context.Background(), &checkpoint.Record{
		UnitID: "x",
		Status: checkpoint.Status("bogus"),
	})
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestRollbackInFlight(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	seed := []*checkpoint.Record{
		{UnitID: "a", Status: checkpoint.StatusVerified, Attempt: 2},
		{UnitID: "b", Status: checkpoint.StatusGenerating, Attempt: 3, Feedback: "compile error"},
		{UnitID: "c", Status: checkpoint.StatusValidating, Attempt: 1},
		{UnitID: "d", Status: checkpoint.StatusFailed, Attempt: 10},
	}
	for _, record := range seed {
		if err := store.Upsert(ctx, record); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}

	rewound, err := store.RollbackInFlight(ctx)
	if err != nil {
		t.Fatalf("RollbackInFlight returned error: %v", err)
	}
	if len(rewound) != 2 || rewound[0] != "b" || rewound[1] != "c" {
		t.Fatalf("unexpected rewound units: %v", rewound)
	}

	b, err := store.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if b.Status != checkpoint.StatusUnstarted {
		t.Fatalf("expected b rewound to unstarted, got %q", b.Status)
	}
	if b.Attempt != 3 || b.Feedback != "compile error" {
		t.Fatalf("rollback must keep attempt and feedback, got %+v", b)
	}

	a, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if a.Status != checkpoint.StatusVerified {
		t.Fatalf("verified record must not be rewound, got %q", a.Status)
	}
}

func TestSummarizeCounts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	seed := map[string]checkpoint.Status{
		"a": checkpoint.StatusVerified,
		"b": checkpoint.StatusVerified,
		"c": checkpoint.StatusFailed,
		"d": checkpoint.StatusUnstarted,
	}
	for id, status := range seed {
		if err := store.Upsert(ctx, &checkpoint.Record{UnitID: id, Status: status}); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if summary.Total != 4 || summary.Verified != 2 || summary.Failed != 1 || summary.Unstarted != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Remaining() != 1 {
		t.Fatalf("unexpected remaining: %d", summary.Remaining())
	}
}

func TestResetUnitAndAll(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.Upsert(ctx, &checkpoint.Record{UnitID: id, Status: checkpoint.StatusVerified}); err != nil {
			t.Fatalf("seed upsert: %v", err)
		}
	}

	if err := store.ResetUnit(ctx, "a"); err != nil {
		t.Fatalf("ResetUnit returned error: %v", err)
	}
	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Fatal("expected a to be deleted")
	}

	if err := store.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll returned error: %v", err)
	}
	records, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty store, got %d records", len(records))
	}
}

func TestReopenSeesPersistedRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.db")
	ctx := context.Background()

	store, err := checkpoint.OpenPath(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Upsert(ctx, &checkpoint.Record{UnitID: "a", Status: checkpoint.StatusVerified}); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := checkpoint.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || got.Status != checkpoint.StatusVerified {
		t.Fatalf("expected persisted record, got %+v", got)
	}
}
