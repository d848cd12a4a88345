package testsupport

import (
	"context"
	"testing"

	"portforge/internal/checkpoint"
	"portforge/internal/config"
)

// MustOpenStore opens a checkpoint.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *checkpoint.Store {
	t.Helper()

	store, err := checkpoint.Open(cfg)
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedVerified marks the given units verified in the store.
func SeedVerified(t testing.TB, store *checkpoint.Store, unitIDs ...string) {
	t.Helper()

	for _, id := range unitIDs {
		record := &checkpoint.Record{
			UnitID:  id,
			Status:  checkpoint.StatusVerified,
			Attempt: 1,
			Verdict: "pass",
		}
		if err := store.Upsert(context.Background(), record); err != nil {
			t.Fatalf("seed verified %s: %v", id, err)
		}
	}
}
