package testsupport

import (
	"context"
	"testing"

	"handout/internal/config"
	"handout/internal/queue"
	"handout/internal/runspec"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SubmitFile submits a direct-file job for tests using the provided store.
func SubmitFile(t testing.TB, store *queue.Store, path string, features runspec.Features) *queue.Job {
	t.Helper()

	run := runspec.New("", runspec.DirectFile(path), features, runspec.Params{})
	job, err := store.Submit(context.Background(), run)
	if err != nil {
		t.Fatalf("store.Submit: %v", err)
	}
	return job
}
