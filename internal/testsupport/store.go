package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"sitesync/internal/config"
	"sitesync/internal/queue"
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

// MustPut stores a pending capture with a fresh id and returns it.
func MustPut(t testing.TB, store *queue.Store, destination string, payload []byte) queue.Item {
	t.Helper()

	item := queue.Item{
		ID:          uuid.NewString(),
		Payload:     payload,
		Destination: destination,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := store.Put(context.Background(), item); err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return item
}
