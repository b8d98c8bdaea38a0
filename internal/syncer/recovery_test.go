package syncer

import (
	"context"
	"testing"

	"sitesync/internal/queue"
	"sitesync/internal/testsupport"
)

func TestRestartRecoversPendingItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	offline := newTestEngine(store, newFakeUploader(), offlineMonitor())
	for _, dest := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		if _, err := offline.Submit(context.Background(), []byte(dest), dest); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	up := newFakeUploader()
	up.fail("b.jpg", errNetwork)
	monitor := offlineMonitor()
	e := newTestEngine(reopened, up, monitor)

	status, err := e.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Pending != 3 || status.State != StateIdle {
		t.Fatalf("expected 3 pending at startup, got %+v", status)
	}

	monitor.Observe(true)
	result, err := e.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Delivered != 2 || result.Remaining != 1 {
		t.Fatalf("unexpected drain result %+v", result)
	}

	items, err := reopened.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(items) != 1 || items[0].Destination != "b.jpg" || items[0].Attempts != 1 {
		t.Fatalf("expected only b.jpg with one attempt, got %+v", items)
	}
}
