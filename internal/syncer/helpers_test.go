package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"sitesync/internal/connectivity"
	"sitesync/internal/events"
	"sitesync/internal/logging"
	"sitesync/internal/queue"
	"sitesync/internal/uploader"
)

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu        sync.Mutex
	items     map[string]queue.Item
	puts      int
	getAllErr error
	putErr    error
	deleteErr error
}

func newMemStore() *memStore {
	return &memStore{items: make(map[string]queue.Item)}
}

func (s *memStore) Put(_ context.Context, item queue.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	if item.State == "" {
		item.State = queue.StatePending
	}
	s.items[item.ID] = item
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.items, id)
	return nil
}

func (s *memStore) GetAll(context.Context) ([]queue.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}
	out := make([]queue.Item, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

func (s *memStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items), nil
}

func (s *memStore) RecordFailure(_ context.Context, id string, f queue.Failure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil
	}
	item.Attempts = f.Attempts
	item.LastError = f.Err
	item.NextAttemptAt = f.NextAttemptAt
	item.State = queue.StatePending
	if f.Dead {
		item.State = queue.StateDead
	}
	s.items[id] = item
	return nil
}

func (s *memStore) Stats(context.Context) (queue.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats queue.Stats
	for _, item := range s.items {
		stats.Total++
		if item.IsDead() {
			stats.Dead++
		} else {
			stats.Pending++
		}
		if stats.OldestEnqueuedAt.IsZero() || item.EnqueuedAt.Before(stats.OldestEnqueuedAt) {
			stats.OldestEnqueuedAt = item.EnqueuedAt
		}
	}
	return stats, nil
}

func (s *memStore) get(id string) (queue.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

func (s *memStore) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.items))
	for id := range s.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *memStore) seed(t *testing.T, destinations ...string) []string {
	t.Helper()
	ids := make([]string, 0, len(destinations))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, dest := range destinations {
		id := dest
		if err := s.Put(context.Background(), queue.Item{
			ID:          id,
			Payload:     []byte("payload-" + dest),
			Destination: dest,
			EnqueuedAt:  base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("seed Put failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

// fakeUploader fails destinations listed in failing and records calls.
type fakeUploader struct {
	mu      sync.Mutex
	calls   map[string]int
	failing map[string]error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{calls: make(map[string]int), failing: make(map[string]error)}
}

func (u *fakeUploader) Upload(ctx context.Context, _ []byte, destination string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls[destination]++
	if err := u.failing[destination]; err != nil {
		return "", err
	}
	return "mem://" + destination, nil
}

func (u *fakeUploader) fail(destination string, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err == nil {
		delete(u.failing, destination)
		return
	}
	u.failing[destination] = err
}

func (u *fakeUploader) callCount(destination string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[destination]
}

func (u *fakeUploader) totalCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for _, n := range u.calls {
		total += n
	}
	return total
}

type recordingNotifier struct {
	mu        sync.Mutex
	failed    int
	recovered int
	dead      []string
}

func (n *recordingNotifier) NotifySyncFailed(context.Context, int, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed++
	return nil
}

func (n *recordingNotifier) NotifySyncRecovered(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recovered++
	return nil
}

func (n *recordingNotifier) NotifyDeadLettered(_ context.Context, id, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dead = append(n.dead, id)
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

type recordingPublisher struct {
	mu         sync.Mutex
	deliveries []events.Delivery
}

func (p *recordingPublisher) PublishDelivered(_ context.Context, d events.Delivery) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deliveries = append(p.deliveries, d)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deliveries)
}

func newTestEngine(store Store, up uploader.Uploader, monitor Monitor, opts ...Option) *Engine {
	base := []Option{
		WithLogger(logging.NewNop()),
		WithAttemptTimeout(2 * time.Second),
		WithRetryInterval(time.Hour),
	}
	return New(store, up, monitor, append(base, opts...)...)
}

func offlineMonitor() *connectivity.Monitor {
	return connectivity.NewMonitor(nil)
}

func onlineMonitor() *connectivity.Monitor {
	m := connectivity.NewMonitor(nil)
	m.Observe(true)
	return m
}

var errNetwork = errors.New("connection reset by peer")

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
