package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"sitesync/internal/config"
	"sitesync/internal/queue"
	"sitesync/internal/uploader"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	e := newTestEngine(newMemStore(), newFakeUploader(), offlineMonitor(),
		WithBackoff(5*time.Second, time.Minute))

	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		time.Minute,
		time.Minute,
	}
	for i, expected := range want {
		if got := e.backoff(i + 1); got != expected {
			t.Fatalf("backoff(%d) = %s, want %s", i+1, got, expected)
		}
	}
	if got := e.backoff(500); got != time.Minute {
		t.Fatalf("backoff must not overflow, got %s", got)
	}
}

func TestFailureForClassifiesErrors(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	e := newTestEngine(newMemStore(), newFakeUploader(), offlineMonitor(),
		WithClock(func() time.Time { return now }),
		WithBackoff(time.Second, time.Hour),
		WithMaxAttempts(5))

	transient := e.failureFor(3, errNetwork)
	if transient.Dead || !transient.NextAttemptAt.Equal(now.Add(4*time.Second)) {
		t.Fatalf("unexpected transient failure %+v", transient)
	}

	permanent := e.failureFor(1, uploader.Permanent(errors.New("no such bucket")))
	if !permanent.Dead || !permanent.NextAttemptAt.IsZero() {
		t.Fatalf("unexpected permanent failure %+v", permanent)
	}

	exhausted := e.failureFor(5, errNetwork)
	if !exhausted.Dead {
		t.Fatalf("expected exhaustion to dead-letter, got %+v", exhausted)
	}

	timeout := e.failureFor(1, fmt.Errorf("upload: %w", context.DeadlineExceeded))
	if timeout.Dead || timeout.Err == "" {
		t.Fatalf("timeouts are transient, got %+v", timeout)
	}

	expired := fmt.Errorf("upload a.jpg: %w", &uploader.StatusError{StatusCode: 401})
	if auth := e.failureFor(1, expired); auth.Dead || auth.NextAttemptAt.IsZero() {
		t.Fatalf("rejected credentials must stay retryable, got %+v", auth)
	}
	if hint := retryHint(expired); !strings.Contains(hint, "token") {
		t.Fatalf("expected credentials hint, got %q", hint)
	}
	if hint := retryHint(errNetwork); strings.Contains(hint, "token") {
		t.Fatalf("unexpected credentials hint for network error: %q", hint)
	}
}

func TestTimerDrainOnlyAttemptsDueItems(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	store := newMemStore()
	store.seed(t, "a.jpg")
	up := newFakeUploader()
	up.fail("a.jpg", errNetwork)
	e := newTestEngine(store, up, onlineMonitor(), WithClock(clock), WithBackoff(time.Minute, time.Hour))

	if _, err := e.drain(context.Background(), drainDue); err != nil {
		t.Fatalf("first drain failed: %v", err)
	}
	if up.callCount("a.jpg") != 1 {
		t.Fatalf("expected first attempt, got %d", up.callCount("a.jpg"))
	}
	stateAfterFailure := e.State()

	result, err := e.drain(context.Background(), drainDue)
	if err != nil {
		t.Fatalf("second drain failed: %v", err)
	}
	if !result.NothingDue || up.callCount("a.jpg") != 1 {
		t.Fatalf("item in backoff must be skipped, result=%+v calls=%d", result, up.callCount("a.jpg"))
	}
	if e.State() != stateAfterFailure {
		t.Fatalf("a drain with nothing due must not change state, got %s", e.State())
	}

	advance(61 * time.Second)
	if _, err := e.drain(context.Background(), drainDue); err != nil {
		t.Fatalf("third drain failed: %v", err)
	}
	if up.callCount("a.jpg") != 2 {
		t.Fatalf("expected retry after backoff, got %d", up.callCount("a.jpg"))
	}

	// Manual retry ignores backoff.
	if _, err := e.RetrySync(context.Background()); err != nil {
		t.Fatalf("RetrySync failed: %v", err)
	}
	if up.callCount("a.jpg") != 3 {
		t.Fatalf("manual retry must ignore backoff, got %d calls", up.callCount("a.jpg"))
	}
}

func TestRunRetriesOnTimerWhileOnline(t *testing.T) {
	store := newMemStore()
	store.seed(t, "a.jpg")
	up := newFakeUploader()
	up.fail("a.jpg", errNetwork)
	monitor := offlineMonitor()
	e := newTestEngine(store, up, monitor,
		WithRetryInterval(10*time.Millisecond),
		WithBackoff(time.Millisecond, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if up.totalCalls() != 0 {
		t.Fatal("timer must not drain while offline")
	}

	monitor.Observe(true)
	waitFor(t, "repeated attempts", func() bool { return up.callCount("a.jpg") >= 3 })

	up.fail("a.jpg", nil)
	waitFor(t, "eventual delivery", func() bool {
		n, _ := store.Count(context.Background())
		return n == 0
	})
}

func TestRunTriggerDrains(t *testing.T) {
	store := newMemStore()
	up := newFakeUploader()
	e := newTestEngine(store, up, offlineMonitor())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = e.Run(ctx) }()

	store.seed(t, "a.jpg")
	e.Trigger()
	e.Trigger()
	waitFor(t, "triggered drain", func() bool { return e.State() == StateSynced })
	if up.callCount("a.jpg") != 1 {
		t.Fatalf("expected one upload, got %d", up.callCount("a.jpg"))
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Sync
	cfg.Parallelism = 7
	cfg.MaxAttempts = 3
	e := New(newMemStore(), newFakeUploader(), offlineMonitor(), OptionsFromConfig(cfg)...)
	if e.parallelism != 7 || e.maxAttempts != 3 {
		t.Fatalf("options not applied: parallelism=%d maxAttempts=%d", e.parallelism, e.maxAttempts)
	}
	if e.attemptTimeout != cfg.AttemptTimeoutDuration() || e.retryInterval != cfg.RetryIntervalDuration() {
		t.Fatalf("durations not applied: %s %s", e.attemptTimeout, e.retryInterval)
	}
}

func TestDeadItemsStayOutOfTimerDrains(t *testing.T) {
	store := newMemStore()
	ids := store.seed(t, "dead.jpg")
	if err := store.RecordFailure(context.Background(), ids[0], queue.Failure{Attempts: 1, Err: "rejected", Dead: true}); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	up := newFakeUploader()
	e := newTestEngine(store, up, onlineMonitor())

	result, err := e.drain(context.Background(), drainDue)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if !result.NothingDue || up.totalCalls() != 0 {
		t.Fatalf("dead item must not be attempted, result=%+v", result)
	}
}
