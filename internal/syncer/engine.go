package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sitesync/internal/config"
	"sitesync/internal/events"
	"sitesync/internal/logging"
	"sitesync/internal/notifications"
	"sitesync/internal/queue"
	"sitesync/internal/uploader"
)

// ErrEmptyDestination rejects a submission without a destination.
var ErrEmptyDestination = errors.New("destination must not be empty")

const (
	defaultParallelism    = 4
	defaultAttemptTimeout = 2 * time.Minute
	defaultRetryInterval  = 30 * time.Second
	defaultBackoffBase    = 5 * time.Second
	defaultBackoffMax     = 15 * time.Minute
	// storeTimeout bounds bookkeeping writes that run detached from the
	// caller's cancellation.
	storeTimeout = 30 * time.Second
)

// Store is the durable queue the engine drains.
type Store interface {
	Put(ctx context.Context, item queue.Item) error
	Delete(ctx context.Context, id string) error
	GetAll(ctx context.Context) ([]queue.Item, error)
	Count(ctx context.Context) (int, error)
	RecordFailure(ctx context.Context, id string, failure queue.Failure) error
	Stats(ctx context.Context) (queue.Stats, error)
}

// Monitor reports reachability and announces edges.
type Monitor interface {
	IsOnline() bool
	Subscribe(handler func(online bool)) (unsubscribe func())
}

// Engine delivers queued captures. Only one Engine should drain a given
// Store.
type Engine struct {
	store    Store
	uploader uploader.Uploader
	monitor  Monitor
	logger   *slog.Logger
	notifier notifications.Service
	events   events.Publisher

	parallelism    int
	attemptTimeout time.Duration
	retryInterval  time.Duration
	backoffBase    time.Duration
	backoffMax     time.Duration
	maxAttempts    int

	now   func() time.Time
	newID func() string

	draining atomic.Bool
	inFlight inFlightSet
	trigger  chan struct{}
	bg       sync.WaitGroup

	mu         sync.Mutex
	state      State
	settled    State
	lastSyncAt time.Time
	lastErr    string
	lastDrain  DrainResult

	clockMu      sync.Mutex
	lastEnqueued time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "syncer") }
}

// WithNotifier sends sync alerts through svc.
func WithNotifier(svc notifications.Service) Option {
	return func(e *Engine) {
		if svc != nil {
			e.notifier = svc
		}
	}
}

// WithPublisher announces confirmed deliveries through p.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithParallelism bounds concurrent uploads within one drain.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithAttemptTimeout bounds each upload attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.attemptTimeout = d
		}
	}
}

// WithRetryInterval sets the period of the background retry timer.
func WithRetryInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryInterval = d
		}
	}
}

// WithBackoff sets the exponential backoff bounds applied after transient
// failures.
func WithBackoff(base, max time.Duration) Option {
	return func(e *Engine) {
		if base > 0 {
			e.backoffBase = base
		}
		if max > 0 {
			e.backoffMax = max
		}
	}
}

// WithMaxAttempts dead-letters an item after n failed attempts. Zero retries
// forever.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator replaces the random UUID generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// OptionsFromConfig translates the [sync] section into options.
func OptionsFromConfig(cfg config.Sync) []Option {
	return []Option{
		WithParallelism(cfg.Parallelism),
		WithAttemptTimeout(cfg.AttemptTimeoutDuration()),
		WithRetryInterval(cfg.RetryIntervalDuration()),
		WithBackoff(cfg.BackoffBaseDuration(), cfg.BackoffMaxDuration()),
		WithMaxAttempts(cfg.MaxAttempts),
	}
}

// New constructs an Engine around its collaborators.
func New(store Store, up uploader.Uploader, monitor Monitor, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		uploader:       up,
		monitor:        monitor,
		logger:         logging.NewComponentLogger(nil, "syncer"),
		notifier:       notifications.NewService(config.Notifications{}),
		events:         events.Noop{},
		parallelism:    defaultParallelism,
		attemptTimeout: defaultAttemptTimeout,
		retryInterval:  defaultRetryInterval,
		backoffBase:    defaultBackoffBase,
		backoffMax:     defaultBackoffMax,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
		trigger:        make(chan struct{}, 1),
		state:          StateIdle,
		settled:        StateIdle,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.backoffMax < e.backoffBase {
		e.backoffMax = e.backoffBase
	}
	e.inFlight.ids = make(map[string]struct{})
	return e
}

// nextEnqueuedAt returns the current time, clamped so successive calls never
// go backwards even if the wall clock does.
func (e *Engine) nextEnqueuedAt() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	now := e.now()
	if now.Before(e.lastEnqueued) {
		now = e.lastEnqueued
	}
	e.lastEnqueued = now
	return now
}

// detached returns a context that survives the caller's cancellation, for
// writes that must land once an upload outcome is known.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// background runs fn off the drain path; Run waits for these on shutdown.
func (e *Engine) background(fn func()) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn()
	}()
}

// Wait blocks until background notifications and events have been sent.
func (e *Engine) Wait() {
	e.bg.Wait()
}

type inFlightSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// acquire claims id and reports false if an attempt already holds it.
func (s *inFlightSet) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *inFlightSet) release(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}
