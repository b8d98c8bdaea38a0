package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitesync/internal/logging"
)

const (
	defaultProbeInterval = 15 * time.Second
	defaultProbeTimeout  = 5 * time.Second
	// pokeSettle delays a follow-up probe after a network change so DHCP
	// and route setup have time to finish.
	pokeSettle = 2 * time.Second
)

// Monitor reports reachability and notifies subscribers on transitions.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	online   bool
	since    time.Time
	lastErr  string
	handlers []subscription
	nextID   uint64

	// notifyMu serializes edge delivery so handlers observe transitions in
	// the order they happened. Handlers must not call Observe.
	notifyMu sync.Mutex

	poke chan struct{}
}

type subscription struct {
	id uint64
	fn func(online bool)
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithInterval sets the period between background probes.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logging.NewComponentLogger(logger, "connectivity")
	}
}

// NewMonitor returns a Monitor that starts offline. A nil prober means the
// monitor only changes state through Observe.
func NewMonitor(prober Prober, opts ...Option) *Monitor {
	m := &Monitor{
		prober:   prober,
		interval: defaultProbeInterval,
		timeout:  defaultProbeTimeout,
		logger:   logging.NewComponentLogger(nil, "connectivity"),
		poke:     make(chan struct{}, 1),
		since:    time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsOnline returns the best-known reachability.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// State returns the current reachability, when it last changed, and the most
// recent probe error.
func (m *Monitor) State() (online bool, since time.Time, lastErr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online, m.since, m.lastErr
}

// Subscribe registers handler for reachability edges. Handlers run in
// registration order on the goroutine that observed the edge. The returned
// function removes the handler and is safe to call more than once.
func (m *Monitor) Subscribe(handler func(online bool)) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.handlers = append(m.handlers, subscription{id: id, fn: handler})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, sub := range m.handlers {
				if sub.id == id {
					m.handlers = append(m.handlers[:i:i], m.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Observe records a reachability observation. Repeating the current state is
// a no-op; a change notifies every subscriber exactly once.
func (m *Monitor) Observe(online bool) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.since = time.Now()
	if online {
		m.lastErr = ""
	}
	handlers := append([]subscription(nil), m.handlers...)
	m.mu.Unlock()

	m.logger.Info("connectivity changed",
		logging.String(logging.FieldEventType, "connectivity_changed"),
		logging.Bool("online", online),
	)
	for _, sub := range handlers {
		sub.fn(online)
	}
}

// Poke requests an immediate probe from Run. It never blocks.
func (m *Monitor) Poke() {
	select {
	case m.poke <- struct{}{}:
	default:
	}
}

// Run probes immediately, then on every interval and after each Poke, until
// ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil {
		<-ctx.Done()
		return
	}

	m.probeOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	settle := time.NewTimer(pokeSettle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce(ctx)
		case <-m.poke:
			m.probeOnce(ctx)
			settle.Reset(pokeSettle)
		case <-settle.C:
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Probe(probeCtx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.mu.Lock()
		m.lastErr = err.Error()
		m.mu.Unlock()
		m.logger.Debug("probe failed", logging.Error(err))
	}
	m.Observe(err == nil)
}
