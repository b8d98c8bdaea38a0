package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"sitesync/internal/api"
	"sitesync/internal/capture"
	"sitesync/internal/config"
	"sitesync/internal/connectivity"
	"sitesync/internal/events"
	"sitesync/internal/logging"
	"sitesync/internal/notifications"
	"sitesync/internal/queue"
	"sitesync/internal/syncer"
	"sitesync/internal/uploader"
)

// ErrNoDestination reports a capture submitted without a destination or a
// project to derive one from.
var ErrNoDestination = errors.New("destination or project is required")

// Daemon owns the sync engine and everything that feeds it, and enforces
// single-instance execution so only one engine drains a store.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	engine    *syncer.Engine
	monitor   *connectivity.Monitor
	netlink   *connectivity.NetWatcher
	inbox     *capture.Watcher
	notifier  notifications.Service
	publisher events.Publisher
	api       *apiServer
	prepare   capture.PrepareOptions
	now       func() time.Time

	prober     connectivity.Prober
	engineOpts []syncer.Option

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes daemon construction.
type Option func(*Daemon)

// WithProber replaces the configured reachability probe.
func WithProber(p connectivity.Prober) Option {
	return func(d *Daemon) { d.prober = p }
}

// WithNotifier replaces the configured notification service.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) { d.notifier = n }
}

// WithPublisher replaces the configured delivery event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(d *Daemon) { d.publisher = p }
}

// WithEngineOptions appends sync engine options after the configured ones.
func WithEngineOptions(opts ...syncer.Option) Option {
	return func(d *Daemon) { d.engineOpts = append(d.engineOpts, opts...) }
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	QueueDBPath     string
	LockFilePath    string
	Provider        string
	OnlineSince     time.Time
	ProbeError      string
	NetlinkWatching bool
	InboxWatching   bool
	Sync            syncer.Status
}

// API converts the status into its wire representation.
func (s Status) API() api.DaemonStatus {
	out := api.DaemonStatus{
		Running:         s.Running,
		PID:             s.PID,
		QueueDBPath:     s.QueueDBPath,
		LockFilePath:    s.LockFilePath,
		Provider:        s.Provider,
		ProbeError:      s.ProbeError,
		NetlinkWatching: s.NetlinkWatching,
		InboxWatching:   s.InboxWatching,
		Sync:            api.FromSyncStatus(s.Sync),
	}
	if !s.OnlineSince.IsZero() {
		out.OnlineSince = s.OnlineSince.UTC().Format(time.RFC3339)
	}
	return out
}

// Submission describes an accepted capture.
type Submission struct {
	ID          string
	Destination string
	// Queued is false when the capture was delivered on the spot.
	Queued bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, up uploader.Uploader, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || up == nil {
		return nil, errors.New("daemon requires config, store, and uploader")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		prepare:  capture.OptionsFromConfig(cfg.Capture),
		now:      time.Now,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.prober == nil {
		prober, err := connectivity.NewProber(cfg.Connectivity)
		if err != nil {
			return nil, fmt.Errorf("connectivity probe: %w", err)
		}
		d.prober = prober
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg.Notifications)
	}
	if d.publisher == nil {
		d.publisher = events.New(cfg.Events, logger)
	}

	d.monitor = connectivity.NewMonitor(d.prober,
		connectivity.WithInterval(cfg.Connectivity.ProbeIntervalDuration()),
		connectivity.WithTimeout(cfg.Connectivity.ProbeTimeoutDuration()),
		connectivity.WithLogger(logger),
	)

	engineOpts := append(syncer.OptionsFromConfig(cfg.Sync),
		syncer.WithLogger(logger),
		syncer.WithNotifier(d.notifier),
		syncer.WithPublisher(d.publisher),
	)
	d.engine = syncer.New(store, up, d.monitor, append(engineOpts, d.engineOpts...)...)

	if cfg.Connectivity.WatchNetlink {
		d.netlink = connectivity.NewNetWatcher(logger, func(string) {
			d.monitor.Poke()
		})
	}
	if cfg.Capture.WatchInbox {
		d.inbox = capture.NewWatcher(cfg.Paths.InboxDir, cfg.Capture.Project, d.prepare, d.engine.Submit,
			capture.WithSettle(time.Duration(cfg.Capture.SettleMillis)*time.Millisecond),
			capture.WithWatcherLogger(logger),
		)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the monitor, engine, watchers
// and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sitesync daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		if err := d.engine.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(d.logger, "sync engine stopped", "engine_stopped",
				logging.Error(err),
				logging.String(logging.FieldImpact, "queued captures are not being delivered"),
			)
		}
	}()

	if err := d.netlink.Start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "network watcher unavailable", "netlink_start_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "connectivity changes are detected by periodic probes only"),
		)
	}
	if err := d.inbox.Start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "inbox watcher unavailable", "inbox_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.inbox_dir permissions"),
			logging.String(logging.FieldImpact, "photos dropped in the inbox are not picked up"),
		)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		d.inbox.Stop()
		d.netlink.Stop()
		d.wg.Wait()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("sitesync daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("provider", d.cfg.Uploader.Provider),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.inbox.Stop()
	d.netlink.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
		)
	}
	d.running.Store(false)
	d.logger.Info("sitesync daemon stopped",
		logging.String(logging.FieldEventType, "daemon_stopped"),
	)
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if err := d.publisher.Close(); err != nil {
		logging.WarnWithContext(d.logger, "event publisher close failed", "events_close_failed", logging.Error(err))
	}
	return d.store.Close()
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Engine exposes the sync engine.
func (d *Daemon) Engine() *syncer.Engine {
	return d.engine
}

// Monitor exposes the connectivity monitor.
func (d *Daemon) Monitor() *connectivity.Monitor {
	return d.monitor
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	syncStatus, err := d.engine.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	online, since, probeErr := d.monitor.State()
	status := Status{
		Running:         d.running.Load(),
		PID:             os.Getpid(),
		QueueDBPath:     d.store.Path(),
		LockFilePath:    d.lockPath,
		Provider:        d.cfg.Uploader.Provider,
		ProbeError:      probeErr,
		NetlinkWatching: d.netlink.Running(),
		InboxWatching:   d.inbox.Running(),
		Sync:            syncStatus,
	}
	if online {
		status.OnlineSince = since
	}
	return status, nil
}

// Submit hands a payload to the sync engine.
func (d *Daemon) Submit(ctx context.Context, payload []byte, destination string) (Submission, error) {
	id, err := d.engine.Submit(ctx, payload, destination)
	if err != nil {
		return Submission{}, err
	}
	_, queued, err := d.store.Get(ctx, id)
	if err != nil {
		queued = true
	}
	return Submission{ID: id, Destination: destination, Queued: queued}, nil
}

// SubmitPhoto prepares photo bytes and submits them. When destination is empty
// it is derived from project (or the configured capture project) and filename.
func (d *Daemon) SubmitPhoto(ctx context.Context, data []byte, filename, destination, project string) (Submission, error) {
	destination, err := d.resolveDestination(filename, destination, project)
	if err != nil {
		return Submission{}, err
	}
	payload, err := capture.PrepareBytes(data, d.prepare)
	if err != nil {
		return Submission{}, err
	}
	return d.Submit(ctx, payload, destination)
}

// SubmitFile prepares the photo at path and submits it.
func (d *Daemon) SubmitFile(ctx context.Context, path, destination, project string) (Submission, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Submission{}, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return Submission{}, fmt.Errorf("resolve source path: %w", err)
	}
	destination, err = d.resolveDestination(absPath, destination, project)
	if err != nil {
		return Submission{}, err
	}
	payload, err := capture.Prepare(absPath, d.prepare)
	if err != nil {
		return Submission{}, err
	}
	sub, err := d.Submit(ctx, payload, destination)
	if err != nil {
		return Submission{}, err
	}
	d.logger.Info("capture submitted",
		logging.String(logging.FieldEventType, "capture_submitted"),
		logging.String(logging.FieldItemID, sub.ID),
		logging.String(logging.FieldDestination, sub.Destination),
		logging.String("source", absPath),
		logging.Bool("queued", sub.Queued),
	)
	return sub, nil
}

func (d *Daemon) resolveDestination(filename, destination, project string) (string, error) {
	if dest := strings.TrimSpace(destination); dest != "" {
		return dest, nil
	}
	project = strings.TrimSpace(project)
	if project == "" {
		project = d.cfg.Capture.Project
	}
	if project == "" {
		return "", ErrNoDestination
	}
	return capture.Destination(project, filename, d.now()), nil
}

// Sync runs a manual drain of every stored item.
func (d *Daemon) Sync(ctx context.Context) (syncer.DrainResult, error) {
	return d.engine.RetrySync(ctx)
}

// TriggerSync schedules a drain on the engine's run loop.
func (d *Daemon) TriggerSync() {
	d.engine.Trigger()
}

// ListQueue returns queued captures ordered by enqueue time, without payloads.
func (d *Daemon) ListQueue(ctx context.Context) ([]queue.Item, error) {
	return d.store.List(ctx)
}

// Requeue moves a dead-lettered item back to pending and schedules a drain.
func (d *Daemon) Requeue(ctx context.Context, id string) (bool, error) {
	ok, err := d.store.Requeue(ctx, strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	if ok {
		d.logger.Info("dead letter requeued",
			logging.String(logging.FieldEventType, "dead_letter_requeued"),
			logging.String(logging.FieldItemID, id),
		)
		d.engine.Trigger()
	}
	return ok, nil
}

// RequeueDead moves every dead-lettered item back to pending.
func (d *Daemon) RequeueDead(ctx context.Context) (int64, error) {
	n, err := d.store.RequeueDead(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.engine.Trigger()
	}
	return n, nil
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.Health, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.cfg.LogPath()
}

// APIAddr returns the address the HTTP API listens on, or "" when disabled.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}
