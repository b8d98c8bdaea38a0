package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"sitesync/internal/logging"
)

const (
	submittedDirName = "submitted"
	rejectedDirName  = "rejected"
	defaultRescan    = time.Minute

	// Undecodable files younger than this may still be mid-copy.
	rejectGrace = 2 * time.Minute
)

// SubmitFunc hands a prepared payload to the sync engine.
type SubmitFunc func(ctx context.Context, payload []byte, destination string) (string, error)

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithSettle sets how long a file must be quiet before it is submitted.
func WithSettle(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithRescan sets how often the inbox is rescanned for files left behind.
func WithRescan(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.rescan = d
		}
	}
}

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWatcherClock overrides the clock used for destination timestamps.
func WithWatcherClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) {
		if now != nil {
			w.now = now
		}
	}
}

// Watcher submits photos dropped into an inbox directory. Submitted files move
// to inbox/submitted, undecodable files to inbox/rejected. Files whose
// submission fails stay in place for the next scan.
type Watcher struct {
	dir     string
	project string
	opts    PrepareOptions
	submit  SubmitFunc
	settle  time.Duration
	rescan  time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	quit    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewWatcher builds a watcher for dir that submits captures under project.
func NewWatcher(dir, project string, opts PrepareOptions, submit SubmitFunc, options ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:     dir,
		project: project,
		opts:    opts,
		submit:  submit,
		settle:  500 * time.Millisecond,
		rescan:  defaultRescan,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range options {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "capture")
	return w
}

// Start scans the inbox once and then watches it for new files.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch inbox %s: %w", w.dir, err)
	}

	w.fsw = fsw
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	w.wg.Add(1)
	go w.loop(ctx, fsw, quit)

	w.logger.Info("inbox watcher started",
		logging.String(logging.FieldEventType, "inbox_watch_started"),
		logging.String("dir", w.dir),
		logging.String("project", w.project),
	)
	return nil
}

// Stop shuts down the watcher and waits for in-progress submissions.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	w.quit = nil
	fsw := w.fsw
	w.fsw = nil
	w.running = false
	w.mu.Unlock()

	_ = fsw.Close()
	w.wg.Wait()
	w.logger.Info("inbox watcher stopped",
		logging.String(logging.FieldEventType, "inbox_watch_stopped"),
	)
}

// Running reports whether the watcher is active.
func (w *Watcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, quit <-chan struct{}) {
	defer w.wg.Done()

	w.Scan(ctx)

	// path -> time of the last write seen
	pending := make(map[string]time.Time)
	tick := time.NewTicker(w.settle / 2)
	defer tick.Stop()
	rescan := time.NewTicker(w.rescan)
	defer rescan.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if isCandidate(event.Name) {
					pending[event.Name] = time.Now()
				}
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(pending, event.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "inbox_watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "new files are still picked up by the periodic rescan"),
			)
		case <-tick.C:
			for path, seen := range pending {
				if time.Since(seen) < w.settle {
					continue
				}
				delete(pending, path)
				w.process(ctx, path)
			}
		case <-rescan.C:
			w.Scan(ctx)
		}
	}
}

// Scan submits every candidate file in the inbox that has been quiet for the
// settle period and returns how many were submitted.
func (w *Watcher) Scan(ctx context.Context) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logging.WarnWithContext(w.logger, "inbox scan failed", "inbox_scan_failed",
			logging.Error(err),
			logging.String("dir", w.dir),
		)
		return 0
	}
	submitted := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if !isCandidate(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil || time.Since(info.ModTime()) < w.settle {
			continue
		}
		if w.process(ctx, path) {
			submitted++
		}
	}
	return submitted
}

func (w *Watcher) process(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	name := filepath.Base(path)

	payload, err := Prepare(path, w.opts)
	if err != nil {
		if errors.Is(err, ErrNotImage) && time.Since(info.ModTime()) < rejectGrace {
			logging.WarnWithContext(w.logger, "capture not decodable yet", "capture_incomplete",
				logging.Error(err),
				logging.String("file", name),
				logging.String(logging.FieldImpact, "file left in inbox for the next scan"),
			)
			return false
		}
		if errors.Is(err, ErrNotImage) || errors.Is(err, ErrTooLarge) {
			logging.WarnWithContext(w.logger, "capture rejected", "capture_rejected",
				logging.Error(err),
				logging.String("file", name),
				logging.String(logging.FieldImpact, "file moved to the rejected folder and not uploaded"),
			)
			w.moveTo(path, rejectedDirName)
			return false
		}
		logging.WarnWithContext(w.logger, "capture read failed", "capture_read_failed",
			logging.Error(err),
			logging.String("file", name),
		)
		return false
	}

	destination := Destination(w.project, name, w.now())
	id, err := w.submit(ctx, payload, destination)
	if err != nil {
		logging.WarnWithContext(w.logger, "capture submit failed", "capture_submit_failed",
			logging.Error(err),
			logging.String("file", name),
			logging.String(logging.FieldDestination, destination),
			logging.String(logging.FieldImpact, "file left in inbox for the next scan"),
		)
		return false
	}

	w.logger.Info("capture submitted",
		logging.String(logging.FieldEventType, "capture_submitted"),
		logging.String(logging.FieldItemID, id),
		logging.String(logging.FieldDestination, destination),
		logging.Int("bytes", len(payload)),
	)
	w.moveTo(path, submittedDirName)
	return true
}

func (w *Watcher) moveTo(path, sub string) {
	dir := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.WarnWithContext(w.logger, "create inbox subfolder failed", "inbox_move_failed", logging.Error(err))
		return
	}
	target := uniquePath(filepath.Join(dir, filepath.Base(path)))
	if err := os.Rename(path, target); err != nil {
		logging.WarnWithContext(w.logger, "move capture failed", "inbox_move_failed",
			logging.Error(err),
			logging.String("file", filepath.Base(path)),
			logging.String(logging.FieldImpact, "file may be submitted again on the next scan"),
		)
	}
}

func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := base + "-" + strconv.Itoa(i) + ext
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

func isCandidate(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}
