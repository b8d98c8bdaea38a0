package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"sitesync/internal/config"
	"sitesync/internal/daemon"
	"sitesync/internal/ipc"
	"sitesync/internal/logging"
	"sitesync/internal/queue"
	"sitesync/internal/uploader"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SocketPath overrides the IPC socket location from the config.
	SocketPath string
}

// Run starts the sitesync daemon and blocks until SIGINT, SIGTERM or cmdCtx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.Development {
		logger = logger.With(logging.Bool("development", true))
	}

	logConfigSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "queue_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions and free space"),
		)
		return err
	}

	up, err := uploader.New(signalCtx, cfg.Uploader, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("init uploader: %w", err)
	}

	d, err := daemon.New(cfg, store, up, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := cfg.SocketPath()
	if opts.SocketPath != "" {
		socketPath = opts.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("sitesync daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running daemon, or 0 when none is.
func ReadPID(cfg *config.Config) int {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("provider", cfg.Uploader.Provider),
		logging.String("probe", cfg.Connectivity.Probe),
		logging.String("probe_target", cfg.Connectivity.Target),
		logging.Bool("watch_netlink", cfg.Connectivity.WatchNetlink),
		logging.Bool("watch_inbox", cfg.Capture.WatchInbox),
		logging.Int("parallelism", cfg.Sync.Parallelism),
		logging.Int("max_attempts", cfg.Sync.MaxAttempts),
		logging.Bool("events_enabled", len(cfg.Events.Brokers) > 0 && cfg.Events.Topic != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("queue_db", cfg.QueueDBPath()),
		logging.String("api_bind", cfg.Paths.APIBind),
	)
}
