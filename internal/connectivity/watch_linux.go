//go:build linux

package connectivity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"sitesync/internal/logging"
)

// NetWatcher listens for kernel network-interface events and calls onChange
// whenever a link or address changes. It watches two sources: net subsystem
// uevents and rtnetlink link/address multicast groups.
type NetWatcher struct {
	logger   *slog.Logger
	onChange func(reason string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	route   *routeSocket
	quit    chan struct{}
	running bool
}

// NewNetWatcher returns a watcher that reports changes to onChange.
func NewNetWatcher(logger *slog.Logger, onChange func(reason string)) *NetWatcher {
	return &NetWatcher{
		logger:   logging.NewComponentLogger(logger, "net-watcher"),
		onChange: onChange,
	}
}

// Start connects both sockets. A source that cannot be opened is logged and
// skipped; periodic probing still detects changes, only later.
func (w *NetWatcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	quit := make(chan struct{})

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		w.logger.Warn("failed to connect to uevent socket; interface hotplug will not trigger probes",
			logging.Error(err),
			logging.String(logging.FieldEventType, "uevent_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "reconnects are noticed at the next probe interval"),
		)
		conn = nil
	}

	route, err := openRouteSocket()
	if err != nil {
		w.logger.Warn("failed to open rtnetlink socket; address changes will not trigger probes",
			logging.Error(err),
			logging.String(logging.FieldEventType, "rtnetlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "reconnects are noticed at the next probe interval"),
		)
		route = nil
	}

	if conn == nil && route == nil {
		return nil
	}

	w.conn = conn
	w.route = route
	w.quit = quit
	w.running = true

	if conn != nil {
		go w.ueventLoop(ctx, conn, quit)
	}
	if route != nil {
		go w.routeLoop(ctx, route, quit)
	}

	w.logger.Info("network watcher started",
		logging.String(logging.FieldEventType, "net_watcher_started"),
		logging.Bool("uevent", conn != nil),
		logging.Bool("rtnetlink", route != nil),
	)
	return nil
}

// Stop closes both sockets.
func (w *NetWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	// The route loop owns its socket and closes it after observing quit.
	w.route = nil
	w.running = false

	w.logger.Info("network watcher stopped",
		logging.String(logging.FieldEventType, "net_watcher_stopped"),
	)
}

// Running reports whether at least one source is active.
func (w *NetWatcher) Running() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *NetWatcher) ueventLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(uevent)
		case err := <-errs:
			w.logger.Warn("uevent monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "uevent_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "interface hotplug detection may be affected"),
			)
		}
	}
}

// buildMatcher matches net subsystem add, remove, change and move events.
func buildMatcher() netlink.Matcher {
	action := "^(add|remove|change|move)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^net$",
		},
	})
	return rules
}

func (w *NetWatcher) handleEvent(uevent netlink.UEvent) {
	iface := uevent.Env["INTERFACE"]
	if iface == "lo" {
		return
	}
	w.logger.Debug("network interface event",
		logging.String("action", string(uevent.Action)),
		logging.String("interface", iface),
		logging.String("kobj", uevent.KObj),
	)
	if w.onChange != nil {
		w.onChange("uevent " + string(uevent.Action))
	}
}

func (w *NetWatcher) routeLoop(ctx context.Context, route *routeSocket, quit <-chan struct{}) {
	defer route.Close()
	buf := make([]byte, 1<<16)
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		default:
		}

		reason, err := route.Read(buf)
		if err != nil {
			w.logger.Warn("rtnetlink read failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "rtnetlink_read_failed"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "address change detection stopped"),
			)
			return
		}
		if reason == "" {
			continue
		}
		w.logger.Debug("route event", logging.String("kind", reason))
		if w.onChange != nil {
			w.onChange(reason)
		}
	}
}
