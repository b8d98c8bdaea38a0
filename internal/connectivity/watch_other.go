//go:build !linux

package connectivity

import (
	"context"
	"log/slog"
)

// NetWatcher is inert outside Linux; probing alone drives the monitor.
type NetWatcher struct{}

func NewNetWatcher(*slog.Logger, func(reason string)) *NetWatcher { return &NetWatcher{} }

func (w *NetWatcher) Start(context.Context) error { return nil }

func (w *NetWatcher) Stop() {}

func (w *NetWatcher) Running() bool { return false }
