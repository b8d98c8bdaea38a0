package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sitesync/internal/api"
	"sitesync/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, status)
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				fmt.Fprint(cmd.OutOrStdout(), renderStatus(*status, time.Now(), colorize))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output status as JSON")
	return cmd
}

func renderStatus(status api.DaemonStatus, now time.Time, colorize bool) string {
	var b strings.Builder
	b.WriteString("Daemon\n")
	daemonKind, daemonMsg := statusError, "stopped"
	if status.Running {
		daemonKind, daemonMsg = statusOK, fmt.Sprintf("running (pid %d)", status.PID)
	}
	writeLine(&b, renderStatusLine("Daemon", daemonKind, daemonMsg, colorize))
	writeLine(&b, renderStatusLine("Provider", statusInfo, status.Provider, colorize))
	writeLine(&b, renderStatusLine("Inbox watcher", statusInfo, yesNo(status.InboxWatching), colorize))

	b.WriteString("\nConnectivity\n")
	if status.Sync.Online {
		msg := "online"
		if since := parseStatusTime(status.OnlineSince); !since.IsZero() {
			msg += " since " + formatAge(since, now)
		}
		writeLine(&b, renderStatusLine("Network", statusOK, msg, colorize))
	} else {
		msg := "offline"
		if status.ProbeError != "" {
			msg += ": " + status.ProbeError
		}
		writeLine(&b, renderStatusLine("Network", statusWarn, msg, colorize))
	}
	writeLine(&b, renderStatusLine("Netlink watcher", statusInfo, yesNo(status.NetlinkWatching), colorize))

	b.WriteString("\nSync\n")
	writeLine(&b, renderStatusLine("State", syncStateKind(status.Sync.State), status.Sync.State, colorize))
	pendingKind := statusOK
	if status.Sync.Pending > 0 {
		pendingKind = statusInfo
	}
	pendingMsg := fmt.Sprintf("%d", status.Sync.Pending)
	if oldest := parseStatusTime(status.Sync.OldestEnqueuedAt); !oldest.IsZero() {
		pendingMsg += ", oldest " + formatAge(oldest, now)
	}
	writeLine(&b, renderStatusLine("Pending", pendingKind, pendingMsg, colorize))
	if status.Sync.Dead > 0 {
		writeLine(&b, renderStatusLine("Dead letters", statusError,
			fmt.Sprintf("%d (sitesync queue requeue --all)", status.Sync.Dead), colorize))
	}
	writeLine(&b, renderStatusLine("Last sync", statusInfo, formatAge(parseStatusTime(status.Sync.LastSyncAt), now), colorize))
	if status.Sync.LastError != "" {
		writeLine(&b, renderStatusLine("Last error", statusError, status.Sync.LastError, colorize))
	}
	return b.String()
}

func syncStateKind(state string) statusKind {
	switch state {
	case "synced":
		return statusOK
	case "error":
		return statusError
	default:
		return statusInfo
	}
}

func parseStatusTime(value string) time.Time {
	return api.ParseTime(value)
}

func writeLine(b *strings.Builder, line string) {
	b.WriteString(line)
	b.WriteByte('\n')
}
