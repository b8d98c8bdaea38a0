package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sitesync/internal/api"
	"sitesync/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the upload queue",
	}
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueRequeueCommand(ctx))
	cmd.AddCommand(newQueueHealthCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var state string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List undelivered captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			state = strings.ToLower(strings.TrimSpace(state))
			if state != "" && state != "pending" && state != "dead" {
				return fmt.Errorf("invalid state %q (want pending or dead)", state)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(state)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Items)
				}
				out := cmd.OutOrStdout()
				if len(resp.Items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderQueueTable(resp.Items, time.Now()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (pending or dead)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output items as JSON")
	return cmd
}

func renderQueueTable(items []api.QueueItem, now time.Time) string {
	headers := []string{"ID", "Destination", "Size", "State", "Attempts", "Enqueued", "Last Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			truncate(item.ID, 8),
			truncate(item.Destination, 48),
			formatBytes(item.Size),
			item.State,
			strconv.Itoa(item.Attempts),
			formatAge(api.ParseTime(item.EnqueuedAt), now),
			truncate(item.LastError, 40),
		})
	}
	return renderTable(headers, rows, aligns)
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "requeue [id]",
		Short: "Return dead-lettered captures to the pending queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("specify exactly one of an item id or --all")
			}
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRequeue(id, all)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if all {
					fmt.Fprintf(out, "Requeued %d dead-lettered item(s)\n", resp.Updated)
					return nil
				}
				fmt.Fprintf(out, "Requeued %s\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Requeue every dead-lettered item")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the queue database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				health, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, health)
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				var b strings.Builder
				b.WriteString("Queue database\n")
				writeLine(&b, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
				writeLine(&b, renderStatusLine("Exists", boolKind(health.DatabaseExists), yesNo(health.DatabaseExists), colorize))
				writeLine(&b, renderStatusLine("Readable", boolKind(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize))
				writeLine(&b, renderStatusLine("Integrity", boolKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
				writeLine(&b, renderStatusLine("Schema version", statusInfo, strconv.Itoa(health.SchemaVersion), colorize))
				writeLine(&b, renderStatusLine("Items", statusInfo, strconv.Itoa(health.TotalItems), colorize))
				if health.FreeBytesKnown {
					writeLine(&b, renderStatusLine("Free space", statusInfo, formatBytes(int64(health.FreeBytes)), colorize))
				}
				if health.Error != "" {
					writeLine(&b, renderStatusLine("Error", statusError, health.Error, colorize))
				}
				fmt.Fprint(cmd.OutOrStdout(), b.String())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output diagnostics as JSON")
	return cmd
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
