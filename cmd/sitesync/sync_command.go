package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sitesync/internal/ipc"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var noWait bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Retry every queued upload now",
		Long:  "Drain the queue immediately, ignoring backoff and the connectivity monitor.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sync(!noWait)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Scheduled {
					fmt.Fprintln(out, "Sync scheduled")
					return nil
				}
				r := resp.Result
				if r.Skipped {
					fmt.Fprintln(out, "A sync is already running")
					return nil
				}
				fmt.Fprintf(out, "Delivered %d of %d attempted (%d failed, %d dead-lettered); %d remaining, state %s\n",
					r.Delivered, r.Attempted, r.Failed, r.DeadLettered, r.Remaining, resp.State)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Schedule the sync and return immediately")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the result as JSON")
	return cmd
}
