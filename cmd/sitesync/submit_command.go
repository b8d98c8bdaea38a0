package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"sitesync/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var destination string
	var project string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <photo>...",
		Short: "Queue photos for upload",
		Long: "Prepare each photo and hand it to the daemon. Photos are uploaded at once when the\n" +
			"network is reachable and stored in the durable queue otherwise.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if destination != "" && len(args) > 1 {
				return fmt.Errorf("--dest applies to a single photo; use --project for several")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				results := make([]*ipc.SubmitResponse, 0, len(args))
				for _, arg := range args {
					path, err := filepath.Abs(arg)
					if err != nil {
						return fmt.Errorf("resolve %s: %w", arg, err)
					}
					resp, err := client.Submit(ipc.SubmitRequest{
						Path:        path,
						Destination: destination,
						Project:     project,
					})
					if err != nil {
						return fmt.Errorf("submit %s: %w", arg, err)
					}
					if asJSON {
						results = append(results, resp)
						continue
					}
					outcome := "uploaded"
					if resp.Queued {
						outcome = "queued"
					}
					fmt.Fprintf(out, "%s %s -> %s (%s)\n", outcome, arg, resp.Destination, resp.ID)
				}
				if asJSON {
					return writeJSON(cmd, results)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&destination, "dest", "", "Remote destination path for the photo")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project used to derive the destination (defaults to capture.project)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}
