package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sitesync/internal/daemonctl"
	"sitesync/internal/daemonrun"
)

const (
	startTimeout = 15 * time.Second
	stopGrace    = 20 * time.Second
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the sync daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			opts := daemonctl.LaunchOptions{
				ConfigPath: ctx.configPath,
				SocketPath: ctx.socketPath(),
				LogLevel:   logLevel,
			}
			if !ctx.configSeen {
				opts.ConfigPath = ""
			}
			result, err := daemonctl.Start(exe, opts.SocketPath, opts, startTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", result.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background sync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pid := daemonrun.ReadPID(cfg)
			if client, dialErr := ctx.dialClient(); dialErr == nil {
				if status, statusErr := client.Status(); statusErr == nil && status.PID > 0 {
					pid = status.PID
				}
				client.Close()
			}

			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(pid, cfg.PIDPath(), grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.Forced {
				fmt.Fprintf(out, "Daemon (pid %d) did not exit in %s and was killed\n", result.PID, grace)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", stopGrace, "How long to wait for a clean shutdown before killing")
	return cmd
}
