// Package daemonctl launches and stops a background sitesync daemon from the
// CLI.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"sitesync/internal/ipc"
)

// ErrDaemonNotRunning indicates no daemon process could be found.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 100 * time.Millisecond

// LaunchOptions controls how the detached daemon is started.
type LaunchOptions struct {
	ConfigPath string
	SocketPath string
	LogLevel   string
}

// StartState describes what Start found or did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult reports the outcome of Start.
type StartResult struct {
	State StartState
	PID   int
}

// Launch starts "<executable> run" in its own session so it outlives the
// calling terminal. Daemon output goes to its log file, not the caller.
func Launch(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("launch daemon: executable path is empty")
	}
	var args []string
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	args = append(args, "run")
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// Start launches the daemon unless one already answers on socketPath, then
// waits up to timeout for it to report running.
func Start(executable, socketPath string, opts LaunchOptions, timeout time.Duration) (StartResult, error) {
	if pid, ok := runningPID(socketPath); ok {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}
	if err := Launch(executable, opts); err != nil {
		return StartResult{}, err
	}
	pid, err := WaitForRunning(socketPath, timeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: pid}, nil
}

// WaitForRunning polls socketPath until the daemon reports running and
// returns its pid.
func WaitForRunning(socketPath string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pid, ok := runningPID(socketPath); ok {
			return pid, nil
		}
		time.Sleep(pollInterval)
	}
	return 0, fmt.Errorf("daemon did not start within %s; check the log file", timeout)
}

func runningPID(socketPath string) (int, bool) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return 0, false
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil || status == nil || !status.Running {
		return 0, false
	}
	return status.PID, true
}

// StopResult reports how the daemon went down.
type StopResult struct {
	PID    int
	Forced bool
}

// Stop sends SIGTERM to pid and waits up to grace for it to exit, escalating
// to SIGKILL afterwards. pidPath, when set, is removed once the process is
// gone.
func Stop(pid int, pidPath string, grace time.Duration) (StopResult, error) {
	if pid <= 0 || !alive(pid) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return result, nil
		}
		return result, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	if !waitExit(pid, grace) {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return result, fmt.Errorf("kill daemon %d: %w", pid, err)
		}
		result.Forced = true
		if !waitExit(pid, grace) {
			return result, fmt.Errorf("daemon %d survived SIGKILL", pid)
		}
		// A killed daemon cannot clean up after itself.
		if pidPath != "" {
			if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				return result, fmt.Errorf("remove pid file: %w", err)
			}
		}
	}
	return result, nil
}

func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return !alive(pid)
}

func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
