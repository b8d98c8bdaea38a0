package daemonrun_test

import (
	"context"
	"os"
	"testing"
	"time"

	"sitesync/internal/daemonrun"
	"sitesync/internal/ipc"
	"sitesync/internal/testsupport"
)

func TestRunServesIPCUntilCanceled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "off"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"})
	}()

	var client *ipc.Client
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c, err := ipc.Dial(cfg.SocketPath())
		if err == nil {
			status, err := c.Status()
			if err == nil && status.Running {
				client = c
				break
			}
			c.Close()
		}
		time.Sleep(20 * time.Millisecond)
	}
	if client == nil {
		cancel()
		t.Fatal("daemon never became reachable over IPC")
	}
	if pid := daemonrun.ReadPID(cfg); pid != os.Getpid() {
		t.Fatalf("expected pid file with %d, got %d", os.Getpid(), pid)
	}
	client.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := daemonrun.Run(context.Background(), nil, daemonrun.Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}
