package ipc_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"sitesync/internal/connectivity"
	"sitesync/internal/daemon"
	"sitesync/internal/ipc"
	"sitesync/internal/logging"
	"sitesync/internal/queue"
	"sitesync/internal/testsupport"
	"sitesync/internal/uploader"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "off"
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	up, err := uploader.New(context.Background(), cfg.Uploader, logger)
	if err != nil {
		t.Fatalf("uploader.New: %v", err)
	}
	offline := connectivity.ProberFunc(func(context.Context) error { return errors.New("offline") })
	d, err := daemon.New(cfg, store, up, logger, daemon.WithProber(offline))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running || status.Sync.State != "idle" || status.Sync.Pending != 0 {
		t.Fatalf("unexpected initial status %+v", status)
	}

	photo := filepath.Join(testsupport.BaseDir(cfg), "a.jpg")
	testsupport.WriteJPEG(t, photo, 16, 16)
	sub, err := client.Submit(ipc.SubmitRequest{Path: photo, Project: "p1"})
	if err != nil {
		t.Fatalf("Submit RPC failed: %v", err)
	}
	if !sub.Queued || !strings.HasPrefix(sub.Destination, "projects/p1/") {
		t.Fatalf("unexpected submit response %+v", sub)
	}

	list, err := client.QueueList("")
	if err != nil {
		t.Fatalf("QueueList RPC failed: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != sub.ID {
		t.Fatalf("unexpected queue list %+v", list.Items)
	}

	syncResp, err := client.Sync(true)
	if err != nil {
		t.Fatalf("Sync RPC failed: %v", err)
	}
	if syncResp.Result.Delivered != 1 || syncResp.State != "synced" {
		t.Fatalf("unexpected sync response %+v", syncResp)
	}

	health, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth RPC failed: %v", err)
	}
	if !health.DatabaseReadable || health.TotalItems != 0 {
		t.Fatalf("unexpected health %+v", health)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification RPC failed: %v", err)
	}
	if notify.Sent {
		t.Fatal("expected notification to be skipped without a topic")
	}
}

func TestIPCRequeue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "off"
	store := testsupport.MustOpenStore(t, cfg)
	up, err := uploader.New(context.Background(), cfg.Uploader, nil)
	if err != nil {
		t.Fatalf("uploader.New: %v", err)
	}
	d, err := daemon.New(cfg, store, up, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, nil)
	if err != nil {
		t.Skipf("skipping IPC server test: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	for _, dest := range []string{"a", "b"} {
		item := testsupport.MustPut(t, store, dest, []byte(dest))
		if err := store.RecordFailure(ctx, item.ID, queue.Failure{Attempts: 1, Err: "rejected", Dead: true}); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}

	dead, err := client.QueueList("dead")
	if err != nil {
		t.Fatalf("QueueList RPC failed: %v", err)
	}
	if len(dead.Items) != 2 {
		t.Fatalf("expected 2 dead items, got %d", len(dead.Items))
	}

	if _, err := client.QueueRequeue("", false); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := client.QueueRequeue("nope", false); err == nil {
		t.Fatal("expected error for unknown id")
	}

	resp, err := client.QueueRequeue(dead.Items[0].ID, false)
	if err != nil || resp.Updated != 1 {
		t.Fatalf("requeue one: resp=%+v err=%v", resp, err)
	}
	resp, err = client.QueueRequeue("", true)
	if err != nil || resp.Updated != 1 {
		t.Fatalf("requeue all: resp=%+v err=%v", resp, err)
	}
}
