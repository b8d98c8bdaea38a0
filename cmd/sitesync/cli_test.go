package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sitesync/internal/api"
	"sitesync/internal/config"
	"sitesync/internal/queue"
	"sitesync/internal/testsupport"
)

func TestCLISubmitQueueAndSync(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	photo := filepath.Join(env.baseDir, "north wall.jpg")
	testsupport.WriteJPEG(t, photo, 32, 24)

	out, _, err := runCLI(t, []string{"submit", photo}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "queued", "projects/site-7/")

	count, err := env.store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 queued item, got %d", count)
	}

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "north wall.jpg", "pending")

	out, _, err = runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.Sync.Pending != 1 || status.Sync.Online {
		t.Fatalf("unexpected status: %+v", status)
	}

	out, _, err = runCLI(t, []string{"sync"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "Delivered 1 of 1", "0 remaining", "state synced")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list after sync: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	matches, err := filepath.Glob(filepath.Join(env.cfg.Uploader.Local.Dir, "projects", "site-7", "*_north wall.jpg"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected delivered photo, got %v (err %v)", matches, err)
	}
}

func TestCLISubmitExplicitDestination(t *testing.T) {
	env := setupCLITestEnv(t)

	photo := filepath.Join(env.baseDir, "a.jpg")
	testsupport.WriteJPEG(t, photo, 8, 8)

	out, _, err := runCLI(t, []string{"submit", "--json", "--dest", "custom/a.jpg", photo}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var results []api.SubmitResponse
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("decode submit output: %v", err)
	}
	if len(results) != 1 || results[0].Destination != "custom/a.jpg" || !results[0].Queued {
		t.Fatalf("unexpected submit results: %+v", results)
	}

	_, _, err = runCLI(t, []string{"submit", "--dest", "x.jpg", photo, photo}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "--dest") {
		t.Fatalf("expected --dest with several photos to fail, got %v", err)
	}
}

func TestCLIQueueRequeue(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	dead := queue.Item{
		ID:          "dead-1",
		Destination: "projects/x/1_a.jpg",
		Payload:     []byte("jpeg"),
		EnqueuedAt:  time.Now(),
		State:       queue.StateDead,
		Attempts:    5,
		LastError:   "403 forbidden",
	}
	if err := env.store.Put(ctx, dead); err != nil {
		t.Fatalf("Put: %v", err)
	}

	out, _, err := runCLI(t, []string{"queue", "list", "--state", "dead"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list --state dead: %v", err)
	}
	requireContains(t, out, "dead-1", "403 forbidden")

	if _, _, err := runCLI(t, []string{"queue", "requeue"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected requeue without id or --all to fail")
	}
	if _, _, err := runCLI(t, []string{"queue", "requeue", "missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected requeue of unknown id to fail")
	}

	out, _, err = runCLI(t, []string{"queue", "requeue", "--all"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue requeue --all: %v", err)
	}
	requireContains(t, out, "Requeued 1 dead-lettered item(s)")

	// Requeueing schedules a drain, and the local backend accepts the upload.
	waitFor(t, "requeued item delivery", func() bool {
		_, ok, err := env.store.Get(ctx, "dead-1")
		return err == nil && !ok
	})
	delivered := filepath.Join(env.cfg.Uploader.Local.Dir, "projects", "x", "1_a.jpg")
	if _, err := os.Stat(delivered); err != nil {
		t.Fatalf("expected delivered file: %v", err)
	}
}

func TestCLIQueueHealthAndTestNotify(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Queue database", env.cfg.QueueDBPath(), "Integrity")

	out, _, err = runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Fatal("expected test-notify to explain the missing topic")
	}
}

func TestCLIReportsMissingDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")
	_, _, err := runCLI(t, []string{"status"}, socket, configPath)
	if err == nil || !strings.Contains(err.Error(), "sitesync run") {
		t.Fatalf("expected start hint, got %v", err)
	}
}

func TestConfigInitShowValidate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sitesync.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file: %v", err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected config init to refuse overwriting")
	}

	cfg := testsupport.NewConfig(t)
	cfg.Uploader.Provider = config.ProviderHTTP
	cfg.Uploader.HTTP.BaseURL = "https://uploads.example.com/v1"
	cfg.Uploader.HTTP.Token = "super-secret"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err = runCLI(t, []string{"config", "show"}, "", configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, configPath, "https://uploads.example.com/v1", redacted)
	if strings.Contains(out, "super-secret") {
		t.Fatalf("config show leaked a secret:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid", cfg.QueueDBPath())
}

func TestCLILogsPrintsTail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.LogPath()), 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	if err := os.WriteFile(cfg.LogPath(), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, "", configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestCLIStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")
	out, _, err := runCLI(t, []string{"stop"}, socket, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "not running")
}
