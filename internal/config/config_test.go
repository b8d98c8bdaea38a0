package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sitesync/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "sitesync")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.QueueDBPath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected queue db path: %q", cfg.QueueDBPath())
	}
	if cfg.Uploader.Provider != config.ProviderMock {
		t.Fatalf("expected mock provider by default, got %q", cfg.Uploader.Provider)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Sync.MaxAttempts != 0 {
		t.Fatalf("expected unlimited attempts by default, got %d", cfg.Sync.MaxAttempts)
	}
	if got := cfg.Sync.AttemptTimeoutDuration(); got != 120*time.Second {
		t.Fatalf("unexpected attempt timeout: %s", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "sitesync.toml")

	type payload struct {
		Uploader struct {
			Provider string `toml:"provider"`
			S3       struct {
				Bucket string `toml:"bucket"`
				Prefix string `toml:"prefix"`
			} `toml:"s3"`
		} `toml:"uploader"`
		Sync struct {
			Parallelism int `toml:"parallelism"`
			MaxAttempts int `toml:"max_attempts"`
		} `toml:"sync"`
		Events struct {
			Brokers []string `toml:"brokers"`
		} `toml:"events"`
	}
	custom := payload{}
	custom.Uploader.Provider = " S3 "
	custom.Uploader.S3.Bucket = "field-photos"
	custom.Uploader.S3.Prefix = "/site/"
	custom.Sync.Parallelism = 2
	custom.Sync.MaxAttempts = 8
	custom.Events.Brokers = []string{" kafka:9092 ", ""}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Uploader.Provider != config.ProviderS3 {
		t.Fatalf("expected provider normalized to s3, got %q", cfg.Uploader.Provider)
	}
	if cfg.Uploader.S3.Prefix != "site" {
		t.Fatalf("expected trimmed prefix, got %q", cfg.Uploader.S3.Prefix)
	}
	if cfg.Sync.Parallelism != 2 || cfg.Sync.MaxAttempts != 8 {
		t.Fatalf("unexpected sync settings: %+v", cfg.Sync)
	}
	if len(cfg.Events.Brokers) != 1 || cfg.Events.Brokers[0] != "kafka:9092" {
		t.Fatalf("unexpected brokers: %v", cfg.Events.Brokers)
	}
}

func TestEnvFallbackForUploadCredentials(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "sitesync.toml")
	contents := `
[uploader]
provider = "s3"

[uploader.s3]
bucket = "photos"

[uploader.http]
token = "file-token"
`
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SITESYNC_S3_ACCESS_KEY_ID", "env-key")
	t.Setenv("SITESYNC_S3_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("SITESYNC_HTTP_TOKEN", "env-token")
	t.Setenv("SITESYNC_AZURE_CONNECTION_STRING", "UseDevelopmentStorage=true")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Uploader.S3.AccessKeyID != "env-key" {
		t.Errorf("expected access key from env, got %q", cfg.Uploader.S3.AccessKeyID)
	}
	if cfg.Uploader.S3.SecretAccessKey != "env-secret" {
		t.Errorf("expected secret from env, got %q", cfg.Uploader.S3.SecretAccessKey)
	}
	if cfg.Uploader.HTTP.Token != "file-token" {
		t.Errorf("expected file token to win over env, got %q", cfg.Uploader.HTTP.Token)
	}
	if cfg.Uploader.Azure.ConnectionString != "UseDevelopmentStorage=true" {
		t.Errorf("expected azure connection string from env, got %q", cfg.Uploader.Azure.ConnectionString)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_bucket_here") {
		t.Fatalf("sample config missing placeholder bucket: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "sitesync") {
		t.Fatalf("expected data dir to contain sitesync, got %q", cfg.Paths.DataDir)
	}
	if cfg.Uploader.Provider != config.ProviderMock {
		t.Fatalf("expected sample provider mock, got %q", cfg.Uploader.Provider)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown provider", func(c *config.Config) { c.Uploader.Provider = "ftp" }},
		{"s3 without bucket", func(c *config.Config) { c.Uploader.Provider = config.ProviderS3 }},
		{"s3 half credentials", func(c *config.Config) {
			c.Uploader.Provider = config.ProviderS3
			c.Uploader.S3.Bucket = "b"
			c.Uploader.S3.AccessKeyID = "key"
		}},
		{"azure without container", func(c *config.Config) {
			c.Uploader.Provider = config.ProviderAzure
			c.Uploader.Azure.Container = ""
			c.Uploader.Azure.AccountURL = "https://a.blob.core.windows.net/"
		}},
		{"http without url", func(c *config.Config) { c.Uploader.Provider = config.ProviderHTTP }},
		{"http bad method", func(c *config.Config) {
			c.Uploader.Provider = config.ProviderHTTP
			c.Uploader.HTTP.BaseURL = "https://example.com"
			c.Uploader.HTTP.Method = "DELETE"
		}},
		{"unknown probe", func(c *config.Config) { c.Connectivity.Probe = "icmp" }},
		{"zero parallelism", func(c *config.Config) { c.Sync.Parallelism = 0 }},
		{"backoff max below base", func(c *config.Config) { c.Sync.BackoffMax = 1; c.Sync.BackoffBase = 10 }},
		{"jpeg quality", func(c *config.Config) { c.Capture.JPEGQuality = 101 }},
		{"inbox without project", func(c *config.Config) { c.Capture.WatchInbox = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
