package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	InboxDir string `toml:"inbox_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// S3 contains settings for the S3 (or S3-compatible) upload backend.
type S3 struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	Prefix          string `toml:"prefix"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UsePathStyle    bool   `toml:"use_path_style"`
}

// Azure contains settings for the Azure Blob Storage upload backend.
type Azure struct {
	ConnectionString string `toml:"connection_string"`
	AccountURL       string `toml:"account_url"`
	Container        string `toml:"container"`
	Prefix           string `toml:"prefix"`
}

// HTTP contains settings for the generic HTTP upload backend.
type HTTP struct {
	BaseURL string `toml:"base_url"`
	Method  string `toml:"method"`
	Token   string `toml:"token"`
}

// Local contains settings for the filesystem upload backend.
type Local struct {
	Dir string `toml:"dir"`
}

// Mock contains settings for the placeholder upload backend.
type Mock struct {
	BaseURL string `toml:"base_url"`
}

// Uploader selects and configures the remote store.
type Uploader struct {
	Provider string `toml:"provider"`
	S3       S3     `toml:"s3"`
	Azure    Azure  `toml:"azure"`
	HTTP     HTTP   `toml:"http"`
	Local    Local  `toml:"local"`
	Mock     Mock   `toml:"mock"`
}

// Connectivity configures reachability probing.
type Connectivity struct {
	Probe         string `toml:"probe"`
	Target        string `toml:"target"`
	ProbeInterval int    `toml:"probe_interval"`
	ProbeTimeout  int    `toml:"probe_timeout"`
	WatchNetlink  bool   `toml:"watch_netlink"`
}

// Sync configures the drain behavior of the sync engine.
type Sync struct {
	Parallelism    int `toml:"parallelism"`
	AttemptTimeout int `toml:"attempt_timeout"`
	RetryInterval  int `toml:"retry_interval"`
	BackoffBase    int `toml:"backoff_base"`
	BackoffMax     int `toml:"backoff_max"`
	MaxAttempts    int `toml:"max_attempts"`
}

// Capture configures photo preparation and the inbox watcher.
type Capture struct {
	WatchInbox     bool   `toml:"watch_inbox"`
	Project        string `toml:"project"`
	MaxDimension   int    `toml:"max_dimension"`
	JPEGQuality    int    `toml:"jpeg_quality"`
	SettleMillis   int    `toml:"settle_millis"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

// Events configures delivery event publishing.
type Events struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SyncFailed     bool   `toml:"sync_failed"`
	SyncRecovered  bool   `toml:"sync_recovered"`
	DeadLetter     bool   `toml:"dead_letter"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
}

// Config encapsulates all configuration values for sitesync.
//
// Configuration sections by subsystem:
//   - Paths: data, log and inbox directories plus the API bind address
//   - Uploader: remote store selection and per-backend settings
//   - Connectivity: reachability probe settings
//   - Sync: drain parallelism, timeouts and retry backoff
//   - Capture: photo preparation and inbox watching
//   - Events: Kafka delivery events
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Uploader      Uploader      `toml:"uploader"`
	Connectivity  Connectivity  `toml:"connectivity"`
	Sync          Sync          `toml:"sync"`
	Capture       Capture       `toml:"capture"`
	Events        Events        `toml:"events"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("sitesync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Capture.WatchInbox {
		dirs = append(dirs, c.Paths.InboxDir)
	}
	if c.Uploader.Provider == ProviderLocal {
		dirs = append(dirs, c.Uploader.Local.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the durable queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "sitesync.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "sitesyncd.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "sitesyncd.pid")
}

// LogPath returns the daemon log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "sitesync.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
