package testsupport

import (
	"path/filepath"
	"testing"

	"sitesync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The uploader defaults to the local backend inside the temp tree and the
// connectivity probe to "always" so nothing touches the network.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Uploader.Provider = config.ProviderLocal
	cfgVal.Uploader.Local.Dir = filepath.Join(base, "remote")
	cfgVal.Connectivity.Probe = config.ProbeAlways
	cfgVal.Connectivity.WatchNetlink = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithProvider selects the uploader backend on the test config.
func WithProvider(provider string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Uploader.Provider = provider
	}
}

// WithInbox enables the capture inbox watcher for project.
func WithInbox(project string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.WatchInbox = true
		b.cfg.Capture.Project = project
	}
}

// WithSync overrides the sync engine tuning.
func WithSync(sync config.Sync) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync = sync
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
