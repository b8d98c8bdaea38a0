package config

import "time"

// Upload backend identifiers accepted by uploader.provider.
const (
	ProviderMock  = "mock"
	ProviderS3    = "s3"
	ProviderAzure = "azure"
	ProviderHTTP  = "http"
	ProviderLocal = "local"
)

// Probe identifiers accepted by connectivity.probe.
const (
	ProbeTCP    = "tcp"
	ProbeHTTP   = "http"
	ProbeAlways = "always"
)

const (
	defaultConfigPath            = "~/.config/sitesync/config.toml"
	defaultDataDir               = "~/.local/share/sitesync"
	defaultLogDir                = "~/.local/share/sitesync/logs"
	defaultInboxDir              = "~/sitesync/inbox"
	defaultLocalUploadDir        = "~/.local/share/sitesync/delivered"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultProvider              = ProviderMock
	defaultMockBaseURL           = "https://placeholder.invalid/uploads"
	defaultHTTPMethod            = "PUT"
	defaultProbe                 = ProbeTCP
	defaultProbeTarget           = "1.1.1.1:443"
	defaultProbeInterval         = 15
	defaultProbeTimeout          = 5
	defaultSyncParallelism       = 4
	defaultSyncAttemptTimeout    = 120
	defaultSyncRetryInterval     = 30
	defaultSyncBackoffBase       = 5
	defaultSyncBackoffMax        = 900
	defaultCaptureMaxDimension   = 2560
	defaultCaptureJPEGQuality    = 85
	defaultCaptureSettleMillis   = 500
	defaultCaptureMaxUploadBytes = 64 << 20
	defaultEventsTopic           = "sitesync.deliveries"
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultLogMaxSizeMB          = 50
	defaultLogMaxBackups         = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			LogDir:   defaultLogDir,
			InboxDir: defaultInboxDir,
			APIBind:  defaultAPIBind,
		},
		Uploader: Uploader{
			Provider: defaultProvider,
			HTTP:     HTTP{Method: defaultHTTPMethod},
			Local:    Local{Dir: defaultLocalUploadDir},
			Mock:     Mock{BaseURL: defaultMockBaseURL},
		},
		Connectivity: Connectivity{
			Probe:         defaultProbe,
			Target:        defaultProbeTarget,
			ProbeInterval: defaultProbeInterval,
			ProbeTimeout:  defaultProbeTimeout,
			WatchNetlink:  true,
		},
		Sync: Sync{
			Parallelism:    defaultSyncParallelism,
			AttemptTimeout: defaultSyncAttemptTimeout,
			RetryInterval:  defaultSyncRetryInterval,
			BackoffBase:    defaultSyncBackoffBase,
			BackoffMax:     defaultSyncBackoffMax,
		},
		Capture: Capture{
			MaxDimension:   defaultCaptureMaxDimension,
			JPEGQuality:    defaultCaptureJPEGQuality,
			SettleMillis:   defaultCaptureSettleMillis,
			MaxUploadBytes: defaultCaptureMaxUploadBytes,
		},
		Events: Events{
			Topic: defaultEventsTopic,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			SyncFailed:     true,
			SyncRecovered:  true,
			DeadLetter:     true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}

// AttemptTimeoutDuration returns the per-upload deadline.
func (s Sync) AttemptTimeoutDuration() time.Duration {
	return time.Duration(s.AttemptTimeout) * time.Second
}

// RetryIntervalDuration returns the period of the background retry timer.
func (s Sync) RetryIntervalDuration() time.Duration {
	return time.Duration(s.RetryInterval) * time.Second
}

// BackoffBaseDuration returns the delay applied after the first failure.
func (s Sync) BackoffBaseDuration() time.Duration {
	return time.Duration(s.BackoffBase) * time.Second
}

// BackoffMaxDuration caps the retry delay.
func (s Sync) BackoffMaxDuration() time.Duration {
	return time.Duration(s.BackoffMax) * time.Second
}

// ProbeIntervalDuration returns the connectivity probe period.
func (c Connectivity) ProbeIntervalDuration() time.Duration {
	return time.Duration(c.ProbeInterval) * time.Second
}

// ProbeTimeoutDuration bounds a single connectivity probe.
func (c Connectivity) ProbeTimeoutDuration() time.Duration {
	return time.Duration(c.ProbeTimeout) * time.Second
}
