package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeUploader(); err != nil {
		return err
	}
	c.normalizeConnectivity()
	c.normalizeSync()
	c.normalizeCapture()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		c.Paths.InboxDir = defaultInboxDir
	}
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = envValue("SITESYNC_API_TOKEN")
	}
	return nil
}

func (c *Config) normalizeUploader() error {
	u := &c.Uploader
	u.Provider = strings.ToLower(strings.TrimSpace(u.Provider))
	if u.Provider == "" {
		u.Provider = defaultProvider
	}

	u.S3.Bucket = strings.TrimSpace(u.S3.Bucket)
	u.S3.Region = strings.TrimSpace(u.S3.Region)
	u.S3.Endpoint = strings.TrimSpace(u.S3.Endpoint)
	u.S3.Prefix = strings.Trim(strings.TrimSpace(u.S3.Prefix), "/")
	u.S3.AccessKeyID = strings.TrimSpace(u.S3.AccessKeyID)
	if u.S3.AccessKeyID == "" {
		u.S3.AccessKeyID = envValue("SITESYNC_S3_ACCESS_KEY_ID")
	}
	u.S3.SecretAccessKey = strings.TrimSpace(u.S3.SecretAccessKey)
	if u.S3.SecretAccessKey == "" {
		u.S3.SecretAccessKey = envValue("SITESYNC_S3_SECRET_ACCESS_KEY")
	}

	u.Azure.ConnectionString = strings.TrimSpace(u.Azure.ConnectionString)
	if u.Azure.ConnectionString == "" {
		u.Azure.ConnectionString = envValue("SITESYNC_AZURE_CONNECTION_STRING")
	}
	u.Azure.AccountURL = strings.TrimSpace(u.Azure.AccountURL)
	u.Azure.Container = strings.TrimSpace(u.Azure.Container)
	u.Azure.Prefix = strings.Trim(strings.TrimSpace(u.Azure.Prefix), "/")

	u.HTTP.BaseURL = strings.TrimRight(strings.TrimSpace(u.HTTP.BaseURL), "/")
	u.HTTP.Method = strings.ToUpper(strings.TrimSpace(u.HTTP.Method))
	if u.HTTP.Method == "" {
		u.HTTP.Method = defaultHTTPMethod
	}
	u.HTTP.Token = strings.TrimSpace(u.HTTP.Token)
	if u.HTTP.Token == "" {
		u.HTTP.Token = envValue("SITESYNC_HTTP_TOKEN")
	}

	if strings.TrimSpace(u.Local.Dir) == "" {
		u.Local.Dir = defaultLocalUploadDir
	}
	var err error
	if u.Local.Dir, err = expandPath(u.Local.Dir); err != nil {
		return fmt.Errorf("uploader.local.dir: %w", err)
	}

	u.Mock.BaseURL = strings.TrimRight(strings.TrimSpace(u.Mock.BaseURL), "/")
	if u.Mock.BaseURL == "" {
		u.Mock.BaseURL = defaultMockBaseURL
	}
	return nil
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.Probe = strings.ToLower(strings.TrimSpace(c.Connectivity.Probe))
	if c.Connectivity.Probe == "" {
		c.Connectivity.Probe = defaultProbe
	}
	c.Connectivity.Target = strings.TrimSpace(c.Connectivity.Target)
	if c.Connectivity.Target == "" && c.Connectivity.Probe == ProbeTCP {
		c.Connectivity.Target = defaultProbeTarget
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.Parallelism == 0 {
		c.Sync.Parallelism = defaultSyncParallelism
	}
	if c.Sync.MaxAttempts < 0 {
		c.Sync.MaxAttempts = 0
	}
}

func (c *Config) normalizeCapture() {
	c.Capture.Project = strings.TrimSpace(c.Capture.Project)
	if c.Capture.JPEGQuality == 0 {
		c.Capture.JPEGQuality = defaultCaptureJPEGQuality
	}
	if c.Capture.SettleMillis <= 0 {
		c.Capture.SettleMillis = defaultCaptureSettleMillis
	}
	if c.Capture.MaxUploadBytes <= 0 {
		c.Capture.MaxUploadBytes = defaultCaptureMaxUploadBytes
	}
}

func (c *Config) normalizeEvents() {
	brokers := make([]string, 0, len(c.Events.Brokers))
	for _, broker := range c.Events.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	c.Events.Brokers = brokers
	c.Events.Topic = strings.TrimSpace(c.Events.Topic)
	if c.Events.Topic == "" {
		c.Events.Topic = defaultEventsTopic
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
