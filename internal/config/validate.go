package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateUploader(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateUploader() error {
	u := c.Uploader
	switch u.Provider {
	case ProviderMock:
		return nil
	case ProviderS3:
		if u.S3.Bucket == "" {
			return errors.New("uploader.s3.bucket must be set when uploader.provider is s3")
		}
		if (u.S3.AccessKeyID == "") != (u.S3.SecretAccessKey == "") {
			return errors.New("uploader.s3.access_key_id and uploader.s3.secret_access_key must be set together")
		}
	case ProviderAzure:
		if u.Azure.Container == "" {
			return errors.New("uploader.azure.container must be set when uploader.provider is azure")
		}
		if u.Azure.ConnectionString == "" && u.Azure.AccountURL == "" {
			return errors.New("uploader.azure.connection_string or uploader.azure.account_url must be set (or set SITESYNC_AZURE_CONNECTION_STRING)")
		}
	case ProviderHTTP:
		if u.HTTP.BaseURL == "" {
			return errors.New("uploader.http.base_url must be set when uploader.provider is http")
		}
		if !strings.HasPrefix(u.HTTP.BaseURL, "http://") && !strings.HasPrefix(u.HTTP.BaseURL, "https://") {
			return fmt.Errorf("uploader.http.base_url must be an http(s) URL, got %q", u.HTTP.BaseURL)
		}
		switch u.HTTP.Method {
		case "PUT", "POST":
		default:
			return fmt.Errorf("uploader.http.method must be PUT or POST, got %q", u.HTTP.Method)
		}
	case ProviderLocal:
		if u.Local.Dir == "" {
			return errors.New("uploader.local.dir must be set when uploader.provider is local")
		}
	default:
		return fmt.Errorf("uploader.provider %q is not supported (use mock, s3, azure, http, or local)", u.Provider)
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	switch c.Connectivity.Probe {
	case ProbeAlways:
	case ProbeTCP, ProbeHTTP:
		if c.Connectivity.Target == "" {
			return fmt.Errorf("connectivity.target must be set for the %s probe", c.Connectivity.Probe)
		}
	default:
		return fmt.Errorf("connectivity.probe %q is not supported (use tcp, http, or always)", c.Connectivity.Probe)
	}
	return ensurePositiveMap(map[string]int{
		"connectivity.probe_interval": c.Connectivity.ProbeInterval,
		"connectivity.probe_timeout":  c.Connectivity.ProbeTimeout,
	})
}

func (c *Config) validateSync() error {
	if err := ensurePositiveMap(map[string]int{
		"sync.parallelism":     c.Sync.Parallelism,
		"sync.attempt_timeout": c.Sync.AttemptTimeout,
		"sync.retry_interval":  c.Sync.RetryInterval,
		"sync.backoff_base":    c.Sync.BackoffBase,
		"sync.backoff_max":     c.Sync.BackoffMax,
	}); err != nil {
		return err
	}
	if c.Sync.BackoffMax < c.Sync.BackoffBase {
		return errors.New("sync.backoff_max must be greater than or equal to sync.backoff_base")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.MaxDimension < 0 {
		return errors.New("capture.max_dimension must be >= 0 (0 disables resizing)")
	}
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		return errors.New("capture.jpeg_quality must be between 1 and 100")
	}
	if c.Capture.WatchInbox && c.Capture.Project == "" {
		return errors.New("capture.project must be set when capture.watch_inbox is true")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
