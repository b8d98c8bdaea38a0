package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"sitesync/internal/config"
)

// HTTP sends each payload as the body of a PUT or POST to
// base_url/destination.
type HTTP struct {
	base   *url.URL
	method string
	token  string
	client *http.Client
}

// NewHTTP builds an HTTP backend. A nil client uses a client that does not
// follow redirects, so a redirect to a login page is not mistaken for
// success.
func NewHTTP(cfg config.HTTP, client *http.Client) (*HTTP, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", cfg.BaseURL)
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPut
	}
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	return &HTTP{base: base, method: method, token: cfg.Token, client: client}, nil
}

func (u *HTTP) Upload(ctx context.Context, payload []byte, destination string) (string, error) {
	dest, err := CleanDestination(destination)
	if err != nil {
		return "", err
	}
	target := u.base.JoinPath(strings.Split(dest, "/")...)

	req, err := http.NewRequestWithContext(ctx, u.method, target.String(), bytes.NewReader(payload))
	if err != nil {
		return "", Permanent(fmt.Errorf("build upload request: %w", err))
	}
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", http.DetectContentType(payload))
	req.Header.Set("User-Agent", "sitesync")
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		if loc, err := resp.Location(); err == nil {
			return loc.String(), nil
		}
		return target.String(), nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
	return "", fmt.Errorf("upload %s: %w", target, statusErr)
}

// StatusError is a non-2xx response from an HTTP remote store.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// PermanentError treats client errors as final, except timeouts, rate
// limiting and rejected credentials. A rotated token is fixed in config
// without requeueing the backlog.
func (e *StatusError) PermanentError() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusUnauthorized, http.StatusForbidden:
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsAuthFailure reports whether the remote store rejected the credentials.
func IsAuthFailure(err error) bool {
	return IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden)
}

// IsStatus reports whether err carries an HTTP status error with code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}
