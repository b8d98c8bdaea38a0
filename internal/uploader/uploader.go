package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"sitesync/internal/config"
)

// Uploader sends one payload to destination and returns a locator (URL or
// URI) for the stored object.
type Uploader interface {
	Upload(ctx context.Context, payload []byte, destination string) (string, error)
}

// Func adapts a function to Uploader.
type Func func(ctx context.Context, payload []byte, destination string) (string, error)

// Upload calls f.
func (f Func) Upload(ctx context.Context, payload []byte, destination string) (string, error) {
	return f(ctx, payload, destination)
}

// ErrInvalidDestination reports a destination that cannot name an object.
var ErrInvalidDestination = errors.New("invalid destination")

// PermanentClassifier lets errors declare that retrying cannot succeed.
type PermanentClassifier interface {
	PermanentError() bool
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string        { return e.err.Error() }
func (e *permanentError) Unwrap() error        { return e.err }
func (e *permanentError) PermanentError() bool { return true }

// Permanent marks err as a rejection that no retry can fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was classified as
// permanent.
func IsPermanent(err error) bool {
	var classifier PermanentClassifier
	if errors.As(err, &classifier) {
		return classifier.PermanentError()
	}
	return false
}

// New builds the backend selected by cfg.Provider.
func New(ctx context.Context, cfg config.Uploader, logger *slog.Logger) (Uploader, error) {
	switch cfg.Provider {
	case config.ProviderS3:
		return NewS3(ctx, cfg.S3)
	case config.ProviderAzure:
		return NewAzure(cfg.Azure)
	case config.ProviderHTTP:
		return NewHTTP(cfg.HTTP, nil)
	case config.ProviderLocal:
		return NewLocal(cfg.Local.Dir)
	case config.ProviderMock, "":
		return NewMock(cfg.Mock.BaseURL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported uploader provider %q", cfg.Provider)
	}
}

// CleanDestination normalizes a slash-separated destination and rejects
// ones that are empty or climb above the root.
func CleanDestination(destination string) (string, error) {
	trimmed := strings.TrimSpace(destination)
	if trimmed == "" {
		return "", Permanent(fmt.Errorf("%w: empty", ErrInvalidDestination))
	}
	if strings.ContainsRune(trimmed, '\\') || strings.ContainsRune(trimmed, 0) {
		return "", Permanent(fmt.Errorf("%w: %q contains forbidden characters", ErrInvalidDestination, destination))
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", Permanent(fmt.Errorf("%w: %q escapes the destination root", ErrInvalidDestination, destination))
		}
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+trimmed), "/")
	if cleaned == "" {
		return "", Permanent(fmt.Errorf("%w: %q names the root", ErrInvalidDestination, destination))
	}
	return cleaned, nil
}

func joinKey(prefix, destination string) string {
	if prefix == "" {
		return destination
	}
	return prefix + "/" + destination
}
