package uploader

import (
	"context"
	"log/slog"
	"strings"

	"sitesync/internal/logging"
)

// DefaultMockBaseURL is the placeholder host returned by the mock backend.
const DefaultMockBaseURL = "https://placeholder.invalid/uploads"

// Mock accepts every upload without sending anything and returns a
// placeholder URL. It lets the queue run end to end before a real remote
// store is configured.
type Mock struct {
	baseURL string
	logger  *slog.Logger
}

// NewMock returns a mock backend.
func NewMock(baseURL string, logger *slog.Logger) *Mock {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultMockBaseURL
	}
	return &Mock{baseURL: baseURL, logger: logging.NewComponentLogger(logger, "uploader")}
}

func (u *Mock) Upload(ctx context.Context, payload []byte, destination string) (string, error) {
	dest, err := CleanDestination(destination)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	u.logger.Info("mock upload",
		logging.String(logging.FieldDestination, dest),
		logging.Int("bytes", len(payload)),
	)
	return u.baseURL + "/" + dest, nil
}
