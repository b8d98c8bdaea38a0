package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sitesync/internal/api"
	"sitesync/internal/capture"
	"sitesync/internal/config"
	"sitesync/internal/logging"
	"sitesync/internal/queue"
	"sitesync/internal/syncer"
)

const requestIDHeader = "X-Request-ID"

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	router   *gin.Engine
	maxBytes int64

	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when paths.api_bind is "off".
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" || strings.EqualFold(bind, "off") {
		return nil
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = 8 << 20

	srv := &apiServer{
		bind:     bind,
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		router:   router,
		maxBytes: cfg.Capture.MaxUploadBytes,
	}

	router.Use(gin.Recovery(), srv.requestLogger())
	group := router.Group("/api", authMiddleware(cfg.Paths.APIToken))
	group.GET("/status", srv.handleStatus)
	group.GET("/queue", srv.handleQueue)
	group.GET("/health", srv.handleHealth)
	group.POST("/captures", srv.handleCapture)
	group.POST("/sync", srv.handleSync)
	group.POST("/queue/:id/requeue", srv.handleRequeue)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_server_error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))

		started := time.Now()
		c.Next()

		logging.WithContext(c.Request.Context(), s.logger).Debug("api request",
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(started)),
		)
	}
}

func (s *apiServer) handleStatus(c *gin.Context) {
	status, err := s.daemon.Status(c.Request.Context())
	if err != nil {
		s.writeError(c, failureStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, status.API())
}

func (s *apiServer) handleQueue(c *gin.Context) {
	items, err := s.daemon.ListQueue(c.Request.Context())
	if err != nil {
		s.writeError(c, failureStatus(err), err)
		return
	}
	if state := strings.TrimSpace(c.Query("state")); state != "" {
		filtered := items[:0]
		for _, item := range items {
			if string(item.State) == state {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	c.JSON(http.StatusOK, api.QueueListResponse{Items: api.FromQueueItems(items)})
}

func (s *apiServer) handleHealth(c *gin.Context) {
	health, err := s.daemon.DatabaseHealth(c.Request.Context())
	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, api.FromHealth(health))
}

func (s *apiServer) handleCapture(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		s.writeError(c, http.StatusBadRequest, fmt.Errorf("image: %w", err))
		return
	}
	if s.maxBytes > 0 && file.Size > s.maxBytes {
		s.writeError(c, http.StatusRequestEntityTooLarge, capture.ErrTooLarge)
		return
	}
	src, err := file.Open()
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		s.writeError(c, http.StatusInternalServerError, err)
		return
	}

	sub, err := s.daemon.SubmitPhoto(c.Request.Context(), data, file.Filename, c.PostForm("destination"), c.PostForm("project"))
	switch {
	case err == nil:
	case errors.Is(err, ErrNoDestination), errors.Is(err, syncer.ErrEmptyDestination), errors.Is(err, capture.ErrNotImage):
		s.writeError(c, http.StatusBadRequest, err)
		return
	case errors.Is(err, capture.ErrTooLarge):
		s.writeError(c, http.StatusRequestEntityTooLarge, err)
		return
	default:
		s.writeError(c, failureStatus(err), err)
		return
	}

	code := http.StatusCreated
	if sub.Queued {
		code = http.StatusAccepted
	}
	c.JSON(code, api.SubmitResponse{ID: sub.ID, Destination: sub.Destination, Queued: sub.Queued})
}

func (s *apiServer) handleSync(c *gin.Context) {
	wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if !wait {
		s.daemon.TriggerSync()
		c.JSON(http.StatusAccepted, gin.H{"scheduled": true})
		return
	}
	result, err := s.daemon.Sync(c.Request.Context())
	if err != nil {
		s.writeError(c, failureStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, api.FromDrainResult(result))
}

func (s *apiServer) handleRequeue(c *gin.Context) {
	id := c.Param("id")
	ok, err := s.daemon.Requeue(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, failureStatus(err), err)
		return
	}
	if !ok {
		s.writeError(c, http.StatusNotFound, fmt.Errorf("queue item %q not found", id))
		return
	}
	c.JSON(http.StatusOK, api.RequeueResponse{ID: id, Requeued: true})
}

// failureStatus maps a daemon failure to a response code. Queue database
// failures are reported as unavailable so clients keep their copy and retry.
func failureStatus(err error) int {
	if queue.IsStoreError(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *apiServer) writeError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request.Context(), s.logger).Warn("api request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String("path", c.FullPath()),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
