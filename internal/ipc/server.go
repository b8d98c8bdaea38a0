package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"sitesync/internal/api"
	"sitesync/internal/daemon"
	"sitesync/internal/logging"
)

// serviceName prefixes every RPC method.
const serviceName = "Sitesync"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}
	*resp = status.API()
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	sub, err := s.daemon.SubmitFile(s.ctx, req.Path, req.Destination, req.Project)
	if err != nil {
		return err
	}
	*resp = api.SubmitResponse{ID: sub.ID, Destination: sub.Destination, Queued: sub.Queued}
	return nil
}

func (s *service) Sync(req SyncRequest, resp *SyncResponse) error {
	if !req.Wait {
		s.daemon.TriggerSync()
		resp.Scheduled = true
		return nil
	}
	s.logger.Debug("manual sync requested")
	result, err := s.daemon.Sync(s.ctx)
	if err != nil {
		return err
	}
	resp.Result = api.FromDrainResult(result)
	resp.State = string(s.daemon.Engine().State())
	s.logger.Info("manual sync finished",
		logging.String(logging.FieldEventType, "manual_sync"),
		logging.Int("delivered", result.Delivered),
		logging.Int("remaining", result.Remaining))
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	items, err := s.daemon.ListQueue(s.ctx)
	if err != nil {
		return err
	}
	state := strings.TrimSpace(req.State)
	resp.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		dto := api.FromQueueItem(item)
		if state != "" && dto.State != state {
			continue
		}
		resp.Items = append(resp.Items, dto)
	}
	return nil
}

func (s *service) QueueRequeue(req QueueRequeueRequest, resp *QueueRequeueResponse) error {
	if req.All {
		updated, err := s.daemon.RequeueDead(s.ctx)
		if err != nil {
			return err
		}
		resp.Updated = updated
		return nil
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("queue requeue requires an id")
	}
	ok, err := s.daemon.Requeue(s.ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("queue item %s not found", id)
	}
	resp.Updated = 1
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	*resp = api.FromHealth(health)
	if err != nil && health.Error == "" {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
