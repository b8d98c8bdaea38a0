package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Submit asks the daemon to submit the photo at path.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	return call[SubmitResponse](c, "Submit", req)
}

// Sync triggers a manual drain, optionally waiting for it to finish.
func (c *Client) Sync(wait bool) (*SyncResponse, error) {
	return call[SyncResponse](c, "Sync", SyncRequest{Wait: wait})
}

// QueueList returns queue items, optionally filtered by state.
func (c *Client) QueueList(state string) (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{State: state})
}

// QueueRequeue moves one dead-lettered item, or all of them, back to pending.
func (c *Client) QueueRequeue(id string, all bool) (*QueueRequeueResponse, error) {
	return call[QueueRequeueResponse](c, "QueueRequeue", QueueRequeueRequest{ID: id, All: all})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
