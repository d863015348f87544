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
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call("Mirrorcast."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start watching the channel.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop watching.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// History lists recent sessions.
func (c *Client) History(limit int) (*HistoryResponse, error) {
	return call[HistoryRequest, HistoryResponse](c, "History", HistoryRequest{Limit: limit})
}

// Session fetches one recorded session.
func (c *Client) Session(id string) (*SessionResponse, error) {
	return call[SessionRequest, SessionResponse](c, "Session", SessionRequest{ID: id})
}

// StopSession ends the active mirror session.
func (c *Client) StopSession() (*StopSessionResponse, error) {
	return call[StopSessionRequest, StopSessionResponse](c, "StopSession", StopSessionRequest{})
}

// Resolve runs feed resolution for channel, or the configured channel when empty.
func (c *Client) Resolve(channel string) (*ResolveResponse, error) {
	return call[ResolveRequest, ResolveResponse](c, "Resolve", ResolveRequest{Channel: channel})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailRequest, LogTailResponse](c, "LogTail", req)
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
