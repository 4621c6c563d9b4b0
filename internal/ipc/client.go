package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"dhe/internal/history"
)

var (
	ErrNotConnected     = errors.New("not connected to worker")
	ErrWorkerNotRunning = errors.New("worker is not running")
)

// RemoteError is an error reply from the worker.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker error %d: %s", e.Code, e.Message)
}

// ClientConfig configures a control client.
type ClientConfig struct {
	SocketPath     string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns the defaults for a socket at path.
func DefaultClientConfig(path string) ClientConfig {
	return ClientConfig{
		SocketPath:     path,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// Client issues one request at a time over a single connection.
type Client struct {
	cfg ClientConfig

	mu     sync.Mutex
	conn   net.Conn
	nextID atomic.Uint32
}

// Dial connects to the worker's control socket.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "unix", cfg.SocketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %s", ErrWorkerNotRunning, cfg.SocketPath)
		}
		return nil, fmt.Errorf("connect: %w", err)
	}
	return &Client{cfg: cfg, conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Call sends a request of type t carrying req, waits for the reply and
// decodes it into resp. An error reply is returned as *RemoteError.
func (c *Client) Call(ctx context.Context, t MessageType, req, resp any) error {
	msg, err := NewResponse(t, c.nextID.Add(1), req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { c.conn.SetDeadline(time.Now()) })
	defer stop()

	if err := msg.Write(c.conn); err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}
	reply, err := ReadMessage(c.conn)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read %s reply: %w", t, err)
	}
	if reply.Header.RequestID != msg.Header.RequestID {
		return fmt.Errorf("reply to request %d, want %d", reply.Header.RequestID, msg.Header.RequestID)
	}

	if reply.Header.Type == MsgError {
		var e ErrorResponse
		if err := reply.Decode(&e); err != nil {
			return fmt.Errorf("decode error reply: %w", err)
		}
		return &RemoteError{Code: e.Code, Message: e.Message}
	}
	if resp == nil {
		return nil
	}
	if err := reply.Decode(resp); err != nil {
		return fmt.Errorf("decode %s: %w", reply.Header.Type, err)
	}
	return nil
}

// Ping checks that the worker answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.Call(ctx, MsgPing, nil, nil)
}

// Status returns the worker status.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.Call(ctx, MsgStatusRequest, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reload makes the worker re-read its command file.
func (c *Client) Reload(ctx context.Context) (*ReloadResponse, error) {
	var resp ReloadResponse
	if err := c.Call(ctx, MsgReloadRequest, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Paste emits Ctrl+V through the worker's virtual keyboard.
func (c *Client) Paste(ctx context.Context) error {
	return c.Call(ctx, MsgPasteRequest, nil, nil)
}

// Tap presses and releases keys through the worker's virtual keyboard.
func (c *Client) Tap(ctx context.Context, keys []string) error {
	return c.Call(ctx, MsgTapRequest, TapRequest{Keys: keys}, nil)
}

// History returns up to limit recent action invocations, newest first.
func (c *Client) History(ctx context.Context, limit int) ([]history.Entry, error) {
	var resp HistoryResponse
	if err := c.Call(ctx, MsgHistoryRequest, HistoryRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Metrics returns the worker metrics in Prometheus text format.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	var resp MetricsResponse
	if err := c.Call(ctx, MsgMetricsRequest, nil, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}
