// Package mogwaicli is a client for the mogwai scheduler daemon. It speaks
// JSON-RPC over the daemon's Unix socket or its authenticated WebSocket
// endpoint, and dispatches the daemon's push notifications to handlers.
package mogwaicli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
)

// ErrDisconnect may be returned by a Handler to make Listen return nil.
var ErrDisconnect = errors.New("disconnect")

// ErrConnectionClosed is returned by Listen when the daemon goes away.
var ErrConnectionClosed = errors.New("connection to daemon closed")

type Client struct {
	rpc *jrpc2.Client
	d   *Dispatcher

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewClient connects to the daemon's Unix socket, honouring
// MOGWAI_SOCKET_PATH.
func NewClient() (*Client, error) {
	return Dial(SocketPath())
}

// Dial connects to the daemon socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("error connecting to server: %w", err)
	}
	return NewClientWithChannel(channel.Line(conn, conn)), nil
}

// DialWebSocket connects to the daemon's /jsonrpc/ws endpoint at url
// (ws:// or wss://) using token as the bearer secret.
func DialWebSocket(ctx context.Context, url, token string) (*Client, error) {
	conn, _, err := cws.Dial(ctx, url, &cws.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s: %w", url, err)
	}
	return NewClientWithChannel(&wsChannel{conn: conn, ctx: context.Background()}), nil
}

// NewClientWithChannel creates a Client over an established channel.
func NewClientWithChannel(ch channel.Channel) *Client {
	c := &Client{
		d:       newDispatcher(),
		stopped: make(chan struct{}),
	}
	c.rpc = jrpc2.NewClient(ch, &jrpc2.ClientOptions{
		OnNotify: c.d.process,
		OnStop: func(*jrpc2.Client, error) {
			c.stopOnce.Do(func() { close(c.stopped) })
		},
	})
	return c
}

// AddHandler registers h for notifications of method.
func (c *Client) AddHandler(method string, h Handler) {
	c.d.AddHandler(method, h)
}

// Listen blocks until ctx is done, a handler fails, or the connection
// closes. A handler returning ErrDisconnect ends it with a nil error.
func (c *Client) Listen(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.d.errc:
		if errors.Is(err, ErrDisconnect) {
			return nil
		}
		return fmt.Errorf("error processing: %w", err)
	case <-c.stopped:
		return ErrConnectionClosed
	}
}

// Close disconnects from the daemon. Entries scheduled through this
// client are removed by the daemon.
func (c *Client) Close() error {
	return c.rpc.Close()
}

type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}
