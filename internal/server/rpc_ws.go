package server

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"

	"github.com/warpdl/mogwai/internal/peer"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel interface.
// Each WebSocket connection gets one wsChannel that bridges read/write
// operations between the WebSocket transport and the jrpc2 server.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

// Send writes a JSON-RPC message to the WebSocket connection.
func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

// Recv reads a JSON-RPC message from the WebSocket connection.
func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts down the WebSocket connection with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// handleWebSocket serves one authenticated WebSocket client until it
// disconnects. WebSocket peers have no process credentials; they are
// identified by their remote address.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, nil)
	if err != nil {
		s.log.Warning("websocket accept: %v", err)
		return
	}
	ch := &wsChannel{conn: conn, ctx: r.Context()}
	if err := s.Serve(ch, peer.StaticSource("ws:"+r.RemoteAddr)); err != nil {
		s.log.Debug("websocket client %s: %v", r.RemoteAddr, err)
	}
}
