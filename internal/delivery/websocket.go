package delivery

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebSocketConn is a Conn over a websocket. Clients only listen: any data
// frame they send closes the connection.
type WebSocketConn struct {
	c    *websocket.Conn
	read context.Context
}

// AcceptWebSocket upgrades the request. The returned conn reports Done when
// the peer disconnects or r's context ends.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (*WebSocketConn, error) {
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("accept websocket: %w", err)
	}
	return &WebSocketConn{c: c, read: c.CloseRead(r.Context())}, nil
}

// Send writes f as a JSON text message.
func (w *WebSocketConn) Send(ctx context.Context, f Frame) error {
	return wsjson.Write(ctx, w.c, f)
}

// Done implements Conn.
func (w *WebSocketConn) Done() <-chan struct{} {
	return w.read.Done()
}

// Close sends a close frame with a status matching the reason.
func (w *WebSocketConn) Close(reason Reason) error {
	return w.c.Close(closeStatus(reason), string(reason))
}

func closeStatus(r Reason) websocket.StatusCode {
	switch r {
	case ReasonShutdown:
		return websocket.StatusGoingAway
	case ReasonOverflow:
		return websocket.StatusPolicyViolation
	case ReasonSendFailed, ReasonHandshake:
		return websocket.StatusInternalError
	default:
		return websocket.StatusNormalClosure
	}
}
