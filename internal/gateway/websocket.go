// ABOUTME: /coco WebSocket endpoint bridging coder/websocket connections to hub sessions
// ABOUTME: Reads text documents into the hub; the session's writer goroutine owns all writes

package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"

	"github.com/2389/coco-gateway/internal/session"
)

// maxMessageBytes bounds one inbound WebSocket document.
const maxMessageBytes = 64 << 10

// wsTransport adapts a WebSocket connection to session.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

// Write sends one text message.
func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

// Close ends the connection with a status matching the reason. Reasons that
// do not drain are closed without a handshake, since the peer is either gone
// or not reading and the caller may be the hub loop.
func (t *wsTransport) Close(reason session.CloseReason) error {
	switch reason {
	case session.ReasonTransportFailure, session.ReasonOverflow:
		return t.conn.CloseNow()
	}
	return t.conn.Close(closeStatus(reason), reason.String())
}

// closeStatus maps a close reason to the WebSocket status sent to the peer.
func closeStatus(reason session.CloseReason) websocket.StatusCode {
	switch reason {
	case session.ReasonProtocolViolation, session.ReasonUserDeleted:
		return websocket.StatusPolicyViolation
	case session.ReasonShutdown:
		return websocket.StatusGoingAway
	default:
		return websocket.StatusNormalClosure
	}
}

// readFailureReason classifies the error that ended the read loop.
func readFailureReason(err error) session.CloseReason {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return session.ReasonNormal
	default:
		return session.ReasonTransportFailure
	}
}

// handleCoco handles GET /coco. The connection starts anonymous; clients
// authenticate with a login or connect document carrying a token.
func (g *Gateway) handleCoco(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Clients authenticate in-band, so browser origins are not restricted.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx := r.Context()
	s, err := g.hub.Open(ctx, &wsTransport{conn: conn})
	if err != nil {
		g.logger.Warn("rejecting websocket connection", "error", err)
		_ = conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	g.logger.Debug("websocket connected", "session_id", string(s.ID()), "remote_addr", r.RemoteAddr)

	g.readLoop(ctx, conn, s)

	// Let the writer flush and send its close frame before the handler returns.
	select {
	case <-s.Done():
	case <-ctx.Done():
	}
}

// readLoop feeds inbound text documents to the hub until the connection or
// the session ends. Binary messages are ignored.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, s *session.Session) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			reason := readFailureReason(err)
			if reason == session.ReasonTransportFailure && !s.Closed() && !errors.Is(err, context.Canceled) {
				g.logger.Debug("websocket read failed", "session_id", string(s.ID()), "error", err)
			}
			_ = g.hub.Disconnect(context.WithoutCancel(ctx), s.ID(), reason)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		if err := g.hub.Receive(ctx, s.ID(), data); err != nil {
			return
		}
	}
}
