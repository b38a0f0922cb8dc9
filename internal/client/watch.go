// ABOUTME: WebSocket subscription to the gateway's /coco broadcast stream
// ABOUTME: Logs in with the client's token and hands each message to a callback

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/coco-gateway/internal/protocol"
)

// ErrLoginRejected is returned by Watch when the gateway refuses the token.
var ErrLoginRejected = errors.New("login rejected")

// Message is one outbound gateway message. Raw holds the full document.
type Message struct {
	Type protocol.Kind
	Raw  json.RawMessage
}

// Decode unmarshals the document into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

// wsURL derives the /coco WebSocket URL from the base URL.
func (c *Client) wsURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/coco"
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/coco"
	default:
		return c.baseURL + "/coco"
	}
}

// Watch connects to /coco, logs in, and calls fn for every message after the
// ack, starting with the snapshot. It returns nil when ctx is canceled or the
// gateway closes normally, and fn's error if fn fails.
func (c *Client) Watch(ctx context.Context, fn func(Message) error) error {
	conn, _, err := websocket.Dial(ctx, c.wsURL(), &websocket.DialOptions{HTTPClient: c.wsHTTPClient()})
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.wsURL(), err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(-1)

	login := map[string]string{"type": string(protocol.KindLogin), "token": c.token}
	if err := wsjson.Write(ctx, conn, login); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	var ack protocol.Ack
	if err := wsjson.Read(ctx, conn, &ack); err != nil {
		return fmt.Errorf("reading ack: %w", err)
	}
	if !ack.Success {
		return ErrLoginRejected
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}

		var header protocol.Header
		if err := json.Unmarshal(data, &header); err != nil {
			return fmt.Errorf("decoding message: %w", err)
		}
		if err := fn(Message{Type: header.Type, Raw: data}); err != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return err
		}
	}
}

// wsHTTPClient drops the overall request timeout, which would otherwise cut
// the long-lived connection.
func (c *Client) wsHTTPClient() *http.Client {
	hc := *c.http
	hc.Timeout = 0
	return &hc
}
