// ABOUTME: Session lifecycle on the hub: open, inbound requests, login, and close
// ABOUTME: Login sends an ack, the snapshot, and a presence notice in that order

package hub

import (
	"context"
	"fmt"

	"github.com/2389/coco-gateway/internal/protocol"
	"github.com/2389/coco-gateway/internal/session"
)

// Open registers a new anonymous session writing to t.
func (h *Hub) Open(ctx context.Context, t session.Transport) (*session.Session, error) {
	s := session.New(session.NewID(), t, h.sessionOpts)
	if err := h.Do(ctx, func() { h.registry.Open(s) }); err != nil {
		s.Close(session.ReasonShutdown)
		return nil, err
	}
	h.logger.Debug("session opened", "session_id", string(s.ID()))
	return s, nil
}

// Receive handles one inbound document from a session. A malformed document
// closes the session with a protocol violation and the parse error is
// returned so the caller can stop reading.
func (h *Hub) Receive(ctx context.Context, id session.ID, data []byte) error {
	req, err := protocol.ParseRequest(data)
	if err != nil {
		h.logger.Debug("protocol violation", "session_id", string(id), "error", err)
		if closeErr := h.Disconnect(ctx, id, session.ReasonProtocolViolation); closeErr != nil {
			return closeErr
		}
		return err
	}

	return h.Do(ctx, func() {
		s := h.registry.Session(id)
		if s == nil {
			return
		}
		if req.Type.IsLogin() {
			h.login(ctx, s, req)
			return
		}
		h.sendTo(s, h.encode(protocol.All, protocol.Error{
			Header:  protocol.Header{Type: protocol.KindError},
			Message: fmt.Sprintf("unsupported request type %q", req.Type),
		}))
	})
}

// Disconnect deregisters and closes a session. Closing an unknown or already
// closed session does nothing.
func (h *Hub) Disconnect(ctx context.Context, id session.ID, reason session.CloseReason) error {
	return h.Do(ctx, func() { h.dropSession(id, reason) })
}

// transportFailed is the sessions' OnFailure callback. It runs on a writer
// goroutine and must not block it.
func (h *Hub) transportFailed(id session.ID, err error) {
	h.logger.Debug("transport failed", "session_id", string(id), "error", err)
	go h.post(func() { h.dropSession(id, session.ReasonTransportFailure) })
}

// login authenticates a session. Credential failures are answered with a
// negative ack and leave the session open for another attempt.
func (h *Hub) login(ctx context.Context, s *session.Session, req protocol.Request) {
	if _, ok := h.registry.LookupUser(s.ID()); ok {
		h.sendTo(s, h.encode(protocol.All, protocol.Error{
			Header:  protocol.Header{Type: protocol.KindError},
			Message: session.ErrAlreadyAuthenticated.Error(),
		}))
		return
	}

	user, err := h.authenticateToken(ctx, req.Token)
	if err != nil {
		h.logger.Info("login rejected", "session_id", string(s.ID()), "error", err)
		h.sendTo(s, h.ack(req.Type, nil))
		return
	}

	frames, err := h.snapshot(ctx, user)
	if err != nil {
		h.logger.Error("building snapshot", "user_id", user.ID, "error", err)
		h.sendTo(s, h.ack(req.Type, nil))
		return
	}

	displaced, err := h.registry.Authenticate(s.ID(), user.ID, user.IsPrivileged())
	if err != nil {
		h.logger.Error("authenticating session", "session_id", string(s.ID()), "error", err)
		h.sendTo(s, h.ack(req.Type, nil))
		return
	}
	if displaced != nil {
		h.logger.Info("session replaced", "user_id", user.ID, "old_session_id", string(displaced.ID()))
		displaced.Close(session.ReasonReplaced)
	}

	h.logger.Info("user connected", "session_id", string(s.ID()), "user_id", user.ID, "username", user.Username)
	view := protocol.NewUserView(user)
	// The ack and snapshot share one queue slot, so a snapshot of any size
	// fits behind whatever live traffic is already queued.
	if !h.sendBatch(s, append([]protocol.Frame{h.ack(req.Type, &view)}, frames...)) {
		return
	}

	if displaced == nil {
		h.broadcastExcept(h.encode(protocol.PrivilegedOnly, protocol.Presence{
			Header: protocol.Header{Type: protocol.KindUserConnected},
			ID:     user.ID,
		}), s.ID())
	}
}

func (h *Hub) ack(kind protocol.Kind, user *protocol.UserView) protocol.Frame {
	return h.encode(protocol.All, protocol.Ack{
		Header:  protocol.Header{Type: kind},
		Success: user != nil,
		User:    user,
	})
}
