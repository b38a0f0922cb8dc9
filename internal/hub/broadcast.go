// ABOUTME: Event fan-out to session outbound queues
// ABOUTME: A recipient whose queue overflows is dropped after the fan-out; others are unaffected

package hub

import (
	"github.com/2389/coco-gateway/internal/protocol"
	"github.com/2389/coco-gateway/internal/session"
)

// broadcast enqueues f to every authenticated session its audience admits.
func (h *Hub) broadcast(f protocol.Frame) {
	h.broadcastExcept(f, "")
}

// broadcastExcept is broadcast skipping one session. Sessions that overflow
// are dropped only after every recipient has f, so the user_disconnected
// notice a drop emits lands behind f in every queue.
func (h *Hub) broadcastExcept(f protocol.Frame, skip session.ID) {
	if f.IsZero() {
		return
	}
	var overflowed []session.ID
	for _, s := range h.registry.Recipients(f.Audience()) {
		if s.ID() == skip {
			continue
		}
		if !h.enqueue(s, f) {
			overflowed = append(overflowed, s.ID())
		}
	}
	for _, id := range overflowed {
		h.dropSession(id, session.ReasonOverflow)
	}
}

// sendTo enqueues f to one session. Overflow is treated as a transport failure.
func (h *Hub) sendTo(s *session.Session, f protocol.Frame) {
	if f.IsZero() {
		return
	}
	if !h.enqueue(s, f) {
		h.dropSession(s.ID(), session.ReasonOverflow)
	}
}

// sendBatch enqueues frames to one session as a single queue slot. It reports
// whether the session is still open afterwards.
func (h *Hub) sendBatch(s *session.Session, frames []protocol.Frame) bool {
	batch := make([]protocol.Frame, 0, len(frames))
	for _, f := range frames {
		if !f.IsZero() {
			batch = append(batch, f)
		}
	}
	if s.EnqueueBatch(batch) {
		return true
	}
	if !s.Closed() {
		h.logger.Warn("outbound queue full, dropping session",
			"session_id", string(s.ID()),
			"frames", len(batch))
		h.dropSession(s.ID(), session.ReasonOverflow)
	}
	return false
}

// enqueue reports false only when s overflowed and must be dropped. A session
// already closing counts as delivered; its close path deregisters it.
func (h *Hub) enqueue(s *session.Session, f protocol.Frame) bool {
	if s.Enqueue(f) || s.Closed() {
		return true
	}
	h.logger.Warn("outbound queue full, dropping session",
		"session_id", string(s.ID()),
		"kind", f.Kind())
	return false
}

// dropSession deregisters and closes a session. If it was authenticated, the
// remaining privileged sessions learn that its user went offline.
func (h *Hub) dropSession(id session.ID, reason session.CloseReason) {
	userID := h.registry.Close(id, reason)
	if userID == "" {
		return
	}
	h.logger.Info("user disconnected",
		"session_id", string(id),
		"user_id", userID,
		"reason", reason.String())
	h.broadcast(protocol.MustEncode(protocol.PrivilegedOnly, protocol.Presence{
		Header: protocol.Header{Type: protocol.KindUserDisconnected},
		ID:     userID,
	}))
}
