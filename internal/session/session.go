// ABOUTME: Session owns one client connection's bounded outbound queue and writer goroutine
// ABOUTME: Enqueue never blocks; a write failure closes the session and reports it once

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coco-gateway/internal/protocol"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultOutboundBuffer = 256
	DefaultWriteTimeout   = 10 * time.Second
)

// ID identifies a session for its lifetime.
type ID string

// NewID returns a fresh random session ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// CloseReason tells the transport why the session ended.
type CloseReason int

const (
	ReasonNormal CloseReason = iota
	ReasonProtocolViolation
	ReasonTransportFailure
	ReasonOverflow
	ReasonReplaced
	ReasonUserDeleted
	ReasonShutdown
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNormal:
		return "normal"
	case ReasonProtocolViolation:
		return "protocol violation"
	case ReasonTransportFailure:
		return "transport failure"
	case ReasonOverflow:
		return "outbound queue overflow"
	case ReasonReplaced:
		return "replaced by a newer session"
	case ReasonUserDeleted:
		return "user deleted"
	case ReasonShutdown:
		return "server shutting down"
	default:
		return "unknown"
	}
}

// drains reports whether frames still queued at close are flushed first.
func (r CloseReason) drains() bool {
	switch r {
	case ReasonTransportFailure, ReasonOverflow:
		return false
	default:
		return true
	}
}

// Transport is the network side of a session.
type Transport interface {
	// Write sends one complete document.
	Write(ctx context.Context, data []byte) error
	// Close ends the connection. It may be called while a Write is blocked.
	Close(reason CloseReason) error
}

// Options configures a Session.
type Options struct {
	OutboundBuffer int
	WriteTimeout   time.Duration
	// OnFailure is called once, from the writer goroutine, when a write
	// fails. It must not block.
	OnFailure func(ID, error)
	Logger    *slog.Logger
}

// outbound is one queue slot: a single frame, or a batch written back to back.
type outbound struct {
	frame protocol.Frame
	batch []protocol.Frame
}

// Session is a live client connection. Its methods are safe for concurrent use.
type Session struct {
	id        ID
	transport Transport
	queue     chan outbound
	timeout   time.Duration
	onFailure func(ID, error)
	logger    *slog.Logger

	closeOnce sync.Once
	closing   chan struct{}
	reason    CloseReason
	done      chan struct{}
}

// New creates a session and starts its writer goroutine.
func New(id ID, t Transport, opts Options) *Session {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = DefaultOutboundBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:        id,
		transport: t,
		queue:     make(chan outbound, opts.OutboundBuffer),
		timeout:   opts.WriteTimeout,
		onFailure: opts.OnFailure,
		logger:    opts.Logger.With("component", "session", "session_id", string(id)),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() ID { return s.id }

// Enqueue hands a frame to the writer without blocking. It returns false if
// the session is closed or its queue is full.
func (s *Session) Enqueue(f protocol.Frame) bool {
	return s.push(outbound{frame: f})
}

// EnqueueBatch hands frames to the writer as one queue slot, however many
// there are. A login's ack and snapshot go out this way so that the snapshot
// size never counts against the live-traffic buffer.
func (s *Session) EnqueueBatch(frames []protocol.Frame) bool {
	if len(frames) == 0 {
		return true
	}
	return s.push(outbound{batch: frames})
}

func (s *Session) push(o outbound) bool {
	select {
	case <-s.closing:
		return false
	default:
	}

	select {
	case s.queue <- o:
		return true
	default:
		return false
	}
}

// Close stops the session. Only the first call has any effect; it reports
// whether this call was that one.
func (s *Session) Close(reason CloseReason) bool {
	first := false
	s.closeOnce.Do(func() {
		first = true
		s.reason = reason
		close(s.closing)
		if !reason.drains() {
			// Unblock a Write stuck on a stalled peer.
			_ = s.transport.Close(reason)
		}
	})
	return first
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Done is closed once the writer has exited and the transport is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) writeLoop() {
	defer close(s.done)

	for {
		select {
		case <-s.closing:
			s.finish()
			return
		case o := <-s.queue:
			if err := s.writeOutbound(o); err != nil {
				s.logger.Debug("write failed", "error", err)
				if s.Close(ReasonTransportFailure) && s.onFailure != nil {
					s.onFailure(s.id, err)
				}
				s.finish()
				return
			}
		}
	}
}

func (s *Session) writeOutbound(o outbound) error {
	if o.batch == nil {
		return s.write(o.frame)
	}
	for _, f := range o.batch {
		if err := s.write(f); err != nil {
			return fmt.Errorf("writing %s: %w", f.Kind(), err)
		}
	}
	return nil
}

func (s *Session) write(f protocol.Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.transport.Write(ctx, f.Bytes())
}

// finish flushes what is still queued when the close reason allows it, then
// closes the transport.
func (s *Session) finish() {
	if s.reason.drains() {
	drain:
		for {
			select {
			case o := <-s.queue:
				if err := s.writeOutbound(o); err != nil {
					break drain
				}
			default:
				break drain
			}
		}
		if err := s.transport.Close(s.reason); err != nil {
			s.logger.Debug("transport close failed", "error", err)
		}
	}
	s.logger.Debug("session closed", "reason", s.reason.String())
}
