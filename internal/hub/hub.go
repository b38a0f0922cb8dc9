// ABOUTME: Hub is the single-writer event loop owning the domain store, session registry, and solver mirror
// ABOUTME: Every mutation, login, close, and engine event runs on its goroutine in arrival order

package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/engine"
	"github.com/2389/coco-gateway/internal/event"
	"github.com/2389/coco-gateway/internal/session"
	"github.com/2389/coco-gateway/internal/store"
)

// DefaultInboxSize is the capacity of the hub's inbound queue.
const DefaultInboxSize = 1024

// ErrStopped is returned by calls made after the hub's loop has exited.
var ErrStopped = errors.New("hub stopped")

// Config configures a Hub.
type Config struct {
	Store  store.Store
	Tokens auth.Tokens

	// Root is the domain root users must hold to log in. Empty disables the check.
	Root     string
	TokenTTL time.Duration

	OutboundBuffer int
	WriteTimeout   time.Duration
	InboxSize      int

	Logger *slog.Logger
}

// Hub serializes every access to the domain store and session registry on one
// goroutine. Callers hand it work through Do (synchronous) or Handle
// (asynchronous); both preserve arrival order.
type Hub struct {
	store    store.Store
	tokens   auth.Tokens
	root     string
	tokenTTL time.Duration

	registry *session.Registry
	tracker  *engine.Tracker

	sessionOpts session.Options

	inbox   chan func()
	ready   chan struct{}
	done    chan struct{}
	running atomic.Bool

	logger *slog.Logger
}

// New creates a hub. Call Run to start its loop.
func New(cfg Config) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = auth.PlainTokens{}
	}
	inboxSize := cfg.InboxSize
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	h := &Hub{
		store:    cfg.Store,
		tokens:   tokens,
		root:     cfg.Root,
		tokenTTL: ttl,
		registry: session.NewRegistry(),
		tracker:  engine.NewTracker(),
		inbox:    make(chan func(), inboxSize),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.With("component", "hub"),
	}
	h.sessionOpts = session.Options{
		OutboundBuffer: cfg.OutboundBuffer,
		WriteTimeout:   cfg.WriteTimeout,
		OnFailure:      h.transportFailed,
		Logger:         logger,
	}
	return h
}

// Run processes queued work until ctx is cancelled, then closes every session.
func (h *Hub) Run(ctx context.Context) error {
	h.running.Store(true)
	close(h.ready)
	h.logger.Info("hub running")

	defer func() {
		h.running.Store(false)
		for _, s := range h.registry.All() {
			h.registry.Close(s.ID(), session.ReasonShutdown)
		}
		close(h.done)
		h.logger.Info("hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-h.inbox:
			fn()
		}
	}
}

// Ready is closed once Run has started.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Running reports whether the loop is processing work.
func (h *Hub) Running() bool { return h.running.Load() }

// Done is closed after Run returns.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Do runs fn on the hub's loop and waits for it to finish. It must not be
// called from inside the loop.
func (h *Hub) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}

	select {
	case h.inbox <- wrapped:
	case <-h.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued, fn runs to completion unless the loop stops first.
	select {
	case <-finished:
		return nil
	case <-h.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// post queues fn without waiting for it. It blocks only while the inbox is full.
func (h *Hub) post(fn func()) bool {
	select {
	case h.inbox <- fn:
		return true
	case <-h.done:
		return false
	}
}

// Handle queues an event for dispatch. It is the entry point for the planning
// engine and any other external mutation source.
func (h *Hub) Handle(e event.Event) {
	if !h.post(func() { h.dispatch(e) }) {
		h.logger.Debug("event dropped after shutdown", "event", eventName(e))
	}
}

var _ event.Listener = (*Hub)(nil)
