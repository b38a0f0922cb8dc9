// ABOUTME: Registry maps live sessions to authenticated users and back
// ABOUTME: Owned by the hub's event loop; not safe for concurrent use

package session

import (
	"errors"

	"github.com/2389/coco-gateway/internal/protocol"
)

// Registry errors
var (
	ErrUnknownSession       = errors.New("unknown session")
	ErrAlreadyAuthenticated = errors.New("session already authenticated")
)

type entry struct {
	session    *Session
	userID     string
	privileged bool
}

// Registry tracks open sessions. Anonymous sessions are registered but never
// receive broadcasts. The session→user and user→session maps are kept as
// mutual inverses over authenticated sessions.
type Registry struct {
	sessions map[ID]*entry
	byUser   map[string]ID
	order    []ID // open order, for deterministic fan-out
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[ID]*entry),
		byUser:   make(map[string]ID),
	}
}

// Open registers an anonymous session. Opening a registered ID is a no-op.
func (r *Registry) Open(s *Session) {
	if _, ok := r.sessions[s.ID()]; ok {
		return
	}
	r.sessions[s.ID()] = &entry{session: s}
	r.order = append(r.order, s.ID())
}

// Close deregisters a session and closes it with reason. It returns the
// session's user ID, or "" if it was anonymous or not registered. Closing an
// unknown or already closed session is a no-op.
func (r *Registry) Close(id ID, reason CloseReason) (userID string) {
	e, ok := r.remove(id)
	if !ok {
		return ""
	}
	e.session.Close(reason)
	return e.userID
}

func (r *Registry) remove(id ID) (*entry, bool) {
	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	if e.userID != "" && r.byUser[e.userID] == id {
		delete(r.byUser, e.userID)
	}
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, true
}

// Authenticate binds a session to a user. If the user already had another
// session, that session is deregistered and returned so the caller can close
// it; it is nil otherwise.
func (r *Registry) Authenticate(id ID, userID string, privileged bool) (*Session, error) {
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	if e.userID != "" {
		return nil, ErrAlreadyAuthenticated
	}

	var displaced *Session
	if prev, ok := r.byUser[userID]; ok {
		if old, removed := r.remove(prev); removed {
			displaced = old.session
		}
	}

	e.userID = userID
	e.privileged = privileged
	r.byUser[userID] = id
	return displaced, nil
}

// LookupUser returns the user bound to a session.
func (r *Registry) LookupUser(id ID) (string, bool) {
	e, ok := r.sessions[id]
	if !ok || e.userID == "" {
		return "", false
	}
	return e.userID, true
}

// LookupSession returns the session bound to a user.
func (r *Registry) LookupSession(userID string) (ID, bool) {
	id, ok := r.byUser[userID]
	return id, ok
}

// Session returns a registered session, or nil.
func (r *Registry) Session(id ID) *Session {
	if e, ok := r.sessions[id]; ok {
		return e.session
	}
	return nil
}

// IsPrivileged reports the cached role flag of an authenticated session.
func (r *Registry) IsPrivileged(id ID) bool {
	e, ok := r.sessions[id]
	return ok && e.userID != "" && e.privileged
}

// SetPrivileged updates the cached role flag of the user's session, if any.
func (r *Registry) SetPrivileged(userID string, privileged bool) {
	if id, ok := r.byUser[userID]; ok {
		r.sessions[id].privileged = privileged
	}
}

// All returns every registered session, anonymous ones included, in open order.
func (r *Registry) All() []*Session {
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id].session)
	}
	return out
}

// Recipients returns the authenticated sessions the audience admits, in open order.
func (r *Registry) Recipients(audience protocol.Audience) []*Session {
	out := make([]*Session, 0, len(r.byUser))
	for _, id := range r.order {
		e := r.sessions[id]
		if e.userID != "" && audience.Allows(e.privileged) {
			out = append(out, e.session)
		}
	}
	return out
}

// Authenticated returns every authenticated session in open order.
func (r *Registry) Authenticated() []*Session {
	return r.Recipients(protocol.All)
}

// Privileged returns the sessions of privileged users in open order.
func (r *Registry) Privileged() []*Session {
	return r.Recipients(protocol.PrivilegedOnly)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int { return len(r.sessions) }
