// ABOUTME: Authorization gate: resolves credentials and sessions to users with a required role
// ABOUTME: Reads the user from the store on every check so role changes apply immediately

package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/session"
	"github.com/2389/coco-gateway/internal/store"
)

// Check authorizes an action by the user bound to a session.
func (h *Hub) Check(ctx context.Context, id session.ID, required store.Role) (string, error) {
	var userID string
	var err error
	if doErr := h.Do(ctx, func() {
		userID, err = h.check(ctx, id, required)
	}); doErr != nil {
		return "", doErr
	}
	return userID, err
}

func (h *Hub) check(ctx context.Context, id session.ID, required store.Role) (string, error) {
	userID, ok := h.registry.LookupUser(id)
	if !ok {
		return "", auth.ErrMissingCredential
	}
	user, err := h.loadUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if !user.Role.Satisfies(required) {
		return "", auth.ErrInsufficientRole
	}
	return user.ID, nil
}

// Authorize resolves a bearer token to an identity holding at least the
// required role. It implements auth.Authorizer.
func (h *Hub) Authorize(ctx context.Context, token string, required store.Role) (*auth.AuthContext, error) {
	userID, err := h.tokens.Verify(token)
	if err != nil {
		return nil, err
	}

	var user *store.User
	if doErr := h.Do(ctx, func() {
		user, err = h.loadUser(ctx, userID)
	}); doErr != nil {
		return nil, doErr
	}
	if err != nil {
		return nil, err
	}
	if !user.Role.Satisfies(required) {
		return nil, auth.ErrInsufficientRole
	}
	return &auth.AuthContext{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

var _ auth.Authorizer = (*Hub)(nil)

// authenticateToken resolves a login token to a user allowed on this root.
func (h *Hub) authenticateToken(ctx context.Context, token string) (*store.User, error) {
	userID, err := h.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return h.loadUser(ctx, userID)
}

// loadUser fetches a user and checks it against the domain root.
func (h *Hub) loadUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := h.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if h.root != "" && !user.HasRoot(h.root) {
		return nil, auth.ErrRootMismatch
	}
	return user, nil
}
