// ABOUTME: CRUD operations on the domain registry, run on the hub loop
// ABOUTME: A mutation is broadcast only after the store confirms it

package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coco-gateway/internal/auth"
	"github.com/2389/coco-gateway/internal/event"
	"github.com/2389/coco-gateway/internal/store"
)

// ErrInvalid is returned for requests that fail validation before reaching the store.
var ErrInvalid = errors.New("invalid request")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// run executes fn on the loop and returns its results.
func run[T any](ctx context.Context, h *Hub, fn func() (T, error)) (T, error) {
	var out T
	var err error
	if doErr := h.Do(ctx, func() { out, err = fn() }); doErr != nil {
		var zero T
		return zero, doErr
	}
	return out, err
}

// exec is run for operations without a result.
func exec(ctx context.Context, h *Hub, fn func() error) error {
	_, err := run(ctx, h, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

func newID() string { return uuid.New().String() }

// Types

// ListTypes returns every entity type.
func (h *Hub) ListTypes(ctx context.Context) ([]*store.Type, error) {
	return run(ctx, h, func() ([]*store.Type, error) { return h.store.ListTypes(ctx) })
}

// GetType returns one entity type.
func (h *Hub) GetType(ctx context.Context, id string) (*store.Type, error) {
	return run(ctx, h, func() (*store.Type, error) { return h.store.GetType(ctx, id) })
}

// CreateType stores a new entity type under a fresh ID and broadcasts it.
func (h *Hub) CreateType(ctx context.Context, t *store.Type) (*store.Type, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, invalid("type name is required")
	}
	t.ID = newID()
	t.CreatedAt = time.Now().UTC()

	return run(ctx, h, func() (*store.Type, error) {
		if err := h.checkParents(ctx, t); err != nil {
			return nil, err
		}
		if err := h.store.CreateType(ctx, t); err != nil {
			return nil, fmt.Errorf("creating type: %w", err)
		}
		h.dispatch(event.TypeCreated{Type: t})
		return t, nil
	})
}

// UpdateType replaces an entity type and broadcasts the stored result.
func (h *Hub) UpdateType(ctx context.Context, t *store.Type) (*store.Type, error) {
	if strings.TrimSpace(t.Name) == "" {
		return nil, invalid("type name is required")
	}
	return run(ctx, h, func() (*store.Type, error) {
		if err := h.checkParents(ctx, t); err != nil {
			return nil, err
		}
		if err := h.store.UpdateType(ctx, t); err != nil {
			return nil, fmt.Errorf("updating type: %w", err)
		}
		updated, err := h.store.GetType(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading type: %w", err)
		}
		h.dispatch(event.TypeUpdated{Type: updated})
		return updated, nil
	})
}

// DeleteType removes an entity type and broadcasts its ID.
func (h *Hub) DeleteType(ctx context.Context, id string) error {
	return exec(ctx, h, func() error {
		if err := h.store.DeleteType(ctx, id); err != nil {
			return fmt.Errorf("deleting type: %w", err)
		}
		h.dispatch(event.TypeDeleted{ID: id})
		return nil
	})
}

func (h *Hub) checkParents(ctx context.Context, t *store.Type) error {
	for _, parent := range t.Parents {
		if parent == t.ID {
			return invalid("type %s cannot be its own parent", t.ID)
		}
		if _, err := h.store.GetType(ctx, parent); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return invalid("unknown parent type %s", parent)
			}
			return err
		}
	}
	return nil
}

// Items

// ListItems returns items, filtered by type when typeID is non-empty.
func (h *Hub) ListItems(ctx context.Context, typeID string) ([]*store.Item, error) {
	return run(ctx, h, func() ([]*store.Item, error) { return h.store.ListItems(ctx, typeID) })
}

// GetItem returns one item.
func (h *Hub) GetItem(ctx context.Context, id string) (*store.Item, error) {
	return run(ctx, h, func() (*store.Item, error) { return h.store.GetItem(ctx, id) })
}

// CreateItem stores a new item under a fresh ID and broadcasts it.
func (h *Hub) CreateItem(ctx context.Context, item *store.Item) (*store.Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, invalid("item name is required")
	}
	item.ID = newID()
	item.Value = nil
	item.CreatedAt = time.Now().UTC()

	return run(ctx, h, func() (*store.Item, error) {
		if err := h.checkItemType(ctx, item); err != nil {
			return nil, err
		}
		if err := h.store.CreateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("creating item: %w", err)
		}
		h.dispatch(event.ItemCreated{Item: item})
		return item, nil
	})
}

// UpdateItem replaces an item's descriptive fields and broadcasts the stored
// result. The item's last value is kept.
func (h *Hub) UpdateItem(ctx context.Context, item *store.Item) (*store.Item, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, invalid("item name is required")
	}
	return run(ctx, h, func() (*store.Item, error) {
		if err := h.checkItemType(ctx, item); err != nil {
			return nil, err
		}
		if err := h.store.UpdateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("updating item: %w", err)
		}
		updated, err := h.store.GetItem(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading item: %w", err)
		}
		h.dispatch(event.ItemUpdated{Item: updated})
		return updated, nil
	})
}

// DeleteItem removes an item and broadcasts its ID.
func (h *Hub) DeleteItem(ctx context.Context, id string) error {
	return exec(ctx, h, func() error {
		if err := h.store.DeleteItem(ctx, id); err != nil {
			return fmt.Errorf("deleting item: %w", err)
		}
		h.dispatch(event.ItemDeleted{ID: id})
		return nil
	})
}

func (h *Hub) checkItemType(ctx context.Context, item *store.Item) error {
	if item.TypeID == "" {
		return invalid("item type is required")
	}
	if _, err := h.store.GetType(ctx, item.TypeID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return invalid("unknown type %s", item.TypeID)
		}
		return err
	}
	return nil
}

// Data

// RecordData stores a reading, making it the item's current value, and
// broadcasts it. A zero timestamp means now.
func (h *Hub) RecordData(ctx context.Context, r *store.Reading) (*store.Reading, error) {
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	return run(ctx, h, func() (*store.Reading, error) {
		if err := h.store.AddReading(ctx, r); err != nil {
			return nil, fmt.Errorf("recording data: %w", err)
		}
		h.dispatch(event.DataRecorded{Reading: r})
		return r, nil
	})
}

// ListReadings returns an item's readings between from and to (unix ms). A
// zero to means no upper bound.
func (h *Hub) ListReadings(ctx context.Context, itemID string, from, to int64) ([]*store.Reading, error) {
	return run(ctx, h, func() ([]*store.Reading, error) {
		if _, err := h.store.GetItem(ctx, itemID); err != nil {
			return nil, err
		}
		return h.store.ListReadings(ctx, itemID, from, to)
	})
}

// Rules

// ListRules returns the rules of one kind.
func (h *Hub) ListRules(ctx context.Context, kind store.RuleKind) ([]*store.Rule, error) {
	if !kind.Valid() {
		return nil, invalid("unknown rule kind %q", kind)
	}
	return run(ctx, h, func() ([]*store.Rule, error) { return h.store.ListRules(ctx, kind) })
}

// GetRule returns one rule.
func (h *Hub) GetRule(ctx context.Context, kind store.RuleKind, id string) (*store.Rule, error) {
	if !kind.Valid() {
		return nil, invalid("unknown rule kind %q", kind)
	}
	return run(ctx, h, func() (*store.Rule, error) { return h.store.GetRule(ctx, kind, id) })
}

// CreateRule stores a new rule under a fresh ID and broadcasts it.
func (h *Hub) CreateRule(ctx context.Context, r *store.Rule) (*store.Rule, error) {
	if err := validateRule(r); err != nil {
		return nil, err
	}
	r.ID = newID()
	r.CreatedAt = time.Now().UTC()

	return run(ctx, h, func() (*store.Rule, error) {
		if err := h.store.CreateRule(ctx, r); err != nil {
			return nil, fmt.Errorf("creating rule: %w", err)
		}
		h.dispatch(event.RuleCreated{Rule: r})
		return r, nil
	})
}

// UpdateRule replaces a rule and broadcasts the stored result.
func (h *Hub) UpdateRule(ctx context.Context, r *store.Rule) (*store.Rule, error) {
	if err := validateRule(r); err != nil {
		return nil, err
	}
	return run(ctx, h, func() (*store.Rule, error) {
		if err := h.store.UpdateRule(ctx, r); err != nil {
			return nil, fmt.Errorf("updating rule: %w", err)
		}
		updated, err := h.store.GetRule(ctx, r.Kind, r.ID)
		if err != nil {
			return nil, fmt.Errorf("reloading rule: %w", err)
		}
		h.dispatch(event.RuleUpdated{Rule: updated})
		return updated, nil
	})
}

// DeleteRule removes a rule and broadcasts its ID.
func (h *Hub) DeleteRule(ctx context.Context, kind store.RuleKind, id string) error {
	if !kind.Valid() {
		return invalid("unknown rule kind %q", kind)
	}
	return exec(ctx, h, func() error {
		if err := h.store.DeleteRule(ctx, kind, id); err != nil {
			return fmt.Errorf("deleting rule: %w", err)
		}
		h.dispatch(event.RuleDeleted{Kind: kind, ID: id})
		return nil
	})
}

func validateRule(r *store.Rule) error {
	if !r.Kind.Valid() {
		return invalid("unknown rule kind %q", r.Kind)
	}
	if strings.TrimSpace(r.Name) == "" {
		return invalid("rule name is required")
	}
	return nil
}

// Users

// ListUsers returns every user.
func (h *Hub) ListUsers(ctx context.Context) ([]*store.User, error) {
	return run(ctx, h, func() ([]*store.User, error) { return h.store.ListUsers(ctx) })
}

// GetUser returns one user.
func (h *Hub) GetUser(ctx context.Context, id string) (*store.User, error) {
	return run(ctx, h, func() (*store.User, error) { return h.store.GetUser(ctx, id) })
}

// CreateUser stores a new user under a fresh ID and notifies privileged
// sessions. An empty password leaves the account without password login.
func (h *Hub) CreateUser(ctx context.Context, u *store.User, password string) (*store.User, error) {
	if err := validateUser(u); err != nil {
		return nil, err
	}
	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	u.ID = newID()
	u.CreatedAt = time.Now().UTC()

	return run(ctx, h, func() (*store.User, error) {
		if err := h.store.CreateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		h.dispatch(event.UserCreated{User: u})
		return u, nil
	})
}

// UpdateUser replaces a user's profile and notifies privileged sessions. An
// empty password keeps the current one. A role change applies to the user's
// live session immediately.
func (h *Hub) UpdateUser(ctx context.Context, u *store.User, password string) (*store.User, error) {
	if err := validateUser(u); err != nil {
		return nil, err
	}
	var hash string
	if password != "" {
		var err error
		if hash, err = auth.HashPassword(password); err != nil {
			return nil, err
		}
	}

	return run(ctx, h, func() (*store.User, error) {
		existing, err := h.store.GetUser(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("loading user: %w", err)
		}
		u.PasswordHash = existing.PasswordHash
		if hash != "" {
			u.PasswordHash = hash
		}
		u.CreatedAt = existing.CreatedAt
		if err := h.store.UpdateUser(ctx, u); err != nil {
			return nil, fmt.Errorf("updating user: %w", err)
		}
		h.dispatch(event.UserUpdated{User: u})
		return u, nil
	})
}

// DeleteUser removes a user, notifies privileged sessions, and closes the
// user's live session.
func (h *Hub) DeleteUser(ctx context.Context, id string) error {
	return exec(ctx, h, func() error {
		if err := h.store.DeleteUser(ctx, id); err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		h.dispatch(event.UserDeleted{ID: id})
		return nil
	})
}

func validateUser(u *store.User) error {
	if strings.TrimSpace(u.Username) == "" {
		return invalid("username is required")
	}
	role, err := store.ParseRole(string(u.Role))
	if err != nil {
		return invalid("%v", err)
	}
	u.Role = role
	return nil
}

// Login checks a username and password and issues a token for the user.
// Unknown users and wrong passwords are indistinguishable to the caller.
func (h *Hub) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := run(ctx, h, func() (*store.User, error) {
		u, err := h.store.GetUserByUsername(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			return nil, auth.ErrInvalidCredential
		}
		if err != nil {
			return nil, fmt.Errorf("loading user: %w", err)
		}
		return u, nil
	})
	if err != nil {
		return "", nil, err
	}

	// bcrypt is slow; keep it off the loop.
	if user.PasswordHash == "" {
		return "", nil, auth.ErrInvalidCredential
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		return "", nil, err
	}
	// Only a caller who proved the password learns the account exists.
	if h.root != "" && !user.HasRoot(h.root) {
		return "", nil, auth.ErrRootMismatch
	}

	token, err := h.tokens.Generate(user.ID, h.tokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("issuing token: %w", err)
	}
	return token, user, nil
}
