// ABOUTME: Store interface and data types for the coco-gateway domain registry
// ABOUTME: Defines users, entity types, items, rules, and sensor readings

package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique name (username, type name, rule name) is already taken
var ErrDuplicate = errors.New("already exists")

// ErrInUse is returned when deleting an entity type that items or other types still reference
var ErrInUse = errors.New("still referenced")

// User is an account that can log in over HTTP and the /coco WebSocket.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash, never sent to clients
	Role         Role
	Roots        []string // domain roots this user may view
	Data         map[string]any
	CreatedAt    time.Time
}

// IsPrivileged reports whether the user may see user-management broadcasts.
func (u *User) IsPrivileged() bool {
	return u.Role == RolePrivileged
}

// HasRoot reports whether the user is authorized for the given domain root.
func (u *User) HasRoot(root string) bool {
	return slices.Contains(u.Roots, root)
}

// Type is a node of the domain taxonomy.
type Type struct {
	ID                string
	Name              string
	Description       string
	Parents           []string // parent type IDs
	StaticProperties  map[string]any
	DynamicProperties map[string]any
	CreatedAt         time.Time
}

// Value is the most recent reading recorded for an item.
type Value struct {
	Data      map[string]any
	Timestamp int64 // unix milliseconds
}

// Item is an instance of a Type (a sensor, a bus, a lamp post...).
type Item struct {
	ID          string
	TypeID      string
	Name        string
	Description string
	Properties  map[string]any
	Value       *Value // nil until the first reading
	CreatedAt   time.Time
}

// RuleKind distinguishes the two rule sets of the knowledge base.
type RuleKind string

const (
	RuleReactive     RuleKind = "reactive"
	RuleDeliberative RuleKind = "deliberative"
)

// Valid reports whether k is a known rule kind.
func (k RuleKind) Valid() bool {
	return k == RuleReactive || k == RuleDeliberative
}

// Rule is a named block of rule source code.
type Rule struct {
	ID        string
	Kind      RuleKind
	Name      string
	Content   string
	CreatedAt time.Time
}

// Reading is a single data point recorded for an item.
type Reading struct {
	ItemID    string
	Timestamp int64 // unix milliseconds
	Data      map[string]any
}

// Store defines the persistence contract of the domain registry. Lists are
// returned in a stable order (by name, then ID) so that snapshots built from
// the same state are byte-identical.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)

	// Taxonomy
	CreateType(ctx context.Context, t *Type) error
	GetType(ctx context.Context, id string) (*Type, error)
	UpdateType(ctx context.Context, t *Type) error
	DeleteType(ctx context.Context, id string) error
	ListTypes(ctx context.Context) ([]*Type, error)

	// Items; typeID filters when non-empty
	CreateItem(ctx context.Context, item *Item) error
	GetItem(ctx context.Context, id string) (*Item, error)
	UpdateItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context, typeID string) ([]*Item, error)

	// Rules
	CreateRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, kind RuleKind, id string) (*Rule, error)
	UpdateRule(ctx context.Context, rule *Rule) error
	DeleteRule(ctx context.Context, kind RuleKind, id string) error
	ListRules(ctx context.Context, kind RuleKind) ([]*Rule, error)

	// Readings. AddReading also replaces the item's last Value.
	AddReading(ctx context.Context, reading *Reading) error
	ListReadings(ctx context.Context, itemID string, from, to int64) ([]*Reading, error)

	// Close releases any resources held by the store
	Close() error
}
