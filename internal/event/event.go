// ABOUTME: Closed set of change events produced by the store and planning engine
// ABOUTME: Event is sealed; only types in this package implement it

package event

import "github.com/2389/coco-gateway/internal/store"

// Event is a mutation notification. The set of implementations is closed:
// consumers dispatch with a single type switch over the types below.
type Event interface {
	isEvent()
}

// Listener receives events in mutation order.
type Listener interface {
	Handle(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

// Handle calls f(e).
func (f ListenerFunc) Handle(e Event) { f(e) }

// TypeCreated is emitted after an entity type is stored.
type TypeCreated struct{ Type *store.Type }

// TypeUpdated is emitted after an entity type is replaced.
type TypeUpdated struct{ Type *store.Type }

// TypeDeleted is emitted after an entity type is removed.
type TypeDeleted struct{ ID string }

// ItemCreated is emitted after an item is stored.
type ItemCreated struct{ Item *store.Item }

// ItemUpdated is emitted after an item is replaced.
type ItemUpdated struct{ Item *store.Item }

// ItemDeleted is emitted after an item is removed.
type ItemDeleted struct{ ID string }

// DataRecorded is emitted after a sensor reading is stored.
type DataRecorded struct{ Reading *store.Reading }

// RuleCreated is emitted after a rule is stored.
type RuleCreated struct{ Rule *store.Rule }

// RuleUpdated is emitted after a rule is replaced.
type RuleUpdated struct{ Rule *store.Rule }

// RuleDeleted is emitted after a rule is removed.
type RuleDeleted struct {
	Kind store.RuleKind
	ID   string
}

// UserCreated is emitted after a user is stored.
type UserCreated struct{ User *store.User }

// UserUpdated is emitted after a user is replaced.
type UserUpdated struct{ User *store.User }

// UserDeleted is emitted after a user is removed.
type UserDeleted struct{ ID string }

func (TypeCreated) isEvent()  {}
func (TypeUpdated) isEvent()  {}
func (TypeDeleted) isEvent()  {}
func (ItemCreated) isEvent()  {}
func (ItemUpdated) isEvent()  {}
func (ItemDeleted) isEvent()  {}
func (DataRecorded) isEvent() {}
func (RuleCreated) isEvent()  {}
func (RuleUpdated) isEvent()  {}
func (RuleDeleted) isEvent()  {}
func (UserCreated) isEvent()  {}
func (UserUpdated) isEvent()  {}
func (UserDeleted) isEvent()  {}
