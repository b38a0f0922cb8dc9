// ABOUTME: Wire representations of store entities and solver roster entries
// ABOUTME: Views omit credential material and use the client's field names

package protocol

import (
	"github.com/2389/coco-gateway/internal/event"
	"github.com/2389/coco-gateway/internal/store"
)

// UserView is a user as sent to clients. It never carries the password hash.
type UserView struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Role     store.Role     `json:"role"`
	Roots    []string       `json:"roots"`
	Data     map[string]any `json:"data,omitempty"`
}

// NewUserView converts a stored user.
func NewUserView(u *store.User) UserView {
	roots := u.Roots
	if roots == nil {
		roots = []string{}
	}
	return UserView{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Roots:    roots,
		Data:     u.Data,
	}
}

// UserStatus is a roster entry of the privileged users snapshot.
type UserStatus struct {
	UserView
	Online bool `json:"online"`
}

// TypeView is an entity type as sent to clients.
type TypeView struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Description       string         `json:"description"`
	Parents           []string       `json:"parents,omitempty"`
	StaticProperties  map[string]any `json:"static_properties,omitempty"`
	DynamicProperties map[string]any `json:"dynamic_properties,omitempty"`
}

// NewTypeView converts a stored entity type.
func NewTypeView(t *store.Type) TypeView {
	return TypeView{
		ID:                t.ID,
		Name:              t.Name,
		Description:       t.Description,
		Parents:           t.Parents,
		StaticProperties:  t.StaticProperties,
		DynamicProperties: t.DynamicProperties,
	}
}

// ValueView is an item's most recent reading.
type ValueView struct {
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// ItemView is an item as sent to clients.
type ItemView struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties,omitempty"`
	Value       *ValueView     `json:"value,omitempty"`
}

// NewItemView converts a stored item.
func NewItemView(item *store.Item) ItemView {
	v := ItemView{
		ID:          item.ID,
		Type:        item.TypeID,
		Name:        item.Name,
		Description: item.Description,
		Properties:  item.Properties,
	}
	if item.Value != nil {
		v.Value = &ValueView{Data: item.Value.Data, Timestamp: item.Value.Timestamp}
	}
	return v
}

// RuleView is a rule as sent to clients.
type RuleView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// NewRuleView converts a stored rule.
func NewRuleView(r *store.Rule) RuleView {
	return RuleView{ID: r.ID, Name: r.Name, Content: r.Content}
}

// SolverView is a solver roster entry.
type SolverView struct {
	ID    uint64          `json:"id"`
	Name  string          `json:"name"`
	State event.ExecState `json:"state"`
}
