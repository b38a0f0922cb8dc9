// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	users    map[string]*User
	types    map[string]*Type
	items    map[string]*Item
	rules    map[string]*Rule // keyed by kind + ":" + ID
	readings map[string][]*Reading
	closed   bool
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:    make(map[string]*User),
		types:    make(map[string]*Type),
		items:    make(map[string]*Item),
		rules:    make(map[string]*Rule),
		readings: make(map[string][]*Reading),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == user.Username || u.ID == user.ID {
			return ErrDuplicate
		}
	}
	m.users[user.ID] = copyUser(user)
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser replaces an existing user.
func (m *MockStore) UpdateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	for _, u := range m.users {
		if u.ID != user.ID && u.Username == user.Username {
			return ErrDuplicate
		}
	}
	updated := copyUser(user)
	updated.CreatedAt = existing.CreatedAt
	m.users[user.ID] = updated
	return nil
}

// DeleteUser removes a user.
func (m *MockStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// ListUsers returns all users ordered by username.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, copyUser(u))
	}
	slices.SortFunc(users, func(a, b *User) int {
		return cmp.Or(cmp.Compare(a.Username, b.Username), cmp.Compare(a.ID, b.ID))
	})
	return users, nil
}

// CreateType stores a new entity type.
func (m *MockStore) CreateType(ctx context.Context, t *Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.types {
		if existing.Name == t.Name || existing.ID == t.ID {
			return ErrDuplicate
		}
	}
	m.types[t.ID] = copyType(t)
	return nil
}

// GetType retrieves an entity type by ID.
func (m *MockStore) GetType(ctx context.Context, id string) (*Type, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.types[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyType(t), nil
}

// UpdateType replaces an existing entity type.
func (m *MockStore) UpdateType(ctx context.Context, t *Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.types[t.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.types {
		if other.ID != t.ID && other.Name == t.Name {
			return ErrDuplicate
		}
	}
	updated := copyType(t)
	updated.CreatedAt = existing.CreatedAt
	m.types[t.ID] = updated
	return nil
}

// DeleteType removes an entity type.
func (m *MockStore) DeleteType(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.types[id]; !ok {
		return ErrNotFound
	}
	for _, item := range m.items {
		if item.TypeID == id {
			return ErrInUse
		}
	}
	for _, t := range m.types {
		if slices.Contains(t.Parents, id) {
			return ErrInUse
		}
	}
	delete(m.types, id)
	return nil
}

// ListTypes returns all entity types ordered by name.
func (m *MockStore) ListTypes(ctx context.Context) ([]*Type, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]*Type, 0, len(m.types))
	for _, t := range m.types {
		types = append(types, copyType(t))
	}
	slices.SortFunc(types, func(a, b *Type) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return types, nil
}

// CreateItem stores a new item. The item's Value is ignored.
func (m *MockStore) CreateItem(ctx context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ID]; ok {
		return ErrDuplicate
	}
	stored := copyItem(item)
	stored.Value = nil
	m.items[item.ID] = stored
	return nil
}

// GetItem retrieves an item by ID.
func (m *MockStore) GetItem(ctx context.Context, id string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyItem(item), nil
}

// UpdateItem replaces the descriptive fields of an item, keeping its Value.
func (m *MockStore) UpdateItem(ctx context.Context, item *Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	updated := copyItem(item)
	updated.Value = existing.Value
	updated.CreatedAt = existing.CreatedAt
	m.items[item.ID] = updated
	return nil
}

// DeleteItem removes an item and its readings.
func (m *MockStore) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	delete(m.readings, id)
	return nil
}

// ListItems returns items ordered by name, optionally filtered by type.
func (m *MockStore) ListItems(ctx context.Context, typeID string) ([]*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := []*Item{}
	for _, item := range m.items {
		if typeID != "" && item.TypeID != typeID {
			continue
		}
		items = append(items, copyItem(item))
	}
	slices.SortFunc(items, func(a, b *Item) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return items, nil
}

func ruleKey(kind RuleKind, id string) string {
	return string(kind) + ":" + id
}

// CreateRule stores a new rule.
func (m *MockStore) CreateRule(ctx context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.rules {
		if r.ID == rule.ID || (r.Kind == rule.Kind && r.Name == rule.Name) {
			return ErrDuplicate
		}
	}
	r := *rule
	m.rules[ruleKey(rule.Kind, rule.ID)] = &r
	return nil
}

// GetRule retrieves a rule by kind and ID.
func (m *MockStore) GetRule(ctx context.Context, kind RuleKind, id string) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rules[ruleKey(kind, id)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *r
	return &result, nil
}

// UpdateRule replaces the name and content of a rule.
func (m *MockStore) UpdateRule(ctx context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[ruleKey(rule.Kind, rule.ID)]
	if !ok {
		return ErrNotFound
	}
	for _, r := range m.rules {
		if r.ID != rule.ID && r.Kind == rule.Kind && r.Name == rule.Name {
			return ErrDuplicate
		}
	}
	existing.Name = rule.Name
	existing.Content = rule.Content
	return nil
}

// DeleteRule removes a rule.
func (m *MockStore) DeleteRule(ctx context.Context, kind RuleKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ruleKey(kind, id)
	if _, ok := m.rules[key]; !ok {
		return ErrNotFound
	}
	delete(m.rules, key)
	return nil
}

// ListRules returns the rules of one kind ordered by name.
func (m *MockStore) ListRules(ctx context.Context, kind RuleKind) ([]*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := []*Rule{}
	for _, r := range m.rules {
		if r.Kind != kind {
			continue
		}
		result := *r
		rules = append(rules, &result)
	}
	slices.SortFunc(rules, func(a, b *Rule) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return rules, nil
}

// AddReading records a reading and makes it the item's current Value.
func (m *MockStore) AddReading(ctx context.Context, reading *Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[reading.ItemID]
	if !ok {
		return ErrNotFound
	}
	data := maps.Clone(reading.Data)
	if data == nil {
		data = map[string]any{}
	}
	item.Value = &Value{Data: data, Timestamp: reading.Timestamp}
	m.readings[reading.ItemID] = append(m.readings[reading.ItemID], &Reading{
		ItemID:    reading.ItemID,
		Timestamp: reading.Timestamp,
		Data:      maps.Clone(data),
	})
	return nil
}

// ListReadings returns an item's readings in [from, to], oldest first.
// A zero to means no upper bound.
func (m *MockStore) ListReadings(ctx context.Context, itemID string, from, to int64) ([]*Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	readings := []*Reading{}
	for _, r := range m.readings[itemID] {
		if r.Timestamp < from || (to > 0 && r.Timestamp > to) {
			continue
		}
		result := *r
		result.Data = maps.Clone(r.Data)
		readings = append(readings, &result)
	}
	slices.SortStableFunc(readings, func(a, b *Reading) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return readings, nil
}

// Close marks the store closed.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyUser(u *User) *User {
	c := *u
	c.Roots = nonNilRoots(slices.Clone(u.Roots))
	c.Data = maps.Clone(u.Data)
	return &c
}

func copyType(t *Type) *Type {
	c := *t
	c.Parents = slices.Clone(t.Parents)
	c.StaticProperties = maps.Clone(t.StaticProperties)
	c.DynamicProperties = maps.Clone(t.DynamicProperties)
	return &c
}

func copyItem(item *Item) *Item {
	c := *item
	c.Properties = maps.Clone(item.Properties)
	if item.Value != nil {
		c.Value = &Value{Data: maps.Clone(item.Value.Data), Timestamp: item.Value.Timestamp}
	}
	return &c
}
