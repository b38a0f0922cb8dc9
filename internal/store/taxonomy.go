// ABOUTME: Entity type and item persistence methods for SQLiteStore
// ABOUTME: Type names are unique; an item's last reading is cached on the item row

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const typeColumns = `id, name, description, parents_json, static_props_json, dynamic_props_json, created_at`

// CreateType inserts a new entity type. Returns ErrDuplicate if the name is taken.
func (s *SQLiteStore) CreateType(ctx context.Context, t *Type) error {
	args, err := typeArgs(t)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO types (`+typeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		append([]any{t.ID}, append(args, formatTime(t.CreatedAt))...)...,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting type: %w", err)
	}

	s.logger.Debug("created type", "id", t.ID, "name", t.Name)
	return nil
}

// GetType retrieves an entity type by ID.
func (s *SQLiteStore) GetType(ctx context.Context, id string) (*Type, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+typeColumns+` FROM types WHERE id = ?`, id)
	return scanType(row)
}

// UpdateType replaces every mutable field of an existing entity type.
func (s *SQLiteStore) UpdateType(ctx context.Context, t *Type) error {
	args, err := typeArgs(t)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE types SET name = ?, description = ?, parents_json = ?, static_props_json = ?, dynamic_props_json = ? WHERE id = ?`,
		append(args, t.ID)...,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating type: %w", err)
	}
	return checkAffected(res)
}

// DeleteType removes an entity type. A type that items or child types still
// reference is left in place and ErrInUse is returned.
func (s *SQLiteStore) DeleteType(ctx context.Context, id string) error {
	var referenced bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE type_id = ?)
		    OR EXISTS (SELECT 1 FROM types, json_each(types.parents_json) WHERE json_each.value = ?)`,
		id, id,
	).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("checking type references: %w", err)
	}
	if referenced {
		return ErrInUse
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM types WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting type: %w", err)
	}
	return checkAffected(res)
}

// ListTypes returns all entity types ordered by name.
func (s *SQLiteStore) ListTypes(ctx context.Context) ([]*Type, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+typeColumns+` FROM types ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing types: %w", err)
	}
	defer rows.Close()

	types := []*Type{}
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating types: %w", err)
	}
	return types, nil
}

// typeArgs returns the column values shared by insert and update, in
// name, description, parents, static, dynamic order.
func typeArgs(t *Type) ([]any, error) {
	parents, err := encodeJSON(t.Parents)
	if err != nil {
		return nil, fmt.Errorf("encoding parents: %w", err)
	}
	static, err := encodeJSON(t.StaticProperties)
	if err != nil {
		return nil, fmt.Errorf("encoding static properties: %w", err)
	}
	dynamic, err := encodeJSON(t.DynamicProperties)
	if err != nil {
		return nil, fmt.Errorf("encoding dynamic properties: %w", err)
	}
	return []any{t.Name, t.Description, parents, static, dynamic}, nil
}

func scanType(row rowScanner) (*Type, error) {
	var t Type
	var createdAt string
	var parents, static, dynamic sql.NullString

	err := row.Scan(&t.ID, &t.Name, &t.Description, &parents, &static, &dynamic, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning type: %w", err)
	}

	t.CreatedAt = parseTime(createdAt)
	if err := decodeJSON(parents, &t.Parents); err != nil {
		return nil, fmt.Errorf("decoding parents: %w", err)
	}
	if err := decodeJSON(static, &t.StaticProperties); err != nil {
		return nil, fmt.Errorf("decoding static properties: %w", err)
	}
	if err := decodeJSON(dynamic, &t.DynamicProperties); err != nil {
		return nil, fmt.Errorf("decoding dynamic properties: %w", err)
	}
	return &t, nil
}

const itemColumns = `id, type_id, name, description, properties_json, value_json, value_ts, created_at`

// CreateItem inserts a new item. The item's Value is ignored; it is only
// ever set by AddReading.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *Item) error {
	props, err := encodeJSON(item.Properties)
	if err != nil {
		return fmt.Errorf("encoding properties: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO items (id, type_id, name, description, properties_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.TypeID, item.Name, item.Description, props, formatTime(item.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting item: %w", err)
	}

	s.logger.Debug("created item", "id", item.ID, "type_id", item.TypeID)
	return nil
}

// GetItem retrieves an item by ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// UpdateItem replaces the name, description, and properties of an item.
func (s *SQLiteStore) UpdateItem(ctx context.Context, item *Item) error {
	props, err := encodeJSON(item.Properties)
	if err != nil {
		return fmt.Errorf("encoding properties: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET type_id = ?, name = ?, description = ?, properties_json = ? WHERE id = ?`,
		item.TypeID, item.Name, item.Description, props, item.ID,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	return checkAffected(res)
}

// DeleteItem removes an item together with its reading history.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM readings WHERE item_id = ?`, id); err != nil {
		return fmt.Errorf("deleting readings: %w", err)
	}
	return tx.Commit()
}

// ListItems returns items ordered by name, optionally restricted to one type.
func (s *SQLiteStore) ListItems(ctx context.Context, typeID string) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items`
	var args []any
	if typeID != "" {
		query += ` WHERE type_id = ?`
		args = append(args, typeID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	items := []*Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var createdAt string
	var props, value sql.NullString
	var valueTS sql.NullInt64

	err := row.Scan(&item.ID, &item.TypeID, &item.Name, &item.Description, &props, &value, &valueTS, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning item: %w", err)
	}

	item.CreatedAt = parseTime(createdAt)
	if err := decodeJSON(props, &item.Properties); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}
	if value.Valid {
		v := &Value{Timestamp: valueTS.Int64}
		if err := decodeJSON(value, &v.Data); err != nil {
			return nil, fmt.Errorf("decoding value: %w", err)
		}
		item.Value = v
	}
	return &item, nil
}
