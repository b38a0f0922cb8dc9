// ABOUTME: Sensor reading persistence for SQLiteStore
// ABOUTME: Recording a reading also refreshes the item's cached last value

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// AddReading appends a reading to the item's history and makes it the item's
// current Value. Returns ErrNotFound if the item does not exist.
func (s *SQLiteStore) AddReading(ctx context.Context, reading *Reading) error {
	data, err := encodeJSON(reading.Data)
	if err != nil {
		return fmt.Errorf("encoding reading: %w", err)
	}
	if !data.Valid {
		data.String, data.Valid = "{}", true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE items SET value_json = ?, value_ts = ? WHERE id = ?`,
		data, reading.Timestamp, reading.ItemID,
	)
	if err != nil {
		return fmt.Errorf("updating item value: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO readings (item_id, ts, data_json) VALUES (?, ?, ?)`,
		reading.ItemID, reading.Timestamp, data,
	); err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}

	return tx.Commit()
}

// ListReadings returns an item's readings with from <= ts <= to, oldest
// first. A zero to means no upper bound.
func (s *SQLiteStore) ListReadings(ctx context.Context, itemID string, from, to int64) ([]*Reading, error) {
	query := `SELECT item_id, ts, data_json FROM readings WHERE item_id = ? AND ts >= ?`
	args := []any{itemID, from}
	if to > 0 {
		query += ` AND ts <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY ts, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing readings: %w", err)
	}
	defer rows.Close()

	readings := []*Reading{}
	for rows.Next() {
		var r Reading
		var data sql.NullString
		if err := rows.Scan(&r.ItemID, &r.Timestamp, &data); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if err := decodeJSON(data, &r.Data); err != nil {
			return nil, fmt.Errorf("decoding reading: %w", err)
		}
		readings = append(readings, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return readings, nil
}
