// ABOUTME: Reactive and deliberative rule persistence for SQLiteStore
// ABOUTME: Rule names are unique within a kind

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CreateRule inserts a new rule. Returns ErrDuplicate if a rule of the same
// kind already uses the name.
func (s *SQLiteStore) CreateRule(ctx context.Context, rule *Rule) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (id, kind, name, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		rule.ID, string(rule.Kind), rule.Name, rule.Content, formatTime(rule.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting rule: %w", err)
	}

	s.logger.Debug("created rule", "id", rule.ID, "kind", rule.Kind, "name", rule.Name)
	return nil
}

// GetRule retrieves a rule of the given kind by ID.
func (s *SQLiteStore) GetRule(ctx context.Context, kind RuleKind, id string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, name, content, created_at FROM rules WHERE kind = ? AND id = ?`,
		string(kind), id,
	)
	return scanRule(row)
}

// UpdateRule replaces the name and content of a rule.
func (s *SQLiteStore) UpdateRule(ctx context.Context, rule *Rule) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET name = ?, content = ? WHERE kind = ? AND id = ?`,
		rule.Name, rule.Content, string(rule.Kind), rule.ID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating rule: %w", err)
	}
	return checkAffected(res)
}

// DeleteRule removes a rule.
func (s *SQLiteStore) DeleteRule(ctx context.Context, kind RuleKind, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	return checkAffected(res)
}

// ListRules returns the rules of one kind ordered by name.
func (s *SQLiteStore) ListRules(ctx context.Context, kind RuleKind) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, content, created_at FROM rules WHERE kind = ? ORDER BY name, id`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	rules := []*Rule{}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

func scanRule(row rowScanner) (*Rule, error) {
	var r Rule
	var kind, createdAt string

	err := row.Scan(&r.ID, &kind, &r.Name, &r.Content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning rule: %w", err)
	}
	r.Kind = RuleKind(kind)
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}
