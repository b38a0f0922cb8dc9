// ABOUTME: User persistence methods for SQLiteStore
// ABOUTME: Usernames are unique; roots and free-form data are stored as JSON

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const userColumns = `id, username, password_hash, role, roots_json, data_json, created_at`

// CreateUser inserts a new user. Returns ErrDuplicate if the username is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	roots, err := encodeJSON(nonNilRoots(user.Roots))
	if err != nil {
		return fmt.Errorf("encoding roots: %w", err)
	}
	data, err := encodeJSON(user.Data)
	if err != nil {
		return fmt.Errorf("encoding user data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, string(user.Role), roots, data, formatTime(user.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "username", user.Username, "role", user.Role)
	return nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// UpdateUser replaces the mutable fields of an existing user.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *User) error {
	roots, err := encodeJSON(nonNilRoots(user.Roots))
	if err != nil {
		return fmt.Errorf("encoding roots: %w", err)
	}
	data, err := encodeJSON(user.Data)
	if err != nil {
		return fmt.Errorf("encoding user data: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, password_hash = ?, role = ?, roots_json = ?, data_json = ? WHERE id = ?`,
		user.Username, user.PasswordHash, string(user.Role), roots, data, user.ID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating user: %w", err)
	}
	return checkAffected(res)
}

// DeleteUser removes a user.
func (s *SQLiteStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return checkAffected(res)
}

// ListUsers returns all users ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username, id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var role, createdAt string
	var roots, data sql.NullString

	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &roots, &data, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.CreatedAt = parseTime(createdAt)
	if err := decodeJSON(roots, &u.Roots); err != nil {
		return nil, fmt.Errorf("decoding roots: %w", err)
	}
	if err := decodeJSON(data, &u.Data); err != nil {
		return nil, fmt.Errorf("decoding user data: %w", err)
	}
	u.Roots = nonNilRoots(u.Roots)
	return &u, nil
}

func nonNilRoots(roots []string) []string {
	if roots == nil {
		return []string{}
	}
	return roots
}
