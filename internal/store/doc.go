// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - User: Account with a role (standard or privileged) and authorized domain roots
//   - Type: Node of the domain taxonomy with parent types and property schemas
//   - Item: Instance of a Type, carrying its most recent Value
//   - Rule: Reactive or deliberative rule source, unique by name within its kind
//   - Reading: Timestamped data point recorded for an Item
//
// # Ordering
//
// List methods return entities ordered by name (username for users), then by
// ID. Readings are ordered by timestamp. Snapshots built from the same state
// are therefore identical.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use ":memory:" as the path for an in-memory database.
//
// # Error Handling
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicate: A unique name is already taken
//
// # Testing
//
// Use NewMockStore() for unit tests that do not need SQLite. Both
// implementations pass the same contract tests.
package store
