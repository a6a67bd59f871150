// Package storage keeps a history of finished simulation runs.
//
// Drivers:
//   - "file": append-only JSON Lines, no dependencies
//   - "sqlite": SQLite database file (build with -tags sqlite)
package storage
