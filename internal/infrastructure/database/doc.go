// Package database manages the SQLite session archive.
//
// Every completed run leaves rows behind: the session itself, per-device
// delivery statistics, and any operator notes. This package owns the
// connection (WAL mode, busy timeout, single writer) and the embedded
// schema migrations; the session package writes through it.
//
// Migrations are embedded into the binary by the top-level migrations
// package and applied at startup via DB.Migrate.
package database
