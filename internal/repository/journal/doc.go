// Package journal persists lifecycle events in SQLite.
//
// The SQLite repository appends one row per event and lists recent rows for
// the history command. Observer adapts the repository to the coordinator's
// observer hook.
package journal
