// Package storage persists reminder records.
//
// Every driver implements Store and runs reminder.Reconcile once after a cold
// load, persisting the repaired records in a single write.
//
// Drivers:
//   - memory:   in-process snapshot, nothing survives a restart
//   - file:     JSON snapshot file replaced atomically on every change
//   - sqlite:   one row per reminder (modernc.org/sqlite, no cgo)
//   - postgres: one row per reminder (pgx through database/sql)
//   - redis:    JSON snapshot under a single key
//   - discord:  JSON snapshot kept in a bot message of a Discord channel
//
// The snapshot drivers share snapshotStore, which owns the in-memory copy and
// serializes load-mutate-persist so a slow backend cannot lose updates.
package storage
