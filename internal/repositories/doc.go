// Package repositories implements SQL persistence for sessions, queue entries, and votes.
//
// [SQLStore] composes [SessionRepository] and [QueueRepository] into a [models.Store].
// Read-then-write steps go through [SQLStore.Begin], which returns a [Tx] implementing [models.StoreTx].
//
// Queries are written with "?" placeholders and passed through sqlx's Rebind,
// so the same code runs against SQLite (mattn/go-sqlite3) and Postgres (lib/pq).
//
// Queue order is votes descending, then insertion sequence ascending.
// Sequence numbers come from [NextSequence], which increments a per-table counter in a dedicated sequence table.
package repositories
