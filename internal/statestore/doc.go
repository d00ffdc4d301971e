// Package statestore persists engine snapshots for crash recovery.
//
// A Snapshot is the whole job map plus a format version and save time. The
// engine saves one on a timer and at shutdown and loads one at startup.
// Backends are interchangeable behind Store: a JSON file guarded by an
// advisory lock, SQLite (embedded, the default for single hosts), Postgres
// through the pgx database/sql driver, and Redis.
//
// Decode understands the current format (version 2) and migrates version 1
// documents, which stored jobs as a list with legacy status names. Snapshots
// from unknown versions are discarded, never guessed at. Prepare demotes jobs
// that were running when the snapshot was taken back to pending.
package statestore
