// Package sqlite persists chunks, vectorization jobs and maintenance task
// state in a single SQLite database (modernc.org/sqlite, no cgo).
//
// Store.ChunkStore, Store.JobStore and Store.SchedulerStore return port
// implementations that share one *sql.DB opened in WAL mode. Job rows are
// what crash recovery reads on restart; a partial unique index on
// vectorization_jobs allows one pending or in-progress job per document
// version.
//
// The schema lives in migrations/ as numbered up/down pairs. Each pending
// migration runs in its own transaction and is recorded in
// schema_migrations. Opening a database written by a newer binary fails.
//
// Timestamps are stored as fixed-width UTC text so they sort lexically.
package sqlite
