// Package store persists pipeline runs and their per-stage states in SQLite.
//
// The database lives under the configured log directory and is opened with WAL
// journaling and a busy timeout so the CLI and tests can share it safely. Writes
// retry briefly on SQLITE_BUSY. The store is a history record only: runs left
// unfinished by a crashed process are marked cancelled on the next start rather
// than resumed.
package store
