// Package lsm implements the log-structured-merge storage engine: an
// in-memory MemTable backed by a write-ahead log, periodically flushed to
// immutable SSTable files on disk and merged by a background-free,
// inline compactor. Reads check the MemTable first, then SSTables
// newest-first; the first hit wins.
//
// There is a single writer lock per Engine. Puts and deletes are
// synchronous: Put does not return until the WAL record backing it has
// been fsynced.
package lsm
