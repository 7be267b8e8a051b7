package lsm

import "errors"

var (
	// ErrClosed is returned by any operation on an Engine that has
	// already had Close called on it.
	ErrClosed = errors.New("lsm: engine closed")

	// ErrCorrupt is returned when an SSTable fails a structural check
	// (bad magic, truncated record inside its data section) that a
	// well-formed, fsynced file should never exhibit.
	ErrCorrupt = errors.New("lsm: corrupt sstable")
)
