package btree

import "errors"

var (
	// ErrClosed is returned by any operation on an Engine that has
	// already had Close called on it.
	ErrClosed = errors.New("btree: engine closed")

	// ErrCorrupt is returned when a page or WAL record fails a
	// structural check that a well-formed, fsynced write should never
	// fail (bad magic, unsupported version, an invariant violation
	// like children != keys+1).
	ErrCorrupt = errors.New("btree: corrupt page or log record")

	// ErrUnsupported is returned by Delete. Rebalancing on underflow
	// was never implemented; deleting a key is simply not a supported
	// operation on this engine.
	ErrUnsupported = errors.New("btree: delete is not supported")
)
