// Package btree implements the B-Tree storage engine: fixed-size pages
// in a flat page file, a page-image write-ahead log for crash recovery,
// and a small text Meta file recording the root page and next free page
// id. Writes descend from the root collecting a batch of modified
// pages, split leaves and internal pages as needed, and commit the
// whole batch atomically: WAL append + fsync, then page writes + fsync,
// then an atomic Meta rewrite.
//
// Delete is intentionally unimplemented — callers get ErrUnsupported.
package btree
